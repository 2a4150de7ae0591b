package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound     = errors.New("moderation: post not found")
	ErrInvalidInput = errors.New("moderation: invalid input")
)

// Post is the moderation view of a community post.
type Post struct {
	ID              string    `json:"id"`
	AuthorID        string    `json:"author_id"`
	Title           string    `json:"title"`
	Status          Status    `json:"status"`
	IsPinned        bool      `json:"is_pinned"`
	IsFlagged       bool      `json:"is_flagged"`
	FlagReason      string    `json:"flag_reason,omitempty"`
	FlaggedAt       time.Time `json:"flagged_at,omitzero"`
	FlaggedBy       string    `json:"flagged_by,omitempty"`
	ModeratedAt     time.Time `json:"moderated_at,omitzero"`
	ModeratedBy     string    `json:"moderated_by,omitempty"`
	ModerationNotes string    `json:"moderation_notes,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// PostStore persists patches. ApplyPatch must write the whole patch in a
// single update; concurrent patches resolve last writer wins.
type PostStore interface {
	Post(ctx context.Context, id string) (Post, error)
	ApplyPatch(ctx context.Context, id string, p Patch) (Post, error)
}

// Action names a moderation operation.
type Action string

const (
	ActionFlag    Action = "flag"
	ActionApprove Action = "approve"
	ActionDelete  Action = "delete"
	ActionPin     Action = "pin"
)

// Observer is notified after a patch has been stored.
type Observer func(ctx context.Context, action Action, actorID string, post Post)

// Service computes patches and hands them to the store.
type Service struct {
	store     PostStore
	now       func() time.Time
	observers []Observer
}

// Option configures Service behavior.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithObserver registers a callback for applied actions.
func WithObserver(o Observer) Option {
	return func(s *Service) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

// NewService constructs a Service.
func NewService(store PostStore, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("moderation: post store is required")
	}
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) Flag(ctx context.Context, postID, actorID, reason string) (Post, error) {
	return s.apply(ctx, ActionFlag, postID, actorID, Flag(s.now(), actorID, strings.TrimSpace(reason)))
}

func (s *Service) Approve(ctx context.Context, postID, moderatorID, notes string) (Post, error) {
	return s.apply(ctx, ActionApprove, postID, moderatorID, Approve(s.now(), moderatorID, strings.TrimSpace(notes)))
}

func (s *Service) Delete(ctx context.Context, postID, moderatorID, reason string) (Post, error) {
	return s.apply(ctx, ActionDelete, postID, moderatorID, SoftDelete(s.now(), moderatorID, strings.TrimSpace(reason)))
}

// TogglePin reads the current pin state and stores its inverse.
func (s *Service) TogglePin(ctx context.Context, postID, moderatorID string) (Post, error) {
	postID = strings.TrimSpace(postID)
	if postID == "" {
		return Post{}, fmt.Errorf("%w: post id is required", ErrInvalidInput)
	}
	current, err := s.store.Post(ctx, postID)
	if err != nil {
		return Post{}, err
	}
	return s.apply(ctx, ActionPin, postID, moderatorID, TogglePin(current.IsPinned))
}

func (s *Service) apply(ctx context.Context, action Action, postID, actorID string, p Patch) (Post, error) {
	postID = strings.TrimSpace(postID)
	if postID == "" {
		return Post{}, fmt.Errorf("%w: post id is required", ErrInvalidInput)
	}
	post, err := s.store.ApplyPatch(ctx, postID, p)
	if err != nil {
		return Post{}, err
	}
	for _, o := range s.observers {
		o(ctx, action, actorID, post)
	}
	return post, nil
}
