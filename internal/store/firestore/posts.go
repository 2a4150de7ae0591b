package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"fractionball.org/internal/moderation"
)

type postDoc struct {
	AuthorID        string    `firestore:"authorId"`
	Title           string    `firestore:"title"`
	Status          string    `firestore:"status"`
	IsPinned        bool      `firestore:"isPinned"`
	IsFlagged       bool      `firestore:"isFlagged"`
	FlagReason      string    `firestore:"flagReason,omitempty"`
	FlaggedAt       time.Time `firestore:"flaggedAt,omitempty"`
	FlaggedBy       string    `firestore:"flaggedBy,omitempty"`
	ModeratedAt     time.Time `firestore:"moderatedAt,omitempty"`
	ModeratedBy     string    `firestore:"moderatedBy,omitempty"`
	ModerationNotes string    `firestore:"moderationNotes,omitempty"`
	UpdatedAt       time.Time `firestore:"updatedAt"`
}

func (d postDoc) post(id string) moderation.Post {
	return moderation.Post{
		ID:              id,
		AuthorID:        d.AuthorID,
		Title:           d.Title,
		Status:          moderation.Status(d.Status),
		IsPinned:        d.IsPinned,
		IsFlagged:       d.IsFlagged,
		FlagReason:      d.FlagReason,
		FlaggedAt:       d.FlaggedAt,
		FlaggedBy:       d.FlaggedBy,
		ModeratedAt:     d.ModeratedAt,
		ModeratedBy:     d.ModeratedBy,
		ModerationNotes: d.ModerationNotes,
		UpdatedAt:       d.UpdatedAt,
	}
}

func (s *Store) Post(ctx context.Context, id string) (moderation.Post, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	snap, err := s.client.Collection(postsCollection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return moderation.Post{}, moderation.ErrNotFound
		}
		return moderation.Post{}, fmt.Errorf("firestore: get post: %w", err)
	}
	var d postDoc
	if err := snap.DataTo(&d); err != nil {
		return moderation.Post{}, fmt.Errorf("firestore: decode post %s: %w", id, err)
	}
	return d.post(id), nil
}

// ApplyPatch issues one document update; Firestore applies it atomically.
func (s *Store) ApplyPatch(ctx context.Context, id string, p moderation.Patch) (moderation.Post, error) {
	updates := patchUpdates(p, s.now().UTC())
	uctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	_, err := s.client.Collection(postsCollection).Doc(id).Update(uctx, updates)
	cancel()
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return moderation.Post{}, moderation.ErrNotFound
		}
		return moderation.Post{}, fmt.Errorf("firestore: update post: %w", err)
	}
	return s.Post(ctx, id)
}

// patchUpdates maps a patch onto the FireCMS field names.
func patchUpdates(p moderation.Patch, now time.Time) []firestore.Update {
	var u []firestore.Update
	add := func(path string, v any) { u = append(u, firestore.Update{Path: path, Value: v}) }
	if p.IsFlagged != nil {
		add("isFlagged", *p.IsFlagged)
	}
	if p.Status != nil {
		add("status", string(*p.Status))
	}
	if p.FlaggedAt != nil {
		add("flaggedAt", *p.FlaggedAt)
	}
	if p.FlaggedBy != nil {
		add("flaggedBy", *p.FlaggedBy)
	}
	if p.FlagReason != nil {
		add("flagReason", *p.FlagReason)
	}
	if p.ModeratedAt != nil {
		add("moderatedAt", *p.ModeratedAt)
	}
	if p.ModeratedBy != nil {
		add("moderatedBy", *p.ModeratedBy)
	}
	if p.ModerationNotes != nil {
		add("moderationNotes", *p.ModerationNotes)
	}
	if p.IsPinned != nil {
		add("isPinned", *p.IsPinned)
	}
	add("updatedAt", now)
	return u
}
