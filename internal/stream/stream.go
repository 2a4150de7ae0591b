// Package stream fans moderation events out to live admin clients.
package stream

import (
	"context"
	"sync"
	"time"

	"fractionball.org/internal/moderation"
)

// Event describes one applied moderation action.
type Event struct {
	Action    moderation.Action `json:"action"`
	PostID    string            `json:"post_id"`
	Actor     string            `json:"actor"`
	Status    moderation.Status `json:"status"`
	IsPinned  bool              `json:"is_pinned"`
	IsFlagged bool              `json:"is_flagged"`
	Timestamp time.Time         `json:"timestamp"`
}

// Stream fan-outs events to all active subscribers (SSE clients).
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

func New() *Stream {
	return &Stream{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber and returns a channel which will receive events.
// The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers.
func (s *Stream) Publish(evt Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// slow subscriber, drop
		}
	}
}

// Subscribers reports the number of live subscribers.
func (s *Stream) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Observe is a moderation.Observer publishing every applied action.
func (s *Stream) Observe(_ context.Context, action moderation.Action, actorID string, post moderation.Post) {
	s.Publish(Event{
		Action:    action,
		PostID:    post.ID,
		Actor:     actorID,
		Status:    post.Status,
		IsPinned:  post.IsPinned,
		IsFlagged: post.IsFlagged,
		Timestamp: time.Now().UTC(),
	})
}
