package stream

import (
	"context"
	"testing"
	"time"

	"fractionball.org/internal/moderation"
)

func TestObservePublishesToSubscribers(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	ch := s.Subscribe(ctx)

	s.Observe(context.Background(), moderation.ActionFlag, "u1", moderation.Post{ID: "p1", Status: moderation.StatusFlagged, IsFlagged: true})

	select {
	case evt := <-ch:
		if evt.Action != moderation.ActionFlag || evt.PostID != "p1" || !evt.IsFlagged || evt.Actor != "u1" {
			t.Fatalf("unexpected event %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}

	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
	if n := s.Subscribers(); n != 0 {
		t.Fatalf("expected no subscribers, got %d", n)
	}
}

func TestPublishDropsForSlowSubscriber(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := s.Subscribe(ctx)

	for i := 0; i < 64; i++ {
		s.Publish(Event{PostID: "p"})
	}
	if got := len(ch); got != cap(ch) {
		t.Fatalf("expected buffer full at %d, got %d", cap(ch), got)
	}
}
