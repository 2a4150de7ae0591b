package siteconfig

import (
	"context"
	"errors"
	"testing"
)

type mapStore map[string]Entry

func (m mapStore) ListEntries(context.Context) ([]Entry, error) {
	var out []Entry
	for _, e := range m {
		out = append(out, e)
	}
	return out, nil
}

func (m mapStore) PutEntry(_ context.Context, e Entry) (Entry, error) {
	m[e.Key] = e
	return e, nil
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		entry Entry
		ok    bool
	}{
		{Entry{Key: "site_name", Value: "FractionBall"}, true},
		{Entry{Key: "max_video_size", Value: " 500 ", DataType: TypeNumber}, true},
		{Entry{Key: "max_video_size", Value: "big", DataType: TypeNumber}, false},
		{Entry{Key: "uploads_enabled", Value: "true", DataType: TypeBoolean}, true},
		{Entry{Key: "uploads_enabled", Value: "maybe", DataType: TypeBoolean}, false},
		{Entry{Key: "allowed_video_types", Value: `["mp4","webm"]`, DataType: TypeJSON}, true},
		{Entry{Key: "allowed_video_types", Value: `[mp4`, DataType: TypeJSON}, false},
		{Entry{Key: "  ", Value: "x"}, false},
		{Entry{Key: "k", Value: "x", DataType: "yaml"}, false},
	}
	for _, tc := range cases {
		_, err := Normalize(tc.entry)
		if tc.ok && err != nil {
			t.Fatalf("Normalize(%+v): %v", tc.entry, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("Normalize(%+v) expected ErrInvalidInput, got %v", tc.entry, err)
		}
	}
}

func TestServicePut(t *testing.T) {
	store := mapStore{}
	svc, err := NewService(store)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	e, err := svc.Put(context.Background(), Entry{Key: " page_size ", Value: "20", DataType: TypeNumber})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if e.Key != "page_size" || e.UpdatedAt.IsZero() {
		t.Fatalf("unexpected entry %+v", e)
	}
	if _, ok := store["page_size"]; !ok {
		t.Fatalf("entry not stored")
	}
}
