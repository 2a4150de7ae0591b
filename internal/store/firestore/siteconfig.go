package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	"fractionball.org/internal/siteconfig"
)

type configDoc struct {
	Key         string    `firestore:"key"`
	Value       string    `firestore:"value"`
	Description string    `firestore:"description"`
	DataType    string    `firestore:"dataType"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func (s *Store) ListEntries(ctx context.Context) ([]siteconfig.Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	docs, err := s.client.Collection(siteConfigCollection).OrderBy("key", firestore.Asc).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("firestore: list site config: %w", err)
	}
	out := make([]siteconfig.Entry, 0, len(docs))
	for _, doc := range docs {
		var d configDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, fmt.Errorf("firestore: decode site config %s: %w", doc.Ref.ID, err)
		}
		out = append(out, siteconfig.Entry{
			Key:         d.Key,
			Value:       d.Value,
			Description: d.Description,
			DataType:    siteconfig.DataType(d.DataType),
			UpdatedAt:   d.UpdatedAt,
		})
	}
	return out, nil
}

// PutEntry overwrites the document named after the key.
func (s *Store) PutEntry(ctx context.Context, e siteconfig.Entry) (siteconfig.Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	_, err := s.client.Collection(siteConfigCollection).Doc(e.Key).Set(ctx, configDoc{
		Key:         e.Key,
		Value:       e.Value,
		Description: e.Description,
		DataType:    string(e.DataType),
		UpdatedAt:   e.UpdatedAt,
	})
	if err != nil {
		return siteconfig.Entry{}, fmt.Errorf("firestore: put site config: %w", err)
	}
	return e, nil
}
