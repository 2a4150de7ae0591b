// Package siteconfig manages the key/value settings admins edit in the CMS
// (upload limits, pagination sizes and the like).
package siteconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidInput = errors.New("siteconfig: invalid input")
)

// DataType tells readers how to parse Value.
type DataType string

const (
	TypeString  DataType = "string"
	TypeNumber  DataType = "number"
	TypeBoolean DataType = "boolean"
	TypeJSON    DataType = "json"
)

// Entry is one configuration value.
type Entry struct {
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Description string    `json:"description,omitempty"`
	DataType    DataType  `json:"data_type"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store persists entries keyed by Key.
type Store interface {
	ListEntries(ctx context.Context) ([]Entry, error)
	PutEntry(ctx context.Context, e Entry) (Entry, error)
}

// Normalize trims the entry and checks that Value parses as DataType.
func Normalize(e Entry) (Entry, error) {
	e.Key = strings.TrimSpace(e.Key)
	if e.Key == "" {
		return Entry{}, fmt.Errorf("%w: key is required", ErrInvalidInput)
	}
	e.Description = strings.TrimSpace(e.Description)
	if e.DataType == "" {
		e.DataType = TypeString
	}
	switch e.DataType {
	case TypeString:
	case TypeNumber:
		if _, err := strconv.ParseFloat(strings.TrimSpace(e.Value), 64); err != nil {
			return Entry{}, fmt.Errorf("%w: %s is not a number", ErrInvalidInput, e.Key)
		}
		e.Value = strings.TrimSpace(e.Value)
	case TypeBoolean:
		if _, err := strconv.ParseBool(strings.TrimSpace(e.Value)); err != nil {
			return Entry{}, fmt.Errorf("%w: %s is not a boolean", ErrInvalidInput, e.Key)
		}
		e.Value = strings.TrimSpace(e.Value)
	case TypeJSON:
		if !json.Valid([]byte(e.Value)) {
			return Entry{}, fmt.Errorf("%w: %s is not valid JSON", ErrInvalidInput, e.Key)
		}
	default:
		return Entry{}, fmt.Errorf("%w: unsupported data type %q", ErrInvalidInput, e.DataType)
	}
	return e, nil
}

// Service validates entries before storing them.
type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("siteconfig: store is required")
	}
	return &Service{store: store, now: time.Now}, nil
}

func (s *Service) List(ctx context.Context) ([]Entry, error) {
	return s.store.ListEntries(ctx)
}

func (s *Service) Put(ctx context.Context, e Entry) (Entry, error) {
	e, err := Normalize(e)
	if err != nil {
		return Entry{}, err
	}
	e.UpdatedAt = s.now().UTC()
	return s.store.PutEntry(ctx, e)
}
