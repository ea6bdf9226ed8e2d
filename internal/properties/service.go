package properties

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/devmesh/backend/internal/models"
)

// Store persists the durable property bag of each device.
type Store interface {
	UpsertProperty(ctx context.Context, pk models.Pubkey, name string, value json.RawMessage) error
	GetProperty(ctx context.Context, pk models.Pubkey, name string) (json.RawMessage, error)
}

// Service reads and writes stored device properties. It does not check
// account links; callers resolve authorization first.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Set stores value under name, replacing any previous value whole.
func (s *Service) Set(ctx context.Context, pk models.Pubkey, name string, value json.RawMessage) error {
	if err := Validate(name, value); err != nil {
		return err
	}
	return s.store.UpsertProperty(ctx, pk, name, value)
}

// Get returns models.ErrPropertyNotFound when nothing is stored under name.
func (s *Service) Get(ctx context.Context, pk models.Pubkey, name string) (json.RawMessage, error) {
	v, err := s.store.GetProperty(ctx, pk, name)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, models.ErrPropertyNotFound
	}
	return v, nil
}

// BulkSet applies each entry as its own upsert, in name order. It stops at the
// first failure and reports how many entries were written; earlier writes stay.
func (s *Service) BulkSet(ctx context.Context, pk models.Pubkey, props models.Properties) (int, error) {
	names := make([]string, 0, len(props))
	for name, value := range props {
		if err := Validate(name, value); err != nil {
			return 0, err
		}
		names = append(names, name)
	}
	sort.Strings(names)

	for i, name := range names {
		if err := s.store.UpsertProperty(ctx, pk, name, props[name]); err != nil {
			return i, fmt.Errorf("set property %q: %w", name, err)
		}
	}
	return len(names), nil
}

// Validate rejects an empty name or a value that is not a JSON document.
func Validate(name string, value json.RawMessage) error {
	if name == "" {
		return fmt.Errorf("%w: property name is required", models.ErrInputMalformed)
	}
	if len(value) == 0 || !json.Valid(value) {
		return fmt.Errorf("%w: property %q value is not valid JSON", models.ErrInputMalformed, name)
	}
	return nil
}
