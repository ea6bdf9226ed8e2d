package properties

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/devmesh/backend/internal/database"
	"github.com/devmesh/backend/internal/models"
)

// Repository is the PostgreSQL implementation of Store.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

func (r *Repository) UpsertProperty(ctx context.Context, pk models.Pubkey, name string, value json.RawMessage) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO property (device_pubkey, property_name, property_value)
		VALUES ($1, $2, $3)
		ON CONFLICT (device_pubkey, property_name)
		DO UPDATE SET property_value = EXCLUDED.property_value
	`, pk.Bytes(), name, []byte(value))
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return fmt.Errorf("device %s: %w", pk, models.ErrDeviceNotFound)
		}
		return database.Classify(fmt.Errorf("upsert property: %w", err))
	}
	return nil
}

// GetProperty returns nil when the device has no value stored under name.
func (r *Repository) GetProperty(ctx context.Context, pk models.Pubkey, name string) (json.RawMessage, error) {
	var value []byte
	err := r.pool.QueryRow(ctx, `
		SELECT property_value FROM property
		WHERE device_pubkey = $1 AND property_name = $2
	`, pk.Bytes(), name).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, database.Classify(err)
	}
	return json.RawMessage(value), nil
}
