package registry

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

const deviceColumns = `device.device_pubkey, device.device_accepted, device.device_title, device.device_local_ip, device.device_schema`

// UpsertDevice inserts or updates d and links it to account in one transaction.
// device_accepted is only written on insert.
func (r *Repository) UpsertDevice(ctx context.Context, d *models.Device, account string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return database.Classify(err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO device (device_pubkey, device_accepted, device_title, device_local_ip, device_schema)
		VALUES ($1, FALSE, $2, $3, $4)
		ON CONFLICT (device_pubkey) DO UPDATE
		SET device_title = EXCLUDED.device_title,
		    device_local_ip = EXCLUDED.device_local_ip,
		    device_schema = EXCLUDED.device_schema
	`, d.Pubkey.Bytes(), d.Title, d.LocalAddress, []byte(d.Schema)); err != nil {
		return database.Classify(fmt.Errorf("upsert device: %w", err))
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO link_account_device (account_username, device_pubkey)
		VALUES ($1, $2)
		ON CONFLICT (account_username, device_pubkey) DO NOTHING
	`, account, d.Pubkey.Bytes()); err != nil {
		if database.IsForeignKeyViolation(err) {
			return fmt.Errorf("link account %q: %w", account, models.ErrAccountNotFound)
		}
		return database.Classify(fmt.Errorf("link device: %w", err))
	}
	return database.Classify(tx.Commit(ctx))
}

// GetLinkedDevice returns nil when the device does not exist or is not linked to account.
func (r *Repository) GetLinkedDevice(ctx context.Context, account string, pk models.Pubkey) (*models.Device, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+deviceColumns+`
		FROM device
		JOIN link_account_device l ON l.device_pubkey = device.device_pubkey
		WHERE l.account_username = $1 AND device.device_pubkey = $2
	`, account, pk.Bytes())
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, database.Classify(err)
	}
	return d, nil
}

func (r *Repository) ListLinkedDevices(ctx context.Context, account string) ([]*models.Device, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+deviceColumns+`
		FROM device
		JOIN link_account_device l ON l.device_pubkey = device.device_pubkey
		WHERE l.account_username = $1
		ORDER BY device.device_title, device.device_pubkey
	`, account)
	if err != nil {
		return nil, database.Classify(err)
	}
	defer rows.Close()
	var list []*models.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, d)
	}
	return list, database.Classify(rows.Err())
}

// AcceptLinkedDevice sets device_accepted only when the link exists. The check
// and the write are one statement, so a concurrent unlink cannot slip between them.
func (r *Repository) AcceptLinkedDevice(ctx context.Context, account string, pk models.Pubkey) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE device SET device_accepted = TRUE
		WHERE device_pubkey = $2 AND EXISTS (
			SELECT 1 FROM link_account_device
			WHERE account_username = $1 AND device_pubkey = $2
		)
	`, account, pk.Bytes())
	if err != nil {
		return false, database.Classify(err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) SetLinkedDeviceTitle(ctx context.Context, account string, pk models.Pubkey, title string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE device SET device_title = $3
		WHERE device_pubkey = $2 AND EXISTS (
			SELECT 1 FROM link_account_device
			WHERE account_username = $1 AND device_pubkey = $2
		)
	`, account, pk.Bytes(), title)
	if err != nil {
		return false, database.Classify(err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) SetDeviceLocalAddress(ctx context.Context, pk models.Pubkey, addr string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE device SET device_local_ip = $2 WHERE device_pubkey = $1
	`, pk.Bytes(), addr)
	return database.Classify(err)
}

func (r *Repository) SetDeviceSchema(ctx context.Context, pk models.Pubkey, schema json.RawMessage) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE device SET device_schema = $2 WHERE device_pubkey = $1
	`, pk.Bytes(), []byte(schema))
	return database.Classify(err)
}

func scanDevice(row pgx.Row) (*models.Device, error) {
	var (
		d      models.Device
		raw    []byte
		schema []byte
	)
	if err := row.Scan(&raw, &d.Accepted, &d.Title, &d.LocalAddress, &schema); err != nil {
		return nil, err
	}
	pk, err := models.PubkeyFromBytes(raw)
	if err != nil {
		return nil, err
	}
	d.Pubkey = pk
	d.Schema = json.RawMessage(schema)
	return &d, nil
}
