package accounts

import (
	"context"
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

// CreateAccount inserts the account and one ownership edge per owner in a single transaction.
func (r *Repository) CreateAccount(ctx context.Context, a *models.Account, owners []string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return database.Classify(err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO account (account_username, account_password, account_name)
		VALUES ($1, $2, $3)
	`, a.Username, a.PasswordHash, a.Name); err != nil {
		if database.IsUniqueViolation(err) {
			return models.ErrAlreadyExists
		}
		return database.Classify(fmt.Errorf("insert account: %w", err))
	}

	for _, owner := range owners {
		if _, err := tx.Exec(ctx, `
			INSERT INTO link_account_account (account_username, derive_account_username)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, owner, a.Username); err != nil {
			if database.IsForeignKeyViolation(err) {
				return fmt.Errorf("owner %q: %w", owner, models.ErrAccountNotFound)
			}
			return database.Classify(fmt.Errorf("insert ownership edge: %w", err))
		}
	}
	return database.Classify(tx.Commit(ctx))
}

// EnsureAccount inserts a unless the username is taken. Returns whether a row was created.
func (r *Repository) EnsureAccount(ctx context.Context, a *models.Account) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO account (account_username, account_password, account_name)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`, a.Username, a.PasswordHash, a.Name)
	if err != nil {
		return false, database.Classify(err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetAccount returns nil if the username does not exist.
func (r *Repository) GetAccount(ctx context.Context, username string) (*models.Account, error) {
	var a models.Account
	err := r.pool.QueryRow(ctx, `
		SELECT account_username, account_name, account_password
		FROM account WHERE account_username = $1
	`, username).Scan(&a.Username, &a.Name, &a.PasswordHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, database.Classify(err)
	}
	return &a, nil
}

func (r *Repository) UpdatePassword(ctx context.Context, username, passwordHash string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE account SET account_password = $2 WHERE account_username = $1
	`, username, passwordHash)
	if err != nil {
		return database.Classify(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrAccountNotFound
	}
	return nil
}

// ListOwned returns the accounts with a direct edge from owner.
func (r *Repository) ListOwned(ctx context.Context, owner string) ([]*models.Account, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.account_username, a.account_name, a.account_password
		FROM account a
		JOIN link_account_account l ON l.derive_account_username = a.account_username
		WHERE l.account_username = $1
		ORDER BY a.account_username
	`, owner)
	if err != nil {
		return nil, database.Classify(err)
	}
	defer rows.Close()
	var list []*models.Account
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.Username, &a.Name, &a.PasswordHash); err != nil {
			return nil, err
		}
		list = append(list, &a)
	}
	return list, database.Classify(rows.Err())
}
