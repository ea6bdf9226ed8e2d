package accounts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/devmesh/backend/internal/auth"
	"github.com/devmesh/backend/internal/models"
)

// Store persists accounts and the ownership graph.
type Store interface {
	CreateAccount(ctx context.Context, a *models.Account, owners []string) error
	EnsureAccount(ctx context.Context, a *models.Account) (bool, error)
	GetAccount(ctx context.Context, username string) (*models.Account, error)
	UpdatePassword(ctx context.Context, username, passwordHash string) error
	ListOwned(ctx context.Context, owner string) ([]*models.Account, error)
}

// Directory manages accounts and answers who owns whom. Ownership is a
// directed graph that may contain cycles; listings only follow one edge.
type Directory struct {
	store Store
	creds auth.Credentials
	log   *slog.Logger
}

func NewDirectory(store Store, creds auth.Credentials, log *slog.Logger) *Directory {
	if log == nil {
		log = slog.Default()
	}
	return &Directory{store: store, creds: creds, log: log}
}

// Create adds a new account owned by owner, or by the root account when owner
// is empty. The root account always gets an edge to the new account as well.
func (d *Directory) Create(ctx context.Context, username, password, displayName, owner string) (*models.Account, error) {
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	if username == models.RootUsername {
		return nil, models.ErrAlreadyExists
	}

	existing, err := d.store.GetAccount(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, models.ErrAlreadyExists
	}

	if owner == "" {
		owner = models.RootUsername
	}
	owners := []string{models.RootUsername}
	if owner != models.RootUsername {
		o, err := d.store.GetAccount(ctx, owner)
		if err != nil {
			return nil, err
		}
		if o == nil {
			return nil, fmt.Errorf("owner %q: %w", owner, models.ErrAccountNotFound)
		}
		owners = append(owners, owner)
	}

	hash, err := d.creds.Hash(password)
	if err != nil {
		return nil, err
	}
	acc := &models.Account{Username: username, Name: displayName, PasswordHash: hash}
	if err := d.store.CreateAccount(ctx, acc, owners); err != nil {
		return nil, err
	}
	d.log.Info("account created", "username", username, "owner", owner)
	return acc, nil
}

// Get returns nil if the account does not exist.
func (d *Directory) Get(ctx context.Context, username string) (*models.Account, error) {
	return d.store.GetAccount(ctx, username)
}

// Authenticate resolves username and verifies password against its stored hash.
// Unknown usernames and wrong passwords both yield models.ErrInvalidCredentials.
func (d *Directory) Authenticate(ctx context.Context, username, password string) (*models.Account, error) {
	acc, err := d.store.GetAccount(ctx, username)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		d.creds.Burn(password)
		return nil, models.ErrInvalidCredentials
	}
	ok, err := d.creds.Verify(password, acc.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password for %q: %w", username, err)
	}
	if !ok {
		return nil, models.ErrInvalidCredentials
	}
	return acc, nil
}

// ChangePassword replaces the stored hash. Existing requests are not revoked;
// there are no sessions to revoke.
func (d *Directory) ChangePassword(ctx context.Context, username, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	hash, err := d.creds.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := d.store.UpdatePassword(ctx, username, hash); err != nil {
		return err
	}
	d.log.Info("password changed", "username", username)
	return nil
}

// ListOwned returns the accounts owner directly owns. No transitive closure.
func (d *Directory) ListOwned(ctx context.Context, owner string) ([]*models.Account, error) {
	list, err := d.store.ListOwned(ctx, owner)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*models.Account{}
	}
	return list, nil
}

// EnsureRoot creates the root account with password unless it already exists.
// An existing root keeps its current password.
func (d *Directory) EnsureRoot(ctx context.Context, password string) (bool, error) {
	if err := validatePassword(password); err != nil {
		return false, err
	}
	hash, err := d.creds.Hash(password)
	if err != nil {
		return false, err
	}
	created, err := d.store.EnsureAccount(ctx, &models.Account{
		Username:     models.RootUsername,
		Name:         models.RootDisplayName,
		PasswordHash: hash,
	})
	if err != nil {
		return false, err
	}
	if created {
		d.log.Info("root account created", "username", models.RootUsername)
	}
	return created, nil
}

func validateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("%w: username is required", models.ErrInputMalformed)
	}
	if strings.TrimSpace(username) != username {
		return fmt.Errorf("%w: username must not start or end with whitespace", models.ErrInputMalformed)
	}
	return nil
}

func validatePassword(password string) error {
	if password == "" {
		return fmt.Errorf("%w: password is required", models.ErrInputMalformed)
	}
	if len(password) > auth.MaxPasswordBytes {
		return fmt.Errorf("%w: password must be at most %d bytes", models.ErrInputMalformed, auth.MaxPasswordBytes)
	}
	return nil
}
