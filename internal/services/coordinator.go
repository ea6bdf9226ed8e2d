package services

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/devmesh/backend/internal/accounts"
	"github.com/devmesh/backend/internal/mailbox"
	"github.com/devmesh/backend/internal/models"
	"github.com/devmesh/backend/internal/properties"
	"github.com/devmesh/backend/internal/registry"
)

// Coordinator answers controller and device requests by combining the
// account directory, device registry, property store and mailbox.
//
// Controller calls always run in the same order: authenticate the account,
// resolve the device through the account's links, then act. Device calls trust
// the presented identifier and skip authentication.
type Coordinator struct {
	Accounts   *accounts.Directory
	Devices    *registry.Registry
	Properties *properties.Service
	Pending    *mailbox.Mailbox
	Logger     *slog.Logger

	// OpenRegistration lets anyone create an account under the root account
	// without presenting credentials.
	OpenRegistration bool
}

// NewCoordinator returns a Coordinator. A nil logger falls back to slog.Default.
func NewCoordinator(
	dir *accounts.Directory,
	reg *registry.Registry,
	props *properties.Service,
	pending *mailbox.Mailbox,
	openRegistration bool,
	logger *slog.Logger,
) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		Accounts:         dir,
		Devices:          reg,
		Properties:       props,
		Pending:          pending,
		Logger:           logger,
		OpenRegistration: openRegistration,
	}
}

// Credentials identify the controller making a request.
type Credentials struct {
	Username string
	Password string
}

// NewAccount describes an account to create. When Owner is set, OwnerPassword
// must verify against it.
type NewAccount struct {
	Username      string
	Password      string
	Name          string
	Owner         string
	OwnerPassword string
}

// ---------------------------------------------------------------------------
// Controller operations
// ---------------------------------------------------------------------------

// CreateAccount creates an account owned by req.Owner, or by the root account
// when no owner is named and open registration is enabled.
func (c *Coordinator) CreateAccount(ctx context.Context, req NewAccount) (*models.Account, error) {
	if req.Owner != "" {
		if _, err := c.Accounts.Authenticate(ctx, req.Owner, req.OwnerPassword); err != nil {
			return nil, err
		}
	} else if !c.OpenRegistration {
		return nil, models.ErrInvalidCredentials
	}
	return c.Accounts.Create(ctx, req.Username, req.Password, req.Name, req.Owner)
}

func (c *Coordinator) AccountName(ctx context.Context, cred Credentials) (string, error) {
	acc, err := c.authenticate(ctx, cred)
	if err != nil {
		return "", err
	}
	return acc.Name, nil
}

func (c *Coordinator) ChangePassword(ctx context.Context, cred Credentials, newPassword string) error {
	acc, err := c.authenticate(ctx, cred)
	if err != nil {
		return err
	}
	return c.Accounts.ChangePassword(ctx, acc.Username, newPassword)
}

// ListAccounts returns the accounts the caller directly owns.
func (c *Coordinator) ListAccounts(ctx context.Context, cred Credentials) ([]*models.Account, error) {
	acc, err := c.authenticate(ctx, cred)
	if err != nil {
		return nil, err
	}
	return c.Accounts.ListOwned(ctx, acc.Username)
}

// ListDevices returns the devices linked to the caller, accepted or not.
func (c *Coordinator) ListDevices(ctx context.Context, cred Credentials) ([]*models.Device, error) {
	acc, err := c.authenticate(ctx, cred)
	if err != nil {
		return nil, err
	}
	return c.Devices.ListByAccount(ctx, acc.Username)
}

func (c *Coordinator) DeviceSchema(ctx context.Context, cred Credentials, pk models.Pubkey) (json.RawMessage, error) {
	d, err := c.linkedDevice(ctx, cred, pk)
	if err != nil {
		return nil, err
	}
	return d.Schema, nil
}

func (c *Coordinator) DeviceLocalAddress(ctx context.Context, cred Credentials, pk models.Pubkey) (string, error) {
	d, err := c.linkedDevice(ctx, cred, pk)
	if err != nil {
		return "", err
	}
	return d.LocalAddress, nil
}

func (c *Coordinator) AcceptDevice(ctx context.Context, cred Credentials, pk models.Pubkey) error {
	d, err := c.linkedDevice(ctx, cred, pk)
	if err != nil {
		return err
	}
	return c.Devices.Accept(ctx, cred.Username, d.Pubkey)
}

func (c *Coordinator) SetDeviceTitle(ctx context.Context, cred Credentials, pk models.Pubkey, title string) error {
	d, err := c.linkedDevice(ctx, cred, pk)
	if err != nil {
		return err
	}
	return c.Devices.SetTitle(ctx, cred.Username, d.Pubkey, title)
}

// GetProperty returns the last value the device reported for name.
func (c *Coordinator) GetProperty(ctx context.Context, cred Credentials, pk models.Pubkey, name string) (json.RawMessage, error) {
	d, err := c.linkedDevice(ctx, cred, pk)
	if err != nil {
		return nil, err
	}
	return c.Properties.Get(ctx, d.Pubkey, name)
}

// SetProperties queues props for delivery on the device's next drain. Nothing
// is written to the property store until the device reports back.
func (c *Coordinator) SetProperties(ctx context.Context, cred Credentials, pk models.Pubkey, props models.Properties) error {
	if err := validateAll(props); err != nil {
		return err
	}
	d, err := c.linkedDevice(ctx, cred, pk)
	if err != nil {
		return err
	}
	c.Pending.Enqueue(d.Pubkey, props)
	c.Logger.Debug("properties queued", "device", d.Pubkey.String(), "count", len(props))
	return nil
}

// ---------------------------------------------------------------------------
// Device operations
// ---------------------------------------------------------------------------

// RegisterDevice upserts the device and links it to account.
func (c *Coordinator) RegisterDevice(ctx context.Context, pk models.Pubkey, account, title, localAddress string, schema json.RawMessage) error {
	return c.Devices.RegisterOrUpdate(ctx, pk, title, localAddress, schema, account)
}

// ReplaceSchema overwrites the device's schema. Unknown devices are ignored.
func (c *Coordinator) ReplaceSchema(ctx context.Context, pk models.Pubkey, schema json.RawMessage) error {
	return c.Devices.ReplaceSchema(ctx, pk, schema)
}

// SetLocalAddress stores the device's self-reported IPv4 address.
func (c *Coordinator) SetLocalAddress(ctx context.Context, pk models.Pubkey, addr string) error {
	return c.Devices.SetLocalAddress(ctx, pk, addr)
}

// ReportProperties persists the values a device reports about itself.
func (c *Coordinator) ReportProperties(ctx context.Context, pk models.Pubkey, props models.Properties) error {
	n, err := c.Properties.BulkSet(ctx, pk, props)
	if err != nil {
		c.Logger.Warn("property report partially applied", "device", pk.String(), "written", n, "total", len(props), "error", err)
		return err
	}
	return nil
}

// DrainPending hands the device everything queued for it and clears the
// queue. It returns an empty map immediately when nothing is pending.
func (c *Coordinator) DrainPending(pk models.Pubkey) models.Properties {
	return c.Pending.DrainAndClear(pk)
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func (c *Coordinator) authenticate(ctx context.Context, cred Credentials) (*models.Account, error) {
	return c.Accounts.Authenticate(ctx, cred.Username, cred.Password)
}

func (c *Coordinator) linkedDevice(ctx context.Context, cred Credentials, pk models.Pubkey) (*models.Device, error) {
	acc, err := c.authenticate(ctx, cred)
	if err != nil {
		return nil, err
	}
	d, err := c.Devices.Get(ctx, acc.Username, pk)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, models.ErrDeviceNotFound
	}
	return d, nil
}

func validateAll(props models.Properties) error {
	for name, value := range props {
		if err := properties.Validate(name, value); err != nil {
			return err
		}
	}
	return nil
}

