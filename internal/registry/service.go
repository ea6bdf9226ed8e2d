package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/netip"

	"github.com/devmesh/backend/internal/models"
)

// Store persists devices and account-device links.
type Store interface {
	UpsertDevice(ctx context.Context, d *models.Device, account string) error
	GetLinkedDevice(ctx context.Context, account string, pk models.Pubkey) (*models.Device, error)
	ListLinkedDevices(ctx context.Context, account string) ([]*models.Device, error)
	AcceptLinkedDevice(ctx context.Context, account string, pk models.Pubkey) (bool, error)
	SetLinkedDeviceTitle(ctx context.Context, account string, pk models.Pubkey, title string) (bool, error)
	SetDeviceLocalAddress(ctx context.Context, pk models.Pubkey, addr string) error
	SetDeviceSchema(ctx context.Context, pk models.Pubkey, schema json.RawMessage) error
}

// Registry tracks devices and which accounts may see them.
//
// Devices are trusted on knowledge of their own identifier alone: the
// device-initiated calls (RegisterOrUpdate, SetLocalAddress, ReplaceSchema)
// are not gated by any account link.
type Registry struct {
	store Store
	log   *slog.Logger
}

func NewRegistry(store Store, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{store: store, log: log}
}

// RegisterOrUpdate upserts the device and links it to account. Re-registration
// replaces title, address and schema but keeps the acceptance flag.
func (r *Registry) RegisterOrUpdate(ctx context.Context, pk models.Pubkey, title, localAddress string, schema json.RawMessage, account string) error {
	if account == "" {
		return fmt.Errorf("%w: account is required", models.ErrInputMalformed)
	}
	schema, err := normalizeSchema(schema)
	if err != nil {
		return err
	}
	d := &models.Device{
		Pubkey:       pk,
		Title:        title,
		LocalAddress: localAddress,
		Schema:       schema,
	}
	if err := r.store.UpsertDevice(ctx, d, account); err != nil {
		return err
	}
	r.log.Info("device registered", "device", pk.String(), "account", account)
	return nil
}

// Get returns nil both when the device does not exist and when it is not
// linked to account.
func (r *Registry) Get(ctx context.Context, account string, pk models.Pubkey) (*models.Device, error) {
	return r.store.GetLinkedDevice(ctx, account, pk)
}

func (r *Registry) ListByAccount(ctx context.Context, account string) ([]*models.Device, error) {
	list, err := r.store.ListLinkedDevices(ctx, account)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*models.Device{}
	}
	return list, nil
}

// Accept marks the device accepted. Acceptance is informational and gates no
// other operation.
func (r *Registry) Accept(ctx context.Context, account string, pk models.Pubkey) error {
	ok, err := r.store.AcceptLinkedDevice(ctx, account, pk)
	if err != nil {
		return err
	}
	if !ok {
		return models.ErrDeviceNotFound
	}
	r.log.Info("device accepted", "device", pk.String(), "account", account)
	return nil
}

func (r *Registry) SetTitle(ctx context.Context, account string, pk models.Pubkey, title string) error {
	ok, err := r.store.SetLinkedDeviceTitle(ctx, account, pk, title)
	if err != nil {
		return err
	}
	if !ok {
		return models.ErrDeviceNotFound
	}
	return nil
}

// SetLocalAddress stores the device's self-reported LAN address. Only
// dotted-quad IPv4 text is accepted; the stored value is left untouched otherwise.
func (r *Registry) SetLocalAddress(ctx context.Context, pk models.Pubkey, text string) error {
	addr, err := ParseIPv4(text)
	if err != nil {
		return err
	}
	return r.store.SetDeviceLocalAddress(ctx, pk, addr)
}

// ReplaceSchema overwrites the declared schema. Documents are never merged.
func (r *Registry) ReplaceSchema(ctx context.Context, pk models.Pubkey, schema json.RawMessage) error {
	schema, err := normalizeSchema(schema)
	if err != nil {
		return err
	}
	return r.store.SetDeviceSchema(ctx, pk, schema)
}

// ParseIPv4 validates dotted-quad IPv4 text and returns its canonical form.
func ParseIPv4(text string) (string, error) {
	addr, err := netip.ParseAddr(text)
	if err != nil || !addr.Is4() {
		return "", fmt.Errorf("%w: %q is not an IPv4 address", models.ErrInputMalformed, text)
	}
	return addr.String(), nil
}

func normalizeSchema(schema json.RawMessage) (json.RawMessage, error) {
	if len(schema) == 0 {
		return models.EmptySchema, nil
	}
	if !json.Valid(schema) {
		return nil, fmt.Errorf("%w: schema is not valid JSON", models.ErrInputMalformed)
	}
	return schema, nil
}
