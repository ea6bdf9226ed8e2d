// Package memstore is an in-process implementation of the account, device and
// property stores. It backs the "memory" store driver for local development
// and the package tests. Data is lost when the process exits.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/devmesh/backend/internal/models"
)

type edge struct {
	owner, derived string
}

type link struct {
	account string
	pk      models.Pubkey
}

type propKey struct {
	pk   models.Pubkey
	name string
}

// Store mirrors the relational schema: foreign keys are enforced and
// duplicate edges and links are ignored.
type Store struct {
	mu         sync.RWMutex
	accounts   map[string]models.Account
	edges      map[edge]struct{}
	devices    map[models.Pubkey]*models.Device
	links      map[link]struct{}
	properties map[propKey]json.RawMessage

	// Fail, when set, is returned by every call. Tests use it to simulate an
	// unreachable store.
	Fail error
}

func New() *Store {
	return &Store{
		accounts:   make(map[string]models.Account),
		edges:      make(map[edge]struct{}),
		devices:    make(map[models.Pubkey]*models.Device),
		links:      make(map[link]struct{}),
		properties: make(map[propKey]json.RawMessage),
	}
}

// Ping reports Fail, so the health check sees a simulated outage.
func (s *Store) Ping(context.Context) error {
	return s.Fail
}

// ---------------------------------------------------------------------------
// Accounts
// ---------------------------------------------------------------------------

func (s *Store) CreateAccount(_ context.Context, a *models.Account, owners []string) error {
	if s.Fail != nil {
		return s.Fail
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[a.Username]; ok {
		return models.ErrAlreadyExists
	}
	for _, owner := range owners {
		if _, ok := s.accounts[owner]; !ok && owner != a.Username {
			return fmt.Errorf("owner %q: %w", owner, models.ErrAccountNotFound)
		}
	}
	s.accounts[a.Username] = *a
	for _, owner := range owners {
		s.edges[edge{owner: owner, derived: a.Username}] = struct{}{}
	}
	return nil
}

func (s *Store) EnsureAccount(_ context.Context, a *models.Account) (bool, error) {
	if s.Fail != nil {
		return false, s.Fail
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[a.Username]; ok {
		return false, nil
	}
	s.accounts[a.Username] = *a
	return true, nil
}

func (s *Store) GetAccount(_ context.Context, username string) (*models.Account, error) {
	if s.Fail != nil {
		return nil, s.Fail
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[username]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (s *Store) UpdatePassword(_ context.Context, username, passwordHash string) error {
	if s.Fail != nil {
		return s.Fail
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[username]
	if !ok {
		return models.ErrAccountNotFound
	}
	a.PasswordHash = passwordHash
	s.accounts[username] = a
	return nil
}

func (s *Store) ListOwned(_ context.Context, owner string) ([]*models.Account, error) {
	if s.Fail != nil {
		return nil, s.Fail
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var list []*models.Account
	for e := range s.edges {
		if e.owner != owner {
			continue
		}
		a := s.accounts[e.derived]
		list = append(list, &a)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Username < list[j].Username })
	return list, nil
}

// AddEdge inserts an ownership edge directly, for building graphs the
// account-creation path cannot produce (a second owner, cycles).
func (s *Store) AddEdge(owner, derived string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edges[edge{owner: owner, derived: derived}] = struct{}{}
}

// ---------------------------------------------------------------------------
// Devices
// ---------------------------------------------------------------------------

func (s *Store) UpsertDevice(_ context.Context, d *models.Device, account string) error {
	if s.Fail != nil {
		return s.Fail
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[account]; !ok {
		return fmt.Errorf("link account %q: %w", account, models.ErrAccountNotFound)
	}
	existing, ok := s.devices[d.Pubkey]
	if !ok {
		cp := d.Clone()
		cp.Accepted = false
		s.devices[d.Pubkey] = cp
	} else {
		existing.Title = d.Title
		existing.LocalAddress = d.LocalAddress
		existing.Schema = append(json.RawMessage(nil), d.Schema...)
	}
	s.links[link{account: account, pk: d.Pubkey}] = struct{}{}
	return nil
}

func (s *Store) GetLinkedDevice(_ context.Context, account string, pk models.Pubkey) (*models.Device, error) {
	if s.Fail != nil {
		return nil, s.Fail
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.links[link{account: account, pk: pk}]; !ok {
		return nil, nil
	}
	return s.devices[pk].Clone(), nil
}

func (s *Store) ListLinkedDevices(_ context.Context, account string) ([]*models.Device, error) {
	if s.Fail != nil {
		return nil, s.Fail
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var list []*models.Device
	for l := range s.links {
		if l.account == account {
			list = append(list, s.devices[l.pk].Clone())
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Title != list[j].Title {
			return list[i].Title < list[j].Title
		}
		return string(list[i].Pubkey[:]) < string(list[j].Pubkey[:])
	})
	return list, nil
}

func (s *Store) AcceptLinkedDevice(_ context.Context, account string, pk models.Pubkey) (bool, error) {
	if s.Fail != nil {
		return false, s.Fail
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.links[link{account: account, pk: pk}]; !ok {
		return false, nil
	}
	s.devices[pk].Accepted = true
	return true, nil
}

func (s *Store) SetLinkedDeviceTitle(_ context.Context, account string, pk models.Pubkey, title string) (bool, error) {
	if s.Fail != nil {
		return false, s.Fail
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.links[link{account: account, pk: pk}]; !ok {
		return false, nil
	}
	s.devices[pk].Title = title
	return true, nil
}

func (s *Store) SetDeviceLocalAddress(_ context.Context, pk models.Pubkey, addr string) error {
	if s.Fail != nil {
		return s.Fail
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.devices[pk]; ok {
		d.LocalAddress = addr
	}
	return nil
}

func (s *Store) SetDeviceSchema(_ context.Context, pk models.Pubkey, schema json.RawMessage) error {
	if s.Fail != nil {
		return s.Fail
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.devices[pk]; ok {
		d.Schema = append(json.RawMessage(nil), schema...)
	}
	return nil
}

// Device returns the stored device regardless of links.
func (s *Store) Device(pk models.Pubkey) *models.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.devices[pk].Clone()
}

// ---------------------------------------------------------------------------
// Properties
// ---------------------------------------------------------------------------

func (s *Store) UpsertProperty(_ context.Context, pk models.Pubkey, name string, value json.RawMessage) error {
	if s.Fail != nil {
		return s.Fail
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.devices[pk]; !ok {
		return fmt.Errorf("device %s: %w", pk, models.ErrDeviceNotFound)
	}
	s.properties[propKey{pk: pk, name: name}] = append(json.RawMessage(nil), value...)
	return nil
}

func (s *Store) GetProperty(_ context.Context, pk models.Pubkey, name string) (json.RawMessage, error) {
	if s.Fail != nil {
		return nil, s.Fail
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.properties[propKey{pk: pk, name: name}]
	if !ok {
		return nil, nil
	}
	return append(json.RawMessage(nil), v...), nil
}
