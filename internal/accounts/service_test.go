package accounts

import (
	"context"
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/devmesh/backend/internal/auth"
	"github.com/devmesh/backend/internal/memstore"
	"github.com/devmesh/backend/internal/models"
)

var _ Store = (*memstore.Store)(nil)

func newDirectory(t *testing.T) (*Directory, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	d := NewDirectory(store, auth.NewCredentials(bcrypt.MinCost), nil)
	if _, err := d.EnsureRoot(context.Background(), "rootpw"); err != nil {
		t.Fatalf("EnsureRoot: %v", err)
	}
	return d, store
}

func usernames(list []*models.Account) map[string]bool {
	out := make(map[string]bool, len(list))
	for _, a := range list {
		out[a.Username] = true
	}
	return out
}

func TestEnsureRoot_Idempotent(t *testing.T) {
	d, _ := newDirectory(t)
	ctx := context.Background()

	created, err := d.EnsureRoot(ctx, "other")
	if err != nil {
		t.Fatalf("EnsureRoot: %v", err)
	}
	if created {
		t.Error("second EnsureRoot reported creation")
	}
	// The original password survives a second bootstrap.
	if _, err := d.Authenticate(ctx, models.RootUsername, "rootpw"); err != nil {
		t.Errorf("root password changed by second bootstrap: %v", err)
	}
}

func TestCreate_OwnedByRootAndOwner(t *testing.T) {
	d, _ := newDirectory(t)
	ctx := context.Background()

	if _, err := d.Create(ctx, "alice", "pw", "Alice", ""); err != nil {
		t.Fatalf("create alice: %v", err)
	}
	if _, err := d.Create(ctx, "bob", "pw", "Bob", "alice"); err != nil {
		t.Fatalf("create bob: %v", err)
	}

	aliceOwns, err := d.ListOwned(ctx, "alice")
	if err != nil {
		t.Fatalf("ListOwned alice: %v", err)
	}
	if !usernames(aliceOwns)["bob"] {
		t.Errorf("alice should own bob, got %v", usernames(aliceOwns))
	}

	rootOwns, err := d.ListOwned(ctx, models.RootUsername)
	if err != nil {
		t.Fatalf("ListOwned admin: %v", err)
	}
	got := usernames(rootOwns)
	if !got["alice"] || !got["bob"] {
		t.Errorf("admin should own alice and bob, got %v", got)
	}
	if len(rootOwns) != 2 {
		t.Errorf("admin edges: got %d, want 2 (no duplicate edge for alice)", len(rootOwns))
	}
}

func TestCreate_DuplicateKeepsOriginalHash(t *testing.T) {
	d, store := newDirectory(t)
	ctx := context.Background()

	if _, err := d.Create(ctx, "carol", "first", "Carol", ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	before, _ := store.GetAccount(ctx, "carol")

	_, err := d.Create(ctx, "carol", "second", "Carol 2", "")
	if !errors.Is(err, models.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	after, _ := store.GetAccount(ctx, "carol")
	if after.PasswordHash != before.PasswordHash {
		t.Error("duplicate create changed the stored hash")
	}
	if _, err := d.Authenticate(ctx, "carol", "first"); err != nil {
		t.Errorf("original password no longer verifies: %v", err)
	}
}

func TestCreate_Errors(t *testing.T) {
	d, _ := newDirectory(t)
	ctx := context.Background()

	cases := []struct {
		name     string
		username string
		password string
		owner    string
		want     error
	}{
		{"missing owner", "dave", "pw", "ghost", models.ErrAccountNotFound},
		{"root via create", models.RootUsername, "pw", "", models.ErrAlreadyExists},
		{"empty username", "", "pw", "", models.ErrInputMalformed},
		{"padded username", " eve", "pw", "", models.ErrInputMalformed},
		{"empty password", "frank", "", "", models.ErrInputMalformed},
		{"overlong password", "gina", strings.Repeat("p", auth.MaxPasswordBytes+1), "", models.ErrInputMalformed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := d.Create(ctx, tc.username, tc.password, "x", tc.owner)
			if !errors.Is(err, tc.want) {
				t.Errorf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestListOwned_OneHopOnly(t *testing.T) {
	d, store := newDirectory(t)
	ctx := context.Background()

	for _, c := range []struct{ user, owner string }{
		{"a", ""}, {"b", "a"}, {"c", "b"},
	} {
		if _, err := d.Create(ctx, c.user, "pw", c.user, c.owner); err != nil {
			t.Fatalf("create %s: %v", c.user, err)
		}
	}
	// A cycle must not break listing.
	store.AddEdge("c", "a")

	aOwns, _ := d.ListOwned(ctx, "a")
	if got := usernames(aOwns); len(got) != 1 || !got["b"] {
		t.Errorf("a owns: got %v, want only b", got)
	}
	cOwns, _ := d.ListOwned(ctx, "c")
	if got := usernames(cOwns); len(got) != 1 || !got["a"] {
		t.Errorf("c owns: got %v, want only a", got)
	}

	nobody, err := d.ListOwned(ctx, "nobody")
	if err != nil || nobody == nil || len(nobody) != 0 {
		t.Errorf("ListOwned unknown: got %v, %v; want empty non-nil", nobody, err)
	}
}

func TestAuthenticate(t *testing.T) {
	d, _ := newDirectory(t)
	ctx := context.Background()
	if _, err := d.Create(ctx, "gina", "pw", "Gina", ""); err != nil {
		t.Fatalf("create: %v", err)
	}

	if acc, err := d.Authenticate(ctx, "gina", "pw"); err != nil || acc.Username != "gina" {
		t.Fatalf("Authenticate: %v, %v", acc, err)
	}
	if _, err := d.Authenticate(ctx, "gina", "nope"); !errors.Is(err, models.ErrInvalidCredentials) {
		t.Errorf("wrong password: got %v", err)
	}
	if _, err := d.Authenticate(ctx, "nobody", "pw"); !errors.Is(err, models.ErrInvalidCredentials) {
		t.Errorf("unknown user: got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	d, _ := newDirectory(t)
	ctx := context.Background()
	if _, err := d.Create(ctx, "hank", "old", "Hank", ""); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := d.ChangePassword(ctx, "hank", "new"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, err := d.Authenticate(ctx, "hank", "new"); err != nil {
		t.Errorf("new password rejected: %v", err)
	}
	if _, err := d.Authenticate(ctx, "hank", "old"); !errors.Is(err, models.ErrInvalidCredentials) {
		t.Errorf("old password still accepted: %v", err)
	}
	if err := d.ChangePassword(ctx, "ghost", "x"); !errors.Is(err, models.ErrAccountNotFound) {
		t.Errorf("unknown account: got %v", err)
	}
	if err := d.ChangePassword(ctx, "hank", ""); !errors.Is(err, models.ErrInputMalformed) {
		t.Errorf("empty password: got %v", err)
	}
	if err := d.ChangePassword(ctx, "hank", strings.Repeat("p", auth.MaxPasswordBytes+1)); !errors.Is(err, models.ErrInputMalformed) {
		t.Errorf("overlong password: got %v", err)
	}
	if _, err := d.Authenticate(ctx, "hank", "new"); err != nil {
		t.Errorf("rejected change altered the password: %v", err)
	}
	if err := d.ChangePassword(ctx, "hank", strings.Repeat("p", auth.MaxPasswordBytes)); err != nil {
		t.Errorf("password at the limit: %v", err)
	}
}

func TestStoreUnavailablePropagates(t *testing.T) {
	d, store := newDirectory(t)
	store.Fail = models.ErrStoreUnavailable

	_, err := d.Create(context.Background(), "ivy", "pw", "Ivy", "")
	if !errors.Is(err, models.ErrStoreUnavailable) {
		t.Errorf("got %v, want ErrStoreUnavailable", err)
	}
}
