package registry

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/devmesh/backend/internal/database"
	"github.com/devmesh/backend/internal/models"
)

// These tests run against a real PostgreSQL server and are skipped unless
// DATABASE_URL is set. Every test uses fresh account names and device ids and
// removes its rows afterwards.

func openTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := database.Open(ctx, url, database.PoolOptions{MaxConns: 4})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(pool.Close)
	if _, err := database.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}

func seedAccount(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()
	username := "test-" + uuid.NewString()
	ctx := context.Background()
	if _, err := pool.Exec(ctx, `
		INSERT INTO account (account_username, account_password, account_name)
		VALUES ($1, 'x', 'Test')
	`, username); err != nil {
		t.Fatalf("seed account: %v", err)
	}
	t.Cleanup(func() {
		_, _ = pool.Exec(ctx, `DELETE FROM link_account_device WHERE account_username = $1`, username)
		_, _ = pool.Exec(ctx, `DELETE FROM account WHERE account_username = $1`, username)
	})
	return username
}

func freshPubkey(t *testing.T, pool *pgxpool.Pool) models.Pubkey {
	t.Helper()
	var pk models.Pubkey
	a, b := uuid.New(), uuid.New()
	copy(pk[:16], a[:])
	copy(pk[16:], b[:])
	t.Cleanup(func() {
		ctx := context.Background()
		_, _ = pool.Exec(ctx, `DELETE FROM property WHERE device_pubkey = $1`, pk.Bytes())
		_, _ = pool.Exec(ctx, `DELETE FROM link_account_device WHERE device_pubkey = $1`, pk.Bytes())
		_, _ = pool.Exec(ctx, `DELETE FROM device WHERE device_pubkey = $1`, pk.Bytes())
	})
	return pk
}

func TestRepository_UpsertKeepsAcceptance(t *testing.T) {
	pool := openTestPool(t)
	repo := NewRepository(pool)
	ctx := context.Background()
	owner := seedAccount(t, pool)
	pk := freshPubkey(t, pool)

	first := &models.Device{Pubkey: pk, Title: "first", LocalAddress: "10.0.0.1", Schema: json.RawMessage(`{"a":1}`)}
	if err := repo.UpsertDevice(ctx, first, owner); err != nil {
		t.Fatalf("UpsertDevice: %v", err)
	}
	d, err := repo.GetLinkedDevice(ctx, owner, pk)
	if err != nil || d == nil {
		t.Fatalf("GetLinkedDevice: d=%v err=%v", d, err)
	}
	if d.Accepted {
		t.Error("new device must start unaccepted")
	}

	ok, err := repo.AcceptLinkedDevice(ctx, owner, pk)
	if err != nil || !ok {
		t.Fatalf("AcceptLinkedDevice: ok=%v err=%v", ok, err)
	}

	second := &models.Device{Pubkey: pk, Title: "second", LocalAddress: "10.0.0.2", Schema: json.RawMessage(`{"b":2}`)}
	if err := repo.UpsertDevice(ctx, second, owner); err != nil {
		t.Fatalf("second UpsertDevice: %v", err)
	}
	d, err = repo.GetLinkedDevice(ctx, owner, pk)
	if err != nil {
		t.Fatalf("GetLinkedDevice: %v", err)
	}
	if d.Title != "second" || d.LocalAddress != "10.0.0.2" {
		t.Errorf("re-registration did not overwrite fields: %+v", d)
	}
	if !d.Accepted {
		t.Error("re-registration reset the acceptance flag")
	}
	var schema map[string]int
	if err := json.Unmarshal(d.Schema, &schema); err != nil || schema["b"] != 2 || len(schema) != 1 {
		t.Errorf("schema not replaced whole: %s", d.Schema)
	}
}

func TestRepository_LinkGatedUpdates(t *testing.T) {
	pool := openTestPool(t)
	repo := NewRepository(pool)
	ctx := context.Background()
	owner := seedAccount(t, pool)
	stranger := seedAccount(t, pool)
	pk := freshPubkey(t, pool)

	if err := repo.UpsertDevice(ctx, &models.Device{Pubkey: pk, Title: "lamp", Schema: models.EmptySchema}, owner); err != nil {
		t.Fatalf("UpsertDevice: %v", err)
	}

	if d, err := repo.GetLinkedDevice(ctx, stranger, pk); err != nil || d != nil {
		t.Errorf("unlinked account sees the device: d=%v err=%v", d, err)
	}
	ok, err := repo.AcceptLinkedDevice(ctx, stranger, pk)
	if err != nil || ok {
		t.Errorf("unlinked accept: ok=%v err=%v", ok, err)
	}
	ok, err = repo.SetLinkedDeviceTitle(ctx, stranger, pk, "hijacked")
	if err != nil || ok {
		t.Errorf("unlinked title change: ok=%v err=%v", ok, err)
	}

	d, err := repo.GetLinkedDevice(ctx, owner, pk)
	if err != nil {
		t.Fatalf("GetLinkedDevice: %v", err)
	}
	if d.Accepted || d.Title != "lamp" {
		t.Errorf("unlinked updates changed the device: %+v", d)
	}

	if ok, err := repo.SetLinkedDeviceTitle(ctx, owner, pk, "porch"); err != nil || !ok {
		t.Fatalf("linked title change: ok=%v err=%v", ok, err)
	}
	if ok, err := repo.AcceptLinkedDevice(ctx, owner, pk); err != nil || !ok {
		t.Fatalf("linked accept: ok=%v err=%v", ok, err)
	}
}

func TestRepository_UpsertUnknownAccountRollsBack(t *testing.T) {
	pool := openTestPool(t)
	repo := NewRepository(pool)
	ctx := context.Background()
	pk := freshPubkey(t, pool)

	err := repo.UpsertDevice(ctx, &models.Device{Pubkey: pk, Schema: models.EmptySchema}, "missing-"+uuid.NewString())
	if !errors.Is(err, models.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	var exists bool
	if err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM device WHERE device_pubkey = $1)`, pk.Bytes()).Scan(&exists); err != nil {
		t.Fatalf("query: %v", err)
	}
	if exists {
		t.Error("device row survived the failed registration")
	}
}
