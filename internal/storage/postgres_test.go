package storage

import (
	"context"
	"os"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shinobi-cash/shinobi-sdk/pkg/types"
)

// requireTestDB skips the test unless SHINOBI_TEST_DATABASE_URL points at a
// disposable PostgreSQL instance; it connects to that URL and applies the
// discovery_checkpoints/discovery_notes schema. These tests exercise real
// SQL, not a mock driver.
func requireTestDB(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("SHINOBI_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("SHINOBI_TEST_DATABASE_URL not set; skipping Postgres integration test")
	}

	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connecting to test database: %v", err)
	}
	store := &PostgresStore{pool: pool}
	if err := store.migrate(context.Background()); err != nil {
		pool.Close()
		t.Fatalf("applying schema to test database: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func TestGetCachedNotesReturnsNilWhenAbsent(t *testing.T) {
	store := requireTestDB(t)

	pk := types.NewFieldFromUint64(1)
	pool := common.HexToAddress("0x00000000000000000000000000000000000006")

	checkpoint, err := store.GetCachedNotes(context.Background(), pk, pool)
	if err != nil {
		t.Fatal(err)
	}
	if checkpoint != nil {
		t.Fatal("expected nil checkpoint for an account never seen before")
	}
}

func TestStoreAndReloadDiscoveredNotes(t *testing.T) {
	store := requireTestDB(t)
	ctx := context.Background()

	pk := types.NewFieldFromUint64(2)
	pool := common.HexToAddress("0x00000000000000000000000000000000000007")
	amount := uint64(1000)
	label := types.NewFieldFromUint64(42)

	chain := types.NoteChain{{
		Coordinate: types.NoteCoordinate{PoolAddress: pool, DepositIndex: 0, ChangeIndex: 0, Kind: types.NoteKindDeposit},
		Amount:     &amount,
		Label:      &label,
		Status:     types.NoteStatusUnspent,
		IsActivated: true,
	}}

	if err := store.StoreDiscoveredNotes(ctx, pk, pool, []types.NoteChain{chain}, "cursor-1"); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateLastUsedDepositIndex(ctx, pk, pool, 0); err != nil {
		t.Fatal(err)
	}

	checkpoint, err := store.GetCachedNotes(ctx, pk, pool)
	if err != nil {
		t.Fatal(err)
	}
	if checkpoint == nil {
		t.Fatal("expected a checkpoint after storing notes")
	}
	if checkpoint.LastProcessedCursor != "cursor-1" {
		t.Fatalf("cursor = %q, want %q", checkpoint.LastProcessedCursor, "cursor-1")
	}
	if !checkpoint.HasLastUsedDepositIndex || checkpoint.LastUsedDepositIndex != 0 {
		t.Fatal("expected last-used deposit index 0 to round-trip")
	}
	if len(checkpoint.Notes) != 1 || len(checkpoint.Notes[0]) != 1 {
		t.Fatalf("expected one chain with one note, got %v", checkpoint.Notes)
	}

	next, err := store.GetNextDepositIndex(ctx, pk, pool)
	if err != nil {
		t.Fatal(err)
	}
	if next != 1 {
		t.Fatalf("GetNextDepositIndex = %d, want 1", next)
	}
}
