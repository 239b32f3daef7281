// Package storage implements a PostgreSQL-backed NoteStorageProvider: one
// reference persistence layer for discovery checkpoints, swappable by any
// host application that implements the same four operations differently.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shinobi-cash/shinobi-sdk/pkg/types"
)

// Common errors.
var (
	ErrDBConnection = errors.New("storage: database connection error")
)

// Config holds database configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int32
}

// DefaultConfig returns a development-friendly local Postgres configuration.
func DefaultConfig() *Config {
	return &Config{
		Host:     "localhost",
		Port:     5432,
		User:     "shinobi",
		Password: "",
		Database: "shinobi",
		SSLMode:  "disable",
		MaxConns: 20,
	}
}

// PostgresStore implements discovery.NoteStorageProvider against a
// PostgreSQL database. Each (publicKey, poolAddress) pair's checkpoint
// lives in one row of discovery_checkpoints; its materialized notes live
// one row per note in discovery_notes, keyed by (publicKey, poolAddress,
// depositIndex, changeIndex).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore opens a connection pool and verifies connectivity.
func NewPostgresStore(ctx context.Context, cfg *Config) (*PostgresStore, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode, cfg.MaxConns,
	)

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDBConnection, err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDBConnection, err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: applying schema: %w", err)
	}
	return store, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS discovery_checkpoints (
	public_key TEXT NOT NULL,
	pool_address TEXT NOT NULL,
	last_used_deposit_index BIGINT NOT NULL DEFAULT 0,
	has_last_used_deposit_index BOOLEAN NOT NULL DEFAULT FALSE,
	last_processed_cursor TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (public_key, pool_address)
);

CREATE TABLE IF NOT EXISTS discovery_notes (
	public_key TEXT NOT NULL,
	pool_address TEXT NOT NULL,
	deposit_index BIGINT NOT NULL,
	change_index BIGINT NOT NULL,
	kind SMALLINT NOT NULL,
	amount BIGINT NOT NULL DEFAULT 0,
	has_amount BOOLEAN NOT NULL DEFAULT FALSE,
	label TEXT,
	has_label BOOLEAN NOT NULL DEFAULT FALSE,
	status SMALLINT NOT NULL DEFAULT 0,
	is_activated BOOLEAN NOT NULL DEFAULT FALSE,
	refund_commitment TEXT,
	origin_tx_hash TEXT NOT NULL,
	destination_tx_hash TEXT,
	origin_chain_id BIGINT NOT NULL DEFAULT 0,
	destination_chain_id BIGINT,
	block_number BIGINT NOT NULL DEFAULT 0,
	timestamp BIGINT NOT NULL DEFAULT 0,
	PRIMARY KEY (public_key, pool_address, deposit_index, change_index)
);

CREATE INDEX IF NOT EXISTS idx_discovery_notes_deposit ON discovery_notes (public_key, pool_address, deposit_index);
`

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// GetCachedNotes returns the persisted checkpoint for (pk, pool), or nil if
// none exists yet. Absence is equivalent to an empty state.
func (s *PostgresStore) GetCachedNotes(ctx context.Context, pk types.Field, pool types.Address) (*types.DiscoveryCheckpoint, error) {
	var lastUsed int64
	var hasLastUsed bool
	var cursor string

	err := s.pool.QueryRow(ctx, `
		SELECT last_used_deposit_index, has_last_used_deposit_index, last_processed_cursor
		FROM discovery_checkpoints WHERE public_key = $1 AND pool_address = $2
	`, pk.Decimal(), pool.Hex()).Scan(&lastUsed, &hasLastUsed, &cursor)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: reading checkpoint: %w", err)
	}

	chains, err := s.loadNotes(ctx, pk, pool)
	if err != nil {
		return nil, err
	}

	return &types.DiscoveryCheckpoint{
		Notes:                   chains,
		LastUsedDepositIndex:    uint64(lastUsed),
		HasLastUsedDepositIndex: hasLastUsed,
		LastProcessedCursor:     cursor,
	}, nil
}

func (s *PostgresStore) loadNotes(ctx context.Context, pk types.Field, pool types.Address) ([]types.NoteChain, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT deposit_index, change_index, kind, amount, has_amount, label, has_label,
		       status, is_activated, refund_commitment,
		       origin_tx_hash, destination_tx_hash, origin_chain_id, destination_chain_id,
		       block_number, timestamp
		FROM discovery_notes
		WHERE public_key = $1 AND pool_address = $2
		ORDER BY deposit_index ASC, change_index ASC
	`, pk.Decimal(), pool.Hex())
	if err != nil {
		return nil, fmt.Errorf("storage: reading notes: %w", err)
	}
	defer rows.Close()

	var chains []types.NoteChain
	var current types.NoteChain
	var currentDepositIndex uint64
	haveCurrent := false

	for rows.Next() {
		var depositIndex, changeIndex uint64
		var kind, status uint8
		var amount int64
		var hasAmount, hasLabel, isActivated bool
		var label, refundCommitment, destTxHash *string
		var originTxHash string
		var originChainID uint64
		var destChainID *uint64
		var blockNumber, timestamp uint64

		if err := rows.Scan(
			&depositIndex, &changeIndex, &kind, &amount, &hasAmount, &label, &hasLabel,
			&status, &isActivated, &refundCommitment,
			&originTxHash, &destTxHash, &originChainID, &destChainID,
			&blockNumber, &timestamp,
		); err != nil {
			return nil, fmt.Errorf("storage: scanning note row: %w", err)
		}

		note := &types.Note{
			Coordinate: types.NoteCoordinate{
				PoolAddress:  pool,
				DepositIndex: depositIndex,
				ChangeIndex:  changeIndex,
				Kind:         types.NoteKind(kind),
			},
			Status:      types.NoteStatus(status),
			IsActivated: isActivated,
			OriginChainID:  originChainID,
			DestinationChainID: destChainID,
			BlockNumber: blockNumber,
			Timestamp:   timestamp,
		}
		if hasAmount {
			a := uint64(amount)
			note.Amount = &a
		}
		if hasLabel && label != nil {
			f, err := types.ParseField(*label)
			if err != nil {
				return nil, fmt.Errorf("storage: parsing stored label: %w", err)
			}
			note.Label = &f
		}
		if refundCommitment != nil {
			f, err := types.ParseField(*refundCommitment)
			if err != nil {
				return nil, fmt.Errorf("storage: parsing stored refund commitment: %w", err)
			}
			note.RefundCommitment = &f
		}
		if originTx, err := types.ParseField(originTxHash); err == nil {
			note.OriginTransactionHash = originTx
		}
		if destTxHash != nil {
			if f, err := types.ParseField(*destTxHash); err == nil {
				note.DestinationTransactionHash = &f
			}
		}

		if !haveCurrent || depositIndex != currentDepositIndex {
			if haveCurrent {
				chains = append(chains, current)
			}
			current = types.NoteChain{}
			currentDepositIndex = depositIndex
			haveCurrent = true
		}
		current = append(current, note)
	}
	if haveCurrent {
		chains = append(chains, current)
	}

	return chains, nil
}

// StoreDiscoveredNotes is write-through: it upserts the checkpoint cursor
// and every note in notes within a single transaction.
func (s *PostgresStore) StoreDiscoveredNotes(ctx context.Context, pk types.Field, pool types.Address, notes []types.NoteChain, cursor string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage: beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO discovery_checkpoints (public_key, pool_address, last_processed_cursor)
		VALUES ($1, $2, $3)
		ON CONFLICT (public_key, pool_address) DO UPDATE SET last_processed_cursor = $3
	`, pk.Decimal(), pool.Hex(), cursor)
	if err != nil {
		return fmt.Errorf("storage: upserting checkpoint cursor: %w", err)
	}

	for _, chain := range notes {
		for _, note := range chain {
			if err := upsertNote(ctx, tx, pk, pool, note); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("storage: committing checkpoint: %w", err)
	}
	return nil
}

func upsertNote(ctx context.Context, tx pgx.Tx, pk types.Field, pool types.Address, note *types.Note) error {
	var amount int64
	hasAmount := note.Amount != nil
	if hasAmount {
		amount = int64(*note.Amount)
	}

	var label *string
	hasLabel := note.Label != nil
	if hasLabel {
		s := note.Label.Decimal()
		label = &s
	}

	var refundCommitment *string
	if note.RefundCommitment != nil {
		s := note.RefundCommitment.Decimal()
		refundCommitment = &s
	}

	var destTxHash *string
	if note.DestinationTransactionHash != nil {
		s := note.DestinationTransactionHash.Decimal()
		destTxHash = &s
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO discovery_notes (
			public_key, pool_address, deposit_index, change_index, kind,
			amount, has_amount, label, has_label, status, is_activated,
			refund_commitment, origin_tx_hash, destination_tx_hash,
			origin_chain_id, destination_chain_id, block_number, timestamp
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		ON CONFLICT (public_key, pool_address, deposit_index, change_index) DO UPDATE SET
			amount = $6, has_amount = $7, label = $8, has_label = $9,
			status = $10, is_activated = $11, refund_commitment = $12,
			destination_tx_hash = $14, destination_chain_id = $16
	`,
		pk.Decimal(), pool.Hex(), note.Coordinate.DepositIndex, note.Coordinate.ChangeIndex, uint8(note.Coordinate.Kind),
		amount, hasAmount, label, hasLabel, uint8(note.Status), note.IsActivated,
		refundCommitment, note.OriginTransactionHash.Decimal(), destTxHash,
		note.OriginChainID, note.DestinationChainID, note.BlockNumber, note.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("storage: upserting note (deposit=%d change=%d): %w", note.Coordinate.DepositIndex, note.Coordinate.ChangeIndex, err)
	}
	return nil
}

// GetNextDepositIndex returns one past the highest deposit_index recorded
// for (pk, pool), or 0 if none has been recorded yet.
func (s *PostgresStore) GetNextDepositIndex(ctx context.Context, pk types.Field, pool types.Address) (uint64, error) {
	var maxIndex *int64
	err := s.pool.QueryRow(ctx, `
		SELECT MAX(deposit_index) FROM discovery_notes
		WHERE public_key = $1 AND pool_address = $2 AND change_index = 0
	`, pk.Decimal(), pool.Hex()).Scan(&maxIndex)
	if err != nil {
		return 0, fmt.Errorf("storage: reading next deposit index: %w", err)
	}
	if maxIndex == nil {
		return 0, nil
	}
	return uint64(*maxIndex) + 1, nil
}

// UpdateLastUsedDepositIndex records the highest deposit index known to
// belong to this account, supporting forward-only growth.
func (s *PostgresStore) UpdateLastUsedDepositIndex(ctx context.Context, pk types.Field, pool types.Address, depositIndex uint64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO discovery_checkpoints (public_key, pool_address, last_used_deposit_index, has_last_used_deposit_index)
		VALUES ($1, $2, $3, TRUE)
		ON CONFLICT (public_key, pool_address) DO UPDATE SET
			last_used_deposit_index = $3, has_last_used_deposit_index = TRUE
	`, pk.Decimal(), pool.Hex(), depositIndex)
	if err != nil {
		return fmt.Errorf("storage: updating last used deposit index: %w", err)
	}
	return nil
}
