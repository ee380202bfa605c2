package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"compliance-lab/internal/infrastructure/database"
	"compliance-lab/internal/metrics"
	"compliance-lab/pkg/logger"
)

// PostgresStore keeps each collection as one row of record_collections
type PostgresStore struct {
	db     *database.PostgresDB
	logger *logger.Logger
}

// NewPostgresStore creates a store on top of a migrated database
func NewPostgresStore(db *database.PostgresDB, log *logger.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: log.WithComponent("postgres-store"),
	}
}

// Backend implements Store
func (s *PostgresStore) Backend() string {
	return "postgres"
}

// Load implements Store
func (s *PostgresStore) Load(ctx context.Context, name string) ([]json.RawMessage, error) {
	items, err := s.load(ctx, name)
	metrics.ObserveStoreOp(s.Backend(), "load", ignoreExpected(err))
	return items, err
}

func (s *PostgresStore) load(ctx context.Context, name string) ([]json.RawMessage, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	var body string
	err := s.db.QueryRow(ctx, `SELECT body FROM record_collections WHERE name = $1`, name).Scan(&body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("failed to load collection %s: %w", name, err)
	}
	return DecodeCollection([]byte(body))
}

// Update implements Store. The row is created empty if missing and then
// locked with SELECT ... FOR UPDATE for the rest of the transaction.
func (s *PostgresStore) Update(ctx context.Context, name string, fn UpdateFunc) error {
	if err := validateName(name); err != nil {
		return err
	}

	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO record_collections (name, body) VALUES ($1, '[]') ON CONFLICT (name) DO NOTHING`,
			name,
		); err != nil {
			return fmt.Errorf("failed to ensure collection %s: %w", name, err)
		}

		var body string
		if err := tx.QueryRow(ctx,
			`SELECT body FROM record_collections WHERE name = $1 FOR UPDATE`, name,
		).Scan(&body); err != nil {
			return fmt.Errorf("failed to lock collection %s: %w", name, err)
		}

		items, err := DecodeCollection([]byte(body))
		if err != nil {
			return err
		}

		updated, err := fn(items)
		if err != nil {
			return err
		}

		data, err := EncodeCollection(updated)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`UPDATE record_collections SET body = $2, updated_at = now() WHERE name = $1`,
			name, string(data),
		); err != nil {
			return fmt.Errorf("failed to write collection %s: %w", name, err)
		}
		return nil
	})

	metrics.ObserveStoreOp(s.Backend(), "update", err)
	return err
}

// $2 is cast so floors beyond int4 encode
const nextSequenceSQL = `
	INSERT INTO record_sequences (name, value) VALUES ($1, $2::bigint + 1)
	ON CONFLICT (name) DO UPDATE
	SET value = GREATEST(record_sequences.value + 1, EXCLUDED.value)
	RETURNING value`

// NextSequence implements Store
func (s *PostgresStore) NextSequence(ctx context.Context, name string, floor int64) (int64, error) {
	var next int64
	err := s.db.QueryRow(ctx, nextSequenceSQL, name, floor).Scan(&next)

	metrics.ObserveStoreOp(s.Backend(), "sequence", err)
	if err != nil {
		return 0, fmt.Errorf("failed to advance sequence %s: %w", name, err)
	}
	return next, nil
}

// Ping implements Store
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Initialize creates empty rows for collections that do not exist yet
func (s *PostgresStore) Initialize(ctx context.Context, names ...string) error {
	for _, name := range names {
		if err := validateName(name); err != nil {
			return err
		}
		tag, err := s.db.Exec(ctx,
			`INSERT INTO record_collections (name, body) VALUES ($1, '[]') ON CONFLICT (name) DO NOTHING`,
			name,
		)
		if err != nil {
			return fmt.Errorf("failed to initialize %s: %w", name, err)
		}
		if tag.RowsAffected() > 0 {
			s.logger.Info().Str("collection", name).Msg("created empty collection")
		}
	}
	return nil
}
