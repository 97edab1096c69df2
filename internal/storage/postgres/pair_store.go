package postgres

import (
	"context"
	"fmt"
	"time"

	"dexwatch/internal/domain"
	"dexwatch/internal/storage"
)

// PairStore implements storage.PairStore using PostgreSQL. Metadata lives
// in pair_records, samples in pair_samples keyed by (pair_address, kind).
type PairStore struct {
	pool      *Pool
	retention int
}

// NewPairStore creates a new PairStore with the given history retention
// limit.
func NewPairStore(pool *Pool, retention int) *PairStore {
	return &PairStore{pool: pool, retention: retention}
}

// Compile-time interface check.
var _ storage.PairStore = (*PairStore)(nil)

// UpsertMetadata creates the pair record or overwrites its metadata.
func (s *PairStore) UpsertMetadata(ctx context.Context, pairAddress string, meta domain.PairMetadata) error {
	if pairAddress == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO pair_records (
			pair_address, chain_id, pair_name,
			base_token_address, base_token_symbol, base_token_decimals,
			quote_token_address, quote_token_symbol, quote_token_name, quote_token_decimals,
			last_updated
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (pair_address) DO UPDATE SET
			chain_id = EXCLUDED.chain_id,
			pair_name = EXCLUDED.pair_name,
			base_token_address = EXCLUDED.base_token_address,
			base_token_symbol = EXCLUDED.base_token_symbol,
			base_token_decimals = EXCLUDED.base_token_decimals,
			quote_token_address = EXCLUDED.quote_token_address,
			quote_token_symbol = EXCLUDED.quote_token_symbol,
			quote_token_name = EXCLUDED.quote_token_name,
			quote_token_decimals = EXCLUDED.quote_token_decimals,
			last_updated = EXCLUDED.last_updated
	`

	_, err := s.pool.Exec(ctx, query,
		pairAddress,
		meta.ChainID,
		meta.PairName,
		meta.BaseToken.Address,
		meta.BaseToken.Symbol,
		meta.BaseToken.Decimals,
		meta.QuoteToken.Address,
		meta.QuoteToken.Symbol,
		meta.QuoteToken.Name,
		meta.QuoteToken.Decimals,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert pair metadata: %w", err)
	}
	return nil
}

// AppendSample appends one point per series and prunes each series to the
// retention limit, all in one transaction.
func (s *PairStore) AppendSample(ctx context.Context, pairAddress string, price, volume, liquidity float64, ts time.Time) error {
	if pairAddress == "" {
		return storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin append tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pair_records WHERE pair_address = $1)`,
		pairAddress,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check pair record: %w", err)
	}
	if !exists {
		return storage.ErrNotFound
	}

	samples := []struct {
		kind  domain.SeriesKind
		value float64
	}{
		{domain.SeriesPrice, price},
		{domain.SeriesVolume, volume},
		{domain.SeriesLiquidity, liquidity},
	}

	for _, sample := range samples {
		_, err = tx.Exec(ctx,
			`INSERT INTO pair_samples (pair_address, kind, value, ts) VALUES ($1, $2, $3, $4)`,
			pairAddress, string(sample.kind), sample.value, ts.UTC(),
		)
		if err != nil {
			return fmt.Errorf("insert %s sample: %w", sample.kind, err)
		}

		// FIFO prune: drop everything older than the newest N samples.
		_, err = tx.Exec(ctx, `
			DELETE FROM pair_samples
			WHERE id IN (
				SELECT id FROM pair_samples
				WHERE pair_address = $1 AND kind = $2
				ORDER BY ts DESC, id DESC
				OFFSET $3
			)`,
			pairAddress, string(sample.kind), s.retention,
		)
		if err != nil {
			return fmt.Errorf("prune %s samples: %w", sample.kind, err)
		}
	}

	_, err = tx.Exec(ctx,
		`UPDATE pair_records SET last_updated = $2 WHERE pair_address = $1`,
		pairAddress, ts.UTC(),
	)
	if err != nil {
		return fmt.Errorf("touch pair record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit append tx: %w", err)
	}
	return nil
}

// GetSeries returns the bounded series of the given kind, oldest first.
// Absent records yield an empty slice.
func (s *PairStore) GetSeries(ctx context.Context, pairAddress string, kind domain.SeriesKind) ([]domain.SamplePoint, error) {
	if !kind.IsValid() {
		return nil, storage.ErrInvalidInput
	}

	rows, err := s.pool.Query(ctx, `
		SELECT value, ts FROM pair_samples
		WHERE pair_address = $1 AND kind = $2
		ORDER BY ts ASC, id ASC`,
		pairAddress, string(kind),
	)
	if err != nil {
		return nil, fmt.Errorf("query %s series: %w", kind, err)
	}
	defer rows.Close()

	series := []domain.SamplePoint{}
	for rows.Next() {
		var p domain.SamplePoint
		if err := rows.Scan(&p.Value, &p.Timestamp); err != nil {
			return nil, fmt.Errorf("scan %s sample: %w", kind, err)
		}
		series = append(series, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s series: %w", kind, err)
	}
	return series, nil
}

// GetRecord retrieves the full pair record including all three series.
func (s *PairStore) GetRecord(ctx context.Context, pairAddress string) (*domain.PairRecord, error) {
	query := `
		SELECT pair_address, chain_id, pair_name,
			base_token_address, base_token_symbol, base_token_decimals,
			quote_token_address, quote_token_symbol, quote_token_name, quote_token_decimals,
			last_updated
		FROM pair_records
		WHERE pair_address = $1
	`

	var rec domain.PairRecord
	err := s.pool.QueryRow(ctx, query, pairAddress).Scan(
		&rec.PairAddress,
		&rec.Metadata.ChainID,
		&rec.Metadata.PairName,
		&rec.Metadata.BaseToken.Address,
		&rec.Metadata.BaseToken.Symbol,
		&rec.Metadata.BaseToken.Decimals,
		&rec.Metadata.QuoteToken.Address,
		&rec.Metadata.QuoteToken.Symbol,
		&rec.Metadata.QuoteToken.Name,
		&rec.Metadata.QuoteToken.Decimals,
		&rec.LastUpdated,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get pair record: %w", err)
	}

	if rec.PriceHistory, err = s.GetSeries(ctx, pairAddress, domain.SeriesPrice); err != nil {
		return nil, err
	}
	if rec.VolumeHistory, err = s.GetSeries(ctx, pairAddress, domain.SeriesVolume); err != nil {
		return nil, err
	}
	if rec.LiquidityHistory, err = s.GetSeries(ctx, pairAddress, domain.SeriesLiquidity); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Ping verifies the database connection is live.
func (s *PairStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
