package storage

import (
	"context"
	"time"

	"dexwatch/internal/domain"
)

// PairStore provides access to pair records and their bounded history
// series. The retention limit is a property of the store: every append
// prunes each series to the newest N samples, oldest dropped first.
type PairStore interface {
	// UpsertMetadata creates the pair record (with empty histories) if it
	// does not exist, or overwrites its metadata fields if it does.
	UpsertMetadata(ctx context.Context, pairAddress string, meta domain.PairMetadata) error

	// AppendSample appends one point to each of the three series and
	// prunes each to the retention limit. Returns ErrNotFound if the
	// record does not exist; callers are expected to upsert first.
	AppendSample(ctx context.Context, pairAddress string, price, volume, liquidity float64, ts time.Time) error

	// GetSeries returns the full bounded series of the given kind, oldest
	// first, or an empty slice if the record is absent.
	GetSeries(ctx context.Context, pairAddress string, kind domain.SeriesKind) ([]domain.SamplePoint, error)

	// GetRecord retrieves the full pair record. Returns ErrNotFound if
	// not exists.
	GetRecord(ctx context.Context, pairAddress string) (*domain.PairRecord, error)

	// Ping verifies the store is reachable. Ticks abort early when it
	// fails.
	Ping(ctx context.Context) error
}

// SignalArchiveStore persists published signal results for offline
// analysis. Append-only; writes are best-effort from the scheduler's
// point of view.
type SignalArchiveStore interface {
	// InsertBatch archives one published result set under the given tick
	// time.
	InsertBatch(ctx context.Context, tickTime time.Time, results []domain.SignalResult) error
}
