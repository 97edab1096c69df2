package memory

import (
	"context"
	"sync"
	"time"

	"dexwatch/internal/domain"
	"dexwatch/internal/storage"
)

// PairStore is an in-memory implementation of storage.PairStore.
// Used by tests and by --use-memory mode.
type PairStore struct {
	mu        sync.RWMutex
	retention int
	byAddress map[string]*domain.PairRecord
}

// NewPairStore creates a new in-memory pair store with the given history
// retention limit.
func NewPairStore(retention int) *PairStore {
	return &PairStore{
		retention: retention,
		byAddress: make(map[string]*domain.PairRecord),
	}
}

// UpsertMetadata creates the record if absent or overwrites its metadata.
func (s *PairStore) UpsertMetadata(_ context.Context, pairAddress string, meta domain.PairMetadata) error {
	if pairAddress == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.byAddress[pairAddress]
	if !exists {
		rec = &domain.PairRecord{PairAddress: pairAddress}
		s.byAddress[pairAddress] = rec
	}
	rec.Metadata = meta
	rec.LastUpdated = time.Now()
	return nil
}

// AppendSample appends one point to each series and prunes to retention.
func (s *PairStore) AppendSample(_ context.Context, pairAddress string, price, volume, liquidity float64, ts time.Time) error {
	if pairAddress == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.byAddress[pairAddress]
	if !exists {
		return storage.ErrNotFound
	}

	rec.PriceHistory = appendBounded(rec.PriceHistory, domain.SamplePoint{Value: price, Timestamp: ts}, s.retention)
	rec.VolumeHistory = appendBounded(rec.VolumeHistory, domain.SamplePoint{Value: volume, Timestamp: ts}, s.retention)
	rec.LiquidityHistory = appendBounded(rec.LiquidityHistory, domain.SamplePoint{Value: liquidity, Timestamp: ts}, s.retention)
	rec.LastUpdated = ts
	return nil
}

// appendBounded appends p and drops oldest entries beyond limit.
func appendBounded(series []domain.SamplePoint, p domain.SamplePoint, limit int) []domain.SamplePoint {
	series = append(series, p)
	if limit > 0 && len(series) > limit {
		series = series[len(series)-limit:]
	}
	return series
}

// GetSeries returns a copy of the requested series, oldest first. Absent
// records yield an empty slice, not an error.
func (s *PairStore) GetSeries(_ context.Context, pairAddress string, kind domain.SeriesKind) ([]domain.SamplePoint, error) {
	if !kind.IsValid() {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.byAddress[pairAddress]
	if !exists {
		return []domain.SamplePoint{}, nil
	}

	var src []domain.SamplePoint
	switch kind {
	case domain.SeriesPrice:
		src = rec.PriceHistory
	case domain.SeriesVolume:
		src = rec.VolumeHistory
	case domain.SeriesLiquidity:
		src = rec.LiquidityHistory
	}

	out := make([]domain.SamplePoint, len(src))
	copy(out, src)
	return out, nil
}

// GetRecord retrieves a copy of the full record. Returns ErrNotFound if
// not exists.
func (s *PairStore) GetRecord(_ context.Context, pairAddress string) (*domain.PairRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.byAddress[pairAddress]
	if !exists {
		return nil, storage.ErrNotFound
	}

	recCopy := *rec
	recCopy.PriceHistory = append([]domain.SamplePoint(nil), rec.PriceHistory...)
	recCopy.VolumeHistory = append([]domain.SamplePoint(nil), rec.VolumeHistory...)
	recCopy.LiquidityHistory = append([]domain.SamplePoint(nil), rec.LiquidityHistory...)
	return &recCopy, nil
}

// Ping always succeeds for the in-memory store.
func (s *PairStore) Ping(_ context.Context) error {
	return nil
}

var _ storage.PairStore = (*PairStore)(nil)
