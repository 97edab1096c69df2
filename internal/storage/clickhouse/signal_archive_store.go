package clickhouse

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"dexwatch/internal/domain"
	"dexwatch/internal/storage"
)

// SignalArchiveStore implements storage.SignalArchiveStore using
// ClickHouse. One row per pair per published tick; the bounded Postgres
// histories stay small while the archive keeps everything for analysis.
type SignalArchiveStore struct {
	conn *Conn
}

// NewSignalArchiveStore creates a new SignalArchiveStore.
func NewSignalArchiveStore(conn *Conn) *SignalArchiveStore {
	return &SignalArchiveStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SignalArchiveStore = (*SignalArchiveStore)(nil)

// InsertBatch archives one published result set.
func (s *SignalArchiveStore) InsertBatch(ctx context.Context, tickTime time.Time, results []domain.SignalResult) error {
	if len(results) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO signal_archive (
			tick_time, pair_name, signal,
			price, volume, liquidity,
			rsi, macd, macd_signal, macd_histogram,
			price_change_short_pct, volume_increase_pct,
			liquidity_strong, pumped
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range results {
		err = batch.Append(
			tickTime.UTC(),
			r.PairName,
			string(r.Signal),
			parseArchiveFloat(r.CurrentPrice),
			parseArchiveFloat(r.CurrentVolume),
			parseArchiveFloat(r.CurrentLiquidity),
			parseArchiveFloat(r.Indicators.RSI),
			parseArchiveFloat(r.Indicators.MACD),
			parseArchiveFloat(r.Indicators.MACDSignal),
			parseArchiveFloat(r.Indicators.MACDHistogram),
			parseArchiveFloat(r.Indicators.PriceChangeShort),
			parseArchiveFloat(r.Indicators.VolumeIncrease),
			r.Indicators.LiquidityStatus == "Strong",
			r.Indicators.PumpedRecently == "Yes",
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// parseArchiveFloat converts a formatted display value back to a number.
// "N/A" and empty values archive as NaN-free zero.
func parseArchiveFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
