package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dexwatch/internal/domain"
)

func TestSignalArchiveStore_InsertBatch(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSignalArchiveStore(conn)
	ctx := context.Background()

	// Empty batch is a no-op
	err := store.InsertBatch(ctx, time.Now(), nil)
	assert.NoError(t, err)

	tick := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	results := []domain.SignalResult{
		{
			PairName:         "CAKE/BUSD",
			Signal:           domain.SignalBuy,
			CurrentPrice:     "2.50000000",
			CurrentVolume:    "120000.00",
			CurrentLiquidity: "80000.00",
			Indicators: domain.IndicatorValues{
				RSI:              "28.41",
				MACD:             "0.0123",
				MACDSignal:       "0.0100",
				MACDHistogram:    "0.0023",
				PriceChangeShort: "1.75",
				VolumeIncrease:   "32.00",
				LiquidityStatus:  "Strong",
				PumpedRecently:   "No",
			},
		},
		{
			PairName:     "XYZ/BUSD",
			Signal:       domain.SignalError,
			CurrentPrice: "N/A",
			Indicators: domain.IndicatorValues{
				RSI: "N/A", MACD: "N/A", MACDSignal: "N/A", MACDHistogram: "N/A",
				PriceChangeShort: "N/A", VolumeIncrease: "N/A",
			},
		},
	}

	err = store.InsertBatch(ctx, tick, results)
	require.NoError(t, err)

	rows, err := conn.Query(ctx, `
		SELECT pair_name, signal, price, rsi, liquidity_strong, pumped
		FROM signal_archive
		ORDER BY pair_name
	`)
	require.NoError(t, err)
	defer rows.Close()

	type row struct {
		pairName string
		signal   string
		price    float64
		rsi      float64
		strong   bool
		pumped   bool
	}
	var got []row
	for rows.Next() {
		var r row
		require.NoError(t, rows.Scan(&r.pairName, &r.signal, &r.price, &r.rsi, &r.strong, &r.pumped))
		got = append(got, r)
	}
	require.Len(t, got, 2)

	assert.Equal(t, "CAKE/BUSD", got[0].pairName)
	assert.Equal(t, "Buy", got[0].signal)
	assert.InDelta(t, 2.5, got[0].price, 1e-9)
	assert.InDelta(t, 28.41, got[0].rsi, 1e-9)
	assert.True(t, got[0].strong)
	assert.False(t, got[0].pumped)

	// N/A display values archive as zero
	assert.Equal(t, "XYZ/BUSD", got[1].pairName)
	assert.Equal(t, "Error", got[1].signal)
	assert.Zero(t, got[1].price)
	assert.Zero(t, got[1].rsi)
}

func TestSignalArchiveStore_AppendsAcrossTicks(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSignalArchiveStore(conn)
	ctx := context.Background()

	base := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		err := store.InsertBatch(ctx, base.Add(time.Duration(i)*time.Minute), []domain.SignalResult{
			{PairName: "CAKE/BUSD", Signal: domain.SignalHold, CurrentPrice: "2.50000000"},
		})
		require.NoError(t, err)
	}

	var count uint64
	row := conn.QueryRow(ctx, `SELECT count() FROM signal_archive WHERE pair_name = 'CAKE/BUSD'`)
	require.NoError(t, row.Scan(&count))
	assert.Equal(t, uint64(3), count)
}
