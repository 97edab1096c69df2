package signal

import (
	"strings"
	"testing"
	"time"

	"dexwatch/internal/domain"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// buyConfig pairs with buyFixture below: every condition passes.
func buyConfig() Config {
	return Config{
		RSIPeriod:            14,
		RSIOversoldThreshold: 100,
		MACDFastPeriod:       12,
		MACDSlowPeriod:       26,
		MACDSignalPeriod:     9,
		ShortLookback:        5 * time.Minute,
		ShortThresholdPct:    0.5,
		VolumeLookback:       60 * time.Minute,
		VolumeIncreaseFactor: 0.2,
		LiquidityFloorUSD:    50000,
		PumpLookback:         24 * time.Hour,
		PumpThresholdPct:     50,
	}
}

// buyFixture builds a snapshot and history that satisfy all six
// conditions under buyConfig: a flat stretch followed by a recent rise
// keeps MACD bullish and short momentum up while the 24h change stays
// under the pump threshold, and the current volume sits 50% above its
// trailing average.
func buyFixture() (domain.MarketSnapshot, []domain.SamplePoint, []domain.SamplePoint) {
	prices := make([]domain.SamplePoint, 30)
	for i := range prices {
		value := 100.0
		if i >= 20 {
			value = 100 + float64(i-19)
		}
		prices[i] = domain.SamplePoint{
			Value:     value,
			Timestamp: testNow.Add(-time.Duration(len(prices)-1-i) * time.Minute),
		}
	}

	volumes := make([]domain.SamplePoint, 10)
	for i := range volumes {
		value := 100.0
		if i == len(volumes)-1 {
			value = 150.0
		}
		volumes[i] = domain.SamplePoint{
			Value:     value,
			Timestamp: testNow.Add(-time.Duration(len(volumes)-1-i) * time.Minute),
		}
	}

	snap := domain.MarketSnapshot{
		PairAddress:      "0xpair",
		ChainID:          "bsc",
		PairName:         "TKN/BUSD",
		CurrentPrice:     prices[len(prices)-1].Value,
		CurrentVolume:    150,
		CurrentLiquidity: 60000,
	}
	return snap, prices, volumes
}

func conditionByName(t *testing.T, result domain.SignalResult, name string) domain.ConditionResult {
	t.Helper()
	for _, c := range result.Conditions {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("condition %q not found in %+v", name, result.Conditions)
	return domain.ConditionResult{}
}

func TestEvaluate_AllConditionsPassYieldsBuy(t *testing.T) {
	snap, prices, volumes := buyFixture()

	result := Evaluate(buyConfig(), snap, prices, volumes, testNow)

	if result.Signal != domain.SignalBuy {
		t.Fatalf("signal = %s, want Buy; conditions: %+v", result.Signal, result.Conditions)
	}
	if len(result.Conditions) != 6 {
		t.Fatalf("got %d conditions, want 6", len(result.Conditions))
	}
	for _, c := range result.Conditions {
		if !c.Pass {
			t.Errorf("condition %q failed: %s", c.Name, c.Detail)
		}
		if c.Detail == "" {
			t.Errorf("condition %q has empty detail", c.Name)
		}
	}
}

func TestEvaluate_AnySingleFailureYieldsHold(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		condition string
	}{
		{
			name:      "rsi not oversold",
			mutate:    func(c *Config) { c.RSIOversoldThreshold = 0 },
			condition: "RSI",
		},
		{
			// Signal period 1 makes the signal line track the MACD line
			// exactly, so "line above signal" can never hold.
			name:      "macd not bullish",
			mutate:    func(c *Config) { c.MACDSignalPeriod = 1 },
			condition: "MACD",
		},
		{
			name:      "short momentum below threshold",
			mutate:    func(c *Config) { c.ShortThresholdPct = 1000 },
			condition: "Price Trend",
		},
		{
			name:      "volume below required increase",
			mutate:    func(c *Config) { c.VolumeIncreaseFactor = 10 },
			condition: "Volume Trend",
		},
		{
			name:      "liquidity below floor",
			mutate:    func(c *Config) { c.LiquidityFloorUSD = 1e9 },
			condition: "Liquidity",
		},
		{
			name:      "recent pump",
			mutate:    func(c *Config) { c.PumpThresholdPct = 0.01 },
			condition: "Pump Guard",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, prices, volumes := buyFixture()
			cfg := buyConfig()
			tt.mutate(&cfg)

			result := Evaluate(cfg, snap, prices, volumes, testNow)

			if result.Signal != domain.SignalHold {
				t.Fatalf("signal = %s, want Hold", result.Signal)
			}

			failed := conditionByName(t, result, tt.condition)
			if failed.Pass {
				t.Errorf("expected condition %q to fail: %s", tt.condition, failed.Detail)
			}
			for _, c := range result.Conditions {
				if c.Name != tt.condition && !c.Pass {
					t.Errorf("unexpected failure of %q: %s", c.Name, c.Detail)
				}
			}
		})
	}
}

func TestEvaluate_VolumeScenario(t *testing.T) {
	// Six in-window samples, average of the first five is 100, current
	// is 150, factor 0.2: 150 >= 120 passes.
	snap, prices, _ := buyFixture()
	snap.CurrentVolume = 150

	volumes := make([]domain.SamplePoint, 6)
	for i := range volumes {
		value := 100.0
		if i == len(volumes)-1 {
			value = 150.0
		}
		volumes[i] = domain.SamplePoint{
			Value:     value,
			Timestamp: testNow.Add(-time.Duration(len(volumes)-1-i) * time.Minute),
		}
	}

	result := Evaluate(buyConfig(), snap, prices, volumes, testNow)

	cond := conditionByName(t, result, "Volume Trend")
	if !cond.Pass {
		t.Errorf("volume condition failed: %s", cond.Detail)
	}
	if result.Indicators.VolumeIncrease != "50.00" {
		t.Errorf("volume increase = %s, want 50.00", result.Indicators.VolumeIncrease)
	}
}

func TestEvaluate_PumpForcesHold(t *testing.T) {
	// A 20% rise against a 15% pump threshold forces Hold even though
	// every other condition passes.
	snap, prices, volumes := buyFixture()
	cfg := buyConfig()
	cfg.PumpThresholdPct = 15

	// Scale the fixture's rise up to 20% over the pump window.
	for i := range prices {
		if i >= 20 {
			prices[i].Value = 100 + 2*float64(i-19)
		}
	}
	snap.CurrentPrice = prices[len(prices)-1].Value

	result := Evaluate(cfg, snap, prices, volumes, testNow)

	if result.Signal != domain.SignalHold {
		t.Fatalf("signal = %s, want Hold", result.Signal)
	}

	pump := conditionByName(t, result, "Pump Guard")
	if pump.Pass {
		t.Errorf("expected pump guard to fail: %s", pump.Detail)
	}
	if result.Indicators.PumpedRecently != "Yes" {
		t.Errorf("pumpedRecently = %s, want Yes", result.Indicators.PumpedRecently)
	}
	for _, c := range result.Conditions {
		if c.Name != "Pump Guard" && !c.Pass {
			t.Errorf("unexpected failure of %q: %s", c.Name, c.Detail)
		}
	}
}

func TestEvaluate_InsufficientHistory(t *testing.T) {
	snap, _, _ := buyFixture()

	result := Evaluate(buyConfig(), snap, nil, nil, testNow)

	if result.Signal != domain.SignalHold {
		t.Fatalf("signal = %s, want Hold", result.Signal)
	}
	if len(result.Conditions) != 6 {
		t.Fatalf("got %d conditions, want 6", len(result.Conditions))
	}

	for _, name := range []string{"RSI", "MACD", "Price Trend", "Volume Trend", "Pump Guard"} {
		cond := conditionByName(t, result, name)
		if cond.Pass {
			t.Errorf("condition %q passed with no history", name)
		}
		if !strings.Contains(cond.Detail, "insufficient data") {
			t.Errorf("condition %q detail = %q, want insufficient-data wording", name, cond.Detail)
		}
	}

	// Liquidity needs no history and still passes.
	liq := conditionByName(t, result, "Liquidity")
	if !liq.Pass {
		t.Errorf("liquidity condition failed: %s", liq.Detail)
	}

	for name, v := range map[string]string{
		"rsi":              result.Indicators.RSI,
		"macd":             result.Indicators.MACD,
		"macdSignal":       result.Indicators.MACDSignal,
		"macdHistogram":    result.Indicators.MACDHistogram,
		"priceChangeShort": result.Indicators.PriceChangeShort,
		"volumeIncrease":   result.Indicators.VolumeIncrease,
	} {
		if v != "N/A" {
			t.Errorf("indicator %s = %q, want N/A", name, v)
		}
	}
}

func TestEvaluate_RSIBoundary(t *testing.T) {
	snap, _, _ := buyFixture()
	cfg := buyConfig()

	prices := make([]domain.SamplePoint, 13)
	for i := range prices {
		prices[i] = domain.SamplePoint{
			Value:     100 + float64(i%4),
			Timestamp: testNow.Add(-time.Duration(len(prices)-1-i) * time.Minute),
		}
	}

	result := Evaluate(cfg, snap, prices, nil, testNow)
	if result.Indicators.RSI != "N/A" {
		t.Errorf("RSI with 13 samples = %s, want N/A", result.Indicators.RSI)
	}

	prices = append(prices, domain.SamplePoint{Value: 101, Timestamp: testNow})
	result = Evaluate(cfg, snap, prices, nil, testNow)
	if result.Indicators.RSI == "N/A" {
		t.Error("RSI with 14 samples still N/A, want defined value")
	}
}

func TestEvaluate_Formatting(t *testing.T) {
	snap, prices, volumes := buyFixture()
	snap.CurrentPrice = 0.00001234
	snap.CurrentVolume = 1234.5
	snap.CurrentLiquidity = 98765.432

	result := Evaluate(buyConfig(), snap, prices, volumes, testNow)

	if result.CurrentPrice != "0.00001234" {
		t.Errorf("currentPrice = %s, want 0.00001234", result.CurrentPrice)
	}
	if result.CurrentVolume != "1234.50" {
		t.Errorf("currentVolume = %s, want 1234.50", result.CurrentVolume)
	}
	if result.CurrentLiquidity != "98765.43" {
		t.Errorf("currentLiquidity = %s, want 98765.43", result.CurrentLiquidity)
	}
	if result.LastBuy != nil {
		t.Error("evaluate must not attach a last-buy memo")
	}
}
