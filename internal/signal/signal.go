// Package signal implements the combined Buy/Hold decision over a pair's
// market snapshot and sampled history.
package signal

import (
	"fmt"
	"time"

	"dexwatch/internal/domain"
	"dexwatch/internal/indicator"
)

// Config holds the thresholds and lookbacks of the six signal conditions.
// Percentage thresholds are expressed in percent (1.5 means 1.5%).
type Config struct {
	RSIPeriod            int
	RSIOversoldThreshold float64

	MACDFastPeriod   int
	MACDSlowPeriod   int
	MACDSignalPeriod int

	ShortLookback     time.Duration
	ShortThresholdPct float64

	VolumeLookback       time.Duration
	VolumeIncreaseFactor float64

	LiquidityFloorUSD float64

	PumpLookback     time.Duration
	PumpThresholdPct float64
}

const notAvailable = "N/A"

// Evaluate runs all six conditions against the snapshot and the bounded
// price/volume series and combines them into one SignalResult. It is a
// pure function of its inputs: the caller owns the last-buy memo and
// attaches it afterwards.
func Evaluate(cfg Config, snap domain.MarketSnapshot, priceSeries, volumeSeries []domain.SamplePoint, now time.Time) domain.SignalResult {
	prices := make([]float64, len(priceSeries))
	for i, p := range priceSeries {
		prices[i] = p.Value
	}

	result := domain.SignalResult{
		PairName:         snap.PairName,
		Signal:           domain.SignalHold,
		CurrentPrice:     fmt.Sprintf("%.8f", snap.CurrentPrice),
		CurrentVolume:    fmt.Sprintf("%.2f", snap.CurrentVolume),
		CurrentLiquidity: fmt.Sprintf("%.2f", snap.CurrentLiquidity),
		Indicators: domain.IndicatorValues{
			RSI:              notAvailable,
			MACD:             notAvailable,
			MACDSignal:       notAvailable,
			MACDHistogram:    notAvailable,
			PriceChangeShort: notAvailable,
			VolumeIncrease:   notAvailable,
		},
	}

	conditions := []domain.ConditionResult{
		evalRSI(cfg, prices, &result.Indicators),
		evalMACD(cfg, prices, &result.Indicators),
		evalPriceTrend(cfg, priceSeries, now, &result.Indicators),
		evalVolumeTrend(cfg, volumeSeries, snap.CurrentVolume, now, &result.Indicators),
		evalLiquidity(cfg, snap.CurrentLiquidity, &result.Indicators),
		evalPumpGuard(cfg, priceSeries, now, &result.Indicators),
	}
	result.Conditions = conditions

	buy := true
	for _, c := range conditions {
		if !c.Pass {
			buy = false
			break
		}
	}
	if buy {
		result.Signal = domain.SignalBuy
	}

	return result
}

func evalRSI(cfg Config, prices []float64, values *domain.IndicatorValues) domain.ConditionResult {
	cond := domain.ConditionResult{Name: "RSI"}

	rsi, ok := indicator.RSI(prices, cfg.RSIPeriod)
	if !ok {
		cond.Detail = fmt.Sprintf("insufficient data for RSI(%d): have %d of %d samples",
			cfg.RSIPeriod, len(prices), cfg.RSIPeriod)
		return cond
	}

	values.RSI = fmt.Sprintf("%.2f", rsi)
	cond.Pass = rsi <= cfg.RSIOversoldThreshold
	if cond.Pass {
		cond.Detail = fmt.Sprintf("RSI(%d) is %.2f, at or below oversold threshold %.2f",
			cfg.RSIPeriod, rsi, cfg.RSIOversoldThreshold)
	} else {
		cond.Detail = fmt.Sprintf("RSI(%d) is %.2f, above oversold threshold %.2f",
			cfg.RSIPeriod, rsi, cfg.RSIOversoldThreshold)
	}
	return cond
}

func evalMACD(cfg Config, prices []float64, values *domain.IndicatorValues) domain.ConditionResult {
	cond := domain.ConditionResult{Name: "MACD"}

	macd, ok := indicator.MACD(prices, cfg.MACDFastPeriod, cfg.MACDSlowPeriod, cfg.MACDSignalPeriod)
	if !ok {
		cond.Detail = fmt.Sprintf("insufficient data for MACD(%d,%d,%d): have %d of %d samples",
			cfg.MACDFastPeriod, cfg.MACDSlowPeriod, cfg.MACDSignalPeriod, len(prices), cfg.MACDSlowPeriod)
		return cond
	}

	values.MACD = fmt.Sprintf("%.4f", macd.Line)
	values.MACDSignal = fmt.Sprintf("%.4f", macd.Signal)
	values.MACDHistogram = fmt.Sprintf("%.4f", macd.Histogram)

	cond.Pass = macd.Line > macd.Signal
	if cond.Pass {
		cond.Detail = fmt.Sprintf("MACD line %.4f above signal line %.4f", macd.Line, macd.Signal)
	} else {
		cond.Detail = fmt.Sprintf("MACD line %.4f not above signal line %.4f", macd.Line, macd.Signal)
	}
	return cond
}

func evalPriceTrend(cfg Config, priceSeries []domain.SamplePoint, now time.Time, values *domain.IndicatorValues) domain.ConditionResult {
	cond := domain.ConditionResult{Name: "Price Trend"}
	minutes := int(cfg.ShortLookback.Minutes())

	change, ok := indicator.PercentChange(priceSeries, now, cfg.ShortLookback)
	if !ok {
		cond.Detail = fmt.Sprintf("insufficient data for %d min price trend", minutes)
		return cond
	}

	values.PriceChangeShort = fmt.Sprintf("%.2f", change)
	cond.Pass = change >= cfg.ShortThresholdPct
	if cond.Pass {
		cond.Detail = fmt.Sprintf("price up %.2f%% in last %d min, at or above %.2f%% required",
			change, minutes, cfg.ShortThresholdPct)
	} else {
		cond.Detail = fmt.Sprintf("price changed %.2f%% in last %d min, below %.2f%% required",
			change, minutes, cfg.ShortThresholdPct)
	}
	return cond
}

func evalVolumeTrend(cfg Config, volumeSeries []domain.SamplePoint, currentVolume float64, now time.Time, values *domain.IndicatorValues) domain.ConditionResult {
	cond := domain.ConditionResult{Name: "Volume Trend"}
	minutes := int(cfg.VolumeLookback.Minutes())

	avg, ok := indicator.WindowAverage(volumeSeries, now, cfg.VolumeLookback)
	if !ok {
		cond.Detail = fmt.Sprintf("insufficient data for volume trend over %d min", minutes)
		return cond
	}

	values.VolumeIncrease = fmt.Sprintf("%.2f", (currentVolume/avg-1)*100)
	required := avg * (1 + cfg.VolumeIncreaseFactor)
	cond.Pass = currentVolume >= required
	if cond.Pass {
		cond.Detail = fmt.Sprintf("24h volume $%.2f is at least %.0f%% above $%.2f average over %d min",
			currentVolume, cfg.VolumeIncreaseFactor*100, avg, minutes)
	} else {
		cond.Detail = fmt.Sprintf("24h volume $%.2f is under %.0f%% above $%.2f average over %d min",
			currentVolume, cfg.VolumeIncreaseFactor*100, avg, minutes)
	}
	return cond
}

func evalLiquidity(cfg Config, currentLiquidity float64, values *domain.IndicatorValues) domain.ConditionResult {
	cond := domain.ConditionResult{Name: "Liquidity"}

	cond.Pass = currentLiquidity >= cfg.LiquidityFloorUSD
	if cond.Pass {
		values.LiquidityStatus = "Strong"
		cond.Detail = fmt.Sprintf("liquidity $%.2f at or above $%.2f floor", currentLiquidity, cfg.LiquidityFloorUSD)
	} else {
		values.LiquidityStatus = "Low"
		cond.Detail = fmt.Sprintf("liquidity $%.2f below $%.2f floor", currentLiquidity, cfg.LiquidityFloorUSD)
	}
	return cond
}

func evalPumpGuard(cfg Config, priceSeries []domain.SamplePoint, now time.Time, values *domain.IndicatorValues) domain.ConditionResult {
	cond := domain.ConditionResult{Name: "Pump Guard"}
	hours := int(cfg.PumpLookback.Hours())

	change, ok := indicator.PercentChange(priceSeries, now, cfg.PumpLookback)
	if !ok {
		values.PumpedRecently = "No"
		cond.Detail = fmt.Sprintf("insufficient data for %d hr pump check", hours)
		return cond
	}

	pumped := change >= cfg.PumpThresholdPct
	cond.Pass = !pumped
	if pumped {
		values.PumpedRecently = "Yes"
		cond.Detail = fmt.Sprintf("price already pumped %.2f%% in last %d hr, at or above %.2f%%",
			change, hours, cfg.PumpThresholdPct)
	} else {
		values.PumpedRecently = "No"
		cond.Detail = fmt.Sprintf("price change %.2f%% in last %d hr, below %.2f%%",
			change, hours, cfg.PumpThresholdPct)
	}
	return cond
}
