// Package indicator provides the technical indicator math the signal
// engine evaluates over a pair's sampled history: Wilder RSI, EMA-based
// MACD, and time-windowed momentum and volume aggregates.
//
// All functions are pure batch calculations over the trailing series. Each
// returns an ok flag that is false when the series is too short for the
// indicator to be defined.
package indicator

// RSI calculates the Relative Strength Index over the trailing closing
// values using Wilder's smoothing method. The initial averages are seeded
// from the first period-1 deltas, so the result is defined as soon as the
// series holds period samples. Returns ok=false with fewer samples.
func RSI(values []float64, period int) (float64, bool) {
	if period < 2 || len(values) < period {
		return 0, false
	}

	seedDeltas := period - 1
	var avgGain, avgLoss float64

	for i := 1; i <= seedDeltas; i++ {
		delta := values[i] - values[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(seedDeltas)
	avgLoss /= float64(seedDeltas)

	// Wilder's smoothing for the remaining deltas:
	// avg = (prevAvg * (period-1) + delta) / period
	p := float64(period)
	for i := seedDeltas + 1; i < len(values); i++ {
		delta := values[i] - values[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
	}

	if avgLoss == 0 {
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs)), true
}
