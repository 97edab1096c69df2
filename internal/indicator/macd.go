package indicator

// MACDResult holds the three outputs of a MACD calculation.
type MACDResult struct {
	Line      float64
	Signal    float64
	Histogram float64
}

// MACD calculates the MACD line, signal line and histogram over the
// trailing closing values. The fast and slow EMAs are SMA-seeded; the
// signal EMA is seeded with the first MACD value, so all three outputs are
// defined as soon as the series holds slow samples. Returns ok=false with
// fewer samples.
func MACD(values []float64, fast, slow, signal int) (MACDResult, bool) {
	if fast < 1 || slow <= fast || signal < 1 || len(values) < slow {
		return MACDResult{}, false
	}

	fastSeries := emaSeries(values, fast)
	slowSeries := emaSeries(values, slow)

	// MACD line exists from index slow-1 onward, where both EMAs are
	// defined.
	macdLine := make([]float64, 0, len(values)-slow+1)
	for i := slow - 1; i < len(values); i++ {
		macdLine = append(macdLine, fastSeries[i]-slowSeries[i])
	}

	sigMult := 2.0 / float64(signal+1)
	signalLine := macdLine[0]
	for i := 1; i < len(macdLine); i++ {
		signalLine = macdLine[i]*sigMult + signalLine*(1-sigMult)
	}

	line := macdLine[len(macdLine)-1]
	return MACDResult{
		Line:      line,
		Signal:    signalLine,
		Histogram: line - signalLine,
	}, true
}

// emaSeries computes a full EMA series, SMA-seeded at index period-1.
// Entries before the seed index hold the running partial mean and must not
// be read by callers.
func emaSeries(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	mult := 2.0 / float64(period+1)

	var sum float64
	for i, v := range values {
		switch {
		case i < period-1:
			sum += v
			out[i] = sum / float64(i+1)
		case i == period-1:
			sum += v
			out[i] = sum / float64(period)
		default:
			out[i] = v*mult + out[i-1]*(1-mult)
		}
	}
	return out
}
