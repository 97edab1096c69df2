package indicator

import (
	"time"

	"dexwatch/internal/domain"
)

// minVolumeSamples is the minimum number of in-window samples required
// before the volume average is considered meaningful.
const minVolumeSamples = 5

// windowTail returns the samples whose timestamps fall within the trailing
// window ending at now. Series are stored oldest first, so the scan walks
// backward and stops at the first sample outside the window.
func windowTail(series []domain.SamplePoint, now time.Time, window time.Duration) []domain.SamplePoint {
	cutoff := now.Add(-window)
	start := len(series)
	for start > 0 && !series[start-1].Timestamp.Before(cutoff) {
		start--
	}
	return series[start:]
}

// PercentChange computes the percentage change from the oldest sample in
// the trailing window to the newest. Returns ok=false with fewer than 2
// in-window samples or a zero oldest value.
func PercentChange(series []domain.SamplePoint, now time.Time, window time.Duration) (float64, bool) {
	tail := windowTail(series, now, window)
	if len(tail) < 2 {
		return 0, false
	}

	oldest := tail[0].Value
	if oldest == 0 {
		return 0, false
	}
	newest := tail[len(tail)-1].Value
	return (newest - oldest) / oldest * 100, true
}

// WindowAverage computes the mean of the in-window samples excluding the
// most recent one, which is the value being compared against. Returns
// ok=false with fewer than minVolumeSamples in-window samples or a zero
// average.
func WindowAverage(series []domain.SamplePoint, now time.Time, window time.Duration) (float64, bool) {
	tail := windowTail(series, now, window)
	if len(tail) < minVolumeSamples {
		return 0, false
	}

	var sum float64
	for _, p := range tail[:len(tail)-1] {
		sum += p.Value
	}
	avg := sum / float64(len(tail)-1)
	if avg == 0 {
		return 0, false
	}
	return avg, true
}
