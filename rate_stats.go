package biostream

import (
	"time"

	"github.com/e7canasta/biosignal-stream/internal/ratestats"
)

// RateStats is re-exported from the internal package. See
// internal/ratestats for the calculation details.
type RateStats = ratestats.RateStats

// CalculateRateStats derives sampling-rate statistics from sample
// timestamps (seconds on the producer's monotonic clock) collected
// over totalDuration.
//
// This function:
//  1. Calculates the overall mean rate
//  2. Calculates the instantaneous rate for each inter-sample interval
//  3. Finds min/max instantaneous rate and its standard deviation
//  4. Calculates jitter statistics against the expected interval
//  5. Determines stability (stddev < 15% of mean AND jitter < 20%)
//
// Example: a 128 Hz stream is stable while stddev < 19.2 Hz and mean
// jitter < 1.56 ms.
func CalculateRateStats(timestamps []float64, totalDuration time.Duration) *RateStats {
	return ratestats.Calculate(timestamps, totalDuration)
}
