// Package ratestats computes sampling-rate statistics from sample
// timestamps, used to verify a stream holds its target rate before the
// caller starts trusting the data.
package ratestats

import (
	"math"
	"time"
)

const (
	// rateStabilityThreshold is the maximum allowed rate standard
	// deviation as a fraction of the mean rate. Example: 128 Hz mean is
	// stable while stddev < 19.2 Hz.
	rateStabilityThreshold = 0.15

	// jitterStabilityThreshold is the maximum allowed mean jitter as a
	// fraction of the expected inter-sample interval. Example: 128 Hz
	// (7.8 ms interval) is stable while mean jitter < 1.56 ms.
	jitterStabilityThreshold = 0.20
)

// RateStats summarizes the measured sampling rate over a window.
type RateStats struct {
	// SamplesReceived is the number of samples in the window.
	SamplesReceived int
	// Duration is the wall-clock length of the window.
	Duration time.Duration
	// RateMean is the overall rate in Hz (samples / duration).
	RateMean float64
	// RateStdDev is the standard deviation of the instantaneous rate.
	RateStdDev float64
	// RateMin is the minimum instantaneous rate.
	RateMin float64
	// RateMax is the maximum instantaneous rate.
	RateMax float64
	// JitterMean is the mean absolute deviation from the expected
	// inter-sample interval, in seconds.
	JitterMean float64
	// JitterStdDev is the standard deviation of the jitter.
	JitterStdDev float64
	// JitterMax is the worst observed jitter, in seconds.
	JitterMax float64
	// IsStable is true when rate stddev < 15% of mean and mean jitter
	// < 20% of the expected interval.
	IsStable bool
}

// Calculate derives rate statistics from sample timestamps (seconds on
// the producer's monotonic clock) collected over totalDuration.
//
// It computes the overall mean rate, the instantaneous rate for each
// inter-sample interval with min/max/stddev, and jitter against the
// expected interval, then judges stability from both.
func Calculate(timestamps []float64, totalDuration time.Duration) *RateStats {
	n := len(timestamps)
	if n == 0 || totalDuration <= 0 {
		return &RateStats{Duration: totalDuration}
	}

	rateMean := float64(n) / totalDuration.Seconds()

	instantaneous := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		interval := timestamps[i] - timestamps[i-1]
		if interval > 0 {
			instantaneous = append(instantaneous, 1.0/interval)
		}
	}
	if len(instantaneous) == 0 {
		return &RateStats{
			SamplesReceived: n,
			Duration:        totalDuration,
			RateMean:        rateMean,
		}
	}

	rateMin := instantaneous[0]
	rateMax := instantaneous[0]
	var sumSquares float64
	for _, r := range instantaneous {
		if r < rateMin {
			rateMin = r
		}
		if r > rateMax {
			rateMax = r
		}
		diff := r - rateMean
		sumSquares += diff * diff
	}
	rateStdDev := math.Sqrt(sumSquares / float64(len(instantaneous)))

	expectedInterval := 1.0 / rateMean

	var jitterSum, jitterMax float64
	jitters := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		j := math.Abs((timestamps[i] - timestamps[i-1]) - expectedInterval)
		jitters = append(jitters, j)
		jitterSum += j
		if j > jitterMax {
			jitterMax = j
		}
	}
	jitterMean := jitterSum / float64(len(jitters))

	var jitterSumSquares float64
	for _, j := range jitters {
		diff := j - jitterMean
		jitterSumSquares += diff * diff
	}
	jitterStdDev := math.Sqrt(jitterSumSquares / float64(len(jitters)))

	rateStable := rateStdDev < rateMean*rateStabilityThreshold
	jitterStable := jitterMean < expectedInterval*jitterStabilityThreshold

	return &RateStats{
		SamplesReceived: n,
		Duration:        totalDuration,
		RateMean:        rateMean,
		RateStdDev:      rateStdDev,
		RateMin:         rateMin,
		RateMax:         rateMax,
		JitterMean:      jitterMean,
		JitterStdDev:    jitterStdDev,
		JitterMax:       jitterMax,
		IsStable:        rateStable && jitterStable,
	}
}
