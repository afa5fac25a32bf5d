package domain

import "math"

// minHistoryPoints is the smallest sample a z-score is computed from. Below
// it the score is 0 so that young tokens neither spike nor crater the
// composite on noise.
const minHistoryPoints = 3

// ZScore standardizes value against the history sample. Returns 0 when the
// sample is too small or has zero variance.
func ZScore(value float64, history []float64) float64 {
	if len(history) < minHistoryPoints {
		return 0
	}
	m := mean(history)
	sd := stddev(history, m)
	if sd == 0 {
		return 0
	}
	return (value - m) / sd
}

func mean(sample []float64) float64 {
	var sum float64
	for _, v := range sample {
		sum += v
	}
	return sum / float64(len(sample))
}

// stddev is the population standard deviation of the sample.
func stddev(sample []float64, m float64) float64 {
	var sum float64
	for _, v := range sample {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(sample)))
}
