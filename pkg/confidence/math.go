// Package confidence provides confidence score math utilities.
package confidence

// Clamp ensures a confidence score is in valid range [0, 1].
func Clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// AboveThreshold checks if a score meets a minimum requirement.
func AboveThreshold(score, threshold float64) bool {
	return score >= threshold
}

// Average returns the arithmetic mean of the scores, 0 when empty.
func Average(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores))
}

// Default confidence tiers.
const (
	HighConfidence   = 0.9
	MediumConfidence = 0.7
	LowConfidence    = 0.5
)
