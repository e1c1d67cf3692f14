package confidence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(-0.5))
	assert.Equal(t, 1.0, Clamp(1.3))
	assert.Equal(t, 0.9, Clamp(0.9))
}

func TestAboveThreshold(t *testing.T) {
	assert.True(t, AboveThreshold(0.7, MediumConfidence))
	assert.True(t, AboveThreshold(0.71, 0.7))
	assert.False(t, AboveThreshold(0.69, 0.7))
}

func TestAverage(t *testing.T) {
	assert.Equal(t, 0.0, Average(nil))
	assert.InDelta(t, 0.7, Average([]float64{0.5, 0.7, 0.9}), 1e-9)
}
