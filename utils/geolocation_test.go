package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateDistance(t *testing.T) {
	// one degree of latitude is roughly 111.2 km
	d := CalculateDistance(0, 0, 1, 0)
	assert.InDelta(t, 111195, d, 100)

	assert.Zero(t, CalculateDistance(45.8, 15.97, 45.8, 15.97))
}

func TestIsWithinRadius(t *testing.T) {
	// ~140 m northeast of the center
	assert.True(t, IsWithinRadius(45.801, 15.971, 45.8, 15.97, 200))
	assert.False(t, IsWithinRadius(45.801, 15.971, 45.8, 15.97, 100))
}

func TestIsValidCoordinate(t *testing.T) {
	tests := []struct {
		name     string
		lat, lon float64
		valid    bool
	}{
		{"origin", 0, 0, true},
		{"zagreb", 45.8, 15.97, true},
		{"poles", 90, 180, true},
		{"latitude out of range", 91, 0, false},
		{"longitude out of range", 0, -181, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, IsValidCoordinate(tt.lat, tt.lon))
		})
	}
}
