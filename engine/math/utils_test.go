package math

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, 5, Clamp(5, 0, 10))
	assert.Equal(t, 0, Clamp(-3, 0, 10))
	assert.Equal(t, 10, Clamp(42, 0, 10))
	assert.Equal(t, float32(0.5), Clamp(float32(0.5), 0, 1))
}

func TestFitCentered(t *testing.T) {
	tests := []struct {
		name                   string
		srcW, srcH, dstW, dstH uint32
		x, y                   int32
		w, h                   uint32
	}{
		{"square into wide", 256, 256, 1280, 720, 280, 0, 720, 720},
		{"square into tall", 256, 256, 400, 800, 0, 200, 400, 400},
		{"same size", 256, 256, 256, 256, 0, 0, 256, 256},
		{"wide into square", 200, 100, 100, 100, 0, 25, 100, 50},
		{"empty destination", 256, 256, 0, 720, 0, 0, 0, 0},
		{"empty source", 0, 256, 1280, 720, 0, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y, w, h := FitCentered(tt.srcW, tt.srcH, tt.dstW, tt.dstH)
			assert.Equal(t, tt.x, x)
			assert.Equal(t, tt.y, y)
			assert.Equal(t, tt.w, w)
			assert.Equal(t, tt.h, h)
		})
	}
}
