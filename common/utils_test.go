package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAlignUp(t *testing.T) {
	tests := []struct {
		name    string
		n       uint32
		quantum uint32
		want    uint32
	}{
		{"zero stays zero", 0, 128, 0},
		{"exact multiple", 256, 128, 256},
		{"one over", 130, 128, 256},
		{"triangles", 1025, 1024, 2048},
		{"zero quantum", 77, 0, 77},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AlignUp(tt.n, tt.quantum))
		})
	}
}

func TestDivCeil(t *testing.T) {
	assert.Equal(t, uint32(240), DivCeil(uint32(1920), 8))
	assert.Equal(t, uint32(135), DivCeil(uint32(1080), 8))
	assert.Equal(t, uint32(136), DivCeil(uint32(1081), 8))
	assert.Equal(t, uint32(1), DivCeil(uint32(1), 16))
	assert.Equal(t, uint32(0), DivCeil(uint32(5), 0))
}

func TestExtentScale(t *testing.T) {
	e := Extent2D{Width: 1920, Height: 1080}
	assert.Equal(t, Extent2D{Width: 960, Height: 540}, e.Scale(0.5))
	assert.Equal(t, Extent2D{Width: 1, Height: 1}, Extent2D{Width: 1, Height: 1}.Scale(0.25))
	assert.True(t, Extent2D{Width: 0, Height: 10}.Empty())
	assert.Equal(t, "1280x720", Extent2D{Width: 1280, Height: 720}.String())
}

func TestCoalesce(t *testing.T) {
	assert.Equal(t, "b", Coalesce("", "b", "c"))
	assert.Equal(t, 0, Coalesce(0, 0))
}
