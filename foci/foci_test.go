package foci

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func regionMap(rows, cols int, labeled map[[2]int]int32) RegionMap {
	m := NewRegionMap(rows, cols)
	for p, v := range labeled {
		m.Set(p[0], p[1], v)
	}
	return m
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name     string
		m        RegionMap
		expected []Descriptor
	}{
		{
			name:     "two pixels on one row",
			m:        regionMap(3, 3, map[[2]int]int32{{0, 0}: 1, {0, 2}: 1}),
			expected: []Descriptor{{Row: 0, Col: 1, Radius: 1}},
		},
		{
			name:     "single pixel is dropped",
			m:        regionMap(4, 4, map[[2]int]int32{{2, 1}: 7}),
			expected: []Descriptor{},
		},
		{
			name:     "no positive labels",
			m:        NewRegionMap(5, 5),
			expected: []Descriptor{},
		},
		{
			name: "bounding box diagonal",
			m: regionMap(6, 6, map[[2]int]int32{
				{1, 1}: 3, {1, 2}: 3, {2, 1}: 3, {4, 5}: 3,
			}),
			// Δrow = 3, Δcol = 4 → diagonal 5.
			expected: []Descriptor{{Row: 2, Col: 2.25, Radius: 2.5}},
		},
		{
			name: "ascending label order",
			m: regionMap(8, 8, map[[2]int]int32{
				{6, 6}: 9, {6, 7}: 9,
				{0, 0}: 2, {2, 0}: 2,
			}),
			expected: []Descriptor{
				{Row: 1, Col: 0, Radius: 1},
				{Row: 6, Col: 6.5, Radius: 0.5},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(tt.m)
			require.Len(t, got, len(tt.expected))
			for i := range tt.expected {
				assert.InDelta(t, tt.expected[i].Row, got[i].Row, 1e-6)
				assert.InDelta(t, tt.expected[i].Col, got[i].Col, 1e-6)
				assert.InDelta(t, tt.expected[i].Radius, got[i].Radius, 1e-6)
			}
		})
	}
}

func TestExtractRadiusNeverNegative(t *testing.T) {
	m := NewRegionMap(10, 10)
	for row := 0; row < 10; row++ {
		for col := 0; col < 10; col++ {
			m.Set(row, col, int32((row*10+col)%4))
		}
	}
	for _, d := range Extract(m) {
		assert.Greater(t, d.Radius, float32(0))
	}
}

func TestRegionMapValues(t *testing.T) {
	m := regionMap(3, 3, map[[2]int]int32{{0, 0}: 5, {1, 1}: 2, {2, 2}: 5})
	assert.Equal(t, []int32{2, 5}, m.Values())
	assert.Empty(t, NewRegionMap(2, 2).Values())
}

func TestMask(t *testing.T) {
	m := NewMask(2, 3)
	require.NoError(t, m.Validate())
	assert.True(t, m.Empty())

	m.Set(1, 2, 1)
	assert.False(t, m.Empty())
	assert.Equal(t, uint8(1), m.At(1, 2))

	bad := Mask{Rows: 2, Cols: 2, Pix: make([]uint8, 3)}
	assert.Error(t, bad.Validate())
	assert.Error(t, Mask{}.Validate())
}
