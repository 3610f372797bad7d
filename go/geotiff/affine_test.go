package geotiff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eocube/eocube/go/types"
)

func TestAffineNorthUp(t *testing.T) {
	a := NorthUp(10, 600000, 5620000)

	x, y := a.Apply(0, 0)
	assert.Equal(t, 600000.0, x)
	assert.Equal(t, 5620000.0, y)

	x, y = a.Apply(100, 100)
	assert.Equal(t, 601000.0, x)
	assert.Equal(t, 5619000.0, y)
}

func TestAffineInvert(t *testing.T) {
	a := NorthUp(10, 600000, 5620000)
	inv, err := a.Invert()
	require.NoError(t, err)

	col, row := inv.Apply(600020, 5619970)
	assert.Equal(t, 2.0, col)
	assert.Equal(t, 3.0, row)
}

func TestAffineInvert_Rotated(t *testing.T) {
	a := Affine{2, 1, 5, 1, 3, 7}
	inv, err := a.Invert()
	require.NoError(t, err)

	for _, p := range [][2]float64{{0, 0}, {3, 4}, {-7, 11}} {
		x, y := a.Apply(p[0], p[1])
		col, row := inv.Apply(x, y)
		assert.InDelta(t, p[0], col, 1e-9)
		assert.InDelta(t, p[1], row, 1e-9)
	}
}

func TestAffineInvert_Degenerate(t *testing.T) {
	a := Affine{0, 0, 5, 0, 0, 7}
	_, err := a.Invert()
	require.ErrorIs(t, err, types.ErrDataCorruption)
}
