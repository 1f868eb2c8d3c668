package raster

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromRows(t *testing.T) {
	t.Parallel()

	g, err := FromRows([][]int32{
		{1, 2, 3},
		{4, 5, 6},
	}, 255)
	require.NoError(t, err)
	assert.Equal(t, 3, g.Width)
	assert.Equal(t, 2, g.Height)
	assert.Equal(t, int32(6), g.At(2, 1))
	assert.Equal(t, 1.0, g.Geo.CellSize)

	_, err = FromRows(nil, 0)
	assert.ErrorIs(t, err, ErrEmptyGrid)
	_, err = FromRows([][]int32{{1}, {}}, 0)
	assert.ErrorIs(t, err, ErrNonRectangular)
}

func TestNewGrid(t *testing.T) {
	t.Parallel()

	g, err := NewGrid(4, 3, 9, Georef{CellSize: 30})
	require.NoError(t, err)
	for _, v := range g.Cells {
		assert.Equal(t, int32(9), v)
	}

	_, err = NewGrid(0, 3, 9, Georef{CellSize: 1})
	assert.ErrorIs(t, err, ErrEmptyGrid)
	_, err = NewGrid(2, 2, 9, Georef{})
	assert.ErrorIs(t, err, ErrCellSize)
}

func TestCheckSize(t *testing.T) {
	t.Parallel()

	assert.NoError(t, CheckSize(1, 1))
	assert.NoError(t, CheckSize(MaxCells, 1))
	assert.NoError(t, CheckSize(1<<15, 1<<15))
	assert.ErrorIs(t, CheckSize(MaxCells+1, 1), ErrTooLarge)
	assert.ErrorIs(t, CheckSize(3037000500, 3037000500), ErrTooLarge)
	assert.ErrorIs(t, CheckSize(0, 5), ErrEmptyGrid)

	_, err := NewGrid(1<<20, 1<<20, 0, Georef{CellSize: 1})
	assert.ErrorIs(t, err, ErrTooLarge)
	_, err = NewFloatGrid(1<<20, 1<<20, 0, Georef{CellSize: 1})
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestGridReadBlock(t *testing.T) {
	t.Parallel()

	g, err := FromRows([][]int32{
		{1, 2, 3, 4},
		{5, 6, 7, 8},
		{9, 0, 1, 2},
	}, 0)
	require.NoError(t, err)

	b, err := g.ReadBlock(context.Background(), R(1, 1, 3, 3))
	require.NoError(t, err)

	v, ok := b.Value(2, 1)
	assert.True(t, ok)
	assert.Equal(t, int32(7), v)

	// nodata
	_, ok = b.Value(1, 2)
	assert.False(t, ok)
	assert.Equal(t, int32(0), b.Raw(1, 2))

	// outside the block rect
	_, ok = b.Value(0, 0)
	assert.False(t, ok)

	_, err = g.ReadBlock(context.Background(), R(2, 2, 5, 3))
	assert.True(t, errors.Is(err, ErrOutOfExtent))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.ReadBlock(ctx, R(0, 0, 1, 1))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRect(t *testing.T) {
	t.Parallel()

	r := R(2, 3, 6, 5)
	assert.Equal(t, 4, r.Dx())
	assert.Equal(t, 2, r.Dy())
	assert.Equal(t, 8, r.Area())
	assert.True(t, r.Contains(2, 3))
	assert.False(t, r.Contains(6, 3))

	assert.Equal(t, R(0, 1, 8, 7), r.Inset(2))
	assert.Equal(t, R(2, 3, 4, 5), r.Intersect(R(0, 0, 4, 10)))
	assert.True(t, r.Intersect(R(10, 10, 12, 12)).Empty())
	assert.True(t, R(0, 0, 10, 10).ContainsRect(r))
	assert.False(t, r.ContainsRect(R(0, 0, 10, 10)))
	assert.Equal(t, 0, R(3, 3, 1, 1).Area())
}

func TestFloatGrid(t *testing.T) {
	t.Parallel()

	_, err := NewFloatGrid(0, 3, -1, Georef{CellSize: 1})
	assert.ErrorIs(t, err, ErrEmptyGrid)
	_, err = NewFloatGrid(3, 3, -1, Georef{CellSize: math.Inf(1)})
	assert.ErrorIs(t, err, ErrCellSize)

	g, err := NewFloatGrid(3, 2, -9999, Georef{CellSize: 10})
	require.NoError(t, err)
	assert.Equal(t, R(0, 0, 3, 2), g.Bounds())
	assert.True(t, g.IsNodata(g.At(2, 1)))

	g.Set(2, 1, 0.5)
	assert.Equal(t, 0.5, g.Values[5])
	assert.False(t, g.IsNodata(0.5))

	nan, err := NewFloatGrid(1, 1, math.NaN(), Georef{CellSize: 1})
	require.NoError(t, err)
	assert.True(t, nan.IsNodata(nan.At(0, 0)))
	assert.False(t, nan.IsNodata(0))
}
