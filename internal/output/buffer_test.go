package output

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/focalmetrics/internal/fsutil"
	"github.com/banshee-data/focalmetrics/internal/raster"
	"github.com/banshee-data/focalmetrics/internal/rasterio"
	"github.com/banshee-data/focalmetrics/internal/report"
)

var geo = raster.Georef{OriginX: 10, OriginY: 90, CellSize: 2}

func TestBufferRegions(t *testing.T) {
	t.Parallel()

	buf, err := NewBuffer(4, 3, -9999, geo)
	require.NoError(t, err)
	assert.Equal(t, raster.R(0, 0, 4, 3), buf.Bounds())
	assert.Empty(t, report.DefinedValues(buf.Grid()))

	left := buf.Region(raster.R(0, 0, 2, 3))
	right := buf.Region(raster.R(2, 0, 4, 3))
	left.Set(1, 2, 1.5)
	right.Set(2, 0, 2.5)
	right.SetUndefined(3, 1)

	assert.Equal(t, 1.5, buf.At(1, 2))
	assert.Equal(t, -9999.0, buf.At(3, 1))
	assert.Equal(t, []float64{2.5, 1.5}, report.DefinedValues(buf.Grid()))

	assert.Panics(t, func() { left.Set(2, 0, 1) })
	assert.Panics(t, func() { buf.Region(raster.R(3, 0, 5, 1)) })

	_, err = NewBuffer(0, 3, -1, geo)
	assert.ErrorIs(t, err, raster.ErrEmptyGrid)
}

func TestWriterRoundTrip(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"out.asc", "out.lrt"} {
		m := fsutil.NewMemoryFileSystem()
		opts := rasterio.Options{FS: m, TileSize: 2}
		buf, err := NewBuffer(3, 3, -1, raster.Georef{CellSize: 1})
		require.NoError(t, err)
		all := buf.Region(buf.Bounds())
		all.Set(1, 1, 65.0/9.0)
		all.Set(0, 2, 20.0/9.0)

		require.NoError(t, NewWriter(opts).Write(context.Background(), name, buf, geo))

		back, err := rasterio.ReadFloat(name, opts)
		require.NoError(t, err, name)
		assert.Equal(t, geo, back.Geo, name)
		assert.Equal(t, buf.Grid().Values, back.Values, name)
		assert.Equal(t, -1.0, back.NoData)
	}
}

func TestWriterHonoursCancellation(t *testing.T) {
	t.Parallel()

	m := fsutil.NewMemoryFileSystem()
	buf, err := NewBuffer(2, 2, -1, geo)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = NewWriter(rasterio.Options{FS: m}).Write(ctx, "out.asc", buf, geo)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, m.Exists("out.asc"))

	err = NewWriter(rasterio.Options{FS: m}).Write(context.Background(), "out.png", buf, geo)
	assert.ErrorIs(t, err, rasterio.ErrUnsupportedFormat)
}
