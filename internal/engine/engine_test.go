package engine

import (
	"context"
	"errors"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/focalmetrics/internal/config"
	"github.com/banshee-data/focalmetrics/internal/fsutil"
	"github.com/banshee-data/focalmetrics/internal/ledger"
	"github.com/banshee-data/focalmetrics/internal/metric"
	"github.com/banshee-data/focalmetrics/internal/raster"
	"github.com/banshee-data/focalmetrics/internal/rasterio"
	"github.com/banshee-data/focalmetrics/internal/report"
	"github.com/banshee-data/focalmetrics/internal/testutil"
	"github.com/banshee-data/focalmetrics/internal/window"
)

// writeInput stores g under dir/name and returns the path.
func writeInput(t *testing.T, dir, name string, g *raster.Grid) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, rasterio.WriteClasses(path, g, rasterio.Options{TileSize: 4}))
	return path
}

func readOutput(t *testing.T, path string) *raster.FloatGrid {
	t.Helper()
	g, err := rasterio.ReadFloat(path, rasterio.Options{})
	require.NoError(t, err)
	return g
}

func scenarioGrid(t *testing.T) *raster.Grid {
	g := testutil.UniformGrid(t, 5, 5, 1, 255)
	g.Set(2, 2, 2)
	return g
}

func TestComputeConcreteScenario(t *testing.T) {
	t.Parallel()
	for _, ext := range []string{".asc", ".lrt"} {
		t.Run(ext, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			in := writeInput(t, dir, "in"+ext, scenarioGrid(t))

			out := filepath.Join(dir, "awps"+ext)
			res, err := ComputeWindowMetric(context.Background(), Request{
				InputPath: in, OutputPath: out, Radius: 1, Metric: "area_weighted_patch_size", Shape: "square",
			}, WithWorkers(2), WithTileSize(2))
			require.NoError(t, err)
			assert.Equal(t, 1, res.RadiusCells)
			assert.Equal(t, metric.AreaWeightedPatchSize, res.Metric)
			assert.Equal(t, window.Square, res.Shape)
			assert.Equal(t, 25, res.Stats.Cells)
			assert.Equal(t, 0, res.Stats.Undefined)
			assert.Empty(t, res.RunID)

			awps := readOutput(t, out)
			assert.Equal(t, 5, awps.Width)
			assert.Equal(t, 5, awps.Height)
			assert.Equal(t, -9999.0, awps.NoData)
			assert.InDelta(t, 65.0/9.0, awps.At(2, 2), 1e-12)

			out = filepath.Join(dir, "ed"+ext)
			_, err = ComputeWindowMetric(context.Background(), Request{
				InputPath: in, OutputPath: out, Radius: 1, Metric: "EdgeDensity", Shape: "Square",
			})
			require.NoError(t, err)
			ed := readOutput(t, out)
			assert.InDelta(t, 20.0/9.0, ed.At(2, 2), 1e-12)
			assert.InDelta(t, 2.0, ed.At(0, 0), 1e-12)
		})
	}
}

func TestComputeCarriesGeoreference(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	g := testutil.RandomGrid(t, 7, 12, 9, 4, 10, -1)
	in := writeInput(t, dir, "in.lrt", g)
	out := filepath.Join(dir, "out.lrt")

	_, err := ComputeWindowMetric(context.Background(), Request{
		InputPath: in, OutputPath: out, Radius: 60, Metric: "patch_count", Shape: "circle",
	})
	require.NoError(t, err)

	r, err := rasterio.OpenTiled(out, rasterio.Options{})
	require.NoError(t, err)
	defer r.Close()
	if diff := cmp.Diff(g.Geo, r.Georef()); diff != "" {
		t.Errorf("georef mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, g.Bounds(), r.Bounds())
	assert.Equal(t, rasterio.DTypeFloat64, r.DType())
}

func TestComputeIsIndependentOfTilingAndFormat(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	g := testutil.RandomGrid(t, 42, 37, 23, 3, 15, -1)
	asc := writeInput(t, dir, "in.asc", g)
	lrt := writeInput(t, dir, "in.lrt", g)

	req := Request{Radius: 75, Metric: "shannon_diversity", Shape: "circle"}

	req.InputPath, req.OutputPath = asc, filepath.Join(dir, "a.asc")
	_, err := ComputeWindowMetric(context.Background(), req, WithWorkers(1), WithTileSize(256))
	require.NoError(t, err)

	req.InputPath, req.OutputPath = lrt, filepath.Join(dir, "b.lrt")
	_, err = ComputeWindowMetric(context.Background(), req, WithWorkers(4), WithTileSize(5))
	require.NoError(t, err)

	a := readOutput(t, filepath.Join(dir, "a.asc"))
	b := readOutput(t, filepath.Join(dir, "b.lrt"))
	assert.Equal(t, a.Values, b.Values)
}

func TestComputeRadiusRounding(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	in := writeInput(t, dir, "in.asc", testutil.RandomGrid(t, 1, 8, 8, 2, 0, -1))

	tests := []struct {
		radius float64
		want   int
	}{
		{radius: 14, want: 0},
		{radius: 15, want: 1}, // 0.5 rounds away from zero
		{radius: 44.9, want: 1},
		{radius: 45, want: 2},
	}
	for _, tt := range tests {
		res, err := ComputeWindowMetric(context.Background(), Request{
			InputPath: in, OutputPath: filepath.Join(dir, "out.asc"), Radius: tt.radius, Metric: "patch_count", Shape: "square",
		})
		require.NoError(t, err)
		assert.Equal(t, tt.want, res.RadiusCells, "radius %v", tt.radius)
	}
}

func TestComputeMapUnits(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	g, err := raster.NewGrid(3, 3, -1, raster.Georef{CellSize: 30})
	require.NoError(t, err)
	for i := range g.Cells {
		g.Cells[i] = 7
	}
	in := writeInput(t, dir, "in.asc", g)
	cfg := config.EmptyEngineConfig()
	cfg.AreaUnits = config.PtrString(config.AreaUnitsMap)

	tests := []struct {
		metric string
		want   float64
	}{
		{"area_weighted_patch_size", 9 * 900},
		{"edge_density", 12.0 / 9.0 / 30},
		{"patch_count", 1},
	}
	for _, tt := range tests {
		out := filepath.Join(dir, tt.metric+".asc")
		_, err := ComputeWindowMetric(context.Background(), Request{
			InputPath: in, OutputPath: out, Radius: 30, Metric: tt.metric, Shape: "square",
		}, WithConfig(cfg))
		require.NoError(t, err)
		assert.InDelta(t, tt.want, readOutput(t, out).At(1, 1), 1e-9, tt.metric)
	}
}

func TestComputeConfigurationErrors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	in := writeInput(t, dir, "in.asc", scenarioGrid(t))
	out := filepath.Join(dir, "out.asc")
	good := Request{InputPath: in, OutputPath: out, Radius: 1, Metric: "edge_density", Shape: "circle"}

	badCfg := config.EmptyEngineConfig()
	badCfg.TileSize = config.PtrInt(0)

	tests := []struct {
		name   string
		mutate func(*Request)
		opts   []Option
		target error
	}{
		{name: "unknown metric", mutate: func(r *Request) { r.Metric = "contagion" }, target: metric.ErrUnknownMetric},
		{name: "unknown shape", mutate: func(r *Request) { r.Shape = "hexagon" }, target: window.ErrUnknownShape},
		{name: "zero radius", mutate: func(r *Request) { r.Radius = 0 }, target: window.ErrRadius},
		{name: "negative radius", mutate: func(r *Request) { r.Radius = -3 }, target: window.ErrRadius},
		{name: "NaN radius", mutate: func(r *Request) { r.Radius = math.NaN() }, target: window.ErrRadius},
		{name: "infinite radius", mutate: func(r *Request) { r.Radius = math.Inf(1) }, target: window.ErrRadius},
		{name: "family mismatch", mutate: func(r *Request) { r.OutputPath = filepath.Join(dir, "out.lrt") }, target: rasterio.ErrFormatMismatch},
		{name: "unknown extension", mutate: func(r *Request) { r.OutputPath = filepath.Join(dir, "out.tif") }, target: rasterio.ErrUnsupportedFormat},
		{name: "histogram extension", opts: []Option{WithHistogram(filepath.Join(dir, "h.bmp"))}, target: report.ErrUnsupportedChart},
		{name: "invalid config", opts: []Option{WithConfig(badCfg)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := good
			if tt.mutate != nil {
				tt.mutate(&req)
			}
			_, err := ComputeWindowMetric(context.Background(), req, tt.opts...)
			require.Error(t, err)

			var e *Error
			require.True(t, errors.As(err, &e))
			assert.Equal(t, KindConfiguration, e.Kind)
			assert.ErrorIs(t, err, ErrConfiguration)
			assert.NotErrorIs(t, err, ErrIO)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
			assert.NoFileExists(t, req.OutputPath)
		})
	}
}

func TestComputeDataRoot(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	root := filepath.Join(dir, "data")
	require.NoError(t, os.Mkdir(root, 0o755))
	in := writeInput(t, root, "in.asc", scenarioGrid(t))
	req := Request{InputPath: in, OutputPath: filepath.Join(root, "out.asc"), Radius: 1, Metric: "edge_density", Shape: "square"}

	_, err := ComputeWindowMetric(context.Background(), req, WithDataRoot(root))
	require.NoError(t, err)

	cfg := config.EmptyEngineConfig()
	cfg.DataRoot = config.PtrString(root)
	escaped := req
	escaped.OutputPath = filepath.Join(dir, "out.asc")
	_, err = ComputeWindowMetric(context.Background(), escaped, WithConfig(cfg))
	assert.ErrorIs(t, err, fsutil.ErrOutsideRoot)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.NoFileExists(t, escaped.OutputPath)

	// An explicit empty root lifts the configured confinement.
	_, err = ComputeWindowMetric(context.Background(), escaped, WithConfig(cfg), WithDataRoot(""))
	require.NoError(t, err)
	assert.FileExists(t, escaped.OutputPath)
}

func TestComputeIOErrors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	t.Run("missing input", func(t *testing.T) {
		out := filepath.Join(dir, "a.asc")
		_, err := ComputeWindowMetric(context.Background(), Request{
			InputPath: filepath.Join(dir, "nope.asc"), OutputPath: out, Radius: 1, Metric: "edge_density", Shape: "square",
		})
		var e *Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, KindIO, e.Kind)
		assert.Equal(t, "open", e.Op)
		assert.ErrorIs(t, err, fs.ErrNotExist)
		assert.NoFileExists(t, out)
	})

	t.Run("corrupt ascii", func(t *testing.T) {
		in := filepath.Join(dir, "bad.asc")
		require.NoError(t, os.WriteFile(in, []byte(
			"ncols 2\nnrows 2\nxllcorner 0\nyllcorner 0\ncellsize 1\nNODATA_value -1\n1 2\n3 x\n"), 0o644))
		out := filepath.Join(dir, "b.asc")
		_, err := ComputeWindowMetric(context.Background(), Request{
			InputPath: in, OutputPath: out, Radius: 1, Metric: "edge_density", Shape: "square",
		})
		var e *Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, KindIO, e.Kind)
		assert.Equal(t, 8, e.Line)
		assert.Equal(t, in, e.Path)
		assert.ErrorIs(t, err, rasterio.ErrCorrupt)
		assert.NoFileExists(t, out)
	})

	t.Run("corrupt tiled", func(t *testing.T) {
		in := filepath.Join(dir, "bad.lrt")
		require.NoError(t, os.WriteFile(in, []byte("LRT0 not a raster"), 0o644))
		_, err := ComputeWindowMetric(context.Background(), Request{
			InputPath: in, OutputPath: filepath.Join(dir, "c.lrt"), Radius: 1, Metric: "edge_density", Shape: "square",
		})
		var e *Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, KindIO, e.Kind)
		assert.Equal(t, int64(0), e.Offset)
	})

	t.Run("oversized ascii header", func(t *testing.T) {
		in := filepath.Join(dir, "huge.asc")
		require.NoError(t, os.WriteFile(in, []byte(
			"ncols 3037000500\nnrows 3037000500\nxllcorner 0\nyllcorner 0\ncellsize 1\n1 2\n"), 0o644))
		out := filepath.Join(dir, "huge-out.asc")
		_, err := ComputeWindowMetric(context.Background(), Request{
			InputPath: in, OutputPath: out, Radius: 1, Metric: "edge_density", Shape: "square",
		})
		var e *Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, KindIO, e.Kind)
		assert.ErrorIs(t, err, rasterio.ErrCorrupt)
		assert.Equal(t, 6, e.Line)
		assert.NoFileExists(t, out)
	})

	t.Run("float raster as input", func(t *testing.T) {
		in := writeInput(t, dir, "classes.lrt", scenarioGrid(t))
		metricOut := filepath.Join(dir, "metric.lrt")
		_, err := ComputeWindowMetric(context.Background(), Request{
			InputPath: in, OutputPath: metricOut, Radius: 1, Metric: "edge_density", Shape: "square",
		})
		require.NoError(t, err)
		_, err = ComputeWindowMetric(context.Background(), Request{
			InputPath: metricOut, OutputPath: filepath.Join(dir, "d.lrt"), Radius: 1, Metric: "edge_density", Shape: "square",
		})
		assert.ErrorIs(t, err, rasterio.ErrDataType)
		assert.ErrorIs(t, err, ErrConfiguration)
	})

	t.Run("missing output directory", func(t *testing.T) {
		in := writeInput(t, dir, "ok.asc", scenarioGrid(t))
		out := filepath.Join(dir, "missing", "out.asc")
		_, err := ComputeWindowMetric(context.Background(), Request{
			InputPath: in, OutputPath: out, Radius: 1, Metric: "edge_density", Shape: "square",
		})
		var e *Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, KindIO, e.Kind)
		assert.Equal(t, "write", e.Op)
		assert.NoFileExists(t, out)
	})
}

func TestComputeCanceled(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	in := writeInput(t, dir, "in.asc", testutil.RandomGrid(t, 3, 20, 20, 3, 0, -1))
	out := filepath.Join(dir, "out.asc")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ComputeWindowMetric(ctx, Request{
		InputPath: in, OutputPath: out, Radius: 30, Metric: "edge_density", Shape: "square",
	}, WithTileSize(4))
	assert.ErrorIs(t, err, ErrCanceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, out)
}

func TestComputeWithMemoryFileSystem(t *testing.T) {
	t.Parallel()
	mem := fsutil.NewMemoryFileSystem()
	opts := rasterio.Options{FS: mem}
	require.NoError(t, rasterio.WriteClasses("/data/in.lrt", scenarioGrid(t), opts))

	res, err := ComputeWindowMetric(context.Background(), Request{
		InputPath: "/data/in.lrt", OutputPath: "/data/out.lrt", Radius: 1, Metric: "awps", Shape: "square",
	}, WithFileSystem(mem), WithHistogram("/data/hist.html"))
	require.Error(t, err, "awps is not a catalog identifier")
	assert.Nil(t, res)

	res, err = ComputeWindowMetric(context.Background(), Request{
		InputPath: "/data/in.lrt", OutputPath: "/data/out.lrt", Radius: 1, Metric: "AreaWeightedPatchSize", Shape: "square",
	}, WithFileSystem(mem), WithHistogram("/data/hist.html"))
	require.NoError(t, err)
	assert.Equal(t, "/data/hist.html", res.HistogramPath)
	assert.True(t, mem.Exists("/data/hist.html"))

	g, err := rasterio.ReadFloat("/data/out.lrt", opts)
	require.NoError(t, err)
	assert.InDelta(t, 65.0/9.0, g.At(2, 2), 1e-12)
	assert.Equal(t, 25, res.Summary.Defined)
	assert.Equal(t, 4.0, res.Summary.Min) // corner window, one patch of 4
	assert.InDelta(t, 65.0/9.0, res.Summary.Max, 1e-12)
}

func TestComputeHistogramFollowsOutput(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	in := writeInput(t, dir, "in.asc", scenarioGrid(t))
	hist := filepath.Join(dir, "hist.svg")
	require.NoError(t, os.WriteFile(hist, []byte("earlier chart"), 0o644))

	// output write fails: an existing chart at the histogram path is untouched
	_, err := ComputeWindowMetric(context.Background(), Request{
		InputPath: in, OutputPath: filepath.Join(dir, "missing", "out.asc"), Radius: 1, Metric: "edge_density", Shape: "square",
	}, WithHistogram(hist))
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "write", e.Op)
	data, err := os.ReadFile(hist)
	require.NoError(t, err)
	assert.Equal(t, "earlier chart", string(data))

	// chart write fails: the committed output is removed
	out := filepath.Join(dir, "out.asc")
	_, err = ComputeWindowMetric(context.Background(), Request{
		InputPath: in, OutputPath: out, Radius: 1, Metric: "edge_density", Shape: "square",
	}, WithHistogram(filepath.Join(dir, "missing", "hist.svg")))
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "report", e.Op)
	assert.Equal(t, KindIO, e.Kind)
	assert.NoFileExists(t, out)
}

func TestComputeRecordsLedger(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	db, err := ledger.Open(filepath.Join(dir, "runs.db"))
	require.NoError(t, err)
	defer db.Close()
	store := ledger.NewStore(db, nil)
	ctx := context.Background()

	in := writeInput(t, dir, "in.asc", scenarioGrid(t))
	res, err := ComputeWindowMetric(ctx, Request{
		InputPath: in, OutputPath: filepath.Join(dir, "out.asc"), Radius: 1, Metric: "edge_density", Shape: "square",
	}, WithLedger(store), WithWorkers(2))
	require.NoError(t, err)
	require.NotEmpty(t, res.RunID)

	run, err := store.Get(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusSucceeded, run.Status)
	assert.Equal(t, "EdgeDensity", run.Metric)
	assert.Equal(t, "square", run.Shape)
	assert.Equal(t, 1, run.RadiusCells)
	assert.Equal(t, 2, run.Workers)
	assert.Equal(t, 25, run.Cells)
	require.NotNil(t, run.ValueMax)
	assert.InDelta(t, 20.0/9.0, *run.ValueMax, 1e-12)

	_, err = ComputeWindowMetric(ctx, Request{
		InputPath: filepath.Join(dir, "gone.asc"), OutputPath: filepath.Join(dir, "x.asc"), Radius: 1, Metric: "edge_density", Shape: "square",
	}, WithLedger(store))
	require.Error(t, err)

	// Configuration errors are rejected before a run is recorded.
	_, err = ComputeWindowMetric(ctx, Request{
		InputPath: in, OutputPath: filepath.Join(dir, "y.asc"), Radius: 1, Metric: "nope", Shape: "square",
	}, WithLedger(store))
	require.Error(t, err)

	runs, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	var failed *ledger.Run
	for _, r := range runs {
		if r.Status == ledger.StatusFailed {
			failed = r
		}
	}
	require.NotNil(t, failed)
	assert.Equal(t, "io", failed.ErrorKind)
	assert.Contains(t, failed.ErrorMessage, "gone.asc")
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()
	e := &Error{Kind: KindIO, Op: "write", Path: "/tmp/out.asc", Offset: -1, Err: errors.New("disk full")}
	assert.Equal(t, "io error during write of /tmp/out.asc: disk full", e.Error())
	assert.Equal(t, "configuration", KindConfiguration.String())
	assert.Equal(t, "canceled", KindCanceled.String())
	assert.False(t, errors.Is(e, ErrConfiguration))
	assert.True(t, errors.Is(e, ErrIO))
}

func TestKnownMetrics(t *testing.T) {
	t.Parallel()
	got := KnownMetrics(metric.Default())
	assert.Contains(t, got, "area_weighted_patch_size")
	assert.Contains(t, got, "edge_density")
	assert.Contains(t, got, "most_common_class")
}
