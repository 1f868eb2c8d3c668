// Package engine runs a focal-window metric over a categorical raster file
// and writes the metric raster.
//
// ComputeWindowMetric validates the whole request before touching the input,
// so configuration errors never leave traces on disk. The output is written
// atomically once every tile has been computed.
package engine

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/banshee-data/focalmetrics/internal/config"
	"github.com/banshee-data/focalmetrics/internal/fsutil"
	"github.com/banshee-data/focalmetrics/internal/ledger"
	"github.com/banshee-data/focalmetrics/internal/metric"
	"github.com/banshee-data/focalmetrics/internal/monitoring"
	"github.com/banshee-data/focalmetrics/internal/output"
	"github.com/banshee-data/focalmetrics/internal/patch"
	"github.com/banshee-data/focalmetrics/internal/rasterio"
	"github.com/banshee-data/focalmetrics/internal/report"
	"github.com/banshee-data/focalmetrics/internal/tiling"
	"github.com/banshee-data/focalmetrics/internal/timeutil"
	"github.com/banshee-data/focalmetrics/internal/version"
	"github.com/banshee-data/focalmetrics/internal/window"
)

// Request names one run.
type Request struct {
	InputPath  string
	OutputPath string
	Radius     float64 // map units
	Metric     string
	Shape      string
}

// Result describes a successful run.
type Result struct {
	RunID         string // empty without a ledger
	Width         int
	Height        int
	RadiusCells   int
	Metric        metric.ID
	Shape         window.Shape
	Stats         tiling.Stats
	Summary       report.Summary
	HistogramPath string
}

type options struct {
	cfg       *config.EngineConfig
	fs        fsutil.FileSystem
	catalog   *metric.Catalog
	ledger    *ledger.Store
	histogram string
	clock     timeutil.Clock
	workers   *int
	tileSize  *int
	root      *string
}

// Option customises a run.
type Option func(*options)

// WithConfig supplies tuning. The default is an empty EngineConfig.
func WithConfig(cfg *config.EngineConfig) Option { return func(o *options) { o.cfg = cfg } }

// WithFileSystem routes all raster and report I/O through fsys.
func WithFileSystem(fsys fsutil.FileSystem) Option { return func(o *options) { o.fs = fsys } }

// WithCatalog resolves metrics from c instead of metric.Default().
func WithCatalog(c *metric.Catalog) Option { return func(o *options) { o.catalog = c } }

// WithLedger records the run in s.
func WithLedger(s *ledger.Store) Option { return func(o *options) { o.ledger = s } }

// WithHistogram renders a histogram of the output values to path. The
// extension selects PNG, SVG or HTML.
func WithHistogram(path string) Option { return func(o *options) { o.histogram = path } }

// WithClock sets the clock used for timing and progress.
func WithClock(c timeutil.Clock) Option { return func(o *options) { o.clock = c } }

// WithWorkers overrides the configured worker count.
func WithWorkers(n int) Option { return func(o *options) { o.workers = &n } }

// WithTileSize overrides the configured tile size.
func WithTileSize(n int) Option { return func(o *options) { o.tileSize = &n } }

// WithDataRoot overrides the configured data_root. Empty allows any path.
func WithDataRoot(dir string) Option { return func(o *options) { o.root = &dir } }

// plan is a validated request.
type plan struct {
	req      Request
	shape    window.Shape
	desc     metric.Descriptor
	cfg      *config.EngineConfig
	workers  int
	tileSize int
	ioOpts   rasterio.Options
}

func validate(req Request, o *options) (*plan, error) {
	cfg := o.cfg
	if err := cfg.Validate(); err != nil {
		return nil, configError("validate", "", fmt.Errorf("invalid configuration: %w", err))
	}
	workers := cfg.GetWorkers()
	if o.workers != nil {
		workers = *o.workers
	}
	tileSize := cfg.GetTileSize()
	if o.tileSize != nil {
		tileSize = *o.tileSize
	}
	if workers < 0 || tileSize < 1 {
		return nil, configError("validate", "", fmt.Errorf("workers %d and tile size %d must be positive", workers, tileSize))
	}

	if math.IsNaN(req.Radius) || math.IsInf(req.Radius, 0) || req.Radius <= 0 {
		return nil, configError("validate", "", fmt.Errorf("%w: got %v", window.ErrRadius, req.Radius))
	}
	shape, err := window.ParseShape(req.Shape)
	if err != nil {
		return nil, configError("validate", "", err)
	}
	desc, err := o.catalog.Lookup(metric.ID(req.Metric))
	if err != nil {
		return nil, configError("validate", "", err)
	}
	if err := rasterio.CheckFamily(req.InputPath, req.OutputPath); err != nil {
		return nil, configError("validate", req.OutputPath, err)
	}
	root := cfg.GetDataRoot()
	if o.root != nil {
		root = *o.root
	}
	if root != "" {
		if err := fsutil.Confine(root, req.InputPath, req.OutputPath, o.histogram); err != nil {
			return nil, configError("validate", root, err)
		}
	}
	if _, err := rasterio.ParseCompression(cfg.GetCompressionLevel()); err != nil {
		return nil, configError("validate", "", err)
	}
	p := &plan{
		req:      req,
		shape:    shape,
		desc:     desc,
		cfg:      cfg,
		workers:  workers,
		tileSize: tileSize,
		ioOpts: rasterio.Options{
			FS:          o.fs,
			CacheTiles:  cfg.GetBlockCacheTiles(),
			TileSize:    tileSize,
			Compression: cfg.GetCompressionLevel(),
		},
	}
	if o.histogram != "" {
		if _, err := report.ChartFormat(o.histogram); err != nil {
			return nil, configError("validate", o.histogram, err)
		}
	}
	return p, nil
}

// ComputeWindowMetric computes req.Metric for every cell of req.InputPath
// and writes the result to req.OutputPath. Every error is an *Error.
func ComputeWindowMetric(ctx context.Context, req Request, opts ...Option) (*Result, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.cfg == nil {
		o.cfg = config.EmptyEngineConfig()
	}
	if o.fs == nil {
		o.fs = fsutil.OSFileSystem{}
	}
	if o.catalog == nil {
		o.catalog = metric.Default()
	}
	if o.clock == nil {
		o.clock = timeutil.RealClock{}
	}

	p, err := validate(req, o)
	if err != nil {
		return nil, err
	}

	var run *ledger.Run
	if o.ledger != nil {
		run = &ledger.Run{
			InputPath:  req.InputPath,
			OutputPath: req.OutputPath,
			Metric:     string(p.desc.ID),
			Shape:      p.shape.String(),
			RadiusMap:  req.Radius,
			TileSize:   p.tileSize,
			Workers:    p.workers,
			Version:    version.Version,
		}
		if err := o.ledger.Begin(ctx, run); err != nil {
			return nil, classify("ledger", "", err)
		}
	}

	res, err := execute(ctx, p, o)
	if err != nil {
		e := classify("compute", "", err)
		if run != nil {
			// The caller's context may already be done.
			if lerr := o.ledger.Fail(context.Background(), run.RunID, e.Kind.String(), e.Error()); lerr != nil {
				monitoring.Logf("[engine] ledger: %v", lerr)
			}
		}
		return nil, e
	}

	if run != nil {
		res.RunID = run.RunID
		// The output is already committed, so a ledger failure only logs.
		if err := o.ledger.Finish(context.Background(), run.RunID, outcome(res)); err != nil {
			monitoring.Logf("[engine] ledger: run %s: %v", run.RunID, err)
		}
	}
	monitoring.Logf("[engine] %s %s over %dx%d cells in %v: %s",
		p.desc.ID, window.Spec{Shape: p.shape, Radius: res.RadiusCells}, res.Width, res.Height, res.Stats.Duration, res.Summary)
	return res, nil
}

func execute(ctx context.Context, p *plan, o *options) (*Result, error) {
	src, err := rasterio.Open(p.req.InputPath, p.ioOpts)
	if err != nil {
		return nil, classify("open", p.req.InputPath, err)
	}
	defer src.Close()

	geo := src.Georef()
	radius, err := window.CellRadius(p.req.Radius, geo.CellSize)
	if err != nil {
		return nil, classify("open", p.req.InputPath, err)
	}
	spec := window.Spec{Shape: p.shape, Radius: radius}
	if err := spec.Validate(); err != nil {
		return nil, classify("open", p.req.InputPath, err)
	}
	mask := window.BuildSpec(spec)
	b := src.Bounds()
	monitoring.Debugf("[engine] %s: %dx%d cells of %g map units, radius %g -> %d cells",
		p.req.InputPath, b.Dx(), b.Dy(), geo.CellSize, p.req.Radius, radius)

	buf, err := output.NewBuffer(b.Dx(), b.Dy(), p.cfg.GetOutputNodata(), geo)
	if err != nil {
		return nil, classify("compute", p.req.InputPath, err)
	}
	sched := &tiling.Scheduler{
		Workers:       p.workers,
		TileSize:      p.tileSize,
		Prefetch:      p.cfg.GetPrefetchTiles(),
		Clock:         o.clock,
		ProgressEvery: p.cfg.GetProgressInterval(),
	}
	stats, err := sched.Run(ctx, src, mask, scaled(p.desc, geo.CellSize, p.cfg.GetAreaUnits()), buf)
	if err != nil {
		return nil, classify("compute", p.req.InputPath, err)
	}

	res := &Result{
		Width:       b.Dx(),
		Height:      b.Dy(),
		RadiusCells: radius,
		Metric:      p.desc.ID,
		Shape:       p.shape,
		Stats:       stats,
		Summary:     report.Summarize(buf.Grid()),
	}

	var chartData []byte
	if o.histogram != "" {
		chart := report.Chart{
			Title:     string(p.desc.ID),
			Subtitle:  fmt.Sprintf("%s, %s", p.req.InputPath, spec),
			ValueName: string(p.desc.ID),
			Histogram: report.NewHistogram(report.DefinedValues(buf.Grid()), p.cfg.GetHistogramBins()),
		}
		if chartData, err = report.EncodeChart(o.histogram, chart); err != nil {
			return nil, classify("report", o.histogram, err)
		}
	}

	w := output.NewWriter(p.ioOpts)
	if err := w.Write(ctx, p.req.OutputPath, buf, geo); err != nil {
		return nil, classify("write", p.req.OutputPath, err)
	}
	if chartData != nil {
		if err := report.WriteChart(o.fs, o.histogram, chartData); err != nil {
			// a failed run leaves no output behind
			_ = o.fs.Remove(p.req.OutputPath)
			return nil, classify("report", o.histogram, err)
		}
		res.HistogramPath = o.histogram
	}
	return res, nil
}

// scaled converts cell-unit values to map units when requested.
func scaled(d metric.Descriptor, cellSize float64, units string) metric.Func {
	if units != config.AreaUnitsMap || d.Dimension == 0 || cellSize == 1 {
		return d.Func
	}
	factor := math.Pow(cellSize, float64(d.Dimension))
	fn := d.Func
	return func(patches []patch.Patch, validCells int) (float64, bool) {
		v, ok := fn(patches, validCells)
		return v * factor, ok
	}
}

func outcome(r *Result) ledger.Outcome {
	o := ledger.Outcome{
		RadiusCells:    r.RadiusCells,
		Cells:          r.Stats.Cells,
		UndefinedCells: r.Stats.Undefined,
		Tiles:          r.Stats.Tiles,
	}
	if r.Summary.Defined > 0 {
		lo, hi, mean := r.Summary.Min, r.Summary.Max, r.Summary.Mean
		o.Min, o.Max, o.Mean = &lo, &hi, &mean
	}
	return o
}

// KnownMetrics lists the metric identifiers of c in snake_case.
func KnownMetrics(c *metric.Catalog) []string {
	ids := c.IDs()
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = snake(string(id))
	}
	return out
}

func snake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
