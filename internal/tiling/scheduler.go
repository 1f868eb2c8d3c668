package tiling

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/focalmetrics/internal/metric"
	"github.com/banshee-data/focalmetrics/internal/monitoring"
	"github.com/banshee-data/focalmetrics/internal/output"
	"github.com/banshee-data/focalmetrics/internal/patch"
	"github.com/banshee-data/focalmetrics/internal/raster"
	"github.com/banshee-data/focalmetrics/internal/timeutil"
	"github.com/banshee-data/focalmetrics/internal/window"
)

// DefaultTileSize is used when Scheduler.TileSize is zero.
const DefaultTileSize = 256

// Scheduler tunes a run. The zero value uses GOMAXPROCS workers, 256-cell
// tiles, no read-ahead and no progress logging.
type Scheduler struct {
	Workers  int
	TileSize int
	Prefetch int // tiles the reader may hold ahead of the workers

	Clock         timeutil.Clock
	ProgressEvery time.Duration // 0 disables periodic progress lines
}

// Stats summarises a completed run.
type Stats struct {
	Tiles     int
	Cells     int
	Undefined int // cells written as nodata
	Collided  int // defined values equal to the nodata sentinel
	Duration  time.Duration
}

type job struct {
	tile  Tile
	block *raster.Block
}

func (s *Scheduler) workers() int {
	if s.Workers <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return s.Workers
}

func (s *Scheduler) tileSize() int {
	if s.TileSize <= 0 {
		return DefaultTileSize
	}
	return s.TileSize
}

func (s *Scheduler) clock() timeutil.Clock {
	if s.Clock == nil {
		return timeutil.RealClock{}
	}
	return s.Clock
}

// Run evaluates fn for every cell of src and stores the results in out.
//
// A single producer reads tile blocks (core plus halo) and hands them to the
// workers over a bounded channel. Each worker owns one patch.Labeler. The
// context is checked between tiles; a tile already being computed runs to
// completion. On error out may be partially filled and must be discarded.
func (s *Scheduler) Run(ctx context.Context, src raster.Source, mask *window.Mask, fn metric.Func, out *output.Buffer) (Stats, error) {
	if out.Bounds() != src.Bounds() {
		return Stats{}, fmt.Errorf("tiling: output %v does not match input %v", out.Bounds(), src.Bounds())
	}
	clock := s.clock()
	start := clock.Now()
	tiles := Plan(src.Bounds(), s.tileSize(), mask.Radius)
	workers := s.workers()
	if workers > len(tiles) {
		workers = len(tiles)
	}
	prefetch := s.Prefetch
	if prefetch < 0 {
		prefetch = 0
	}
	monitoring.Debugf("[tiling] %d tiles of %d cells, %d workers, radius %d", len(tiles), s.tileSize(), workers, mask.Radius)

	var done, cells, undefined, collided atomic.Int64
	stopProgress := s.startProgress(clock, &done, len(tiles))
	defer stopProgress()

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan job, prefetch)

	g.Go(func() error {
		defer close(jobs)
		for _, t := range tiles {
			if err := gctx.Err(); err != nil {
				return err
			}
			block, err := src.ReadBlock(gctx, t.Halo)
			if err != nil {
				return fmt.Errorf("read %v: %w", t, err)
			}
			select {
			case jobs <- job{tile: t, block: block}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			l := patch.NewLabeler(mask)
			for j := range jobs {
				if err := gctx.Err(); err != nil {
					return err
				}
				n, u, c := computeTile(l, j, mask, fn, out.Region(j.tile.Core))
				cells.Add(int64(n))
				undefined.Add(int64(u))
				collided.Add(int64(c))
				done.Add(1)
				monitoring.Debugf("[tiling] finished %v", j.tile)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Stats{}, err
	}
	st := Stats{
		Tiles:     len(tiles),
		Cells:     int(cells.Load()),
		Undefined: int(undefined.Load()),
		Collided:  int(collided.Load()),
		Duration:  clock.Since(start),
	}
	if st.Collided > 0 {
		monitoring.Logf("[tiling] %d defined values equal the output nodata %v and will read back as undefined", st.Collided, out.Nodata())
	}
	monitoring.Debugf("[tiling] %d cells in %v, %d undefined", st.Cells, st.Duration, st.Undefined)
	return st, nil
}

// computeTile fills one tile's region and returns the number of cells
// written, how many of them were undefined and how many defined values
// collided with nodata.
func computeTile(l *patch.Labeler, j job, mask *window.Mask, fn metric.Func, region output.Region) (cells, undefined, collided int) {
	if !j.block.Rect.ContainsRect(j.tile.Halo) {
		panic(fmt.Sprintf("tiling: block %v does not cover halo of %v", j.block.Rect, j.tile))
	}
	core := j.tile.Core
	for y := core.Y0; y < core.Y1; y++ {
		for x := core.X0; x < core.X1; x++ {
			cells++
			if _, ok := j.block.Value(x, y); !ok {
				region.SetUndefined(x, y)
				undefined++
				continue
			}
			res := l.Label(j.block, x, y, mask)
			v, ok := fn(res.Patches, res.ValidCells)
			if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
				region.SetUndefined(x, y)
				undefined++
				continue
			}
			if region.IsNodata(v) {
				collided++
			}
			region.Set(x, y, v)
		}
	}
	return cells, undefined, collided
}

func (s *Scheduler) startProgress(clock timeutil.Clock, done *atomic.Int64, total int) func() {
	if s.ProgressEvery <= 0 {
		return func() {}
	}
	ticker := clock.NewTicker(s.ProgressEvery)
	stop := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		for {
			select {
			case <-ticker.C():
				monitoring.Logf("[tiling] %d/%d tiles done", done.Load(), total)
			case <-stop:
				return
			}
		}
	}()
	return func() {
		ticker.Stop()
		close(stop)
		<-exited
	}
}
