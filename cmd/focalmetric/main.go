// Command focalmetric computes a focal-window landscape metric over a
// categorical raster.
//
//	focalmetric -in landcover.asc -out ed.asc -radius 90 -metric edge_density -shape circle
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/banshee-data/focalmetrics/internal/config"
	"github.com/banshee-data/focalmetrics/internal/engine"
	"github.com/banshee-data/focalmetrics/internal/ledger"
	"github.com/banshee-data/focalmetrics/internal/metric"
	"github.com/banshee-data/focalmetrics/internal/monitoring"
	"github.com/banshee-data/focalmetrics/internal/version"
)

var (
	inPath      = flag.String("in", "", "input categorical raster (.asc or .lrt)")
	outPath     = flag.String("out", "", "output metric raster, same format family as -in")
	radius      = flag.Float64("radius", 0, "window radius in map units")
	metricName  = flag.String("metric", "edge_density", "metric identifier (see -list)")
	shape       = flag.String("shape", "circle", "window shape: square or circle")
	configPath  = flag.String("config", "", "engine tuning JSON (defaults apply when empty)")
	ledgerPath  = flag.String("ledger", "", "sqlite run ledger; overrides ledger_path from -config")
	histogram   = flag.String("histogram", "", "write a histogram of output values (.png, .svg or .html)")
	workers     = flag.Int("workers", -1, "worker goroutines; -1 keeps the configured value, 0 uses GOMAXPROCS")
	tileSize    = flag.Int("tile", 0, "tile edge in cells; 0 keeps the configured value")
	dataRoot    = flag.String("root", "", "reject paths outside this directory; overrides data_root from -config")
	verbose     = flag.Bool("v", false, "verbose per-tile logging")
	showVersion = flag.Bool("version", false, "print version and exit")
	listMetrics = flag.Bool("list", false, "list metric identifiers and exit")
)

// Exit codes.
const (
	exitIO       = 1
	exitConfig   = 2
	exitCanceled = 130
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println("focalmetric", version.String())
		return
	}
	if *listMetrics {
		for _, id := range engine.KnownMetrics(metric.Default()) {
			fmt.Println(id)
		}
		return
	}
	if *inPath == "" || *outPath == "" {
		log.Fatal("-in and -out are required")
	}
	monitoring.SetVerbose(*verbose)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := run(ctx)
	if err != nil {
		log.Printf("focalmetric: %v", err)
		stop()
		os.Exit(exitCode(err))
	}
	fmt.Printf("%s -> %s: %s\n", *inPath, *outPath, res.Summary)
	if res.RunID != "" {
		fmt.Printf("run %s\n", res.RunID)
	}
}

func run(ctx context.Context) (*engine.Result, error) {
	cfg := config.EmptyEngineConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadEngineConfig(*configPath); err != nil {
			return nil, &engine.Error{Kind: engine.KindConfiguration, Op: "config", Path: *configPath, Offset: -1, Err: err}
		}
	}

	opts := []engine.Option{engine.WithConfig(cfg)}
	if *workers >= 0 {
		opts = append(opts, engine.WithWorkers(*workers))
	}
	if *tileSize > 0 {
		opts = append(opts, engine.WithTileSize(*tileSize))
	}
	if *histogram != "" {
		opts = append(opts, engine.WithHistogram(*histogram))
	}
	if *dataRoot != "" {
		opts = append(opts, engine.WithDataRoot(*dataRoot))
	}

	lp := cfg.GetLedgerPath()
	if *ledgerPath != "" {
		lp = *ledgerPath
	}
	if lp != "" {
		db, err := ledger.Open(lp)
		if err != nil {
			return nil, &engine.Error{Kind: engine.KindIO, Op: "ledger", Path: lp, Offset: -1, Err: err}
		}
		defer db.Close()
		opts = append(opts, engine.WithLedger(ledger.NewStore(db, nil)))
	}

	return engine.ComputeWindowMetric(ctx, engine.Request{
		InputPath:  *inPath,
		OutputPath: *outPath,
		Radius:     *radius,
		Metric:     strings.TrimSpace(*metricName),
		Shape:      *shape,
	}, opts...)
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, engine.ErrConfiguration):
		return exitConfig
	case errors.Is(err, engine.ErrCanceled):
		return exitCanceled
	}
	return exitIO
}
