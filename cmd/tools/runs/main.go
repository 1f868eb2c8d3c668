// Command runs lists engine runs recorded in a ledger database.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/banshee-data/focalmetrics/internal/ledger"
)

func main() {
	dbPath := flag.String("db", "focalmetric-runs.db", "path to the run ledger")
	limit := flag.Int("n", 20, "number of runs to show, newest first; 0 shows all")
	runID := flag.String("run", "", "show a single run as JSON")
	asJSON := flag.Bool("json", false, "print runs as JSON")
	flag.Parse()

	if _, err := os.Stat(*dbPath); err != nil {
		log.Fatalf("ledger %s not accessible: %v", *dbPath, err)
	}
	db, err := ledger.Open(*dbPath)
	if err != nil {
		log.Fatalf("open ledger: %v", err)
	}
	defer db.Close()
	store := ledger.NewStore(db, nil)
	ctx := context.Background()

	if *runID != "" {
		r, err := store.Get(ctx, *runID)
		if err != nil {
			log.Fatalf("get run: %v", err)
		}
		if err := writeJSON(os.Stdout, r); err != nil {
			log.Fatalf("encode: %v", err)
		}
		return
	}

	runs, err := store.List(ctx, *limit)
	if err != nil {
		log.Fatalf("list runs: %v", err)
	}
	if *asJSON {
		err = writeJSON(os.Stdout, runs)
	} else {
		err = writeTable(os.Stdout, runs)
	}
	if err != nil {
		log.Fatalf("write: %v", err)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeTable(w io.Writer, runs []*ledger.Run) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tRUN\tSTATUS\tMETRIC\tWINDOW\tCELLS\tDURATION\tINPUT\tDETAIL")
	for _, r := range runs {
		detail := ""
		switch {
		case r.Status == ledger.StatusFailed:
			detail = r.ErrorKind + ": " + r.ErrorMessage
		case r.ValueMean != nil:
			detail = fmt.Sprintf("mean %.4g", *r.ValueMean)
		}
		fmt.Fprintf(tw, "%s\t%.8s\t%s\t%s\t%s r=%d\t%d\t%v\t%s\t%s\n",
			r.StartedAt.Local().Format(time.DateTime), r.RunID, r.Status, r.Metric, r.Shape, r.RadiusCells,
			r.Cells, r.Duration().Round(time.Millisecond), r.InputPath, detail)
	}
	return tw.Flush()
}
