package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/focalmetrics/internal/timeutil"
)

// ErrNotFound indicates an unknown run ID.
var ErrNotFound = errors.New("ledger: run not found")

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Run is one engine invocation.
type Run struct {
	RunID       string  `json:"run_id"`
	InputPath   string  `json:"input_path"`
	OutputPath  string  `json:"output_path"`
	Metric      string  `json:"metric"`
	Shape       string  `json:"shape"`
	RadiusMap   float64 `json:"radius_map"`
	RadiusCells int     `json:"radius_cells"`
	TileSize    int     `json:"tile_size"`
	Workers     int     `json:"workers"`

	Status       Status `json:"status"`
	ErrorKind    string `json:"error_kind,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	Cells          int      `json:"cells"`
	UndefinedCells int      `json:"undefined_cells"`
	Tiles          int      `json:"tiles"`
	ValueMin       *float64 `json:"value_min,omitempty"`
	ValueMax       *float64 `json:"value_max,omitempty"`
	ValueMean      *float64 `json:"value_mean,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"` // zero while running
	Version    string    `json:"version"`
}

// Duration returns the wall time of a finished run.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Outcome carries the results recorded by Finish. The value statistics are
// nil when the output holds no defined cells.
type Outcome struct {
	RadiusCells    int
	Cells          int
	UndefinedCells int
	Tiles          int
	Min, Max, Mean *float64
}

// Store persists runs.
type Store struct {
	db    *sql.DB
	clock timeutil.Clock
}

// NewStore creates a Store. A nil clock uses the wall clock.
func NewStore(db *DB, clock timeutil.Clock) *Store {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Store{db: db.DB, clock: clock}
}

// Begin inserts r as running. It assigns RunID when empty and sets StartedAt.
func (s *Store) Begin(ctx context.Context, r *Run) error {
	if r.RunID == "" {
		r.RunID = uuid.New().String()
	}
	r.Status = StatusRunning
	r.StartedAt = s.clock.Now()

	return retryOnBusy(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO runs (
				run_id, input_path, output_path, metric, shape,
				radius_map, radius_cells, tile_size, workers,
				status, started_at, version
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.RunID, r.InputPath, r.OutputPath, r.Metric, r.Shape,
			r.RadiusMap, r.RadiusCells, r.TileSize, r.Workers,
			string(r.Status), r.StartedAt.UnixNano(), r.Version,
		)
		if err != nil {
			return fmt.Errorf("insert run %s: %w", r.RunID, err)
		}
		return nil
	})
}

// Finish marks a run succeeded and records its outcome. o.RadiusCells
// replaces the value given to Begin.
func (s *Store) Finish(ctx context.Context, runID string, o Outcome) error {
	return s.update(ctx, runID, `
		UPDATE runs SET status = ?, radius_cells = ?, cells = ?, undefined_cells = ?, tiles = ?,
			value_min = ?, value_max = ?, value_mean = ?, finished_at = ?
		WHERE run_id = ?`,
		string(StatusSucceeded), o.RadiusCells, o.Cells, o.UndefinedCells, o.Tiles,
		nullFloat(o.Min), nullFloat(o.Max), nullFloat(o.Mean), s.clock.Now().UnixNano(),
		runID,
	)
}

// Fail marks a run failed with an error classification and message.
func (s *Store) Fail(ctx context.Context, runID, kind, message string) error {
	return s.update(ctx, runID, `
		UPDATE runs SET status = ?, error_kind = ?, error_message = ?, finished_at = ?
		WHERE run_id = ?`,
		string(StatusFailed), kind, message, s.clock.Now().UnixNano(), runID,
	)
}

func (s *Store) update(ctx context.Context, runID, query string, args ...any) error {
	return retryOnBusy(func() error {
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("update run %s: %w", runID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		return nil
	})
}

const runColumns = `run_id, input_path, output_path, metric, shape,
	radius_map, radius_cells, tile_size, workers,
	status, error_kind, error_message,
	cells, undefined_cells, tiles, value_min, value_max, value_mean,
	started_at, finished_at, version`

// Get returns one run.
func (s *Store) Get(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	return r, err
}

// List returns up to limit runs, newest first. limit <= 0 returns all runs.
func (s *Store) List(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		r                 Run
		status            string
		minV, maxV, meanV sql.NullFloat64
		started           int64
		finished          sql.NullInt64
	)
	err := sc.Scan(
		&r.RunID, &r.InputPath, &r.OutputPath, &r.Metric, &r.Shape,
		&r.RadiusMap, &r.RadiusCells, &r.TileSize, &r.Workers,
		&status, &r.ErrorKind, &r.ErrorMessage,
		&r.Cells, &r.UndefinedCells, &r.Tiles, &minV, &maxV, &meanV,
		&started, &finished, &r.Version,
	)
	if err != nil {
		return nil, err
	}
	r.Status = Status(status)
	r.ValueMin = floatPtr(minV)
	r.ValueMax = floatPtr(maxV)
	r.ValueMean = floatPtr(meanV)
	r.StartedAt = time.Unix(0, started)
	if finished.Valid {
		r.FinishedAt = time.Unix(0, finished.Int64)
	}
	return &r, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
