package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/banshee-data/focalmetrics/internal/fsutil"
	"github.com/banshee-data/focalmetrics/internal/metric"
	"github.com/banshee-data/focalmetrics/internal/rasterio"
	"github.com/banshee-data/focalmetrics/internal/report"
	"github.com/banshee-data/focalmetrics/internal/window"
)

// Kind classifies a run failure.
type Kind int

const (
	// KindConfiguration covers bad requests: unknown metric or shape, a bad
	// radius, unsupported or mismatched formats, invalid configuration.
	// Nothing has been read or written when it is returned.
	KindConfiguration Kind = iota + 1
	// KindIO covers unreadable, corrupt or unwritable rasters and ledger
	// failures.
	KindIO
	// KindCanceled means the caller's context ended the run.
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindIO:
		return "io"
	case KindCanceled:
		return "canceled"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Sentinels for errors.Is checks by kind.
var (
	ErrConfiguration = &Error{Kind: KindConfiguration}
	ErrIO            = &Error{Kind: KindIO}
	ErrCanceled      = &Error{Kind: KindCanceled}
)

// Error is returned by ComputeWindowMetric for every failure.
type Error struct {
	Kind   Kind
	Op     string // "validate", "open", "compute", "write", "ledger", "report"
	Path   string
	Line   int   // 1-based text line of a corrupt input, 0 when unknown
	Offset int64 // byte offset of a corrupt input, -1 when unknown
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.String() + " error"
	if e.Op != "" {
		msg += " during " + e.Op
	}
	if e.Path != "" {
		msg += " of " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the kind sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Err == nil && t.Op == "" && t.Kind == e.Kind
}

func configError(op, path string, err error) *Error {
	return &Error{Kind: KindConfiguration, Op: op, Path: path, Offset: -1, Err: err}
}

// classify wraps err for op on path, choosing the kind from the error chain.
func classify(op, path string, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	out := &Error{Kind: KindIO, Op: op, Path: path, Offset: -1, Err: err}
	var ce *rasterio.CorruptError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		out.Kind = KindCanceled
	case errors.Is(err, metric.ErrUnknownMetric),
		errors.Is(err, window.ErrUnknownShape),
		errors.Is(err, window.ErrRadius),
		errors.Is(err, window.ErrCellSize),
		errors.Is(err, rasterio.ErrUnsupportedFormat),
		errors.Is(err, rasterio.ErrFormatMismatch),
		errors.Is(err, rasterio.ErrDataType),
		errors.Is(err, report.ErrUnsupportedChart),
		errors.Is(err, fsutil.ErrOutsideRoot):
		out.Kind = KindConfiguration
	case errors.As(err, &ce):
		out.Line = ce.Line
		out.Offset = ce.Offset
		if ce.Path != "" {
			out.Path = ce.Path
		}
	}
	return out
}
