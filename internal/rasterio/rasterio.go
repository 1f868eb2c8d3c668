// Package rasterio reads and writes categorical input rasters and float
// metric rasters.
//
// Two format families are supported, chosen by file extension:
//
//	.asc  Esri ASCII Grid, read whole into memory
//	.lrt  tiled binary raster with zstd-compressed tiles and random tile access
//
// Writers always go through fsutil.FileSystem.WriteAtomic, so a failed write
// never leaves a partial file at the destination.
package rasterio

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/banshee-data/focalmetrics/internal/fsutil"
	"github.com/banshee-data/focalmetrics/internal/raster"
)

var (
	// ErrUnsupportedFormat indicates a path whose extension names no known format.
	ErrUnsupportedFormat = errors.New("rasterio: unsupported raster format")
	// ErrFormatMismatch indicates input and output paths of different format families.
	ErrFormatMismatch = errors.New("rasterio: input and output format families differ")
	// ErrDataType indicates a raster holding the wrong value type for the call.
	ErrDataType = errors.New("rasterio: unexpected raster data type")
	// ErrCorrupt indicates a malformed or truncated raster file.
	ErrCorrupt = errors.New("rasterio: corrupt raster")
)

// CorruptError locates a decoding failure. It matches ErrCorrupt under errors.Is.
type CorruptError struct {
	Path   string
	Line   int   // 1-based text line, 0 when not applicable
	Offset int64 // byte offset, -1 when not applicable
	Reason string
}

func (e *CorruptError) Error() string {
	switch {
	case e.Line > 0:
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Reason)
	case e.Offset >= 0:
		return fmt.Sprintf("%s@%d: %s", e.Path, e.Offset, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

func (e *CorruptError) Unwrap() error { return ErrCorrupt }

// Format is a raster format family.
type Format int

const (
	ASCII Format = iota + 1
	Tiled
)

func (f Format) String() string {
	switch f {
	case ASCII:
		return "asc"
	case Tiled:
		return "lrt"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// FormatOf maps a path's extension to its format family.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".asc":
		return ASCII, nil
	case ".lrt":
		return Tiled, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, path)
}

// CheckFamily verifies that out can be written in the family of in.
func CheckFamily(in, out string) error {
	fi, err := FormatOf(in)
	if err != nil {
		return err
	}
	fo, err := FormatOf(out)
	if err != nil {
		return err
	}
	if fi != fo {
		return fmt.Errorf("%w: %s input, %s output", ErrFormatMismatch, fi, fo)
	}
	return nil
}

// Options tune I/O. The zero value is usable.
type Options struct {
	FS          fsutil.FileSystem // nil means the OS filesystem
	CacheTiles  int               // decoded-tile cache capacity for .lrt readers
	TileSize    int               // tile edge for .lrt writers
	Compression string            // zstd level for .lrt writers: fastest, default, better, best
}

const (
	defaultCacheTiles = 64
	defaultTileSize   = 256
)

func (o Options) fs() fsutil.FileSystem {
	if o.FS == nil {
		return fsutil.OSFileSystem{}
	}
	return o.FS
}

func (o Options) cacheTiles() int {
	if o.CacheTiles <= 0 {
		return defaultCacheTiles
	}
	return o.CacheTiles
}

func (o Options) tileSize() int {
	if o.TileSize <= 0 {
		return defaultTileSize
	}
	return o.TileSize
}

// Dataset is an open categorical raster.
type Dataset interface {
	raster.Source
	io.Closer
}

type memDataset struct {
	*raster.Grid
}

func (memDataset) Close() error { return nil }

// Open opens a categorical raster for reading.
func Open(path string, opts Options) (Dataset, error) {
	f, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	switch f {
	case ASCII:
		g, err := readASCIIClasses(opts.fs(), path)
		if err != nil {
			return nil, err
		}
		return memDataset{g}, nil
	default:
		r, err := OpenTiled(path, opts)
		if err != nil {
			return nil, err
		}
		if r.DType() != DTypeInt32 {
			_ = r.Close()
			return nil, fmt.Errorf("%w: %s holds %s values, want %s classes", ErrDataType, path, r.DType(), DTypeInt32)
		}
		return r, nil
	}
}

// ReadFloat reads a whole metric raster.
func ReadFloat(path string, opts Options) (*raster.FloatGrid, error) {
	f, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	if f == ASCII {
		return readASCIIFloat(opts.fs(), path)
	}
	r, err := OpenTiled(path, opts)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.ReadFloat()
}

// WriteClasses atomically writes a categorical raster.
func WriteClasses(path string, g *raster.Grid, opts Options) error {
	f, err := FormatOf(path)
	if err != nil {
		return err
	}
	return opts.fs().WriteAtomic(path, 0o644, func(w io.Writer) error {
		if f == ASCII {
			return encodeASCIIClasses(w, g)
		}
		return encodeTiledClasses(w, g, opts)
	})
}

// WriteFloat atomically writes a metric raster.
func WriteFloat(path string, g *raster.FloatGrid, opts Options) error {
	f, err := FormatOf(path)
	if err != nil {
		return err
	}
	return opts.fs().WriteAtomic(path, 0o644, func(w io.Writer) error {
		if f == ASCII {
			return encodeASCIIFloat(w, g)
		}
		return encodeTiledFloat(w, g, opts)
	})
}
