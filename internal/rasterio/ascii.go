package rasterio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/focalmetrics/internal/fsutil"
	"github.com/banshee-data/focalmetrics/internal/raster"
)

// Esri ASCII Grid:
//
//	ncols         4
//	nrows         3
//	xllcorner     500000
//	yllcorner     4200000
//	cellsize      30
//	NODATA_value  -9999
//	1 1 2 2
//	...
//
// xllcenter/yllcenter may replace the corner keys. NODATA_value is optional.
// Values are whitespace separated and may wrap across lines freely.

const maxASCIILine = 256 << 20

type asciiHeader struct {
	ncols, nrows int
	geo          raster.Georef
	nodata       string // raw token, "" when absent
}

// asciiDecoder scans an Esri ASCII stream. store is called once per cell in
// row-major order; an error from store is reported as corruption on the
// current line.
type asciiDecoder struct {
	path string
	sc   *bufio.Scanner
	line int
}

func (d *asciiDecoder) corrupt(format string, args ...any) error {
	return &CorruptError{Path: d.path, Line: d.line, Offset: -1, Reason: fmt.Sprintf(format, args...)}
}

func (d *asciiDecoder) next() ([]string, bool) {
	for d.sc.Scan() {
		d.line++
		if f := strings.Fields(d.sc.Text()); len(f) > 0 {
			return f, true
		}
	}
	return nil, false
}

func (d *asciiDecoder) err() error {
	if err := d.sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return d.corrupt("line longer than %d bytes", maxASCIILine)
		}
		return fmt.Errorf("read %s: %w", d.path, err)
	}
	return nil
}

// decodeASCII parses r. size is the byte length of the stream, or -1 when
// unknown.
func decodeASCII(path string, r io.Reader, size int64, alloc func(h asciiHeader) error, store func(i int, tok string) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxASCIILine)
	d := &asciiDecoder{path: path, sc: sc}

	var (
		h                asciiHeader
		x, y             float64
		xCenter, yCenter bool
		fields           []string
		ok               bool
	)
	seen := make(map[string]bool)
	for {
		if fields, ok = d.next(); !ok {
			if err := d.err(); err != nil {
				return err
			}
			return d.corrupt("missing cell values")
		}
		key := strings.ToLower(fields[0])
		if !isHeaderKey(key) {
			break
		}
		if len(fields) != 2 {
			return d.corrupt("header %s: want one value, got %d", fields[0], len(fields)-1)
		}
		if seen[key] {
			return d.corrupt("duplicate header %s", fields[0])
		}
		seen[key] = true
		val := fields[1]
		var err error
		switch key {
		case "ncols":
			h.ncols, err = strconv.Atoi(val)
		case "nrows":
			h.nrows, err = strconv.Atoi(val)
		case "xllcorner", "xllcenter":
			x, err = strconv.ParseFloat(val, 64)
			xCenter = key == "xllcenter"
		case "yllcorner", "yllcenter":
			y, err = strconv.ParseFloat(val, 64)
			yCenter = key == "yllcenter"
		case "cellsize":
			h.geo.CellSize, err = strconv.ParseFloat(val, 64)
		case "nodata_value":
			h.nodata = val
		}
		if err != nil {
			return d.corrupt("header %s: %v", fields[0], err)
		}
	}

	for _, req := range []string{"ncols", "nrows", "cellsize"} {
		if !seen[req] {
			return d.corrupt("missing header %s", req)
		}
	}
	if seen["xllcorner"] == seen["xllcenter"] || seen["yllcorner"] == seen["yllcenter"] {
		return d.corrupt("header needs exactly one of xllcorner/xllcenter and one of yllcorner/yllcenter")
	}
	if h.ncols <= 0 || h.nrows <= 0 {
		return d.corrupt("grid is %dx%d", h.ncols, h.nrows)
	}
	if err := raster.CheckSize(h.ncols, h.nrows); err != nil {
		return d.corrupt("%v", err)
	}
	// n values need at least 2n-1 bytes: one digit each plus separators.
	if n := int64(h.ncols) * int64(h.nrows); size >= 0 && 2*n-1 > size {
		return d.corrupt("%dx%d cells cannot fit in %d bytes", h.ncols, h.nrows, size)
	}
	cs := h.geo.CellSize
	if !(cs > 0) || math.IsInf(cs, 0) {
		return d.corrupt("cellsize %v must be positive", cs)
	}
	if xCenter {
		x -= cs / 2
	}
	if yCenter {
		y -= cs / 2
	}
	h.geo.OriginX = x
	h.geo.OriginY = y + float64(h.nrows)*cs
	if err := alloc(h); err != nil {
		return d.corrupt("%v", err)
	}

	n := h.ncols * h.nrows
	i := 0
	for {
		for _, tok := range fields {
			if i == n {
				return d.corrupt("more than %d cell values", n)
			}
			if err := store(i, tok); err != nil {
				return d.corrupt("cell %d: %v", i, err)
			}
			i++
		}
		if fields, ok = d.next(); !ok {
			break
		}
	}
	if err := d.err(); err != nil {
		return err
	}
	if i < n {
		return d.corrupt("truncated: %d of %d cell values", i, n)
	}
	return nil
}

func isHeaderKey(k string) bool {
	switch k {
	case "ncols", "nrows", "xllcorner", "xllcenter", "yllcorner", "yllcenter", "cellsize", "nodata_value":
		return true
	}
	return false
}

// parseClass accepts integer tokens and integral decimals such as "3.0".
func parseClass(tok string) (int32, error) {
	if v, err := strconv.ParseInt(tok, 10, 32); err == nil {
		return int32(v), nil
	}
	f, err := strconv.ParseFloat(tok, 64)
	if err != nil || f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
		return 0, fmt.Errorf("%q is not an int32 class code", tok)
	}
	return int32(f), nil
}

func fileSize(f fsutil.File) int64 {
	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		return -1
	}
	return info.Size()
}

func readASCIIClasses(fsys fsutil.FileSystem, path string) (*raster.Grid, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var g *raster.Grid
	err = decodeASCII(path, f, fileSize(f),
		func(h asciiHeader) error {
			nodata := raster.DefaultNodata
			if h.nodata != "" {
				v, err := parseClass(h.nodata)
				if err != nil {
					return fmt.Errorf("NODATA_value: %w", err)
				}
				nodata = v
			}
			grid, err := raster.NewGrid(h.ncols, h.nrows, nodata, h.geo)
			g = grid
			return err
		},
		func(i int, tok string) error {
			v, err := parseClass(tok)
			g.Cells[i] = v
			return err
		})
	if err != nil {
		return nil, err
	}
	return g, nil
}

func readASCIIFloat(fsys fsutil.FileSystem, path string) (*raster.FloatGrid, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var g *raster.FloatGrid
	err = decodeASCII(path, f, fileSize(f),
		func(h asciiHeader) error {
			nodata := math.NaN()
			if h.nodata != "" {
				v, err := strconv.ParseFloat(h.nodata, 64)
				if err != nil {
					return fmt.Errorf("NODATA_value: %w", err)
				}
				nodata = v
			}
			grid, err := raster.NewFloatGrid(h.ncols, h.nrows, nodata, h.geo)
			g = grid
			return err
		},
		func(i int, tok string) error {
			v, err := strconv.ParseFloat(tok, 64)
			g.Values[i] = v
			return err
		})
	if err != nil {
		return nil, err
	}
	return g, nil
}

func writeASCIIHeader(w io.Writer, width, height int, geo raster.Georef, nodata string) error {
	yll := geo.OriginY - float64(height)*geo.CellSize
	_, err := fmt.Fprintf(w, "ncols %d\nnrows %d\nxllcorner %s\nyllcorner %s\ncellsize %s\nNODATA_value %s\n",
		width, height, formatFloat(geo.OriginX), formatFloat(yll), formatFloat(geo.CellSize), nodata)
	return err
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func encodeASCIIClasses(w io.Writer, g *raster.Grid) error {
	if err := writeASCIIHeader(w, g.Width, g.Height, g.Geo, strconv.FormatInt(int64(g.NoData), 10)); err != nil {
		return err
	}
	line := make([]byte, 0, g.Width*4)
	for y := 0; y < g.Height; y++ {
		line = line[:0]
		for x := 0; x < g.Width; x++ {
			if x > 0 {
				line = append(line, ' ')
			}
			line = strconv.AppendInt(line, int64(g.At(x, y)), 10)
		}
		line = append(line, '\n')
		if _, err := w.Write(line); err != nil {
			return err
		}
	}
	return nil
}

// encodeASCIIFloat writes shortest round-trip decimal forms, so reading the
// file back yields bit-identical values.
func encodeASCIIFloat(w io.Writer, g *raster.FloatGrid) error {
	if err := writeASCIIHeader(w, g.Width, g.Height, g.Geo, formatFloat(g.NoData)); err != nil {
		return err
	}
	line := make([]byte, 0, g.Width*12)
	for y := 0; y < g.Height; y++ {
		line = line[:0]
		for x := 0; x < g.Width; x++ {
			if x > 0 {
				line = append(line, ' ')
			}
			line = strconv.AppendFloat(line, g.At(x, y), 'g', -1, 64)
		}
		line = append(line, '\n')
		if _, err := w.Write(line); err != nil {
			return err
		}
	}
	return nil
}
