package rasterio

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/banshee-data/focalmetrics/internal/fsutil"
	"github.com/banshee-data/focalmetrics/internal/raster"
)

// Tiled layout, all integers little-endian:
//
//	[4]  magic "LRT1"
//	[4]  uint32 header length H
//	[H]  JSON header
//	[16·N] tile index: uint64 offset, uint64 length per tile, row-major
//	...  zstd-compressed tiles
//
// Tiles are TileSize square except along the right and bottom edges, where
// they are clipped to the raster. A decompressed tile holds its cells in
// row-major order as int32 or float64 values.

const (
	tiledMagic     = "LRT1"
	tiledPrefixLen = 8
	tiledIndexLen  = 16
	maxTiledHeader = 1 << 20
)

// Cell value types of a tiled raster.
const (
	DTypeInt32   = "int32"
	DTypeFloat64 = "float64"
)

type tiledHeader struct {
	Width    int           `json:"width"`
	Height   int           `json:"height"`
	TileSize int           `json:"tile_size"`
	DType    string        `json:"dtype"`
	Nodata   string        `json:"nodata"` // decimal; float64 rasters may use "NaN"
	Georef   raster.Georef `json:"georef"`
}

func (h *tiledHeader) tilesX() int { return (h.Width + h.TileSize - 1) / h.TileSize }
func (h *tiledHeader) tilesY() int { return (h.Height + h.TileSize - 1) / h.TileSize }
func (h *tiledHeader) tiles() int  { return h.tilesX() * h.tilesY() }

func (h *tiledHeader) tileRect(i int) raster.Rect {
	tx, ty := i%h.tilesX(), i/h.tilesX()
	r := raster.R(tx*h.TileSize, ty*h.TileSize, (tx+1)*h.TileSize, (ty+1)*h.TileSize)
	return r.Intersect(raster.R(0, 0, h.Width, h.Height))
}

func elemSize(dtype string) int {
	switch dtype {
	case DTypeInt32:
		return 4
	case DTypeFloat64:
		return 8
	}
	return 0
}

func (h *tiledHeader) validate() error {
	if h.Width <= 0 || h.Height <= 0 {
		return fmt.Errorf("grid is %dx%d", h.Width, h.Height)
	}
	if err := raster.CheckSize(h.Width, h.Height); err != nil {
		return err
	}
	if h.TileSize <= 0 || h.TileSize > raster.MaxCells {
		return fmt.Errorf("tile_size %d out of range", h.TileSize)
	}
	if elemSize(h.DType) == 0 {
		return fmt.Errorf("unknown dtype %q", h.DType)
	}
	if cs := h.Georef.CellSize; !(cs > 0) || math.IsInf(cs, 0) {
		return fmt.Errorf("cell size %v must be positive", cs)
	}
	if h.DType == DTypeInt32 {
		if _, err := strconv.ParseInt(h.Nodata, 10, 32); err != nil {
			return fmt.Errorf("nodata %q: %v", h.Nodata, err)
		}
	} else if _, err := strconv.ParseFloat(h.Nodata, 64); err != nil {
		return fmt.Errorf("nodata %q: %v", h.Nodata, err)
	}
	return nil
}

// encodeTiled compresses every tile, then writes prefix, header, index and
// payloads in one pass. raw appends the uncompressed cells of r to dst.
func encodeTiled(w io.Writer, h tiledHeader, level zstd.EncoderLevel, raw func(r raster.Rect, dst []byte) []byte) error {
	hdr, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("encode tiled header: %w", err)
	}
	n := h.tiles()
	payloads := make([][]byte, n)
	buf := make([]byte, 0, h.TileSize*h.TileSize*elemSize(h.DType))
	for i := range payloads {
		buf = raw(h.tileRect(i), buf[:0])
		payloads[i] = compressTile(buf, level)
	}

	var prefix [tiledPrefixLen]byte
	copy(prefix[:4], tiledMagic)
	binary.LittleEndian.PutUint32(prefix[4:], uint32(len(hdr)))

	index := make([]byte, tiledIndexLen*n)
	offset := uint64(tiledPrefixLen + len(hdr) + len(index))
	for i, p := range payloads {
		binary.LittleEndian.PutUint64(index[i*tiledIndexLen:], offset)
		binary.LittleEndian.PutUint64(index[i*tiledIndexLen+8:], uint64(len(p)))
		offset += uint64(len(p))
	}

	for _, chunk := range [][]byte{prefix[:], hdr, index} {
		if _, err := w.Write(chunk); err != nil {
			return err
		}
	}
	for _, p := range payloads {
		if _, err := w.Write(p); err != nil {
			return err
		}
	}
	return nil
}

func encodeTiledClasses(w io.Writer, g *raster.Grid, opts Options) error {
	level, err := ParseCompression(opts.Compression)
	if err != nil {
		return err
	}
	h := tiledHeader{
		Width:    g.Width,
		Height:   g.Height,
		TileSize: opts.tileSize(),
		DType:    DTypeInt32,
		Nodata:   strconv.FormatInt(int64(g.NoData), 10),
		Georef:   g.Geo,
	}
	return encodeTiled(w, h, level, func(r raster.Rect, dst []byte) []byte {
		for y := r.Y0; y < r.Y1; y++ {
			for x := r.X0; x < r.X1; x++ {
				dst = binary.LittleEndian.AppendUint32(dst, uint32(g.At(x, y)))
			}
		}
		return dst
	})
}

func encodeTiledFloat(w io.Writer, g *raster.FloatGrid, opts Options) error {
	level, err := ParseCompression(opts.Compression)
	if err != nil {
		return err
	}
	h := tiledHeader{
		Width:    g.Width,
		Height:   g.Height,
		TileSize: opts.tileSize(),
		DType:    DTypeFloat64,
		Nodata:   formatFloat(g.NoData),
		Georef:   g.Geo,
	}
	return encodeTiled(w, h, level, func(r raster.Rect, dst []byte) []byte {
		for y := r.Y0; y < r.Y1; y++ {
			for x := r.X0; x < r.X1; x++ {
				dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(g.At(x, y)))
			}
		}
		return dst
	})
}

type tileEntry struct {
	offset, length uint64
}

// TiledReader gives random block access to a tiled raster. Decoded int32
// tiles are kept in an LRU cache. It is safe for concurrent use.
type TiledReader struct {
	path   string
	file   fsutil.File
	hdr    tiledHeader
	nodata int32
	index  []tileEntry
	cache  *lru.Cache[int, []int32]

	hits, misses atomic.Int64
}

// OpenTiled opens a tiled raster of either value type and validates its
// header and tile index.
func OpenTiled(path string, opts Options) (*TiledReader, error) {
	f, err := opts.fs().Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	r, err := newTiledReader(path, f, opts.cacheTiles())
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return r, nil
}

func newTiledReader(path string, f fsutil.File, cacheTiles int) (*TiledReader, error) {
	corrupt := func(off int64, format string, args ...any) error {
		return &CorruptError{Path: path, Offset: off, Reason: fmt.Sprintf(format, args...)}
	}
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	size := info.Size()

	var prefix [tiledPrefixLen]byte
	if err := readFull(f, prefix[:], 0); err != nil {
		return nil, corrupt(0, "short file prefix: %v", err)
	}
	if !bytes.Equal(prefix[:4], []byte(tiledMagic)) {
		return nil, corrupt(0, "bad magic %q", prefix[:4])
	}
	hlen := int64(binary.LittleEndian.Uint32(prefix[4:]))
	if hlen > maxTiledHeader || tiledPrefixLen+hlen > size {
		return nil, corrupt(4, "header length %d exceeds file", hlen)
	}

	hdrBytes := make([]byte, hlen)
	if err := readFull(f, hdrBytes, tiledPrefixLen); err != nil {
		return nil, corrupt(tiledPrefixLen, "read header: %v", err)
	}
	var h tiledHeader
	if err := json.Unmarshal(hdrBytes, &h); err != nil {
		return nil, corrupt(tiledPrefixLen, "decode header: %v", err)
	}
	if err := h.validate(); err != nil {
		return nil, corrupt(tiledPrefixLen, "invalid header: %v", err)
	}

	indexOff := tiledPrefixLen + hlen
	n := int64(h.tiles())
	if n > (size-indexOff)/tiledIndexLen {
		return nil, corrupt(indexOff, "tile index of %d entries exceeds file", n)
	}
	raw := make([]byte, n*tiledIndexLen)
	if err := readFull(f, raw, indexOff); err != nil {
		return nil, corrupt(indexOff, "read tile index: %v", err)
	}
	dataOff := uint64(indexOff) + uint64(len(raw))
	index := make([]tileEntry, n)
	for i := range index {
		e := tileEntry{
			offset: binary.LittleEndian.Uint64(raw[i*tiledIndexLen:]),
			length: binary.LittleEndian.Uint64(raw[i*tiledIndexLen+8:]),
		}
		if e.offset < dataOff || e.length > uint64(size) || e.offset > uint64(size)-e.length {
			return nil, corrupt(indexOff+int64(i*tiledIndexLen), "tile %d spans [%d,+%d) outside the data section", i, e.offset, e.length)
		}
		index[i] = e
	}

	cache, err := lru.New[int, []int32](cacheTiles)
	if err != nil {
		return nil, err
	}
	r := &TiledReader{path: path, file: f, hdr: h, index: index, cache: cache}
	if h.DType == DTypeInt32 {
		v, _ := strconv.ParseInt(h.Nodata, 10, 32)
		r.nodata = int32(v)
	}
	return r, nil
}

func readFull(f io.ReaderAt, buf []byte, off int64) error {
	n, err := f.ReadAt(buf, off)
	if n == len(buf) {
		return nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return err
}

// Bounds implements raster.Source.
func (r *TiledReader) Bounds() raster.Rect { return raster.R(0, 0, r.hdr.Width, r.hdr.Height) }

// Georef implements raster.Source.
func (r *TiledReader) Georef() raster.Georef { return r.hdr.Georef }

// Nodata implements raster.Source. It is meaningful only for int32 rasters.
func (r *TiledReader) Nodata() int32 { return r.nodata }

// DType returns DTypeInt32 or DTypeFloat64.
func (r *TiledReader) DType() string { return r.hdr.DType }

// TileSize returns the stored tile edge length.
func (r *TiledReader) TileSize() int { return r.hdr.TileSize }

// CacheStats returns decoded-tile cache hits and misses so far.
func (r *TiledReader) CacheStats() (hits, misses int64) {
	return r.hits.Load(), r.misses.Load()
}

// Close releases the file and drops cached tiles.
func (r *TiledReader) Close() error {
	r.cache.Purge()
	return r.file.Close()
}

func (r *TiledReader) readTile(i int) ([]byte, raster.Rect, error) {
	e := r.index[i]
	tr := r.hdr.tileRect(i)
	payload := make([]byte, e.length)
	if err := readFull(r.file, payload, int64(e.offset)); err != nil {
		return nil, tr, fmt.Errorf("read %s tile %d: %w", r.path, i, err)
	}
	want := tr.Area() * elemSize(r.hdr.DType)
	raw, err := decompressTile(payload, want)
	if err != nil {
		return nil, tr, &CorruptError{Path: r.path, Offset: int64(e.offset), Reason: fmt.Sprintf("tile %d: %v", i, err)}
	}
	if len(raw) > want {
		return nil, tr, &CorruptError{Path: r.path, Offset: int64(e.offset),
			Reason: fmt.Sprintf("tile %d holds more than %d bytes", i, want)}
	}
	if len(raw) < want {
		return nil, tr, &CorruptError{Path: r.path, Offset: int64(e.offset),
			Reason: fmt.Sprintf("tile %d holds %d bytes, want %d", i, len(raw), want)}
	}
	return raw, tr, nil
}

func (r *TiledReader) classTile(i int) ([]int32, raster.Rect, error) {
	if cells, ok := r.cache.Get(i); ok {
		r.hits.Add(1)
		return cells, r.hdr.tileRect(i), nil
	}
	r.misses.Add(1)
	raw, tr, err := r.readTile(i)
	if err != nil {
		return nil, tr, err
	}
	cells := make([]int32, tr.Area())
	for j := range cells {
		cells[j] = int32(binary.LittleEndian.Uint32(raw[j*4:]))
	}
	r.cache.Add(i, cells)
	return cells, tr, nil
}

// ReadBlock implements raster.Source by stitching the tiles rect overlaps.
func (r *TiledReader) ReadBlock(ctx context.Context, rect raster.Rect) (*raster.Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.hdr.DType != DTypeInt32 {
		return nil, fmt.Errorf("%w: %s holds %s values", ErrDataType, r.path, r.hdr.DType)
	}
	if rect.Empty() || !r.Bounds().ContainsRect(rect) {
		return nil, fmt.Errorf("read %v of %s: %w", rect, r.path, raster.ErrOutOfExtent)
	}

	ts, tilesX := r.hdr.TileSize, r.hdr.tilesX()
	cells := make([]int32, rect.Area())
	for ty := rect.Y0 / ts; ty <= (rect.Y1-1)/ts; ty++ {
		for tx := rect.X0 / ts; tx <= (rect.X1-1)/ts; tx++ {
			tile, tr, err := r.classTile(ty*tilesX + tx)
			if err != nil {
				return nil, err
			}
			ov := tr.Intersect(rect)
			for y := ov.Y0; y < ov.Y1; y++ {
				src := tile[(y-tr.Y0)*tr.Dx()+(ov.X0-tr.X0):][:ov.Dx()]
				copy(cells[(y-rect.Y0)*rect.Dx()+(ov.X0-rect.X0):], src)
			}
		}
	}
	return raster.NewBlock(rect, r.Bounds(), cells, r.nodata), nil
}

// ReadFloat decodes a whole float64 raster. Float tiles bypass the cache.
func (r *TiledReader) ReadFloat() (*raster.FloatGrid, error) {
	if r.hdr.DType != DTypeFloat64 {
		return nil, fmt.Errorf("%w: %s holds %s values, want %s", ErrDataType, r.path, r.hdr.DType, DTypeFloat64)
	}
	nodata, _ := strconv.ParseFloat(r.hdr.Nodata, 64)
	g, err := raster.NewFloatGrid(r.hdr.Width, r.hdr.Height, nodata, r.hdr.Georef)
	if err != nil {
		return nil, err
	}
	for i := range r.index {
		raw, tr, err := r.readTile(i)
		if err != nil {
			return nil, err
		}
		j := 0
		for y := tr.Y0; y < tr.Y1; y++ {
			for x := tr.X0; x < tr.X1; x++ {
				g.Set(x, y, math.Float64frombits(binary.LittleEndian.Uint64(raw[j*8:])))
				j++
			}
		}
	}
	return g, nil
}
