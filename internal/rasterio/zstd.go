package rasterio

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Encoders and decoders are pooled; one zstd state per goroutine keeps tile
// coding allocation-free after warm-up.
var (
	encoderPools sync.Map // zstd.EncoderLevel -> *sync.Pool

	decoderPool = sync.Pool{
		New: func() any {
			dec, _ := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
			return dec
		},
	}
)

// ParseCompression maps a level name (fastest, default, better, best) to a
// zstd encoder level. The empty string selects the default level.
func ParseCompression(name string) (zstd.EncoderLevel, error) {
	if name == "" {
		return zstd.SpeedDefault, nil
	}
	ok, level := zstd.EncoderLevelFromString(name)
	if !ok {
		return 0, fmt.Errorf("rasterio: unknown compression level %q", name)
	}
	return level, nil
}

func encoderPool(level zstd.EncoderLevel) *sync.Pool {
	if p, ok := encoderPools.Load(level); ok {
		return p.(*sync.Pool)
	}
	p, _ := encoderPools.LoadOrStore(level, &sync.Pool{
		New: func() any {
			enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(level), zstd.WithEncoderConcurrency(1))
			return enc
		},
	})
	return p.(*sync.Pool)
}

func compressTile(raw []byte, level zstd.EncoderLevel) []byte {
	pool := encoderPool(level)
	enc := pool.Get().(*zstd.Encoder)
	defer pool.Put(enc)
	return enc.EncodeAll(raw, make([]byte, 0, len(raw)/2))
}

// decompressTile decodes at most size+1 bytes of payload, so a tile that
// inflates past its expected size is caught without decoding all of it.
func decompressTile(payload []byte, size int) ([]byte, error) {
	dec := decoderPool.Get().(*zstd.Decoder)
	defer decoderPool.Put(dec)
	if err := dec.Reset(bytes.NewReader(payload)); err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	var out bytes.Buffer
	out.Grow(min(size, len(payload)<<6) + 1)
	if _, err := out.ReadFrom(io.LimitReader(dec, int64(size)+1)); err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	return out.Bytes(), nil
}
