package kv

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("kv: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("kv: zstd decoder initialization failed: " + err.Error())
	}
}

// CompressingStore wraps another Store, zstd-compressing values on the way
// in and decompressing on the way out. internal/server wraps its Postgres
// store in this, so the remoteDocument prefix, where cached JSON-LD bodies
// are large and compressible, is stored compressed; the activityIdempotence prefix (a one-byte marker) does
// not need it and would only grow under the 8-byte length prefix plus
// zstd frame overhead, so keys under DefaultActivityIdempotencePrefix
// bypass compression and hit the inner Store directly.
type CompressingStore struct {
	inner Store
}

// NewCompressingStore wraps inner.
func NewCompressingStore(inner Store) *CompressingStore {
	return &CompressingStore{inner: inner}
}

// skipsCompression reports whether key falls under a prefix whose values
// gain nothing from compression.
func skipsCompression(key Key) bool {
	return hasPrefix(key, DefaultActivityIdempotencePrefix)
}

func hasPrefix(key, prefix Key) bool {
	if len(key) < len(prefix) {
		return false
	}
	for i, p := range prefix {
		if key[i] != p {
			return false
		}
	}
	return true
}

func (c *CompressingStore) Get(ctx context.Context, key Key) ([]byte, bool, error) {
	if skipsCompression(key) {
		return c.inner.Get(ctx, key)
	}
	raw, ok, err := c.inner.Get(ctx, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	value, err := decodeCompressed(raw)
	if err != nil {
		return nil, false, fmt.Errorf("kv:compress - decode: %w", err)
	}
	return value, true, nil
}

func (c *CompressingStore) Set(ctx context.Context, key Key, value []byte, opts SetOptions) error {
	if skipsCompression(key) {
		return c.inner.Set(ctx, key, value, opts)
	}
	return c.inner.Set(ctx, key, encodeCompressed(value), opts)
}

func (c *CompressingStore) SetIfAbsent(ctx context.Context, key Key, value []byte, opts SetOptions) (bool, error) {
	if skipsCompression(key) {
		return c.inner.SetIfAbsent(ctx, key, value, opts)
	}
	return c.inner.SetIfAbsent(ctx, key, encodeCompressed(value), opts)
}

func (c *CompressingStore) Delete(ctx context.Context, key Key) error {
	return c.inner.Delete(ctx, key)
}

// encodeCompressed prefixes the zstd frame with the original length so
// DecodeAll can preallocate; see decodeCompressed.
func encodeCompressed(value []byte) []byte {
	compressed := zstdEncoder.EncodeAll(value, nil)
	out := make([]byte, 8+len(compressed))
	binary.LittleEndian.PutUint64(out[:8], uint64(len(value)))
	copy(out[8:], compressed)
	return out
}

func decodeCompressed(stored []byte) ([]byte, error) {
	if len(stored) < 8 {
		return nil, fmt.Errorf("stored value too short to contain a length prefix")
	}
	size := binary.LittleEndian.Uint64(stored[:8])
	dst := make([]byte, 0, size)
	result, err := zstdDecoder.DecodeAll(stored[8:], dst)
	if err != nil {
		return nil, err
	}
	return result, nil
}
