package kv

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// hashKey collapses an arbitrary-length key path (a remote document URL or
// an activity id can both be long) into a fixed-length hex digest, so
// storage backends that index on the key never see an unbounded value.
func hashKey(key Key) string {
	h := blake3.New()
	_, _ = h.Write([]byte(key.join()))
	return hex.EncodeToString(h.Sum(nil))
}
