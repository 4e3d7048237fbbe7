package pregel

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// newRunID returns a fresh random run identifier.
func newRunID() string { return uuid.NewString() }

// computeIdempotencyKey derives a stable key for a checkpoint from its
// thread id, step and channel versions (channel values are not hashed), so
// a retried Store.Put for the same step carries the same key.
func computeIdempotencyKey(threadID string, step int, versions map[string]uint64) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s:%d", threadID, step)

	keys := make([]string, 0, len(versions))
	for k := range versions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, ":%s=%d", k, versions[k])
	}
	return hex.EncodeToString(h.Sum(nil))
}
