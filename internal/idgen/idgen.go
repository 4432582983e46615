// Package idgen caches the wall clock and generates sortable record ids.
//
// The ingest hot path calls time.Now() far more often than it needs the
// system clock to actually move: a 1ms-resolution cache backs both the
// record timestamp and the ULID's timestamp component, the way the teacher
// ingest server cached epoch seconds to avoid a syscall per event.
package idgen

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

var nowMs atomic.Int64

func init() {
	nowMs.Store(time.Now().UnixMilli())
	go func() {
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for range ticker.C {
			nowMs.Store(time.Now().UnixMilli())
		}
	}()
}

// NowMs returns the cached current time as Unix milliseconds.
func NowMs() int64 {
	return nowMs.Load()
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.DefaultEntropy()
)

// New generates a lexicographically sortable, time-ordered, 26-character
// id. Monotonic entropy guarantees strict ordering for ids minted within
// the same millisecond by this process.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	id := ulid.MustNew(ulid.Timestamp(time.UnixMilli(NowMs())), entropy)
	return id.String()
}
