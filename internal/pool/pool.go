// Package pool holds the sync.Pool instances that keep the ingest hot
// path allocation-light: the HTTP/WS handlers see thousands of small
// requests per second, and a fresh allocation per request per object
// shows up directly in GC pressure.
package pool

import (
	"bytes"
	"sync"
)

var (
	// BodyPool holds buffers used to read HTTP POST bodies before
	// decoding. Most ingest payloads are small; 4KB covers the common
	// case without growing.
	BodyPool = sync.Pool{
		New: func() any {
			return bytes.NewBuffer(make([]byte, 0, 4*1024))
		},
	}
)

// MaxBodyPoolCap bounds how large a buffer PutBody will return to the
// pool. An oversized POST body shouldn't pin multi-megabyte buffers in
// the pool forever; let the garbage collector reclaim those instead.
const MaxBodyPoolCap = 1 * 1024 * 1024

// PutBody returns buf to BodyPool if it hasn't grown past
// MaxBodyPoolCap; otherwise it is left for the garbage collector.
func PutBody(buf *bytes.Buffer) {
	if buf.Cap() <= MaxBodyPoolCap {
		buf.Reset()
		BodyPool.Put(buf)
	}
}
