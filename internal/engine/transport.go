package engine

import (
	"bytes"
	"io"
	"net/http"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// gzip writer/buffer pools for the compressing transport below. Reused
// across requests the way the teacher repo pooled its gzip writers and
// buffers for S3 payload encoding (internal/pool/pool.go) — here the
// payload is the JSON body of a search-engine upsert instead of a
// JSONL.gz batch headed for S3.
var (
	gzipWriterPool = sync.Pool{
		New: func() any {
			w, _ := gzip.NewWriterLevel(nil, gzip.BestSpeed)
			return w
		},
	}
	gzipBufferPool = sync.Pool{
		New: func() any {
			return bytes.NewBuffer(make([]byte, 0, 64*1024))
		},
	}
)

const maxPooledGzipBuffer = 1 * 1024 * 1024

// compressingTransport gzip-compresses outbound request bodies before
// handing them to the underlying transport. Document upsert batches can
// run into the hundreds of KB of JSON; compressing them in flight cuts
// bandwidth to the search engine noticeably, the same tradeoff the
// teacher repo made for its S3 uploads.
type compressingTransport struct {
	base http.RoundTripper
}

func newCompressingTransport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &compressingTransport{base: base}
}

func (t *compressingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body == nil || req.Header.Get("Content-Encoding") != "" {
		return t.base.RoundTrip(req)
	}

	raw, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		req.Body = io.NopCloser(bytes.NewReader(raw))
		req.ContentLength = 0
		return t.base.RoundTrip(req)
	}

	buf := gzipBufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	gz := gzipWriterPool.Get().(*gzip.Writer)
	gz.Reset(buf)

	if _, err := gz.Write(raw); err != nil {
		gz.Close()
		gzipWriterPool.Put(gz)
		putGzipBuffer(buf)
		return nil, err
	}
	if err := gz.Close(); err != nil {
		gzipWriterPool.Put(gz)
		putGzipBuffer(buf)
		return nil, err
	}
	gzipWriterPool.Put(gz)

	compressed := make([]byte, buf.Len())
	copy(compressed, buf.Bytes())
	putGzipBuffer(buf)

	clone := req.Clone(req.Context())
	clone.Body = io.NopCloser(bytes.NewReader(compressed))
	clone.ContentLength = int64(len(compressed))
	clone.Header.Set("Content-Encoding", "gzip")

	return t.base.RoundTrip(clone)
}

func putGzipBuffer(buf *bytes.Buffer) {
	if buf.Cap() <= maxPooledGzipBuffer {
		buf.Reset()
		gzipBufferPool.Put(buf)
	}
}

// NewHTTPClient returns an *http.Client whose outbound request bodies
// are transparently gzip-compressed. The engine Client does not use it:
// the pinned Meilisearch SDK's ClientConfig has no field for a custom
// net/http client.
func NewHTTPClient() *http.Client {
	return &http.Client{Transport: newCompressingTransport(nil)}
}
