// Package lifecycle implements the index-lifecycle actions from spec
// §4.H: the one-shot `init` administrative command that creates and
// configures the engine index, and `serve`'s tolerant startup check —
// log a warning if the index is missing or the engine unreachable, but
// don't block startup. The startup check does not inspect the index's
// attribute configuration.
package lifecycle

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/logstream/gateway/internal/engine"
)

// RunInit creates/configures the engine index and returns a non-nil
// error if that can't be done — the caller should exit with status 2
// (§6's "unrecoverable engine error at init").
func RunInit(ctx context.Context, eng *engine.Client, log zerolog.Logger) error {
	log.Info().Msg("ensuring engine index exists and is configured")
	if err := eng.EnsureIndex(ctx); err != nil {
		return fmt.Errorf("lifecycle: ensure index: %w", err)
	}
	log.Info().Msg("index ready")
	return nil
}

// CheckServeIndex probes the index at serve startup. Unlike RunInit, it
// never creates anything: a missing index or an unreachable engine is
// reported as a startup warning and tolerated — serve keeps running and
// retries on the next ingest batch, per §4.H. Only the index's existence
// is checked; a misconfigured index (wrong searchable, filterable or
// sortable attributes) is not detected.
func CheckServeIndex(ctx context.Context, eng *engine.Client, log zerolog.Logger) {
	if err := eng.Probe(ctx); err != nil {
		log.Warn().Err(err).Msg("engine unreachable or index missing at startup; will keep retrying on ingest")
		return
	}
	log.Info().Msg("engine index verified at startup")
}
