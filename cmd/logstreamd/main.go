// Command logstreamd runs the log collection and query gateway: a
// single binary with two subcommands, `serve` and `init`, matching the
// CLI contract in spec §6.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/logstream/gateway/internal/broadcast"
	"github.com/logstream/gateway/internal/config"
	"github.com/logstream/gateway/internal/engine"
	"github.com/logstream/gateway/internal/ingest"
	"github.com/logstream/gateway/internal/lifecycle"
	"github.com/logstream/gateway/internal/logger"
	"github.com/logstream/gateway/internal/metrics"
	"github.com/logstream/gateway/internal/server"
	"github.com/logstream/gateway/internal/writer"
)

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	log := logger.Init(cfg)

	eng := engine.New(engine.Config{
		Host:      cfg.MeiliHost,
		APIKey:    cfg.MeiliKey,
		IndexName: cfg.IndexName,
	})

	switch cfg.Command {
	case config.CommandInit:
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := lifecycle.RunInit(ctx, eng, log); err != nil {
			log.Error().Err(err).Msg("init failed")
			os.Exit(2)
		}
	case config.CommandServe:
		runServe(cfg, eng, log)
	}
}

func runServe(cfg config.Config, eng *engine.Client, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	lifecycle.CheckServeIndex(ctx, eng, log)
	cancel()

	m := metrics.New()
	registry := broadcast.New(m)

	var relay *broadcastRelayHandle
	if cfg.RedisAddr != "" {
		r := broadcast.NewRelay(cfg.RedisAddr, cfg.RedisPassword, registry, log)
		relayCtx, relayCancel := context.WithCancel(context.Background())
		r.Start(relayCtx)
		relay = &broadcastRelayHandle{relay: r, cancel: relayCancel}
	}

	wr := writer.New(writer.Config{
		BatchSize:       cfg.BatchSize,
		FlushInterval:   cfg.FlushInterval,
		RecordQueueSize: cfg.RecordQueueSize,
		RetryQueueCap:   cfg.RetryQueueCap,
	}, eng, m, log)
	wr.Start()

	var relayForPipeline *broadcast.Relay
	if relay != nil {
		relayForPipeline = relay.relay
	}
	pipeline := ingest.New(registry, relayForPipeline, wr.RecordCh, m)

	httpServer := server.New(pipeline, eng, m, log)
	wsServer := server.NewWSServer(pipeline, registry, m, log)
	mux := httpServer.Routes(wsServer)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("logstreamd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server exited")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown did not complete cleanly")
	}

	wr.Shutdown()

	if relay != nil {
		relay.cancel()
		_ = relay.relay.Close()
	}
}

type broadcastRelayHandle struct {
	relay  *broadcast.Relay
	cancel context.CancelFunc
}
