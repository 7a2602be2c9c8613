// Command aui-tail attaches to an AUI stream and prints each frame to
// stdout as one JSON line. With the recorder enabled, frames are archived to
// Postgres as they arrive.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/linguahub/aui-stream/internal/auth"
	"github.com/linguahub/aui-stream/internal/config"
	"github.com/linguahub/aui-stream/internal/database"
	"github.com/linguahub/aui-stream/internal/endpoint"
	"github.com/linguahub/aui-stream/internal/recorder"
	"github.com/linguahub/aui-stream/internal/transport"
	"github.com/linguahub/aui-stream/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/aui-tail.yaml", "path to config file")
	endpointOverride := flag.String("endpoint", "", "endpoint override (any accepted form)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	// Set up structured logging on stderr; stdout carries the frames.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting aui-tail",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *endpointOverride != "" {
		cfg.Stream.Endpoint = *endpointOverride
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	opts := transport.Options{
		Base:           endpoint.Base{Host: cfg.Origin.Host, Secure: cfg.Origin.Secure},
		MaxRetries:     cfg.Transport.MaxRetries,
		RetryBaseDelay: cfg.Transport.RetryBaseDelay,
		EndSentinel:    cfg.Transport.EndSentinel,
		ErrorSentinel:  cfg.Transport.ErrorSentinel,
		Logger:         logger,
	}

	if cfg.Auth.RefreshURL != "" {
		tokens := auth.NewTokenSource(auth.Config{
			RefreshURL: cfg.Auth.RefreshURL,
			Margin:     cfg.Auth.Margin,
			OnSessionExpired: func() {
				logger.Error("session expired, sign in again")
			},
		}, logger)
		opts.Headers = tokens
	}

	var rec *recorder.Recorder
	if cfg.Recorder.Enabled {
		pool, err := database.Connect(ctx, cfg.Recorder.Database)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		resolved := endpoint.Resolve(cfg.Stream.Endpoint, opts.Base)
		rec = recorder.New(recorder.Config{
			BatchSize:     cfg.Recorder.BatchSize,
			FlushInterval: cfg.Recorder.FlushInterval,
			QueueSize:     cfg.Recorder.QueueSize,
		}, resolved.StreamType, pool, logger)

		if err := rec.Start(ctx); err != nil {
			logger.Error("failed to start recorder", "error", err)
			os.Exit(1)
		}
	}

	done := make(chan struct{})
	tr := transport.New(transport.Config{
		Endpoint: cfg.Stream.Endpoint,
		Params:   cfg.Stream.Params,
		OnMessage: func(f transport.Frame) {
			fmt.Println(string(f.Raw))
			if rec != nil {
				rec.HandleFrame(f)
			}
		},
		OnError: func(err error) {
			logger.Error("stream error", "error", err)
		},
		OnComplete: func() {
			close(done)
		},
	}, opts)

	tr.Connect()

	select {
	case <-done:
		logger.Info("stream completed")
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	tr.Close()

	if rec != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		if err := rec.Stop(stopCtx); err != nil {
			logger.Error("recorder stop failed", "error", err)
		}
		stats := rec.Stats()
		logger.Info("recorder stats",
			"inserts", stats.Inserts,
			"flushes", stats.Flushes,
			"dropped", stats.Dropped,
			"errors", stats.Errors,
		)
	}
}
