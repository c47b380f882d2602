package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/itklabs/itk/api"
	"github.com/itklabs/itk/config"
	"github.com/itklabs/itk/control"
	"github.com/itklabs/itk/frame"
	"github.com/itklabs/itk/metrics"
	"github.com/itklabs/itk/producer"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg))

	writer, err := frame.NewWriter(cfg.Segment, cfg.Width, cfg.Height)
	if err != nil {
		slog.Error("failed to create frame segment", "segment", cfg.Segment, "error", err)
		os.Exit(1)
	}
	// Closed explicitly after g.Wait(): readers must be able to map the
	// segment for as long as any other component is still running.
	defer writer.Close()

	met := metrics.New()
	prod := producer.New(producer.OpenVideo(cfg.Width, cfg.Height, met, slog.Default()), writer, met, nil)
	ctrl := control.NewServer(cfg.Socket, prod.Submit, nil)

	apiSrv := &http.Server{
		Addr: cfg.APIAddr,
		Handler: api.Handler(prod.Player(), met, func() {
			met.SetPlaybackState(prod.Player().State().String())
			met.SetLastPTS(writer.LastPTS())
		}, nil),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	slog.Info("itkd starting",
		"version", version,
		"segment", cfg.Segment,
		"geometry", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"socket", cfg.Socket,
		"api", cfg.APIAddr,
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return ctrl.Start(ctx)
	})

	g.Go(func() error {
		return prod.Run(ctx)
	})

	g.Go(func() error {
		slog.Info("HTTP API server listening", "addr", cfg.APIAddr)
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("API server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return apiSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

// newLogger builds the process logger from the configured level and format.
func newLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
