package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"seqsync/internal/api"
	"seqsync/internal/engine"
)

func main() {
	if err := mainInner(); err != nil {
		logrus.WithError(err).Fatal("server failed")
	}
}

func mainInner() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctrl, cancel, err := engine.NewSyncController(ctx, engine.SyncControllerCfg{
		EnqueueTimeout:     cfg.EnqueueTimeout,
		MaxQueuedCommands:  cfg.MaxQueuedCommands,
		TracePath:          cfg.TracePath,
		TraceFlushInterval: cfg.TraceFlushInterval,
		TraceBufferBytes:   cfg.TraceBufferBytes,
		Log:                log.WithField("component", "sync"),
	})
	if err != nil {
		return err
	}
	defer func() {
		cancel()
		<-ctrl.Done()
	}()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.NewServer(ctrl, log.WithField("component", "http")),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Addr).Info("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		log.Info("signal caught, shutting down")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	// websocket watchers are hijacked connections, Shutdown does not wait for them
	return srv.Shutdown(shutdownCtx)
}

func newLogger(cfg config) (*logrus.Entry, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(level)
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logrus.NewEntry(logger), nil
}
