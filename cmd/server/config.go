package main

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type config struct {
	Addr               string
	LogLevel           string
	LogFormat          string
	EnqueueTimeout     time.Duration
	MaxQueuedCommands  int
	TracePath          string
	TraceFlushInterval time.Duration
	TraceBufferBytes   int
}

func loadConfig() (config, error) {
	cfg := config{
		Addr:      envOrDefault("SYNC_HTTP_ADDR", "127.0.0.1:8080"),
		LogLevel:  envOrDefault("SYNC_LOG_LEVEL", "info"),
		LogFormat: envOrDefault("SYNC_LOG_FORMAT", "text"),
		TracePath: os.Getenv("SYNC_TRACE_PATH"),
	}

	var err error
	if cfg.EnqueueTimeout, err = durationEnv("SYNC_ENQUEUE_TIMEOUT", 500*time.Millisecond); err != nil {
		return config{}, err
	}
	if cfg.TraceFlushInterval, err = durationEnv("SYNC_TRACE_FLUSH_INTERVAL", time.Second); err != nil {
		return config{}, err
	}
	if cfg.MaxQueuedCommands, err = intEnv("SYNC_MAX_QUEUED_COMMANDS", 1024); err != nil {
		return config{}, err
	}
	if cfg.TraceBufferBytes, err = intEnv("SYNC_TRACE_BUFFER_BYTES", 4*1024*1024); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
