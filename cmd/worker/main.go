package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/dlptools/dlpscan"
)

// The worker drains the scan queue until terminated. Several workers may
// run against the same queue; each job executes in exactly one of them.
func main() {
	cfg, err := dlpscan.LoadConfig()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	})))

	if cfg.RedisURL == "" {
		slog.Error("worker requires PRESIDIO_SIT_REDIS_URL")
		os.Exit(1)
	}

	engine, err := dlpscan.New(cfg)
	if err != nil {
		slog.Error("creating engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	concurrency := cfg.OCRConcurrency
	if concurrency < 1 {
		concurrency = 1
	}

	slog.Info("worker starting", "concurrency", concurrency)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runLoop(ctx, engine)
		}()
	}
	wg.Wait()

	slog.Info("worker stopped")
}

func runLoop(ctx context.Context, engine dlpscan.Engine) {
	for {
		task, err := engine.Queue().Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			slog.Error("dequeue error", "error", err)
			return
		}
		slog.Info("task received", "job_id", task.JobID, "path", task.Path)
		if err := engine.RunScan(ctx, task); err != nil {
			slog.Error("scan error", "job_id", task.JobID, "error", err)
		}
	}
}

func logLevel(name string) slog.Level {
	switch strings.ToUpper(name) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
