package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dlptools/dlpscan"
)

func main() {
	addr := flag.String("addr", ":8080", "Listen address")
	flag.Parse()

	cfg, err := dlpscan.LoadConfig()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	// Structured JSON logging.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	})))

	apiKey := os.Getenv("PRESIDIO_SIT_API_KEY")
	corsOrigins := os.Getenv("PRESIDIO_SIT_CORS_ORIGINS")

	engine, err := dlpscan.New(cfg)
	if err != nil {
		slog.Error("creating engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	// Without Redis the queue is in-process, so this binary also runs the
	// worker loop.
	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	if cfg.RedisURL == "" {
		go runInlineWorker(workerCtx, engine)
	}

	h := newHandler(engine, cfg)
	mux := http.NewServeMux()

	mux.HandleFunc("POST /scans", h.handleSubmitScan)
	mux.HandleFunc("GET /jobs", h.handleListJobs)
	mux.HandleFunc("GET /jobs/{id}", h.handleGetJob)
	mux.HandleFunc("GET /jobs/{id}/findings", h.handleJobFindings)
	mux.HandleFunc("GET /jobs/{id}/items", h.handleJobItems)

	mux.HandleFunc("POST /suggest", h.handleSuggest)

	mux.HandleFunc("POST /sits", h.handleCreateSIT)
	mux.HandleFunc("GET /sits", h.handleListSITs)
	mux.HandleFunc("GET /sits/{id}", h.handleGetSIT)
	mux.HandleFunc("DELETE /sits/{id}", h.handleDeleteSIT)
	mux.HandleFunc("POST /sits/{id}/versions", h.handleCreateVersion)
	mux.HandleFunc("GET /sits/{id}/versions", h.handleListVersions)

	mux.HandleFunc("POST /keyword-lists", h.handleCreateKeywordList)
	mux.HandleFunc("GET /keyword-lists", h.handleListKeywordLists)
	mux.HandleFunc("GET /keyword-lists/{id}", h.handleGetKeywordList)

	mux.HandleFunc("POST /rulepacks", h.handleCreateRulepack)
	mux.HandleFunc("GET /rulepacks", h.handleListRulepacks)
	mux.HandleFunc("GET /rulepacks/{id}", h.handleGetRulepack)
	mux.HandleFunc("DELETE /rulepacks/{id}", h.handleDeleteRulepack)
	mux.HandleFunc("PUT /rulepacks/{id}/selections", h.handleSetSelections)
	mux.HandleFunc("GET /rulepacks/{id}/export", h.handleExportRulepack)

	mux.HandleFunc("GET /health", h.handleHealth)

	// Middleware chain: recovery -> cors -> auth -> logging -> mux
	var handler http.Handler = mux
	handler = logMiddleware(handler)
	handler = authMiddleware(apiKey, handler)
	handler = corsMiddleware(corsOrigins, handler)
	handler = recoveryMiddleware(handler)

	srv := &http.Server{
		Addr:         *addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // exports and uploads can be slow
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("shutting down server...")
	stopWorker()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("server stopped")
}

// runInlineWorker drains the in-process queue until ctx is canceled.
func runInlineWorker(ctx context.Context, engine dlpscan.Engine) {
	for {
		task, err := engine.Queue().Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			slog.Error("dequeue error", "error", err)
			return
		}
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
