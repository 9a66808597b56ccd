package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/use-agent/reviewguard/api"
	"github.com/use-agent/reviewguard/api/handler"
	"github.com/use-agent/reviewguard/config"
	"github.com/use-agent/reviewguard/extractor"
	"github.com/use-agent/reviewguard/llm"
	"github.com/use-agent/reviewguard/pipeline"
	"github.com/use-agent/reviewguard/scoring"
	"github.com/use-agent/reviewguard/scraper"
	"github.com/use-agent/reviewguard/store"
)

const (
	defaultOpenAIBaseURL  = "https://api.openai.com/v1"
	defaultOpenAIModel    = "gpt-4o-mini"
	defaultAnthropicModel = "claude-haiku-4-5"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("reviewguard starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"fetchBackend", cfg.Scraper.Backend,
		"store", cfg.Store.Backend,
	)

	// ── 3. Source fetcher ───────────────────────────────────────────
	fetcher, pool, closeFetcher, err := newFetcher(cfg)
	if err != nil {
		slog.Error("failed to initialise fetcher", "error", err)
		os.Exit(1)
	}
	defer closeFetcher()

	// ── 4. Scorers and analyzer ─────────────────────────────────────
	heuristic := scoring.NewHeuristic(scoring.HeuristicConfig{
		Lexicon: cfg.Analysis.PromotionalLexicon,
	})
	opts := []pipeline.Option{
		pipeline.WithExtractor(extractor.New(extractor.WithMinTextLength(cfg.Analysis.MinTextLength))),
	}
	scorerName := "heuristic"
	if ai := newAIScorer(cfg.LLM); ai != nil {
		opts = append(opts, pipeline.WithAIScorer(ai))
		scorerName = "ai+heuristic"
	}
	runCfg := pipeline.ConfigFrom(cfg.Analysis)
	runCfg.AllowFileURLs = cfg.Scraper.Backend == "file"
	analyzer := pipeline.New(
		scraper.WithRetry(fetcher, cfg.Scraper.FetchAttempts, cfg.Scraper.RetryBackoff),
		heuristic,
		runCfg,
		opts...,
	)

	// ── 5. Result store ─────────────────────────────────────────────
	st, closeStore := newStore(cfg.Store)
	defer closeStore()

	// ── 6. Setup router ─────────────────────────────────────────────
	router := api.NewRouter(api.Deps{
		Analyzer:  analyzer,
		Store:     st,
		Pool:      pool,
		Scorer:    scorerName,
		StoreName: cfg.Store.Backend,
		StartTime: time.Now(),
	}, cfg)

	// ── 7. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr, "scorer", scorerName)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 8. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// Analyses can run for minutes; give in-flight runs the run timeout
	// before cutting them off.
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Analysis.RunTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	slog.Info("reviewguard stopped")
}

// newFetcher builds the configured source fetcher. pool is nil for
// backends without a page pool.
func newFetcher(cfg *config.Config) (scraper.Fetcher, handler.PoolStatser, func(), error) {
	switch cfg.Scraper.Backend {
	case "http":
		return scraper.NewHTTPFetcher(cfg.Scraper, cfg.Browser.DefaultProxy), nil, func() {}, nil
	case "file":
		return scraper.NewFileFetcher(cfg.Scraper.FixtureDir, cfg.Scraper.Anchors), nil, func() {}, nil
	case "auto":
		rf, err := scraper.NewRodFetcher(cfg.Browser, cfg.Scraper)
		if err != nil {
			return nil, nil, nil, err
		}
		mem := scraper.NewDomainMemory(cfg.Scraper.DomainMemoryTTL)
		static := scraper.NewHTTPFetcher(cfg.Scraper, cfg.Browser.DefaultProxy)
		return scraper.Escalating(static, rf, mem), rf, func() {
			mem.Stop()
			rf.Close()
		}, nil
	case "rod", "":
		rf, err := scraper.NewRodFetcher(cfg.Browser, cfg.Scraper)
		if err != nil {
			return nil, nil, nil, err
		}
		return rf, rf, rf.Close, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown fetch backend %q", cfg.Scraper.Backend)
	}
}

// newAIScorer returns nil when no API key is configured.
func newAIScorer(cfg config.LLMConfig) *scoring.AIScorer {
	if cfg.APIKey == "" {
		slog.Info("no LLM API key configured, scoring with heuristic only")
		return nil
	}

	httpClient := &http.Client{Timeout: cfg.Timeout + 5*time.Second}
	var (
		gen   scoring.TextGenerator
		model = cfg.Model
	)
	switch cfg.Provider {
	case "anthropic":
		baseURL := cfg.BaseURL
		if baseURL == defaultOpenAIBaseURL {
			baseURL = ""
		}
		if model == defaultOpenAIModel {
			model = defaultAnthropicModel
		}
		gen = llm.NewAnthropicClient(cfg.APIKey, baseURL, httpClient)
	default:
		gen = llm.NewOpenAIClient(cfg.APIKey, cfg.BaseURL, httpClient)
	}

	slog.Info("AI scoring enabled", "provider", cfg.Provider, "model", model)
	return scoring.NewAIScorer(gen, model,
		scoring.WithBatchSize(cfg.BatchSize),
		scoring.WithCallTimeout(cfg.Timeout),
	)
}

func newStore(cfg config.StoreConfig) (store.Store, func()) {
	if cfg.Backend == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			slog.Warn("redis not reachable at startup", "addr", cfg.RedisAddr, "error", err)
		}
		return store.NewRedisStore(client, cfg.TTL), func() { client.Close() }
	}

	ms := store.NewMemoryStore(cfg.MaxEntries, cfg.TTL)
	return ms, ms.Close
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if cfg.Format == "text" {
		h = slog.NewTextHandler(os.Stdout, opts)
	} else {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(h))
}
