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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pythiastack/pythia-insights/internal/api"
	"github.com/pythiastack/pythia-insights/internal/cache"
	"github.com/pythiastack/pythia-insights/internal/config"
	"github.com/pythiastack/pythia-insights/internal/engine"
	"github.com/pythiastack/pythia-insights/internal/extractors"
	"github.com/pythiastack/pythia-insights/internal/llm"
	"github.com/pythiastack/pythia-insights/internal/metrics"
	"github.com/pythiastack/pythia-insights/internal/monitor"
	"github.com/pythiastack/pythia-insights/internal/ratelimit"
	"github.com/pythiastack/pythia-insights/internal/repo"
	"github.com/pythiastack/pythia-insights/internal/services"
	"github.com/pythiastack/pythia-insights/internal/tasks"
	"github.com/pythiastack/pythia-insights/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting insight engine",
		slog.String("address", cfg.Server.Address),
		slog.String("provider", cfg.LLM.Provider))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	// Shared store: Valkey when configured, in-process otherwise.
	var provider cache.Provider
	if cfg.Store.Enabled && cfg.Store.Addr != "" {
		valkey, err := cache.NewValkeyProvider(cache.ValkeyConfig{
			Addr:         cfg.Store.Addr,
			Username:     cfg.Store.Username,
			Password:     cfg.Store.Password,
			DB:           cfg.Store.DB,
			DialTimeout:  cfg.Store.DialTimeout,
			ReadTimeout:  cfg.Store.ReadTimeout,
			WriteTimeout: cfg.Store.WriteTimeout,
			MaxRetries:   cfg.Store.MaxRetries,
			TLS:          cfg.Store.TLS,
		})
		if err != nil {
			logger.Warn("valkey store unavailable, falling back to in-process stores", slog.Any("error", err))
		} else {
			provider = valkey
			defer valkey.Close()
		}
	}

	var (
		counterStore ratelimit.CounterStore
		insightStore repo.InsightStore
		recordStore  tasks.RecordStore
	)
	if provider != nil {
		counterStore = provider
		insightStore = repo.NewValkeyInsightStore(provider, cfg.Store.InsightTTL)
		recordStore = repo.NewValkeyRecordStore(provider, cfg.Store.TaskTTL)
	} else {
		counterStore = ratelimit.NewMemoryStore()
		insightStore = repo.NewMemoryInsightStore()
		recordStore = tasks.NewMemoryRecordStore()
	}

	clients, err := buildClients(cfg.LLM)
	if err != nil {
		logger.Error("failed to configure generation clients", slog.Any("error", err))
		os.Exit(1)
	}
	gateway := llm.NewGateway(logger, clients, llm.GatewayConfig{
		MaxRetries:  cfg.LLM.MaxRetries,
		BackoffBase: cfg.LLM.BackoffBase,
		BackoffCap:  cfg.LLM.BackoffCap,
		Options: llm.Options{
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			Timeout:     cfg.LLM.Timeout,
		},
	})

	limiter := ratelimit.NewLimiter(counterStore, cfg.RateLimit.Requests, cfg.RateLimit.Window)
	classifier := engine.NewClassifier(engine.Thresholds{
		CriticalPct: cfg.Thresholds.CriticalPct,
		HighPct:     cfg.Thresholds.HighPct,
		MediumPct:   cfg.Thresholds.MediumPct,
		ZScore:      cfg.Thresholds.ZScore,
	})

	pipeline := engine.NewPipeline(
		logger,
		limiter,
		extractors.New(),
		classifier,
		engine.NewPromptBuilder(),
		gateway,
		insightStore,
	)

	queue := tasks.NewQueue(logger, recordStore, pipeline, cfg.Workers.Count, cfg.Workers.QueueSize)
	queue.Start()

	service := services.NewInsightService(logger, pipeline, queue, insightStore, monitor.NewMonitor(logger, insightStore))
	server := api.NewServer(cfg.Server, logger, api.NewHandlers(logger, service))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("http server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", slog.Any("error", err))
	}

	queueCtx, cancelQueue := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	if err := queue.Stop(queueCtx); err != nil {
		logger.Warn("task queue drain incomplete", slog.Any("error", err))
	}
	cancelQueue()

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("insight engine stopped")
}

// buildClients assembles the ordered client list: configured provider first,
// then fallbacks. Duplicate provider names are collapsed.
func buildClients(cfg config.LLMConfig) ([]llm.Client, error) {
	names := append([]string{cfg.Provider}, cfg.Fallbacks...)
	seen := make(map[string]bool, len(names))
	clients := make([]llm.Client, 0, len(names))

	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		switch name {
		case "gemini":
			clients = append(clients, llm.NewGeminiClient(cfg.Gemini.BaseURL, cfg.Gemini.APIKey, cfg.Gemini.Model))
		case "openai":
			clients = append(clients, llm.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.BaseURL))
		case "mock":
			clients = append(clients, llm.NewMockClient())
		default:
			return nil, errors.New("unknown generation provider " + name)
		}
	}
	return clients, nil
}
