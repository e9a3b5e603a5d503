package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/web3names/resolver/internal/platform/cache"
	"github.com/web3names/resolver/internal/platform/config"
	"github.com/web3names/resolver/internal/platform/observability"
	"github.com/web3names/resolver/internal/resolver"
	"github.com/web3names/resolver/internal/upstream"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	configPath := os.Getenv("RESOLVER_CONFIG")
	cfg := config.MustLoad(configPath)

	// Observability first, everything else logs through it
	logger := observability.NewLogger(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

	metrics, err := observability.NewMetrics("resolverd", cfg.Observability.Metrics.Enabled)
	if err != nil {
		log.Fatalf("Failed to create metrics: %v", err)
	}

	tracerProvider, err := observability.NewTracerProvider(ctx, "resolverd",
		cfg.Observability.Tracing.Endpoint, cfg.Observability.Tracing.Enabled)
	if err != nil {
		log.Fatalf("Failed to create tracer: %v", err)
	}
	defer tracerProvider.Shutdown(ctx)

	var tracer observability.Tracer
	if cfg.Observability.Tracing.Enabled {
		tracer = observability.NewTracer("resolverd")
	} else {
		tracer = observability.NewNoopTracer()
	}

	// Cache factory: plain memory LRU, or memory fronting a shared Redis
	// tier. The engine calls it again whenever cache sizing changes.
	newCache := func(maxSize int) cache.Store {
		return cache.NewMemoryCache(maxSize)
	}
	if cfg.Redis.Enabled {
		redisCache, err := cache.NewRedisCache(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.LogError(ctx, "failed to create Redis cache", err)
			log.Fatalf("Failed to create Redis cache: %v", err)
		}
		redisCache.WithDecoder(func(data []byte) (interface{}, error) {
			var res resolver.Result
			if err := json.Unmarshal(data, &res); err != nil {
				return nil, err
			}
			return res, nil
		})
		defer redisCache.Close()
		// The Redis tier is shared across rebuilds; only the local LRU is
		// replaced when cache sizing changes
		shared := cache.Shared(redisCache)
		newCache = func(maxSize int) cache.Store {
			return cache.NewLayeredCache(cache.NewMemoryCache(maxSize), shared)
		}
	}

	client := upstream.NewClient(upstream.ClientConfig{
		BaseURL:        cfg.Resolver.BaseURL,
		APIKey:         cfg.Resolver.APIKey,
		Timeout:        cfg.Resolver.Timeout,
		RateLimitRPM:   cfg.Resolver.RateLimit.RequestsPerMinute,
		RateLimitBurst: cfg.Resolver.RateLimit.Burst,
		Logger:         logger,
		Metrics:        metrics,
	})

	engine := resolver.NewEngine(resolver.EngineConfig{
		Config: resolver.Config{
			APIKey:               cfg.Resolver.APIKey,
			BatchSize:            cfg.Resolver.BatchSize,
			CacheMaxSize:         cfg.Cache.MaxSize,
			CacheTTL:             cfg.Cache.TTL,
			MaxConcurrentBatches: cfg.Resolver.MaxConcurrentBatches,
		},
		Upstream: client,
		NewCache: newCache,
		Logger:   logger,
		Metrics:  metrics,
		Tracer:   tracer,
	})
	defer engine.Close()

	// Pre-resolve well-known names so the first requests hit a warm cache
	if len(cfg.Resolver.WarmupNames) > 0 {
		warmer := cache.NewWarmer(logger, cache.DefaultWarmupConfig())
		warmer.RegisterProvider(resolver.NewWarmupProvider(engine, cfg.Resolver.WarmupNames))
		warmer.Warmup(ctx)
	}

	apiServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      newAPIHandler(engine, logger),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	var metricsServer *http.Server
	if cfg.Observability.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Observability.Metrics.Port),
			Handler: metricsMux,
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("resolver API listening", "addr", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})

	if metricsServer != nil {
		g.Go(func() error {
			logger.Info("metrics listening", "addr", metricsServer.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			logger.Info("shutting down", "signal", sig.String())
		case <-gctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		_ = apiServer.Shutdown(shutdownCtx)
		if metricsServer != nil {
			_ = metricsServer.Shutdown(shutdownCtx)
		}
		cancel()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.LogError(ctx, "server exited", err)
		os.Exit(1)
	}
}

// resolveManyRequest is the body of POST /v1/resolve
type resolveManyRequest struct {
	Names []string `json:"names"`
}

// resolveManyResponse is the reply of POST /v1/resolve
type resolveManyResponse struct {
	Results []resolver.Result `json:"results"`
}

// configUpdateRequest is the body of PATCH /v1/config. The TTL travels as
// milliseconds to keep the wire format integer-only.
type configUpdateRequest struct {
	APIKey         *string `json:"apiKey"`
	BatchSize      *int    `json:"batchSize"`
	CacheMaxSize   *int    `json:"cacheMaxSize"`
	CacheTTLMillis *int64  `json:"cacheTTLMillis"`
}

// configResponse is the reply of GET /v1/config, with the credential
// reduced to a presence flag
type configResponse struct {
	HasAPIKey            bool  `json:"hasApiKey"`
	BatchSize            int   `json:"batchSize"`
	CacheMaxSize         int   `json:"cacheMaxSize"`
	CacheTTLMillis       int64 `json:"cacheTTLMillis"`
	MaxConcurrentBatches int   `json:"maxConcurrentBatches"`
}

func newAPIHandler(engine *resolver.Engine, logger *observability.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("GET /v1/resolve/{name}", func(w http.ResponseWriter, r *http.Request) {
		result := engine.Resolve(r.Context(), r.PathValue("name"))
		writeJSON(w, http.StatusOK, result)
	})

	mux.HandleFunc("POST /v1/resolve", func(w http.ResponseWriter, r *http.Request) {
		var req resolveManyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		results := engine.ResolveMany(r.Context(), req.Names)
		writeJSON(w, http.StatusOK, resolveManyResponse{Results: results})
	})

	mux.HandleFunc("GET /v1/cache/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, engine.CacheStats())
	})

	mux.HandleFunc("DELETE /v1/cache", func(w http.ResponseWriter, r *http.Request) {
		engine.ClearCache(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("DELETE /v1/cache/{key}", func(w http.ResponseWriter, r *http.Request) {
		if engine.EvictCache(r.Context(), r.PathValue("key")) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		http.Error(w, "key not cached", http.StatusNotFound)
	})

	mux.HandleFunc("GET /v1/config", func(w http.ResponseWriter, r *http.Request) {
		cfg := engine.Config()
		writeJSON(w, http.StatusOK, configResponse{
			HasAPIKey:            cfg.APIKey != "",
			BatchSize:            cfg.BatchSize,
			CacheMaxSize:         cfg.CacheMaxSize,
			CacheTTLMillis:       cfg.CacheTTL.Milliseconds(),
			MaxConcurrentBatches: cfg.MaxConcurrentBatches,
		})
	})

	mux.HandleFunc("PATCH /v1/config", func(w http.ResponseWriter, r *http.Request) {
		var req configUpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		upd := resolver.Update{
			APIKey:       req.APIKey,
			BatchSize:    req.BatchSize,
			CacheMaxSize: req.CacheMaxSize,
		}
		if req.CacheTTLMillis != nil {
			if *req.CacheTTLMillis < 0 {
				http.Error(w, "cacheTTLMillis must not be negative", http.StatusBadRequest)
				return
			}
			ttl := time.Duration(*req.CacheTTLMillis) * time.Millisecond
			upd.CacheTTL = &ttl
		}

		engine.Configure(r.Context(), upd)
		logger.LogInfo(r.Context(), "configuration updated")
		w.WriteHeader(http.StatusNoContent)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
