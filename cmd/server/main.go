package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/toricodesthings/transcript-import-service/internal/bootstrap"
	"github.com/toricodesthings/transcript-import-service/internal/config"
	"github.com/toricodesthings/transcript-import-service/internal/logger"
)

const version = "1.0.0"

type serverMetrics struct {
	mu            sync.RWMutex
	totalRequests int64
	activeReqs    int64
	imagesTotal   int64
	importsFailed int64
}

func (m *serverMetrics) incActive() {
	m.mu.Lock()
	m.activeReqs++
	m.totalRequests++
	m.mu.Unlock()
}
func (m *serverMetrics) decActive() {
	m.mu.Lock()
	m.activeReqs--
	m.mu.Unlock()
}
func (m *serverMetrics) addImages(total, failed int) {
	m.mu.Lock()
	m.imagesTotal += int64(total)
	m.importsFailed += int64(failed)
	m.mu.Unlock()
}
func (m *serverMetrics) get() (total, active int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totalRequests, m.activeReqs
}

type server struct {
	cfg config.Config
	app *bootstrap.App
	log *zap.Logger

	requestSem *semaphore.Weighted
	ocrSem     *semaphore.Weighted

	// Per-IP rate limiters
	limitersMu sync.Mutex
	limiters   *sync.Map

	metrics *serverMetrics
	now     func() time.Time
}

func newServer(cfg config.Config, app *bootstrap.App) *server {
	return &server{
		cfg:        cfg,
		app:        app,
		log:        app.Log,
		requestSem: semaphore.NewWeighted(cfg.MaxConcurrentRequests),
		ocrSem:     semaphore.NewWeighted(cfg.MaxOCRConcurrent),
		limiters:   &sync.Map{},
		metrics:    &serverMetrics{},
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := cfg.ValidateServer(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal("bootstrap", zap.Error(err))
	}
	defer app.Close()

	s := newServer(cfg, app)

	maxHeaderBytes := 1 << 20
	if cfg.MaxHeaderBytes > 0 {
		maxHeaderBytes = cfg.MaxHeaderBytes
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.routes(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    maxHeaderBytes,
	}

	go s.cleanupRateLimiters(ctx)

	log.Info("transcript import service listening",
		zap.String("addr", srv.Addr),
		zap.String("ocrEngine", app.Importer.Engine.Name()),
		zap.Int64("maxConcurrent", cfg.MaxConcurrentRequests),
		zap.Int64("maxOCR", cfg.MaxOCRConcurrent))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown", zap.Error(err))
		}
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/metrics", s.withInternalAuth(s.handleMetrics))

	mux.HandleFunc("/sessions",
		s.withInternalAuth(
			s.withRateLimit(
				withMethod("POST", s.handleCreateSession))))

	mux.HandleFunc("/sessions/{id}",
		s.withInternalAuth(
			s.withRateLimit(
				byMethod(map[string]http.HandlerFunc{
					"GET":    s.handleGetSession,
					"DELETE": s.handleDeleteSession,
				}))))

	mux.HandleFunc("/sessions/{id}/import",
		s.withInternalAuth(
			s.withRateLimit(
				withMethod("POST",
					s.withConcurrencyLimit(s.handleImport)))))

	mux.HandleFunc("/sessions/{id}/export",
		s.withInternalAuth(
			s.withRateLimit(
				withMethod("GET",
					s.withConcurrencyLimit(s.handleExport)))))

	mux.HandleFunc("/sessions/{id}/history",
		s.withInternalAuth(
			s.withRateLimit(
				withMethod("GET", s.handleHistory))))

	mux.HandleFunc("/transcripts/parse",
		s.withInternalAuth(
			s.withRateLimit(
				withMethod("POST",
					s.withConcurrencyLimit(
						withTimeout(s.cfg.ParseTimeout, s.handleParse))))))

	mux.HandleFunc("/preferences",
		s.withInternalAuth(
			withMethod("GET", s.handleGetPreferences)))

	mux.HandleFunc("/preferences/{key}",
		s.withInternalAuth(
			withMethod("PUT", s.handleSetPreference)))

	return s.withLogging(s.withRecovery(mux))
}

func (s *server) cleanupRateLimiters(ctx context.Context) {
	interval := s.cfg.CleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		total, active := s.metrics.get()
		s.log.Info("stats",
			zap.Int64("active", active),
			zap.Int64("total", total),
			zap.Int("goroutines", runtime.NumGoroutine()),
			zap.Uint64("memMB", m.Alloc/(1<<20)))

		s.limitersMu.Lock()
		s.limiters = &sync.Map{}
		s.limitersMu.Unlock()
	}
}
