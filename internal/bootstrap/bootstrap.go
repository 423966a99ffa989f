package bootstrap

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/toricodesthings/transcript-import-service/internal/config"
	"github.com/toricodesthings/transcript-import-service/internal/history"
	"github.com/toricodesthings/transcript-import-service/internal/hybrid"
	"github.com/toricodesthings/transcript-import-service/internal/image"
	"github.com/toricodesthings/transcript-import-service/internal/importer"
	"github.com/toricodesthings/transcript-import-service/internal/ocr"
	"github.com/toricodesthings/transcript-import-service/internal/ocr/gemini"
	"github.com/toricodesthings/transcript-import-service/internal/ocr/tesseract"
	"github.com/toricodesthings/transcript-import-service/internal/prefs"
	"github.com/toricodesthings/transcript-import-service/internal/session"
	"github.com/toricodesthings/transcript-import-service/internal/transcript"
)

// App holds the dependencies shared by the HTTP server and the bot.
type App struct {
	Config   config.Config
	Log      *zap.Logger
	Sessions session.Store
	Prefs    *prefs.Flags
	History  history.Recorder
	Parser   *transcript.Parser
	Importer *importer.Importer

	closers []func()
}

// Build wires storage, OCR and the import pipeline from cfg. Redis and
// Postgres are optional: when unreachable the app degrades to in-memory
// storage and logs a warning.
func Build(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	app := &App{Config: cfg, Log: log}

	var sessions session.Store = session.NewMemoryStore()
	var flagStore prefs.Store = prefs.NewMemoryStore()
	if cfg.RedisAddr != "" {
		rdb, err := connectRedis(ctx, cfg)
		if err != nil {
			log.Warn("redis unavailable, using in-memory sessions", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		} else {
			log.Info("redis connected", zap.String("addr", cfg.RedisAddr))
			sessions = session.NewRedisStore(rdb, cfg.SessionTTL)
			flagStore = prefs.NewRedisStore(rdb)
			app.closers = append(app.closers, func() { _ = rdb.Close() })
		}
	}
	app.Sessions = sessions
	app.Prefs = prefs.New(flagStore)
	if _, err := app.Prefs.Load(ctx, "global"); err != nil {
		log.Warn("load global preferences", zap.Error(err))
	}

	var recorder history.Recorder = history.NewMemory(1000)
	if cfg.DatabaseURL != "" {
		pg, err := history.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Warn("postgres unavailable, keeping history in memory", zap.Error(err))
		} else {
			log.Info("postgres connected")
			recorder = pg
			app.closers = append(app.closers, pg.Close)
		}
	}
	app.History = recorder

	engine, err := NewEngine(cfg, log)
	if err != nil {
		return nil, err
	}

	app.Parser = transcript.NewParser(cfg.ExcludedPrefixes)
	app.Importer = &importer.Importer{
		Normalizer: image.Normalizer{
			MinWidth:   cfg.NormalizeMinWidth,
			MinHeight:  cfg.NormalizeMinHeight,
			MaxScale:   cfg.NormalizeMaxScale,
			Contrast:   cfg.NormalizeContrast,
			Brightness: cfg.NormalizeBrightness,
			MaxPixels:  cfg.NormalizeMaxPixels,
		},
		Engine:     engine,
		OCROptions: OCROptions(cfg),
		Parser:     app.Parser,
		Merger:     session.Merger{DefaultCount: cfg.DefaultTermCount},
		Store:      sessions,
		History:    recorder,
		Log:        log,
	}
	return app, nil
}

// Close releases connections opened by Build.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// OCROptions maps configuration onto engine options.
func OCROptions(cfg config.Config) ocr.Options {
	o := ocr.DefaultOptions()
	if len(cfg.OCRLanguages) > 0 {
		o.Languages = cfg.OCRLanguages
	}
	if cfg.OCRPSM > 0 {
		o.PSM = cfg.OCRPSM
	}
	if cfg.OCRDPI > 0 {
		o.DPI = cfg.OCRDPI
	}
	return o
}

// NewEngine builds the configured OCR engine.
func NewEngine(cfg config.Config, log *zap.Logger) (ocr.Engine, error) {
	if cfg.OCREngine == "hybrid" {
		primary, err := namedEngine("tesseract", cfg)
		if err != nil {
			return nil, err
		}
		fallback, err := namedEngine(cfg.OCRFallbackEngine, cfg)
		if err != nil {
			return nil, err
		}
		return hybrid.New(primary, fallback, cfg.OCRMinRows, log), nil
	}
	return namedEngine(cfg.OCREngine, cfg)
}

func namedEngine(name string, cfg config.Config) (ocr.Engine, error) {
	switch name {
	case "tesseract":
		return tesseract.New(), nil
	case "mistral":
		return ocr.NewMistral(cfg.MistralAPIKey, cfg.MistralOCRModel), nil
	case "gemini":
		return gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel), nil
	}
	return nil, fmt.Errorf("unknown ocr engine %q", name)
}

func connectRedis(ctx context.Context, cfg config.Config) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}
