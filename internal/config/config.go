package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// Server
	Port string

	// Secrets
	InternalSharedSecret string
	MistralAPIKey        string
	GeminiAPIKey         string
	TelegramBotToken     string

	// Limits
	MaxJSONBodyBytes   int64
	MaxImageBytes      int64
	MaxImagesPerImport int

	// Concurrency
	MaxConcurrentRequests int64
	MaxOCRConcurrent      int64

	// Server timeouts
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration

	// Request timeouts
	ImportTimeout time.Duration
	ParseTimeout  time.Duration

	// rate limiting (per IP)
	RateLimitEvery time.Duration
	RateLimitBurst int

	// housekeeping
	CleanupInterval time.Duration

	// health
	HealthDegradeRatio float64

	// http
	MaxHeaderBytes int

	// OCR
	OCREngine         string // tesseract | mistral | gemini | hybrid
	OCRFallbackEngine string // used by hybrid
	OCRLanguages      []string
	OCRPSM            int
	OCRDPI            int
	OCRMinRows        int
	MistralOCRModel   string
	GeminiModel       string

	// Normalizer
	NormalizeMinWidth   int
	NormalizeMinHeight  int
	NormalizeMaxScale   float64
	NormalizeContrast   float64
	NormalizeBrightness float64
	NormalizeMaxPixels  int

	// Transcript
	ExcludedPrefixes []string
	DefaultTermCount int

	// Storage
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SessionTTL    time.Duration
	DatabaseURL   string

	// Telegram
	TelegramAlbumWait time.Duration

	// Logging
	LogLevel  string
	LogFormat string
}

var engines = map[string]bool{"tesseract": true, "mistral": true, "gemini": true, "hybrid": true}

// Load resolves configuration from defaults, an optional CONFIG_FILE and the
// environment. Environment variables win.
func Load() (Config, error) {
	v := viper.New()

	v.SetDefault("PORT", "8080")

	v.SetDefault("MAX_JSON_BODY_BYTES", 2<<20)
	v.SetDefault("MAX_IMAGE_BYTES", 20<<20)
	v.SetDefault("MAX_IMAGES_PER_IMPORT", 10)

	v.SetDefault("MAX_CONCURRENT_REQUESTS", 15)
	v.SetDefault("MAX_OCR_CONCURRENT", 3)

	v.SetDefault("READ_HEADER_TIMEOUT", "10s")
	v.SetDefault("READ_TIMEOUT", "60s")
	v.SetDefault("WRITE_TIMEOUT", "300s")
	v.SetDefault("IDLE_TIMEOUT", "60s")

	v.SetDefault("IMPORT_TIMEOUT", "280s")
	v.SetDefault("PARSE_TIMEOUT", "10s")

	v.SetDefault("RATE_LIMIT_EVERY", "600ms")
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("CLEANUP_INTERVAL", "5m")
	v.SetDefault("HEALTH_DEGRADE_RATIO", 0.9)
	v.SetDefault("MAX_HEADER_BYTES", 1<<20)

	v.SetDefault("OCR_ENGINE", "tesseract")
	v.SetDefault("OCR_FALLBACK_ENGINE", "")
	v.SetDefault("OCR_LANGUAGES", "eng")
	v.SetDefault("OCR_PSM", 6)
	v.SetDefault("OCR_DPI", 300)
	v.SetDefault("OCR_MIN_ROWS", 2)
	v.SetDefault("MISTRAL_OCR_MODEL", "mistral-ocr-latest")
	v.SetDefault("GEMINI_MODEL", "gemini-1.5-flash")

	v.SetDefault("NORMALIZE_MIN_WIDTH", 1400)
	v.SetDefault("NORMALIZE_MIN_HEIGHT", 900)
	v.SetDefault("NORMALIZE_MAX_SCALE", 2.5)
	v.SetDefault("NORMALIZE_CONTRAST", 1.4)
	v.SetDefault("NORMALIZE_BRIGHTNESS", 1.1)
	v.SetDefault("NORMALIZE_MAX_PIXELS", 40_000_000)

	v.SetDefault("EXCLUDED_PREFIXES", "NSTP,ROTC,CWTS,LTS,LASARE,PEDEV,PEFIT,GEPEDEV")
	v.SetDefault("DEFAULT_TERM_COUNT", 4)

	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("SESSION_TTL", "720h")
	v.SetDefault("DATABASE_URL", "")

	v.SetDefault("TELEGRAM_ALBUM_WAIT", "1500ms")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := strings.TrimSpace(v.GetString("CONFIG_FILE")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	return Config{
		Port: str(v, "PORT"),

		InternalSharedSecret: str(v, "INTERNAL_SHARED_SECRET"),
		MistralAPIKey:        str(v, "MISTRAL_API_KEY"),
		GeminiAPIKey:         str(v, "GEMINI_API_KEY"),
		TelegramBotToken:     str(v, "TELEGRAM_BOT_TOKEN"),

		MaxJSONBodyBytes:   v.GetInt64("MAX_JSON_BODY_BYTES"),
		MaxImageBytes:      v.GetInt64("MAX_IMAGE_BYTES"),
		MaxImagesPerImport: v.GetInt("MAX_IMAGES_PER_IMPORT"),

		MaxConcurrentRequests: v.GetInt64("MAX_CONCURRENT_REQUESTS"),
		MaxOCRConcurrent:      v.GetInt64("MAX_OCR_CONCURRENT"),

		ReadHeaderTimeout: v.GetDuration("READ_HEADER_TIMEOUT"),
		ReadTimeout:       v.GetDuration("READ_TIMEOUT"),
		WriteTimeout:      v.GetDuration("WRITE_TIMEOUT"),
		IdleTimeout:       v.GetDuration("IDLE_TIMEOUT"),

		ImportTimeout: v.GetDuration("IMPORT_TIMEOUT"),
		ParseTimeout:  v.GetDuration("PARSE_TIMEOUT"),

		RateLimitEvery: v.GetDuration("RATE_LIMIT_EVERY"),
		RateLimitBurst: v.GetInt("RATE_LIMIT_BURST"),

		CleanupInterval: v.GetDuration("CLEANUP_INTERVAL"),

		HealthDegradeRatio: v.GetFloat64("HEALTH_DEGRADE_RATIO"),

		MaxHeaderBytes: v.GetInt("MAX_HEADER_BYTES"),

		OCREngine:         strings.ToLower(str(v, "OCR_ENGINE")),
		OCRFallbackEngine: strings.ToLower(str(v, "OCR_FALLBACK_ENGINE")),
		OCRLanguages:      list(v, "OCR_LANGUAGES"),
		OCRPSM:            v.GetInt("OCR_PSM"),
		OCRDPI:            v.GetInt("OCR_DPI"),
		OCRMinRows:        v.GetInt("OCR_MIN_ROWS"),
		MistralOCRModel:   str(v, "MISTRAL_OCR_MODEL"),
		GeminiModel:       str(v, "GEMINI_MODEL"),

		NormalizeMinWidth:   v.GetInt("NORMALIZE_MIN_WIDTH"),
		NormalizeMinHeight:  v.GetInt("NORMALIZE_MIN_HEIGHT"),
		NormalizeMaxScale:   v.GetFloat64("NORMALIZE_MAX_SCALE"),
		NormalizeContrast:   v.GetFloat64("NORMALIZE_CONTRAST"),
		NormalizeBrightness: v.GetFloat64("NORMALIZE_BRIGHTNESS"),
		NormalizeMaxPixels:  v.GetInt("NORMALIZE_MAX_PIXELS"),

		ExcludedPrefixes: list(v, "EXCLUDED_PREFIXES"),
		DefaultTermCount: v.GetInt("DEFAULT_TERM_COUNT"),

		RedisAddr:     str(v, "REDIS_ADDR"),
		RedisPassword: str(v, "REDIS_PASSWORD"),
		RedisDB:       v.GetInt("REDIS_DB"),
		SessionTTL:    v.GetDuration("SESSION_TTL"),
		DatabaseURL:   str(v, "DATABASE_URL"),

		TelegramAlbumWait: v.GetDuration("TELEGRAM_ALBUM_WAIT"),

		LogLevel:  str(v, "LOG_LEVEL"),
		LogFormat: str(v, "LOG_FORMAT"),
	}, nil
}

// Validate checks what every entry point needs.
func (c Config) Validate() error {
	var errs []error
	if !engines[c.OCREngine] {
		errs = append(errs, fmt.Errorf("OCR_ENGINE %q is not one of tesseract, mistral, gemini, hybrid", c.OCREngine))
	}
	if c.OCREngine == "hybrid" && (!engines[c.OCRFallbackEngine] || c.OCRFallbackEngine == "hybrid") {
		errs = append(errs, fmt.Errorf("OCR_FALLBACK_ENGINE must name a concrete engine when OCR_ENGINE=hybrid"))
	}
	for _, e := range []string{c.OCREngine, c.OCRFallbackEngine} {
		switch e {
		case "mistral":
			if c.MistralAPIKey == "" {
				errs = append(errs, errors.New("MISTRAL_API_KEY is required for the mistral engine"))
			}
		case "gemini":
			if c.GeminiAPIKey == "" {
				errs = append(errs, errors.New("GEMINI_API_KEY is required for the gemini engine"))
			}
		}
	}
	if c.DefaultTermCount < 0 {
		errs = append(errs, errors.New("DEFAULT_TERM_COUNT must not be negative"))
	}
	if c.NormalizeMaxScale < 1 {
		errs = append(errs, errors.New("NORMALIZE_MAX_SCALE must be at least 1"))
	}
	return errors.Join(errs...)
}

// ValidateServer adds the HTTP server requirements.
func (c Config) ValidateServer() error {
	if len(strings.TrimSpace(c.InternalSharedSecret)) < 32 {
		return errors.Join(c.Validate(), fmt.Errorf("INTERNAL_SHARED_SECRET must be at least 32 characters"))
	}
	return c.Validate()
}

// ValidateBot adds the Telegram bot requirements.
func (c Config) ValidateBot() error {
	if c.TelegramBotToken == "" {
		return errors.Join(c.Validate(), errors.New("TELEGRAM_BOT_TOKEN is required"))
	}
	return c.Validate()
}

func str(v *viper.Viper, key string) string {
	return strings.TrimSpace(v.GetString(key))
}

// list reads a comma separated value.
func list(v *viper.Viper, key string) []string {
	var out []string
	for _, p := range strings.Split(v.GetString(key), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
