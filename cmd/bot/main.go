package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/toricodesthings/transcript-import-service/internal/bootstrap"
	"github.com/toricodesthings/transcript-import-service/internal/config"
	"github.com/toricodesthings/transcript-import-service/internal/logger"
	"github.com/toricodesthings/transcript-import-service/internal/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := cfg.ValidateBot(); err != nil {
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

	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		log.Fatal("telegram login", zap.Error(err))
	}
	bot.Debug = false

	r := &telegram.Router{
		Bot:           bot,
		Importer:      app.Importer,
		Sessions:      app.Sessions,
		Prefs:         app.Prefs,
		Log:           log.Named("telegram"),
		DefaultCount:  cfg.DefaultTermCount,
		AlbumWait:     cfg.TelegramAlbumWait,
		MaxImages:     cfg.MaxImagesPerImport,
		ImportTimeout: cfg.ImportTimeout,
	}

	log.Info("bot started",
		zap.String("username", bot.Self.UserName),
		zap.String("ocrEngine", app.Importer.Engine.Name()))

	runPolling(ctx, bot, log, func(upd tgbotapi.Update) {
		r.HandleUpdate(ctx, upd)
	})
	log.Info("bot stopped")
}

var reRetryAfter = regexp.MustCompile(`(?i)retry after\s+(\d+)`)

func retryDelayFromError(err error) time.Duration {
	if err == nil {
		return 0
	}
	s := strings.ToLower(err.Error())
	if strings.Contains(s, "too many requests") {
		if m := reRetryAfter.FindStringSubmatch(s); len(m) == 2 {
			if n, _ := strconv.Atoi(m[1]); n > 0 {
				return time.Duration(n) * time.Second
			}
		}
		return 3 * time.Second
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return 2 * time.Second
	}
	return 1 * time.Second
}

// runPolling long-polls Telegram until ctx is cancelled, backing off on errors.
func runPolling(ctx context.Context, bot *tgbotapi.BotAPI, log *zap.Logger, handle func(tgbotapi.Update)) {
	offset := 0
	baseDelay := 1 * time.Second
	maxDelay := 15 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		u := tgbotapi.NewUpdate(offset)
		u.Timeout = 30

		updates, err := bot.GetUpdates(u)
		if err != nil {
			d := min(max(retryDelayFromError(err), baseDelay), maxDelay)
			log.Warn("polling error", zap.Error(err), zap.Duration("retryIn", d))
			select {
			case <-ctx.Done():
				return
			case <-time.After(d):
			}
			continue
		}

		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}
			handle(upd)
		}
	}
}
