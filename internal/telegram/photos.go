package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/toricodesthings/transcript-import-service/internal/image"
	"github.com/toricodesthings/transcript-import-service/internal/importer"
	"github.com/toricodesthings/transcript-import-service/internal/session"
	"github.com/toricodesthings/transcript-import-service/internal/types"
)

const (
	defaultAlbumWait = 1500 * time.Millisecond
	progressEvery    = time.Second
)

type photoBatch struct {
	ChatID int64
	Key    string // "grp:<mediaGroupID>" | "chat:<chatID>"

	mu       sync.Mutex
	images   []image.Source
	timer    *time.Timer
	statusID int
	closed   bool // set once processBatch has taken the images
}

func isImageDocument(d *tgbotapi.Document) bool {
	return strings.HasPrefix(d.MimeType, "image/") || image.IsImageName(d.FileName)
}

// acceptPhoto downloads one photo and adds it to the chat's pending batch.
// The batch is imported once no photo has arrived for AlbumWait.
func (r *Router) acceptPhoto(ctx context.Context, msg *tgbotapi.Message, fileID, name string) {
	cid := msg.Chat.ID
	url, err := r.Bot.GetFileDirectURL(fileID)
	if err != nil {
		r.sendError(cid, "resolve photo", err)
		return
	}
	data, err := r.download(ctx, url)
	if err != nil {
		r.sendError(cid, "download photo", err)
		return
	}

	key := "chat:" + strconv.FormatInt(cid, 10)
	if msg.MediaGroupID != "" {
		key = "grp:" + msg.MediaGroupID
	}

	wait := r.AlbumWait
	if wait <= 0 {
		wait = defaultAlbumWait
	}
	r.addToBatch(ctx, key, cid, image.BytesSource(name, data), wait)
}

// addToBatch appends src to the open batch for key, starting a new batch when
// the previous one was already taken for processing.
func (r *Router) addToBatch(ctx context.Context, key string, cid int64, src image.Source, wait time.Duration) {
	for {
		bi, _ := r.batches.LoadOrStore(key, &photoBatch{ChatID: cid, Key: key})
		b := bi.(*photoBatch)

		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			r.batches.CompareAndDelete(key, b)
			continue
		}
		if r.MaxImages > 0 && len(b.images) >= r.MaxImages {
			b.mu.Unlock()
			return
		}
		b.images = append(b.images, src)
		if len(b.images) == 1 {
			// The status message exists before the timer can fire.
			b.statusID = r.send(cid, "Got it. Reading your grade report...").MessageID
		}
		if b.timer != nil {
			b.timer.Stop()
		}
		b.timer = time.AfterFunc(wait, func() { r.processBatch(context.WithoutCancel(ctx), key, b) })
		b.mu.Unlock()
		return
	}
}

func (r *Router) processBatch(ctx context.Context, key string, b *photoBatch) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	r.batches.CompareAndDelete(key, b)
	images := append([]image.Source(nil), b.images...)
	chatID, statusID := b.ChatID, b.statusID
	b.mu.Unlock()

	if len(images) == 0 {
		return
	}

	if r.ImportTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.ImportTimeout)
		defer cancel()
	}

	sid := SessionID(chatID)
	if _, err := session.GetOrCreate(ctx, r.Sessions, sid, r.DefaultCount, r.now()); err != nil {
		r.sendError(chatID, "load session", err)
		return
	}

	events := make(chan types.ImportEvent, 16)
	var (
		res    types.ImportResult
		runErr error
	)
	go func() {
		defer close(events)
		res, runErr = r.Importer.Run(ctx, sid, images, importer.Options{}, events)
	}()

	var last time.Time
	for ev := range events {
		if ev.Type != "progress" && ev.Type != "outcome" {
			continue
		}
		if ev.Type == "progress" && time.Since(last) < progressEvery {
			continue
		}
		last = time.Now()
		r.edit(chatID, statusID, ProgressText(ev, len(images)))
	}

	if runErr != nil {
		r.sendError(chatID, "import batch", runErr)
		return
	}
	r.logger().Info("telegram import",
		zap.Int64("chat", chatID),
		zap.Int("images", len(images)),
		zap.Int("terms", res.TermsImported))
	r.edit(chatID, statusID, FormatResult(res))
	if res.Success {
		r.send(chatID, FormatSession(res.Session))
	}
}

func (r *Router) download(ctx context.Context, url string) ([]byte, error) {
	if r.Download != nil {
		return r.Download(ctx, url)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 60 * time.Second}
}
