package telegram

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/toricodesthings/transcript-import-service/internal/export"
	"github.com/toricodesthings/transcript-import-service/internal/importer"
	"github.com/toricodesthings/transcript-import-service/internal/prefs"
	"github.com/toricodesthings/transcript-import-service/internal/session"
)

// Sender is the part of *tgbotapi.BotAPI the router uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

type Router struct {
	Bot          Sender
	Importer     *importer.Importer
	Sessions     session.Store
	Prefs        *prefs.Flags
	Log          *zap.Logger
	DefaultCount int
	AlbumWait    time.Duration
	// MaxImages caps one batch; extra photos in an album are dropped.
	MaxImages     int
	ImportTimeout time.Duration

	// Download fetches a file URL. Nil uses an HTTP GET.
	Download func(ctx context.Context, url string) ([]byte, error)
	Now      func() time.Time

	batches sync.Map // key -> *photoBatch
}

// SessionID maps a chat onto its stable session id.
func SessionID(chatID int64) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("telegram:"+strconv.FormatInt(chatID, 10))).String()
}

func prefScope(chatID int64) string {
	return "chat:" + strconv.FormatInt(chatID, 10)
}

func (r *Router) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now().UTC()
}

func (r *Router) logger() *zap.Logger {
	if r.Log == nil {
		return zap.NewNop()
	}
	return r.Log
}

// HandleUpdate dispatches one Telegram update. Photos return immediately;
// their import runs once the album settles.
func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	msg := upd.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	switch {
	case msg.IsCommand():
		r.HandleCommand(ctx, msg)
	case len(msg.Photo) > 0:
		ph := msg.Photo[len(msg.Photo)-1]
		r.acceptPhoto(ctx, msg, ph.FileID, fmt.Sprintf("photo_%d.jpg", msg.MessageID))
	case msg.Document != nil && isImageDocument(msg.Document):
		r.acceptPhoto(ctx, msg, msg.Document.FileID, msg.Document.FileName)
	default:
		r.send(msg.Chat.ID, hintText)
	}
}

func (r *Router) HandleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cid := msg.Chat.ID
	switch msg.Command() {
	case "start":
		hidden, err := r.Prefs.Get(ctx, prefScope(cid), prefs.HideImportGuide)
		if err != nil {
			r.logger().Warn("load guide preference", zap.Int64("chat", cid), zap.Error(err))
		}
		if hidden {
			r.send(cid, welcomeShort)
			return
		}
		r.send(cid, welcomeText+"\n\n"+guideText)
	case "help":
		r.send(cid, guideText)
	case "hideguide":
		r.setGuide(ctx, cid, true, "Okay, /start will skip the import guide from now on. Use /showguide to bring it back.")
	case "showguide":
		r.setGuide(ctx, cid, false, "The import guide is back on /start.")
	case "terms":
		s, err := session.GetOrCreate(ctx, r.Sessions, SessionID(cid), r.DefaultCount, r.now())
		if err != nil {
			r.sendError(cid, "load session", err)
			return
		}
		r.send(cid, FormatSession(s.View()))
	case "reset":
		s := session.New(SessionID(cid), r.DefaultCount, r.now())
		err := r.Importer.WithSession(s.ID, func() error {
			return r.Sessions.Put(ctx, s)
		})
		if err != nil {
			r.sendError(cid, "reset session", err)
			return
		}
		r.send(cid, fmt.Sprintf("Cleared. You are back to %d blank terms.", r.DefaultCount))
	case "export":
		r.export(ctx, cid)
	default:
		r.send(cid, "Unknown command. Try /start, /terms, /export or /reset.")
	}
}

func (r *Router) setGuide(ctx context.Context, cid int64, hide bool, reply string) {
	if err := r.Prefs.Set(ctx, prefScope(cid), prefs.HideImportGuide, hide); err != nil {
		r.sendError(cid, "save guide preference", err)
		return
	}
	r.send(cid, reply)
}

func (r *Router) export(ctx context.Context, cid int64) {
	s, err := session.GetOrCreate(ctx, r.Sessions, SessionID(cid), r.DefaultCount, r.now())
	if err != nil {
		r.sendError(cid, "load session", err)
		return
	}
	buf, _, err := export.Workbook(s)
	if err != nil {
		r.sendError(cid, "export workbook", err)
		return
	}
	doc := tgbotapi.NewDocument(cid, tgbotapi.FileBytes{Name: "transcript.xlsx", Bytes: buf.Bytes()})
	doc.Caption = fmt.Sprintf("%d term(s)", len(s.Terms))
	if _, err := r.Bot.Send(doc); err != nil {
		r.logger().Warn("send export", zap.Int64("chat", cid), zap.Error(err))
	}
}

func (r *Router) send(cid int64, text string) tgbotapi.Message {
	m, err := r.Bot.Send(tgbotapi.NewMessage(cid, text))
	if err != nil {
		r.logger().Warn("send message", zap.Int64("chat", cid), zap.Error(err))
	}
	return m
}

func (r *Router) edit(cid int64, msgID int, text string) {
	if msgID == 0 {
		r.send(cid, text)
		return
	}
	// Telegram rejects edits that do not change the text; those errors are expected.
	_, _ = r.Bot.Request(tgbotapi.NewEditMessageText(cid, msgID, text))
}

func (r *Router) sendError(cid int64, op string, err error) {
	r.logger().Error(op, zap.Int64("chat", cid), zap.Error(err))
	r.send(cid, "Something went wrong on our side. Please try again in a moment.")
}
