package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/toricodesthings/transcript-import-service/internal/export"
	"github.com/toricodesthings/transcript-import-service/internal/image"
	"github.com/toricodesthings/transcript-import-service/internal/importer"
	"github.com/toricodesthings/transcript-import-service/internal/prefs"
	"github.com/toricodesthings/transcript-import-service/internal/session"
	"github.com/toricodesthings/transcript-import-service/internal/stats"
	"github.com/toricodesthings/transcript-import-service/internal/types"
)

const (
	ndjsonType   = "application/x-ndjson"
	xlsxType     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	maxSessionID = 128
)

// ---------- Health ----------

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	_, active := s.metrics.get()
	status := "healthy"
	code := http.StatusOK

	ratio := s.cfg.HealthDegradeRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 0.9
	}

	if active >= int64(float64(s.cfg.MaxConcurrentRequests)*ratio) {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":  status,
		"active":  active,
		"version": version,
	})
}

func (s *server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	total, active := s.metrics.get()

	s.metrics.mu.RLock()
	images, failed := s.metrics.imagesTotal, s.metrics.importsFailed
	s.metrics.mu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"activeRequests": active,
		"totalRequests":  total,
		"imagesTotal":    images,
		"imagesFailed":   failed,
		"goroutines":     runtime.NumGoroutine(),
		"memAllocMB":     m.Alloc / (1 << 20),
		"memSysMB":       m.Sys / (1 << 20),
	})
}

// ---------- Sessions ----------

func (s *server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	sess := session.New(uuid.NewString(), s.cfg.DefaultTermCount, now)
	if err := s.app.Sessions.Put(r.Context(), sess); err != nil {
		s.log.Error("create session", zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "store_failed", "Could not create session")
		return
	}
	writeJSON(w, http.StatusCreated, s.view(sess))
}

func (s *server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.view(sess))
}

func (s *server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	err := s.app.Importer.WithSession(id, func() error {
		return s.app.Sessions.Delete(r.Context(), id)
	})
	if err != nil {
		s.writeSessionErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleExport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	buf, filename, err := export.Workbook(sess)
	if err != nil {
		s.log.Error("export workbook", zap.String("session", sess.ID), zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "export_failed", "Could not build spreadsheet")
		return
	}
	w.Header().Set("Content-Type", xlsxType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 100 {
			writeErr(w, http.StatusBadRequest, "validation_failed", "limit must be between 1 and 100")
			return
		}
		limit = n
	}
	entries, err := s.app.History.List(r.Context(), id, limit)
	if err != nil {
		s.log.Error("list history", zap.String("session", id), zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "history_failed", "Could not load import history")
		return
	}
	if entries == nil {
		entries = []types.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessionId": id, "entries": entries})
}

// ---------- Import ----------

type multipartSource struct{ fh *multipart.FileHeader }

func (m multipartSource) Name() string                 { return m.fh.Filename }
func (m multipartSource) Open() (io.ReadCloser, error) { return m.fh.Open() }

func (s *server) handleImport(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	maxFiles := s.cfg.MaxImagesPerImport
	if maxFiles <= 0 {
		maxFiles = 10
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxImageBytes*int64(maxFiles)+(1<<20))
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeErr(w, http.StatusBadRequest, "bad_request", sanitizeError(err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	files := r.MultipartForm.File["images"]
	if err := validateImportFiles(files, maxFiles, s.cfg.MaxImageBytes); err != nil {
		writeErr(w, http.StatusBadRequest, "validation_failed", sanitizeError(err))
		return
	}

	var opt importer.Options
	if v := strings.TrimSpace(r.FormValue("replaceDefaults")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeErr(w, http.StatusBadRequest, "validation_failed", "replaceDefaults must be true or false")
			return
		}
		opt.ReplaceDefaults = &b
	}

	sources := make([]image.Source, len(files))
	for i, fh := range files {
		sources[i] = multipartSource{fh: fh}
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ImportTimeout)
	defer cancel()

	// OCR capacity gating
	if err := s.ocrSem.Acquire(ctx, 1); err != nil {
		writeErr(w, http.StatusServiceUnavailable, "ocr_capacity", "OCR at capacity")
		return
	}
	defer s.ocrSem.Release(1)

	if strings.Contains(r.Header.Get("Accept"), ndjsonType) {
		s.streamImport(ctx, w, id, sources, opt)
		return
	}

	res, err := s.app.Importer.Run(ctx, id, sources, opt, nil)
	if err != nil {
		s.writeSessionErr(w, err)
		return
	}
	s.countImport(res)
	writeJSON(w, http.StatusOK, res)
}

// streamImport writes one JSON event per line as images progress. Headers are
// held back until the first event so a missing session still gets a 404.
func (s *server) streamImport(ctx context.Context, w http.ResponseWriter, id string, sources []image.Source, opt importer.Options) {
	events := make(chan types.ImportEvent, 16)
	var (
		res    types.ImportResult
		runErr error
	)
	go func() {
		defer close(events)
		res, runErr = s.app.Importer.Run(ctx, id, sources, opt, events)
	}()

	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	started := false
	for ev := range events {
		if !started {
			w.Header().Set("Content-Type", ndjsonType)
			w.Header().Set("Cache-Control", "no-cache")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if err := enc.Encode(ev); err != nil {
			// Client went away; keep draining so Run can finish.
			continue
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	if runErr != nil {
		if !started {
			s.writeSessionErr(w, runErr)
			return
		}
		_ = enc.Encode(map[string]any{"type": "error", "error": sanitizeError(runErr)})
		return
	}
	s.countImport(res)
}

func (s *server) countImport(res types.ImportResult) {
	failed := 0
	for _, o := range res.Images {
		if !o.Success {
			failed++
		}
	}
	s.metrics.addImages(len(res.Images), failed)
}

func validateImportFiles(files []*multipart.FileHeader, maxFiles int, maxBytes int64) error {
	if len(files) == 0 {
		return fmt.Errorf("at least one file in the images field is required")
	}
	if len(files) > maxFiles {
		return fmt.Errorf("at most %d images per import", maxFiles)
	}
	for _, fh := range files {
		if maxBytes > 0 && fh.Size > maxBytes {
			return fmt.Errorf("%s exceeds %dMB limit", fh.Filename, maxBytes/(1<<20))
		}
		if !image.IsImageName(fh.Filename) && !strings.HasPrefix(fh.Header.Get("Content-Type"), "image/") {
			return fmt.Errorf("%s is not an image", fh.Filename)
		}
	}
	return nil
}

// ---------- Parse ----------

func (s *server) handleParse(w http.ResponseWriter, r *http.Request) {
	req, err := parseJSON[types.ParseRequest](r, s.cfg.MaxJSONBodyBytes)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "bad_request", sanitizeError(err))
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeErr(w, http.StatusBadRequest, "validation_failed", "text required")
		return
	}

	terms, err := s.app.Parser.Parse(req.Text)
	if err != nil {
		msg := err.Error()
		writeJSON(w, http.StatusUnprocessableEntity, types.ParseResult{
			Success: false,
			Terms:   []types.Term{},
			Code:    importer.CodeOf(err),
			Error:   &msg,
		})
		return
	}
	writeJSON(w, http.StatusOK, types.ParseResult{Success: true, Terms: terms})
}

// ---------- Preferences ----------

type preferenceUpdate struct {
	Value *bool `json:"value"`
}

func (s *server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	scope, ok := prefScope(r)
	if !ok {
		writeErr(w, http.StatusBadRequest, "invalid_scope", "scope must be global, chat:<id> or user:<id>")
		return
	}
	flags, err := s.app.Prefs.All(r.Context(), scope)
	if err != nil {
		s.log.Error("load preferences", zap.String("scope", scope), zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "prefs_failed", "Could not load preferences")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"scope": scope, "flags": flags})
}

func (s *server) handleSetPreference(w http.ResponseWriter, r *http.Request) {
	req, err := parseJSON[preferenceUpdate](r, s.cfg.MaxJSONBodyBytes)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "bad_request", sanitizeError(err))
		return
	}
	if req.Value == nil {
		writeErr(w, http.StatusBadRequest, "validation_failed", "value required")
		return
	}

	scope, ok := prefScope(r)
	if !ok {
		writeErr(w, http.StatusBadRequest, "invalid_scope", "scope must be global, chat:<id> or user:<id>")
		return
	}
	key := r.PathValue("key")
	if err := s.app.Prefs.Set(r.Context(), scope, key, *req.Value); err != nil {
		if errors.Is(err, prefs.ErrUnknownFlag) {
			writeErr(w, http.StatusNotFound, "unknown_flag", "Unknown preference "+sanitizeLogString(key))
			return
		}
		s.log.Error("save preference", zap.String("scope", scope), zap.String("key", key), zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "prefs_failed", "Could not save preference")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"scope": scope, "key": key, "value": *req.Value})
}

// prefScope returns the requested scope, "global" when absent.
func prefScope(r *http.Request) (string, bool) {
	v := strings.TrimSpace(r.URL.Query().Get("scope"))
	if v == "" {
		return "global", true
	}
	return v, prefs.ValidScope(v)
}

// ---------- Helpers ----------

func (s *server) view(sess session.Session) types.SessionView {
	v := sess.View()
	v.SuggestedTitle = stats.CurrentTermTitle(s.now())
	return v
}

func (s *server) loadSession(w http.ResponseWriter, r *http.Request) (session.Session, bool) {
	id, ok := sessionID(w, r)
	if !ok {
		return session.Session{}, false
	}
	sess, err := s.app.Sessions.Get(r.Context(), id)
	if err != nil {
		s.writeSessionErr(w, err)
		return session.Session{}, false
	}
	return sess, true
}

func (s *server) writeSessionErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeErr(w, http.StatusNotFound, "not_found", "Session not found")
	case errors.Is(err, context.DeadlineExceeded):
		writeErr(w, http.StatusGatewayTimeout, "timeout", "Import timed out")
	case errors.Is(err, context.Canceled):
		writeErr(w, http.StatusServiceUnavailable, "canceled", "Request canceled")
	default:
		s.log.Error("session store", zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "store_failed", "Session storage unavailable")
	}
}

func sessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" || len(id) > maxSessionID {
		writeErr(w, http.StatusBadRequest, "validation_failed", "invalid session id")
		return "", false
	}
	return id, true
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	msg = strings.ReplaceAll(msg, os.TempDir(), "[tmp]")
	if len(msg) > 300 {
		msg = msg[:300] + "..."
	}
	return msg
}

func sanitizeLogString(s string) string {
	s = strings.ReplaceAll(s, "\n", "")
	s = strings.ReplaceAll(s, "\r", "")
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

func parseJSON[T any](r *http.Request, limit int64) (T, error) {
	var out T
	dec := json.NewDecoder(io.LimitReader(r.Body, limit))
	dec.DisallowUnknownFields()

	if err := dec.Decode(&out); err != nil {
		return out, err
	}

	// Ensure there's nothing else after the first JSON value
	if err := dec.Decode(new(any)); err != io.EOF {
		if err == nil {
			return out, fmt.Errorf("unexpected trailing data")
		}
		return out, err
	}

	return out, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   message,
		"code":    code,
	})
}
