package importer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/toricodesthings/transcript-import-service/internal/history"
	"github.com/toricodesthings/transcript-import-service/internal/image"
	"github.com/toricodesthings/transcript-import-service/internal/ocr"
	"github.com/toricodesthings/transcript-import-service/internal/session"
	"github.com/toricodesthings/transcript-import-service/internal/stats"
	"github.com/toricodesthings/transcript-import-service/internal/transcript"
	"github.com/toricodesthings/transcript-import-service/internal/types"
)

// Error codes reported per image.
const (
	CodeImageDecode = "image_decode"
	CodeOCRFailed   = "ocr_failed"
	CodeNoSections  = "no_sections"
	CodeNoCourses   = "no_courses"
	CodeStore       = "store_failed"
)

// Pipeline stages reported in progress events.
const (
	StageNormalize = "normalize"
	StageOCR       = "ocr"
	StageParse     = "parse"
	StageMerge     = "merge"
)

// Options tunes one batch.
type Options struct {
	ReplaceDefaults *bool
}

// Importer runs uploaded grade-report images through normalization, OCR,
// parsing and merging into a stored session.
type Importer struct {
	Normalizer image.Normalizer
	Engine     ocr.Engine
	OCROptions ocr.Options
	Parser     *transcript.Parser
	Merger     session.Merger
	Store      session.Store
	History    history.Recorder
	Log        *zap.Logger
	Now        func() time.Time

	locks keyedMutex
}

func (im *Importer) now() time.Time {
	if im.Now != nil {
		return im.Now()
	}
	return time.Now().UTC()
}

func (im *Importer) logger() *zap.Logger {
	if im.Log == nil {
		return zap.NewNop()
	}
	return im.Log
}

// Run processes images strictly one at a time in the given order. Each image
// merges into the session stored by the previous one, and batches for the same
// session never interleave. Per-image failures are reported in the result;
// the returned error is reserved for session lookup failures and ctx
// cancellation before any image ran.
//
// events, when non-nil, receives progress and outcome events followed by a
// final "done" event. Run does not close it.
func (im *Importer) Run(ctx context.Context, sessionID string, images []image.Source, opt Options, events chan<- types.ImportEvent) (types.ImportResult, error) {
	unlock := im.locks.Lock(sessionID)
	defer unlock()

	s, err := im.Store.Get(ctx, sessionID)
	if err != nil {
		return types.ImportResult{}, err
	}

	res := types.ImportResult{Images: make([]types.ImageOutcome, 0, len(images))}
	for i, src := range images {
		if err := ctx.Err(); err != nil {
			if i == 0 {
				return types.ImportResult{}, err
			}
			break
		}
		var out types.ImageOutcome
		s, out = im.processOne(ctx, s, i, src, opt, events)
		res.Images = append(res.Images, out)
		res.TermsImported += out.TermsImported
		if out.Success {
			res.Success = true
		}
		emit(ctx, events, types.ImportEvent{Type: "outcome", Index: i, Name: src.Name(), Outcome: &res.Images[len(res.Images)-1]})
	}

	view := s.View()
	view.SuggestedTitle = stats.CurrentTermTitle(im.now())
	res.Session = view
	emit(ctx, events, types.ImportEvent{Type: "done", Index: len(images), Result: &res})
	return res, nil
}

// WithSession runs fn while holding the session's import lock, so writes made
// outside the pipeline (delete, reset) never race a running batch.
func (im *Importer) WithSession(sessionID string, fn func() error) error {
	unlock := im.locks.Lock(sessionID)
	defer unlock()
	return fn()
}

func (im *Importer) processOne(ctx context.Context, s session.Session, idx int, src image.Source, opt Options, events chan<- types.ImportEvent) (session.Session, types.ImageOutcome) {
	name := src.Name()
	out := types.ImageOutcome{Index: idx, Name: name}
	entry := types.HistoryEntry{SessionID: s.ID, ImageName: name, Engine: im.Engine.Name(), Status: history.StatusFailed}
	log := im.logger().With(zap.String("session", s.ID), zap.Int("index", idx), zap.String("image", name))

	progress := func(stage string, p float64) {
		emit(ctx, events, types.ImportEvent{Type: "progress", Index: idx, Name: name, Stage: stage, Progress: p})
	}
	finish := func(err error, code string) (session.Session, types.ImageOutcome) {
		if err != nil {
			msg := err.Error()
			out.Error = &msg
			out.Code = code
			out.Message = failureMessage(name, code, err)
			entry.Code = code
			log.Warn("image import failed", zap.String("code", code), zap.Error(err))
		}
		im.record(ctx, entry)
		return s, out
	}

	progress(StageNormalize, 0)
	data, err := readAll(src)
	if err != nil {
		return finish(&image.DecodeError{Name: name, Err: err}, CodeImageDecode)
	}
	sum := sha256.Sum256(data)
	entry.ImageSHA256 = hex.EncodeToString(sum[:])

	gray, err := im.Normalizer.Normalize(image.BytesSource(name, data))
	if err != nil {
		return finish(err, CodeImageDecode)
	}
	payload, err := image.EncodePNG(gray)
	if err != nil {
		return finish(&image.DecodeError{Name: name, Err: err}, CodeImageDecode)
	}

	progress(StageOCR, 0)
	rec := ocr.Start(ctx, im.Engine, ocr.Input{
		ID:      fmt.Sprintf("%s#%d", s.ID, idx),
		Image:   payload,
		Format:  "image/png",
		Options: im.OCROptions,
	})
	for p := range rec.Progress() {
		progress(StageOCR, p)
	}
	result, err := rec.Wait()
	if err != nil {
		return finish(err, CodeOCRFailed)
	}
	entry.Engine = result.Engine
	entry.RawText = result.Text

	progress(StageParse, 0)
	terms, err := im.Parser.Parse(result.Text)
	if err != nil {
		code := CodeNoCourses
		if errors.Is(err, transcript.ErrNoSectionsDetected) {
			code = CodeNoSections
		}
		return finish(err, code)
	}

	progress(StageMerge, 0)
	merged := im.Merger.Merge(s, terms, session.MergeOptions{ReplaceDefaults: opt.ReplaceDefaults, Now: im.now()})
	if err := im.Store.Put(ctx, merged); err != nil {
		return finish(fmt.Errorf("store session: %w", err), CodeStore)
	}
	s = merged

	out.Success = true
	out.TermsImported = len(terms)
	out.Message = fmt.Sprintf("Imported %d term(s) from %s.", len(terms), name)
	entry.Status = history.StatusImported
	entry.TermsImported = len(terms)
	log.Info("image imported", zap.Int("terms", len(terms)), zap.String("engine", result.Engine))
	return finish(nil, "")
}

func (im *Importer) record(ctx context.Context, e types.HistoryEntry) {
	if im.History == nil {
		return
	}
	e.CreatedAt = im.now()
	if err := im.History.Record(ctx, e); err != nil {
		im.logger().Warn("record import history", zap.String("session", e.SessionID), zap.Error(err))
	}
}

func readAll(src image.Source) ([]byte, error) {
	rc, err := src.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func failureMessage(name, code string, err error) string {
	switch code {
	case CodeImageDecode:
		return fmt.Sprintf("Could not read %s as an image.", name)
	case CodeOCRFailed:
		return fmt.Sprintf("Text recognition failed for %s: %s", name, ocr.Describe(err))
	case CodeNoSections:
		return fmt.Sprintf("No terms found in %s. Make sure each term ends with its \"Term GPA:\" line.", name)
	case CodeNoCourses:
		return fmt.Sprintf("Terms were found in %s but no course rows could be read.", name)
	}
	return fmt.Sprintf("Could not import %s.", name)
}

// CodeOf maps a pipeline error onto its reported code.
func CodeOf(err error) string {
	var de *image.DecodeError
	var ee *ocr.EngineError
	switch {
	case errors.As(err, &de):
		return CodeImageDecode
	case errors.As(err, &ee):
		return CodeOCRFailed
	case errors.Is(err, transcript.ErrNoSectionsDetected):
		return CodeNoSections
	case errors.Is(err, transcript.ErrNoCoursesParsed):
		return CodeNoCourses
	}
	return ""
}

func emit(ctx context.Context, events chan<- types.ImportEvent, ev types.ImportEvent) {
	if events == nil {
		return
	}
	select {
	case events <- ev:
	case <-ctx.Done():
	}
}
