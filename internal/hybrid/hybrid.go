package hybrid

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/toricodesthings/transcript-import-service/internal/ocr"
	"github.com/toricodesthings/transcript-import-service/internal/quality"
)

// Engine runs a cheap primary engine first and only pays for the fallback
// when the primary output does not look like a grade report.
type Engine struct {
	Primary  ocr.Engine
	Fallback ocr.Engine
	MinRows  int
	Log      *zap.Logger
}

func New(primary, fallback ocr.Engine, minRows int, log *zap.Logger) *Engine {
	if minRows <= 0 {
		minRows = 2
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{Primary: primary, Fallback: fallback, MinRows: minRows, Log: log}
}

func (e *Engine) Name() string {
	if e.Fallback == nil {
		return e.Primary.Name()
	}
	return fmt.Sprintf("%s+%s", e.Primary.Name(), e.Fallback.Name())
}

func (e *Engine) Recognize(ctx context.Context, in ocr.Input, progress chan<- float64) (ocr.Result, error) {
	if e.Fallback == nil {
		return e.Primary.Recognize(ctx, in, progress)
	}

	res, err := runScaled(ctx, e.Primary, in, progress, 0, 0.5)
	var d quality.Decision
	if err == nil {
		d = quality.Score(res.Text, e.MinRows)
		if !d.NeedsFallback {
			ocr.Report(progress, 1)
			return res, nil
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ocr.Result{}, err
	}

	e.Log.Info("ocr fallback",
		zap.String("input", in.ID),
		zap.String("primary", e.Primary.Name()),
		zap.String("fallback", e.Fallback.Name()),
		zap.Float64("quality", d.Quality),
		zap.Strings("reasons", d.Reasons),
		zap.Error(err),
	)

	fb, fbErr := runScaled(ctx, e.Fallback, in, progress, 0.5, 1)
	switch {
	case fbErr != nil && err != nil:
		return ocr.Result{}, fmt.Errorf("%s: %v; %s: %w", e.Primary.Name(), err, e.Fallback.Name(), fbErr)
	case fbErr != nil:
		// Weak primary output still beats nothing.
		return res, nil
	case err == nil && quality.Score(fb.Text, e.MinRows).Quality < d.Quality:
		return res, nil
	}
	return fb, nil
}

// runScaled runs eng and maps its progress into [lo,hi] of the outer range.
func runScaled(ctx context.Context, eng ocr.Engine, in ocr.Input, progress chan<- float64, lo, hi float64) (ocr.Result, error) {
	inner := make(chan float64, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for v := range inner {
			ocr.Report(progress, lo+v*(hi-lo))
		}
	}()
	res, err := eng.Recognize(ctx, in, inner)
	close(inner)
	<-done
	return res, err
}
