package ocr

import (
	"context"
	"errors"
	"fmt"
)

// Options carries recognition knobs. Engines ignore the ones they have no
// equivalent for.
type Options struct {
	Languages               []string
	PSM                     int // tesseract page segmentation mode
	DPI                     int
	PreserveInterwordSpaces bool
	Whitelist               string
}

// DefaultOptions treats a grade report as one uniform block of text and only
// admits the characters that appear in course rows and headers.
func DefaultOptions() Options {
	return Options{
		Languages:               []string{"eng"},
		PSM:                     6,
		DPI:                     300,
		PreserveInterwordSpaces: true,
		Whitelist:               "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789.,:/() -",
	}
}

// Input is one normalized image submitted for recognition.
type Input struct {
	ID      string
	Image   []byte
	Format  string // MIME type, e.g. image/png
	Options Options
}

type Result struct {
	InputID string
	Text    string
	Engine  string
}

// Engine turns an image into raw text. Implementations may send fractions in
// [0,1] on progress while they run and must stop sending before returning.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, in Input, progress chan<- float64) (Result, error)
}

// EngineError wraps any failure raised by an engine.
type EngineError struct {
	Engine string
	Err    error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("ocr engine %s: %v", e.Engine, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

// Report sends v on progress without blocking; a slow reader just misses
// intermediate values.
func Report(progress chan<- float64, v float64) {
	if progress == nil {
		return
	}
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	select {
	case progress <- v:
	default:
	}
}

// Recognition is one running engine call.
type Recognition struct {
	progress chan float64
	done     chan struct{}
	res      Result
	err      error
}

// Start runs e on in in the background. Progress is closed once the engine
// has returned; Wait blocks for the outcome.
func Start(ctx context.Context, e Engine, in Input) *Recognition {
	r := &Recognition{
		progress: make(chan float64, 16),
		done:     make(chan struct{}),
	}
	go func() {
		defer close(r.done)
		defer close(r.progress)
		res, err := e.Recognize(ctx, in, r.progress)
		if err != nil {
			var ee *EngineError
			if !errors.As(err, &ee) {
				err = &EngineError{Engine: e.Name(), Err: err}
			}
			r.err = err
			return
		}
		if res.Engine == "" {
			res.Engine = e.Name()
		}
		if res.InputID == "" {
			res.InputID = in.ID
		}
		r.res = res
	}()
	return r
}

func (r *Recognition) Progress() <-chan float64 { return r.progress }

func (r *Recognition) Wait() (Result, error) {
	<-r.done
	return r.res, r.err
}
