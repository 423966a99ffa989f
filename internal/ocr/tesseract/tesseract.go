package tesseract

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/toricodesthings/transcript-import-service/internal/ocr"
)

// Engine runs recognition through a local Tesseract install via gosseract.
// Each call gets its own client; gosseract clients are not safe for
// concurrent use.
type Engine struct {
	clientFactory func() *gosseract.Client
}

func New() *Engine {
	return &Engine{clientFactory: gosseract.NewClient}
}

func (e *Engine) Name() string { return "tesseract" }

func (e *Engine) Recognize(ctx context.Context, in ocr.Input, progress chan<- float64) (ocr.Result, error) {
	if err := ctx.Err(); err != nil {
		return ocr.Result{}, err
	}
	c := e.clientFactory()
	defer c.Close()

	if err := c.SetImageFromBytes(in.Image); err != nil {
		return ocr.Result{}, fmt.Errorf("set image: %w", err)
	}
	for k, v := range variables(in.Options) {
		if err := c.SetVariable(gosseract.SettableVariable(k), v); err != nil {
			return ocr.Result{}, fmt.Errorf("set variable %s: %w", k, err)
		}
	}
	if len(in.Options.Languages) > 0 {
		if err := c.SetLanguage(in.Options.Languages...); err != nil {
			return ocr.Result{}, fmt.Errorf("set languages: %w", err)
		}
	}
	if in.Options.PSM > 0 {
		if err := c.SetPageSegMode(gosseract.PageSegMode(in.Options.PSM)); err != nil {
			return ocr.Result{}, fmt.Errorf("set psm: %w", err)
		}
	}
	ocr.Report(progress, 0.2)

	text, err := c.Text()
	if err != nil {
		return ocr.Result{}, fmt.Errorf("recognize text: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return ocr.Result{}, err
	}
	ocr.Report(progress, 1)

	return ocr.Result{
		InputID: in.ID,
		Text:    strings.TrimSpace(text),
		Engine:  e.Name(),
	}, nil
}

// variables maps Options onto tesseract config variables.
func variables(o ocr.Options) map[string]string {
	vars := make(map[string]string)
	if o.DPI > 0 {
		vars["user_defined_dpi"] = strconv.Itoa(o.DPI)
	}
	if o.PreserveInterwordSpaces {
		vars["preserve_interword_spaces"] = "1"
	}
	if o.Whitelist != "" {
		vars["tessedit_char_whitelist"] = o.Whitelist
	}
	return vars
}
