package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/toricodesthings/transcript-import-service/internal/ocr"
)

const systemPrompt = `You transcribe photographs of university grade reports.
Return the text exactly as printed, one visual row per line, top to bottom.
Keep course codes, unit counts, grades, "AY yyyy-yyyy Term n" headers and "Term GPA:" lines verbatim.
Separate table cells with single spaces. Do not add commentary, markdown or code fences.`

type Engine struct {
	APIKey string
	Model  string
}

func New(apiKey, model string) *Engine {
	if strings.TrimSpace(model) == "" {
		model = "gemini-1.5-flash"
	}
	return &Engine{
		APIKey: strings.TrimSpace(apiKey),
		Model:  strings.TrimSpace(model),
	}
}

func (e *Engine) Name() string { return "gemini" }

func (e *Engine) Recognize(ctx context.Context, in ocr.Input, progress chan<- float64) (ocr.Result, error) {
	if e.APIKey == "" {
		return ocr.Result{}, errors.New("GEMINI_API_KEY is empty")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(e.APIKey))
	if err != nil {
		return ocr.Result{}, err
	}
	defer cl.Close()

	m := cl.GenerativeModel(e.Model)
	if m == nil {
		return ocr.Result{}, fmt.Errorf("gemini: model is nil")
	}
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(0),
		ResponseMIMEType: "text/plain",
	}
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}

	format := in.Format
	if format == "" {
		format = "image/png"
	}
	parts := []genai.Part{
		genai.Text("Transcribe this grade report."),
		&genai.Blob{MIMEType: format, Data: in.Image},
	}
	ocr.Report(progress, 0.1)

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		resp, err := m.GenerateContent(ctx, parts...)
		if err != nil {
			lastErr = err
			select {
			case <-ctx.Done():
				return ocr.Result{}, ctx.Err()
			case <-time.After(time.Duration(attempt) * 300 * time.Millisecond):
			}
			ocr.Report(progress, 0.1+0.2*float64(attempt))
			continue
		}
		txt := stripCodeFences(firstText(resp))
		if txt == "" {
			return ocr.Result{}, fmt.Errorf("gemini: empty response")
		}
		ocr.Report(progress, 1)
		return ocr.Result{InputID: in.ID, Text: txt, Engine: e.Name()}, nil
	}
	return ocr.Result{}, lastErr
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```text")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func ptrFloat32(v float32) *float32 { return &v }
