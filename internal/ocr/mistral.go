package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
)

const defaultMistralEndpoint = "https://api.mistral.ai/v1/ocr"

type mistralPage struct {
	Index    int    `json:"index"`    // 0-indexed
	Markdown string `json:"markdown"` // extracted markdown
}

type mistralResponse struct {
	Pages []mistralPage `json:"pages"`
}

// Mistral sends the image inline as a data URL to the Mistral OCR API and
// flattens the returned markdown into plain lines.
type Mistral struct {
	APIKey   string
	Model    string
	Endpoint string
	Client   *http.Client
}

func NewMistral(apiKey, model string) *Mistral {
	if model == "" {
		model = "mistral-ocr-latest"
	}
	return &Mistral{APIKey: strings.TrimSpace(apiKey), Model: model}
}

func (m *Mistral) Name() string { return "mistral" }

func (m *Mistral) Recognize(ctx context.Context, in Input, progress chan<- float64) (Result, error) {
	if m.APIKey == "" {
		return Result{}, fmt.Errorf("missing MISTRAL_API_KEY")
	}
	format := in.Format
	if format == "" {
		format = "image/png"
	}

	body := map[string]any{
		"model": m.Model,
		"document": map[string]any{
			"type":      "image_url",
			"image_url": "data:" + format + ";base64," + base64.StdEncoding.EncodeToString(in.Image),
		},
	}
	b, err := json.Marshal(body)
	if err != nil {
		return Result{}, err
	}

	endpoint := m.Endpoint
	if endpoint == "" {
		endpoint = defaultMistralEndpoint
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Authorization", "Bearer "+m.APIKey)
	req.Header.Set("Content-Type", "application/json")

	client := m.Client
	if client == nil {
		client = http.DefaultClient
	}
	Report(progress, 0.1)
	resp, err := client.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return Result{}, fmt.Errorf("mistral ocr error %d: %s", resp.StatusCode, string(slurp))
	}
	Report(progress, 0.8)

	var parsed mistralResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Result{}, err
	}
	if len(parsed.Pages) == 0 {
		return Result{}, errors.New("no content extracted from image")
	}

	pages := make([]string, 0, len(parsed.Pages))
	for _, p := range parsed.Pages {
		pages = append(pages, flattenMarkdown(p.Markdown))
	}
	Report(progress, 1)
	return Result{InputID: in.ID, Text: combinePages(pages, "\n"), Engine: m.Name()}, nil
}

var (
	tableDivider      = regexp.MustCompile(`^\|?\s*:?-{3,}:?\s*(\|\s*:?-{3,}:?\s*)*\|?$`)
	markdownEmphasis  = regexp.MustCompile(`[*_]{1,3}([^*_]+)[*_]{1,3}`)
	markdownHeading   = regexp.MustCompile(`^#{1,6}\s+`)
	standaloneImgName = regexp.MustCompile(`(?i)^!?\[[^\]]*\]\([^)]*\)$`)
)

// flattenMarkdown turns markdown tables into space separated rows and drops
// decoration so each course ends up on a line of its own.
func flattenMarkdown(md string) string {
	md = strings.ReplaceAll(md, "\r\n", "\n")
	lines := strings.Split(md, "\n")
	out := make([]string, 0, len(lines))
	for _, ln := range lines {
		ln = strings.TrimSpace(ln)
		if ln == "" || ln == "." || tableDivider.MatchString(ln) || standaloneImgName.MatchString(ln) {
			continue
		}
		ln = markdownHeading.ReplaceAllString(ln, "")
		ln = markdownEmphasis.ReplaceAllString(ln, "$1")
		if strings.HasPrefix(ln, "|") || strings.HasSuffix(ln, "|") {
			cells := strings.Split(strings.Trim(ln, "|"), "|")
			kept := cells[:0]
			for _, c := range cells {
				if c = strings.TrimSpace(c); c != "" {
					kept = append(kept, c)
				}
			}
			ln = strings.Join(kept, " ")
		}
		if ln != "" {
			out = append(out, ln)
		}
	}
	return strings.Join(out, "\n")
}

// combinePages joins non-empty pages with sep.
func combinePages(pages []string, sep string) string {
	var b strings.Builder
	first := true
	for _, p := range pages {
		txt := strings.TrimSpace(p)
		if txt == "" {
			continue
		}
		if !first {
			b.WriteString(sep)
		}
		first = false
		b.WriteString(txt)
	}
	return b.String()
}

// Describe produces a user-facing message from an OCR error.
func Describe(err error) string {
	msg := err.Error()

	switch {
	case errors.Is(err, context.DeadlineExceeded) || strings.Contains(msg, "timeout"):
		return "OCR timed out, try again later"
	case errors.Is(err, context.Canceled):
		return "OCR was cancelled"
	case strings.Contains(msg, "401") || strings.Contains(msg, "403"):
		return "OCR provider rejected the credentials"
	case strings.Contains(msg, "network") || strings.Contains(msg, "connection refused"):
		return "Network error, check connectivity"
	}

	if len(msg) > 300 {
		msg = msg[:300] + "..."
	}
	return msg
}
