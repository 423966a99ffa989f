package image

import (
	"bytes"
	"errors"
	"fmt"
	stdimage "image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Supported image extensions (matched case-insensitively).
var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".webp": true, ".bmp": true, ".tiff": true, ".tif": true,
}

// IsImageName reports whether name carries one of the decodable extensions.
func IsImageName(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

// Source is an image waiting to be normalized. Open is called once per
// Normalize and the returned reader is always closed.
type Source interface {
	Name() string
	Open() (io.ReadCloser, error)
}

type fileSource string

// FileSource reads the image at path.
func FileSource(path string) Source { return fileSource(path) }

func (f fileSource) Name() string                 { return filepath.Base(string(f)) }
func (f fileSource) Open() (io.ReadCloser, error) { return os.Open(string(f)) }

type bytesSource struct {
	name string
	data []byte
}

// BytesSource wraps an in-memory upload.
func BytesSource(name string, data []byte) Source { return bytesSource{name: name, data: data} }

func (b bytesSource) Name() string { return b.name }
func (b bytesSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b.data)), nil
}

// DecodeError means the source could not be read or decoded as a raster image.
type DecodeError struct {
	Name string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode image %q: %v", e.Name, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// DefaultMaxPixels bounds the decoded size of one image.
const DefaultMaxPixels = 40_000_000

// ErrTooLarge is wrapped in a DecodeError when an image declares more pixels
// than the normalizer accepts.
var ErrTooLarge = errors.New("image dimensions exceed limit")

// Normalizer upscales small captures and boosts contrast so OCR sees crisp
// dark-on-light text.
type Normalizer struct {
	MinWidth   int
	MinHeight  int
	MaxScale   float64
	Contrast   float64
	Brightness float64
	// MaxPixels caps width×height before and after scaling. Zero selects
	// DefaultMaxPixels.
	MaxPixels int
}

func DefaultNormalizer() Normalizer {
	return Normalizer{
		MinWidth:   1400,
		MinHeight:  900,
		MaxScale:   2.5,
		Contrast:   1.4,
		Brightness: 1.1,
		MaxPixels:  DefaultMaxPixels,
	}
}

func (n Normalizer) maxPixels() int {
	if n.MaxPixels <= 0 {
		return DefaultMaxPixels
	}
	return n.MaxPixels
}

// Normalize decodes src and returns the enhanced grayscale raster.
func (n Normalizer) Normalize(src Source) (*stdimage.Gray, error) {
	rc, err := src.Open()
	if err != nil {
		return nil, &DecodeError{Name: src.Name(), Err: err}
	}
	defer rc.Close()

	// Check the header before allocating the raster; the bytes read for it
	// are replayed into the full decode.
	var head bytes.Buffer
	cfg, _, err := stdimage.DecodeConfig(io.TeeReader(rc, &head))
	if err != nil {
		return nil, &DecodeError{Name: src.Name(), Err: err}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, &DecodeError{Name: src.Name(), Err: fmt.Errorf("empty image %dx%d", cfg.Width, cfg.Height)}
	}
	if limit := n.maxPixels(); cfg.Width > limit/cfg.Height {
		return nil, &DecodeError{Name: src.Name(), Err: fmt.Errorf("%w: %dx%d, limit %d pixels", ErrTooLarge, cfg.Width, cfg.Height, limit)}
	}

	img, _, err := stdimage.Decode(io.MultiReader(&head, rc))
	if err != nil {
		return nil, &DecodeError{Name: src.Name(), Err: err}
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, &DecodeError{Name: src.Name(), Err: fmt.Errorf("empty image %dx%d", b.Dx(), b.Dy())}
	}
	return n.Apply(img), nil
}

// Apply runs the scale, grayscale and tone steps on an already decoded image.
func (n Normalizer) Apply(img stdimage.Image) *stdimage.Gray {
	b := img.Bounds()
	scale := n.Scale(b.Dx(), b.Dy())
	if px := float64(b.Dx()) * float64(b.Dy()); px*scale*scale > float64(n.maxPixels()) {
		scale = math.Max(1, math.Sqrt(float64(n.maxPixels())/px))
	}
	w := int(math.Round(float64(b.Dx()) * scale))
	h := int(math.Round(float64(b.Dy()) * scale))

	scaled := stdimage.NewRGBA(stdimage.Rect(0, 0, w, h))
	if scale == 1 {
		draw.Draw(scaled, scaled.Bounds(), img, b.Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(scaled, scaled.Bounds(), img, b, draw.Src, nil)
	}

	lut := n.toneCurve()
	out := stdimage.NewGray(scaled.Bounds())
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			g := color.GrayModel.Convert(scaled.At(x, y)).(color.Gray)
			out.Pix[y*out.Stride+x] = lut[g.Y]
		}
	}
	return out
}

// Scale returns the resize factor for a w×h image: enough to reach the
// minimum dimensions, never below 1 and never above MaxScale.
func (n Normalizer) Scale(w, h int) float64 {
	if w <= 0 || h <= 0 {
		return 1
	}
	s := math.Max(float64(n.MinWidth)/float64(w), float64(n.MinHeight)/float64(h))
	if s < 1 {
		s = 1
	}
	if n.MaxScale >= 1 && s > n.MaxScale {
		s = n.MaxScale
	}
	return s
}

// toneCurve maps each gray level through contrast around mid-gray and then
// brightness, clamped to [0,255].
func (n Normalizer) toneCurve() [256]uint8 {
	contrast, brightness := n.Contrast, n.Brightness
	if contrast <= 0 {
		contrast = 1
	}
	if brightness <= 0 {
		brightness = 1
	}
	var lut [256]uint8
	for i := range lut {
		v := (float64(i)-128)*contrast + 128
		v *= brightness
		lut[i] = uint8(math.Max(0, math.Min(255, math.Round(v))))
	}
	return lut
}

// EncodePNG serializes img for an OCR engine.
func EncodePNG(img stdimage.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
