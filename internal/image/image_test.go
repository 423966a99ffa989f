package image

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	stdimage "image"
	"image/color"
	"image/png"
	"io"
	"testing"
)

func pngBytes(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := stdimage.NewRGBA(stdimage.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestScale(t *testing.T) {
	n := DefaultNormalizer()
	cases := []struct {
		name string
		w, h int
		want float64
	}{
		{"small width drives scale", 700, 900, 2.0},
		{"small height drives scale", 1400, 600, 1.5},
		{"capped at max", 100, 100, 2.5},
		{"never downscale", 3000, 2000, 1.0},
		{"exact minimum", 1400, 900, 1.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := n.Scale(tc.w, tc.h); got != tc.want {
				t.Fatalf("Scale(%d, %d) = %v, want %v", tc.w, tc.h, got, tc.want)
			}
		})
	}
}

func TestNormalizeUpscalesAndGrays(t *testing.T) {
	n := Normalizer{MinWidth: 40, MinHeight: 20, MaxScale: 2.5, Contrast: 1.4, Brightness: 1.1}
	data := pngBytes(t, 20, 10, color.RGBA{R: 200, G: 30, B: 30, A: 255})

	out, err := n.Normalize(BytesSource("shot.png", data))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if got := out.Bounds(); got.Dx() != 40 || got.Dy() != 20 {
		t.Fatalf("unexpected bounds %v", got)
	}
}

func TestToneCurveClampsAndKeepsOrder(t *testing.T) {
	lut := DefaultNormalizer().toneCurve()
	if lut[0] != 0 {
		t.Fatalf("black should stay black, got %d", lut[0])
	}
	if lut[255] != 255 {
		t.Fatalf("white should clamp to 255, got %d", lut[255])
	}
	for i := 1; i < len(lut); i++ {
		if lut[i] < lut[i-1] {
			t.Fatalf("tone curve not monotonic at %d", i)
		}
	}
}

func TestNormalizeDecodeError(t *testing.T) {
	_, err := DefaultNormalizer().Normalize(BytesSource("notes.txt", []byte("not an image")))
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DecodeError, got %v", err)
	}
	if de.Name != "notes.txt" {
		t.Fatalf("unexpected name %q", de.Name)
	}
}

type trackingSource struct {
	data   []byte
	closed bool
}

func (s *trackingSource) Name() string { return "tracked.png" }
func (s *trackingSource) Open() (io.ReadCloser, error) {
	return &trackingReader{Reader: bytes.NewReader(s.data), src: s}, nil
}

type trackingReader struct {
	*bytes.Reader
	src *trackingSource
}

func (r *trackingReader) Close() error {
	r.src.closed = true
	return nil
}

func TestNormalizeAlwaysCloses(t *testing.T) {
	good := &trackingSource{data: pngBytes(t, 4, 4, color.White)}
	if _, err := DefaultNormalizer().Normalize(good); err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if !good.closed {
		t.Fatal("source not closed after success")
	}

	bad := &trackingSource{data: []byte{0x00, 0x01}}
	if _, err := DefaultNormalizer().Normalize(bad); err == nil {
		t.Fatal("expected decode error")
	}
	if !bad.closed {
		t.Fatal("source not closed after failure")
	}
}

func TestIsImageName(t *testing.T) {
	if !IsImageName("Grades.JPG") || !IsImageName("a.webp") {
		t.Fatal("expected image extensions to match")
	}
	if IsImageName("report.pdf") {
		t.Fatal("pdf is not an image")
	}
}

func TestEncodePNGRoundTrip(t *testing.T) {
	img := stdimage.NewGray(stdimage.Rect(0, 0, 3, 2))
	b, err := EncodePNG(img)
	if err != nil {
		t.Fatalf("EncodePNG() error = %v", err)
	}
	got, err := png.Decode(bytes.NewReader(b))
	if err != nil || got.Bounds() != img.Bounds() {
		t.Fatalf("decode = %v, %v", got, err)
	}
}

// hugePNGHeader is a valid PNG signature and IHDR chunk declaring a
// 30000×30000 image with no pixel data behind it.
func hugePNGHeader() []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	ihdr := []byte{
		0, 0, 0x75, 0x30, // width 30000
		0, 0, 0x75, 0x30, // height 30000
		8, 2, 0, 0, 0,    // 8-bit RGB
	}
	chunk := append([]byte("IHDR"), ihdr...)
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestNormalizeRejectsOversizedHeader(t *testing.T) {
	_, err := DefaultNormalizer().Normalize(BytesSource("huge.png", hugePNGHeader()))
	var de *DecodeError
	if !errors.As(err, &de) || !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected DecodeError wrapping ErrTooLarge, got %v", err)
	}
}

func TestNormalizeMaxPixelsCapsUpscale(t *testing.T) {
	n := Normalizer{MinWidth: 100, MinHeight: 100, MaxScale: 10, Contrast: 1, Brightness: 1, MaxPixels: 400}
	out, err := n.Normalize(BytesSource("small.png", pngBytes(t, 10, 10, color.White)))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if b := out.Bounds(); b.Dx()*b.Dy() > 400 || b.Dx() != 20 {
		t.Fatalf("scaled to %v, want 20x20 under the pixel cap", b)
	}

	n.MaxPixels = 99
	if _, err := n.Normalize(BytesSource("small.png", pngBytes(t, 10, 10, color.White))); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}
