package logger

import "testing"

func TestNew(t *testing.T) {
	for _, format := range []string{"json", "console", ""} {
		log, err := New("debug", format)
		if err != nil {
			t.Fatalf("New(debug, %q) error = %v", format, err)
		}
		if !log.Core().Enabled(-1) {
			t.Fatalf("format %q: debug level not enabled", format)
		}
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New("chatty", "json"); err == nil {
		t.Fatal("expected invalid level error")
	}
}
