package ipp

import "testing"

func TestDetectFormatPassesThroughExplicitFormat(t *testing.T) {
	got := DetectFormat("application/pdf", []byte("whatever"), nil, "")
	if got != "application/pdf" {
		t.Errorf("got %q, want %q", got, "application/pdf")
	}
}

func TestDetectFormatSniffsKnownMagic(t *testing.T) {
	cases := map[string]string{
		"%PDF-1.7 ...":    "application/pdf",
		"%!PS-Adobe-3.0":  "application/postscript",
		"\x89PNGrest...":  "image/png",
		"RaS2PwgRaster..": "image/pwg-raster",
		"UNIRASTdata....": "image/urf",
	}
	for peek, want := range cases {
		got := DetectFormat("", []byte(peek), nil, "")
		if got != want {
			t.Errorf("DetectFormat(%q) = %q, want %q", peek, got, want)
		}
	}
}

func TestDetectFormatJPEGMagic(t *testing.T) {
	peek := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10}
	if got := DetectFormat("", peek, nil, ""); got != "image/jpeg" {
		t.Errorf("got %q, want image/jpeg", got)
	}
}

func TestDetectFormatFallsBackToCallbackThenDriverNative(t *testing.T) {
	peek := []byte("not a known magic")
	if got := DetectFormat("application/octet-stream", peek, func(b []byte) string { return "text/plain" }, "application/vnd.driver"); got != "text/plain" {
		t.Errorf("expected mime callback result, got %q", got)
	}
	if got := DetectFormat("", peek, nil, "application/vnd.driver"); got != "application/vnd.driver" {
		t.Errorf("expected driver-native fallback, got %q", got)
	}
}
