package ipp

import "bytes"

// DetectFormat implements spec.md §4.2's document-format auto-typing: when
// document-format is absent or application/octet-stream, peek the first
// bytes and match known magic numbers.
func DetectFormat(supplied string, peek []byte, mimeCallback func([]byte) string, driverNative string) string {
	if supplied != "" && supplied != "application/octet-stream" {
		return supplied
	}

	switch {
	case bytes.HasPrefix(peek, []byte("%PDF")):
		return "application/pdf"
	case bytes.HasPrefix(peek, []byte("%!")):
		return "application/postscript"
	case len(peek) >= 4 && peek[0] == 0xFF && peek[1] == 0xD8 && peek[2] == 0xFF && peek[3] >= 0xE0 && peek[3] <= 0xEF:
		return "image/jpeg"
	case bytes.HasPrefix(peek, []byte("\x89PNG")):
		return "image/png"
	case bytes.HasPrefix(peek, []byte("RaS2PwgR")):
		return "image/pwg-raster"
	case bytes.HasPrefix(peek, []byte("UNIRAST")):
		return "image/urf"
	}

	if mimeCallback != nil {
		if t := mimeCallback(peek); t != "" {
			return t
		}
	}
	return driverNative
}
