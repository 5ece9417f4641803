// Package idutil collects the small, shared "utilities" component of
// spec.md §2 (5% of the budget): stable UUID derivation, filename
// sanitization for spooled documents, and IPP attribute copy helpers.
//
// Sanitization follows the style of the teacher's util.sanitizeString
// (strip control characters, collapse to a safe character set) adapted from
// SNMP octet-string cleanup to filesystem-safe job names.
package idutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// DecodeOctetString converts raw SNMP/USB octet-string bytes into a
// human-friendly string: UTF-8 if valid, else a best-effort single-byte
// (ISO-8859-1-style) mapping, with control characters stripped. Grounded on
// the teacher's util.DecodeOctetString.
func DecodeOctetString(b []byte) string {
	if b == nil {
		return ""
	}
	if utf8.Valid(b) {
		return sanitizeOctetString(string(b))
	}
	runes := make([]rune, 0, len(b))
	for _, by := range b {
		runes = append(runes, rune(by))
	}
	return sanitizeOctetString(string(runes))
}

func sanitizeOctetString(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' {
			b.WriteRune(r)
			continue
		}
		if r < 0x20 {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// DeriveSystemUUID derives a stable (non-random) UUID for the system from
// its advertised host and port, per spec.md §4.4.
func DeriveSystemUUID(host string, port int) string {
	return deriveUUID(fmt.Sprintf("_PAPPL_SYSTEM_:%s:%d", host, port))
}

// DerivePrinterUUID derives a stable UUID for a printer from host, port, and
// printer name, per spec.md §4.4.
func DerivePrinterUUID(host string, port int, name string) string {
	return deriveUUID(fmt.Sprintf("_PAPPL_PRINTER_:%s:%d:%s", host, port, name))
}

// DeriveJobUUID returns a fresh job UUID (spec.md §4.4). Unlike the system
// and printer UUIDs, a job's identity doesn't need to survive a restart in
// reproducible form, so this uses google/uuid's random v4 generator rather
// than the SHA-256 derivation the stable identities use.
func DeriveJobUUID(host string, port int, printer string, jobID int) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return "urn:uuid:" + id.String(), nil
}

// deriveUUID hashes seed with SHA-256 and formats the first 16 bytes as a
// UUID URN in the v4 layout (version/variant bits forced, even though the
// value is deterministic rather than random) so the result is a valid UUID
// string per spec.md §4.4.
func deriveUUID(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	var b [16]byte
	copy(b[:], sum[:16])
	b[6] = (b[6] & 0x0f) | 0x40 // version 4
	b[8] = (b[8] & 0x3f) | 0x80 // variant 10xx

	h := hex.EncodeToString(b[:])
	return fmt.Sprintf("urn:uuid:%s-%s-%s-%s-%s", h[0:8], h[8:12], h[12:16], h[16:20], h[20:32])
}

// SanitizeJobName produces a filesystem-safe job name for use in spooled
// filenames: lowercase alphanumerics and '-' pass through; any other run of
// characters collapses to a single '_'. Mirrors spec.md §4.3's ingestion
// naming rule.
func SanitizeJobName(name string) string {
	if name == "" {
		return "untitled"
	}
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(name) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "_")
	if out == "" {
		return "untitled"
	}
	return out
}

// SpoolFilename builds the "p<printer-id:5>j<job-id:9>-<name>.<ext>" spool
// file name from spec.md §4.3.
func SpoolFilename(printerID, jobID int, name, ext string) string {
	return fmt.Sprintf("p%05dj%09d-%s.%s", printerID, jobID, SanitizeJobName(name), ext)
}

// URISafeName lowercases and replaces whitespace with '-' for use in a
// printer's resource path ("/ipp/print/<name>"), without the aggressive
// collapsing SanitizeJobName performs (spaces become single dashes, other
// punctuation is preserved) since resource names are less constrained than
// filenames.
func URISafeName(name string) string {
	var b strings.Builder
	lastDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if r == ' ' || r == '\t' || r == '\n' {
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
			continue
		}
		b.WriteRune(r)
		lastDash = false
	}
	return b.String()
}

// CopyAttributes returns a shallow copy of an attribute map, used wherever
// the IPP engine needs to snapshot a job/printer's attribute set without
// holding its lock during response assembly.
func CopyAttributes(src map[string]interface{}) map[string]interface{} {
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
