package util

import "fmt"

// DefaultLogMaxLen caps provider response bodies echoed into logs and errors.
const DefaultLogMaxLen = 512

// TruncateLog shortens s to maxLen bytes and notes the original size.
func TruncateLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + fmt.Sprintf("... [truncated, %d bytes total]", len(s))
}

// TruncateBytes is TruncateLog for a response body with DefaultLogMaxLen.
func TruncateBytes(b []byte) string {
	return TruncateLog(string(b), DefaultLogMaxLen)
}

// MaskToken keeps the last few characters of a secret so log lines can be
// correlated without leaking it.
func MaskToken(t string) string {
	if len(t) < 20 {
		return "***"
	}
	return "..." + t[len(t)-8:]
}
