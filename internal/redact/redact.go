// ABOUTME: Pure redaction functions applied to network traces before they are logged
// ABOUTME: Masks credential headers, emails and long digit runs, and truncates bodies

package redact

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// ShortValueLength is the longest header value that is masked entirely.
	ShortValueLength = 12
	// visibleEdge is how many characters of a long sensitive value stay visible at each end.
	visibleEdge = 4
	// DigitThreshold is the digit count at which a token is treated as an identifier.
	DigitThreshold = 7
	// MaxBodyLength is the longest body preview kept, in runes.
	MaxBodyLength = 4096

	// TruncationMarker is appended to truncated body previews.
	TruncationMarker = "…[truncated]"
	// MaskChar replaces hidden digits.
	MaskChar = '*'

	fullMask  = "********"
	emailMask = "***"
)

// sensitiveHeaders is matched case-insensitively (keys are canonical lower case).
var sensitiveHeaders = map[string]bool{
	"authorization":       true,
	"proxy-authorization": true,
	"cookie":              true,
	"set-cookie":          true,
	"x-new-access-token":  true,
	"x-new-refresh-token": true,
}

// IsSensitiveHeader reports whether values of the named header are always masked.
func IsSensitiveHeader(name string) bool {
	return sensitiveHeaders[strings.ToLower(name)]
}

// Headers returns a flattened copy of h with sensitive values masked and the
// remaining values passed through Text. Multiple values are joined with ", ".
func Headers(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		joined := strings.Join(values, ", ")
		if IsSensitiveHeader(name) {
			out[name] = maskValue(joined)
			continue
		}
		out[name] = Text(joined)
	}
	return out
}

// SortedHeaderNames returns the keys of a redacted header map in stable order.
func SortedHeaderNames(h map[string]string) []string {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// maskValue keeps a short prefix and suffix of long values and hides short ones entirely.
func maskValue(v string) string {
	runes := []rune(v)
	if len(runes) <= ShortValueLength {
		return fullMask
	}
	return string(runes[:visibleEdge]) + "…" + string(runes[len(runes)-visibleEdge:])
}

// Body renders a request or response body for logging. JSON content is pretty
// printed when it parses; undecodable content becomes a placeholder carrying
// its byte length. The result is passed through Text and truncated.
func Body(data []byte, contentType string) string {
	if len(data) == 0 {
		return ""
	}

	var text string
	switch {
	case isBinaryContentType(contentType) || !utf8.Valid(data):
		return fmt.Sprintf("<binary %d bytes>", len(data))
	case isJSONContentType(contentType):
		var buf bytes.Buffer
		if err := json.Indent(&buf, data, "", "  "); err == nil {
			text = buf.String()
		} else {
			text = string(data)
		}
	default:
		text = string(data)
	}

	return truncate(Text(text), MaxBodyLength)
}

func isJSONContentType(ct string) bool {
	ct = strings.ToLower(ct)
	return strings.Contains(ct, "json")
}

func isBinaryContentType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	for _, prefix := range []string{"image/", "audio/", "video/", "application/octet-stream", "application/zip", "application/pdf"} {
		if strings.HasPrefix(ct, prefix) {
			return true
		}
	}
	return false
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + TruncationMarker
}

// Text masks emails and long numeric identifiers token by token. Whitespace
// between tokens is preserved exactly.
func Text(s string) string {
	if s == "" {
		return s
	}

	var out strings.Builder
	out.Grow(len(s))

	start := -1
	for i, r := range s {
		if unicode.IsSpace(r) {
			if start >= 0 {
				out.WriteString(redactToken(s[start:i]))
				start = -1
			}
			out.WriteRune(r)
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out.WriteString(redactToken(s[start:]))
	}
	return out.String()
}

func redactToken(tok string) string {
	if strings.Contains(tok, "@") {
		if masked, ok := maskEmail(tok); ok {
			tok = masked
		}
	}
	if countDigits(tok) >= DigitThreshold {
		tok = maskDigits(tok)
	}
	return tok
}

// maskEmail keeps the first character of the local part and the whole domain:
// "a@b.com" and "alice@b.com" both become "a***@b.com". Leading punctuation
// such as "<" or "(" is preserved.
func maskEmail(tok string) (string, bool) {
	at := strings.Index(tok, "@")

	lead := 0
	for lead < at {
		r, size := utf8.DecodeRuneInString(tok[lead:])
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			break
		}
		lead += size
	}
	if lead >= at {
		return tok, false
	}

	_, firstSize := utf8.DecodeRuneInString(tok[lead:])
	return tok[:lead+firstSize] + emailMask + tok[at:], true
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

// maskDigits keeps the first two and last two digits and masks the rest,
// leaving every non-digit character in place.
func maskDigits(s string) string {
	total := countDigits(s)
	var out strings.Builder
	out.Grow(len(s))

	seen := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			out.WriteRune(r)
			continue
		}
		if seen < 2 || seen >= total-2 {
			out.WriteRune(r)
		} else {
			out.WriteRune(MaskChar)
		}
		seen++
	}
	return out.String()
}
