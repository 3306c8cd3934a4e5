// ABOUTME: Renders the network log as Markdown or HTML for sharing in bug reports
// ABOUTME: HTML is produced by converting the Markdown rendering with goldmark

package netlog

import (
	"bytes"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/2389/coven-client/internal/redact"
)

// ExportMarkdown renders the current entries, newest first.
func (s *Store) ExportMarkdown() string {
	return RenderMarkdown(s.Entries())
}

// ExportHTML renders the current entries as a standalone HTML document.
func (s *Store) ExportHTML() (string, error) {
	return RenderHTML(s.Entries())
}

// RenderMarkdown renders entries newest first. Entries are expected to be
// redacted already; nothing here unmasks or re-masks values.
func RenderMarkdown(entries []Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Network log\n\n%d entries\n", len(entries))

	for i := len(entries) - 1; i >= 0; i-- {
		writeEntry(&b, entries[i])
	}
	return b.String()
}

func writeEntry(b *strings.Builder, e Entry) {
	fmt.Fprintf(b, "\n## %s %s\n\n", e.Method, e.Path)
	fmt.Fprintf(b, "- Time: %s\n", e.Timestamp.UTC().Format(time.RFC3339))
	fmt.Fprintf(b, "- URL: `%s`\n", e.FullURL)
	if e.StatusCode != nil {
		fmt.Fprintf(b, "- Status: %d\n", *e.StatusCode)
	}
	if e.DurationMs != nil {
		fmt.Fprintf(b, "- Duration: %d ms\n", *e.DurationMs)
	}
	if e.ErrorDescription != nil {
		fmt.Fprintf(b, "- Error: %s\n", *e.ErrorDescription)
	}

	writeHeaders(b, "Request headers", e.RequestHeaders)
	writeBody(b, "Request body", e.RequestBodyPreview)
	writeHeaders(b, "Response headers", e.ResponseHeaders)
	writeBody(b, "Response body", e.ResponseBodyPreview)
}

func writeHeaders(b *strings.Builder, title string, h map[string]string) {
	if len(h) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n\n", title)
	for _, name := range redact.SortedHeaderNames(h) {
		fmt.Fprintf(b, "- `%s`: `%s`\n", name, h[name])
	}
}

func writeBody(b *strings.Builder, title string, body *string) {
	if body == nil || *body == "" {
		return
	}
	fence := codeFence(*body)
	fmt.Fprintf(b, "\n%s:\n\n%s\n%s\n%s\n", title, fence, *body, fence)
}

// codeFence returns a backtick fence longer than any backtick run in s.
func codeFence(s string) string {
	longest, run := 0, 0
	for _, r := range s {
		if r == '`' {
			run++
			if run > longest {
				longest = run
			}
			continue
		}
		run = 0
	}
	n := 3
	if longest >= n {
		n = longest + 1
	}
	return strings.Repeat("`", n)
}

// RenderHTML converts the Markdown rendering into a minimal HTML page.
func RenderHTML(entries []Entry) (string, error) {
	var body bytes.Buffer
	if err := goldmark.Convert([]byte(RenderMarkdown(entries)), &body); err != nil {
		return "", fmt.Errorf("rendering network log: %w", err)
	}

	var page strings.Builder
	page.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&page, "<title>%s</title>\n", html.EscapeString("Network log"))
	page.WriteString("</head>\n<body>\n")
	page.Write(body.Bytes())
	page.WriteString("</body>\n</html>\n")
	return page.String(), nil
}
