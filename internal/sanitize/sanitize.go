// Package sanitize recovers a JSON document from the free-text reply of a
// language model.
package sanitize

import (
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"
)

const (
	jsonFence = "```json"
	fence     = "```"
)

var (
	// ErrInvalidUTF8 is reported for replies that are not UTF-8. They are
	// still cleaned; encoding/json replaces the bad bytes when decoding.
	ErrInvalidUTF8 = errors.New("reply is not valid UTF-8")
	// ErrEmpty is the fallback reason for replies with nothing left to parse
	ErrEmpty = errors.New("reply is empty after sanitizing")
)

// Result is the outcome of sanitizing a model reply. Reason is set when the
// reply needed special handling. FellBack is set when nothing usable was
// left, in which case Text is empty.
type Result struct {
	Text     string
	FellBack bool
	Reason   error
}

// Clean returns the sanitized text of a reply
func Clean(text string) string {
	return Sanitize(text).Text
}

// Sanitize strips markdown fences and surrounding prose from a reply and
// puts the JSON on a single line.
func Sanitize(text string) Result {
	var reason error
	if !utf8.ValidString(text) {
		reason = ErrInvalidUTF8
		slog.Warn("Sanitizing reply with invalid UTF-8", "length", len(text))
	}

	body := stripFences(text)
	body = strings.TrimSpace(body)
	if span, ok := objectSpan(body); ok {
		body = span
	}
	body = collapseLines(body)

	if body == "" {
		slog.Warn("Reply is empty after sanitizing", "length", len(text))
		return Result{FellBack: true, Reason: ErrEmpty}
	}
	return Result{Text: body, Reason: reason}
}

// stripFences keeps what follows the first opening fence and precedes the
// last closing one. Unbalanced fences keep whatever is available.
func stripFences(text string) string {
	if _, after, ok := strings.Cut(text, jsonFence); ok {
		text = after
	} else if _, after, ok := strings.Cut(text, fence); ok {
		text = after
	}
	if i := strings.LastIndex(text, fence); i >= 0 {
		text = text[:i]
	}
	return text
}

// objectSpan finds the outermost balanced {...} span, skipping braces inside
// string literals.
func objectSpan(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// collapseLines drops line breaks between tokens and escapes raw control
// characters inside string literals, so the result is a single line.
func collapseLines(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
				// a backslash followed by a raw break is already half an escape
				if c == '\n' {
					c = 'n'
				} else if c == '\r' {
					c = 'r'
				}
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			case c == '\n':
				b.WriteString(`\n`)
				continue
			case c == '\r':
				b.WriteString(`\r`)
				continue
			case c == '\t':
				b.WriteString(`\t`)
				continue
			}
			b.WriteByte(c)
			continue
		}
		switch c {
		case '\n', '\r':
			continue
		case '"':
			inString = true
		}
		b.WriteByte(c)
	}
	return b.String()
}
