// Package markup prepares post text for Telegram MarkdownV2 rendering.
// It escapes structural characters while preserving inline formatting the
// operator typed (bold, italic, links, spoilers) and provides the spoiler
// wrapping used during post composition.
package markup

import (
	"errors"
	"regexp"
	"strings"
)

// ErrFragmentNotFound is returned by WrapFragment when the requested
// fragment does not occur in the text.
var ErrFragmentNotFound = errors.New("fragment not found in text")

// basicEscapeChars are the MarkdownV2 control characters escaped outside
// recognized spans. Formatting characters (*, _, ~, backtick, brackets)
// are intentionally left alone so operator-typed markup survives.
const basicEscapeChars = "{}#+-.!():"

var (
	// linkSpanRe matches an inline link. The URL part tolerates
	// already-escaped parentheses so a second escaping pass re-recognizes
	// the same span.
	linkSpanRe = regexp.MustCompile(`\[([^\]]+)\]\(((?:\\[()]|[^)\\])+)\)`)
	// spoilerSpanRe matches an existing spoiler span.
	spoilerSpanRe = regexp.MustCompile(`\|\|(.+?)\|\|`)
)

// EscapeMarkdownV2 escapes MarkdownV2 control characters in preserve-markup
// mode. Link and spoiler spans are located first: their inner text is
// escaped but their delimiters are left intact. The transform is
// idempotent — characters already escaped by a previous pass are not
// escaped again.
func EscapeMarkdownV2(text string) string {
	text = linkSpanRe.ReplaceAllStringFunc(text, func(span string) string {
		sub := linkSpanRe.FindStringSubmatch(span)
		return "[" + escapeBasic(sub[1]) + "](" + escapeURLParens(sub[2]) + ")"
	})
	text = spoilerSpanRe.ReplaceAllStringFunc(text, func(span string) string {
		inner := span[2 : len(span)-2]
		return "||" + escapeBasic(inner) + "||"
	})
	return escapeOutsideSpans(text)
}

// escapeOutsideSpans runs escapeBasic over every segment of the text that
// is not part of a link or spoiler span, copying the spans through
// verbatim. The spans were already escaped internally by the caller.
func escapeOutsideSpans(text string) string {
	spans := findSpans(text)
	if len(spans) == 0 {
		return escapeBasic(text)
	}

	var b strings.Builder
	b.Grow(len(text) + len(text)/4)
	last := 0
	for _, s := range spans {
		b.WriteString(escapeBasic(text[last:s[0]]))
		b.WriteString(text[s[0]:s[1]])
		last = s[1]
	}
	b.WriteString(escapeBasic(text[last:]))
	return b.String()
}

// findSpans returns the [start, end) byte ranges of all link and spoiler
// spans, sorted and non-overlapping (earlier span wins on overlap).
func findSpans(text string) [][2]int {
	var spans [][2]int
	for _, loc := range linkSpanRe.FindAllStringIndex(text, -1) {
		spans = append(spans, [2]int{loc[0], loc[1]})
	}
	for _, loc := range spoilerSpanRe.FindAllStringIndex(text, -1) {
		spans = append(spans, [2]int{loc[0], loc[1]})
	}
	// Insertion sort keeps this simple for the handful of spans a post has.
	for i := 1; i < len(spans); i++ {
		for j := i; j > 0 && spans[j][0] < spans[j-1][0]; j-- {
			spans[j], spans[j-1] = spans[j-1], spans[j]
		}
	}
	merged := spans[:0]
	end := -1
	for _, s := range spans {
		if s[0] < end {
			continue // overlaps a span that started earlier
		}
		merged = append(merged, s)
		end = s[1]
	}
	return merged
}

// escapeBasic escapes the basicEscapeChars set. A character preceded by a
// backslash is treated as already escaped and copied verbatim, which makes
// repeated application a no-op.
func escapeBasic(s string) string {
	var b strings.Builder
	b.Grow(len(s) + len(s)/4)
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '\\' && i+1 < len(runes) &&
			(strings.ContainsRune(basicEscapeChars, runes[i+1]) || runes[i+1] == '\\') {
			b.WriteRune(r)
			b.WriteRune(runes[i+1])
			i++
			continue
		}
		if strings.ContainsRune(basicEscapeChars, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// escapeURLParens escapes bare parentheses inside a link URL, leaving
// already-escaped ones alone.
func escapeURLParens(url string) string {
	var b strings.Builder
	b.Grow(len(url) + 4)
	for i := 0; i < len(url); i++ {
		c := url[i]
		if c == '\\' && i+1 < len(url) && (url[i+1] == '(' || url[i+1] == ')') {
			b.WriteByte(c)
			b.WriteByte(url[i+1])
			i++
			continue
		}
		if c == '(' || c == ')' {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	return b.String()
}

// WrapSpoiler hides the entire text behind a spoiler. Wrapping
// already-wrapped text is a no-op.
func WrapSpoiler(text string) string {
	if strings.HasPrefix(text, "||") && strings.HasSuffix(text, "||") && len(text) >= 4 {
		return text
	}
	return "||" + text + "||"
}

// WrapFragment hides the first literal occurrence of fragment behind a
// spoiler. The presence check ignores spoiler delimiters already in the
// text so the operator can match what they originally typed. Returns
// ErrFragmentNotFound if the fragment does not occur.
func WrapFragment(text, fragment string) (string, error) {
	if fragment == "" {
		return text, ErrFragmentNotFound
	}
	cleaned := strings.ReplaceAll(text, "||", "")
	if !strings.Contains(cleaned, fragment) {
		return text, ErrFragmentNotFound
	}
	return strings.Replace(text, fragment, "||"+fragment+"||", 1), nil
}
