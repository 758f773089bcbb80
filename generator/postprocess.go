package generator

import (
	"regexp"
	"strings"
	"unicode/utf8"

	perrors "wooden_dutch/errors"
)

// MetaDescriptionLimit caps the angle-derived meta description, in characters.
const MetaDescriptionLimit = 155

// paragraphMarker is the minimum evidence that a body is HTML.
const paragraphMarker = "<p>"

var (
	leadingFence  = regexp.MustCompile("(?i)^```html?\\n?")
	trailingFence = regexp.MustCompile("(?i)\\n?```$")
)

// checkBody rejects article bodies without a paragraph marker. The service
// returned prose, markdown or a refusal instead of HTML.
func checkBody(stage, body string) error {
	if strings.TrimSpace(body) == "" {
		return perrors.NewContractViolation(stage, "model returned an empty article body")
	}
	if !strings.Contains(body, paragraphMarker) {
		return perrors.NewContractViolation(stage, "response does not appear to contain HTML")
	}
	return nil
}

// CleanHTML strips code fences the model may have wrapped the body in and
// drops anything before the first tag.
func CleanHTML(raw string) string {
	html := leadingFence.ReplaceAllString(raw, "")
	html = trailingFence.ReplaceAllString(html, "")
	html = strings.TrimSpace(html)
	if i := strings.IndexByte(html, '<'); i > 0 {
		html = html[i:]
	}
	return html
}

// MetaDescription prefers the subheadline, falling back to the first
// MetaDescriptionLimit characters of the angle.
func MetaDescription(t Topic) string {
	if t.Subheadline != "" {
		return t.Subheadline
	}
	return truncate(t.Angle, MetaDescriptionLimit)
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}

// WordCount counts words in the visible text of an HTML body.
func WordCount(html string) int {
	text := tagPattern.ReplaceAllString(html, " ")
	return len(strings.Fields(text))
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)
