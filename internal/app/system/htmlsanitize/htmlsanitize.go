// Package htmlsanitize cleans user-supplied HTML before it is stored or
// sent. Email bodies from POST /api/email pass through Sanitize;
// announcement text passes through StripTags.
package htmlsanitize

import (
	"html"
	"html/template"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	richPolicy   = newRichPolicy()
	strictPolicy = bluemonday.StrictPolicy()
)

func newRichPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements("u", "s", "mark")
	p.AllowAttrs("class").OnElements("table", "tr", "td", "th", "p", "span", "div")
	p.AllowAttrs("style").OnElements("table", "tr", "td", "th")
	p.AllowStyles("width", "text-align", "color", "background-color", "padding", "border").
		OnElements("table", "tr", "td", "th")
	return p
}

// Sanitize removes scripts, event handlers, unsafe URLs and any element
// outside a formatting-and-tables allowlist.
func Sanitize(s string) string {
	if s == "" {
		return ""
	}
	return richPolicy.Sanitize(s)
}

// SanitizeToHTML is Sanitize returning template.HTML for direct use in
// html/template (email templates).
func SanitizeToHTML(s string) template.HTML {
	return template.HTML(Sanitize(s))
}

// StripTags removes all markup, leaving escaped text.
func StripTags(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(s)))
}

var tagRe = regexp.MustCompile(`<[^>]+>`)

// IsPlainText reports whether s contains no HTML tags.
func IsPlainText(s string) bool {
	return !tagRe.MatchString(s)
}

// PlainTextToHTML escapes s and converts newlines to <br>.
func PlainTextToHTML(s string) string {
	if s == "" {
		return ""
	}
	escaped := html.EscapeString(s)
	return "<p>" + strings.ReplaceAll(escaped, "\n", "<br>") + "</p>"
}

// PrepareForDisplay renders plain text as paragraphs and sanitizes HTML.
func PrepareForDisplay(s string) template.HTML {
	if s == "" {
		return ""
	}
	if IsPlainText(s) {
		return template.HTML(PlainTextToHTML(s))
	}
	return SanitizeToHTML(s)
}
