package server

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"wooden_dutch/drafts"
)

var md = goldmark.New(goldmark.WithExtensions(extension.Strikethrough))

// renderMarkdown converts markdown to HTML. Raw HTML in the input is not
// passed through.
func renderMarkdown(src string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(src))
	}
	return template.HTML(buf.String())
}

// deskNote is the editor's card for a draft, as markdown.
func deskNote(d drafts.Draft) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s** for *%s*\n\n", d.Article.AuthorName, d.Topic.Headline)
	if d.Topic.Subheadline != "" {
		fmt.Fprintf(&b, "> %s\n\n", d.Topic.Subheadline)
	}
	if d.Topic.Angle != "" {
		b.WriteString(d.Topic.Angle + "\n\n")
	}
	if len(d.Article.Tags) > 0 {
		tags := make([]string, len(d.Article.Tags))
		for i, t := range d.Article.Tags {
			tags[i] = "`" + t + "`"
		}
		b.WriteString("Tags: " + strings.Join(tags, " ") + "\n")
	}
	return b.String()
}
