package pipeline

import (
	"wooden_dutch/generator"
	"wooden_dutch/persona"
)

// FormatArticle maps the selected topic, its author and the approved body
// into the publishable article. It is pure and idempotent on clean HTML.
func FormatArticle(topic generator.Topic, p persona.Persona, rawHTML string) generator.Article {
	tags := make([]string, len(topic.Tags))
	copy(tags, topic.Tags)
	return generator.Article{
		Title:           topic.Headline,
		HTML:            generator.CleanHTML(rawHTML),
		MetaTitle:       topic.Headline,
		MetaDescription: generator.MetaDescription(topic),
		Tags:            tags,
		AuthorName:      p.Name,
		AuthorSlug:      p.Slug,
	}
}
