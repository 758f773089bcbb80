package generator

import (
	"bytes"
	"embed"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"wooden_dutch/persona"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

var templates = template.Must(
	template.New("prompts").Option("missingkey=error").ParseFS(promptFS, "prompts/*.tmpl"),
)

// Prompt is the set of messages sent to the LLM.
type Prompt struct {
	System  string
	User    string
	History []Message
}

// Message is a prior turn replayed ahead of User.
type Message struct {
	Role    string
	Content string
}

// Vars are named template variables. Every variable a template references
// must be present.
type Vars map[string]any

// Render executes the named prompt template ("article", "review", ...).
func Render(name string, vars Vars) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name+".tmpl", map[string]any(vars)); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

const (
	editorialTeam  = "the editorial team"
	editorInChief  = "You are the editor-in-chief of The Wooden Dutch, a satirical logistics news publication."
	noHeadlinesYet = "(no current headlines available)"
)

func editorialSystem(voice string) (string, error) {
	return Render("system", Vars{
		"AuthorName":            editorialTeam,
		"AuthorVoice":           voice,
		"StyleRules":            []string(nil),
		"StructuralPreferences": "",
	})
}

func authorSystem(p persona.Persona) (string, error) {
	return Render("system", Vars{
		"AuthorName":            p.Name,
		"AuthorVoice":           p.VoiceDescription,
		"StyleRules":            p.StyleRules,
		"StructuralPreferences": p.StructuralPreferences,
	})
}

func bulletList(items []string, empty string) string {
	if len(items) == 0 {
		return empty
	}
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = "- " + it
	}
	return strings.Join(lines, "\n")
}

// BuildBrainstormPrompt asks for three candidates grounded in current headlines.
func BuildBrainstormPrompt(headlines, usedTopics []string, hint string) (Prompt, error) {
	system, err := editorialSystem("You are a seasoned logistics journalism team brainstorming satirical article topics.")
	if err != nil {
		return Prompt{}, err
	}
	user, err := Render("brainstorm", Vars{
		"Headlines":  bulletList(headlines, noHeadlinesYet),
		"UsedTopics": bulletList(usedTopics, ""),
		"TopicHint":  strings.TrimSpace(hint),
	})
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{System: system, User: user}, nil
}

// BuildSelectPrompt asks the editor to choose among the candidates.
func BuildSelectPrompt(candidates []Topic, usedTopics []string) (Prompt, error) {
	system, err := editorialSystem("You are a seasoned logistics journalism team selecting the most promising satirical topic.")
	if err != nil {
		return Prompt{}, err
	}
	blocks := make([]string, len(candidates))
	for i, c := range candidates {
		blocks[i] = fmt.Sprintf("Candidate %d:\n  Headline: %s\n  Subheadline: %s\n  Angle: %s\n  Tags: %s",
			i, c.Headline, c.Subheadline, c.Angle, strings.Join(c.Tags, ", "))
	}
	user, err := Render("select_topic", Vars{
		"Candidates": strings.Join(blocks, "\n\n"),
		"UsedTopics": bulletList(usedTopics, "(none)"),
	})
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{System: system, User: user}, nil
}

// BuildAssignPrompt asks the editor-in-chief to pick a writer from the roster.
func BuildAssignPrompt(topic Topic, roster, recentAuthors string) (Prompt, error) {
	user, err := Render("assign_author", Vars{
		"Headline":      topic.Headline,
		"Subheadline":   topic.Subheadline,
		"Angle":         topic.Angle,
		"Tags":          strings.Join(topic.Tags, ", "),
		"Roster":        roster,
		"RecentAuthors": recentAuthors,
	})
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{System: editorInChief, User: user}, nil
}

// BuildArticlePrompt asks the persona for a first draft.
func BuildArticlePrompt(topic Topic, p persona.Persona) (Prompt, error) {
	system, err := authorSystem(p)
	if err != nil {
		return Prompt{}, err
	}
	user, err := Render("article", Vars{
		"Headline":    topic.Headline,
		"Subheadline": topic.Subheadline,
		"Angle":       topic.Angle,
	})
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{System: system, User: user}, nil
}

// BuildReviewPrompt asks for a structured verdict on html.
func BuildReviewPrompt(topic Topic, p persona.Persona, html string) (Prompt, error) {
	system, err := authorSystem(p)
	if err != nil {
		return Prompt{}, err
	}
	user, err := Render("review", Vars{
		"Headline":    topic.Headline,
		"Subheadline": topic.Subheadline,
		"AuthorName":  p.Name,
		"AuthorVoice": p.VoiceDescription,
		"ArticleHTML": html,
	})
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{System: system, User: user}, nil
}

// BuildRevisionPrompt asks the persona to address the review.
func BuildRevisionPrompt(topic Topic, p persona.Persona, html string, review Review) (Prompt, error) {
	system, err := authorSystem(p)
	if err != nil {
		return Prompt{}, err
	}
	user, err := Render("revise", Vars{
		"Headline":      topic.Headline,
		"Subheadline":   topic.Subheadline,
		"Angle":         topic.Angle,
		"AuthorName":    p.Name,
		"Score":         strconv.Itoa(review.Score),
		"ToneCorrect":   strconv.FormatBool(review.ToneCorrect),
		"WordCountOk":   strconv.FormatBool(review.WordCountOk),
		"SatireQuality": string(review.SatireQuality),
		"HTMLValid":     strconv.FormatBool(review.HTMLValid),
		"Feedback":      review.Feedback,
		"ArticleHTML":   html,
	})
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{System: system, User: user}, nil
}

// BuildImagePrompt describes the feature image for a story.
func BuildImagePrompt(topic Topic, summary string) (string, error) {
	return Render("image", Vars{
		"Headline": topic.Headline,
		"Angle":    topic.Angle,
		"Summary":  summary,
	})
}
