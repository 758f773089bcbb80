package persona

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	perrors "wooden_dutch/errors"
)

//go:embed personas.yaml
var defaultRoster []byte

// Persona is a fictional staff writer with a distinct voice.
type Persona struct {
	ID                    string   `yaml:"id" json:"id"`
	Name                  string   `yaml:"name" json:"name"`
	Title                 string   `yaml:"title" json:"title"`
	Slug                  string   `yaml:"slug" json:"slug"`
	Bio                   string   `yaml:"bio" json:"bio"`
	VoiceDescription      string   `yaml:"voice_description" json:"voiceDescription"`
	StyleRules            []string `yaml:"style_rules" json:"styleRules"`
	StructuralPreferences string   `yaml:"structural_preferences" json:"structuralPreferences"`
	TopicAffinities       []string `yaml:"topic_affinities" json:"topicAffinities"`
}

// Registry is the read-only set of personas, in roster order.
type Registry struct {
	personas []Persona
	byID     map[string]int
}

// Default returns the embedded newsroom roster.
func Default() *Registry {
	r, err := Parse(defaultRoster)
	if err != nil {
		panic(fmt.Sprintf("persona: embedded roster is invalid: %v", err))
	}
	return r
}

// Parse builds a registry from a YAML list of personas. IDs must be unique
// and non-empty.
func Parse(data []byte) (*Registry, error) {
	var list []Persona
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, perrors.NewConfig(fmt.Sprintf("parse persona roster: %v", err))
	}
	if len(list) == 0 {
		return nil, perrors.NewConfig("persona roster is empty")
	}
	r := &Registry{personas: list, byID: make(map[string]int, len(list))}
	for i, p := range list {
		if p.ID == "" || p.Name == "" {
			return nil, perrors.NewConfig(fmt.Sprintf("persona #%d is missing id or name", i+1))
		}
		if _, dup := r.byID[p.ID]; dup {
			return nil, perrors.NewConfig(fmt.Sprintf("duplicate persona id %q", p.ID))
		}
		if r.personas[i].Slug == "" {
			r.personas[i].Slug = p.ID
		}
		r.byID[p.ID] = i
	}
	return r, nil
}

// All returns a copy of the roster.
func (r *Registry) All() []Persona {
	out := make([]Persona, len(r.personas))
	copy(out, r.personas)
	return out
}

// IDs returns persona ids in roster order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.personas))
	for i, p := range r.personas {
		ids[i] = p.ID
	}
	return ids
}

// Lookup returns the persona with id, if any.
func (r *Registry) Lookup(id string) (Persona, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Persona{}, false
	}
	return r.personas[i], true
}

// Get resolves id or fails with a contract violation.
func (r *Registry) Get(id string) (Persona, error) {
	p, ok := r.Lookup(id)
	if !ok {
		return Persona{}, perrors.NewContractViolation("AuthorAssignment", fmt.Sprintf("unknown author ID: %s", id))
	}
	return p, nil
}

// RenderRecent renders recently used author ids as a readable exclusion
// list. Known ids show the persona name; unknown ids are kept verbatim.
func (r *Registry) RenderRecent(recent []string) string {
	if len(recent) == 0 {
		return "(none yet)"
	}
	lines := make([]string, 0, len(recent))
	for _, id := range recent {
		if p, ok := r.Lookup(id); ok {
			lines = append(lines, fmt.Sprintf("- %s (%s)", p.Name, p.ID))
		} else {
			lines = append(lines, "- "+id)
		}
	}
	return strings.Join(lines, "\n")
}

// Roster renders the personas for the assignment prompt.
func (r *Registry) Roster() string {
	var sb strings.Builder
	for i, p := range r.personas {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "ID: %s\nName: %s, %s\nBio: %s\nTopic affinities: %s",
			p.ID, p.Name, p.Title, p.Bio, strings.Join(p.TopicAffinities, ", "))
	}
	return sb.String()
}
