package pipeline

import (
	"time"

	"wooden_dutch/generator"
	"wooden_dutch/persona"
)

// Mode is the terminal behaviour of a run.
type Mode string

const (
	ModePublish  Mode = "publish"
	ModeDryRun   Mode = "dry-run"
	ModeSaveOnly Mode = "save-only"
)

// Options are the per-run switches from the command line.
type Options struct {
	DryRun    bool
	SaveOnly  bool
	TopicHint string
}

// Mode resolves the options in priority order: save-only, dry-run, publish.
func (o Options) Mode() Mode {
	switch {
	case o.SaveOnly:
		return ModeSaveOnly
	case o.DryRun:
		return ModeDryRun
	default:
		return ModePublish
	}
}

// RunState is the working memory of one pipeline run. It is never shared
// between runs.
type RunState struct {
	RunID     string
	Options   Options
	StartedAt time.Time

	UsedTopics    []string
	RecentAuthors []string
	Headlines     []string
	Candidates    []generator.Topic

	Topic         generator.Topic
	Selection     generator.TopicSelection
	Persona       persona.Persona
	Assignment    generator.AuthorAssignment
	Review        generator.Review
	RevisionCount int
	Article       generator.Article

	Image    []byte
	ImageRef string // hosted URL or staged path, empty when there is no image
}

// Result summarises a finished run.
type Result struct {
	RunID         string
	Mode          Mode
	Topic         generator.Topic
	Author        persona.Persona
	Article       generator.Article
	Review        generator.Review
	RevisionCount int
	Headlines     int
	ImageBytes    int
	DraftFile     string
	PostURL       string
	Duration      time.Duration
}

func (s *RunState) result(mode Mode, now time.Time) *Result {
	return &Result{
		RunID:         s.RunID,
		Mode:          mode,
		Topic:         s.Topic,
		Author:        s.Persona,
		Article:       s.Article,
		Review:        s.Review,
		RevisionCount: s.RevisionCount,
		Headlines:     len(s.Headlines),
		ImageBytes:    len(s.Image),
		Duration:      now.Sub(s.StartedAt),
	}
}
