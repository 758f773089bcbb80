package generator

import (
	"fmt"
	"strings"
)

// Topic is a brainstormed story idea. Immutable once selected.
type Topic struct {
	Headline    string   `json:"headline"`
	Subheadline string   `json:"subheadline"`
	Angle       string   `json:"angle"`
	Tags        []string `json:"tags"`
}

// SatireQuality grades the satirical elements of a draft.
type SatireQuality string

const (
	SatireWeak      SatireQuality = "weak"
	SatireGood      SatireQuality = "good"
	SatireExcellent SatireQuality = "excellent"
)

// Review is the editorial verdict on one draft body.
type Review struct {
	Score         int           `json:"score"`
	ToneCorrect   bool          `json:"toneCorrect"`
	WordCountOk   bool          `json:"wordCountOk"`
	SatireQuality SatireQuality `json:"satireQuality"`
	HTMLValid     bool          `json:"htmlValid"`
	Feedback      string        `json:"feedback"`
}

// Article is the publishable form of a story.
type Article struct {
	Title           string   `json:"title"`
	HTML            string   `json:"html"`
	MetaTitle       string   `json:"metaTitle"`
	MetaDescription string   `json:"metaDescription"`
	Tags            []string `json:"tags"`
	AuthorName      string   `json:"authorName"`
	AuthorSlug      string   `json:"authorSlug"`
	FeatureImageURL string   `json:"featureImageUrl,omitempty"`
}

// TopicCandidates is the brainstorm output.
type TopicCandidates struct {
	Candidates []Topic `json:"candidates"`
}

// TopicSelection is the editor's pick among the candidates.
type TopicSelection struct {
	SelectedIndex int    `json:"selectedIndex"`
	Reasoning     string `json:"reasoning"`
}

// AuthorAssignment names the persona who will write the piece.
type AuthorAssignment struct {
	AuthorID  string `json:"authorId"`
	Reasoning string `json:"reasoning"`
}

func (t Topic) validate() error {
	if strings.TrimSpace(t.Headline) == "" {
		return fmt.Errorf("headline is empty")
	}
	if strings.TrimSpace(t.Angle) == "" {
		return fmt.Errorf("angle is empty")
	}
	return nil
}

func (c *TopicCandidates) validate() error {
	if len(c.Candidates) != CandidateCount {
		return fmt.Errorf("expected %d candidates, got %d", CandidateCount, len(c.Candidates))
	}
	for i, t := range c.Candidates {
		if err := t.validate(); err != nil {
			return fmt.Errorf("candidate %d: %w", i, err)
		}
	}
	return nil
}

func (s *TopicSelection) validate() error {
	if s.SelectedIndex < 0 || s.SelectedIndex >= CandidateCount {
		return fmt.Errorf("invalid selection index: %d", s.SelectedIndex)
	}
	return nil
}

func (a *AuthorAssignment) validate() error {
	if strings.TrimSpace(a.AuthorID) == "" {
		return fmt.Errorf("authorId is empty")
	}
	return nil
}

func (r *Review) validate() error {
	if r.Score < 1 || r.Score > 10 {
		return fmt.Errorf("score %d outside 1-10", r.Score)
	}
	switch r.SatireQuality {
	case SatireWeak, SatireGood, SatireExcellent:
	default:
		return fmt.Errorf("satireQuality %q is not one of weak, good, excellent", r.SatireQuality)
	}
	return nil
}
