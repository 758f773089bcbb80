package generator

import (
	"context"
	"fmt"
	"time"

	"wooden_dutch/persona"
)

// Turn records one step of the drafting loop.
type Turn struct {
	Kind      string // "write", "review" or "revise"
	HTML      string
	Review    *Review
	CreatedAt time.Time
}

// Session holds the drafting context for one topic and author.
// RevisionCount never exceeds MaxRevisions.
type Session struct {
	Topic         Topic
	Persona       persona.Persona
	HTML          string
	LastReview    *Review
	RevisionCount int
	MaxRevisions  int
	History       []Turn

	agent *Agent
}

// NewSession creates a session with no draft yet.
func NewSession(agent *Agent, topic Topic, p persona.Persona, maxRevisions int) *Session {
	return &Session{
		Topic:        topic,
		Persona:      p,
		MaxRevisions: maxRevisions,
		agent:        agent,
	}
}

// Propose writes the first draft.
func (s *Session) Propose(ctx context.Context) (string, error) {
	html, err := s.agent.Write(ctx, s.Topic, s.Persona)
	if err != nil {
		return "", err
	}
	s.HTML = html
	s.appendTurn("write", html, nil)
	return html, nil
}

// Assess reviews the current draft.
func (s *Session) Assess(ctx context.Context) (Review, error) {
	if s.HTML == "" {
		return Review{}, fmt.Errorf("assess called before a draft was written")
	}
	r, err := s.agent.Review(ctx, s.Topic, s.Persona, s.HTML)
	if err != nil {
		return Review{}, err
	}
	s.LastReview = &r
	s.appendTurn("review", "", &r)
	return r, nil
}

// Revise rewrites the draft against the last review.
func (s *Session) Revise(ctx context.Context) (string, error) {
	if s.LastReview == nil {
		return "", fmt.Errorf("revise called before a review")
	}
	if s.RevisionCount >= s.MaxRevisions {
		return "", fmt.Errorf("revision cap of %d reached", s.MaxRevisions)
	}
	html, err := s.agent.Revise(ctx, s.Topic, s.Persona, s.HTML, *s.LastReview, s.transcript()...)
	if err != nil {
		return "", err
	}
	s.HTML = html
	s.RevisionCount++
	s.appendTurn("revise", html, nil)
	return html, nil
}

// transcript replays the earlier drafts and reviews as chat turns. The
// current draft and its review are left out; the revise prompt carries them.
func (s *Session) transcript() []Message {
	if len(s.History) <= 2 {
		return nil
	}
	var msgs []Message
	for _, t := range s.History[:len(s.History)-2] {
		switch {
		case t.Review != nil:
			msgs = append(msgs, Message{
				Role:    "user",
				Content: fmt.Sprintf("Editor review: %d/10, satire %s.\n%s", t.Review.Score, t.Review.SatireQuality, t.Review.Feedback),
			})
		case t.HTML != "":
			msgs = append(msgs, Message{Role: "assistant", Content: t.HTML})
		}
	}
	return msgs
}

func (s *Session) appendTurn(kind, html string, review *Review) {
	s.History = append(s.History, Turn{
		Kind:      kind,
		HTML:      html,
		Review:    review,
		CreatedAt: time.Now(),
	})
}
