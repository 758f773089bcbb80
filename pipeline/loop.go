package pipeline

import (
	"context"

	"github.com/sirupsen/logrus"

	"wooden_dutch/generator"
)

const (
	// MaxRevisions caps revise passes per article.
	MaxRevisions = 2
	// ApprovalScore is the lowest review score accepted without revision.
	ApprovalScore = 7
)

// LoopState is a state of the drafting and review loop.
type LoopState int

const (
	LoopWrite LoopState = iota
	LoopReview
	LoopRevise
	LoopDone
)

func (s LoopState) String() string {
	switch s {
	case LoopWrite:
		return "write"
	case LoopReview:
		return "review"
	case LoopRevise:
		return "revise"
	case LoopDone:
		return "done"
	default:
		return "unknown"
	}
}

// NextLoopState is the transition function of the drafting loop. review is
// only consulted when leaving LoopReview.
func NextLoopState(state LoopState, review generator.Review, revisionCount int) LoopState {
	switch state {
	case LoopWrite, LoopRevise:
		return LoopReview
	case LoopReview:
		if review.Score >= ApprovalScore || revisionCount >= MaxRevisions {
			return LoopDone
		}
		return LoopRevise
	default:
		return LoopDone
	}
}

// draft drives sess through the loop until it reaches LoopDone.
func (o *Orchestrator) draft(ctx context.Context, log logrus.FieldLogger, sess *generator.Session) error {
	state := LoopWrite
	for state != LoopDone {
		slog := log.WithField("stage", state.String())
		switch state {
		case LoopWrite:
			html, err := sess.Propose(ctx)
			if err != nil {
				return err
			}
			slog.WithField("words", generator.WordCount(html)).Info("draft written")
		case LoopReview:
			r, err := sess.Assess(ctx)
			if err != nil {
				return err
			}
			o.Metrics.ObserveReview(r.Score)
			slog.WithFields(logrus.Fields{
				"score":          r.Score,
				"satire_quality": r.SatireQuality,
				"revision":       sess.RevisionCount,
			}).Info("draft reviewed")
		case LoopRevise:
			html, err := sess.Revise(ctx)
			if err != nil {
				return err
			}
			slog.WithFields(logrus.Fields{
				"revision": sess.RevisionCount,
				"words":    generator.WordCount(html),
			}).Info("draft revised")
		}

		var last generator.Review
		if sess.LastReview != nil {
			last = *sess.LastReview
		}
		state = NextLoopState(state, last, sess.RevisionCount)
	}

	o.Metrics.ObserveRevisions(sess.RevisionCount)
	if sess.LastReview != nil && sess.LastReview.Score < ApprovalScore {
		log.WithFields(logrus.Fields{
			"score":     sess.LastReview.Score,
			"revisions": sess.RevisionCount,
		}).Warn("max revisions reached, accepting current version")
	}
	return nil
}
