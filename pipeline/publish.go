package pipeline

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"wooden_dutch/drafts"
	perrors "wooden_dutch/errors"
)

// NoMatchingDrafts is reported when a publish pattern selects nothing.
const NoMatchingDrafts = "No matching drafts found"

// PublishReport tallies a publish-existing-drafts invocation.
type PublishReport struct {
	Matched    int
	Published  int
	Skipped    int
	Failed     int
	Reconciled int
	URLs       map[string]string // filename -> post URL
}

// PublishDrafts publishes every saved draft matching pattern. Drafts already
// published are skipped. A draft the journal shows as published but still
// active is archived with the recorded URL without contacting the CMS. The
// first fatal error aborts the invocation.
func (o *Orchestrator) PublishDrafts(ctx context.Context, pattern string) (*PublishReport, error) {
	entries, err := o.Drafts.Find(pattern)
	if err != nil {
		return &PublishReport{URLs: map[string]string{}}, perrors.NewPersistence("draft listing", err)
	}
	if len(entries) == 0 {
		o.Logger.WithField("pattern", pattern).Info(NoMatchingDrafts)
		fmt.Fprintln(o.Out, NoMatchingDrafts)
	}
	return o.publishEntries(ctx, entries)
}

// PublishDraft publishes the one active draft stored as filename.
func (o *Orchestrator) PublishDraft(ctx context.Context, filename string) (*PublishReport, error) {
	d, err := o.Drafts.Load(filename)
	if err != nil {
		return &PublishReport{URLs: map[string]string{}}, err
	}
	return o.publishEntries(ctx, []drafts.Entry{{Filename: filename, Draft: *d}})
}

func (o *Orchestrator) publishEntries(ctx context.Context, entries []drafts.Entry) (*PublishReport, error) {
	report := &PublishReport{Matched: len(entries), URLs: map[string]string{}}
	for _, e := range entries {
		log := o.Logger.WithFields(logrus.Fields{"file": e.Filename, "draft_id": e.Draft.ID})
		if e.Draft.Status == drafts.StatusPublished {
			report.Skipped++
			log.Info("draft already published, skipping")
			continue
		}

		reconciled, url, err := o.publishDraft(ctx, log, e)
		if err != nil {
			report.Failed++
			return report, err
		}
		report.URLs[e.Filename] = url
		if reconciled {
			report.Reconciled++
		} else {
			report.Published++
		}
		fmt.Fprintf(o.Out, "Published %s -> %s\n", e.Filename, url)
	}
	return report, nil
}

func (o *Orchestrator) publishDraft(ctx context.Context, log *logrus.Entry, e drafts.Entry) (bool, string, error) {
	prior, found, err := o.Drafts.JournalLookup(e.Draft.ID)
	if err != nil {
		log.WithError(err).Warn("could not read publish journal")
	}
	if found {
		log.WithField("url", prior.URL).Warn("draft was published before archiving failed, reconciling")
		if err := o.Drafts.MarkPublished(e.Filename, prior.URL, prior.PublishedAt); err != nil {
			return false, "", perrors.NewPartialPublish(e.Filename, prior.URL, err)
		}
		o.Metrics.IncPublish("reconciled")
		return true, prior.URL, nil
	}

	if err := o.requireCMS(); err != nil {
		return false, "", err
	}
	article := e.Draft.Article
	if img, ok := o.Drafts.CompanionImage(e.Filename); ok {
		url, err := o.CMS.UploadImage(ctx, img, featureImageName)
		if err != nil {
			log.WithError(err).Warn("companion image upload failed, publishing without feature image")
		} else {
			article.FeatureImageURL = url
		}
	}

	post, err := o.CMS.PublishArticle(ctx, article)
	if err != nil {
		o.Metrics.IncPublish("failed")
		return false, "", err
	}
	o.Metrics.IncPublish("ok")
	publishedAt := o.now()

	if err := o.Drafts.AppendJournal(drafts.JournalEntry{
		DraftID:     e.Draft.ID,
		Filename:    e.Filename,
		URL:         post.URL,
		PublishedAt: publishedAt.UTC(),
	}); err != nil {
		log.WithError(err).Warn("publish journal append failed")
	}
	if err := o.Drafts.MarkPublished(e.Filename, post.URL, publishedAt); err != nil {
		return false, post.URL, perrors.NewPartialPublish(e.Filename, post.URL, err)
	}
	log.WithField("url", post.URL).Info("draft published and archived")
	return false, post.URL, nil
}
