package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"wooden_dutch/drafts"
	perrors "wooden_dutch/errors"
	"wooden_dutch/generator"
	"wooden_dutch/history"
	"wooden_dutch/imagegen"
	"wooden_dutch/metrics"
	"wooden_dutch/persona"
	"wooden_dutch/publisher"
)

// CMS is the publishing backend.
type CMS interface {
	TestConnection(ctx context.Context) (*publisher.Site, error)
	PublishArticle(ctx context.Context, article generator.Article) (*publisher.Post, error)
	UploadImage(ctx context.Context, data []byte, filename string) (string, error)
}

// Researcher collects advisory headlines. It never fails.
type Researcher interface {
	Fetch(ctx context.Context) []string
}

// Deps are the collaborators an Orchestrator is built from.
type Deps struct {
	Agent    *generator.Agent // required by Run only
	Personas *persona.Registry
	Research Researcher // optional
	Topics   *history.Queue
	Authors  *history.Queue
	Drafts   *drafts.Store
	Images   imagegen.Generator // nil disables the image stage
	CMS      CMS                // required for publish mode only
	Metrics  *metrics.Metrics
	Logger   logrus.FieldLogger
	Out      io.Writer // dry-run previews and reports
}

// Orchestrator sequences one editorial run: research, topic, author,
// drafting loop, formatting, image and publication.
type Orchestrator struct {
	Deps

	// InterRunDelay separates batch runs.
	InterRunDelay time.Duration

	now func() time.Time
}

func New(d Deps) (*Orchestrator, error) {
	switch {
	case d.Personas == nil:
		return nil, errors.New("persona registry required")
	case d.Topics == nil || d.Authors == nil:
		return nil, errors.New("history queues required")
	case d.Drafts == nil:
		return nil, errors.New("draft store required")
	}
	if d.Logger == nil {
		d.Logger = logrus.StandardLogger()
	}
	if d.Out == nil {
		d.Out = io.Discard
	}
	return &Orchestrator{
		Deps:          d,
		InterRunDelay: 5 * time.Second,
		now:           time.Now,
	}, nil
}

// WithClock overrides the time source.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

func (o *Orchestrator) requireCMS() error {
	if o.CMS == nil {
		return perrors.NewConfig("ghost is not configured; set GHOST_URL and GHOST_ADMIN_API_KEY")
	}
	return nil
}

// Run executes one pipeline run. Any error is fatal to the run.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Result, error) {
	st := &RunState{
		RunID:     ulid.Make().String(),
		Options:   opts,
		StartedAt: o.now(),
	}
	mode := opts.Mode()
	log := o.Logger.WithFields(logrus.Fields{"run_id": st.RunID, "mode": string(mode)})
	log.Info("pipeline start")

	res, err := o.run(ctx, log, st, mode)
	elapsed := o.now().Sub(st.StartedAt)
	if err != nil {
		o.Metrics.ObserveRun(string(mode), "failed", elapsed.Seconds())
		log.WithError(err).Error("pipeline failed")
		return nil, err
	}
	o.Metrics.ObserveRun(string(mode), "ok", elapsed.Seconds())
	log.WithField("duration", elapsed.Round(time.Millisecond).String()).Info("pipeline complete")
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, log *logrus.Entry, st *RunState, mode Mode) (*Result, error) {
	if o.Agent == nil {
		return nil, perrors.NewConfig("no language model configured")
	}
	if mode == ModePublish {
		if err := o.requireCMS(); err != nil {
			return nil, err
		}
	}

	o.loadHistory(log, st)

	if o.Research != nil {
		st.Headlines = o.Research.Fetch(ctx)
		log.WithFields(logrus.Fields{"stage": "research", "headlines": len(st.Headlines)}).Info("research headlines collected")
	}

	if err := o.pickTopic(ctx, log, st); err != nil {
		return nil, err
	}
	if err := o.pickAuthor(ctx, log, st); err != nil {
		return nil, err
	}

	sess := generator.NewSession(o.Agent, st.Topic, st.Persona, MaxRevisions)
	if err := o.draft(ctx, log, sess); err != nil {
		return nil, err
	}
	if sess.LastReview != nil {
		st.Review = *sess.LastReview
	}
	st.RevisionCount = sess.RevisionCount

	st.Article = FormatArticle(st.Topic, st.Persona, sess.HTML)
	log.WithFields(logrus.Fields{"stage": "format", "chars": len(st.Article.HTML)}).Info("article formatted")

	o.illustrate(ctx, log, st, mode)

	res := st.result(mode, o.now())
	if err := o.publish(ctx, log, st, mode, res); err != nil {
		return nil, err
	}
	res.Article = st.Article
	res.Duration = o.now().Sub(st.StartedAt)
	return res, nil
}

// loadHistory reads both queues. Read failures count as empty history.
func (o *Orchestrator) loadHistory(log *logrus.Entry, st *RunState) {
	var err error
	if st.UsedTopics, err = o.Topics.Items(); err != nil {
		log.WithError(err).Warn("could not read topic history, treating as empty")
	}
	if st.RecentAuthors, err = o.Authors.Items(); err != nil {
		log.WithError(err).Warn("could not read author history, treating as empty")
	}
}

func (o *Orchestrator) pickTopic(ctx context.Context, log *logrus.Entry, st *RunState) error {
	slog := log.WithField("stage", "brainstorm")
	if st.Options.TopicHint != "" {
		slog = slog.WithField("topic_hint", st.Options.TopicHint)
	}
	candidates, err := o.Agent.Brainstorm(ctx, st.Headlines, st.UsedTopics, st.Options.TopicHint)
	if err != nil {
		return err
	}
	st.Candidates = candidates
	for i, c := range candidates {
		slog.WithField("index", i).Debug(c.Headline)
	}
	slog.WithField("candidates", len(candidates)).Info("topics brainstormed")

	topic, sel, err := o.Agent.SelectTopic(ctx, candidates, st.UsedTopics)
	if err != nil {
		return err
	}
	st.Topic, st.Selection = topic, sel
	if err := o.Topics.Append(topic.Headline); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"stage":    "select",
		"index":    sel.SelectedIndex,
		"headline": topic.Headline,
	}).Info("topic selected")
	return nil
}

func (o *Orchestrator) pickAuthor(ctx context.Context, log *logrus.Entry, st *RunState) error {
	p, asg, err := o.Agent.AssignAuthor(ctx, st.Topic, o.Personas, st.RecentAuthors)
	if err != nil {
		return err
	}
	st.Persona, st.Assignment = p, asg
	log.WithFields(logrus.Fields{
		"stage":  "assign",
		"author": p.ID,
		"reason": asg.Reasoning,
	}).Info("author assigned")
	return nil
}

// publish is the terminal stage. Exactly one branch runs, chosen by mode.
func (o *Orchestrator) publish(ctx context.Context, log *logrus.Entry, st *RunState, mode Mode, res *Result) error {
	log = log.WithField("stage", "publish")
	switch mode {
	case ModeSaveOnly:
		filename, err := o.Drafts.Save(st.Topic, st.Article, st.Image)
		if err != nil {
			return err
		}
		res.DraftFile = filename
		log.WithField("file", filename).Info("draft saved")
		return nil

	case ModeDryRun:
		o.preview(st)
		return nil
	}

	if st.ImageRef != "" {
		st.Article.FeatureImageURL = st.ImageRef
	}
	post, err := o.CMS.PublishArticle(ctx, st.Article)
	if err != nil {
		o.Metrics.IncPublish("failed")
		return err
	}
	o.Metrics.IncPublish("ok")
	res.PostURL = post.URL
	log.WithField("url", post.URL).Info("article published")

	if err := o.Authors.Append(st.Persona.ID); err != nil {
		return err
	}
	return nil
}

func (o *Orchestrator) preview(st *RunState) {
	a := st.Article
	fmt.Fprintln(o.Out, "\n--- DRY RUN: article not published ---")
	fmt.Fprintf(o.Out, "Title: %s\n", a.Title)
	fmt.Fprintf(o.Out, "Author: %s\n", a.AuthorName)
	fmt.Fprintf(o.Out, "Tags: %s\n", strings.Join(a.Tags, ", "))
	fmt.Fprintf(o.Out, "Meta: %s\n", a.MetaDescription)
	if len(st.Image) > 0 {
		fmt.Fprintf(o.Out, "Feature image: %d bytes\n", len(st.Image))
	}
	fmt.Fprintln(o.Out, "\n--- HTML preview ---")
	fmt.Fprintln(o.Out, a.HTML)
}
