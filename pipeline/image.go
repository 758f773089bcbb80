package pipeline

import (
	"context"

	"github.com/sirupsen/logrus"

	"wooden_dutch/fsutil"
	"wooden_dutch/generator"
	"wooden_dutch/imagegen"
)

const featureImageName = "feature-image.jpg"

// illustrate runs the image stage. Every failure degrades to "no image".
func (o *Orchestrator) illustrate(ctx context.Context, log logrus.FieldLogger, st *RunState, mode Mode) {
	log = log.WithField("stage", "image")
	if o.Images == nil {
		log.Debug("no image credential configured, skipping feature image")
		o.Metrics.IncImage("disabled")
		return
	}

	prompt, err := generator.BuildImagePrompt(st.Topic, st.Article.MetaDescription)
	if err != nil {
		o.skipImage(log, err, "prompt")
		return
	}
	raw, err := o.Images.Generate(ctx, prompt)
	if err != nil {
		o.skipImage(log, err, "generate")
		return
	}
	if len(raw) == 0 {
		log.Warn("image service returned no data, continuing without feature image")
		o.Metrics.IncImage("empty")
		return
	}
	data, err := imagegen.Optimize(raw)
	if err != nil {
		o.skipImage(log, err, "optimize")
		return
	}

	switch mode {
	case ModeDryRun:
		st.Image = data
		log.WithField("bytes", len(data)).Info("feature image generated, not uploaded in dry-run")
		o.Metrics.IncImage("preview")
	case ModeSaveOnly:
		path := o.Drafts.StagedImagePath(st.Article.Title)
		if err := fsutil.WriteFileAtomic(path, data, 0o644); err != nil {
			o.skipImage(log, err, "stage")
			return
		}
		st.Image = data
		st.ImageRef = path
		log.WithField("path", path).Info("feature image staged")
		o.Metrics.IncImage("staged")
	default:
		url, err := o.CMS.UploadImage(ctx, data, featureImageName)
		if err != nil {
			o.skipImage(log, err, "upload")
			return
		}
		st.Image = data
		st.ImageRef = url
		log.WithField("url", url).Info("feature image uploaded")
		o.Metrics.IncImage("uploaded")
	}
}

func (o *Orchestrator) skipImage(log logrus.FieldLogger, err error, step string) {
	log.WithError(err).WithField("step", step).Warn("feature image failed, continuing without feature image")
	o.Metrics.IncImage("failed")
}
