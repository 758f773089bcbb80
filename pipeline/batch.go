package pipeline

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// BatchReport tallies a batch of runs.
type BatchReport struct {
	Requested int
	Succeeded int
	Results   []*Result
	Errors    []error
}

// RunBatch runs n pipelines one after another, pausing InterRunDelay between
// them. A failed run is logged and the batch moves on. Cancelling ctx stops
// the batch before the next run starts.
func (o *Orchestrator) RunBatch(ctx context.Context, n int, opts Options) BatchReport {
	report := BatchReport{Requested: n}
	for i := 0; i < n; i++ {
		if i > 0 && !o.pause(ctx) {
			o.Logger.WithField("completed", i).Warn("batch interrupted")
			break
		}
		log := o.Logger.WithFields(logrus.Fields{"batch_index": i + 1, "batch_size": n})
		log.Info("batch run start")

		res, err := o.Run(ctx, opts)
		if err != nil {
			report.Errors = append(report.Errors, err)
			log.WithError(err).Error("batch run failed, continuing")
			continue
		}
		report.Succeeded++
		report.Results = append(report.Results, res)
	}
	o.Logger.WithFields(logrus.Fields{
		"succeeded": report.Succeeded,
		"requested": report.Requested,
	}).Infof("batch complete: %d/%d articles generated", report.Succeeded, report.Requested)
	return report
}

func (o *Orchestrator) pause(ctx context.Context) bool {
	if o.InterRunDelay <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(o.InterRunDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
