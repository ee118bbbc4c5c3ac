// Package testkit runs batches of generated cases against one callable.
package testkit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/snow-ghost/probe/core"
	"github.com/snow-ghost/probe/generate"
	"github.com/snow-ghost/probe/pkg/logging"
	"github.com/snow-ghost/probe/pkg/metrics"
	"github.com/snow-ghost/probe/session"
)

// Report is the outcome of one batch. Records are in case order.
type Report struct {
	Callable string             `json:"callable"`
	Records  []core.TestRecord  `json:"records"`
	Metrics  map[string]float64 `json:"metrics"`
}

// Runner generates and executes cases through a session.
type Runner struct {
	logger  *logging.Logger
	metrics *metrics.PrometheusMetrics
}

func NewRunner(logger *logging.Logger, m *metrics.PrometheusMetrics) *Runner {
	return &Runner{logger: logging.OrNop(logger).WithComponent("batch"), metrics: m}
}

// Run generates count argument sets for entry and executes each one. The sets
// come from one stream seeded by the session's generator, so rerunning a batch
// in a fresh session repeats it. A case whose arguments or receiver cannot be
// built becomes a failed record at the resolve stage; the batch goes on.
// Run stops early only when ctx ends or the session closes, returning the
// partial report with the error.
func (r *Runner) Run(ctx context.Context, sess *session.Session, entry core.Entry, count int) (*Report, error) {
	if count < 0 {
		return nil, fmt.Errorf("%w: %d", generate.ErrNegativeCount, count)
	}
	sig := entry.Signature
	report := &Report{
		Callable: sig.ID(),
		Records:  make([]core.TestRecord, 0, count),
		Metrics: map[string]float64{
			"cases_total":       0,
			"cases_succeeded":   0,
			"cases_failed":      0,
			"duration_ms_total": 0,
		},
	}
	r.metrics.RecordBatch()
	stream := generate.NewStream(sess.Generator().Seed())

	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		start := time.Now()

		rec, err := r.runCase(ctx, sess, entry, stream)
		if err != nil {
			return report, fmt.Errorf("case %d: %w", i+1, err)
		}

		report.Metrics["duration_ms_total"] += float64(time.Since(start).Milliseconds())
		report.Metrics["cases_total"]++
		if rec.Outcome.Success {
			report.Metrics["cases_succeeded"]++
		} else {
			report.Metrics["cases_failed"]++
		}
		report.Records = append(report.Records, rec)
	}

	r.logger.Info("Batch finished",
		"callable", report.Callable,
		"cases", count,
		"succeeded", int(report.Metrics["cases_succeeded"]),
		"failed", int(report.Metrics["cases_failed"]),
	)
	return report, nil
}

func (r *Runner) runCase(ctx context.Context, sess *session.Session, entry core.Entry, stream core.RandSource) (core.TestRecord, error) {
	args, err := sess.GenerateFrom(ctx, entry.Signature, stream)
	if err != nil {
		return r.unresolved(sess, entry.Signature, args, err)
	}
	rec, err := sess.Execute(ctx, entry, args)
	if err != nil {
		return r.unresolved(sess, entry.Signature, args, err)
	}
	return rec, nil
}

// unresolved turns a resolution failure into a logged record. Anything else
// ends the batch.
func (r *Runner) unresolved(sess *session.Session, sig core.Signature, args core.ArgumentSet, err error) (core.TestRecord, error) {
	var resErr *core.ResolutionError
	var cycleErr *core.CycleError
	if !errors.As(err, &resErr) && !errors.As(err, &cycleErr) {
		return core.TestRecord{}, err
	}
	if args == nil {
		args = core.ArgumentSet{}
	}
	rec := core.TestRecord{
		ID:       uuid.NewString(),
		Callable: sig.ID(),
		Kind:     sig.Kind,
		Args:     args,
		Outcome: core.Outcome{
			Error: err.Error(),
			Stage: core.StageResolve,
		},
		Verdict:   core.VerdictUnreviewed,
		Timestamp: time.Now(),
	}
	sess.Append(rec)
	r.metrics.RecordExecution(sig.Kind.String(), core.StageResolve, 0)
	return rec, nil
}
