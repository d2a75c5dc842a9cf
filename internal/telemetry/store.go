package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/satyaki-up/matorral/internal/cascade"
	"github.com/satyaki-up/matorral/internal/issues"
)

const storeScopeName = "github.com/satyaki-up/matorral/store"

// InstrumentedStore wraps a cascade.Store with a span and an operation
// count per call, counted in mt.store.* metrics.
type InstrumentedStore struct {
	inner  cascade.Store
	tracer trace.Tracer
	ops    metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
}

// WrapStore returns s decorated with OTel instrumentation, or s itself when
// telemetry is disabled.
func WrapStore(s cascade.Store) cascade.Store {
	if !Enabled() {
		return s
	}
	m := Meter(storeScopeName)
	ops, _ := m.Int64Counter("mt.store.operations",
		metric.WithDescription("Store operations executed by the cascade engine"),
	)
	dur, _ := m.Float64Histogram("mt.store.operation.duration",
		metric.WithDescription("Store operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("mt.store.errors",
		metric.WithDescription("Store operation errors"),
	)
	return &InstrumentedStore{
		inner:  s,
		tracer: Tracer(storeScopeName),
		ops:    ops,
		dur:    dur,
		errs:   errs,
	}
}

func (s *InstrumentedStore) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("db.operation", name)}, attrs...)
	ctx, span := s.tracer.Start(ctx, "store."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	s.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

func (s *InstrumentedStore) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs ...attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	s.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
}

func (s *InstrumentedStore) GetProject(ctx context.Context, id int64) (*issues.Project, error) {
	attrs := []attribute.KeyValue{attribute.Int64("mt.project.id", id)}
	ctx, span, t := s.op(ctx, "GetProject", attrs...)
	v, err := s.inner.GetProject(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) GetMilestone(ctx context.Context, id int64) (*issues.Milestone, error) {
	attrs := []attribute.KeyValue{attribute.Int64("mt.milestone.id", id)}
	ctx, span, t := s.op(ctx, "GetMilestone", attrs...)
	v, err := s.inner.GetMilestone(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) GetIssue(ctx context.Context, id int64) (*issues.Issue, error) {
	attrs := []attribute.KeyValue{attribute.Int64("mt.issue.id", id)}
	ctx, span, t := s.op(ctx, "GetIssue", attrs...)
	v, err := s.inner.GetIssue(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) Milestones(ctx context.Context, projectID int64) ([]*issues.Milestone, error) {
	attrs := []attribute.KeyValue{attribute.Int64("mt.project.id", projectID)}
	ctx, span, t := s.op(ctx, "Milestones", attrs...)
	v, err := s.inner.Milestones(ctx, projectID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) ProjectEpics(ctx context.Context, projectID int64) ([]*issues.Issue, error) {
	attrs := []attribute.KeyValue{attribute.Int64("mt.project.id", projectID)}
	ctx, span, t := s.op(ctx, "ProjectEpics", attrs...)
	v, err := s.inner.ProjectEpics(ctx, projectID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) OrphanEpics(ctx context.Context, projectID int64) ([]*issues.Issue, error) {
	attrs := []attribute.KeyValue{attribute.Int64("mt.project.id", projectID)}
	ctx, span, t := s.op(ctx, "OrphanEpics", attrs...)
	v, err := s.inner.OrphanEpics(ctx, projectID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) MilestoneEpics(ctx context.Context, milestoneID int64) ([]*issues.Issue, error) {
	attrs := []attribute.KeyValue{attribute.Int64("mt.milestone.id", milestoneID)}
	ctx, span, t := s.op(ctx, "MilestoneEpics", attrs...)
	v, err := s.inner.MilestoneEpics(ctx, milestoneID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) RootWorkItems(ctx context.Context, projectID int64) ([]*issues.Issue, error) {
	attrs := []attribute.KeyValue{attribute.Int64("mt.project.id", projectID)}
	ctx, span, t := s.op(ctx, "RootWorkItems", attrs...)
	v, err := s.inner.RootWorkItems(ctx, projectID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) Children(ctx context.Context, issueID int64) ([]*issues.Issue, error) {
	attrs := []attribute.KeyValue{attribute.Int64("mt.issue.id", issueID)}
	ctx, span, t := s.op(ctx, "Children", attrs...)
	v, err := s.inner.Children(ctx, issueID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) Subtasks(ctx context.Context, parent issues.ParentRef) ([]*issues.Subtask, error) {
	attrs := []attribute.KeyValue{attribute.String("mt.parent", parent.Ref().String())}
	ctx, span, t := s.op(ctx, "Subtasks", attrs...)
	v, err := s.inner.Subtasks(ctx, parent)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) UpdateStatuses(ctx context.Context, model issues.Model, ids []int64, target issues.Status, actor string) (int, error) {
	attrs := []attribute.KeyValue{
		attribute.String("mt.model", string(model)),
		attribute.Int("mt.id.count", len(ids)),
		attribute.String("mt.actor", actor),
	}
	ctx, span, t := s.op(ctx, "UpdateStatuses", attrs...)
	n, err := s.inner.UpdateStatuses(ctx, model, ids, target, actor)
	span.SetAttributes(attribute.Int("mt.rows.changed", n))
	s.done(ctx, span, t, err, attrs...)
	return n, err
}
