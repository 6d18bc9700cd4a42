package relation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/staybook/hotel-server-go/internal/model"
)

const instrumentationName = "github.com/staybook/hotel-server-go/internal/relation"

type tracedStore struct {
	next   Store
	tracer trace.Tracer
	calls  metric.Int64Counter
}

// WithTracing wraps a Store so every call records a span and increments the
// relation.calls counter on the global OpenTelemetry providers.
func WithTracing(next Store) Store {
	calls, err := otel.Meter(instrumentationName).Int64Counter("relation.calls",
		metric.WithDescription("Relation store calls by operation and outcome"))
	if err != nil {
		otel.Handle(err)
	}
	return &tracedStore{
		next:   next,
		tracer: otel.Tracer(instrumentationName),
		calls:  calls,
	}
}

func (s *tracedStore) Query(ctx context.Context, collection string, filters ...model.Filter) ([]model.Document, error) {
	ctx, span := s.start(ctx, "Query", collection, attribute.Int("relation.filters", len(filters)))
	docs, err := s.next.Query(ctx, collection, filters...)
	span.SetAttributes(attribute.Int("relation.rows", len(docs)))
	s.finish(ctx, span, "query", collection, err)
	return docs, err
}

func (s *tracedStore) Insert(ctx context.Context, collection string, data map[string]any) (string, error) {
	ctx, span := s.start(ctx, "Insert", collection)
	id, err := s.next.Insert(ctx, collection, data)
	s.finish(ctx, span, "insert", collection, err)
	return id, err
}

func (s *tracedStore) Delete(ctx context.Context, collection, id string) error {
	ctx, span := s.start(ctx, "Delete", collection, attribute.String("relation.id", id))
	err := s.next.Delete(ctx, collection, id)
	s.finish(ctx, span, "delete", collection, err)
	return err
}

func (s *tracedStore) Subscribe(ctx context.Context, collection string, filters []model.Filter, fn SnapshotFunc) (func(), error) {
	spanCtx, span := s.start(ctx, "Subscribe", collection, attribute.Int("relation.filters", len(filters)))
	unsubscribe, err := s.next.Subscribe(ctx, collection, filters, fn)
	s.finish(spanCtx, span, "subscribe", collection, err)
	return unsubscribe, err
}

func (s *tracedStore) start(ctx context.Context, op, collection string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("relation.collection", collection))
	return s.tracer.Start(ctx, "relation."+op, trace.WithAttributes(attrs...))
}

func (s *tracedStore) finish(ctx context.Context, span trace.Span, op, collection string, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	if s.calls != nil {
		s.calls.Add(ctx, 1, metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("collection", collection),
			attribute.Bool("error", err != nil),
		))
	}
}
