package identity

import (
	"context"

	"github.com/goliatone/go-resident/core"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

const TracerName = "github.com/goliatone/go-resident/identity"

// TracedProfileStore wraps a ProfileStore with a span per call.
type TracedProfileStore struct {
	next   core.ProfileStore
	tracer trace.Tracer
}

func NewTracedProfileStore(next core.ProfileStore, provider trace.TracerProvider) *TracedProfileStore {
	if provider == nil {
		provider = nooptrace.NewTracerProvider()
	}
	return &TracedProfileStore{
		next:   next,
		tracer: provider.Tracer(TracerName),
	}
}

func (s *TracedProfileStore) Resolve(ctx context.Context, token string) (core.Profile, error) {
	ctx, span := s.tracer.Start(ctx, "ProfileStore.Resolve",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("resident.token", core.TokenFingerprint(token))),
	)
	defer span.End()

	profile, err := s.next.Resolve(ctx, token)
	if err != nil {
		s.handleError(span, err)
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("resident.profile.fields", len(profile)),
		attribute.String("resident.id", profile.ResidentID()),
	)
	return profile, nil
}

func (s *TracedProfileStore) Save(ctx context.Context, token string, partial core.Profile) (core.Profile, error) {
	ctx, span := s.tracer.Start(ctx, "ProfileStore.Save",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("resident.token", core.TokenFingerprint(token)),
			attribute.StringSlice("resident.profile.keys", partial.Keys()),
		),
	)
	defer span.End()

	profile, err := s.next.Save(ctx, token, partial)
	if err != nil {
		s.handleError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("resident.profile.fields", len(profile)))
	return profile, nil
}

func (s *TracedProfileStore) handleError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String("resident.error_kind", string(core.ErrorKindOf(err))))
}
