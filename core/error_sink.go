package core

import (
	"context"
	"fmt"
	"strings"
	"sync"

	glog "github.com/goliatone/go-logger/glog"
)

type ErrorSinkFunc func(ctx context.Context, err error)

func (f ErrorSinkFunc) Emit(ctx context.Context, err error) {
	if f == nil || err == nil {
		return
	}
	f(ctx, err)
}

type NopErrorSink struct{}

func (NopErrorSink) Emit(context.Context, error) {}

// LoggingErrorSink writes reported failures to a logger, tagged with the
// current resident once one is known.
type LoggingErrorSink struct {
	logger Logger
	mapper ErrorMapper

	mu         sync.RWMutex
	residentID string
}

func NewLoggingErrorSink(logger Logger) *LoggingErrorSink {
	return &LoggingErrorSink{
		logger: glog.Ensure(logger),
		mapper: defaultErrorMapper,
	}
}

func (s *LoggingErrorSink) SetUser(_ context.Context, residentID string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.residentID = strings.TrimSpace(residentID)
	s.mu.Unlock()
}

func (s *LoggingErrorSink) Emit(ctx context.Context, err error) {
	if s == nil || err == nil {
		return
	}
	fields := map[string]any{"error": err.Error()}
	if s.mapper != nil {
		if mapped := s.mapper(err); mapped != nil {
			fields["category"] = fmt.Sprint(mapped.Category)
			fields["text_code"] = mapped.TextCode
			fields["code"] = mapped.Code
		}
	}
	s.mu.RLock()
	if s.residentID != "" {
		fields["resident_id"] = s.residentID
	}
	s.mu.RUnlock()

	logger := s.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(cloneFields(fields))
	}
	logger.Error("resident failure reported", flattenFields(fields)...)
}

// MultiErrorSink fans a report out to every sink.
type MultiErrorSink []ErrorSink

func (m MultiErrorSink) Emit(ctx context.Context, err error) {
	if err == nil {
		return
	}
	for _, sink := range m {
		if sink != nil {
			sink.Emit(ctx, err)
		}
	}
}

func (m MultiErrorSink) SetUser(ctx context.Context, residentID string) {
	for _, sink := range m {
		if scoped, ok := sink.(ScopedErrorSink); ok {
			scoped.SetUser(ctx, residentID)
		}
	}
}
