package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type capturedCounter struct {
	name  string
	value int64
	tags  map[string]string
}

type capturedHistogram struct {
	name  string
	value float64
	tags  map[string]string
}

type captureMetricsRecorder struct {
	mu         sync.Mutex
	counters   []capturedCounter
	histograms []capturedHistogram
}

func (m *captureMetricsRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, capturedCounter{name: name, value: value, tags: cloneTags(tags)})
}

func (m *captureMetricsRecorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms = append(m.histograms, capturedHistogram{name: name, value: value, tags: cloneTags(tags)})
}

type capturedLog struct {
	level  string
	msg    string
	fields map[string]any
}

type captureLogger struct {
	mu       *sync.Mutex
	records  *[]capturedLog
	defaults map[string]any
}

func newCaptureLogger() *captureLogger {
	records := []capturedLog{}
	return &captureLogger{mu: &sync.Mutex{}, records: &records, defaults: map[string]any{}}
}

func (l *captureLogger) WithFields(fields map[string]any) Logger {
	merged := cloneFieldMap(l.defaults)
	for key, value := range fields {
		merged[key] = value
	}
	return &captureLogger{mu: l.mu, records: l.records, defaults: merged}
}

func (l *captureLogger) Trace(msg string, args ...any) { l.record("trace", msg, args...) }
func (l *captureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args...) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l *captureLogger) Error(msg string, args ...any) { l.record("error", msg, args...) }
func (l *captureLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args...) }

func (l *captureLogger) WithContext(context.Context) Logger {
	return &captureLogger{mu: l.mu, records: l.records, defaults: cloneFieldMap(l.defaults)}
}

func (l *captureLogger) record(level string, msg string, args ...any) {
	fields := cloneFieldMap(l.defaults)
	for index := 0; index+1 < len(args); index += 2 {
		key, ok := args[index].(string)
		if !ok {
			continue
		}
		fields[key] = args[index+1]
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.records = append(*l.records, capturedLog{level: level, msg: msg, fields: fields})
}

func (l *captureLogger) snapshot() []capturedLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	items := *l.records
	out := make([]capturedLog, len(items))
	copy(out, items)
	return out
}

func cloneFieldMap(input map[string]any) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}
	output := make(map[string]any, len(input))
	for key, value := range input {
		output[key] = value
	}
	return output
}

func TestManagerObservability_ResolveSuccess(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	logger := newCaptureLogger()
	profiles := newFakeProfiles()
	profiles.respond("tok", Profile{FieldResidentID: String("r1")}, nil)
	manager, err := NewManager(DefaultConfig(),
		WithProfileStore(profiles),
		WithToken("tok"),
		WithMetricsRecorder(metrics),
		WithLoggerProvider(stubLoggerProvider{logger: logger}),
		WithLogger(logger),
	)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	defer manager.Close()

	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	if !hasCounter(metrics.counters, "resident.resolve.total", "success") {
		t.Fatalf("expected resident.resolve.total success counter")
	}
	if !hasHistogram(metrics.histograms, "resident.resolve.duration_ms", "success") {
		t.Fatalf("expected resident.resolve.duration_ms histogram")
	}
	if !hasLog(logger.snapshot(), "info", "resolve succeeded", "resolve") {
		t.Fatalf("expected resolve succeeded structured log")
	}
	for _, record := range logger.snapshot() {
		for _, value := range record.fields {
			if value == "tok" {
				t.Fatalf("raw token leaked into log %q", record.msg)
			}
		}
	}
}

func TestManagerObservability_SaveFailure(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	logger := newCaptureLogger()
	profiles := newFakeProfiles()
	profiles.respond("tok", Profile{FieldResidentID: String("r1")}, nil)
	profiles.saveResult = resolveResult{err: NewUnavailableError(nil, 502)}
	manager, err := NewManager(DefaultConfig(),
		WithProfileStore(profiles),
		WithToken("tok"),
		WithErrorSink(NopErrorSink{}),
		WithMetricsRecorder(metrics),
		WithLoggerProvider(stubLoggerProvider{logger: logger}),
		WithLogger(logger),
	)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	defer manager.Close()
	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := manager.Save(context.Background(), Profile{FieldEmail: String("x")}); err == nil {
		t.Fatalf("expected save failure")
	}
	if !hasCounter(metrics.counters, "resident.save.total", "failure") {
		t.Fatalf("expected save failure counter")
	}
	if !hasLog(logger.snapshot(), "error", "save failed", "save") {
		t.Fatalf("expected save failure log")
	}
}

func TestManagerObservability_EnrichesStructuredErrorFields(t *testing.T) {
	logger := newCaptureLogger()
	manager, err := NewManager(DefaultConfig(),
		WithProfileStore(newFakeProfiles()),
		WithLoggerProvider(stubLoggerProvider{logger: logger}),
		WithLogger(logger),
	)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	defer manager.Close()

	richErr := NewUnauthorizedError(nil, 401).
		WithSeverity(goerrors.SeverityCritical)
	manager.observeOperation(
		context.Background(),
		time.Now().UTC().Add(-100*time.Millisecond),
		"resolve",
		richErr,
		map[string]any{"phase": "error"},
	)

	records := logger.snapshot()
	if len(records) == 0 {
		t.Fatalf("expected logs to be emitted")
	}
	last := records[len(records)-1]
	if last.fields["error_category"] != fmt.Sprint(goerrors.CategoryAuthz) {
		t.Fatalf("expected error_category authz, got %#v", last.fields["error_category"])
	}
	if last.fields["error_text_code"] != ErrorUnauthorized {
		t.Fatalf("expected error_text_code %q, got %#v", ErrorUnauthorized, last.fields["error_text_code"])
	}
	if last.fields["error_kind"] != string(ErrorKindUnauthorized) {
		t.Fatalf("expected error_kind unauthorized, got %#v", last.fields["error_kind"])
	}
	if fmt.Sprint(last.fields["error_code"]) != "401" {
		t.Fatalf("expected error_code 401, got %#v", last.fields["error_code"])
	}
}

func TestLoggingErrorSink_TagsResident(t *testing.T) {
	logger := newCaptureLogger()
	sink := NewLoggingErrorSink(logger)
	sink.SetUser(context.Background(), "r1")
	sink.Emit(context.Background(), NewUnavailableError(nil, 0))

	records := logger.snapshot()
	if len(records) != 1 {
		t.Fatalf("expected one log record, got %d", len(records))
	}
	if records[0].level != "error" {
		t.Fatalf("expected error level, got %q", records[0].level)
	}
	if records[0].fields["resident_id"] != "r1" {
		t.Fatalf("expected resident_id tag, got %#v", records[0].fields["resident_id"])
	}
	if records[0].fields["text_code"] != ErrorUnavailable {
		t.Fatalf("expected unavailable text code, got %#v", records[0].fields["text_code"])
	}
}

func TestMultiErrorSink_FansOut(t *testing.T) {
	first := &recordingSink{}
	second := &recordingSink{}
	var calls int
	sink := MultiErrorSink{first, ErrorSinkFunc(func(context.Context, error) { calls++ }), second}

	sink.Emit(context.Background(), NewAlreadySavingError())
	sink.Emit(context.Background(), nil)
	sink.SetUser(context.Background(), "r9")

	if len(first.emitted()) != 1 || len(second.emitted()) != 1 || calls != 1 {
		t.Fatalf("expected each sink to receive one report")
	}
	if users := second.scopedUsers(); len(users) != 1 || users[0] != "r9" {
		t.Fatalf("expected scoped sinks to receive user, got %v", users)
	}
}

func hasCounter(items []capturedCounter, name string, status string) bool {
	for _, item := range items {
		if item.name == name && item.tags["status"] == status {
			return true
		}
	}
	return false
}

func hasHistogram(items []capturedHistogram, name string, status string) bool {
	for _, item := range items {
		if item.name == name && item.tags["status"] == status {
			return true
		}
	}
	return false
}

func hasLog(items []capturedLog, level string, message string, eventType string) bool {
	for _, item := range items {
		if item.level != level {
			continue
		}
		if item.msg != message {
			continue
		}
		if item.fields["event_type"] == eventType {
			return true
		}
	}
	return false
}

func TestManagerObservability_ResetCarriesCredentialError(t *testing.T) {
	logger := newCaptureLogger()
	identity := newFakeIdentity("auth0|u1", map[string]string{"auth0|u1": "tok"})
	identity.tokenErr = errors.New("consent_required")
	manager, err := NewManager(DefaultConfig(),
		WithProfileStore(newFakeProfiles()),
		WithIdentityProvider(identity),
		WithErrorSink(NopErrorSink{}),
		WithLoggerProvider(stubLoggerProvider{logger: logger}),
		WithLogger(logger),
	)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	defer manager.Close()

	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	found := false
	for _, record := range logger.snapshot() {
		message, _ := record.fields["credential_error"].(string)
		if record.msg == "session reset" && message != "" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected session reset log with credential_error, got %#v", logger.snapshot())
	}
}
