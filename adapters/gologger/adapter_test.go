package gologger

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-resident/core"
	glog "github.com/goliatone/go-logger/glog"
)

func TestResolveDeterministicFallback(t *testing.T) {
	loggerOnly := &capturingLogger{id: "logger"}
	providerLogger := &capturingLogger{id: "provider"}
	provider := &capturingProvider{logger: providerLogger}

	var resolvedProvider glog.LoggerProvider
	_, resolved := Resolve("resident", provider, loggerOnly)
	got := resolved.(*capturingLogger)
	if got.id != "provider" {
		t.Fatalf("expected provider logger precedence, got %q", got.id)
	}

	resolvedProvider, resolved = Resolve("resident", nil, loggerOnly)
	got = resolved.(*capturingLogger)
	if got.id != "logger" {
		t.Fatalf("expected direct logger when provider is nil, got %q", got.id)
	}
	if resolvedProvider == nil {
		t.Fatalf("expected provider wrapper from logger")
	}

	_, resolved = Resolve("resident", nil, nil)
	if resolved == nil {
		t.Fatalf("expected nop logger fallback")
	}
}

func TestManagerOptions_InstallResolvedLogger(t *testing.T) {
	providerLogger := &capturingLogger{id: "provider"}
	provider := &capturingProvider{logger: providerLogger}

	opts := append(ManagerOptions("resident", provider, nil), core.WithProfileStore(nopStore{}))
	manager, err := core.NewManager(core.Config{}, opts...)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	defer manager.Close()

	deps := manager.Dependencies()
	if deps.Logger != providerLogger {
		t.Fatalf("expected provider logger installed, got %#v", deps.Logger)
	}
	if deps.LoggerProvider.GetLogger("resident") != providerLogger {
		t.Fatalf("expected provider installed")
	}
}

func TestErrorSink_LogsThroughResolvedLogger(t *testing.T) {
	logger := &capturingLogger{id: "logger"}
	sink := ErrorSink("resident", nil, logger)
	sink.Emit(context.Background(), core.NewUnavailableError(errors.New("down"), 0))
	if logger.lastError.msg == "" {
		t.Fatalf("expected failure logged")
	}
}

type nopStore struct{}

func (nopStore) Resolve(context.Context, string) (core.Profile, error) { return core.Profile{}, nil }

func (nopStore) Save(context.Context, string, core.Profile) (core.Profile, error) {
	return nil, nil
}

var (
	_ glog.Logger         = (*capturingLogger)(nil)
	_ glog.LoggerProvider = (*capturingProvider)(nil)
)

type capturingProvider struct {
	logger *capturingLogger
}

func (p *capturingProvider) GetLogger(string) glog.Logger {
	if p == nil || p.logger == nil {
		return glog.Nop()
	}
	return p.logger
}

type logCall struct {
	msg  string
	args []any
}

type capturingLogger struct {
	id        string
	lastInfo  logCall
	lastError logCall
}

func (l *capturingLogger) Trace(string, ...any) {}
func (l *capturingLogger) Debug(string, ...any) {}
func (l *capturingLogger) Warn(string, ...any)  {}
func (l *capturingLogger) Fatal(string, ...any) {}

func (l *capturingLogger) Info(msg string, args ...any) {
	l.lastInfo = logCall{msg: msg, args: append([]any(nil), args...)}
}

func (l *capturingLogger) Error(msg string, args ...any) {
	l.lastError = logCall{msg: msg, args: append([]any(nil), args...)}
}

func (l *capturingLogger) WithContext(context.Context) glog.Logger {
	return l
}
