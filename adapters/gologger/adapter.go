package gologger

import (
	"github.com/goliatone/go-resident/core"
	glog "github.com/goliatone/go-logger/glog"
)

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

// ManagerOptions resolves the logger pair under name and returns the
// manager options that install it.
func ManagerOptions(name string, provider glog.LoggerProvider, logger glog.Logger) []core.Option {
	resolvedProvider, resolvedLogger := Resolve(name, provider, logger)
	return []core.Option{
		core.WithLoggerProvider(resolvedProvider),
		core.WithLogger(resolvedLogger),
	}
}

// ErrorSink reports session failures through the resolved logger.
func ErrorSink(name string, provider glog.LoggerProvider, logger glog.Logger) *core.LoggingErrorSink {
	_, resolved := Resolve(name, provider, logger)
	return core.NewLoggingErrorSink(resolved)
}
