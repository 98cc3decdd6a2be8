package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

func (m *Manager) observeOperation(
	ctx context.Context,
	startedAt time.Time,
	operation string,
	err error,
	fields map[string]any,
) {
	if m == nil {
		return
	}
	operation = normalizeOperation(operation)
	if operation == "" {
		operation = "unknown"
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	elapsed := m.now().Sub(startedAt).Milliseconds()

	contextFields := cloneFields(fields)
	contextFields["event_type"] = operation
	contextFields["status"] = status
	contextFields["duration_ms"] = elapsed
	if err != nil {
		contextFields["error"] = err.Error()
		if kind := ErrorKindOf(err); kind != ErrorKindUnknown {
			contextFields["error_kind"] = string(kind)
		}
		var rich *goerrors.Error
		if goerrors.As(err, &rich) {
			contextFields["error_category"] = fmt.Sprint(rich.Category)
			contextFields["error_text_code"] = rich.TextCode
			if rich.Code != 0 {
				contextFields["error_code"] = rich.Code
			}
		}
	}

	tags := map[string]string{
		"operation": operation,
		"status":    status,
	}
	for _, key := range []string{"phase", "error_kind"} {
		if value := strings.TrimSpace(fmt.Sprint(contextFields[key])); value != "" && value != "<nil>" {
			tags[key] = value
		}
	}

	m.recordCounter(ctx, "resident."+operation+".total", 1, tags)
	m.recordHistogram(ctx, "resident."+operation+".duration_ms", float64(elapsed), tags)

	if err != nil {
		m.logError(ctx, operation+" failed", contextFields)
		return
	}
	m.logInfo(ctx, operation+" succeeded", contextFields)
}

func (m *Manager) logInfo(ctx context.Context, message string, fields map[string]any) {
	m.logWithLevel(ctx, "info", message, fields)
}

func (m *Manager) logDebug(ctx context.Context, message string, fields map[string]any) {
	m.logWithLevel(ctx, "debug", message, fields)
}

func (m *Manager) logWarn(ctx context.Context, message string, fields map[string]any) {
	m.logWithLevel(ctx, "warn", message, fields)
}

func (m *Manager) logError(ctx context.Context, message string, fields map[string]any) {
	m.logWithLevel(ctx, "error", message, fields)
}

func (m *Manager) logWithLevel(ctx context.Context, level string, message string, fields map[string]any) {
	if m == nil || m.logger == nil {
		return
	}
	logger := m.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(cloneFields(fields))
	}
	args := flattenFields(fields)
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "error":
		logger.Error(message, args...)
	case "warn":
		logger.Warn(message, args...)
	case "debug":
		logger.Debug(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func (m *Manager) recordCounter(ctx context.Context, name string, value int64, tags map[string]string) {
	if m == nil || m.metricsRecorder == nil {
		return
	}
	m.metricsRecorder.IncCounter(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func (m *Manager) recordHistogram(ctx context.Context, name string, value float64, tags map[string]string) {
	if m == nil || m.metricsRecorder == nil {
		return
	}
	m.metricsRecorder.ObserveHistogram(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

// sessionFields describes a snapshot for logs. The token is fingerprinted.
func sessionFields(s Session) map[string]any {
	fields := map[string]any{
		"phase":         s.Phase.String(),
		"generation":    s.Generation,
		"saving":        s.Saving,
		"impersonating": s.Impersonating,
	}
	if fingerprint := TokenFingerprint(s.AccessToken); fingerprint != "" {
		fields["token"] = fingerprint
	}
	if id := s.Resident.ResidentID(); id != "" {
		fields["resident_id"] = id
	}
	return fields
}

func cloneFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return map[string]any{}
	}
	copied := make(map[string]any, len(fields))
	for key, value := range fields {
		copied[key] = value
	}
	return copied
}

func cloneTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return map[string]string{}
	}
	copied := make(map[string]string, len(tags))
	for key, value := range tags {
		copied[key] = value
	}
	return copied
}

func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}

func normalizeOperation(operation string) string {
	operation = strings.TrimSpace(strings.ToLower(operation))
	operation = strings.ReplaceAll(operation, " ", "_")
	operation = strings.ReplaceAll(operation, "-", "_")
	return operation
}
