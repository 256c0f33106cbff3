package core

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// traceTagKeys are the identifying fields promoted from log context to
// metric tags so dashboards can slice by tenant and integration.
var traceTagKeys = [...]string{"workspace_id", "integration_id", "source_id", "integration_type"}

// opObservation is one operation's outcome, shaped for both the metric
// and the log pipeline.
type opObservation struct {
	operation  string
	status     string
	durationMS float64
	fields     map[string]any
	tags       map[string]string
}

// Every service operation funnels through observeOperation on the way
// out: one counter, one latency histogram, and one log line, all
// sharing the same operation and status vocabulary.
func (s *Service) observeOperation(
	ctx context.Context,
	startedAt time.Time,
	operation string,
	err error,
	fields map[string]any,
) {
	if s == nil {
		return
	}
	obs := newOpObservation(startedAt, operation, err, fields)

	s.recordCounter(ctx, obs.metricName("total"), 1, obs.tags)
	s.recordHistogram(ctx, obs.metricName("duration_ms"), obs.durationMS, obs.tags)

	if err != nil {
		s.logError(ctx, obs.operation+" failed", obs.fields)
		return
	}
	s.logInfo(ctx, obs.operation+" succeeded", obs.fields)
}

func newOpObservation(startedAt time.Time, operation string, err error, fields map[string]any) opObservation {
	op := normalizeOperation(operation)
	if op == "" {
		op = "unknown"
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	durationMS := float64(time.Since(startedAt).Milliseconds())

	enriched := cloneFields(fields)
	enriched["event_type"] = op
	enriched["status"] = status
	enriched["duration_ms"] = int64(durationMS)
	if err != nil {
		enriched["error"] = err.Error()
	}

	tags := map[string]string{
		"operation": op,
		"status":    status,
	}
	for _, key := range traceTagKeys {
		if value := tagValue(enriched[key]); value != "" {
			tags[key] = value
		}
	}

	return opObservation{
		operation:  op,
		status:     status,
		durationMS: durationMS,
		fields:     enriched,
		tags:       tags,
	}
}

func (o opObservation) metricName(suffix string) string {
	return "integrations." + o.operation + "." + suffix
}

func (s *Service) logInfo(ctx context.Context, message string, fields map[string]any) {
	s.emitLog(ctx, false, message, fields)
}

func (s *Service) logError(ctx context.Context, message string, fields map[string]any) {
	s.emitLog(ctx, true, message, fields)
}

// emitLog attaches fields twice on purpose: structured loggers read
// them through WithFields, plain loggers get them as trailing key
// value arguments.
func (s *Service) emitLog(ctx context.Context, isError bool, message string, fields map[string]any) {
	if s == nil || s.logger == nil {
		return
	}
	logger := s.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(cloneFields(fields))
	}
	args := flattenFields(fields)
	if isError {
		logger.Error(message, args...)
		return
	}
	logger.Info(message, args...)
}

func (s *Service) recordCounter(ctx context.Context, name string, value int64, tags map[string]string) {
	if s == nil || s.metricsRecorder == nil {
		return
	}
	s.metricsRecorder.IncCounter(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func (s *Service) recordHistogram(ctx context.Context, name string, value float64, tags map[string]string) {
	if s == nil || s.metricsRecorder == nil {
		return
	}
	s.metricsRecorder.ObserveHistogram(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

// cloneFields always hands back a writable map, never the caller's.
func cloneFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return map[string]any{}
	}
	return maps.Clone(fields)
}

// flattenFields turns a field map into deterministic key value pairs.
func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	args := make([]any, 0, len(fields)*2)
	for _, key := range slices.Sorted(maps.Keys(fields)) {
		args = append(args, key, fields[key])
	}
	return args
}

func tagValue(value any) string {
	if value == nil {
		return ""
	}
	text := strings.TrimSpace(fmt.Sprint(value))
	if text == "<nil>" {
		return ""
	}
	return text
}

func normalizeOperation(operation string) string {
	operation = strings.ToLower(strings.TrimSpace(operation))
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-':
			return '_'
		default:
			return r
		}
	}, operation)
}
