package core

import (
	"context"
	"maps"
)

// MetricsRecorder receives the operation counters and duration
// histograms emitted by the service. Implementations must tolerate
// concurrent calls.
type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

// cloneTags isolates recorder implementations from later mutation of
// the caller's tag map.
func cloneTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return map[string]string{}
	}
	return maps.Clone(tags)
}

var _ MetricsRecorder = NopMetricsRecorder{}
