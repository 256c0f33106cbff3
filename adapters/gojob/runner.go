package gojob

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ChasLui/nocodb/core"
)

const (
	ParamBatchSize  = "batch_size"
	ParamTTLSeconds = "ttl_seconds"
	ParamRowCap     = "row_cap"
)

// Reconciler is the slice of the cache reconciler the runner invokes.
type Reconciler interface {
	Reconcile(ctx context.Context) (core.ReconcileStats, error)
}

type JobRunnerOption func(*JobRunner)

func WithDispatcher(dispatcher core.LifecycleDispatcher) JobRunnerOption {
	return func(r *JobRunner) {
		if r == nil || dispatcher == nil {
			return
		}
		r.dispatcher = dispatcher
	}
}

func WithReconciler(reconciler Reconciler) JobRunnerOption {
	return func(r *JobRunner) {
		if r == nil || reconciler == nil {
			return
		}
		r.reconciler = reconciler
	}
}

func WithPruner(pruner core.AuditPruner) JobRunnerOption {
	return func(r *JobRunner) {
		if r == nil || pruner == nil {
			return
		}
		r.pruner = pruner
	}
}

func WithRetryPolicy(policy RetryPolicy) JobRunnerOption {
	return func(r *JobRunner) {
		if r == nil {
			return
		}
		r.policy = policy
	}
}

func WithDispatchBatchSize(size int) JobRunnerOption {
	return func(r *JobRunner) {
		if r == nil || size <= 0 {
			return
		}
		r.batchSize = size
	}
}

func WithRetentionPolicy(policy core.AuditRetentionPolicy) JobRunnerOption {
	return func(r *JobRunner) {
		if r == nil {
			return
		}
		r.retention = policy
	}
}

// JobRunner routes dequeued execution messages to the background
// operations bound to it. Message parameters override the runner's
// defaults per run.
type JobRunner struct {
	dispatcher core.LifecycleDispatcher
	reconciler Reconciler
	pruner     core.AuditPruner
	policy     RetryPolicy
	batchSize  int
	retention  core.AuditRetentionPolicy
}

func NewJobRunner(opts ...JobRunnerOption) *JobRunner {
	runner := &JobRunner{
		policy: RetryPolicy{MaxAttempts: 5, DeadLetterOnMax: true},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(runner)
		}
	}
	return runner
}

// Run executes the operation a message names. Unknown job IDs and jobs
// with no bound handler are errors so the queue can retry or park them.
func (r *JobRunner) Run(ctx context.Context, msg *core.JobExecutionMessage) error {
	if r == nil {
		return fmt.Errorf("gojob: job runner is not configured")
	}
	if msg == nil {
		return fmt.Errorf("gojob: execution message is required")
	}

	switch strings.TrimSpace(msg.JobID) {
	case JobIDOutboxDispatch:
		if r.dispatcher == nil {
			return fmt.Errorf("gojob: no dispatcher bound for %s", JobIDOutboxDispatch)
		}
		_, err := r.dispatcher.DispatchPending(ctx, intParam(msg.Parameters, ParamBatchSize, r.batchSize))
		return err
	case JobIDSourceConfigReconcile:
		if r.reconciler == nil {
			return fmt.Errorf("gojob: no reconciler bound for %s", JobIDSourceConfigReconcile)
		}
		_, err := r.reconciler.Reconcile(ctx)
		return err
	case JobIDActivityPrune:
		if r.pruner == nil {
			return fmt.Errorf("gojob: no pruner bound for %s", JobIDActivityPrune)
		}
		policy := core.AuditRetentionPolicy{
			TTL:    time.Duration(intParam(msg.Parameters, ParamTTLSeconds, int(r.retention.TTL/time.Second))) * time.Second,
			RowCap: intParam(msg.Parameters, ParamRowCap, r.retention.RowCap),
		}
		_, err := r.pruner.Prune(ctx, policy)
		return err
	default:
		return fmt.Errorf("gojob: no handler for job %q", msg.JobID)
	}
}

// Process runs the delivered message and settles the delivery: ack on
// success, nack bounded by the retry policy on failure. The run error
// is returned either way so worker hooks observe it.
func (r *JobRunner) Process(ctx context.Context, delivery core.JobDelivery, attempt int) error {
	if r == nil {
		return fmt.Errorf("gojob: job runner is not configured")
	}
	if delivery == nil {
		return fmt.Errorf("gojob: delivery is required")
	}

	runErr := r.Run(ctx, delivery.Message())
	if runErr == nil {
		return delivery.Ack(ctx)
	}

	opts := r.policy.NormalizeAttempt(core.JobNackOptions{
		Requeue: true,
		Reason:  runErr.Error(),
	}, attempt)
	if nackErr := delivery.Nack(ctx, opts); nackErr != nil {
		return errors.Join(runErr, nackErr)
	}
	return runErr
}

func NewOutboxDispatchMessage(batchSize int) *core.JobExecutionMessage {
	msg := &core.JobExecutionMessage{
		JobID:      JobIDOutboxDispatch,
		Parameters: map[string]any{},
	}
	if batchSize > 0 {
		msg.Parameters[ParamBatchSize] = batchSize
	}
	return msg
}

func NewSourceConfigReconcileMessage() *core.JobExecutionMessage {
	return &core.JobExecutionMessage{
		JobID:      JobIDSourceConfigReconcile,
		Parameters: map[string]any{},
	}
}

func NewActivityPruneMessage(policy core.AuditRetentionPolicy) *core.JobExecutionMessage {
	msg := &core.JobExecutionMessage{
		JobID:      JobIDActivityPrune,
		Parameters: map[string]any{},
	}
	if policy.TTL > 0 {
		msg.Parameters[ParamTTLSeconds] = int(policy.TTL / time.Second)
	}
	if policy.RowCap > 0 {
		msg.Parameters[ParamRowCap] = policy.RowCap
	}
	return msg
}

// intParam reads an integer parameter that may arrive as a native int,
// a JSON-decoded float, or a string. Missing or malformed values fall
// back to the supplied default.
func intParam(params map[string]any, key string, fallback int) int {
	raw, ok := params[key]
	if !ok {
		return fallback
	}
	switch value := raw.(type) {
	case int:
		return value
	case int32:
		return int(value)
	case int64:
		return int(value)
	case float64:
		return int(value)
	case string:
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

var _ Reconciler = (*core.SourceConfigReconciler)(nil)
