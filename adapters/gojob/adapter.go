package gojob

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	sqlstore "github.com/goliatone/go-resident/store/sql"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
)

const (
	JobIDActivityPrune = "resident.activity.prune"

	paramTTL     = "ttl"
	paramRowCap  = "row_cap"
	paramAttempt = "attempt"
)

// RetryPolicy bounds how failed prune deliveries are retried.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// ToExecutionMessage builds the prune job message. Zero policy bounds are
// left out so the worker's configured policy applies.
func ToExecutionMessage(policy sqlstore.RetentionPolicy, idempotencyKey string) *job.ExecutionMessage {
	params := map[string]any{}
	if policy.TTL > 0 {
		params[paramTTL] = policy.TTL.String()
	}
	if policy.RowCap > 0 {
		params[paramRowCap] = policy.RowCap
	}
	return &job.ExecutionMessage{
		JobID:          JobIDActivityPrune,
		ScriptPath:     JobIDActivityPrune,
		Parameters:     params,
		IdempotencyKey: strings.TrimSpace(idempotencyKey),
		DedupPolicy:    job.DeduplicationPolicy("drop"),
	}
}

// PolicyFromMessage reads the retention bounds carried by msg, falling back
// to fallback for any bound the message does not set.
func PolicyFromMessage(msg *job.ExecutionMessage, fallback sqlstore.RetentionPolicy) (sqlstore.RetentionPolicy, error) {
	if msg == nil {
		return fallback, fmt.Errorf("gojob: execution message is required")
	}
	if strings.TrimSpace(msg.JobID) != JobIDActivityPrune {
		return fallback, fmt.Errorf("gojob: unexpected job id %q", msg.JobID)
	}
	policy := fallback
	if raw, ok := msg.Parameters[paramTTL]; ok {
		text, isText := raw.(string)
		ttl, err := time.ParseDuration(strings.TrimSpace(text))
		if !isText || err != nil || ttl < 0 {
			return fallback, fmt.Errorf("gojob: invalid %s parameter %v", paramTTL, raw)
		}
		policy.TTL = ttl
	}
	if raw, ok := msg.Parameters[paramRowCap]; ok {
		rowCap, err := intParam(raw)
		if err != nil || rowCap < 0 {
			return fallback, fmt.Errorf("gojob: invalid %s parameter %v", paramRowCap, raw)
		}
		policy.RowCap = rowCap
	}
	return policy, nil
}

// Pruner is satisfied by *sqlstore.RepositoryFactory and *sqlstore.ActivityStore.
type Pruner interface {
	Prune(ctx context.Context, policy sqlstore.RetentionPolicy) (int, error)
}

// Scheduler enqueues activity prune jobs.
type Scheduler struct {
	enqueuer queue.Enqueuer
	now      func() time.Time
}

func NewScheduler(enqueuer queue.Enqueuer) *Scheduler {
	return &Scheduler{enqueuer: enqueuer, now: time.Now}
}

// Schedule enqueues one prune run. Runs scheduled within the same hour share
// an idempotency key.
func (s *Scheduler) Schedule(ctx context.Context, policy sqlstore.RetentionPolicy) error {
	if s == nil || s.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	key := JobIDActivityPrune + ":" + s.now().UTC().Truncate(time.Hour).Format(time.RFC3339)
	return s.enqueuer.Enqueue(ctx, ToExecutionMessage(policy, key))
}

// PruneWorker consumes prune deliveries and applies them to the ledger.
type PruneWorker struct {
	dequeuer queue.Dequeuer
	pruner   Pruner
	fallback sqlstore.RetentionPolicy
	retry    RetryPolicy
	logger   glog.Logger
}

func NewPruneWorker(dequeuer queue.Dequeuer, pruner Pruner, fallback sqlstore.RetentionPolicy, retry RetryPolicy, logger glog.Logger) *PruneWorker {
	return &PruneWorker{
		dequeuer: dequeuer,
		pruner:   pruner,
		fallback: fallback,
		retry:    retry,
		logger:   glog.Ensure(logger),
	}
}

// NewFactoryPruneWorker runs prune jobs against factory, defaulting to the
// factory's configured retention policy the way PruneActivity does.
func NewFactoryPruneWorker(dequeuer queue.Dequeuer, factory *sqlstore.RepositoryFactory, retry RetryPolicy, logger glog.Logger) *PruneWorker {
	return NewPruneWorker(dequeuer, factory, factory.Retention(), retry, logger)
}

// RunOnce takes one delivery off the queue and handles it.
func (w *PruneWorker) RunOnce(ctx context.Context) (int, error) {
	if w == nil || w.dequeuer == nil {
		return 0, fmt.Errorf("gojob: dequeuer is not configured")
	}
	delivery, err := w.dequeuer.Dequeue(ctx)
	if err != nil {
		return 0, err
	}
	return w.Handle(ctx, delivery)
}

// Handle prunes for one delivery. Malformed messages are dead-lettered;
// prune failures are nacked under the retry policy.
func (w *PruneWorker) Handle(ctx context.Context, delivery queue.Delivery) (int, error) {
	if w == nil || w.pruner == nil {
		return 0, fmt.Errorf("gojob: pruner is not configured")
	}
	if delivery == nil {
		return 0, fmt.Errorf("gojob: delivery is required")
	}
	msg := delivery.Message()
	policy, err := PolicyFromMessage(msg, w.fallback)
	if err != nil {
		w.logger.Warn("activity prune message rejected", "error", err.Error())
		if nackErr := delivery.Nack(ctx, queue.NackOptions{DeadLetter: true, Reason: err.Error()}); nackErr != nil {
			return 0, nackErr
		}
		return 0, err
	}

	deleted, err := w.pruner.Prune(ctx, policy)
	if err != nil {
		attempt := attemptOf(msg)
		opts := w.retry.NormalizeAttempt(queue.NackOptions{
			Delay:   time.Duration(attempt) * time.Second,
			Requeue: true,
			Reason:  err.Error(),
		}, attempt)
		w.logger.Error("activity prune failed", "error", err.Error(), "attempt", attempt, "dead_letter", opts.DeadLetter)
		if nackErr := delivery.Nack(ctx, opts); nackErr != nil {
			return 0, nackErr
		}
		return 0, err
	}
	if err := delivery.Ack(ctx); err != nil {
		return deleted, err
	}
	w.logger.Info("activity pruned", "deleted", deleted, "ttl", policy.TTL.String(), "row_cap", policy.RowCap)
	return deleted, nil
}

func attemptOf(msg *job.ExecutionMessage) int {
	if msg == nil {
		return 1
	}
	raw, ok := msg.Parameters[paramAttempt]
	if !ok {
		return 1
	}
	attempt, err := intParam(raw)
	if err != nil || attempt < 1 {
		return 1
	}
	return attempt
}

// intParam accepts the numeric shapes queue backends decode parameters into.
func intParam(raw any) (int, error) {
	switch typed := raw.(type) {
	case int:
		return typed, nil
	case int64:
		return int(typed), nil
	case float64:
		if typed != float64(int(typed)) {
			return 0, fmt.Errorf("not an integer: %v", typed)
		}
		return int(typed), nil
	case string:
		return strconv.Atoi(strings.TrimSpace(typed))
	default:
		return 0, fmt.Errorf("unsupported type %T", raw)
	}
}

var (
	_ Pruner = (*sqlstore.RepositoryFactory)(nil)
	_ Pruner = (*sqlstore.ActivityStore)(nil)
)
