// Package engine runs evaluation jobs on a bounded worker pool. Jobs for
// different (rule, trigger) pairs run in parallel; ordering holds only
// within a single job's action sequence.
package engine

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/quillon/ruleflow/internal/action"
	"github.com/quillon/ruleflow/internal/config"
	"github.com/quillon/ruleflow/internal/logger"
	"github.com/quillon/ruleflow/internal/metrics"
	"github.com/quillon/ruleflow/internal/record"
	"github.com/quillon/ruleflow/internal/store"
)

// Options bundles the engine's collaborators.
type Options struct {
	Rules    store.RuleStore
	Logs     store.LogStore
	Registry *action.Registry
	Records  record.Store
	Schema   *record.Schema
}

// Engine consumes evaluation jobs from a bounded queue. Producers (the
// trigger dispatcher and the scheduler) persist each job's pending log row
// before calling Submit.
type Engine struct {
	pool   *workerPool[*Job, struct{}]
	worker *worker
	conf   config.EngineConf
	logs   store.LogStore
	closed atomic.Bool
}

// New creates an Engine and starts its worker pool.
func New(ctx context.Context, conf config.EngineConf, opts Options) *Engine {
	w := &worker{
		rules:    opts.Rules,
		logs:     opts.Logs,
		registry: opts.Registry,
		records:  opts.Records,
		schema:   opts.Schema,
		conf:     conf,
	}
	e := &Engine{worker: w, conf: conf, logs: opts.Logs}
	w.retry = func(job *Job, delay time.Duration) {
		time.AfterFunc(delay, func() { e.Submit(job) })
	}
	e.pool = newWorkerPool[*Job, struct{}](ctx, conf.Workers, conf.QueueDepth,
		func(ctx context.Context, j *Job) (struct{}, error) {
			w.process(ctx, j)
			return struct{}{}, nil
		})
	return e
}

// Submit enqueues a job without blocking. Returns false when the queue is
// full or the engine is shut down; the persisted pending row is then picked
// up by the next Recover.
func (e *Engine) Submit(job *Job) bool {
	if e.closed.Load() || !e.pool.Submit(job) {
		metrics.JobsDropped.Inc()
		return false
	}
	metrics.JobsEnqueued.WithLabelValues(string(job.TriggerKind)).Inc()
	metrics.QueueUtilization.Set(e.QueueUtilization())
	return true
}

// Recover re-enqueues jobs whose log rows are still pending, bridging the
// durable queue across restarts.
func (e *Engine) Recover(ctx context.Context) (int, error) {
	pending, err := e.logs.Pending(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for i := range pending {
		if e.Submit(jobFromLog(&pending[i])) {
			n++
		}
	}
	if n > 0 {
		logger.Info("recovered pending jobs", zap.Int("count", n))
	}
	return n, nil
}

// QueueUtilization returns queue used / capacity (0–1).
func (e *Engine) QueueUtilization() float64 {
	if e.pool.QueueCap() == 0 {
		return 0
	}
	return float64(e.pool.QueueLen()) / float64(e.pool.QueueCap())
}

// Shutdown drains the pool gracefully. In-flight jobs run to completion.
func (e *Engine) Shutdown() {
	if e.closed.CompareAndSwap(false, true) {
		e.pool.Drain()
	}
}
