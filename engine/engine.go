package engine

import (
	"sync"

	"github.com/tachyon-beep/elspeth-sub008/dag"
	"github.com/tachyon-beep/elspeth-sub008/landscape"
	"github.com/tachyon-beep/elspeth-sub008/logging"
	"github.com/tachyon-beep/elspeth-sub008/pluginctx"
	"github.com/tachyon-beep/elspeth-sub008/ratelimit"
)

// Engine is the facade composing the DAG, the landscape recorder, and
// the registered node plugins into a single runnable pipeline.
type Engine struct {
	graph      *dag.Graph
	registry   *Registry
	recorder   *landscape.Recorder
	payload    landscape.PayloadStore
	rateLimits *ratelimit.Registry
	log        *logging.Logger

	runID string

	startedSinksMu sync.Mutex
	startedSinks   map[string]bool
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithPayloadStore attaches a payload store used for call request/response blobs.
func WithPayloadStore(p landscape.PayloadStore) Option {
	return func(e *Engine) { e.payload = p }
}

// WithRateLimits attaches a shared named rate-limit registry.
func WithRateLimits(r *ratelimit.Registry) Option {
	return func(e *Engine) { e.rateLimits = r }
}

// WithLogger overrides the engine's logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// New constructs an empty Engine over recorder.
func New(recorder *landscape.Recorder, opts ...Option) *Engine {
	e := &Engine{
		graph:        dag.NewGraph(),
		registry:     newRegistry(),
		recorder:     recorder,
		log:          logging.Default(),
		startedSinks: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Graph returns the underlying DAG for advanced use (validator construction, introspection).
func (e *Engine) Graph() *dag.Graph { return e.graph }

// Recorder returns the underlying landscape recorder.
func (e *Engine) Recorder() *landscape.Recorder { return e.recorder }

// RunID returns the current run's ID, set by BeginRun.
func (e *Engine) RunID() string { return e.runID }

// newPluginContext builds a per-node plugin context sharing this
// engine's recorder, payload store, and rate-limit registry.
func (e *Engine) newPluginContext(nodeID, pluginName string, emit pluginctx.EventSink) *pluginctx.Context {
	pctx := pluginctx.New(e.runID, nodeID, pluginName, e.recorder, e.payload, emit)
	pctx.RateLimits = e.rateLimits
	return pctx
}
