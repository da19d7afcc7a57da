// Package pluginctx defines the per-invocation context passed to every
// plugin call: identity (run/node/state/token), the landscape recorder
// and payload store, a telemetry emitter, and checkpoint storage for
// batch transforms resuming external jobs across runs.
package pluginctx

import (
	"context"
	"sync"

	"github.com/tachyon-beep/elspeth-sub008/errtax"
	"github.com/tachyon-beep/elspeth-sub008/landscape"
	"github.com/tachyon-beep/elspeth-sub008/lineage"
	"github.com/tachyon-beep/elspeth-sub008/ratelimit"
)

// Tracer starts/finishes spans for observability. The default
// implementation is a no-op; a real exporter can be wired in by
// callers without this package depending on any tracing SDK.
type Tracer interface {
	// StartSpan returns a derived context and a completion callback
	// that must be invoked with the final error (if any).
	StartSpan(ctx context.Context, name string, attributes map[string]any) (context.Context, func(error))
}

type noopTracer struct{}

func (noopTracer) StartSpan(ctx context.Context, _ string, _ map[string]any) (context.Context, func(error)) {
	return ctx, func(error) {}
}

// NoopTracer is the default tracer used when none is configured.
var NoopTracer Tracer = noopTracer{}

// TelemetryEvent is a snapshot emitted by telemetry_emit. TelemetryEmit
// copies the Attributes map and the TokenIDs slice, so adding, replacing
// or removing a top-level attribute afterwards does not change an
// already-emitted event; nested maps and slices inside Attributes are
// not copied and stay shared with the caller.
type TelemetryEvent struct {
	Kind       string // "run", "row", "source", "transform", "gate", "aggregation", "sink"
	PluginName string
	NodeID     string
	TokenIDs   []string // nil means "no tracking"; empty non-nil slice means an explicit empty batch
	BatchID    string
	InputHash  string
	Attributes map[string]any
}

// EventSink receives emitted telemetry events; nil is a valid no-op sink.
type EventSink func(TelemetryEvent)

// CheckpointStore persists small per-node checkpoint blobs so batch
// transforms can resume external batch jobs across runs.
type CheckpointStore interface {
	Get(ctx context.Context, nodeID string) (map[string]any, error)
	// Merge shallow-merges updates into the existing checkpoint (or
	// creates one) for nodeID.
	Merge(ctx context.Context, nodeID string, updates map[string]any) error
	Clear(ctx context.Context, nodeID string) error
}

// memCheckpointStore is an in-memory CheckpointStore used when no
// external persistence is wired; checkpoints do not outlive the process.
type memCheckpointStore struct {
	mu    sync.Mutex
	state map[string]map[string]any
}

// NewMemCheckpointStore constructs an in-memory CheckpointStore.
func NewMemCheckpointStore() CheckpointStore {
	return &memCheckpointStore{state: make(map[string]map[string]any)}
}

func (s *memCheckpointStore) Get(_ context.Context, nodeID string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.state[nodeID]
	if !ok {
		return nil, nil
	}
	out := make(map[string]any, len(cp))
	for k, v := range cp {
		out[k] = v
	}
	return out, nil
}

func (s *memCheckpointStore) Merge(_ context.Context, nodeID string, updates map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.state[nodeID]
	if !ok {
		cp = make(map[string]any)
		s.state[nodeID] = cp
	}
	for k, v := range updates {
		cp[k] = v
	}
	return nil
}

func (s *memCheckpointStore) Clear(_ context.Context, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.state, nodeID)
	return nil
}

// Context is the per-invocation bag passed to every plugin call.
type Context struct {
	RunID       string
	NodeID      string
	StateID     string
	OperationID string
	PluginName  string

	// Token is the current token for single-row invocations; mutated
	// in-place across rows when the engine batches the same Context.
	Token *lineage.Token
	// BatchTokenIDs carries the token IDs of a batched invocation so
	// batch-aware transforms can emit per-row telemetry with correct
	// token IDs. Nothing in this module sets it.
	BatchTokenIDs []string

	Landscape   *landscape.Recorder
	Payload     landscape.PayloadStore
	Tracer      Tracer
	RateLimits  *ratelimit.Registry
	Checkpoints CheckpointStore

	emit EventSink
}

// New constructs a plugin Context. emit may be nil, in which case
// telemetry_emit is a no-op.
func New(runID, nodeID, pluginName string, rec *landscape.Recorder, payload landscape.PayloadStore, emit EventSink) *Context {
	return &Context{
		RunID:       runID,
		NodeID:      nodeID,
		PluginName:  pluginName,
		Landscape:   rec,
		Payload:     payload,
		Tracer:      NoopTracer,
		Checkpoints: NewMemCheckpointStore(),
		emit:        emit,
	}
}

// TelemetryEmit snapshots event and dispatches it, copying its
// Attributes map one level deep (nested values stay shared) and its
// TokenIDs slice, so later top-level caller-side mutation does not
// change what was emitted. A nil emitter makes this a no-op.
func (c *Context) TelemetryEmit(event TelemetryEvent) {
	if c.emit == nil {
		return
	}
	snapshot := event
	if event.Attributes != nil {
		snapshot.Attributes = make(map[string]any, len(event.Attributes))
		for k, v := range event.Attributes {
			snapshot.Attributes[k] = v
		}
	}
	if event.TokenIDs != nil {
		snapshot.TokenIDs = append([]string(nil), event.TokenIDs...)
	}
	c.emit(snapshot)
}

// RecordValidationError delegates to the landscape recorder using this
// context's run/node identity.
func (c *Context) RecordValidationError(ctx context.Context, rowData any, err error, schemaMode, destination string) (string, error) {
	if c.Landscape == nil {
		return "", errtax.New(errtax.CodeConfiguration, "plugin context has no landscape recorder attached")
	}
	return c.Landscape.RecordValidationError(ctx, landscape.RecordValidationErrorParams{
		RunID:       c.RunID,
		NodeID:      c.NodeID,
		RowData:     rowData,
		Err:         err,
		SchemaMode:  schemaMode,
		Destination: destination,
	})
}

// RecordTransformError delegates to the landscape recorder using this
// context's run/token identity.
func (c *Context) RecordTransformError(ctx context.Context, rowData any, err error, destination string) (string, error) {
	if c.Landscape == nil {
		return "", errtax.New(errtax.CodeConfiguration, "plugin context has no landscape recorder attached")
	}
	tokenID := ""
	if c.Token != nil {
		tokenID = c.Token.TokenID
	}
	return c.Landscape.RecordTransformError(ctx, landscape.RecordTransformErrorParams{
		RunID:       c.RunID,
		TokenID:     tokenID,
		TransformID: c.NodeID,
		RowData:     rowData,
		Err:         err,
		Destination: destination,
	})
}

// GetCheckpoint returns the node's persisted checkpoint, or nil if
// none exists yet.
func (c *Context) GetCheckpoint(ctx context.Context) (map[string]any, error) {
	return c.Checkpoints.Get(ctx, c.NodeID)
}

// UpdateCheckpoint shallow-merges updates into the node's checkpoint.
func (c *Context) UpdateCheckpoint(ctx context.Context, updates map[string]any) error {
	return c.Checkpoints.Merge(ctx, c.NodeID, updates)
}

// ClearCheckpoint removes the node's checkpoint entirely.
func (c *Context) ClearCheckpoint(ctx context.Context) error {
	return c.Checkpoints.Clear(ctx, c.NodeID)
}
