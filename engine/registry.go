package engine

import (
	"sort"
	"sync"

	"github.com/tachyon-beep/elspeth-sub008/dag"
	"github.com/tachyon-beep/elspeth-sub008/errtax"
)

// Registry holds every plugin instance registered against a node ID,
// keyed separately by kind so the Engine facade can expose one typed
// accessor per kind without a type switch at call sites.
type Registry struct {
	mu sync.RWMutex

	sources      map[string]Source
	transforms   map[string]Transform
	gates        map[string]Gate
	aggregations map[string]Aggregation
	sinks        map[string]Sink
}

func newRegistry() *Registry {
	return &Registry{
		sources:      make(map[string]Source),
		transforms:   make(map[string]Transform),
		gates:        make(map[string]Gate),
		aggregations: make(map[string]Aggregation),
		sinks:        make(map[string]Sink),
	}
}

func (r *Registry) registerSource(nodeID string, s Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[nodeID] = s
}

func (r *Registry) registerTransform(nodeID string, t Transform) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transforms[nodeID] = t
}

func (r *Registry) registerGate(nodeID string, g Gate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gates[nodeID] = g
}

func (r *Registry) registerAggregation(nodeID string, a Aggregation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aggregations[nodeID] = a
}

func (r *Registry) registerSink(nodeID string, s Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[nodeID] = s
}

func (r *Registry) source(nodeID string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[nodeID]
	return s, ok
}

func (r *Registry) transform(nodeID string) (Transform, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transforms[nodeID]
	return t, ok
}

func (r *Registry) gate(nodeID string) (Gate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.gates[nodeID]
	return g, ok
}

func (r *Registry) aggregation(nodeID string) (Aggregation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.aggregations[nodeID]
	return a, ok
}

func (r *Registry) sink(nodeID string) (Sink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sinks[nodeID]
	return s, ok
}

// sourceNodeIDs returns every registered source's node ID, sorted.
func (r *Registry) sourceNodeIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sources))
	for id := range r.sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RegisterNode attaches a plugin instance to a DAG node by kind. The
// plugin's concrete type must satisfy the interface matching node.Kind
// or this returns a configuration error.
func (e *Engine) RegisterNode(node *dag.Node, plugin any) error {
	if err := e.graph.AddNode(node); err != nil {
		return err
	}

	switch node.Kind {
	case dag.KindSource:
		s, ok := plugin.(Source)
		if !ok {
			return errtax.New(errtax.CodeConfiguration, "plugin for source node does not implement Source").WithDetail("node_id", node.NodeID)
		}
		e.registry.registerSource(node.NodeID, s)
	case dag.KindTransform:
		t, ok := plugin.(Transform)
		if !ok {
			return errtax.New(errtax.CodeConfiguration, "plugin for transform node does not implement Transform").WithDetail("node_id", node.NodeID)
		}
		e.registry.registerTransform(node.NodeID, t)
	case dag.KindGate:
		g, ok := plugin.(Gate)
		if !ok {
			return errtax.New(errtax.CodeConfiguration, "plugin for gate node does not implement Gate").WithDetail("node_id", node.NodeID)
		}
		e.registry.registerGate(node.NodeID, g)
	case dag.KindAggregation:
		a, ok := plugin.(Aggregation)
		if !ok {
			return errtax.New(errtax.CodeConfiguration, "plugin for aggregation node does not implement Aggregation").WithDetail("node_id", node.NodeID)
		}
		e.registry.registerAggregation(node.NodeID, a)
	case dag.KindSink:
		s, ok := plugin.(Sink)
		if !ok {
			return errtax.New(errtax.CodeConfiguration, "plugin for sink node does not implement Sink").WithDetail("node_id", node.NodeID)
		}
		e.registry.registerSink(node.NodeID, s)
	default:
		return errtax.New(errtax.CodeConfiguration, "unknown node kind").WithDetail("node_id", node.NodeID)
	}
	return nil
}

// Sources returns every node ID registered as a Source.
func (e *Engine) Sources() []string { return e.registry.sourceNodeIDs() }
