// Package dag implements the pipeline's typed graph and the
// pre-execution validator: structural checks (cycles, dangling edges,
// degree constraints) and per-edge schema contract compatibility.
package dag

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tachyon-beep/elspeth-sub008/errtax"
)

// NodeKind distinguishes the five plugin roles the engine dispatches
// against, mirroring the teacher's one-typed-accessor-per-kind idiom
// rather than a single fat interface with optional methods.
type NodeKind string

const (
	KindSource      NodeKind = "source"
	KindTransform   NodeKind = "transform"
	KindGate        NodeKind = "gate"
	KindAggregation NodeKind = "aggregation"
	KindSink        NodeKind = "sink"
)

// Node is one vertex of the pipeline graph.
type Node struct {
	NodeID     string
	Kind       NodeKind
	PluginName string
	Config     map[string]any

	// GuaranteedFields is the config-declared guarantee set, consulted
	// by EffectiveGuarantees alongside the node's locked schema
	// contract (passed in separately at validation time, since the
	// contract is only known once the plugin has run for OBSERVED
	// mode).
	GuaranteedFields []string
	RequiredFields   []string
}

// Edge is a directed edge between two node IDs, labeled to distinguish
// outcome routing ("continue", a named branch, "merge", a sink name).
type Edge struct {
	From  string
	To    string
	Label string
}

// Graph is the full typed pipeline graph.
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	edges []Edge
}

// NewGraph constructs an empty Graph.
func NewGraph() *Graph {
	return &Graph{nodes: make(map[string]*Node)}
}

// AddNode registers node, keyed by its NodeID.
func (g *Graph) AddNode(n *Node) error {
	if n == nil || strings.TrimSpace(n.NodeID) == "" {
		return errtax.OrchestrationInvariant("dag node requires a non-empty node_id")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.nodes[n.NodeID]; exists {
		return errtax.New(errtax.CodeConfiguration, "duplicate node_id").WithDetail("node_id", n.NodeID)
	}
	g.nodes[n.NodeID] = n
	return nil
}

// AddEdge registers a directed edge.
func (g *Graph) AddEdge(e Edge) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.edges = append(g.edges, e)
}

// Node returns the node registered under id, or nil.
func (g *Graph) Node(id string) *Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[id]
}

// Edges returns a copy of the registered edges.
func (g *Graph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]Edge(nil), g.edges...)
}

// NodeIDs returns every registered node ID, in insertion-independent
// sorted order for deterministic iteration.
func (g *Graph) NodeIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// inbound returns the edges terminating at nodeID.
func (g *Graph) inbound(nodeID string) []Edge {
	var out []Edge
	for _, e := range g.edges {
		if e.To == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// ResolveOrder returns a topological ordering of the graph's nodes.
// Uses the no-progress-means-cycle technique: repeatedly peel off nodes
// whose dependencies are all resolved; if a full pass makes no
// progress, the remainder is a cycle. Edges whose source node is not
// registered are ignored when building dependencies.
func (g *Graph) ResolveOrder() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	deps := make(map[string]map[string]struct{}, len(g.nodes))
	for id := range g.nodes {
		deps[id] = make(map[string]struct{})
	}
	for _, e := range g.edges {
		if _, ok := deps[e.To]; ok {
			if _, srcExists := g.nodes[e.From]; srcExists {
				deps[e.To][e.From] = struct{}{}
			}
		}
	}

	names := g.NodeIDs()
	resolved := make([]string, 0, len(names))
	done := make(map[string]bool, len(names))

	for len(resolved) < len(names) {
		progressed := false
		for _, name := range names {
			if done[name] {
				continue
			}
			waiting := false
			for dep := range deps[name] {
				if !done[dep] {
					waiting = true
					break
				}
			}
			if waiting {
				continue
			}
			resolved = append(resolved, name)
			done[name] = true
			progressed = true
		}
		if !progressed {
			var unresolved []string
			for _, name := range names {
				if !done[name] {
					unresolved = append(unresolved, name)
				}
			}
			sort.Strings(unresolved)
			return nil, errtax.OrchestrationInvariant(fmt.Sprintf("dependency cycle among nodes: %v", unresolved))
		}
	}
	return resolved, nil
}
