package dag

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tachyon-beep/elspeth-sub008/errtax"
	"github.com/tachyon-beep/elspeth-sub008/schema"
)

// ContractInfo is a node's schema-contract state at validation time,
// supplied by the engine once a node has run far enough to know it
// (for OBSERVED nodes this may be a contract locked during a dry run,
// or nil if truly unknown).
type ContractInfo struct {
	Config   schema.Config
	Contract *schema.Contract // nil if not yet known
}

// ContractValidator runs the pre-execution structural and contract
// compatibility checks described in spec.md §4.12.
type ContractValidator struct {
	graph     *Graph
	contracts map[string]ContractInfo
}

// NewContractValidator constructs a validator over graph, with per-node
// contract info supplied by the caller (the engine, which knows each
// plugin's declared config and, where available, its locked contract).
func NewContractValidator(graph *Graph, contracts map[string]ContractInfo) *ContractValidator {
	return &ContractValidator{graph: graph, contracts: contracts}
}

// Validate runs structural validation followed by contract
// compatibility validation, in that order — structural errors take
// priority since a malformed graph makes contract checks meaningless.
func (v *ContractValidator) Validate() error {
	if err := v.validateStructure(); err != nil {
		return err
	}
	return v.validateContracts()
}

func (v *ContractValidator) validateStructure() error {
	if _, err := v.graph.ResolveOrder(); err != nil {
		return err
	}

	for _, e := range v.graph.Edges() {
		if v.graph.Node(e.From) == nil {
			return errtax.New(errtax.CodeConfiguration, "dag edge references unknown source node").WithDetail("node_id", e.From)
		}
		if v.graph.Node(e.To) == nil {
			return errtax.New(errtax.CodeConfiguration, "dag edge references unknown destination node").WithDetail("node_id", e.To)
		}
	}

	for _, id := range v.graph.NodeIDs() {
		node := v.graph.Node(id)
		inbound := v.graph.inboundExported(id)
		switch node.Kind {
		case KindSource:
			if len(inbound) != 0 {
				return errtax.New(errtax.CodeConfiguration, "source node must have no inbound edges").WithDetail("node_id", id)
			}
		case KindGate:
			if len(inbound) != 1 {
				return errtax.New(errtax.CodeConfiguration, "gate node must have exactly one inbound edge").WithDetail("node_id", id)
			}
		}
	}

	return nil
}

// inboundExported returns Graph's inbound edges for nodeID. Despite its
// name it is unexported, so only code inside package dag can call it.
func (g *Graph) inboundExported(nodeID string) []Edge {
	return g.inbound(nodeID)
}

// validateContracts checks, for every edge, that the producer's
// effective guarantees are a superset of the consumer's required
// fields. Checking is per-edge (not aggregated across a consumer's
// inbound edges) per spec.md §4.12 item 3; coalesce intersection
// semantics are already folded into a producer's own
// effectiveGuarantees when that producer is itself a merge point.
func (v *ContractValidator) validateContracts() error {
	for _, e := range v.graph.Edges() {
		consumer := v.graph.Node(e.To)
		producer := v.graph.Node(e.From)
		if consumer == nil || producer == nil {
			continue // already reported by validateStructure
		}

		required := v.requiredFields(consumer)
		if len(required) == 0 {
			continue
		}

		guarantees, err := v.effectiveGuarantees(producer.NodeID, producer)
		if err != nil {
			return err
		}

		var missing []string
		for _, field := range required {
			if _, ok := guarantees[field]; !ok {
				missing = append(missing, field)
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			fieldList := strings.Join(missing, ", ")
			return errtax.New(errtax.CodeSchemaContractViolation, fmt.Sprintf(
				"producer %s does not guarantee fields {%s} required by consumer %s",
				e.From, fieldList, e.To,
			)).WithDetail("producer", e.From).WithDetail("consumer", e.To).WithDetail("missing_fields", missing)
		}
	}
	return nil
}

// requiredFields resolves a node's required-input-fields per the
// authoritative-then-fallback rule: explicit RequiredFields wins; else
// schema.Config.RequiredFields.
func (v *ContractValidator) requiredFields(node *Node) []string {
	if len(node.RequiredFields) > 0 {
		return node.RequiredFields
	}
	if info, ok := v.contracts[node.NodeID]; ok {
		return info.Config.RequiredFields
	}
	return nil
}

// effectiveGuarantees computes the field set a node guarantees to its
// consumers, recursively resolving gate pass-through and coalesce
// intersection semantics.
func (v *ContractValidator) effectiveGuarantees(nodeID string, node *Node) (map[string]struct{}, error) {
	switch node.Kind {
	case KindGate:
		inbound := v.graph.inboundExported(nodeID)
		if len(inbound) != 1 {
			return nil, errtax.New(errtax.CodeConfiguration, "gate node must have exactly one inbound edge").WithDetail("node_id", nodeID)
		}
		upstream := v.graph.Node(inbound[0].From)
		return v.effectiveGuarantees(upstream.NodeID, upstream)
	}

	inbound := v.graph.inboundExported(nodeID)
	if isCoalesce(node, inbound) {
		return v.coalesceIntersection(inbound)
	}

	info, ok := v.contracts[nodeID]
	cfg := schema.Config{GuaranteedFields: node.GuaranteedFields}
	if ok {
		if len(node.GuaranteedFields) > 0 {
			cfg.GuaranteedFields = node.GuaranteedFields
		} else {
			cfg.GuaranteedFields = info.Config.GuaranteedFields
		}
		return schema.EffectiveGuarantees(&cfg, info.Contract), nil
	}
	return schema.EffectiveGuarantees(&cfg, nil), nil
}

// isCoalesce reports whether node is a join point fed by more than one
// inbound edge under a "merge" label — the coalesce case spec.md §4.12
// requires an intersection for, as opposed to an ordinary
// multiple-producer fan-in which is not this system's concept.
func isCoalesce(node *Node, inbound []Edge) bool {
	if len(inbound) < 2 {
		return false
	}
	for _, e := range inbound {
		if e.Label == "merge" {
			return true
		}
	}
	return false
}

func (v *ContractValidator) coalesceIntersection(inbound []Edge) (map[string]struct{}, error) {
	var intersection map[string]struct{}
	for _, e := range inbound {
		upstream := v.graph.Node(e.From)
		if upstream == nil {
			return nil, errtax.New(errtax.CodeConfiguration, "dag edge references unknown source node").WithDetail("node_id", e.From)
		}
		guarantees, err := v.effectiveGuarantees(upstream.NodeID, upstream)
		if err != nil {
			return nil, err
		}
		if intersection == nil {
			intersection = make(map[string]struct{}, len(guarantees))
			for f := range guarantees {
				intersection[f] = struct{}{}
			}
			continue
		}
		for f := range intersection {
			if _, ok := guarantees[f]; !ok {
				delete(intersection, f)
			}
		}
	}
	if intersection == nil {
		intersection = make(map[string]struct{})
	}
	return intersection, nil
}
