package dag

import (
	"strings"
	"testing"

	"github.com/tachyon-beep/elspeth-sub008/schema"
)

func TestValidate_DetectsStructuralCycle(t *testing.T) {
	g := NewGraph()
	g.AddNode(&Node{NodeID: "a", Kind: KindTransform})
	g.AddNode(&Node{NodeID: "b", Kind: KindTransform})
	g.AddEdge(Edge{From: "a", To: "b", Label: "continue"})
	g.AddEdge(Edge{From: "b", To: "a", Label: "continue"})

	v := NewContractValidator(g, nil)
	if err := v.Validate(); err == nil {
		t.Fatal("expected cycle detection to fail validation")
	}
}

func TestValidate_RejectsDanglingEdge(t *testing.T) {
	g := NewGraph()
	g.AddNode(&Node{NodeID: "a", Kind: KindSource})
	g.AddEdge(Edge{From: "a", To: "ghost", Label: "continue"})

	v := NewContractValidator(g, nil)
	if err := v.Validate(); err == nil {
		t.Fatal("expected a dangling edge to fail validation")
	}
}

func TestValidate_SourceMustHaveNoInboundEdges(t *testing.T) {
	g := NewGraph()
	g.AddNode(&Node{NodeID: "a", Kind: KindTransform})
	g.AddNode(&Node{NodeID: "src", Kind: KindSource})
	g.AddEdge(Edge{From: "a", To: "src", Label: "continue"})

	v := NewContractValidator(g, nil)
	if err := v.Validate(); err == nil {
		t.Fatal("expected a source with an inbound edge to fail validation")
	}
}

func TestValidate_MissingRequiredFieldProducesNamedEdgeError(t *testing.T) {
	g := NewGraph()
	g.AddNode(&Node{NodeID: "src", Kind: KindSource, GuaranteedFields: []string{"id"}})
	g.AddNode(&Node{NodeID: "sink", Kind: KindSink, RequiredFields: []string{"id", "amount"}})
	g.AddEdge(Edge{From: "src", To: "sink", Label: "continue"})

	v := NewContractValidator(g, nil)
	err := v.Validate()
	if err == nil {
		t.Fatal("expected a missing-field contract violation")
	}
	if !strings.Contains(err.Error(), "src") || !strings.Contains(err.Error(), "sink") || !strings.Contains(err.Error(), "amount") {
		t.Errorf("error %q does not name the edge and missing field", err.Error())
	}
}

func TestValidate_SatisfiedContractPasses(t *testing.T) {
	g := NewGraph()
	g.AddNode(&Node{NodeID: "src", Kind: KindSource, GuaranteedFields: []string{"id", "amount"}})
	g.AddNode(&Node{NodeID: "sink", Kind: KindSink, RequiredFields: []string{"id"}})
	g.AddEdge(Edge{From: "src", To: "sink", Label: "continue"})

	v := NewContractValidator(g, nil)
	if err := v.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate_GatePassesThroughUpstreamGuarantees(t *testing.T) {
	g := NewGraph()
	g.AddNode(&Node{NodeID: "src", Kind: KindSource, GuaranteedFields: []string{"id"}})
	g.AddNode(&Node{NodeID: "gate", Kind: KindGate})
	g.AddNode(&Node{NodeID: "sink", Kind: KindSink, RequiredFields: []string{"id"}})
	g.AddEdge(Edge{From: "src", To: "gate", Label: "continue"})
	g.AddEdge(Edge{From: "gate", To: "sink", Label: "continue"})

	v := NewContractValidator(g, nil)
	if err := v.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate_GateWithoutExactlyOneInboundFails(t *testing.T) {
	g := NewGraph()
	g.AddNode(&Node{NodeID: "a", Kind: KindSource, GuaranteedFields: []string{"id"}})
	g.AddNode(&Node{NodeID: "b", Kind: KindSource, GuaranteedFields: []string{"id"}})
	g.AddNode(&Node{NodeID: "gate", Kind: KindGate})
	g.AddEdge(Edge{From: "a", To: "gate", Label: "merge"})
	g.AddEdge(Edge{From: "b", To: "gate", Label: "merge"})

	v := NewContractValidator(g, nil)
	if err := v.Validate(); err == nil {
		t.Fatal("expected a gate with two inbound edges to fail structural validation")
	}
}

func TestValidate_CoalesceIntersectionDropsFieldsNotSharedByAllBranches(t *testing.T) {
	g := NewGraph()
	g.AddNode(&Node{NodeID: "a", Kind: KindTransform, GuaranteedFields: []string{"id", "amount"}})
	g.AddNode(&Node{NodeID: "b", Kind: KindTransform, GuaranteedFields: []string{"id"}})
	g.AddNode(&Node{NodeID: "join", Kind: KindAggregation})
	g.AddNode(&Node{NodeID: "sink", Kind: KindSink, RequiredFields: []string{"amount"}})
	g.AddEdge(Edge{From: "a", To: "join", Label: "merge"})
	g.AddEdge(Edge{From: "b", To: "join", Label: "merge"})
	g.AddEdge(Edge{From: "join", To: "sink", Label: "continue"})

	v := NewContractValidator(g, nil)
	err := v.Validate()
	if err == nil {
		t.Fatal("expected the coalesce intersection to drop 'amount', failing the downstream requirement")
	}
}

func TestValidate_TransitiveFieldDropCausesDownstreamFailure(t *testing.T) {
	g := NewGraph()
	g.AddNode(&Node{NodeID: "src", Kind: KindSource, GuaranteedFields: []string{"id", "amount"}})
	// xform drops "amount" by declaring a narrower guarantee set.
	g.AddNode(&Node{NodeID: "xform", Kind: KindTransform, GuaranteedFields: []string{"id"}})
	g.AddNode(&Node{NodeID: "sink", Kind: KindSink, RequiredFields: []string{"amount"}})
	g.AddEdge(Edge{From: "src", To: "xform", Label: "continue"})
	g.AddEdge(Edge{From: "xform", To: "sink", Label: "continue"})

	v := NewContractValidator(g, nil)
	if err := v.Validate(); err == nil {
		t.Fatal("expected the dropped field to fail validation at the xform->sink edge, not src->xform")
	}
}

func TestValidate_UsesSchemaContractWhenNoExplicitGuarantees(t *testing.T) {
	contract := schema.NewFixed([]schema.FieldContract{
		{NormalizedName: "id", OriginalName: "id", Type: "string"},
	})

	g := NewGraph()
	g.AddNode(&Node{NodeID: "src", Kind: KindSource})
	g.AddNode(&Node{NodeID: "sink", Kind: KindSink, RequiredFields: []string{"id"}})
	g.AddEdge(Edge{From: "src", To: "sink", Label: "continue"})

	contracts := map[string]ContractInfo{
		"src": {Contract: contract},
	}
	v := NewContractValidator(g, contracts)
	if err := v.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}
