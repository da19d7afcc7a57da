package engine

import (
	"context"
	"testing"

	"github.com/tachyon-beep/elspeth-sub008/dag"
	"github.com/tachyon-beep/elspeth-sub008/pluginctx"
	"github.com/tachyon-beep/elspeth-sub008/trust"
)

type fakeSource struct{}

func (fakeSource) Load(ctx context.Context, pctx *pluginctx.Context) (<-chan trust.LoadResult, error) {
	return nil, nil
}

func TestRegisterNode_AcceptsMatchingPluginKind(t *testing.T) {
	e := New(nil)
	err := e.RegisterNode(&dag.Node{NodeID: "src", Kind: dag.KindSource}, fakeSource{})
	if err != nil {
		t.Fatalf("RegisterNode: %v", err)
	}
	if got := e.Sources(); len(got) != 1 || got[0] != "src" {
		t.Errorf("Sources() = %v, want [src]", got)
	}
}

func TestRegisterNode_RejectsMismatchedPluginKind(t *testing.T) {
	e := New(nil)
	err := e.RegisterNode(&dag.Node{NodeID: "src", Kind: dag.KindSource}, struct{}{})
	if err == nil {
		t.Fatal("expected an error for a plugin not implementing Source")
	}
}

func TestRegisterNode_RejectsUnknownKind(t *testing.T) {
	e := New(nil)
	err := e.RegisterNode(&dag.Node{NodeID: "mystery", Kind: dag.NodeKind("bogus")}, fakeSource{})
	if err == nil {
		t.Fatal("expected an error for an unknown node kind")
	}
}

func TestRegisterNode_PropagatesDuplicateNodeIDError(t *testing.T) {
	e := New(nil)
	if err := e.RegisterNode(&dag.Node{NodeID: "src", Kind: dag.KindSource}, fakeSource{}); err != nil {
		t.Fatalf("first RegisterNode: %v", err)
	}
	err := e.RegisterNode(&dag.Node{NodeID: "src", Kind: dag.KindSource}, fakeSource{})
	if err == nil {
		t.Fatal("expected an error registering a duplicate node ID")
	}
}
