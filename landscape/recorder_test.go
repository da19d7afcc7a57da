package landscape

import (
	"testing"

	"github.com/tachyon-beep/elspeth-sub008/lineage"
)

func TestBeginRun_GeneratesIDAndDefaultsStatus(t *testing.T) {
	rec, ctx := newTestRecorder(t)

	run, err := rec.BeginRun(ctx, `{"pipeline":"demo"}`, "elspeth-canonical-v1", "")
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	if run.RunID == "" {
		t.Fatal("expected generated run_id")
	}
	if run.Status != "running" {
		t.Errorf("Status = %q, want running", run.Status)
	}
}

func TestRegisterNode_RequiresRun(t *testing.T) {
	rec, ctx := newTestRecorder(t)

	_, err := rec.RegisterNode(ctx, Node{
		RunID:      "run_does_not_exist",
		PluginName: "csv_source",
		NodeType:   "SOURCE",
	})
	if err == nil {
		t.Fatal("expected FK violation registering node against a nonexistent run")
	}
}

func TestCreateRowAndToken_RoundTrip(t *testing.T) {
	rec, ctx := newTestRecorder(t)
	run, err := rec.BeginRun(ctx, "{}", "elspeth-canonical-v1", "")
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}

	row, err := rec.CreateRow(ctx, run.RunID, "node_src", 0, "hash123", "")
	if err != nil {
		t.Fatalf("CreateRow: %v", err)
	}

	tok, err := rec.CreateToken(ctx, row.RowID, TokenOpts{})
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	if tok.RowID != row.RowID {
		t.Errorf("Token.RowID = %q, want %q", tok.RowID, row.RowID)
	}
}

func TestForkToken_RecordsParentOutcomeAtomically(t *testing.T) {
	rec, ctx := newTestRecorder(t)
	run, _ := rec.BeginRun(ctx, "{}", "elspeth-canonical-v1", "")
	row, _ := rec.CreateRow(ctx, run.RunID, "node_src", 0, "hash123", "")
	parent, _ := rec.CreateToken(ctx, row.RowID, TokenOpts{})

	children, forkGroupID, err := rec.ForkToken(ctx, parent.TokenID, row.RowID, []string{"a", "b"}, run.RunID, 1)
	if err != nil {
		t.Fatalf("ForkToken: %v", err)
	}
	if len(children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(children))
	}
	if forkGroupID == "" {
		t.Fatal("expected non-empty fork_group_id")
	}

	outcome, err := rec.GetTokenOutcome(ctx, parent.TokenID)
	if err != nil {
		t.Fatalf("GetTokenOutcome: %v", err)
	}
	if outcome == nil {
		t.Fatal("expected parent outcome to be recorded")
	}
	if outcome.OutcomeKind != string(lineage.OutcomeForked) {
		t.Errorf("OutcomeKind = %q, want FORKED", outcome.OutcomeKind)
	}
}

func TestAllocateCallIndex_Monotonic(t *testing.T) {
	rec, ctx := newTestRecorder(t)
	run, _ := rec.BeginRun(ctx, "{}", "elspeth-canonical-v1", "")
	_, err := rec.RegisterNode(ctx, Node{RunID: run.RunID, NodeID: "node_1", PluginName: "x", NodeType: "TRANSFORM"})
	if err != nil {
		t.Fatalf("RegisterNode: %v", err)
	}
	row, _ := rec.CreateRow(ctx, run.RunID, "node_1", 0, "hash", "")
	tok, _ := rec.CreateToken(ctx, row.RowID, TokenOpts{})
	state, err := rec.BeginNodeState(ctx, tok.TokenID, "node_1", run.RunID, 0, map[string]any{"id": 1.0})
	if err != nil {
		t.Fatalf("BeginNodeState: %v", err)
	}

	first, err := rec.AllocateCallIndex(ctx, state.StateID)
	if err != nil {
		t.Fatalf("AllocateCallIndex: %v", err)
	}
	second, err := rec.AllocateCallIndex(ctx, state.StateID)
	if err != nil {
		t.Fatalf("AllocateCallIndex: %v", err)
	}
	if first != 0 || second != 1 {
		t.Errorf("AllocateCallIndex sequence = %d,%d, want 0,1", first, second)
	}
}

func TestRecordTokenOutcome_RejectsMissingContext(t *testing.T) {
	rec, ctx := newTestRecorder(t)
	run, _ := rec.BeginRun(ctx, "{}", "elspeth-canonical-v1", "")
	row, _ := rec.CreateRow(ctx, run.RunID, "node_1", 0, "hash", "")
	tok, _ := rec.CreateToken(ctx, row.RowID, TokenOpts{})

	_, err := rec.RecordTokenOutcome(ctx, run.RunID, tok.TokenID, lineage.OutcomeCompleted, lineage.OutcomeContext{})
	if err == nil {
		t.Fatal("expected invariant violation for COMPLETED outcome without sink_name")
	}
}

func TestFindCallByRequestHash_ScopedToRun(t *testing.T) {
	rec, ctx := newTestRecorder(t)
	run, _ := rec.BeginRun(ctx, "{}", "elspeth-canonical-v1", "")
	_, _ = rec.RegisterNode(ctx, Node{RunID: run.RunID, NodeID: "node_1", PluginName: "x", NodeType: "TRANSFORM"})
	row, _ := rec.CreateRow(ctx, run.RunID, "node_1", 0, "hash", "")
	tok, _ := rec.CreateToken(ctx, row.RowID, TokenOpts{})
	state, _ := rec.BeginNodeState(ctx, tok.TokenID, "node_1", run.RunID, 0, map[string]any{})

	idx, _ := rec.AllocateCallIndex(ctx, state.StateID)
	call, err := rec.RecordCall(ctx, RecordCallParams{
		StateID:     state.StateID,
		CallIndex:   idx,
		CallType:    "HTTP",
		Status:      "SUCCESS",
		RequestData: map[string]any{"url": "https://example.com"},
	})
	if err != nil {
		t.Fatalf("RecordCall: %v", err)
	}

	found, err := rec.FindCallByRequestHash(ctx, "run_other", "HTTP", call.RequestHash)
	if err != nil {
		t.Fatalf("FindCallByRequestHash: %v", err)
	}
	if found != nil {
		t.Error("expected no match for a different run_id")
	}
}
