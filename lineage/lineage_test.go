package lineage

import (
	"strings"
	"testing"
)

func TestNewID_HasPrefixAndIsUnique(t *testing.T) {
	a := NewID("row")
	b := NewID("row")

	if !strings.HasPrefix(a, "row_") {
		t.Errorf("NewID() = %q, want row_ prefix", a)
	}
	if a == b {
		t.Errorf("NewID() produced duplicate ids: %q", a)
	}
}

func TestNewRow_GeneratesID(t *testing.T) {
	row := NewRow("run_1", "node_1", 0, "deadbeef")
	if row.RowID == "" {
		t.Fatal("RowID not set")
	}
	if row.RunID != "run_1" {
		t.Errorf("RunID = %q, want run_1", row.RunID)
	}
}

func TestToken_Advance_PreservesLineagePreservesIncrementsStep(t *testing.T) {
	tok := NewToken("row_1")
	tok.ForkGroupID = "fg_1"

	next := tok.Advance()
	if next.TokenID == tok.TokenID {
		t.Error("Advance() should mint a new TokenID")
	}
	if next.StepInPipeline != tok.StepInPipeline+1 {
		t.Errorf("StepInPipeline = %d, want %d", next.StepInPipeline, tok.StepInPipeline+1)
	}
	if next.ForkGroupID != "fg_1" {
		t.Errorf("ForkGroupID not preserved across Advance()")
	}
}

func TestOutcome_Terminal(t *testing.T) {
	terminal := []Outcome{OutcomeCompleted, OutcomeRouted, OutcomeCoalesced, OutcomeFailed, OutcomeQuarantined}
	nonTerminal := []Outcome{OutcomeForked, OutcomeExpanded, OutcomeConsumedInBatch, OutcomeBuffered}

	for _, o := range terminal {
		if !o.Terminal() {
			t.Errorf("%s.Terminal() = false, want true", o)
		}
	}
	for _, o := range nonTerminal {
		if o.Terminal() {
			t.Errorf("%s.Terminal() = true, want false", o)
		}
	}
}

func TestOutcomeContext_Validate(t *testing.T) {
	tests := []struct {
		name    string
		outcome Outcome
		ctx     OutcomeContext
		wantErr bool
	}{
		{"completed with sink", OutcomeCompleted, OutcomeContext{SinkName: "out"}, false},
		{"completed without sink", OutcomeCompleted, OutcomeContext{}, true},
		{"forked with group", OutcomeForked, OutcomeContext{ForkGroupID: "fg_1"}, false},
		{"forked without group", OutcomeForked, OutcomeContext{}, true},
		{"expanded with group", OutcomeExpanded, OutcomeContext{ExpandGroupID: "eg_1"}, false},
		{"coalesced needs sink and join", OutcomeCoalesced, OutcomeContext{SinkName: "out", JoinGroupID: "jg_1"}, false},
		{"coalesced missing join", OutcomeCoalesced, OutcomeContext{SinkName: "out"}, true},
		{"failed with error hash", OutcomeFailed, OutcomeContext{ErrorHash: "abc"}, false},
		{"quarantined without error hash", OutcomeQuarantined, OutcomeContext{}, true},
		{"buffered with batch", OutcomeBuffered, OutcomeContext{BatchID: "batch_1"}, false},
		{"consumed without batch", OutcomeConsumedInBatch, OutcomeContext{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ctx.Validate(tt.outcome)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
