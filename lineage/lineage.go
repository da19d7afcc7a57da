// Package lineage defines the Row/Token/Outcome value types that trace
// a piece of data through the DAG, and the RowResult/TransformResult
// types plugins use to report what happened to it.
package lineage

import (
	"time"

	"github.com/tachyon-beep/elspeth-sub008/errtax"
)

// Outcome is a token's fate at a particular join point. A row may carry
// multiple outcomes across its tokens.
type Outcome string

const (
	OutcomeCompleted       Outcome = "COMPLETED"
	OutcomeRouted          Outcome = "ROUTED"
	OutcomeCoalesced       Outcome = "COALESCED"
	OutcomeFailed          Outcome = "FAILED"
	OutcomeQuarantined     Outcome = "QUARANTINED"
	OutcomeForked          Outcome = "FORKED"
	OutcomeExpanded        Outcome = "EXPANDED"
	OutcomeConsumedInBatch Outcome = "CONSUMED_IN_BATCH"
	OutcomeBuffered        Outcome = "BUFFERED"
)

// Terminal reports whether an outcome ends a token's lineage (no
// further node states will reference it).
func (o Outcome) Terminal() bool {
	switch o {
	case OutcomeCompleted, OutcomeRouted, OutcomeCoalesced, OutcomeFailed, OutcomeQuarantined:
		return true
	default:
		return false
	}
}

// Row is an immutable ingress record owned by exactly one source node.
type Row struct {
	RowID          string
	RunID          string
	SourceNodeID   string
	RowIndex       int
	SourceDataHash string
	CreatedAt      time.Time
}

// NewRow constructs a Row with a freshly generated RowID.
func NewRow(runID, sourceNodeID string, rowIndex int, sourceDataHash string) *Row {
	return &Row{
		RowID:          NewID("row"),
		RunID:          runID,
		SourceNodeID:   sourceNodeID,
		RowIndex:       rowIndex,
		SourceDataHash: sourceDataHash,
		CreatedAt:      time.Now().UTC(),
	}
}

// Token traces "this copy of this row is currently in flight at some
// node". A row has one or more tokens; tokens fork/expand/coalesce
// during execution.
type Token struct {
	TokenID        string
	RowID          string
	BranchName     string // optional
	ForkGroupID    string // optional
	JoinGroupID    string // optional
	ExpandGroupID  string // optional
	StepInPipeline int
}

// NewToken constructs a root Token for row at step 0.
func NewToken(rowID string) *Token {
	return &Token{TokenID: NewID("tok"), RowID: rowID, StepInPipeline: 0}
}

// Advance derives a descendant token at the next pipeline step,
// preserving lineage fields not explicitly overridden.
func (t *Token) Advance() *Token {
	next := *t
	next.TokenID = NewID("tok")
	next.StepInPipeline = t.StepInPipeline + 1
	return &next
}

// OutcomeContext carries the fields required for a given Outcome, per
// invariant 4: COMPLETED/ROUTED/COALESCED require SinkName; FORKED
// requires ForkGroupID; EXPANDED requires ExpandGroupID; COALESCED also
// requires JoinGroupID; FAILED/QUARANTINED require ErrorHash;
// BUFFERED/CONSUMED_IN_BATCH require BatchID.
type OutcomeContext struct {
	SinkName      string
	ForkGroupID   string
	ExpandGroupID string
	JoinGroupID   string
	ErrorHash     string
	BatchID       string
}

// Validate enforces invariant 4 for the (outcome, context) pair. A
// violation here is a framework bug — the caller constructed an outcome
// without its required context — and crashes loudly rather than being
// silently recorded with missing data.
func (c OutcomeContext) Validate(outcome Outcome) error {
	missing := func(field string) error {
		return errtax.OrchestrationInvariant("outcome " + string(outcome) + " requires " + field)
	}

	switch outcome {
	case OutcomeCompleted, OutcomeRouted:
		if c.SinkName == "" {
			return missing("sink_name")
		}
	case OutcomeCoalesced:
		if c.SinkName == "" {
			return missing("sink_name")
		}
		if c.JoinGroupID == "" {
			return missing("join_group_id")
		}
	case OutcomeForked:
		if c.ForkGroupID == "" {
			return missing("fork_group_id")
		}
	case OutcomeExpanded:
		if c.ExpandGroupID == "" {
			return missing("expand_group_id")
		}
	case OutcomeFailed, OutcomeQuarantined:
		if c.ErrorHash == "" {
			return missing("error_hash")
		}
	case OutcomeBuffered, OutcomeConsumedInBatch:
		if c.BatchID == "" {
			return missing("batch_id")
		}
	default:
		return errtax.OrchestrationInvariant("unknown outcome " + string(outcome))
	}
	return nil
}

// RowResult is what a source or transform returns for a single row: the
// emitted row data under its schema contract, or a terminal
// outcome+context in place of emitted data. Exactly one of Data/Outcome
// is meaningful; ContractRef ties multi-row results from a single
// invocation to a shared contract instance (an invariant enforced by
// the engine, not by this type).
type RowResult struct {
	Data        map[string]any
	ContractRef any // *schema.Contract; kept as any to avoid an import cycle
	Outcome     Outcome
	Context     OutcomeContext
	Err         error
}

// TransformResult is the per-row outcome a transform plugin reports:
// either successful output data, or a non-retryable error routed to a
// configured destination.
type TransformResult struct {
	Data        map[string]any
	Error       error
	Destination string // "discard" or a sink name, set only when Error != nil
}
