// Package trust implements the three-tier trust boundary: helpers for
// quarantining Tier 3 (external, zero-trust) input, the Source/Sink
// contracts that sit at that boundary, and the typed artifact
// descriptors sinks report back to the DAG.
//
// Tier 2 values (post-source PipelineRow data) receive no coercion and
// no further validation here — the DAG contract validator is what
// catches a downstream consumer's unmet requirement. Tier 1 violations
// (framework invariants) are not this package's concern; they are
// raised directly via errtax.OrchestrationInvariant at the call site
// that detects them and are never quarantined.
package trust

import (
	"context"

	"github.com/tachyon-beep/elspeth-sub008/pluginctx"
)

// QuarantineRow records a Tier 3 parse/validation failure and signals
// that the row must never enter the pipeline. destination is "discard"
// or the name of a quarantine sink.
func QuarantineRow(ctx context.Context, pctx *pluginctx.Context, rowData any, err error, schemaMode, destination string) (string, error) {
	return pctx.RecordValidationError(ctx, rowData, err, schemaMode, destination)
}
