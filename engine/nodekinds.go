// Package engine wires the DAG, the landscape recorder, and the node
// plugins together into a runnable pipeline: one small interface per
// node kind (mirroring the teacher's AccountEngines()/StoreEngines()
// idiom) rather than a single fat interface with optional methods.
package engine

import (
	"context"

	"github.com/tachyon-beep/elspeth-sub008/lineage"
	"github.com/tachyon-beep/elspeth-sub008/pluginctx"
	"github.com/tachyon-beep/elspeth-sub008/trust"
)

// Source produces rows at the head of a pipeline. Load is finite and
// not restartable within a run.
type Source interface {
	Load(ctx context.Context, pctx *pluginctx.Context) (<-chan trust.LoadResult, error)
}

// Transform maps one row to one RowResult (emitted data, or a terminal
// outcome in its place).
type Transform interface {
	Process(ctx context.Context, row map[string]any, pctx *pluginctx.Context) lineage.RowResult
}

// Gate routes a row to exactly one of its outbound edge labels without
// altering its data.
type Gate interface {
	Route(ctx context.Context, row map[string]any, pctx *pluginctx.Context) (label string, err error)
}

// Aggregation consumes a batch of rows sharing a join point and
// produces zero or more output rows.
type Aggregation interface {
	Aggregate(ctx context.Context, rows []map[string]any, pctx *pluginctx.Context) ([]lineage.RowResult, error)
}

// Sink is an alias for trust.Sink, kept local so engine callers only
// need to import one package for the full node-kind set.
type Sink = trust.Sink
