package engine

import (
	"context"
	"encoding/json"

	"github.com/tachyon-beep/elspeth-sub008/canonical"
	"github.com/tachyon-beep/elspeth-sub008/dag"
	"github.com/tachyon-beep/elspeth-sub008/errtax"
	"github.com/tachyon-beep/elspeth-sub008/landscape"
	"github.com/tachyon-beep/elspeth-sub008/lineage"
	"github.com/tachyon-beep/elspeth-sub008/pluginctx"
)

// BeginRun validates the DAG, opens a new run record, and registers
// every DAG node against it so later node_state rows have a node to
// reference.
func (e *Engine) BeginRun(ctx context.Context, configJSON string) error {
	validator := dag.NewContractValidator(e.graph, nil)
	if err := validator.Validate(); err != nil {
		return err
	}

	order, err := e.graph.ResolveOrder()
	if err != nil {
		return err
	}

	run, err := e.recorder.BeginRun(ctx, configJSON, canonical.Version, lineage.NewID("run"))
	if err != nil {
		return err
	}
	e.runID = run.RunID

	for ordinal, nodeID := range order {
		node := e.graph.Node(nodeID)
		cfgJSON, err := json.Marshal(node.Config)
		if err != nil {
			return errtax.Configuration("node config is not JSON-serializable").WithDetail("node_id", nodeID)
		}
		seq := ordinal
		if _, err := e.recorder.RegisterNode(ctx, landscape.Node{
			NodeID:           node.NodeID,
			RunID:            e.runID,
			PluginName:       node.PluginName,
			NodeType:         string(node.Kind),
			ConfigJSON:       string(cfgJSON),
			SchemaConfigJSON: "{}",
			SequenceOrdinal:  &seq,
		}); err != nil {
			return err
		}
	}
	return nil
}

// CompleteRun marks the current run terminal with status ("completed"
// or "failed").
func (e *Engine) CompleteRun(ctx context.Context, status string) error {
	if e.runID == "" {
		return errtax.OrchestrationInvariant("complete_run called before begin_run")
	}
	return e.recorder.CompleteRun(ctx, e.runID, status)
}

// RunResult summarizes one source row's trip through the pipeline,
// starting at sourceNodeID and following `continue`/gate-chosen edges
// until it reaches a sink or a terminal outcome.
type RunResult struct {
	RowIndex int
	Outcome  lineage.Outcome
	Err      error
}

// ProcessSourceRow drives one already-loaded row from sourceNodeID
// through the DAG's downstream chain of transforms and gates to the
// first sink it reaches, recording a node_state for each transform hop
// (gates and sinks get none). Aggregation nodes are not traversed: a
// row whose next node is not a transform, gate or sink ends with an
// unsupported-node-kind error, and Aggregate is never called.
func (e *Engine) ProcessSourceRow(ctx context.Context, sourceNodeID string, rowIndex int, row map[string]any, tok *lineage.Token) RunResult {
	currentNode := sourceNodeID
	currentData := row

	for {
		edges := e.outboundEdges(currentNode)
		next, _ := e.chooseNext(ctx, currentNode, currentData, tok, edges)
		if next == "" {
			return RunResult{RowIndex: rowIndex, Err: errtax.OrchestrationInvariant("no outbound edge selected from node " + currentNode)}
		}

		node := e.graph.Node(next)
		if node == nil {
			return RunResult{RowIndex: rowIndex, Err: errtax.OrchestrationInvariant("dag references unregistered node " + next)}
		}

		switch node.Kind {
		case dag.KindTransform:
			result, err := e.runTransform(ctx, next, currentData, tok)
			if err != nil {
				return RunResult{RowIndex: rowIndex, Err: err}
			}
			if result.Err != nil {
				return RunResult{RowIndex: rowIndex, Outcome: lineage.OutcomeFailed, Err: result.Err}
			}
			currentData = result.Data
			currentNode = next
		case dag.KindGate:
			currentNode = next // next loop iteration calls chooseNext again, now against this gate's own outbound edges
		case dag.KindSink:
			if err := e.runSink(ctx, next, currentData, tok); err != nil {
				return RunResult{RowIndex: rowIndex, Err: err}
			}
			return RunResult{RowIndex: rowIndex, Outcome: lineage.OutcomeCompleted}
		default:
			return RunResult{RowIndex: rowIndex, Err: errtax.OrchestrationInvariant("unsupported node kind mid-pipeline: " + string(node.Kind))}
		}
	}
}

func (e *Engine) outboundEdges(nodeID string) []dag.Edge {
	var out []dag.Edge
	for _, edge := range e.graph.Edges() {
		if edge.From == nodeID {
			out = append(out, edge)
		}
	}
	return out
}

// chooseNext picks the next node from currentNode's outbound edges: a
// Gate plugin selects a label, otherwise "continue" is the only
// expected label for a linear chain.
func (e *Engine) chooseNext(ctx context.Context, currentNode string, row map[string]any, tok *lineage.Token, edges []dag.Edge) (nextNode, label string) {
	node := e.graph.Node(currentNode)
	if node != nil && node.Kind == dag.KindGate {
		if gate, ok := e.registry.gate(currentNode); ok {
			pctx := e.newPluginContext(currentNode, node.PluginName, nil)
			pctx.Token = tok
			chosen, err := gate.Route(ctx, row, pctx)
			if err == nil {
				for _, edge := range edges {
					if edge.Label == chosen {
						return edge.To, chosen
					}
				}
			}
		}
	}
	for _, edge := range edges {
		if edge.Label == "continue" {
			return edge.To, "continue"
		}
	}
	if len(edges) > 0 {
		return edges[0].To, edges[0].Label
	}
	return "", ""
}

func (e *Engine) runTransform(ctx context.Context, nodeID string, row map[string]any, tok *lineage.Token) (lineage.RowResult, error) {
	transform, ok := e.registry.transform(nodeID)
	if !ok {
		return lineage.RowResult{}, errtax.New(errtax.CodeConfiguration, "no transform registered for node").WithDetail("node_id", nodeID)
	}
	node := e.graph.Node(nodeID)
	pctx := e.newPluginContext(nodeID, node.PluginName, nil)
	pctx.Token = tok

	state, err := e.recorder.BeginNodeState(ctx, tok.TokenID, nodeID, e.runID, tok.StepInPipeline, row)
	if err != nil {
		return lineage.RowResult{}, err
	}
	pctx.StateID = state.StateID

	result := transform.Process(ctx, row, pctx)

	status := "SUCCESS"
	if result.Err != nil {
		status = "ERROR"
	}
	if completeErr := e.recorder.CompleteNodeState(ctx, state.StateID, status, result.Data); completeErr != nil {
		return lineage.RowResult{}, completeErr
	}
	return result, nil
}

// ensureSinkStarted calls a sink's OnStart exactly once per run, the
// first time a row reaches it.
func (e *Engine) ensureSinkStarted(ctx context.Context, nodeID string, sink Sink, pctx *pluginctx.Context) error {
	e.startedSinksMu.Lock()
	started := e.startedSinks[nodeID]
	if !started {
		e.startedSinks[nodeID] = true
	}
	e.startedSinksMu.Unlock()
	if started {
		return nil
	}
	return sink.OnStart(ctx, pctx, nil)
}

func (e *Engine) runSink(ctx context.Context, nodeID string, row map[string]any, tok *lineage.Token) error {
	sink, ok := e.registry.sink(nodeID)
	if !ok {
		return errtax.New(errtax.CodeConfiguration, "no sink registered for node").WithDetail("node_id", nodeID)
	}
	node := e.graph.Node(nodeID)
	pctx := e.newPluginContext(nodeID, node.PluginName, nil)
	pctx.Token = tok

	if err := e.ensureSinkStarted(ctx, nodeID, sink, pctx); err != nil {
		return err
	}

	if err := sink.Write(ctx, pctx, []lineage.TransformResult{{Data: row}}, nil); err != nil {
		return err
	}

	_, err := e.recorder.RecordTokenOutcome(ctx, e.runID, tok.TokenID, lineage.OutcomeCompleted, lineage.OutcomeContext{SinkName: node.PluginName})
	return err
}
