package landscape

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tachyon-beep/elspeth-sub008/canonical"
	"github.com/tachyon-beep/elspeth-sub008/errtax"
	"github.com/tachyon-beep/elspeth-sub008/lineage"
)

// BeginNodeState records the start of one node execution for one token.
func (r *Recorder) BeginNodeState(ctx context.Context, tokenID, nodeID, runID string, stepIndex int, inputData any) (*NodeState, error) {
	inputJSON, err := canonical.JSON(inputData)
	if err != nil {
		// Input payloads that fail canonical encoding (e.g. contain NaN)
		// still need an audit trail; fall back to a best-effort repr.
		inputJSON = reprFallback(inputData)
	}

	state := &NodeState{
		StateID:       lineage.NewID("st"),
		TokenID:       tokenID,
		NodeID:        nodeID,
		RunID:         runID,
		StepIndex:     stepIndex,
		InputDataJSON: inputJSON,
		Status:        "running",
		StartedAt:     time.Now().UTC(),
	}

	_, err = r.DB.ExecContext(ctx, `
		INSERT INTO node_states (state_id, token_id, node_id, run_id, step_index, input_data_json, status, next_call_index, started_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,0,$8)
	`, state.StateID, state.TokenID, state.NodeID, state.RunID, state.StepIndex, state.InputDataJSON, state.Status, state.StartedAt)
	if err != nil {
		return nil, errtax.Wrap(errtax.CodeConfiguration, "begin_node_state failed", err)
	}
	return state, nil
}

// CompleteNodeState marks a node state's terminal status and output.
func (r *Recorder) CompleteNodeState(ctx context.Context, stateID, status string, outputData any) error {
	outputJSON, err := canonical.JSON(outputData)
	if err != nil {
		outputJSON = reprFallback(outputData)
	}
	now := time.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE node_states SET status = $1, output_data_json = $2, completed_at = $3 WHERE state_id = $4
	`, status, outputJSON, now, stateID)
	if err != nil {
		return errtax.Wrap(errtax.CodeConfiguration, "complete_node_state failed", err)
	}
	return checkRowsAffected(res, "node_state", stateID)
}

// AllocateCallIndex atomically allocates the next monotonic call_index
// for stateID via a single UPDATE...RETURNING, avoiding a separate
// sequence table or an explicit SERIALIZABLE round trip.
func (r *Recorder) AllocateCallIndex(ctx context.Context, stateID string) (int, error) {
	var idx int
	err := r.DB.QueryRowContext(ctx, `
		UPDATE node_states SET next_call_index = next_call_index + 1
		WHERE state_id = $1
		RETURNING next_call_index - 1
	`, stateID).Scan(&idx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, errtax.New(errtax.CodeConfiguration, "node state not found").WithDetail("state_id", stateID)
		}
		return 0, errtax.Wrap(errtax.CodeConfiguration, "allocate_call_index failed", err)
	}
	return idx, nil
}

// RecordCall records one external call performed inside a node state.
// When a payload store is configured and no explicit ref was given, a
// request or response payload passed as []byte is stored and its ref
// recorded; payloads of any other type are hashed but not stored.
func (r *Recorder) RecordCall(ctx context.Context, p RecordCallParams) (*Call, error) {
	if p.StateID == "" {
		return nil, errtax.OrchestrationInvariant("record_call requires a state_id; use record_operation_call outside a row's state")
	}
	return r.recordCallInternal(ctx, p)
}

// RecordOperationCall records a call performed outside any row's state
// (e.g. during plugin setup). It never carries a token.
func (r *Recorder) RecordOperationCall(ctx context.Context, p RecordCallParams) (*Call, error) {
	if p.OperationID == "" {
		p.OperationID = lineage.NewID("op")
	}
	return r.recordCallInternal(ctx, p)
}

func (r *Recorder) recordCallInternal(ctx context.Context, p RecordCallParams) (*Call, error) {
	requestHash, err := canonical.StableHash(p.RequestData)
	if err != nil {
		requestHash, err = canonical.StableHash(reprFallback(p.RequestData))
		if err != nil {
			return nil, errtax.Wrap(errtax.CodeConfiguration, "record_call: could not hash request", err)
		}
	}

	call := &Call{
		CallID:      lineage.NewID("call"),
		CallType:    p.CallType,
		Status:      p.Status,
		RequestHash: requestHash,
		LatencyMs:   p.LatencyMs,
		RequestRef:  p.RequestRef,
		ResponseRef: p.ResponseRef,
		CreatedAt:   time.Now().UTC(),
	}
	if p.StateID != "" {
		call.StateID = &p.StateID
		idx := p.CallIndex
		call.CallIndex = &idx
	}
	if p.OperationID != "" {
		call.OperationID = &p.OperationID
	}

	if p.ResponseData != nil {
		respHash, err := canonical.StableHash(p.ResponseData)
		if err != nil {
			respHash, _ = canonical.StableHash(reprFallback(p.ResponseData))
		}
		call.ResponseHash = &respHash
	}

	if p.Err != nil {
		errJSON, err := json.Marshal(map[string]string{"error": p.Err.Error()})
		if err == nil {
			s := string(errJSON)
			call.ErrorJSON = &s
		}
	}

	if r.Payload != nil {
		if call.RequestRef == nil {
			if body, ok := p.RequestData.([]byte); ok {
				ref, err := r.Payload.Put(ctx, body)
				if err == nil {
					call.RequestRef = &ref
				}
			}
		}
		if call.ResponseRef == nil {
			if body, ok := p.ResponseData.([]byte); ok {
				ref, err := r.Payload.Put(ctx, body)
				if err == nil {
					call.ResponseRef = &ref
				}
			}
		}
	}

	_, err = r.DB.ExecContext(ctx, `
		INSERT INTO calls
			(call_id, state_id, operation_id, call_index, call_type, status, request_hash, response_hash,
			 error_json, latency_ms, request_ref, response_ref, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, call.CallID, call.StateID, call.OperationID, call.CallIndex, call.CallType, call.Status,
		call.RequestHash, call.ResponseHash, call.ErrorJSON, call.LatencyMs, call.RequestRef, call.ResponseRef, call.CreatedAt)
	if err != nil {
		return nil, errtax.Wrap(errtax.CodeConfiguration, "record_call failed", err)
	}
	return call, nil
}

// GetCalls returns every call recorded against a node state, ordered by
// call_index.
func (r *Recorder) GetCalls(ctx context.Context, stateID string) ([]*Call, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT call_id, state_id, operation_id, call_index, call_type, status, request_hash, response_hash,
		       error_json, latency_ms, request_ref, response_ref, created_at
		FROM calls WHERE state_id = $1 ORDER BY call_index
	`, stateID)
	if err != nil {
		return nil, errtax.Wrap(errtax.CodeConfiguration, "get_calls failed", err)
	}
	defer rows.Close()

	var out []*Call
	for rows.Next() {
		c := &Call{}
		if err := rows.Scan(&c.CallID, &c.StateID, &c.OperationID, &c.CallIndex, &c.CallType, &c.Status,
			&c.RequestHash, &c.ResponseHash, &c.ErrorJSON, &c.LatencyMs, &c.RequestRef, &c.ResponseRef, &c.CreatedAt); err != nil {
			return nil, errtax.Wrap(errtax.CodeConfiguration, "get_calls: scan failed", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errtax.Wrap(errtax.CodeConfiguration, "get_calls: iteration failed", err)
	}
	return out, nil
}

// GetCallResponseData returns the response payload for callID via the
// payload store, when a response_ref is recorded.
func (r *Recorder) GetCallResponseData(ctx context.Context, callID string) ([]byte, error) {
	var ref sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT response_ref FROM calls WHERE call_id = $1`, callID).Scan(&ref)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errtax.New(errtax.CodeConfiguration, "call not found").WithDetail("call_id", callID)
		}
		return nil, errtax.Wrap(errtax.CodeConfiguration, "get_call_response_data failed", err)
	}
	if !ref.Valid || r.Payload == nil {
		return nil, nil
	}
	return r.Payload.Get(ctx, ref.String)
}

// FindCallByRequestHash looks up a previously recorded call by its
// request hash, scoped to runID since node_ids are reused across runs.
func (r *Recorder) FindCallByRequestHash(ctx context.Context, runID, callType, requestHash string) (*Call, error) {
	c := &Call{}
	err := r.DB.QueryRowContext(ctx, `
		SELECT calls.call_id, calls.state_id, calls.operation_id, calls.call_index, calls.call_type, calls.status,
		       calls.request_hash, calls.response_hash, calls.error_json, calls.latency_ms,
		       calls.request_ref, calls.response_ref, calls.created_at
		FROM calls
		JOIN node_states ON node_states.state_id = calls.state_id
		WHERE node_states.run_id = $1 AND calls.call_type = $2 AND calls.request_hash = $3
		ORDER BY calls.created_at
		LIMIT 1
	`, runID, callType, requestHash).Scan(&c.CallID, &c.StateID, &c.OperationID, &c.CallIndex, &c.CallType, &c.Status,
		&c.RequestHash, &c.ResponseHash, &c.ErrorJSON, &c.LatencyMs, &c.RequestRef, &c.ResponseRef, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errtax.Wrap(errtax.CodeConfiguration, "find_call_by_request_hash failed", err)
	}
	return c, nil
}

// reprFallback renders value as a best-effort JSON string when it
// cannot be canonically encoded (e.g. it contains NaN). encoding/json
// also rejects NaN/Inf, so the value is stringified with fmt first.
// Besides audit payloads, recordCallInternal hashes this output as the
// request/response hash of a payload that cannot be canonically encoded.
func reprFallback(value any) string {
	b, err := json.Marshal(map[string]any{"repr": fmt.Sprintf("%v", value)})
	if err != nil {
		return `{"repr":"<unencodable value>"}`
	}
	return string(b)
}
