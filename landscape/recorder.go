// Package landscape implements the relational audit store (the
// "landscape"): the append-only record of every run, node, row, token,
// node state, external call, and outcome that passes through the
// pipeline.
package landscape

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tachyon-beep/elspeth-sub008/canonical"
	"github.com/tachyon-beep/elspeth-sub008/errtax"
	"github.com/tachyon-beep/elspeth-sub008/lineage"
)

// PayloadStore persists large request/response bodies outside the
// relational schema, addressed by content hash.
type PayloadStore interface {
	Put(ctx context.Context, data []byte) (ref string, err error)
	Get(ctx context.Context, ref string) ([]byte, error)
}

// Recorder is the single point of contact between pipeline execution
// and the audit database. One struct, one method per table operation,
// transactional for any operation that touches more than one table.
type Recorder struct {
	DB      *sql.DB
	Payload PayloadStore // optional; nil disables auto-persist of call payloads
}

// NewRecorder constructs a Recorder over an already-open, already
// migrated database.
func NewRecorder(db *sql.DB, payload PayloadStore) *Recorder {
	return &Recorder{DB: db, Payload: payload}
}

// BeginRun creates a new run row. If runID is empty a fresh one is
// generated.
func (r *Recorder) BeginRun(ctx context.Context, configJSON, canonicalVersion, runID string) (*Run, error) {
	if runID == "" {
		runID = lineage.NewID("run")
	}
	run := &Run{
		RunID:            runID,
		ConfigJSON:       configJSON,
		CanonicalVersion: canonicalVersion,
		Status:           "running",
		CreatedAt:        time.Now().UTC(),
	}

	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO runs (run_id, config_json, canonical_version, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, run.RunID, run.ConfigJSON, run.CanonicalVersion, run.Status, run.CreatedAt)
	if err != nil {
		return nil, errtax.Wrap(errtax.CodeConfiguration, "begin_run failed", err)
	}
	return run, nil
}

// CompleteRun sets a run's terminal status ("completed" or "failed").
func (r *Recorder) CompleteRun(ctx context.Context, runID, status string) error {
	now := time.Now().UTC()
	_, err := r.DB.ExecContext(ctx, `
		UPDATE runs SET status = $1, completed_at = $2 WHERE run_id = $3
	`, status, now, runID)
	if err != nil {
		return errtax.Wrap(errtax.CodeConfiguration, "complete_run failed", err)
	}
	return nil
}

// RegisterNode registers one plugin instance in the DAG for this run.
func (r *Recorder) RegisterNode(ctx context.Context, n Node) (*Node, error) {
	if n.NodeID == "" {
		n.NodeID = lineage.NewID("node")
	}
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO nodes
			(node_id, run_id, plugin_name, node_type, plugin_version, config_json, schema_config_json,
			 input_contract_json, output_contract_json, sequence_ordinal)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, n.NodeID, n.RunID, n.PluginName, n.NodeType, n.PluginVersion, n.ConfigJSON, n.SchemaConfigJSON,
		n.InputContractJSON, n.OutputContractJSON, n.SequenceOrdinal)
	if err != nil {
		return nil, errtax.Wrap(errtax.CodeConfiguration, "register_node failed", err)
	}
	return &n, nil
}

// UpdateRunContract sets the run-level schema contract after the first
// row has locked it, recording both the serialized contract and its
// version hash.
func (r *Recorder) UpdateRunContract(ctx context.Context, runID, contractJSON, contractHash string) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE runs SET schema_contract_json = $1, schema_contract_hash = $2 WHERE run_id = $3
	`, contractJSON, contractHash, runID)
	if err != nil {
		return errtax.Wrap(errtax.CodeConfiguration, "update_run_contract failed", err)
	}
	return checkRowsAffected(res, "run", runID)
}

// UpdateNodeOutputContract updates a node's output contract, used by
// dynamic sources that lock their contract after the first row.
func (r *Recorder) UpdateNodeOutputContract(ctx context.Context, runID, nodeID, contractJSON string) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE nodes SET output_contract_json = $1 WHERE run_id = $2 AND node_id = $3
	`, contractJSON, runID, nodeID)
	if err != nil {
		return errtax.Wrap(errtax.CodeConfiguration, "update_node_output_contract failed", err)
	}
	return checkRowsAffected(res, "node", nodeID)
}

// GetRunContract returns the run's stored schema contract JSON,
// verifying its stored hash against a freshly computed hash of the
// JSON payload to detect tampering.
func (r *Recorder) GetRunContract(ctx context.Context, runID string) (string, error) {
	var contractJSON, contractHash sql.NullString
	err := r.DB.QueryRowContext(ctx, `
		SELECT schema_contract_json, schema_contract_hash FROM runs WHERE run_id = $1
	`, runID).Scan(&contractJSON, &contractHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", errtax.New(errtax.CodeConfiguration, "run not found").WithDetail("run_id", runID)
		}
		return "", errtax.Wrap(errtax.CodeConfiguration, "get_run_contract failed", err)
	}
	if !contractJSON.Valid {
		return "", nil
	}
	recomputed, err := canonical.StableHash(contractJSON.String)
	if err != nil {
		return "", errtax.Wrap(errtax.CodeConfiguration, "get_run_contract: failed to recompute hash", err)
	}
	if contractHash.Valid && recomputed != contractHash.String {
		return "", errtax.New(errtax.CodeConfiguration, "stored schema contract hash does not match its payload").
			WithDetail("run_id", runID)
	}
	return contractJSON.String, nil
}

// GetNodeContracts returns a node's input and output contract JSON, if set.
func (r *Recorder) GetNodeContracts(ctx context.Context, runID, nodeID string) (input, output *string, err error) {
	var in, out sql.NullString
	err = r.DB.QueryRowContext(ctx, `
		SELECT input_contract_json, output_contract_json FROM nodes WHERE run_id = $1 AND node_id = $2
	`, runID, nodeID).Scan(&in, &out)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, errtax.New(errtax.CodeConfiguration, "node not found").WithDetail("node_id", nodeID)
		}
		return nil, nil, errtax.Wrap(errtax.CodeConfiguration, "get_node_contracts failed", err)
	}
	if in.Valid {
		input = &in.String
	}
	if out.Valid {
		output = &out.String
	}
	return input, output, nil
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errtax.Wrap(errtax.CodeConfiguration, "could not determine rows affected", err)
	}
	if n == 0 {
		return errtax.New(errtax.CodeConfiguration, fmt.Sprintf("%s not found", kind)).WithDetail("id", id)
	}
	return nil
}
