package landscape

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/tachyon-beep/elspeth-sub008/canonical"
	"github.com/tachyon-beep/elspeth-sub008/errtax"
	"github.com/tachyon-beep/elspeth-sub008/lineage"
)

// RecordTokenOutcome validates octx against invariant 4 for outcome and
// inserts the outcome row.
func (r *Recorder) RecordTokenOutcome(ctx context.Context, runID, tokenID string, outcome lineage.Outcome, octx lineage.OutcomeContext) (string, error) {
	if err := octx.Validate(outcome); err != nil {
		return "", err
	}
	return recordOutcomeTx(ctx, r.DB, runID, tokenID, outcome, octx)
}

// recordOutcomeTx inserts an outcome row using any execer, so it can
// participate in a caller's transaction (fork_token, expand_token) or
// run standalone.
func recordOutcomeTx(ctx context.Context, ex execer, runID, tokenID string, outcome lineage.Outcome, octx lineage.OutcomeContext) (string, error) {
	outcomeID := lineage.NewID("oc")
	_, err := ex.ExecContext(ctx, `
		INSERT INTO token_outcomes
			(outcome_id, run_id, token_id, outcome_kind, is_terminal, sink_name, fork_group_id,
			 join_group_id, expand_group_id, error_hash, batch_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, outcomeID, runID, tokenID, string(outcome), outcome.Terminal(),
		nullIfEmpty(octx.SinkName), nullIfEmpty(octx.ForkGroupID), nullIfEmpty(octx.JoinGroupID),
		nullIfEmpty(octx.ExpandGroupID), nullIfEmpty(octx.ErrorHash), nullIfEmpty(octx.BatchID), time.Now().UTC())
	if err != nil {
		return "", errtax.Wrap(errtax.CodeConfiguration, "record_token_outcome failed", err)
	}
	return outcomeID, nil
}

// GetTokenOutcome returns the terminal outcome for tokenID if one
// exists, else the most recent non-terminal outcome, else nil.
func (r *Recorder) GetTokenOutcome(ctx context.Context, tokenID string) (*TokenOutcomeRecord, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT outcome_id, run_id, token_id, outcome_kind, is_terminal, sink_name, fork_group_id,
		       join_group_id, expand_group_id, error_hash, batch_id, created_at
		FROM token_outcomes
		WHERE token_id = $1
		ORDER BY is_terminal DESC, created_at DESC
		LIMIT 1
	`, tokenID)

	o := &TokenOutcomeRecord{}
	err := row.Scan(&o.OutcomeID, &o.RunID, &o.TokenID, &o.OutcomeKind, &o.IsTerminal, &o.SinkName,
		&o.ForkGroupID, &o.JoinGroupID, &o.ExpandGroupID, &o.ErrorHash, &o.BatchID, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errtax.Wrap(errtax.CodeConfiguration, "get_token_outcome failed", err)
	}
	return o, nil
}

// RecordValidationErrorParams carries the arguments to RecordValidationError.
type RecordValidationErrorParams struct {
	RunID            string
	NodeID           string
	RowData          any
	Err              error
	SchemaMode       string
	Destination      string
	ViolationField   string
	ViolationKind    string
}

// RecordValidationError records a row rejected at a source boundary.
// row_data is serialized with a repr fallback if it is not
// canonical-JSON-encodable (NaN is tolerated here, in the audit payload
// only).
func (r *Recorder) RecordValidationError(ctx context.Context, p RecordValidationErrorParams) (string, error) {
	rowDataJSON, err := canonical.JSON(p.RowData)
	if err != nil {
		rowDataJSON = reprFallback(p.RowData)
	}

	errorID := lineage.NewID("verr")
	_, err = r.DB.ExecContext(ctx, `
		INSERT INTO validation_errors
			(error_id, run_id, node_id, row_data_json, error_text, schema_mode, destination,
			 violation_field, violation_kind, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, errorID, p.RunID, p.NodeID, rowDataJSON, p.Err.Error(), p.SchemaMode, p.Destination,
		nullIfEmpty(p.ViolationField), nullIfEmpty(p.ViolationKind), time.Now().UTC())
	if err != nil {
		return "", errtax.Wrap(errtax.CodeConfiguration, "record_validation_error failed", err)
	}
	return errorID, nil
}

// RecordTransformErrorParams carries the arguments to RecordTransformError.
type RecordTransformErrorParams struct {
	RunID       string
	TokenID     string
	TransformID string
	RowData     any
	Err         error
	Destination string
}

// RecordTransformError records a per-row transform failure.
func (r *Recorder) RecordTransformError(ctx context.Context, p RecordTransformErrorParams) (string, error) {
	rowDataJSON, err := canonical.JSON(p.RowData)
	if err != nil {
		rowDataJSON = reprFallback(p.RowData)
	}

	errorID := lineage.NewID("terr")
	_, err = r.DB.ExecContext(ctx, `
		INSERT INTO transform_errors (error_id, run_id, token_id, transform_id, row_data_json, error_text, destination, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, errorID, p.RunID, p.TokenID, p.TransformID, rowDataJSON, p.Err.Error(), p.Destination, time.Now().UTC())
	if err != nil {
		return "", errtax.Wrap(errtax.CodeConfiguration, "record_transform_error failed", err)
	}
	return errorID, nil
}

// GetValidationErrorsForRun returns every validation error recorded for a run.
func (r *Recorder) GetValidationErrorsForRun(ctx context.Context, runID string) ([]*ValidationError, error) {
	return r.queryValidationErrors(ctx, `
		SELECT error_id, run_id, node_id, row_data_json, error_text, schema_mode, destination,
		       violation_field, violation_kind, created_at
		FROM validation_errors WHERE run_id = $1 ORDER BY created_at
	`, runID)
}

// GetValidationErrorsForRow returns validation errors recorded for a
// specific node within a run (the closest analogue available, since a
// quarantined row never receives a row_id).
func (r *Recorder) GetValidationErrorsForRow(ctx context.Context, runID, nodeID string) ([]*ValidationError, error) {
	return r.queryValidationErrors(ctx, `
		SELECT error_id, run_id, node_id, row_data_json, error_text, schema_mode, destination,
		       violation_field, violation_kind, created_at
		FROM validation_errors WHERE run_id = $1 AND node_id = $2 ORDER BY created_at
	`, runID, nodeID)
}

func (r *Recorder) queryValidationErrors(ctx context.Context, query string, args ...any) ([]*ValidationError, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errtax.Wrap(errtax.CodeConfiguration, "query validation_errors failed", err)
	}
	defer rows.Close()

	var out []*ValidationError
	for rows.Next() {
		e := &ValidationError{}
		if err := rows.Scan(&e.ErrorID, &e.RunID, &e.NodeID, &e.RowDataJSON, &e.ErrorText, &e.SchemaMode,
			&e.Destination, &e.ViolationField, &e.ViolationKind, &e.CreatedAt); err != nil {
			return nil, errtax.Wrap(errtax.CodeConfiguration, "scan validation_errors failed", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errtax.Wrap(errtax.CodeConfiguration, "iterate validation_errors failed", err)
	}
	return out, nil
}

// GetTransformErrorsForToken returns every transform error for one token.
func (r *Recorder) GetTransformErrorsForToken(ctx context.Context, tokenID string) ([]*TransformError, error) {
	return r.queryTransformErrors(ctx, `
		SELECT error_id, run_id, token_id, transform_id, row_data_json, error_text, destination, created_at
		FROM transform_errors WHERE token_id = $1 ORDER BY created_at
	`, tokenID)
}

// GetTransformErrorsForRun returns every transform error for a run.
func (r *Recorder) GetTransformErrorsForRun(ctx context.Context, runID string) ([]*TransformError, error) {
	return r.queryTransformErrors(ctx, `
		SELECT error_id, run_id, token_id, transform_id, row_data_json, error_text, destination, created_at
		FROM transform_errors WHERE run_id = $1 ORDER BY created_at
	`, runID)
}

func (r *Recorder) queryTransformErrors(ctx context.Context, query string, args ...any) ([]*TransformError, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errtax.Wrap(errtax.CodeConfiguration, "query transform_errors failed", err)
	}
	defer rows.Close()

	var out []*TransformError
	for rows.Next() {
		e := &TransformError{}
		if err := rows.Scan(&e.ErrorID, &e.RunID, &e.TokenID, &e.TransformID, &e.RowDataJSON, &e.ErrorText,
			&e.Destination, &e.CreatedAt); err != nil {
			return nil, errtax.Wrap(errtax.CodeConfiguration, "scan transform_errors failed", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errtax.Wrap(errtax.CodeConfiguration, "iterate transform_errors failed", err)
	}
	return out, nil
}
