package landscape

import (
	"context"
	"database/sql"

	"github.com/tachyon-beep/elspeth-sub008/errtax"
	"github.com/tachyon-beep/elspeth-sub008/lineage"
)

// CreateRow inserts an immutable ingress row.
func (r *Recorder) CreateRow(ctx context.Context, runID, sourceNodeID string, rowIndex int, sourceDataHash, rowID string) (*lineage.Row, error) {
	row := lineage.NewRow(runID, sourceNodeID, rowIndex, sourceDataHash)
	if rowID != "" {
		row.RowID = rowID
	}

	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO rows (row_id, run_id, source_node_id, row_index, source_data_hash, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, row.RowID, row.RunID, row.SourceNodeID, row.RowIndex, row.SourceDataHash, row.CreatedAt)
	if err != nil {
		return nil, errtax.Wrap(errtax.CodeConfiguration, "create_row failed", err)
	}
	return row, nil
}

// TokenOpts carries the optional fields accepted by CreateToken.
type TokenOpts struct {
	TokenID        string
	BranchName     string
	ForkGroupID    string
	JoinGroupID    string
	ExpandGroupID  string
	StepInPipeline int
}

// CreateToken inserts a token tracing a row's presence at a pipeline step.
func (r *Recorder) CreateToken(ctx context.Context, rowID string, opts TokenOpts) (*lineage.Token, error) {
	tok := &lineage.Token{
		TokenID:        opts.TokenID,
		RowID:          rowID,
		BranchName:     opts.BranchName,
		ForkGroupID:    opts.ForkGroupID,
		JoinGroupID:    opts.JoinGroupID,
		ExpandGroupID:  opts.ExpandGroupID,
		StepInPipeline: opts.StepInPipeline,
	}
	if tok.TokenID == "" {
		tok.TokenID = lineage.NewID("tok")
	}

	if err := insertToken(ctx, r.DB, tok); err != nil {
		return nil, err
	}
	return tok, nil
}

func insertToken(ctx context.Context, ex execer, tok *lineage.Token) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO tokens (token_id, row_id, branch_name, fork_group_id, join_group_id, expand_group_id, step_in_pipeline)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, tok.TokenID, tok.RowID, nullIfEmpty(tok.BranchName), nullIfEmpty(tok.ForkGroupID),
		nullIfEmpty(tok.JoinGroupID), nullIfEmpty(tok.ExpandGroupID), tok.StepInPipeline)
	if err != nil {
		return errtax.Wrap(errtax.CodeConfiguration, "create_token failed", err)
	}
	return nil
}

// execer is satisfied by both *sql.DB and *sql.Tx, letting token
// insertion be reused inside and outside a transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// ForkToken splits a parent token into len(branches) children sharing a
// new fork_group_id, and atomically records the parent's FORKED
// outcome. The whole operation is one transaction.
func (r *Recorder) ForkToken(ctx context.Context, parentTokenID, rowID string, branches []string, runID string, stepInPipeline int) ([]*lineage.Token, string, error) {
	if len(branches) == 0 {
		return nil, "", errtax.OrchestrationInvariant("fork_token called with no branches")
	}
	forkGroupID := lineage.NewID("fg")

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, "", errtax.Wrap(errtax.CodeConfiguration, "fork_token: begin transaction failed", err)
	}
	defer func() { _ = tx.Rollback() }()

	children := make([]*lineage.Token, 0, len(branches))
	for _, branch := range branches {
		child := &lineage.Token{
			TokenID:        lineage.NewID("tok"),
			RowID:          rowID,
			BranchName:     branch,
			ForkGroupID:    forkGroupID,
			StepInPipeline: stepInPipeline,
		}
		if err := insertToken(ctx, tx, child); err != nil {
			return nil, "", err
		}
		children = append(children, child)
	}

	if err := recordOutcomeTx(ctx, tx, runID, parentTokenID, lineage.OutcomeForked,
		lineage.OutcomeContext{ForkGroupID: forkGroupID}); err != nil {
		return nil, "", err
	}

	if err := tx.Commit(); err != nil {
		return nil, "", errtax.Wrap(errtax.CodeConfiguration, "fork_token: commit failed", err)
	}
	return children, forkGroupID, nil
}

// ExpandToken derives count children from parentTokenID sharing a new
// expand_group_id, optionally recording the parent's EXPANDED outcome
// in the same transaction.
func (r *Recorder) ExpandToken(ctx context.Context, parentTokenID, rowID string, count int, runID string, stepInPipeline int, recordParentOutcome bool) ([]*lineage.Token, string, error) {
	if count <= 0 {
		return nil, "", errtax.OrchestrationInvariant("expand_token called with non-positive count")
	}
	expandGroupID := lineage.NewID("eg")

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, "", errtax.Wrap(errtax.CodeConfiguration, "expand_token: begin transaction failed", err)
	}
	defer func() { _ = tx.Rollback() }()

	children := make([]*lineage.Token, 0, count)
	for i := 0; i < count; i++ {
		child := &lineage.Token{
			TokenID:        lineage.NewID("tok"),
			RowID:          rowID,
			ExpandGroupID:  expandGroupID,
			StepInPipeline: stepInPipeline,
		}
		if err := insertToken(ctx, tx, child); err != nil {
			return nil, "", err
		}
		children = append(children, child)
	}

	if recordParentOutcome {
		if err := recordOutcomeTx(ctx, tx, runID, parentTokenID, lineage.OutcomeExpanded,
			lineage.OutcomeContext{ExpandGroupID: expandGroupID}); err != nil {
			return nil, "", err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, "", errtax.Wrap(errtax.CodeConfiguration, "expand_token: commit failed", err)
	}
	return children, expandGroupID, nil
}

// CoalesceTokens merges parentTokenIDs into one new token sharing a new
// join_group_id. Parents are not automatically marked COALESCED here —
// callers record that outcome separately once the consuming node
// chooses a sink.
func (r *Recorder) CoalesceTokens(ctx context.Context, parentTokenIDs []string, rowID string, stepInPipeline int) (*lineage.Token, error) {
	if len(parentTokenIDs) == 0 {
		return nil, errtax.OrchestrationInvariant("coalesce_tokens called with no parent tokens")
	}
	joinGroupID := lineage.NewID("jg")

	merged := &lineage.Token{
		TokenID:        lineage.NewID("tok"),
		RowID:          rowID,
		JoinGroupID:    joinGroupID,
		StepInPipeline: stepInPipeline,
	}
	if err := insertToken(ctx, r.DB, merged); err != nil {
		return nil, err
	}
	return merged, nil
}
