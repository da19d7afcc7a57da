package audit

import (
	"context"
	"database/sql"
	"time"

	"github.com/tachyon-beep/elspeth-sub008/errtax"
	"github.com/tachyon-beep/elspeth-sub008/landscape"
)

// Querier is satisfied by *sql.DB and *sql.Tx, letting SQLClient wrap
// either a pooled connection or an in-flight transaction.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SQLClient audits every query issued through it as call_type=SQL,
// hashing the query text plus its bound arguments into request_hash
// rather than storing raw argument values that may carry secrets.
type SQLClient struct {
	db          Querier
	recorder    *landscape.Recorder
	serviceName string
}

func NewSQLClient(db Querier, recorder *landscape.Recorder, serviceName string) *SQLClient {
	return &SQLClient{db: db, recorder: recorder, serviceName: serviceName}
}

// Query runs a read query, recording it under stateID at callIndex.
func (c *SQLClient) Query(ctx context.Context, stateID string, callIndex int, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := c.db.QueryContext(ctx, query, args...)
	c.record(ctx, stateID, callIndex, query, args, err, start)
	if err != nil {
		return nil, errtax.Wrap(errtax.CodeConfiguration, "sql query failed", err)
	}
	return rows, nil
}

// Exec runs a write query, recording it under stateID at callIndex.
func (c *SQLClient) Exec(ctx context.Context, stateID string, callIndex int, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	result, err := c.db.ExecContext(ctx, query, args...)
	c.record(ctx, stateID, callIndex, query, args, err, start)
	if err != nil {
		return nil, errtax.Wrap(errtax.CodeConfiguration, "sql exec failed", err)
	}
	return result, nil
}

func (c *SQLClient) record(ctx context.Context, stateID string, callIndex int, query string, args []any, execErr error, start time.Time) {
	if c.recorder == nil {
		return
	}
	latency := float64(time.Since(start).Microseconds()) / 1000.0
	status := "SUCCESS"
	var recErr error
	if execErr != nil {
		status = "ERROR"
		recErr = execErr
	}
	c.recorder.RecordCall(ctx, landscape.RecordCallParams{
		StateID:   stateID,
		CallIndex: callIndex,
		CallType:  "SQL",
		Status:    status,
		RequestData: map[string]any{
			"query": query,
			"args":  args,
		},
		Err:       recErr,
		LatencyMs: &latency,
	})
}
