package audit

import (
	"context"
	"os"
	"time"

	"github.com/tachyon-beep/elspeth-sub008/errtax"
	"github.com/tachyon-beep/elspeth-sub008/landscape"
)

// FSClient audits filesystem reads and writes as call_type=FILESYSTEM,
// giving local-file sources and sinks the same call-index/record-call
// trail as network calls.
type FSClient struct {
	recorder *landscape.Recorder
}

func NewFSClient(recorder *landscape.Recorder) *FSClient {
	return &FSClient{recorder: recorder}
}

// ReadFile reads path in full, recording the call under stateID.
func (c *FSClient) ReadFile(ctx context.Context, stateID string, callIndex int, path string) ([]byte, error) {
	start := time.Now()
	data, err := os.ReadFile(path)
	c.record(ctx, stateID, callIndex, "read", path, len(data), err, start)
	if err != nil {
		return nil, errtax.Wrap(errtax.CodeConfiguration, "filesystem read failed", err)
	}
	return data, nil
}

// WriteFile writes data to path, recording the call under stateID.
func (c *FSClient) WriteFile(ctx context.Context, stateID string, callIndex int, path string, data []byte, perm os.FileMode) error {
	start := time.Now()
	err := os.WriteFile(path, data, perm)
	c.record(ctx, stateID, callIndex, "write", path, len(data), err, start)
	if err != nil {
		return errtax.Wrap(errtax.CodeConfiguration, "filesystem write failed", err)
	}
	return nil
}

func (c *FSClient) record(ctx context.Context, stateID string, callIndex int, op, path string, byteCount int, opErr error, start time.Time) {
	if c.recorder == nil {
		return
	}
	latency := float64(time.Since(start).Microseconds()) / 1000.0
	status := "SUCCESS"
	var recErr error
	if opErr != nil {
		status = "ERROR"
		recErr = opErr
	}
	c.recorder.RecordCall(ctx, landscape.RecordCallParams{
		StateID:   stateID,
		CallIndex: callIndex,
		CallType:  "FILESYSTEM",
		Status:    status,
		RequestData: map[string]any{
			"operation":  op,
			"path":       path,
			"byte_count": float64(byteCount),
		},
		Err:       recErr,
		LatencyMs: &latency,
	})
}
