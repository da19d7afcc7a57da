// Package audit provides HTTP/SQL/filesystem clients that record every
// external call with the landscape recorder (record_call, under a
// call_index the caller allocates), enforcing an SSRF boundary on
// outbound HTTP requests.
package audit

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/tachyon-beep/elspeth-sub008/errtax"
	"github.com/tachyon-beep/elspeth-sub008/landscape"
	"github.com/tachyon-beep/elspeth-sub008/ratelimit"
)

// HTTPClient issues HTTPS requests, recording every attempt as an
// external call under the caller's current state_id and the call_index
// the caller passes to Do, and re-validating the SSRF boundary on
// every redirect hop.
type HTTPClient struct {
	client      *http.Client
	recorder    *landscape.Recorder
	limits      *ratelimit.Registry // optional
	serviceName string

	skipSSRFCheck bool // test-only escape hatch; never set outside _test.go
}

// NewHTTPClient constructs an HTTPClient. limits may be nil to disable
// rate limiting for this client.
func NewHTTPClient(recorder *landscape.Recorder, limits *ratelimit.Registry, serviceName string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &HTTPClient{recorder: recorder, limits: limits, serviceName: serviceName}
	c.client = &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, _ []*http.Request) error {
			if c.skipSSRFCheck {
				return nil
			}
			return ValidateSourceURL(req.Context(), req.URL.String())
		},
	}
	return c
}

// Response is the buffered result of an audited HTTP call.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Do issues req, recording the attempt as call_type=HTTP under
// stateID. callIndex must come from recorder.AllocateCallIndex(stateID)
// so retries under the same state_id allocate ascending indices.
func (c *HTTPClient) Do(ctx context.Context, stateID string, callIndex int, req *http.Request) (*Response, error) {
	if !c.skipSSRFCheck {
		if err := ValidateSourceURL(ctx, req.URL.String()); err != nil {
			return nil, err
		}
	}
	if c.limits != nil {
		if err := c.limits.Wait(ctx, c.serviceName); err != nil {
			return nil, errtax.Wrap(errtax.CodeNetwork, "rate limiter wait cancelled", err)
		}
	}

	requestSnapshot := map[string]any{
		"method": req.Method,
		"url":    req.URL.String(),
	}

	start := time.Now()
	resp, err := c.client.Do(req.WithContext(ctx))
	latency := float64(time.Since(start).Microseconds()) / 1000.0

	params := landscape.RecordCallParams{
		StateID:     stateID,
		CallIndex:   callIndex,
		CallType:    "HTTP",
		RequestData: requestSnapshot,
		LatencyMs:   &latency,
	}

	if err != nil {
		params.Status = "ERROR"
		params.Err = err
		if c.recorder != nil {
			c.recorder.RecordCall(ctx, params)
		}
		return nil, errtax.Network(c.serviceName, err)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		params.Status = "ERROR"
		params.Err = readErr
		if c.recorder != nil {
			c.recorder.RecordCall(ctx, params)
		}
		return nil, errtax.Network(c.serviceName, readErr)
	}

	params.Status = "SUCCESS"
	params.ResponseData = map[string]any{
		"status_code": float64(resp.StatusCode),
		"body_length": float64(len(body)),
	}
	if c.recorder != nil {
		if _, recErr := c.recorder.RecordCall(ctx, params); recErr != nil {
			return nil, recErr
		}
	}

	if resp.StatusCode >= 500 {
		return nil, errtax.Server(c.serviceName, resp.StatusCode, errHTTPStatus(resp.StatusCode))
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errtax.RateLimit(c.serviceName, errHTTPStatus(resp.StatusCode))
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, errtax.Unauthorized(c.serviceName)
	}
	if resp.StatusCode == http.StatusForbidden {
		return nil, errtax.Forbidden(c.serviceName)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, errtax.NotFound(c.serviceName)
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

type httpStatusError int

func (e httpStatusError) Error() string {
	return http.StatusText(int(e))
}

func errHTTPStatus(code int) error {
	return httpStatusError(code)
}
