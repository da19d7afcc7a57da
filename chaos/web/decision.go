// Package web implements ChaosWeb: an in-tree HTTP service that mimics
// a generic web-scrape target while injecting configurable faults,
// exercising the runtime's SSRF boundary, redirect handling, and
// encoding-tolerant parsing.
package web

import (
	"math/rand"
	"sync"
	"time"
)

// ErrorKind classifies the single fault, if any, taken for one
// request. At most one kind applies per request, with priority
// CONNECTION > HTTP > MALFORMED > (none, i.e. success).
type ErrorKind string

const (
	ErrorNone       ErrorKind = "SUCCESS"
	ErrorConnection ErrorKind = "CONNECTION"
	ErrorHTTP       ErrorKind = "HTTP"
	ErrorMalformed  ErrorKind = "MALFORMED"
)

// MalformedMode names the specific way a MALFORMED decision corrupts
// the response, generalized beyond body corruption to the
// redirect/encoding failure modes a web-scrape target can exhibit.
type MalformedMode string

const (
	MalformedRedirectLoop     MalformedMode = "redirect_loop"
	MalformedSSRFRedirect     MalformedMode = "ssrf_redirect"
	MalformedIncompleteBody   MalformedMode = "incomplete_response"
	MalformedEncodingMismatch MalformedMode = "encoding_mismatch"
)

var malformedModes = []MalformedMode{
	MalformedRedirectLoop,
	MalformedSSRFRedirect,
	MalformedIncompleteBody,
	MalformedEncodingMismatch,
}

// Decision is the single fault (or lack of one) taken for one request.
type Decision struct {
	Kind          ErrorKind
	HTTPStatus    int
	MalformedMode MalformedMode
	Latency       time.Duration
}

// BurstConfig elevates the HTTP error rate for a run of requests on a
// duty cycle measured in request count rather than wall-clock time, so
// behavior stays deterministic under a seeded RNG regardless of
// request timing.
type BurstConfig struct {
	Enabled               bool    `json:"enabled"`
	PeriodRequests        int     `json:"period_requests"`
	OnRequests            int     `json:"on_requests"`
	ElevatedHTTPErrorRate float64 `json:"elevated_http_error_rate"`
}

// ResponseMode selects how a non-faulted page body is generated.
type ResponseMode string

const (
	ResponseRandom   ResponseMode = "random"
	ResponseTemplate ResponseMode = "template"
	ResponseEcho     ResponseMode = "echo"
	ResponsePreset   ResponseMode = "preset"
)

// Config is ChaosWeb's live, mutable fault-injection configuration.
// Callers must hold the harness's lock while reading or writing it;
// Harness methods do this internally.
type Config struct {
	HTTPErrorRate       float64 `json:"http_error_rate"`
	HTTPErrorStatuses   []int   `json:"http_error_statuses"`
	ConnectionErrorRate float64 `json:"connection_error_rate"`
	MalformedRate       float64 `json:"malformed_rate"`

	// SSRFRedirectTarget is the private/link-local address a
	// ssrf_redirect decision sends the client's Location header to.
	// Defaults to the cloud-metadata address, the canonical SSRF bait.
	SSRFRedirectTarget string `json:"ssrf_redirect_target"`

	LatencyMinMS int `json:"latency_min_ms"`
	LatencyMaxMS int `json:"latency_max_ms"`

	ResponseMode     ResponseMode `json:"response_mode"`
	TemplateResponse string       `json:"template_response"`
	PresetResponse   string       `json:"preset_response"`

	Burst BurstConfig `json:"burst"`
}

// DefaultConfig returns a config with no fault injection and no
// latency, matching a well-behaved upstream scrape target.
func DefaultConfig() Config {
	return Config{
		HTTPErrorStatuses:  []int{429, 502, 503, 504, 500},
		SSRFRedirectTarget: "http://169.254.169.254/latest/meta-data/",
		ResponseMode:       ResponseRandom,
	}
}

// roller decides faults deterministically from a single seeded RNG,
// never the global math/rand source, so concurrent chaos requests
// don't share mutable RNG state across harness instances.
type roller struct {
	mu           sync.Mutex
	rng          *rand.Rand
	requestCount int64
}

func newRoller(seed int64) *roller {
	return &roller{rng: rand.New(rand.NewSource(seed))}
}

// roll takes one request's decision under cfg, advancing the RNG and
// request counter exactly once per call.
func (ro *roller) roll(cfg Config) Decision {
	ro.mu.Lock()
	defer ro.mu.Unlock()

	ro.requestCount++

	httpRate := cfg.HTTPErrorRate
	if cfg.Burst.Enabled && cfg.Burst.PeriodRequests > 0 {
		pos := ro.requestCount % int64(cfg.Burst.PeriodRequests)
		if pos < int64(cfg.Burst.OnRequests) {
			httpRate = cfg.Burst.ElevatedHTTPErrorRate
		}
	}

	latency := rollLatency(ro.rng, cfg.LatencyMinMS, cfg.LatencyMaxMS)

	if ro.rng.Float64() < cfg.ConnectionErrorRate {
		return Decision{Kind: ErrorConnection, Latency: latency}
	}
	if len(cfg.HTTPErrorStatuses) > 0 && ro.rng.Float64() < httpRate {
		status := cfg.HTTPErrorStatuses[ro.rng.Intn(len(cfg.HTTPErrorStatuses))]
		return Decision{Kind: ErrorHTTP, HTTPStatus: status, Latency: latency}
	}
	if ro.rng.Float64() < cfg.MalformedRate {
		mode := malformedModes[ro.rng.Intn(len(malformedModes))]
		return Decision{Kind: ErrorMalformed, MalformedMode: mode, Latency: latency}
	}
	return Decision{Kind: ErrorNone, Latency: latency}
}

// pick returns a random index in [0, n) under the roller's lock, for
// callers that need a deterministic random choice outside of roll
// itself (e.g. selecting canned page text).
func (ro *roller) pick(n int) int {
	ro.mu.Lock()
	defer ro.mu.Unlock()
	return ro.rng.Intn(n)
}

func rollLatency(rng *rand.Rand, minMS, maxMS int) time.Duration {
	if maxMS <= minMS {
		return time.Duration(minMS) * time.Millisecond
	}
	spread := maxMS - minMS
	return time.Duration(minMS+rng.Intn(spread+1)) * time.Millisecond
}
