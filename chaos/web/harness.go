package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/tachyon-beep/elspeth-sub008/logging"
)

// Harness is one ChaosWeb instance: a live, reconfigurable fault
// source behind a generic web-scrape target endpoint.
type Harness struct {
	cfgMu sync.RWMutex
	cfg   Config

	roller *roller
	stats  *Stats
	log    *logging.Logger
}

// New constructs a Harness seeded deterministically. Two harnesses
// built with the same seed and driven with the same request sequence
// take identical fault decisions.
func New(seed int64) *Harness {
	return &Harness{
		cfg:    DefaultConfig(),
		roller: newRoller(seed),
		stats:  newStats(),
		log:    logging.Default(),
	}
}

// Router builds the harness's mux.Router: the scrape-target page
// endpoint and the /admin/{config,stats,reset,export} control surface.
func (h *Harness) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/page", h.handlePage).Methods(http.MethodGet)
	r.HandleFunc("/admin/config", h.handleAdminConfig).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/admin/stats", h.handleAdminStats).Methods(http.MethodGet)
	r.HandleFunc("/admin/reset", h.handleAdminReset).Methods(http.MethodPost)
	r.HandleFunc("/admin/export", h.handleAdminExport).Methods(http.MethodGet)
	return r
}

func (h *Harness) handlePage(w http.ResponseWriter, r *http.Request) {
	h.cfgMu.RLock()
	cfg := h.cfg
	h.cfgMu.RUnlock()

	decision := h.roller.roll(cfg)
	if decision.Latency > 0 {
		time.Sleep(decision.Latency)
	}
	h.stats.record(decision)
	if decision.Kind != ErrorNone {
		h.log.WithFields(map[string]any{
			"decision_kind": decision.Kind,
			"http_status":   decision.HTTPStatus,
			"malformed":     decision.MalformedMode,
		}).Debug("chaosweb fault injected")
	}

	body := h.content(cfg, r)

	switch decision.Kind {
	case ErrorConnection:
		dropConnection(w)
	case ErrorHTTP:
		writeHTTPError(w, decision.HTTPStatus)
	case ErrorMalformed:
		writeMalformed(w, r, cfg, decision.MalformedMode, body)
	default:
		writePage(w, body)
	}
}

// content resolves the page body text per the configured response
// mode, used both for a clean success and as the payload a MALFORMED
// decision corrupts.
func (h *Harness) content(cfg Config, r *http.Request) string {
	switch cfg.ResponseMode {
	case ResponsePreset:
		return cfg.PresetResponse
	case ResponseEcho:
		return r.URL.Query().Get("q")
	case ResponseTemplate:
		return fmt.Sprintf(cfg.TemplateResponse, r.URL.Query().Get("q"))
	default: // random
		return randomPages[h.roller.pick(len(randomPages))]
	}
}

var randomPages = []string{
	"<html><body><h1>Widgets Inc.</h1><p>Quality widgets since 1998.</p></body></html>",
	"<html><body><h1>Example Corp</h1><p>We sell things on the internet.</p></body></html>",
	"<html><body><h1>Acme Dynamics</h1><p>Page last updated recently.</p></body></html>",
}

func writePage(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, body)
}

func writeHTTPError(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(status)
	_, _ = fmt.Fprint(w, http.StatusText(status))
}

// writeMalformed corrupts the response per mode: redirect_loop sends
// the caller right back to this same page, forcing a redirect-chain
// detector to give up; ssrf_redirect sends the caller toward a
// private/link-local address, exercising the SSRF boundary;
// incomplete_response truncates a correctly-declared Content-Length
// mid-body; encoding_mismatch declares utf-8 but writes Latin-1 bytes.
func writeMalformed(w http.ResponseWriter, r *http.Request, cfg Config, mode MalformedMode, body string) {
	switch mode {
	case MalformedRedirectLoop:
		http.Redirect(w, r, r.URL.RequestURI(), http.StatusFound)
	case MalformedSSRFRedirect:
		http.Redirect(w, r, cfg.SSRFRedirectTarget, http.StatusFound)
	case MalformedEncodingMismatch:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(latin1Encode(body))
	default: // incomplete_response
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		full := []byte(body)
		w.Header().Set("Content-Length", fmt.Sprintf("%d", len(full)))
		w.WriteHeader(http.StatusOK)
		cut := len(full) / 2
		_, _ = w.Write(full[:cut])
	}
}

// latin1Encode writes each rune's low byte only, producing a byte
// stream that is not valid UTF-8 whenever the source text contains
// non-ASCII characters, while the response still claims charset=utf-8.
func latin1Encode(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		out = append(out, byte(r))
	}
	return out
}

// dropConnection simulates a CONNECTION-kind fault by hijacking the
// underlying TCP connection and closing it without writing a
// response, rather than returning any HTTP status.
func dropConnection(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	_ = conn.Close()
}

func (h *Harness) handleAdminConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		h.cfgMu.Lock()
		err := json.NewDecoder(r.Body).Decode(&h.cfg)
		cfg := h.cfg
		h.cfgMu.Unlock()
		if err != nil {
			writeHTTPError(w, http.StatusBadRequest)
			return
		}
		writeJSON(w, cfg)
		return
	}
	h.cfgMu.RLock()
	cfg := h.cfg
	h.cfgMu.RUnlock()
	writeJSON(w, cfg)
}

func (h *Harness) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.stats.snapshot())
}

func (h *Harness) handleAdminReset(w http.ResponseWriter, r *http.Request) {
	h.stats.reset()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Harness) handleAdminExport(w http.ResponseWriter, r *http.Request) {
	h.cfgMu.RLock()
	cfg := h.cfg
	h.cfgMu.RUnlock()
	writeJSON(w, map[string]any{
		"config": cfg,
		"stats":  h.stats.snapshot(),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
