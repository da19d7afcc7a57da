package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRoller_SameSeedSameSequence(t *testing.T) {
	cfg := Config{ConnectionErrorRate: 0.5, HTTPErrorRate: 0.5, HTTPErrorStatuses: []int{500}, MalformedRate: 0.5}

	a := newRoller(9)
	b := newRoller(9)

	for i := 0; i < 50; i++ {
		da := a.roll(cfg)
		db := b.roll(cfg)
		if da.Kind != db.Kind {
			t.Fatalf("request %d: kinds diverged: %v vs %v", i, da.Kind, db.Kind)
		}
	}
}

func TestRoller_ConnectionTakesPriorityOverHTTP(t *testing.T) {
	cfg := Config{ConnectionErrorRate: 1.0, HTTPErrorRate: 1.0, HTTPErrorStatuses: []int{500}}
	ro := newRoller(1)
	d := ro.roll(cfg)
	if d.Kind != ErrorConnection {
		t.Errorf("Kind = %v, want CONNECTION when both rates are 1.0", d.Kind)
	}
}

func TestRoller_HTTPTakesPriorityOverMalformed(t *testing.T) {
	cfg := Config{HTTPErrorRate: 1.0, HTTPErrorStatuses: []int{502}, MalformedRate: 1.0}
	ro := newRoller(1)
	d := ro.roll(cfg)
	if d.Kind != ErrorHTTP {
		t.Errorf("Kind = %v, want HTTP when both HTTP and malformed rates are 1.0", d.Kind)
	}
}

func TestHarness_Page_SuccessReturnsHTML(t *testing.T) {
	h := New(1)
	h.cfg.ResponseMode = ResponsePreset
	h.cfg.PresetResponse = "<html>fixed</html>"

	req := httptest.NewRequest(http.MethodGet, "/page", nil)
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "<html>fixed</html>" {
		t.Errorf("body = %q, want preset content", rec.Body.String())
	}
}

func TestHarness_Page_RedirectLoopPointsBackAtItself(t *testing.T) {
	h := New(1)
	h.cfg.MalformedRate = 1.0

	req := httptest.NewRequest(http.MethodGet, "/page", nil)
	rec := httptest.NewRecorder()

	// force a deterministic malformed mode by directly invoking the
	// handler's write path rather than relying on a particular roll
	decision := Decision{Kind: ErrorMalformed, MalformedMode: MalformedRedirectLoop}
	writeMalformed(rec, req, h.cfg, decision.MalformedMode, "body")

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	loc := rec.Header().Get("Location")
	if loc != req.URL.RequestURI() {
		t.Errorf("Location = %q, want the same request URI (redirect loop)", loc)
	}
}

func TestHarness_Page_SSRFRedirectTargetsConfiguredAddress(t *testing.T) {
	h := New(1)
	h.cfg.SSRFRedirectTarget = "http://169.254.169.254/latest/meta-data/"

	req := httptest.NewRequest(http.MethodGet, "/page", nil)
	rec := httptest.NewRecorder()
	writeMalformed(rec, req, h.cfg, MalformedSSRFRedirect, "body")

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != h.cfg.SSRFRedirectTarget {
		t.Errorf("Location = %q, want %q", loc, h.cfg.SSRFRedirectTarget)
	}
}

func TestHarness_Page_IncompleteResponseTruncatesBody(t *testing.T) {
	h := New(1)
	req := httptest.NewRequest(http.MethodGet, "/page", nil)
	rec := httptest.NewRecorder()

	full := "0123456789"
	writeMalformed(rec, req, h.cfg, MalformedIncompleteBody, full)

	if rec.Header().Get("Content-Length") != "10" {
		t.Errorf("Content-Length = %q, want the full body's length", rec.Header().Get("Content-Length"))
	}
	if len(rec.Body.String()) >= len(full) {
		t.Errorf("body len = %d, want fewer bytes than the declared Content-Length", len(rec.Body.String()))
	}
}

func TestHarness_Page_EncodingMismatchDeclaresUTF8ButWritesLatin1(t *testing.T) {
	h := New(1)
	req := httptest.NewRequest(http.MethodGet, "/page", nil)
	rec := httptest.NewRecorder()

	writeMalformed(rec, req, h.cfg, MalformedEncodingMismatch, "café")

	ct := rec.Header().Get("Content-Type")
	if ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q, want a utf-8 claim despite the mismatched body", ct)
	}
	raw := rec.Body.Bytes()
	// "café" is 5 bytes in UTF-8 (é is 2 bytes) but 4 runes; the
	// Latin-1 encoder emits exactly one byte per rune, so the byte
	// count diverges from what the utf-8 Content-Type claim implies.
	if len(raw) != 4 {
		t.Errorf("encoded body length = %d, want 4 (one byte per rune)", len(raw))
	}
}

func TestHarness_AdminConfig_PostOverridesThenGetReflectsIt(t *testing.T) {
	h := New(1)

	patch, _ := json.Marshal(map[string]any{"http_error_rate": 0.3})
	postReq := httptest.NewRequest(http.MethodPost, "/admin/config", bytes.NewReader(patch))
	postRec := httptest.NewRecorder()
	h.Router().ServeHTTP(postRec, postReq)
	if postRec.Code != http.StatusOK {
		t.Fatalf("POST /admin/config status = %d", postRec.Code)
	}

	getReq := httptest.NewRequest(http.MethodGet, "/admin/config", nil)
	getRec := httptest.NewRecorder()
	h.Router().ServeHTTP(getRec, getReq)

	var cfg Config
	if err := json.Unmarshal(getRec.Body.Bytes(), &cfg); err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if cfg.HTTPErrorRate != 0.3 {
		t.Errorf("HTTPErrorRate = %v, want 0.3 after POST /admin/config", cfg.HTTPErrorRate)
	}
}

func TestHarness_AdminReset_ClearsStats(t *testing.T) {
	h := New(1)
	h.stats.record(Decision{Kind: ErrorHTTP, HTTPStatus: 500})
	if h.stats.snapshot().TotalRequests != 1 {
		t.Fatal("setup: expected one recorded request")
	}

	resetReq := httptest.NewRequest(http.MethodPost, "/admin/reset", nil)
	resetRec := httptest.NewRecorder()
	h.Router().ServeHTTP(resetRec, resetReq)
	if resetRec.Code != http.StatusNoContent {
		t.Fatalf("POST /admin/reset status = %d", resetRec.Code)
	}

	if h.stats.snapshot().TotalRequests != 0 {
		t.Error("expected stats to be cleared after /admin/reset")
	}
}
