package llm

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/tachyon-beep/elspeth-sub008/logging"
)

// Harness is one ChaosLLM instance: a live, reconfigurable fault
// source behind an OpenAI-compatible chat completions endpoint.
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

// Router builds the harness's mux.Router: the chat-completions
// endpoint (plus its Azure-style deployment variant) and the
// /admin/{config,stats,reset,export} control surface.
func (h *Harness) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/v1/chat/completions", h.handleChatCompletions).Methods(http.MethodPost)
	r.HandleFunc("/openai/deployments/{deployment}/chat/completions", h.handleChatCompletions).Methods(http.MethodPost)
	r.HandleFunc("/admin/config", h.handleAdminConfig).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/admin/stats", h.handleAdminStats).Methods(http.MethodGet)
	r.HandleFunc("/admin/reset", h.handleAdminReset).Methods(http.MethodPost)
	r.HandleFunc("/admin/export", h.handleAdminExport).Methods(http.MethodGet)
	return r
}

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func (h *Harness) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	_ = json.NewDecoder(r.Body).Decode(&req) // malformed input is not this harness's concern; faults are config-driven

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
		}).Debug("chaosllm fault injected")
	}

	reply := h.content(cfg, req)

	switch decision.Kind {
	case ErrorConnection:
		dropConnection(w)
	case ErrorHTTP:
		writeHTTPError(w, decision.HTTPStatus)
	case ErrorMalformed:
		writeMalformed(w, decision.MalformedMode, reply)
	default:
		writeChatCompletion(w, req.Model, len(req.Messages), reply)
	}
}

// content resolves the assistant reply text per the configured
// response mode, used both for a clean success and as the payload a
// MALFORMED decision corrupts.
func (h *Harness) content(cfg Config, req chatRequest) string {
	switch cfg.ResponseMode {
	case ResponsePreset:
		return cfg.PresetResponse
	case ResponseEcho:
		if len(req.Messages) > 0 {
			return req.Messages[len(req.Messages)-1].Content
		}
		return ""
	case ResponseTemplate:
		if len(req.Messages) > 0 {
			return fmt.Sprintf(cfg.TemplateResponse, req.Messages[len(req.Messages)-1].Content)
		}
		return cfg.TemplateResponse
	default: // random
		return randomReplies[h.roller.pick(len(randomReplies))]
	}
}

var randomReplies = []string{
	"Here is a concise answer to your question.",
	"I considered several options before settling on this one.",
	"Based on the provided context, the result is as follows.",
	"Let me walk through the reasoning step by step.",
}

func writeChatCompletion(w http.ResponseWriter, model string, messageCount int, reply string) {
	body := map[string]any{
		"id":      "chatcmpl-chaos",
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   model,
		"choices": []map[string]any{
			{
				"index": 0,
				"message": map[string]any{
					"role":    "assistant",
					"content": reply,
				},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]any{
			"prompt_tokens":     messageCount,
			"completion_tokens": 1,
			"total_tokens":      messageCount + 1,
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func writeHTTPError(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": http.StatusText(status),
			"type":    "chaos_injected_error",
			"code":    status,
		},
	})
}

func writeMalformed(w http.ResponseWriter, mode MalformedMode, reply string) {
	switch mode {
	case MalformedWrongContentType:
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"choices":[{"message":{"content":"`+reply+`"}}]`)
	case MalformedInvalidJSON:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"choices": [ this is not valid json `)
	default: // truncated
		w.Header().Set("Content-Type", "application/json")
		full, _ := json.Marshal(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": reply}}},
		})
		cut := len(full) / 2
		w.Header().Set("Content-Length", fmt.Sprintf("%d", len(full)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(full[:cut])
	}
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
