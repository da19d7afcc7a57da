package audit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPClient_Do_RecordsSuccessWithoutRecorder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	client := NewHTTPClient(nil, nil, "test-service", 0)
	client.skipSSRFCheck = true // httptest.Server binds to 127.0.0.1, which the SSRF boundary rejects by design
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}

	resp, err := client.Do(context.Background(), "state1", 0, req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if string(resp.Body) != "ok" {
		t.Errorf("Body = %q, want %q", resp.Body, "ok")
	}
}

func TestHTTPClient_Do_RejectsLoopbackHost(t *testing.T) {
	client := NewHTTPClient(nil, nil, "test-service", 0)
	req, err := http.NewRequest(http.MethodGet, "http://127.0.0.1:9/whatever", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}

	_, err = client.Do(context.Background(), "state1", 0, req)
	if err == nil {
		t.Fatal("expected SSRF boundary to reject a loopback host")
	}
}

func TestHTTPClient_Do_ServerErrorMapsToServerCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewHTTPClient(nil, nil, "test-service", 0)
	client.skipSSRFCheck = true
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}

	_, err = client.Do(context.Background(), "state1", 0, req)
	if err == nil {
		t.Fatal("expected a 500 response to surface as an error")
	}
	if !strings.Contains(err.Error(), "Internal Server Error") {
		t.Errorf("error = %v, want it to mention the status text", err)
	}
}

func TestHTTPClient_Do_RateLimitedStatusMapsToRateLimitCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewHTTPClient(nil, nil, "test-service", 0)
	client.skipSSRFCheck = true
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}

	_, err = client.Do(context.Background(), "state1", 0, req)
	if err == nil {
		t.Fatal("expected a 429 response to surface as an error")
	}
}
