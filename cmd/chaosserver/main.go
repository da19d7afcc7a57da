// Command chaosserver hosts the ChaosLLM and ChaosWeb fault-injection
// harnesses behind one HTTP server, each mounted under its own path
// prefix with a shared logging/recovery/metrics middleware chain.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tachyon-beep/elspeth-sub008/chaos"
	chaosllm "github.com/tachyon-beep/elspeth-sub008/chaos/llm"
	chaosweb "github.com/tachyon-beep/elspeth-sub008/chaos/web"
	"github.com/tachyon-beep/elspeth-sub008/logging"
)

func main() {
	logger := logging.NewFromEnv("chaosserver")
	metrics := chaos.NewMetrics(prometheus.DefaultRegisterer)

	seed := seedFromEnv("CHAOSSERVER_SEED", time.Now().UnixNano())
	llmHarness := chaosllm.New(seed)
	webHarness := chaosweb.New(seed + 1)

	root := mux.NewRouter()
	root.Use(chaos.RecoveryMiddleware(logger))
	root.Use(chaos.LoggingMiddleware(logger))

	root.PathPrefix("/llm/").Handler(mountHarness("/llm", llmHarness.Router(), chaos.MetricsMiddleware("llm", metrics)))
	root.PathPrefix("/web/").Handler(mountHarness("/web", webHarness.Router(), chaos.MetricsMiddleware("web", metrics)))

	root.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8090"
	}
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           root,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		log.Printf("chaosserver listening on port %s (seed=%d)", port, seed)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("chaosserver error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("chaosserver shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("chaosserver shutdown error: %v", err)
	}
	log.Println("chaosserver stopped")
}

// mountHarness strips prefix from the incoming request path before
// handing it to sub, so a harness's Router() can be authored against
// its own root-relative paths (e.g. "/v1/chat/completions") while
// being served under an arbitrary prefix here, with mw applied to
// only that harness's traffic.
func mountHarness(prefix string, sub *mux.Router, mw mux.MiddlewareFunc) http.Handler {
	return http.StripPrefix(prefix, mw(sub))
}

func seedFromEnv(key string, fallback int64) int64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return v
}
