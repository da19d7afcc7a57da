// Package secretsvc resolves plugin secrets through a pluggable backend
// and records a fingerprinted audit trail, never persisting or logging
// the plaintext secret value itself.
package secretsvc

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/tachyon-beep/elspeth-sub008/errtax"
)

// FingerprintKeyEnv is the environment variable that must be set before
// any secret is fetched. load_secrets_from_config-equivalent callers
// must fail fast if it is absent.
const FingerprintKeyEnv = "ELSPETH_FINGERPRINT_KEY"

const minFingerprintKeyBytes = 32

// Backend resolves one named secret from an external store. Concrete
// backends (env var, key vault, …) are out of scope here; only the
// interface and the fingerprinting/audit wrapper around it are owned by
// this package.
type Backend interface {
	// Source identifies the backend kind, e.g. "env" or "keyvault".
	Source() string
	// VaultURL returns the backend's vault URL, or "" if not applicable.
	VaultURL() string
	Fetch(ctx context.Context, name string) (string, error)
}

// Resolution is one record of a secret having been loaded: the
// metadata the landscape recorder persists, carrying a fingerprint
// instead of the plaintext value.
type Resolution struct {
	EnvVar      string
	Source      string
	VaultURL    string
	SecretName  string
	LatencyMs   float64
	Fingerprint string
	ResolvedAt  time.Time
}

// Manager resolves secrets through Backend and fingerprints every
// resolved value with HMAC-SHA256 keyed by FingerprintKeyEnv, so the
// audit trail can prove "this same secret was used here and here"
// without ever storing the plaintext.
type Manager struct {
	backend        Backend
	fingerprintKey []byte
}

// NewManager constructs a Manager. It reads and validates
// FingerprintKeyEnv eagerly: a missing or malformed fingerprint key is
// a SecretLoadError that aborts before any run starts.
func NewManager(backend Backend) (*Manager, error) {
	if backend == nil {
		return nil, errtax.SecretLoad("", fmt.Errorf("secret backend is required"))
	}
	key, err := normalizeFingerprintKey([]byte(os.Getenv(FingerprintKeyEnv)))
	if err != nil {
		return nil, errtax.SecretLoad(FingerprintKeyEnv, err)
	}
	return &Manager{backend: backend, fingerprintKey: key}, nil
}

// Resolve fetches envVar/name from the backend, returning both the
// plaintext (for immediate use by the caller only — never logged or
// persisted) and the audit Resolution record.
func (m *Manager) Resolve(ctx context.Context, envVar, name string) (string, *Resolution, error) {
	start := time.Now()
	value, err := m.backend.Fetch(ctx, name)
	latency := time.Since(start)
	if err != nil {
		return "", nil, errtax.SecretLoad(name, err)
	}

	resolution := &Resolution{
		EnvVar:      envVar,
		Source:      m.backend.Source(),
		VaultURL:    m.backend.VaultURL(),
		SecretName:  name,
		LatencyMs:   float64(latency.Microseconds()) / 1000.0,
		Fingerprint: m.Fingerprint(value),
		ResolvedAt:  start.UTC(),
	}
	return value, resolution, nil
}

// Fingerprint returns the hex-encoded HMAC-SHA256 of value keyed by the
// process fingerprint key. Two resolutions of the same secret value
// always produce the same fingerprint, letting the audit trail prove
// reuse without ever storing the plaintext.
func (m *Manager) Fingerprint(value string) string {
	mac := hmac.New(sha256.New, m.fingerprintKey)
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}

// normalizeFingerprintKey accepts either a 64-char hex string or a raw
// key of at least minFingerprintKeyBytes, mirroring the dual-acceptance
// convention used for secret master keys elsewhere in this stack.
// Keys shorter than minFingerprintKeyBytes are rejected in every
// environment; ELSPETH_ENV only decides whether a raw (non-hex) key
// logs a warning (it does not for development, dev or local).
func normalizeFingerprintKey(raw []byte) ([]byte, error) {
	trimmed := strings.TrimSpace(string(raw))
	trimmed = strings.TrimPrefix(strings.TrimPrefix(trimmed, "0x"), "0X")
	if trimmed == "" {
		return nil, fmt.Errorf("%s is required", FingerprintKeyEnv)
	}

	if isHex(trimmed) {
		if decoded, err := hexDecode(trimmed); err == nil && len(decoded) >= minFingerprintKeyBytes {
			return decoded, nil
		}
	}

	if len(trimmed) >= minFingerprintKeyBytes {
		if !isDevEnv() {
			log.Printf("[WARN] using raw (non-hex) %s; hex encoding is recommended", FingerprintKeyEnv)
		}
		return []byte(trimmed), nil
	}

	return nil, fmt.Errorf("%s must be at least %d bytes (or %d hex chars)", FingerprintKeyEnv, minFingerprintKeyBytes, minFingerprintKeyBytes*2)
}

func hexDecode(s string) ([]byte, error) {
	return hex.DecodeString(s)
}

func isHex(value string) bool {
	if value == "" {
		return false
	}
	for _, c := range value {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

func isDevEnv() bool {
	env := strings.ToLower(strings.TrimSpace(os.Getenv("ELSPETH_ENV")))
	return env == "development" || env == "dev" || env == "local"
}
