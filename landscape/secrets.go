package landscape

import (
	"context"
	"time"

	"github.com/tachyon-beep/elspeth-sub008/errtax"
	"github.com/tachyon-beep/elspeth-sub008/lineage"
)

// RecordSecretResolutionParams carries the arguments to
// RecordSecretResolution. It mirrors secretsvc.Resolution's fields
// rather than importing that package, so landscape stays free of a
// dependency on the secret-resolution backend it is merely auditing.
type RecordSecretResolutionParams struct {
	RunID       string
	EnvVar      string
	Source      string
	VaultURL    string
	SecretName  string
	LatencyMs   float64
	Fingerprint string
}

// RecordSecretResolution persists the audit trail of a secret having
// been loaded. The fingerprint, not the plaintext, is what gets
// stored.
func (r *Recorder) RecordSecretResolution(ctx context.Context, p RecordSecretResolutionParams) (string, error) {
	resolutionID := lineage.NewID("secr")
	var latency any
	if p.LatencyMs != 0 {
		latency = p.LatencyMs
	}
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO secret_resolutions
			(resolution_id, run_id, env_var, source, vault_url, secret_name, latency_ms, fingerprint, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, resolutionID, p.RunID, p.EnvVar, p.Source, nullIfEmpty(p.VaultURL), p.SecretName, latency, p.Fingerprint, time.Now().UTC())
	if err != nil {
		return "", errtax.Wrap(errtax.CodeConfiguration, "record_secret_resolution failed", err)
	}
	return resolutionID, nil
}

// GetSecretResolutionsForRun returns every secret resolution recorded
// for a run, in resolution order.
func (r *Recorder) GetSecretResolutionsForRun(ctx context.Context, runID string) ([]*SecretResolutionRecord, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT resolution_id, run_id, env_var, source, vault_url, secret_name, latency_ms, fingerprint, created_at
		FROM secret_resolutions WHERE run_id = $1 ORDER BY created_at
	`, runID)
	if err != nil {
		return nil, errtax.Wrap(errtax.CodeConfiguration, "query secret_resolutions failed", err)
	}
	defer rows.Close()

	var out []*SecretResolutionRecord
	for rows.Next() {
		s := &SecretResolutionRecord{}
		if err := rows.Scan(&s.ResolutionID, &s.RunID, &s.EnvVar, &s.Source, &s.VaultURL, &s.SecretName,
			&s.LatencyMs, &s.Fingerprint, &s.CreatedAt); err != nil {
			return nil, errtax.Wrap(errtax.CodeConfiguration, "scan secret_resolutions failed", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errtax.Wrap(errtax.CodeConfiguration, "iterate secret_resolutions failed", err)
	}
	return out, nil
}
