package resilience

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"math/big"
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/tachyon-beep/elspeth-sub008/errtax"
)

// RowContext identifies one row being processed by the pooled executor.
type RowContext struct {
	Row      any
	StateID  string
	RowIndex int
}

// ProcessFunc performs one row's work (potentially several external
// calls under the same state_id), returning its output fields or an
// error. A Capacity/RateLimit-coded error triggers AIMD backoff and a
// retry; any other error is terminal for that row.
type ProcessFunc func(ctx context.Context, row RowContext) (map[string]any, error)

// Result is one row's final outcome from a pooled Run.
type Result struct {
	RowIndex int
	Output   map[string]any
	Err      error
}

// ExecutorConfig configures a pooled capacity-retry Executor.
type ExecutorConfig struct {
	PoolSize                int
	MaxCapacityRetrySeconds float64
	Backoff                 BackoffConfig
}

// Executor runs process_fn across a set of rows with bounded
// concurrency that additively grows on success and multiplicatively
// shrinks whenever any row in the current wave hits a capacity error,
// until either the pool recovers or MaxCapacityRetrySeconds elapses.
type Executor struct {
	cfg ExecutorConfig
	rng *mathrand.Rand
}

// NewExecutor constructs an Executor with its own seeded RNG for
// jittered backoff, independent of the global math/rand source.
func NewExecutor(cfg ExecutorConfig) *Executor {
	if cfg.PoolSize < 1 {
		cfg.PoolSize = 1
	}
	if cfg.Backoff == (BackoffConfig{}) {
		cfg.Backoff = DefaultBackoffConfig()
	}
	return &Executor{cfg: cfg, rng: mathrand.New(mathrand.NewSource(seedFromCryptoRand()))}
}

func seedFromCryptoRand() int64 {
	n, err := rand.Int(rand.Reader, big.NewInt(0).SetUint64(^uint64(0)>>1))
	if err != nil {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(time.Now().UnixNano()))
		return int64(binary.BigEndian.Uint64(buf[:]))
	}
	return n.Int64()
}

type waveOutcome struct {
	idx      int
	output   map[string]any
	err      error
	capacity bool
}

func isCapacityError(err error) bool {
	if err == nil {
		return false
	}
	code, ok := errtax.CodeOf(err)
	if !ok {
		return false
	}
	return code == errtax.CodeCapacity || code == errtax.CodeRateLimit
}

// Run processes every row, returning one Result per input row in the
// same order as rows.
func (e *Executor) Run(ctx context.Context, rows []RowContext, fn ProcessFunc) []Result {
	results := make([]Result, len(rows))
	pending := make([]int, len(rows))
	for i := range rows {
		pending[i] = i
	}

	effective := e.cfg.PoolSize
	delay := e.cfg.Backoff.InitialDelay
	deadline := time.Now().Add(time.Duration(e.cfg.MaxCapacityRetrySeconds * float64(time.Second)))

	for len(pending) > 0 {
		waveSize := effective
		if waveSize > len(pending) {
			waveSize = len(pending)
		}
		wave := pending[:waveSize]
		rest := append([]int(nil), pending[waveSize:]...)

		outcomes := make(chan waveOutcome, waveSize)
		var wg sync.WaitGroup
		for _, idx := range wave {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				out, err := fn(ctx, rows[idx])
				outcomes <- waveOutcome{idx: idx, output: out, err: err, capacity: isCapacityError(err)}
			}(idx)
		}
		wg.Wait()
		close(outcomes)

		nextPending := rest
		capacityHit := false
		for oc := range outcomes {
			if oc.capacity && time.Now().Before(deadline) {
				capacityHit = true
				nextPending = append(nextPending, oc.idx)
				continue
			}
			results[oc.idx] = Result{RowIndex: oc.idx, Output: oc.output, Err: oc.err}
		}

		if len(nextPending) == 0 {
			pending = nextPending
			continue
		}

		if capacityHit {
			effective = effective / 2
			if effective < 1 {
				effective = 1
			}
			select {
			case <-ctx.Done():
				for _, idx := range nextPending {
					results[idx] = Result{RowIndex: idx, Err: ctx.Err()}
				}
				return results
			case <-time.After(addJitter(delay, e.cfg.Backoff.Jitter, e.rng)):
			}
			delay = nextDelay(delay, e.cfg.Backoff)
		} else {
			if effective < e.cfg.PoolSize {
				effective++
			}
			delay = e.cfg.Backoff.InitialDelay
		}

		pending = nextPending
	}

	return results
}
