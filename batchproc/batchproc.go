// Package batchproc implements the batch-transform mixin: a plugin
// that accepts rows one at a time but processes them on a bounded
// worker pool, releasing results to its output port in strict
// submission order regardless of completion order.
package batchproc

import (
	"context"
	"sync"

	"github.com/tachyon-beep/elspeth-sub008/errtax"
	"github.com/tachyon-beep/elspeth-sub008/lineage"
)

// ProcessFunc runs one row's work, returning its TransformResult.
type ProcessFunc func(ctx context.Context, row any) lineage.TransformResult

// OutputPort receives results in FIFO submission order.
type OutputPort interface {
	Emit(result lineage.TransformResult, token *lineage.Token)
}

// submission is one in-flight unit of work tracked by the reorder buffer.
type submission struct {
	seq     uint64
	token   *lineage.Token
	stateID string
}

type readyEntry struct {
	token  *lineage.Token
	result lineage.TransformResult
}

// Processor is the batch-transform mixin. One Processor instance
// belongs to exactly one plugin node.
type Processor struct {
	name       string
	output     OutputPort
	maxWorkers int

	mu        sync.Mutex
	nextSeq   uint64
	releaseAt uint64 // next seq number the reorder buffer must release
	pending   map[uint64]*submission
	ready     map[uint64]readyEntry
	evicted   map[uint64]bool         // seqs whose waiter timed out; skipped rather than emitted
	byKey     map[string]*submission // keyed by token_id+"/"+state_id, for evict_submission

	sem chan struct{} // bounds max_pending (backpressure)
	wg  sync.WaitGroup

	shutdownOnce sync.Once
	closed       bool
}

// InitBatchProcessing constructs a Processor. Called once, during the
// plugin's connect_output(), mirroring init_batch_processing's
// single-call lifecycle contract.
func InitBatchProcessing(name string, output OutputPort, maxPending, maxWorkers int) *Processor {
	if maxPending < 1 {
		maxPending = 1
	}
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &Processor{
		name:       name,
		output:     output,
		maxWorkers: maxWorkers,
		pending:    make(map[uint64]*submission),
		ready:      make(map[uint64]readyEntry),
		evicted:    make(map[uint64]bool),
		byKey:      make(map[string]*submission),
		sem:        make(chan struct{}, maxPending),
	}
}

func submissionKey(tokenID, stateID string) string {
	return tokenID + "/" + stateID
}

// AcceptRow is the engine's entry point: it assigns a monotonic
// sequence number to tok, submits the row to the worker pool, and
// blocks the caller once max_pending in-flight submissions are
// outstanding. tok must be set; a nil token is a framework invariant
// violation, not a row-level error.
func (p *Processor) AcceptRow(ctx context.Context, row any, tok *lineage.Token, stateID string, fn ProcessFunc) error {
	if tok == nil {
		return errtax.OrchestrationInvariant("accept_row called with no token set on context")
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errtax.OrchestrationInvariant("accept_row called after shutdown_batch_processing")
	}
	seq := p.nextSeq
	p.nextSeq++
	sub := &submission{seq: seq, token: tok, stateID: stateID}
	p.pending[seq] = sub
	p.byKey[submissionKey(tok.TokenID, stateID)] = sub
	p.mu.Unlock()

	// Backpressure: block until a worker slot is free. Does not drop,
	// does not queue unbounded beyond the semaphore's capacity.
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	snapshotToken := *tok // snapshot at submit so a later ctx.Token mutation cannot retroactively change this row's identity
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() { <-p.sem }()
		result := fn(ctx, row)
		p.finish(seq, &snapshotToken, result)
	}()

	return nil
}

// finish marks seq's slot ready and drains the FIFO head as far as it
// can go, emitting every contiguously-ready submission in order.
func (p *Processor) finish(seq uint64, tok *lineage.Token, result lineage.TransformResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.evicted[seq] {
		delete(p.evicted, seq)
		return // waiter already timed out; this result is discarded
	}
	if _, stillPending := p.pending[seq]; !stillPending {
		return
	}
	p.ready[seq] = readyEntry{token: tok, result: result}
	p.drainLocked()
}

// drainLocked releases every contiguously-ready entry starting at
// releaseAt, skipping over evicted slots without emitting them. Must
// be called with p.mu held.
func (p *Processor) drainLocked() {
	for {
		if p.evicted[p.releaseAt] {
			delete(p.evicted, p.releaseAt)
			p.releaseAt++
			continue
		}
		entry, ok := p.ready[p.releaseAt]
		if !ok {
			return
		}
		delete(p.ready, p.releaseAt)
		if sub := p.pending[p.releaseAt]; sub != nil {
			delete(p.byKey, submissionKey(sub.token.TokenID, sub.stateID))
		}
		delete(p.pending, p.releaseAt)
		p.releaseAt++
		if p.output != nil {
			p.output.Emit(entry.result, entry.token)
		}
	}
}

// EvictSubmission removes a buffered slot for (tokenID, stateID) whose
// waiter has timed out, so a retry under a new state_id can proceed
// without blocking behind a stalled FIFO head. Returns false if no
// matching submission is pending.
func (p *Processor) EvictSubmission(tokenID, stateID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := submissionKey(tokenID, stateID)
	sub, ok := p.byKey[key]
	if !ok {
		return false
	}
	delete(p.byKey, key)
	delete(p.pending, sub.seq)
	delete(p.ready, sub.seq)
	p.evicted[sub.seq] = true // finish() discards this seq's result if the worker is still in flight
	if sub.seq == p.releaseAt {
		p.drainLocked()
	}
	return true
}

// FlushBatchProcessing blocks until every currently-submitted row has
// been processed and released.
func (p *Processor) FlushBatchProcessing(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ShutdownBatchProcessing stops accepting new rows and waits for
// in-flight work to finish.
func (p *Processor) ShutdownBatchProcessing() {
	p.shutdownOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		p.wg.Wait()
	})
}
