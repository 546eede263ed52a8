package job

// Progress accumulates per-item outcomes across one batch execution and is
// flushed to the ledger at a fixed cadence rather than on every item, bounding
// write amplification. Deltas are relative to the last flush so the ledger
// update can be purely additive.
type Progress struct {
	Total     int
	processed int
	failed    int

	flushedProcessed int
	flushedFailed    int
}

// NewProgress creates a progress accumulator for a batch of the given size.
func NewProgress(total int) *Progress {
	return &Progress{Total: total}
}

// RecordSuccess counts one successfully processed unit.
func (p *Progress) RecordSuccess() {
	p.processed++
}

// RecordFailure counts one failed unit.
func (p *Progress) RecordFailure() {
	p.failed++
}

// Processed returns the number of successfully processed units so far.
func (p *Progress) Processed() int { return p.processed }

// Failed returns the number of failed units so far.
func (p *Progress) Failed() int { return p.failed }

// Done returns the total number of units handled so far.
func (p *Progress) Done() int { return p.processed + p.failed }

// ShouldFlush reports whether a ledger write is due, i.e. the number of units
// handled since the last flush reached the cadence.
func (p *Progress) ShouldFlush(every int) bool {
	if every <= 0 {
		return true
	}
	pending := p.Done() - p.flushedProcessed - p.flushedFailed
	return pending >= every
}

// FlushDeltas returns the additive deltas since the last flush and marks them
// flushed. The caller applies them via an increment-based ledger update so
// concurrent writers never regress the counters.
func (p *Progress) FlushDeltas() (processedDelta, failedDelta int) {
	processedDelta = p.processed - p.flushedProcessed
	failedDelta = p.failed - p.flushedFailed
	p.flushedProcessed = p.processed
	p.flushedFailed = p.failed
	return processedDelta, failedDelta
}

// HasUnflushed reports whether any outcomes recorded since the last flush
// still need to be written to the ledger.
func (p *Progress) HasUnflushed() bool {
	return p.processed != p.flushedProcessed || p.failed != p.flushedFailed
}
