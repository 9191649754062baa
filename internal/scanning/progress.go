package scanning

import "sync"

// Progress forwards percentages to a ProgressFunc, clamped to [0,100] and
// never decreasing. Repeated values are not forwarded.
type Progress struct {
	mu   sync.Mutex
	fn   ProgressFunc
	last int
	sent bool
}

// NewProgress wraps fn. A nil fn yields a Progress that discards updates.
func NewProgress(fn ProgressFunc) *Progress {
	return &Progress{fn: fn}
}

// Report forwards percent if it advances the reported progress.
func (p *Progress) Report(percent int) {
	if p == nil {
		return
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sent && percent <= p.last {
		return
	}
	p.last = percent
	p.sent = true
	if p.fn != nil {
		p.fn(percent)
	}
}

// Func returns p as a ProgressFunc.
func (p *Progress) Func() ProgressFunc {
	return p.Report
}

// Done reports 100.
func (p *Progress) Done() {
	p.Report(100)
}
