package runner

import "sync/atomic"

// Budget is the countdown of requests a run may still issue, shared by all
// of its workers.
type Budget struct {
	remaining atomic.Int64
}

func NewBudget(total int) *Budget {
	b := &Budget{}
	if total > 0 {
		b.remaining.Store(int64(total))
	}
	return b
}

// Reserve takes one request from the budget. It returns false, leaving the
// budget untouched, once nothing is left.
func (b *Budget) Reserve() bool {
	for {
		cur := b.remaining.Load()
		if cur <= 0 {
			return false
		}
		if b.remaining.CompareAndSwap(cur, cur-1) {
			return true
		}
	}
}

func (b *Budget) Remaining() int {
	return int(b.remaining.Load())
}
