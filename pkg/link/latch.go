package link

import "sync/atomic"

// CompletionLatch is a one-bit notification from interrupt context to
// the arbitration loop. Notifications arriving before the next
// TakeAndClear coalesce into one.
type CompletionLatch struct {
	pending atomic.Bool
}

// Notify sets the latch. It is called from interrupt context only and
// never blocks.
func (l *CompletionLatch) Notify() {
	l.pending.Store(true)
}

// TakeAndClear atomically clears the latch and reports whether it was set.
func (l *CompletionLatch) TakeAndClear() bool {
	return l.pending.Swap(false)
}
