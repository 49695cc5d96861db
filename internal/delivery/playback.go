package delivery

import "sync/atomic"

// playbackSlot is a single-slot resource guarding speech playback: at most
// one announcement plays at a time, and a firing that finds the slot busy
// skips its audio instead of queueing or overlapping.
type playbackSlot struct {
	busy atomic.Bool
}

// tryAcquire claims the slot, reporting false if playback is in progress
func (p *playbackSlot) tryAcquire() bool {
	return p.busy.CompareAndSwap(false, true)
}

// release frees the slot when playback ends
func (p *playbackSlot) release() {
	p.busy.Store(false)
}
