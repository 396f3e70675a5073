package host

import (
	"sync"
	"time"
)

// replyTimers tracks the deferred replies scheduled on behalf of one container so they
// can be stopped when that container goes away.
type replyTimers struct {
	mu     sync.Mutex
	next   uint64
	timers map[uint64]*time.Timer
	closed bool
}

func newReplyTimers() *replyTimers {
	return &replyTimers{timers: map[uint64]*time.Timer{}}
}

// schedule runs fn once after d unless stopAll is called first. It returns false when
// the set is already closed.
func (r *replyTimers) schedule(d time.Duration, fn func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.next++
	id := r.next
	r.timers[id] = time.AfterFunc(d, func() {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return
		}
		delete(r.timers, id)
		r.mu.Unlock()
		fn()
	})
	return true
}

// stopAll cancels every pending timer and closes the set. It returns how many were stopped.
func (r *replyTimers) stopAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	stopped := 0
	for id, t := range r.timers {
		if t.Stop() {
			stopped++
		}
		delete(r.timers, id)
	}
	r.closed = true
	return stopped
}

func (r *replyTimers) pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}
