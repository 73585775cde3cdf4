package bridge

import (
	"sync"
)

// flightGroup implements the single-flight guard: one outstanding
// operation per key. A caller arriving while an operation is in flight
// waits on the same completion and receives its result rather than
// starting duplicate work. The guard is released when the operation
// settles, after which a new call starts fresh.
type flightGroup struct {
	mu    sync.Mutex
	calls map[string]*flightCall
}

type flightCall struct {
	done chan struct{}
	err  error
}

func newFlightGroup() *flightGroup {
	return &flightGroup{calls: make(map[string]*flightCall)}
}

// Do runs fn under the key's guard, or waits for the in-flight call.
// The second return value reports whether this caller shared an
// existing flight.
func (g *flightGroup) Do(key string, fn func() error) (error, bool) {
	g.mu.Lock()
	if call, ok := g.calls[key]; ok {
		g.mu.Unlock()
		<-call.done
		return call.err, true
	}

	call := &flightCall{done: make(chan struct{})}
	g.calls[key] = call
	g.mu.Unlock()

	call.err = fn()

	g.mu.Lock()
	delete(g.calls, key)
	g.mu.Unlock()
	close(call.done)

	return call.err, false
}
