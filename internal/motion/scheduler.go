package motion

import "time"

// Scheduler abstracts delayed and background execution so a host application
// (e.g. an automation hub with its own event loop) can own task scheduling.
// Implementations must support cancelling a delayed call before it fires.
type Scheduler interface {
	// CallLater runs fn after delay, returning a cancel function. Cancel is
	// a no-op once fn has started.
	CallLater(delay time.Duration, fn func()) (cancel func())
	// Go runs fn in the background.
	Go(fn func())
}

// defaultScheduler runs tasks on plain goroutines and time.AfterFunc timers.
type defaultScheduler struct{}

func (defaultScheduler) CallLater(delay time.Duration, fn func()) (cancel func()) {
	t := time.AfterFunc(delay, fn)
	return func() { t.Stop() }
}

func (defaultScheduler) Go(fn func()) {
	go fn()
}
