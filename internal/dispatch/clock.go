package dispatch

import "time"

// Timer is a cancelable pending callback.
type Timer interface {
	Stop() bool
}

// Clock abstracts time for the dispatcher so tests can drive timers
// deterministically.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// NewClock returns the wall-clock implementation.
func NewClock() Clock { return realClock{} }
