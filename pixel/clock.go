package pixel

import "time"

// Clock abstracts wall time and one-shot timers so trigger delays,
// heartbeats and cooldown windows are testable without sleeping.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is a cancelable scheduled callback.
type Timer interface {
	Stop() bool
}

type systemClock struct{}

// SystemClock returns the real-time Clock used outside of tests.
func SystemClock() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}
