package certificates

import "time"

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// NewSystemClock constructs a SystemClock.
func NewSystemClock() SystemClock {
	return SystemClock{}
}

// Now returns the current local time.
func (SystemClock) Now() time.Time {
	return time.Now()
}
