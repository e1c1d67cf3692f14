// Package clock provides an injectable time source.
package clock

import "time"

// Clock supplies the current time. Cooldown and expiry checks read time
// through a Clock so tests can simulate elapsed intervals deterministically.
type Clock interface {
	Now() time.Time
}

// Wall reads the system clock.
type Wall struct{}

func (Wall) Now() time.Time { return time.Now() }
