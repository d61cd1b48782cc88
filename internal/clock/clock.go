// Package clock provides the monotonic nanosecond time source used for event
// ordering. Services take a Clock so tests can freeze or step time.
package clock

import "time"

// Clock returns the current time in nanoseconds.
type Clock interface {
	Now() int64
}

// System reads the wall clock.
type System struct{}

func (System) Now() int64 { return time.Now().UnixNano() }
