// Package timer implements the monotonic deadline primitive the session
// state machine uses for command timeouts, keep-alive scheduling, and
// ACK-table expiry. It is a thin wrapper over time.Time's monotonic clock
// reading, mirroring the cutdown/expired/remain shape of a platform tick
// timer without the tick-counter overflow arithmetic a 32-bit embedded
// target needs.
package timer

import "time"

// Deadline is a single-shot countdown: Set(d) arms it for d from now,
// Expired reports whether that time has passed, and Remaining reports
// how much is left.
type Deadline struct {
	at time.Time
}

// New returns a Deadline armed for d from now.
func New(d time.Duration) *Deadline {
	dl := &Deadline{}
	dl.Set(d)
	return dl
}

// Set arms the deadline for d from now. A zero or negative d expires
// immediately.
func (dl *Deadline) Set(d time.Duration) {
	dl.at = time.Now().Add(d)
}

// Expired reports whether the deadline has passed.
func (dl *Deadline) Expired() bool {
	return time.Now().After(dl.at)
}

// Remaining returns the time left until expiry, or 0 if already expired.
func (dl *Deadline) Remaining() time.Duration {
	r := time.Until(dl.at)
	if r < 0 {
		return 0
	}
	return r
}

// At returns the deadline's absolute expiry time.
func (dl *Deadline) At() time.Time {
	return dl.at
}
