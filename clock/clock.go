// Package clock provides the time and entropy sources shared by every authcore
// component. Injecting them keeps lockout windows, token expiry and password
// age checks deterministic under test.
package clock

import (
	"crypto/rand"
	"io"
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock is the time source used by authcore.
type Clock = clockwork.Clock

// FakeClock is a manually advanced Clock for tests.
type FakeClock = *clockwork.FakeClock

// Real returns the wall clock.
func Real() Clock {
	return clockwork.NewRealClock()
}

// NewFake returns a FakeClock positioned at t. A zero t starts at a fixed
// instant so test output stays stable.
func NewFake(t time.Time) FakeClock {
	if t.IsZero() {
		t = time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)
	}
	return clockwork.NewFakeClockAt(t)
}

// Entropy returns the default cryptographically secure random source.
// crypto/rand.Reader is safe for concurrent use.
func Entropy() io.Reader {
	return rand.Reader
}

// Or returns c, or the wall clock when c is nil.
func Or(c Clock) Clock {
	if c == nil {
		return Real()
	}
	return c
}

// EntropyOr returns r, or the default entropy source when r is nil.
func EntropyOr(r io.Reader) io.Reader {
	if r == nil {
		return Entropy()
	}
	return r
}
