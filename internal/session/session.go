// Package session defines attendance session identifiers and the per-device
// submission flag that is only meaningful together with one of them.
package session

import (
	"strconv"
	"time"
)

// ID identifies one attendance epoch. IDs are milliseconds since the Unix
// epoch at mint time and strictly increase from one reset to the next.
type ID int64

// Next mints the identifier that follows prev. When the clock has not moved
// past prev (fast resets, clock skew) the result is prev+1.
func Next(prev ID, now time.Time) ID {
	id := ID(now.UnixMilli())
	if id <= prev {
		return prev + 1
	}
	return id
}

func (id ID) String() string { return strconv.FormatInt(int64(id), 10) }

// Flag is what a device remembers about its own submissions: whether it has
// already submitted in the session it last observed.
type Flag struct {
	SessionID ID   `json:"sessionId"`
	Submitted bool `json:"submitted"`
}

// Observe reconciles the flag with the authoritative session. A flag recorded
// under any other session is discarded; the second result reports whether
// that happened.
func (f Flag) Observe(current ID) (Flag, bool) {
	if f.SessionID == current {
		return f, false
	}
	return Flag{SessionID: current}, true
}

// CanSubmit reports whether the device may attempt a submission in current.
func (f Flag) CanSubmit(current ID) bool {
	observed, _ := f.Observe(current)
	return !observed.Submitted
}
