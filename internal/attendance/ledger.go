package attendance

import (
	"sort"
	"time"

	"rollcall/internal/session"
)

// Entry is one student's presence in a session.
type Entry struct {
	Student string     `json:"student"`
	At      time.Time  `json:"timestamp"`
	Session session.ID `json:"sessionId"`
}

// ledger is the ordered present-list. Like roster.List it is treated as
// immutable once published.
type ledger []Entry

func (l ledger) index(name string) int {
	for i, e := range l {
		if e.Student == name {
			return i
		}
	}
	return -1
}

func (l ledger) add(e Entry) ledger {
	out := make(ledger, 0, len(l)+1)
	out = append(out, l...)
	return append(out, e)
}

func (l ledger) remove(i int) ledger {
	out := make(ledger, 0, len(l)-1)
	out = append(out, l[:i]...)
	return append(out, l[i+1:]...)
}

// fromTimestamps rebuilds a ledger from the persisted name -> time map.
// Maps carry no order, so entries come back oldest first, ties by name.
func fromTimestamps(m map[string]time.Time, sid session.ID) ledger {
	out := make(ledger, 0, len(m))
	for name, at := range m {
		out = append(out, Entry{Student: name, At: at.UTC(), Session: sid})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].At.Equal(out[j].At) {
			return out[i].At.Before(out[j].At)
		}
		return out[i].Student < out[j].Student
	})
	return out
}

func (l ledger) timestamps() map[string]time.Time {
	m := make(map[string]time.Time, len(l))
	for _, e := range l {
		m[e.Student] = e.At
	}
	return m
}
