// Package attendance owns the authoritative classroom state: the current
// session, the present-list recorded under it and the enrolled roster.
package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"rollcall/internal/roster"
	"rollcall/internal/session"
	"rollcall/internal/store"
)

// Keys the state is persisted under.
const (
	KeyAttendance = "attendance"
	KeyRoster     = "roster"
	KeySession    = "session"
)

// Options tune a Store.
type Options struct {
	// StrictRoster rejects submissions for names that are not enrolled.
	StrictRoster bool
	// Seed is the roster used when none has been persisted yet.
	Seed []string
	// Now defaults to time.Now.
	Now func() time.Time
}

// state is published whole through an atomic pointer and never mutated
// afterwards, so readers always see session, present-list and roster that
// belong together.
type state struct {
	session session.ID
	present ledger
	roster  roster.List
}

// Snapshot is a consistent, caller-owned copy of the store.
type Snapshot struct {
	Session session.ID
	Entries []Entry
	Roster  []string
}

// Present maps each present student to the submission time.
func (s Snapshot) Present() map[string]time.Time {
	return ledger(s.Entries).timestamps()
}

// Store serializes mutations with one mutex and persists every change before
// publishing it. Reads never take the mutex.
type Store struct {
	blob   store.Blob
	strict bool
	now    func() time.Time

	mu    sync.Mutex
	state atomic.Pointer[state]
}

// Open builds a Store from whatever blob holds. Missing documents start
// empty; documents that cannot be decoded fail with ErrCorrupt.
func Open(ctx context.Context, blob store.Blob, opts Options) (*Store, error) {
	s := &Store{blob: blob, strict: opts.StrictRoster, now: opts.Now}
	if s.now == nil {
		s.now = time.Now
	}

	st := &state{}
	var dirty []string

	var sid session.ID
	switch found, err := s.load(ctx, KeySession, &sid); {
	case err != nil:
		return nil, err
	case !found:
		sid = session.Next(0, s.now())
		dirty = append(dirty, KeySession)
	}
	st.session = sid

	var present map[string]time.Time
	if _, err := s.load(ctx, KeyAttendance, &present); err != nil {
		return nil, err
	}
	st.present = fromTimestamps(present, sid)

	var names []string
	switch found, err := s.load(ctx, KeyRoster, &names); {
	case err != nil:
		return nil, err
	case !found && len(opts.Seed) > 0:
		names = opts.Seed
		dirty = append(dirty, KeyRoster)
	}
	st.roster = roster.New(names...)

	for _, key := range dirty {
		if err := s.save(ctx, st, key); err != nil {
			return nil, err
		}
	}
	s.state.Store(st)
	return s, nil
}

// Close waits for an in-flight mutation and closes the backend.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blob.Close()
}

func (s *Store) load(ctx context.Context, key string, v any) (bool, error) {
	data, err := s.blob.Load(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	return true, nil
}

func encode(st *state, key string) ([]byte, error) {
	switch key {
	case KeyAttendance:
		return json.MarshalIndent(st.present.timestamps(), "", "  ")
	case KeyRoster:
		return json.MarshalIndent(st.roster.Names(), "", "  ")
	case KeySession:
		return json.Marshal(st.session)
	}
	return nil, fmt.Errorf("unknown key %q", key)
}

func (s *Store) save(ctx context.Context, st *state, key string) error {
	data, err := encode(st, key)
	if err == nil {
		err = s.blob.Save(ctx, key, data)
	}
	if err != nil {
		return &PersistError{Key: key, Err: err}
	}
	return nil
}

// commit writes keys of next in order and publishes next. If a write fails,
// keys already written are restored from the current state so the backend
// and memory keep agreeing. Callers hold s.mu.
func (s *Store) commit(ctx context.Context, next *state, keys ...string) error {
	for i, key := range keys {
		if err := s.save(ctx, next, key); err != nil {
			prev := s.state.Load()
			for _, done := range keys[:i] {
				if rerr := s.save(context.WithoutCancel(ctx), prev, done); rerr != nil {
					log.Printf("rollback of %s failed: %v", done, rerr)
				}
			}
			return err
		}
	}
	s.state.Store(next)
	return nil
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// Session returns the authoritative session id.
func (s *Store) Session() session.ID {
	return s.state.Load().session
}

// Counts returns how many students are present and enrolled in the latest
// published state.
func (s *Store) Counts() (present, enrolled int) {
	st := s.state.Load()
	return len(st.present), len(st.roster)
}

// Snapshot returns session, present-list and roster read together.
func (s *Store) Snapshot() Snapshot {
	st := s.state.Load()
	return Snapshot{
		Session: st.session,
		Entries: append([]Entry{}, st.present...),
		Roster:  st.roster.Names(),
	}
}

// List returns the present-list in insertion order. After the store is
// reopened from a backend the order is by submission time.
func (s *Store) List() []Entry {
	return append([]Entry{}, s.state.Load().present...)
}

// Record marks name present in the current session. A second call for the
// same name fails with ErrAlreadyPresent and changes nothing.
func (s *Store) Record(ctx context.Context, name string) (Entry, error) {
	if strings.TrimSpace(name) == "" {
		return Entry{}, ErrInvalidName
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.state.Load()
	if cur.present.index(name) >= 0 {
		return Entry{}, ErrAlreadyPresent
	}
	if s.strict && !cur.roster.Contains(name) {
		return Entry{}, ErrNotEnrolled
	}
	e := Entry{Student: name, At: s.timestamp(), Session: cur.session}
	next := &state{session: cur.session, present: cur.present.add(e), roster: cur.roster}
	if err := s.commit(ctx, next, KeyAttendance); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// Remove deletes the record for name. The roster is left alone.
func (s *Store) Remove(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.state.Load()
	i := cur.present.index(name)
	if i < 0 {
		return ErrNotPresent
	}
	next := &state{session: cur.session, present: cur.present.remove(i), roster: cur.roster}
	return s.commit(ctx, next, KeyAttendance)
}

// Clear empties the present-list without starting a new session.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.state.Load()
	next := &state{session: cur.session, present: ledger{}, roster: cur.roster}
	return s.commit(ctx, next, KeyAttendance)
}

// Reset starts a new session: a fresh id strictly greater than the current
// one and an empty present-list, published together.
func (s *Store) Reset(ctx context.Context) (session.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.state.Load()
	next := &state{
		session: session.Next(cur.session, s.now()),
		present: ledger{},
		roster:  cur.roster,
	}
	if err := s.commit(ctx, next, KeyAttendance, KeySession); err != nil {
		return cur.session, err
	}
	return next.session, nil
}

// Students returns the roster in sorted order.
func (s *Store) Students() []string {
	return s.state.Load().roster.Names()
}

// SearchStudents filters the roster case-insensitively, keeping roster order.
func (s *Store) SearchStudents(query string) []string {
	return s.state.Load().roster.Search(query)
}

// AddStudent enrolls name and returns the stored (trimmed) form.
func (s *Store) AddStudent(ctx context.Context, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.state.Load()
	list, stored, err := cur.roster.Add(name)
	if err != nil {
		return stored, err
	}
	next := &state{session: cur.session, present: cur.present, roster: list}
	if err := s.commit(ctx, next, KeyRoster); err != nil {
		return "", err
	}
	return stored, nil
}

// RemoveStudent unenrolls name and drops its attendance record, if any, in
// the same step. The bool reports whether a record was dropped.
func (s *Store) RemoveStudent(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.state.Load()
	list, err := cur.roster.Remove(name)
	if err != nil {
		return false, err
	}
	next := &state{session: cur.session, present: cur.present, roster: list}
	keys := []string{KeyRoster}
	i := cur.present.index(name)
	if i >= 0 {
		next.present = cur.present.remove(i)
		keys = append(keys, KeyAttendance)
	}
	if err := s.commit(ctx, next, keys...); err != nil {
		return false, err
	}
	return i >= 0, nil
}
