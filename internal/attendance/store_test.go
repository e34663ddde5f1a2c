package attendance

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/roster"
	"rollcall/internal/session"
	"rollcall/internal/store"
)

// memBlob is an in-memory store.Blob whose writes can be made to fail per key.
type memBlob struct {
	mu   sync.Mutex
	docs map[string][]byte
	fail map[string]error
}

func newMemBlob() *memBlob {
	return &memBlob{docs: map[string][]byte{}, fail: map[string]error{}}
}

func (m *memBlob) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return append([]byte(nil), d...), nil
}

func (m *memBlob) Save(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail[key]; err != nil {
		return err
	}
	m.docs[key] = append([]byte(nil), data...)
	return nil
}

func (m *memBlob) Ping(context.Context) error { return nil }
func (m *memBlob) Close() error               { return nil }

func (m *memBlob) failOn(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[key] = err
}

func (m *memBlob) doc(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.docs[key])
}

// fakeClock advances by one second on every call.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newStore(t *testing.T, blob store.Blob, opts Options) *Store {
	t.Helper()
	if opts.Now == nil {
		clock := &fakeClock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
		opts.Now = clock.Now
	}
	s, err := Open(context.Background(), blob, opts)
	require.NoError(t, err)
	return s
}

func names(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Student)
	}
	return out
}

func TestOpenEmpty(t *testing.T) {
	blob := newMemBlob()
	s := newStore(t, blob, Options{Seed: []string{"bob", "Alice"}})

	assert.NotZero(t, s.Session())
	assert.Empty(t, s.List())
	assert.Equal(t, []string{"Alice", "bob"}, s.Students())
	assert.Equal(t, s.Session().String(), blob.doc(KeySession), "minted session is persisted")
	assert.JSONEq(t, `["Alice","bob"]`, blob.doc(KeyRoster))
}

func TestOpenRestoresState(t *testing.T) {
	blob := newMemBlob()
	ctx := context.Background()
	require.NoError(t, blob.Save(ctx, KeySession, []byte(`1700000000000`)))
	require.NoError(t, blob.Save(ctx, KeyRoster, []byte(`["Carol","Alice"]`)))
	require.NoError(t, blob.Save(ctx, KeyAttendance, []byte(`{
		"Carol": "2024-03-01T09:05:00.000Z",
		"Alice": "2024-03-01T09:01:00.000Z"
	}`)))

	s := newStore(t, blob, Options{Seed: []string{"ignored"}})
	assert.Equal(t, session.ID(1700000000000), s.Session())
	assert.Equal(t, []string{"Alice", "Carol"}, names(s.List()), "reloaded entries are ordered by time")
	assert.Equal(t, []string{"Alice", "Carol"}, s.Students())
	for _, e := range s.List() {
		assert.Equal(t, session.ID(1700000000000), e.Session)
	}
}

func TestOpenCorrupt(t *testing.T) {
	for _, key := range []string{KeySession, KeyAttendance, KeyRoster} {
		t.Run(key, func(t *testing.T) {
			blob := newMemBlob()
			require.NoError(t, blob.Save(context.Background(), key, []byte(`{not json`)))
			_, err := Open(context.Background(), blob, Options{})
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestOpenBackendError(t *testing.T) {
	blob := newMemBlob()
	blob.failOn(KeySession, errors.New("disk full"))
	_, err := Open(context.Background(), blob, Options{})
	assert.True(t, IsPersist(err))
}

func TestRecord(t *testing.T) {
	blob := newMemBlob()
	s := newStore(t, blob, Options{})
	ctx := context.Background()

	first, err := s.Record(ctx, "Alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", first.Student)
	assert.Equal(t, s.Session(), first.Session)

	_, err = s.Record(ctx, "Alice")
	assert.ErrorIs(t, err, ErrAlreadyPresent)

	_, err = s.Record(ctx, "alice")
	assert.NoError(t, err, "names are case-sensitive")

	_, err = s.Record(ctx, "  ")
	assert.ErrorIs(t, err, ErrInvalidName)

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, first, list[0], "original timestamp is unchanged")
	assert.JSONEq(t, fmt.Sprintf(`{"Alice":%q,"alice":%q}`,
		list[0].At.Format(time.RFC3339Nano), list[1].At.Format(time.RFC3339Nano)), blob.doc(KeyAttendance))
}

func TestRecordStrictRoster(t *testing.T) {
	s := newStore(t, newMemBlob(), Options{StrictRoster: true, Seed: []string{"Alice"}})
	ctx := context.Background()

	_, err := s.Record(ctx, "Mallory")
	assert.ErrorIs(t, err, ErrNotEnrolled)
	_, err = s.Record(ctx, "Alice")
	assert.NoError(t, err)
}

func TestRecordPermissiveRoster(t *testing.T) {
	s := newStore(t, newMemBlob(), Options{Seed: []string{"Alice"}})
	_, err := s.Record(context.Background(), "Walk-in")
	assert.NoError(t, err)
}

func TestRecordConcurrent(t *testing.T) {
	s := newStore(t, newMemBlob(), Options{})
	ctx := context.Background()

	const students = 40
	const dupes = 20
	var wg sync.WaitGroup
	errs := make(chan error, dupes)
	for i := 0; i < students; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Record(ctx, fmt.Sprintf("student-%02d", i))
			assert.NoError(t, err)
		}(i)
	}
	for i := 0; i < dupes; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Record(ctx, "same")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrAlreadyPresent):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, dupes-1, conflicts)
	assert.Len(t, s.List(), students+1)
}

func TestReadsDoNotBlockOnWriters(t *testing.T) {
	blob := &slowBlob{memBlob: newMemBlob(), entered: make(chan struct{}), release: make(chan struct{})}
	s := newStore(t, blob.memBlob, Options{})
	s.blob = blob

	done := make(chan error)
	go func() {
		_, err := s.Record(context.Background(), "Alice")
		done <- err
	}()
	<-blob.entered

	// writer is parked inside Save while holding the mutex
	assert.Empty(t, s.List())
	assert.NotZero(t, s.Snapshot().Session)

	close(blob.release)
	require.NoError(t, <-done)
	assert.Len(t, s.List(), 1)
}

type slowBlob struct {
	*memBlob
	entered chan struct{}
	release chan struct{}
}

func (b *slowBlob) Save(ctx context.Context, key string, data []byte) error {
	close(b.entered)
	<-b.release
	return b.memBlob.Save(ctx, key, data)
}

func TestRecordPersistFailure(t *testing.T) {
	blob := newMemBlob()
	s := newStore(t, blob, Options{})
	ctx := context.Background()
	_, err := s.Record(ctx, "Alice")
	require.NoError(t, err)
	before := blob.doc(KeyAttendance)

	blob.failOn(KeyAttendance, errors.New("read-only file system"))
	_, err = s.Record(ctx, "bob")
	require.Error(t, err)
	assert.True(t, IsPersist(err))
	assert.Equal(t, []string{"Alice"}, names(s.List()))
	assert.Equal(t, before, blob.doc(KeyAttendance))

	blob.failOn(KeyAttendance, nil)
	_, err = s.Record(ctx, "bob")
	assert.NoError(t, err, "retry succeeds once the backend recovers")
}

func TestRemove(t *testing.T) {
	s := newStore(t, newMemBlob(), Options{Seed: []string{"Alice"}})
	ctx := context.Background()
	_, err := s.Record(ctx, "Alice")
	require.NoError(t, err)

	require.NoError(t, s.Remove(ctx, "Alice"))
	assert.Empty(t, s.List())
	assert.Equal(t, []string{"Alice"}, s.Students(), "attendance delete keeps the roster")
	assert.ErrorIs(t, s.Remove(ctx, "Alice"), ErrNotPresent)
}

func TestClear(t *testing.T) {
	s := newStore(t, newMemBlob(), Options{})
	ctx := context.Background()
	_, _ = s.Record(ctx, "Alice")
	sid := s.Session()

	require.NoError(t, s.Clear(ctx))
	assert.Empty(t, s.List())
	assert.Equal(t, sid, s.Session())
}

func TestReset(t *testing.T) {
	blob := newMemBlob()
	s := newStore(t, blob, Options{Seed: []string{"Alice", "bob"}})
	ctx := context.Background()
	_, err := s.Record(ctx, "Alice")
	require.NoError(t, err)
	before := s.Session()

	after, err := s.Reset(ctx)
	require.NoError(t, err)
	assert.Greater(t, after, before)
	assert.Equal(t, after, s.Session())
	assert.Empty(t, s.List())
	assert.Equal(t, []string{"Alice", "bob"}, s.Students())
	assert.JSONEq(t, `{}`, blob.doc(KeyAttendance))
	assert.Equal(t, after.String(), blob.doc(KeySession))

	e, err := s.Record(ctx, "Alice")
	require.NoError(t, err, "a student recorded before the reset can submit again")
	assert.Equal(t, after, e.Session)
}

func TestResetPersistFailureRollsBack(t *testing.T) {
	blob := newMemBlob()
	s := newStore(t, blob, Options{})
	ctx := context.Background()
	_, err := s.Record(ctx, "Alice")
	require.NoError(t, err)
	sid := s.Session()
	attendanceDoc := blob.doc(KeyAttendance)

	blob.failOn(KeySession, errors.New("disk full"))
	got, err := s.Reset(ctx)
	require.Error(t, err)
	assert.True(t, IsPersist(err))
	assert.Equal(t, sid, got)
	assert.Equal(t, sid, s.Session())
	assert.Equal(t, []string{"Alice"}, names(s.List()))
	assert.JSONEq(t, attendanceDoc, blob.doc(KeyAttendance), "already written attendance is restored")
}

func TestAddStudent(t *testing.T) {
	s := newStore(t, newMemBlob(), Options{Seed: []string{"bob"}})
	ctx := context.Background()

	stored, err := s.AddStudent(ctx, "  Alice ")
	require.NoError(t, err)
	assert.Equal(t, "Alice", stored)
	assert.Equal(t, []string{"Alice", "bob"}, s.Students())

	_, err = s.AddStudent(ctx, "Alice")
	assert.ErrorIs(t, err, roster.ErrAlreadyExists)
	_, err = s.AddStudent(ctx, "")
	assert.ErrorIs(t, err, roster.ErrEmptyName)
}

func TestSearchStudents(t *testing.T) {
	s := newStore(t, newMemBlob(), Options{Seed: []string{"Rajesh Yadav", "Raushan Sharma", "Kavya Nair"}})
	assert.Equal(t, s.Students(), s.SearchStudents(""))
	assert.Equal(t, []string{"Rajesh Yadav"}, s.SearchStudents("RAJ"))
}

func TestRemoveStudentCascades(t *testing.T) {
	blob := newMemBlob()
	s := newStore(t, blob, Options{Seed: []string{"Alice", "bob"}})
	ctx := context.Background()

	_, err := s.Record(ctx, "Alice")
	require.NoError(t, err)
	_, err = s.Record(ctx, "Alice")
	require.ErrorIs(t, err, ErrAlreadyPresent)

	dropped, err := s.RemoveStudent(ctx, "Alice")
	require.NoError(t, err)
	assert.True(t, dropped)

	snap := s.Snapshot()
	assert.Equal(t, []string{"bob"}, snap.Roster)
	assert.Empty(t, snap.Entries)
	assert.JSONEq(t, `{}`, blob.doc(KeyAttendance))
	assert.JSONEq(t, `["bob"]`, blob.doc(KeyRoster))

	dropped, err = s.RemoveStudent(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, dropped)

	_, err = s.RemoveStudent(ctx, "bob")
	assert.ErrorIs(t, err, roster.ErrNotFound)
}

func TestRemoveStudentPersistFailure(t *testing.T) {
	blob := newMemBlob()
	s := newStore(t, blob, Options{Seed: []string{"Alice"}})
	ctx := context.Background()
	_, err := s.Record(ctx, "Alice")
	require.NoError(t, err)

	blob.failOn(KeyAttendance, errors.New("disk full"))
	_, err = s.RemoveStudent(ctx, "Alice")
	require.Error(t, err)

	snap := s.Snapshot()
	assert.Equal(t, []string{"Alice"}, snap.Roster)
	assert.Equal(t, []string{"Alice"}, names(snap.Entries))
	assert.JSONEq(t, `["Alice"]`, blob.doc(KeyRoster), "roster write is rolled back")
}

func TestFileBackedRoundTrip(t *testing.T) {
	dir := t.TempDir()
	f, err := store.NewFile(dir)
	require.NoError(t, err)
	ctx := context.Background()

	s := newStore(t, f, Options{Seed: []string{"Alice", "bob"}})
	_, err = s.Record(ctx, "bob")
	require.NoError(t, err)
	sid := s.Session()

	raw, err := os.ReadFile(filepath.Join(dir, "attendance.json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"bob": "2024-03-01T09:00:02Z"`)

	reopened := newStore(t, f, Options{})
	assert.Equal(t, sid, reopened.Session())
	assert.Equal(t, []string{"bob"}, names(reopened.List()))
	assert.Equal(t, []string{"Alice", "bob"}, reopened.Students())
}

func TestFileCorruptIsFatal(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "attendance.json"), []byte("{\"Alice\": 12"), 0o644))
	f, err := store.NewFile(dir)
	require.NoError(t, err)

	_, err = Open(context.Background(), f, Options{})
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestScenarioRosterAndAttendance(t *testing.T) {
	s := newStore(t, newMemBlob(), Options{Seed: []string{"Alice", "bob"}})
	ctx := context.Background()

	_, err := s.Record(ctx, "Alice")
	require.NoError(t, err)
	_, err = s.Record(ctx, "Alice")
	require.ErrorIs(t, err, ErrAlreadyPresent)
	_, err = s.RemoveStudent(ctx, "Alice")
	require.NoError(t, err)
	assert.Empty(t, s.List())
}

func TestCloseReleasesBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	blob, err := store.NewBolt(path)
	require.NoError(t, err)
	s := newStore(t, blob, Options{})

	_, err = s.Record(context.Background(), "Alice")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := store.NewBolt(path)
	require.NoError(t, err, "bolt file lock must be released")
	defer reopened.Close()
	s2 := newStore(t, reopened, Options{})
	assert.Equal(t, []string{"Alice"}, names(s2.List()))
}
