// Package device keeps the state a single client device remembers between
// runs: its id and whether it already submitted attendance in the session it
// last saw. Flag and session id live in one document and are always read and
// written together.
package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"rollcall/internal/attendance"
	"rollcall/internal/session"
	"rollcall/internal/store"
)

// Key is the document the device state is stored under.
const Key = "device"

var (
	ErrAlreadySubmitted = errors.New("attendance already submitted from this device")
	// ErrFlagNotSaved means the submission was recorded but this device could
	// not remember it. The returned session is valid.
	ErrFlagNotSaved = errors.New("attendance recorded but device state not saved")
)

// Authority is whoever owns the authoritative session: the server over HTTP
// or a store opened on the device itself.
type Authority interface {
	CurrentSession(ctx context.Context) (session.ID, error)
	Submit(ctx context.Context, student string) (session.ID, error)
}

type document struct {
	DeviceID string `json:"deviceId"`
	session.Flag
}

// Tracker guards submissions from one device.
type Tracker struct {
	blob store.Blob
	mu   sync.Mutex
}

// NewTracker keeps device state in blob.
func NewTracker(blob store.Blob) *Tracker {
	return &Tracker{blob: blob}
}

func (t *Tracker) load(ctx context.Context) (document, error) {
	var doc document
	data, err := t.blob.Load(ctx, Key)
	if errors.Is(err, store.ErrNotFound) {
		return document{DeviceID: uuid.NewString()}, nil
	}
	if err != nil {
		return doc, fmt.Errorf("load device state: %w", err)
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		// unreadable local state only costs the device its flag
		return document{DeviceID: uuid.NewString()}, nil
	}
	if doc.DeviceID == "" {
		doc.DeviceID = uuid.NewString()
	}
	return doc, nil
}

func (t *Tracker) save(ctx context.Context, doc document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	if err := t.blob.Save(ctx, Key, data); err != nil {
		return fmt.Errorf("save device state: %w", err)
	}
	return nil
}

// ID returns the stable device id, creating it on first use.
func (t *Tracker) ID(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	doc, err := t.load(ctx)
	if err != nil {
		return "", err
	}
	return doc.DeviceID, t.save(ctx, doc)
}

// Flag returns the stored flag without reconciling it.
func (t *Tracker) Flag(ctx context.Context) (session.Flag, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	doc, err := t.load(ctx)
	return doc.Flag, err
}

// Sync reconciles the stored flag with current and persists the result when
// a stale flag was dropped.
func (t *Tracker) Sync(ctx context.Context, current session.ID) (session.Flag, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sync(ctx, current)
}

func (t *Tracker) sync(ctx context.Context, current session.ID) (session.Flag, error) {
	doc, err := t.load(ctx)
	if err != nil {
		return session.Flag{}, err
	}
	flag, changed := doc.Flag.Observe(current)
	if changed {
		doc.Flag = flag
		if err := t.save(ctx, doc); err != nil {
			return flag, err
		}
	}
	return flag, nil
}

// Submit records student through auth unless this device already submitted
// in the authoritative session. On success the flag is set for the session
// the submission landed in.
func (t *Tracker) Submit(ctx context.Context, auth Authority, student string) (session.ID, error) {
	current, err := auth.CurrentSession(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch session: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	flag, err := t.sync(ctx, current)
	if err != nil {
		return current, err
	}
	if flag.Submitted {
		return current, ErrAlreadySubmitted
	}

	sid, err := auth.Submit(ctx, student)
	if err != nil {
		return current, err
	}
	doc, err := t.load(ctx)
	if err == nil {
		doc.Flag = session.Flag{SessionID: sid, Submitted: true}
		err = t.save(ctx, doc)
	}
	if err != nil {
		return sid, fmt.Errorf("%w: %w", ErrFlagNotSaved, err)
	}
	return sid, nil
}

// Local is the Authority for device-only mode, where the attendance store
// itself lives in device storage.
type Local struct {
	Store *attendance.Store
}

// CurrentSession returns the local store's session.
func (l Local) CurrentSession(context.Context) (session.ID, error) {
	return l.Store.Session(), nil
}

// Submit records student in the local store.
func (l Local) Submit(ctx context.Context, student string) (session.ID, error) {
	e, err := l.Store.Record(ctx, student)
	if err != nil {
		return l.Store.Session(), err
	}
	return e.Session, nil
}
