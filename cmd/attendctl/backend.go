package main

import (
	"context"
	"time"

	"rollcall/internal/attendance"
	"rollcall/internal/client"
	"rollcall/internal/device"
	"rollcall/internal/session"
)

// classroom is what the commands need from either the server or a store
// living on this device.
type classroom interface {
	device.Authority
	Present(ctx context.Context) (session.ID, map[string]time.Time, error)
	Remove(ctx context.Context, student string) error
	Reset(ctx context.Context) (session.ID, error)
	Students(ctx context.Context, query string) ([]string, error)
	AddStudent(ctx context.Context, name string) (string, error)
	RemoveStudent(ctx context.Context, name string) error
}

type remote struct {
	*client.Client
}

func (r remote) Present(ctx context.Context) (session.ID, map[string]time.Time, error) {
	a, err := r.Attendance(ctx)
	return a.SessionID, a.Present, err
}

type local struct {
	device.Local
}

func (l local) Present(context.Context) (session.ID, map[string]time.Time, error) {
	snap := l.Store.Snapshot()
	return snap.Session, snap.Present(), nil
}

func (l local) Remove(ctx context.Context, student string) error {
	return l.Store.Remove(ctx, student)
}

func (l local) Reset(ctx context.Context) (session.ID, error) {
	return l.Store.Reset(ctx)
}

func (l local) Students(_ context.Context, query string) ([]string, error) {
	return l.Store.SearchStudents(query), nil
}

func (l local) AddStudent(ctx context.Context, name string) (string, error) {
	return l.Store.AddStudent(ctx, name)
}

func (l local) RemoveStudent(ctx context.Context, name string) error {
	_, err := l.Store.RemoveStudent(ctx, name)
	return err
}

func newLocal(s *attendance.Store) local {
	return local{device.Local{Store: s}}
}
