package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"rollcall/internal/session"
)

var (
	ErrInvalid       = errors.New("request rejected as invalid")
	ErrConflict      = errors.New("already exists")
	ErrNotFound      = errors.New("not found")
	ErrUnauthorized  = errors.New("faculty login required")
	ErrServerFailure = errors.New("server failed to save, retry")
)

// StatusError is returned for any non-2xx response. It unwraps to one of the
// sentinel errors above where the status has a fixed meaning.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Code, http.StatusText(e.Code), e.Message)
}

func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusBadRequest:
		return ErrInvalid
	case http.StatusConflict:
		return ErrConflict
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnauthorized:
		return ErrUnauthorized
	}
	if e.Code >= 500 {
		return ErrServerFailure
	}
	return nil
}

// Attendance is the snapshot served by GET /api/attendance.
type Attendance struct {
	SessionID session.ID           `json:"sessionId"`
	Present   map[string]time.Time `json:"attendanceData"`
}

// Client calls the rollcall REST API.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// New creates a client with a short timeout; every call is a single small
// request.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("rollcall request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var msg struct {
			Message string `json:"message"`
		}
		raw, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(raw, &msg) != nil || msg.Message == "" {
			msg.Message = string(raw)
		}
		return &StatusError{Code: resp.StatusCode, Message: msg.Message}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// CurrentSession returns the authoritative session id.
func (c *Client) CurrentSession(ctx context.Context) (session.ID, error) {
	var out struct {
		SessionID session.ID `json:"sessionId"`
	}
	err := c.do(ctx, http.MethodGet, "/api/session", nil, &out)
	return out.SessionID, err
}

// Attendance fetches the full present-list.
func (c *Client) Attendance(ctx context.Context) (Attendance, error) {
	var out Attendance
	err := c.do(ctx, http.MethodGet, "/api/attendance", nil, &out)
	return out, err
}

// Submit marks student present and returns the session it was recorded in.
func (c *Client) Submit(ctx context.Context, student string) (session.ID, error) {
	var out struct {
		SessionID session.ID `json:"sessionId"`
	}
	err := c.do(ctx, http.MethodPost, "/api/attendance", map[string]string{"student": student}, &out)
	return out.SessionID, err
}

// Remove deletes one attendance record.
func (c *Client) Remove(ctx context.Context, student string) error {
	return c.do(ctx, http.MethodDelete, "/api/attendance/"+url.PathEscape(student), nil, nil)
}

// Reset clears attendance and returns the new session id.
func (c *Client) Reset(ctx context.Context) (session.ID, error) {
	var out struct {
		SessionID session.ID `json:"sessionId"`
	}
	err := c.do(ctx, http.MethodDelete, "/api/attendance", nil, &out)
	return out.SessionID, err
}

// Students lists the roster, filtered by query when it is not blank.
func (c *Client) Students(ctx context.Context, query string) ([]string, error) {
	var out struct {
		Students []string `json:"students"`
	}
	path := "/api/students"
	if query != "" {
		path += "?q=" + url.QueryEscape(query)
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Students, err
}

// AddStudent enrolls name and returns the stored form.
func (c *Client) AddStudent(ctx context.Context, name string) (string, error) {
	var out struct {
		Name string `json:"name"`
	}
	err := c.do(ctx, http.MethodPost, "/api/students", map[string]string{"name": name}, &out)
	return out.Name, err
}

// RemoveStudent unenrolls name.
func (c *Client) RemoveStudent(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/api/students/"+url.PathEscape(name), nil, nil)
}

// Login exchanges the faculty passcode for a token and keeps it on the client.
func (c *Client) Login(ctx context.Context, passcode string) error {
	var out struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/login", map[string]string{"passcode": passcode}, &out); err != nil {
		return err
	}
	c.Token = out.Token
	return nil
}
