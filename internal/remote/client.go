// Package remote is the HTTP client for the session authority.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sadopc/tempo/internal/store"
)

const DefaultTimeout = 15 * time.Second

var ErrNotFound = errors.New("session not found on remote")

// AuthError is returned for 401 and 403 responses. Handling it belongs to
// the auth layer, not to the caller that made the request.
type AuthError struct {
	StatusCode int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("remote rejected credentials (status %d)", e.StatusCode)
}

// StatusError is any other non-2xx response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("remote returned status %d: %s", e.StatusCode, e.Message)
}

// TaskCompletion is the body of POST /sessions/{id}/tasks/{index}/complete.
type TaskCompletion struct {
	IsCompleted          bool   `json:"isCompleted"`
	CompletionPercentage int    `json:"completionPercentage"`
	Reason               string `json:"reason"`
	Notes                string `json:"notes"`
}

// SessionPatch is the body of PUT /sessions/{id}. Nil fields are left alone.
type SessionPatch struct {
	Status             *store.SessionStatus `json:"status,omitempty"`
	StartedAt          *time.Time           `json:"startedAt,omitempty"`
	CompletedAt        *time.Time           `json:"completedAt,omitempty"`
	ActualTimeSeconds  *int64               `json:"actualTime,omitempty"`
	CompletedTaskCount *int                 `json:"completedTaskCount,omitempty"`
	CurrentTaskIndex   *int                 `json:"currentTaskIndex,omitempty"`
	CancelReason       *string              `json:"cancelReason,omitempty"`
}

// PatchFor describes the mutable progress of a session.
func PatchFor(s *store.Session) SessionPatch {
	status := s.Status
	actual := s.ActualTimeSeconds
	count := s.CompletedTaskCount
	index := s.CurrentTaskIndex
	p := SessionPatch{
		Status:             &status,
		StartedAt:          s.StartedAt,
		CompletedAt:        s.CompletedAt,
		ActualTimeSeconds:  &actual,
		CompletedTaskCount: &count,
		CurrentTaskIndex:   &index,
	}
	if s.CancelReason != "" {
		reason := s.CancelReason
		p.CancelReason = &reason
	}
	return p
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
	timeout time.Duration
}

type Option func(*Client)

// WithTimeout bounds every request. Zero keeps DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{},
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) CreateSession(ctx context.Context, s *store.Session) (*store.Session, error) {
	return c.do(ctx, http.MethodPost, "/sessions", s)
}

func (c *Client) GetSession(ctx context.Context, id string) (*store.Session, error) {
	return c.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(id), nil)
}

func (c *Client) UpdateSession(ctx context.Context, id string, patch SessionPatch) (*store.Session, error) {
	return c.do(ctx, http.MethodPut, "/sessions/"+url.PathEscape(id), patch)
}

func (c *Client) CompleteTask(ctx context.Context, id string, index int, body TaskCompletion) (*store.Session, error) {
	path := fmt.Sprintf("/sessions/%s/tasks/%d/complete", url.PathEscape(id), index)
	return c.do(ctx, http.MethodPost, path, body)
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*store.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, &AuthError{StatusCode: resp.StatusCode}
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
	}

	var sess store.Session
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

func errorMessage(r io.Reader) string {
	var body struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(r, 4<<10))
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(data))
}
