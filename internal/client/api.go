// Package client implements the observation side of memo: it talks to the
// reminder API, remembers which due reminders were already announced and
// announces new ones.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/notexe/memo/internal/reminder"
)

// TransportError is returned for network failures and non-2xx responses.
type TransportError struct {
	Op     string
	Status int    // 0 when no response was received
	Code   string // error code from the server body, if any
	Err    error
}

func (e *TransportError) Error() string {
	switch {
	case e.Status == 0:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Code != "":
		return fmt.Sprintf("%s: HTTP %d %s: %v", e.Op, e.Status, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: HTTP %d: %v", e.Op, e.Status, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// APIClient calls the reminder HTTP API.
type APIClient struct {
	baseURL string
	client  *http.Client
}

// NewAPIClient creates a client for the API at baseURL.
func NewAPIClient(baseURL string, timeout time.Duration) *APIClient {
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// ListReminders returns every reminder.
func (c *APIClient) ListReminders(ctx context.Context) ([]reminder.Reminder, error) {
	var out []reminder.Reminder
	if err := c.do(ctx, "list reminders", http.MethodGet, "/reminders/", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateReminder schedules a new reminder.
func (c *APIClient) CreateReminder(ctx context.Context, in reminder.CreateInput) (*reminder.Reminder, error) {
	var out reminder.Reminder
	if err := c.do(ctx, "create reminder", http.MethodPost, "/reminders/", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteReminder removes a reminder. Unknown ids succeed.
func (c *APIClient) DeleteReminder(ctx context.Context, id int64) error {
	return c.do(ctx, "delete reminder", http.MethodDelete, "/reminders/"+strconv.FormatInt(id, 10), nil, nil)
}

// UpdateReminder changes the non-nil fields of a reminder.
func (c *APIClient) UpdateReminder(ctx context.Context, id int64, in reminder.UpdateInput) (*reminder.Reminder, error) {
	var out reminder.Reminder
	if err := c.do(ctx, "update reminder", http.MethodPut, "/reminders/"+strconv.FormatInt(id, 10), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health checks that the API is up.
func (c *APIClient) Health(ctx context.Context) error {
	return c.do(ctx, "health", http.MethodGet, "/health", nil, nil)
}

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *APIClient) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.client.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr apiError
		msg := strings.TrimSpace(string(respBody))
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Message
		}
		return &TransportError{Op: op, Status: resp.StatusCode, Code: apiErr.Error, Err: fmt.Errorf("%s", msg)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &TransportError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
