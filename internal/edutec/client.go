package edutec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RegisterResult is the success body of the two register endpoints.
type RegisterResult struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

// HistoryEntry is one attendance record from GET /history.
type HistoryEntry struct {
	FullName  string `json:"fullName"`
	DNI       string `json:"dni"`
	Status    string `json:"status,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
	Position  string `json:"position,omitempty"`
	Company   string `json:"company,omitempty"`
}

// Registration is one roster entry from GET /get-all-registrations.
// The backend stores documents in Mongo, hence the "_id" key.
type Registration struct {
	ID       string `json:"_id"`
	FullName string `json:"fullName"`
	DNI      string `json:"dni"`
	Position string `json:"position,omitempty"`
	Company  string `json:"company,omitempty"`
}

// RegistrationUpdate carries the optional fields of PUT /edit-register/{id}.
type RegistrationUpdate struct {
	DNI      *string `json:"dni,omitempty"`
	FullName *string `json:"fullName,omitempty"`
	Email    *string `json:"email,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	Company  *string `json:"company,omitempty"`
	Position *string `json:"position,omitempty"`
}

// APIError is a non-2xx response from the backend. Message is the
// server-supplied message when the error body was parseable, otherwise
// a generic text carrying the HTTP status code.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// errorBody is the backend's structured error shape.
type errorBody struct {
	Status  int    `json:"status"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Path    string `json:"path"`
}

// Client calls the EduTec attendance backend.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New creates a client with a bounded request timeout.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// Register marks attendance for a QR-derived identity. The backend
// validates name consistency only on this path, so fullName is required.
func (c *Client) Register(ctx context.Context, dni, fullName string) (*RegisterResult, error) {
	return c.register(ctx, "/register", map[string]string{"dni": dni, "fullName": fullName})
}

// RegisterByDNI marks attendance for a manually entered DNI.
func (c *Client) RegisterByDNI(ctx context.Context, dni string) (*RegisterResult, error) {
	return c.register(ctx, "/register-by-dni", map[string]string{"dni": dni})
}

func (c *Client) register(ctx context.Context, path string, payload map[string]string) (*RegisterResult, error) {
	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("edutec request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.apiError(resp)
	}

	var out RegisterResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}

// History returns the attendance log, newest entries as the backend orders them.
func (c *Client) History(ctx context.Context) ([]HistoryEntry, error) {
	var out []HistoryEntry
	if err := c.get(ctx, "/history", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Registrations returns the full roster used for local search.
func (c *Client) Registrations(ctx context.Context) ([]Registration, error) {
	var out []Registration
	if err := c.get(ctx, "/get-all-registrations", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// EditRegistration updates a roster entry, typically to correct its DNI.
func (c *Client) EditRegistration(ctx context.Context, id string, update RegistrationUpdate) error {
	body, _ := json.Marshal(update)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.BaseURL+"/edit-register/"+id, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("edutec request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.apiError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("edutec request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.apiError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// apiError reads a non-2xx body and prefers the backend's own message.
func (c *Client) apiError(resp *http.Response) *APIError {
	raw, _ := io.ReadAll(resp.Body)
	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil && body.Message != "" {
		return &APIError{StatusCode: resp.StatusCode, Message: body.Message}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("server error (%d)", resp.StatusCode)}
}
