// Package settingshub is a Go client for the settings hub REST API.
package settingshub

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
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the settings hub API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// SaveResult reports which properties a batch save wrote and which were
// skipped because they are locked.
type SaveResult struct {
	Updated []string `json:"updated"`
	Skipped []string `json:"skipped"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("settingshub api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("settingshub api error (%d): %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 returned by the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// NewClient instantiates a client. When httpClient is nil, a default client
// with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base url %q: scheme and host are required", rawURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// Group returns every property of a group in storage order.
func (c *Client) Group(ctx context.Context, group string) (Properties, error) {
	var out struct {
		Properties Properties `json:"properties"`
	}
	if err := c.send(ctx, http.MethodGet, groupPath(group), nil, &out); err != nil {
		return nil, err
	}
	return out.Properties, nil
}

// Property returns the raw JSON payload of one property. A missing property
// yields an *APIError for which IsNotFound is true.
func (c *Client) Property(ctx context.Context, group, name string) (json.RawMessage, error) {
	var out struct {
		Value json.RawMessage `json:"value"`
	}
	if err := c.send(ctx, http.MethodGet, propertyPath(group, name), nil, &out); err != nil {
		return nil, err
	}
	return out.Value, nil
}

// PropertyInto decodes one property into target.
func (c *Client) PropertyInto(ctx context.Context, group, name string, target any) error {
	raw, err := c.Property(ctx, group, name)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, target)
}

// SetProperty creates or overwrites a property. value is encoded with
// encoding/json; pass a json.RawMessage to send a literal payload.
func (c *Client) SetProperty(ctx context.Context, group, name string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode value: %w", err)
	}
	body := struct {
		Value json.RawMessage `json:"value"`
	}{Value: raw}
	return c.send(ctx, http.MethodPut, propertyPath(group, name), body, nil)
}

// Save writes several properties at once. Locked properties are left as they
// are and reported in SaveResult.Skipped.
func (c *Client) Save(ctx context.Context, group string, properties Properties) (SaveResult, error) {
	body := struct {
		Properties Properties `json:"properties"`
	}{Properties: properties}
	var result SaveResult
	if err := c.send(ctx, http.MethodPatch, groupPath(group), body, &result); err != nil {
		return SaveResult{}, err
	}
	return result, nil
}

// DeleteProperty removes a property. Deleting a missing property succeeds.
func (c *Client) DeleteProperty(ctx context.Context, group, name string) error {
	return c.send(ctx, http.MethodDelete, propertyPath(group, name), nil, nil)
}

// Lock marks properties as locked.
func (c *Client) Lock(ctx context.Context, group string, names ...string) error {
	return c.send(ctx, http.MethodPost, locksPath(group), namesBody{Names: names}, nil)
}

// Unlock removes lock marks.
func (c *Client) Unlock(ctx context.Context, group string, names ...string) error {
	return c.send(ctx, http.MethodDelete, locksPath(group), namesBody{Names: names}, nil)
}

// Locked lists the locked property names of a group, sorted.
func (c *Client) Locked(ctx context.Context, group string) ([]string, error) {
	var out struct {
		Locked []string `json:"locked"`
	}
	if err := c.send(ctx, http.MethodGet, locksPath(group), nil, &out); err != nil {
		return nil, err
	}
	return out.Locked, nil
}

// Health checks the server liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.send(ctx, http.MethodGet, []string{"healthz"}, nil, nil)
}

type namesBody struct {
	Names []string `json:"names"`
}

func groupPath(group string) []string { return []string{"api", "v1", "groups", group} }

func propertyPath(group, name string) []string {
	return append(groupPath(group), "properties", name)
}

func locksPath(group string) []string { return append(groupPath(group), "locks") }

func (c *Client) send(ctx context.Context, method string, segments []string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, method, segments, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method string, segments []string, body io.Reader) (*http.Request, error) {
	escaped := make([]string, len(segments))
	for i, seg := range segments {
		escaped[i] = url.PathEscape(seg)
	}
	u := c.baseURL.JoinPath(escaped...)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, &struct {
				Error *APIError `json:"error"`
			}{Error: &apiErr})
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
