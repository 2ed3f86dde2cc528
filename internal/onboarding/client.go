package onboarding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Client talks to the backend onboarding API for a single bearer credential.
// All methods are tenant-scoped and side-effect free except the action POSTs,
// whose effects are only observable through the next Status call.
type Client interface {
	Status(ctx context.Context, tenantID string) (*Status, error)
	Start(ctx context.Context, tenantID string, req StartRequest) error
	Begin(ctx context.Context, tenantID string) error
	NextStep(ctx context.Context, tenantID string) (*NextStepResult, error)
	Pause(ctx context.Context, tenantID string) error
	Resume(ctx context.Context, tenantID string) error
	SkipStep(ctx context.Context, tenantID, stepCode string) error
}

// StartRequest is the body of the start call.
type StartRequest struct {
	WorkspaceType string `json:"workspace_type"`
	TemplateCode  string `json:"template_code,omitempty"`
}

// NextStepResult is the response of the next-step call. Completed signals
// workflow completion explicitly, independently of the next polled status.
type NextStepResult struct {
	Completed   bool   `json:"completed"`
	CurrentStep string `json:"current_step,omitempty"`
	Message     string `json:"message,omitempty"`
}

// APIError is a rejection returned by the onboarding backend.
type APIError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("onboarding api error: status=%d", e.StatusCode)
}

type client struct {
	baseURL     string
	httpClient  *http.Client
	token       string
	tokenSource func() string
}

// ClientOption configures a Client.
type ClientOption func(*client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *client) {
		c.httpClient = httpClient
	}
}

// WithToken sets the bearer credential forwarded on every request.
func WithToken(token string) ClientOption {
	return func(c *client) {
		c.token = token
	}
}

// WithTokenSource sets a callback consulted per request for the bearer
// credential, so the surrounding session can rotate tokens without
// rebuilding the client.
func WithTokenSource(source func() string) ClientOption {
	return func(c *client) {
		c.tokenSource = source
	}
}

// NewClient creates an onboarding API client for the given base URL.
func NewClient(baseURL string, opts ...ClientOption) Client {
	c := &client{
		baseURL: baseURL,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}

	return c
}

// Status fetches the tenant's onboarding status. A 404 means no onboarding
// record exists yet and yields a synthesized NOT_STARTED status.
func (c *client) Status(ctx context.Context, tenantID string) (*Status, error) {
	resp, err := c.do(ctx, http.MethodGet, c.tenantPath(tenantID, "status"), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return NewNotStartedStatus(), nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errorFromResponse(resp)
	}

	status := &Status{}
	if err := decodeResponse(resp.Body, status); err != nil {
		return nil, fmt.Errorf("failed to decode onboarding status: %w", err)
	}
	status.Normalize()

	return status, nil
}

func (c *client) Start(ctx context.Context, tenantID string, req StartRequest) error {
	return c.postAction(ctx, c.tenantPath(tenantID, "start"), req)
}

func (c *client) Begin(ctx context.Context, tenantID string) error {
	return c.postAction(ctx, c.tenantPath(tenantID, "begin"), nil)
}

// NextStep executes the next pending provisioning step.
func (c *client) NextStep(ctx context.Context, tenantID string) (*NextStepResult, error) {
	resp, err := c.do(ctx, http.MethodPost, c.tenantPath(tenantID, "next-step"), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, errorFromResponse(resp)
	}

	result := &NextStepResult{}
	if err := decodeResponse(resp.Body, result); err != nil {
		return nil, fmt.Errorf("failed to decode next-step response: %w", err)
	}

	return result, nil
}

func (c *client) Pause(ctx context.Context, tenantID string) error {
	return c.postAction(ctx, c.tenantPath(tenantID, "pause"), nil)
}

func (c *client) Resume(ctx context.Context, tenantID string) error {
	return c.postAction(ctx, c.tenantPath(tenantID, "resume"), nil)
}

func (c *client) SkipStep(ctx context.Context, tenantID, stepCode string) error {
	path := c.tenantPath(tenantID, "steps/"+url.PathEscape(stepCode)+"/skip")
	return c.postAction(ctx, path, nil)
}

func (c *client) tenantPath(tenantID, suffix string) string {
	return fmt.Sprintf("%s/onboarding/tenants/%s/%s", c.baseURL, url.PathEscape(tenantID), suffix)
}

func (c *client) postAction(ctx context.Context, path string, body any) error {
	resp, err := c.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errorFromResponse(resp)
	}
	io.Copy(io.Discard, resp.Body)

	return nil
}

func (c *client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	token := c.token
	if c.tokenSource != nil {
		token = c.tokenSource()
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("onboarding api request failed: %w", err)
	}

	return resp, nil
}

// decodeResponse accepts both the `{"data": {...}}` envelope and the bare
// object, since the backend is inconsistent across endpoints.
func decodeResponse(r io.Reader, out any) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && len(envelope.Data) > 0 {
		return json.Unmarshal(envelope.Data, out)
	}

	return json.Unmarshal(raw, out)
}

func errorFromResponse(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{StatusCode: resp.StatusCode}
	}

	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	message := payload.Error
	if message == "" {
		message = payload.Message
	}

	return &APIError{StatusCode: resp.StatusCode, Message: message}
}
