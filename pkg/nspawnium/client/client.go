// Package client is a typed HTTP client for the nspawnium API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"evalgo.org/nspawnium/models"
)

// Client talks to one nspawnium daemon.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New returns a client for the daemon at baseURL, e.g. "http://host:8080".
func New(baseURL string) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("baseURL is required")
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// SetToken installs a previously obtained access token.
func (c *Client) SetToken(token string) {
	c.token = token
}

// LoginResponse is the payload of a successful login.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	TokenType   string    `json:"token_type"`
}

// CreateResponse points at the creation job for a submitted container.
type CreateResponse struct {
	Name string             `json:"name"`
	Job  models.CreationJob `json:"job"`
}

// APIError is the error payload the daemon returns on failure.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
	Details string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Details)
	}
	return e.Message
}

// Login authenticates and stores the returned token on the client.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	var out LoginResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, &out)
	if err != nil {
		return nil, err
	}
	c.token = out.AccessToken
	return &out, nil
}

// CreateContainer submits a container spec and returns its creation job.
func (c *Client) CreateContainer(ctx context.Context, spec *models.ContainerSpec) (*CreateResponse, error) {
	var out CreateResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/containers", spec, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListContainers returns all known containers with observed state filled in.
func (c *Client) ListContainers(ctx context.Context) ([]*models.ContainerRecord, error) {
	var out []*models.ContainerRecord
	if err := c.do(ctx, http.MethodGet, "/api/v1/containers", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetContainer returns one container.
func (c *Client) GetContainer(ctx context.Context, name string) (*models.ContainerRecord, error) {
	var out models.ContainerRecord
	if err := c.do(ctx, http.MethodGet, "/api/v1/containers/"+name, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StartContainer boots a stopped container.
func (c *Client) StartContainer(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/containers/"+name+"/start", nil, nil)
}

// StopContainer shuts a container down cleanly, or immediately with force.
func (c *Client) StopContainer(ctx context.Context, name string, force bool) error {
	path := "/api/v1/containers/" + name + "/stop"
	if force {
		path += "?force=true"
	}
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// RestartContainer stops and starts a container.
func (c *Client) RestartContainer(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/containers/"+name+"/restart", nil, nil)
}

// DeleteContainer removes a container and its root filesystem.
func (c *Client) DeleteContainer(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/containers/"+name, nil, nil)
}

// GetJob returns the creation job for a container name.
func (c *Client) GetJob(ctx context.Context, name string) (*models.CreationJob, error) {
	var out models.CreationJob
	if err := c.do(ctx, http.MethodGet, "/api/v1/jobs/"+name, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelJob requests cancellation of a running creation job.
func (c *Client) CancelJob(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/jobs/"+name+"/cancel", nil, nil)
}

// ListForwards returns all port-forward rules.
func (c *Client) ListForwards(ctx context.Context) ([]models.PortForwardRule, error) {
	var out []models.PortForwardRule
	if err := c.do(ctx, http.MethodGet, "/api/v1/network/forwards", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AddForward creates a port-forward rule.
func (c *Client) AddForward(ctx context.Context, rule models.PortForwardRule) (*models.PortForwardRule, error) {
	var out models.PortForwardRule
	if err := c.do(ctx, http.MethodPost, "/api/v1/network/forwards", rule, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RemoveForward deletes a port-forward rule by id.
func (c *Client) RemoveForward(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/network/forwards/"+id, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Code: resp.StatusCode}
		data, _ := io.ReadAll(resp.Body)
		if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = resp.Status
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
