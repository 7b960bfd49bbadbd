package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/tweetscout/tweetscout/api/types"
)

// Client talks to a running worker over its HTTP surface.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	options    *Options
}

// NewClient creates a new Client instance.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	o, err := NewOptions(opts...)
	if err != nil {
		return nil, err
	}

	transport := &http.Transport{
		MaxConnsPerHost:     o.MaxConnsPerHost,
		MaxIdleConns:        o.MaxIdleConns,
		MaxIdleConnsPerHost: o.MaxIdleConnsPerHost,
		IdleConnTimeout:     o.IdleConnTimeout,
	}

	return &Client{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout:   o.Timeout,
			Transport: transport,
		},
		options: o,
	}, nil
}

func (c *Client) do(method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("error marshaling request: %w", err)
		}
		body = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.options.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.options.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("error sending %s request: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var remote struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &remote) == nil && remote.Error != "" {
			return fmt.Errorf("status %d: %s", resp.StatusCode, remote.Error)
		}
		return fmt.Errorf("error: received status code %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("error unmarshaling response: %w", err)
	}
	return nil
}

// Invoke runs one operation and blocks until its result is ready.
func (c *Client) Invoke(job types.Job) (*types.JobResult, error) {
	var result types.JobResult
	if err := c.do(http.MethodPost, "/invoke", job, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SetCredential submits a user credential for the identity; the worker
// validates it before storing.
func (c *Client) SetCredential(username, apiKey string) error {
	payload := map[string]string{"api_key": apiKey}
	return c.do(http.MethodPost, "/identity/"+username+"/credential", payload, nil)
}

// RemoveCredential drops the identity's user credential.
func (c *Client) RemoveCredential(username string) error {
	return c.do(http.MethodDelete, "/identity/"+username+"/credential", nil, nil)
}

// InvalidateGuest drops the identity's cached guest key.
func (c *Client) InvalidateGuest(username string) error {
	return c.do(http.MethodDelete, "/identity/"+username+"/guest", nil, nil)
}

// Capabilities reports the operations the identity can run right now.
func (c *Client) Capabilities(username string) (*types.EnhancedCapabilities, error) {
	var caps types.EnhancedCapabilities
	if err := c.do(http.MethodGet, "/identity/"+username+"/capabilities", nil, &caps); err != nil {
		return nil, err
	}
	return &caps, nil
}

// ValidationSummary is the outcome of a credential sweep.
type ValidationSummary struct {
	Checked int `json:"checked"`
	Valid   int `json:"valid"`
	Invalid int `json:"invalid"`
}

// ValidateAll asks the worker to re-probe every stored user credential.
func (c *Client) ValidateAll() (*ValidationSummary, error) {
	var summary ValidationSummary
	if err := c.do(http.MethodPost, "/identities/validate", nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// Healthz checks the liveness endpoint.
func (c *Client) Healthz() error {
	return c.do(http.MethodGet, "/healthz", nil, nil)
}
