package host

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/psantana5/renderhook/pkg/models"
	"github.com/psantana5/renderhook/pkg/tracing"
)

// Client implements Host against a bridge server
type Client struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
	retry      RetryConfig
	ctx        context.Context
}

// NewClient creates a new bridge client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		retry: DefaultRetryConfig(),
		ctx:   context.Background(),
	}
}

// SetAPIKey sets the API key for authentication
func (c *Client) SetAPIKey(apiKey string) {
	c.apiKey = apiKey
}

// SetHTTPClient replaces the underlying HTTP client
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// SetRetry replaces the retry policy; MaxRetries 0 disables retries
func (c *Client) SetRetry(cfg RetryConfig) {
	c.retry = cfg
}

// WithContext returns a copy of the client whose requests are bound to ctx
func (c *Client) WithContext(ctx context.Context) *Client {
	cc := *c
	cc.ctx = ctx
	return &cc
}

// addAuthHeader adds authentication header to request
func (c *Client) addAuthHeader(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// do sends a request and decodes a JSON response into out when non-nil.
// 409 maps to ErrRejected and 404 to notFound, both as a RejectionError.
// Connection failures and gateway errors are retried.
func (c *Client) do(method, path string, body, out interface{}, target, id, op string, notFound error) error {
	var data []byte
	if body != nil {
		var err error
		if data, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	return withRetry(c.ctx, c.retry, func() error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(c.ctx, method, c.baseURL+path, reader)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		c.addAuthHeader(req)
		tracing.InjectHTTPHeaders(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if c.ctx.Err() != nil {
				return fmt.Errorf("failed to send %s %s: %w", method, path, err)
			}
			return fmt.Errorf("failed to send %s %s: %w: %w", method, path, errTransient, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusConflict:
			return NewRejection(target, id, op, ErrRejected)
		case resp.StatusCode == http.StatusNotFound && notFound != nil:
			return NewRejection(target, id, op, notFound)
		case transientStatus(resp.StatusCode):
			return fmt.Errorf("%s %s: %w: status %d", method, path, errTransient, resp.StatusCode)
		case resp.StatusCode < 200 || resp.StatusCode > 299:
			msg, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("%s %s failed with status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(msg))
		}

		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	})
}

// Snapshot fetches the full served state
func (c *Client) Snapshot() (*models.Snapshot, error) {
	var snap models.Snapshot
	if err := c.do(http.MethodGet, "/snapshot", nil, &snap, "", "", "", nil); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Engine returns the render engine identifier
func (c *Client) Engine() (string, error) {
	snap, err := c.Snapshot()
	if err != nil {
		return "", err
	}
	return snap.Engine, nil
}

// Devices returns devices in detection order
func (c *Client) Devices() ([]models.ComputeDevice, error) {
	var devices []models.ComputeDevice
	if err := c.do(http.MethodGet, "/devices", nil, &devices, "", "", "", nil); err != nil {
		return nil, err
	}
	return devices, nil
}

// OutputNodes returns all compositor nodes
func (c *Client) OutputNodes() ([]models.OutputNode, error) {
	var nodes []models.OutputNode
	if err := c.do(http.MethodGet, "/nodes", nil, &nodes, "", "", "", nil); err != nil {
		return nil, err
	}
	return nodes, nil
}

func (c *Client) SetComputeDeviceType(kind models.DeviceKind) error {
	body := map[string]string{"compute_device_type": string(kind)}
	return c.do(http.MethodPut, "/scene/compute-device-type", body, nil, "scene", "", "set compute device type", nil)
}

func (c *Client) UseGPU() error {
	return c.do(http.MethodPost, "/scene/gpu", nil, nil, "scene", "", "use gpu", nil)
}

func (c *Client) SetDeviceEnabled(id string, enabled bool) error {
	body := map[string]bool{"enabled": enabled}
	path := fmt.Sprintf("/devices/%s/enabled", url.PathEscape(id))
	return c.do(http.MethodPut, path, body, nil, "device", id, "set enabled", ErrDeviceNotFound)
}

func (c *Client) EnableCompositing() error {
	return c.do(http.MethodPost, "/scene/compositing", nil, nil, "scene", "", "enable compositing", nil)
}

func (c *Client) SetBasePath(id, path string) error {
	body := map[string]string{"base_path": path}
	p := fmt.Sprintf("/nodes/%s/base-path", url.PathEscape(id))
	return c.do(http.MethodPut, p, body, nil, "node", id, "set base path", ErrNodeNotFound)
}

func (c *Client) SetPersistentData(enabled bool) error {
	body := map[string]bool{"enabled": enabled}
	return c.do(http.MethodPut, "/scene/persistent-data", body, nil, "scene", "", "set persistent data", nil)
}
