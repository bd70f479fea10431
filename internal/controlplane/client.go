package controlplane

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/imroc/req/v3"
	"github.com/openmined/syncvault/internal/config"
	"github.com/openmined/syncvault/internal/engine"
	"github.com/openmined/syncvault/internal/version"
)

// matches the server write timeout, a sync may take that long
const clientTimeout = 10 * time.Minute

// APIError is an error reply from the control plane.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("control plane %d %s: %s", e.Status, e.Code, e.Message)
}

// Client talks to a running control plane.
type Client struct {
	client *req.Client
}

func NewClient(cfg *config.ControlPlaneConfig) *Client {
	base := cfg.Addr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}

	c := req.C().
		SetBaseURL(base).
		SetTimeout(clientTimeout).
		SetUserAgent(version.ShortWithApp()).
		SetJsonMarshal(json.Marshal).
		SetJsonUnmarshal(json.Unmarshal)
	if cfg.AuthToken != "" {
		c.SetCommonBearerAuthToken(cfg.AuthToken)
	}
	return &Client{client: c}
}

func (c *Client) Status(ctx context.Context) (*engine.Status, error) {
	var st engine.Status
	if err := c.do(ctx, http.MethodGet, "/v1/status", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Sync asks the server to sync and waits for the result.
func (c *Client) Sync(ctx context.Context) (*engine.Result, error) {
	var res engine.Result
	if err := c.do(ctx, http.MethodPost, "/v1/sync", &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	var apiErr ErrorResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetSuccessResult(out).
		SetErrorResult(&apiErr).
		Send(method, path)
	if err != nil {
		return fmt.Errorf("control plane %s %s: %w", method, path, err)
	}
	if resp.IsErrorState() {
		return &APIError{Status: resp.StatusCode, Code: apiErr.ErrorCode, Message: apiErr.Error}
	}
	return nil
}
