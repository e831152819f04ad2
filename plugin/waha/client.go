// Package waha implements the delivery gateway contract against a WAHA
// (WhatsApp HTTP API) server.
package waha

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/zf-portal/leadflow/server/gateway"
)

// Config holds the WAHA client configuration.
type Config struct {
	BaseURL string
	APIKey  string
	Session string
	Timeout time.Duration
}

// Client talks to a WAHA server. It implements gateway.Gateway.
type Client struct {
	baseURL    string
	apiKey     string
	session    string
	httpClient *http.Client
}

// NewClient creates a WAHA client.
func NewClient(cfg Config) *Client {
	if cfg.Session == "" {
		cfg.Session = "default"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		session:    cfg.Session,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *Client) StartSession(ctx context.Context) error {
	endpoint := fmt.Sprintf("api/sessions/%s/start", c.session)
	return c.do(ctx, http.MethodPost, endpoint, nil, nil)
}

func (c *Client) Status(ctx context.Context) (*gateway.StatusReply, error) {
	endpoint := fmt.Sprintf("api/sessions/%s/status", c.session)
	var reply struct {
		Status string `json:"status"`
		Me     struct {
			ID string `json:"id"`
		} `json:"me"`
	}
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &reply); err != nil {
		return nil, err
	}
	return &gateway.StatusReply{
		Status:            gateway.Status(reply.Status),
		ConnectedIdentity: reply.Me.ID,
	}, nil
}

func (c *Client) AuthChallenge(ctx context.Context) (string, error) {
	endpoint := fmt.Sprintf("api/sessions/%s/qr", c.session)
	var reply struct {
		QR string `json:"qr"`
	}
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &reply); err != nil {
		return "", err
	}
	return reply.QR, nil
}

func (c *Client) SendText(ctx context.Context, recipient, text string) (string, error) {
	endpoint := fmt.Sprintf("api/sessions/%s/messages/text", c.session)
	body := map[string]string{
		"to":   recipient,
		"text": text,
	}
	var reply struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, endpoint, body, &reply); err != nil {
		return "", err
	}
	return reply.ID, nil
}

func (c *Client) StopSession(ctx context.Context) error {
	endpoint := fmt.Sprintf("api/sessions/%s/stop", c.session)
	return c.do(ctx, http.MethodPost, endpoint, nil, nil)
}

func (c *Client) LogoutSession(ctx context.Context) error {
	endpoint := fmt.Sprintf("api/sessions/%s/logout", c.session)
	return c.do(ctx, http.MethodPost, endpoint, nil, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	url := c.baseURL + "/" + strings.TrimLeft(endpoint, "/")

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "failed to encode request body")
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return errors.Wrapf(err, "failed to build request for %s", url)
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "request to %s failed", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.Errorf("request to %s failed with status %d: %s", url, resp.StatusCode, string(payload))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrapf(err, "failed to decode response from %s", url)
		}
	}
	return nil
}
