// Package authclient lets other GovLink services resolve a caller against
// the auth server instead of verifying tokens themselves.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/govlink/govlink/internal/models"
)

var ErrUnauthorized = errors.New("authclient: unauthorized")

// StatusError carries a non-2xx answer that is not a plain 401.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("authclient: status %d: %s", e.Code, e.Message)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(authServiceURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(authServiceURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type envelope struct {
	Success bool    `json:"success"`
	Message string  `json:"message"`
	Tokens  *Tokens `json:"tokens"`

	raw map[string]json.RawMessage
}

// Me resolves an access token to the principal it belongs to.
func (c *Client) Me(ctx context.Context, partition, accessToken string) (*models.PrincipalView, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/"+partition+"/me", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	env, err := c.do(req)
	if err != nil {
		return nil, err
	}
	raw, ok := env.raw[partition]
	if !ok {
		return nil, fmt.Errorf("authclient: response has no %q field", partition)
	}
	var view models.PrincipalView
	if err := json.Unmarshal(raw, &view); err != nil {
		return nil, fmt.Errorf("decode principal: %w", err)
	}
	return &view, nil
}

// Refresh trades a refresh token for a new pair.
func (c *Client) Refresh(ctx context.Context, partition, refreshToken string) (*Tokens, error) {
	body, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/"+partition+"/refresh", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	env, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if env.Tokens == nil {
		return nil, errors.New("authclient: response has no tokens")
	}
	return env.Tokens, nil
}

func (c *Client) do(req *http.Request) (*envelope, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if err := json.Unmarshal(data, &env.raw); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, fmt.Errorf("%w: %s", ErrUnauthorized, env.Message)
	case resp.StatusCode != http.StatusOK || !env.Success:
		return nil, &StatusError{Code: resp.StatusCode, Message: env.Message}
	}
	return &env, nil
}
