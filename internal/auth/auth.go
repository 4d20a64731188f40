package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/roombook/roombook-cli/internal/endpoints"
)

// Client completes the OAuth login against the booking API
type Client struct {
	callbackURL string
	redirectURI string
	httpClient  *http.Client
	logger      *zap.Logger
	now         func() time.Time
}

// NewClient creates a new authentication client for the resolved endpoints
func NewClient(ep endpoints.Endpoints, logger *zap.Logger) *Client {
	return &Client{
		callbackURL: ep.AuthCallbackURL,
		redirectURI: ep.OAuthRedirectURI,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
		now:    time.Now,
	}
}

// callbackResponse is the payload returned by the callback endpoint
type callbackResponse struct {
	Data struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
		User         struct {
			Email string `json:"email"`
		} `json:"user"`
	} `json:"data"`
	Message string `json:"message"`
}

// Callback exchanges the authorization code returned by the OAuth provider for a session
func (c *Client) Callback(ctx context.Context, code, state string) (*Session, error) {
	if code == "" {
		return nil, fmt.Errorf("authorization code is required")
	}

	params := url.Values{"code": {code}}
	if state != "" {
		params.Set("state", state)
	}
	if c.redirectURI != "" {
		params.Set("redirect_uri", c.redirectURI)
	} else {
		c.logger.Warn("OAuth redirect URI is not set in this build; sending callback without it")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.callbackURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errorResp map[string]interface{}
		if err := json.Unmarshal(respBody, &errorResp); err == nil {
			if msg, ok := errorResp["message"].(string); ok {
				return nil, fmt.Errorf("%s", msg)
			}
			if msg, ok := errorResp["error"].(string); ok {
				return nil, fmt.Errorf("%s", msg)
			}
		}
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result callbackResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if result.Data.AccessToken == "" {
		return nil, fmt.Errorf("callback response did not contain an access token")
	}

	session := &Session{
		AccessToken:  result.Data.AccessToken,
		RefreshToken: result.Data.RefreshToken,
		Email:        result.Data.User.Email,
	}
	if result.Data.ExpiresIn > 0 {
		session.ExpiresAt = c.now().Add(time.Duration(result.Data.ExpiresIn) * time.Second).UTC()
	}

	c.logger.Info("login completed", zap.String("email", session.Email))
	return session, nil
}
