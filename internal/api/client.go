package api

import (
	"bytes"
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

type Client struct {
	Endpoints  endpoints.Endpoints
	Token      string
	HttpClient *http.Client
	logger     *zap.Logger
	retryCount int
	retryDelay time.Duration
}

// envelope is the wrapper every API response uses.
type envelope struct {
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Status  string          `json:"status"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewClient(ep endpoints.Endpoints, token string, timeout time.Duration, retryCount int, logger *zap.Logger) *Client {
	return &Client{
		Endpoints: ep,
		Token:     token,
		HttpClient: &http.Client{
			Timeout: timeout,
		},
		logger:     logger,
		retryCount: retryCount,
		retryDelay: time.Second,
	}
}

func (c *Client) ListRooms(ctx context.Context) ([]Room, error) {
	var rooms []Room
	if err := c.call(ctx, http.MethodGet, c.Endpoints.RoomsURL, nil, &rooms); err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	return rooms, nil
}

func (c *Client) GetRoom(ctx context.Context, roomID string) (*Room, error) {
	if roomID == "" {
		return nil, fmt.Errorf("room ID is required")
	}

	var room Room
	if err := c.call(ctx, http.MethodGet, c.Endpoints.RoomsURL+"/"+url.PathEscape(roomID), nil, &room); err != nil {
		return nil, fmt.Errorf("failed to get room %s: %w", roomID, err)
	}
	return &room, nil
}

// ListBookings lists bookings, restricted to one room when roomID is set.
func (c *Client) ListBookings(ctx context.Context, roomID string) ([]Booking, error) {
	endpoint := c.Endpoints.BookingsURL
	if roomID != "" {
		endpoint += "?" + url.Values{"room_id": {roomID}}.Encode()
	}

	var bookings []Booking
	if err := c.call(ctx, http.MethodGet, endpoint, nil, &bookings); err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}

func (c *Client) CreateBooking(ctx context.Context, req BookingRequest) (*Booking, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var booking Booking
	if err := c.call(ctx, http.MethodPost, c.Endpoints.BookingsURL, jsonData, &booking); err != nil {
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	c.logger.Info("booking created",
		zap.String("bookingID", booking.ID),
		zap.String("roomID", booking.RoomID),
	)
	return &booking, nil
}

func (c *Client) CancelBooking(ctx context.Context, bookingID string) error {
	if bookingID == "" {
		return fmt.Errorf("booking ID is required")
	}

	if err := c.call(ctx, http.MethodDelete, c.Endpoints.BookingsURL+"/"+url.PathEscape(bookingID), nil, nil); err != nil {
		return fmt.Errorf("failed to cancel booking %s: %w", bookingID, err)
	}

	c.logger.Info("booking cancelled", zap.String("bookingID", bookingID))
	return nil
}

// call performs the request and decodes the envelope's data into out when out is non-nil.
func (c *Client) call(ctx context.Context, method, endpoint string, body []byte, out interface{}) error {
	resp, err := c.doRequest(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.parseError(resp)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	c.logger.Debug("API response", zap.String("url", endpoint), zap.Int("status", resp.StatusCode))

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, method, endpoint string, body []byte) (*http.Response, error) {
	var lastErr error
	for i := 0; i <= c.retryCount; i++ {
		if i > 0 {
			// Exponential backoff
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(i*i) * c.retryDelay):
			}
			c.logger.Info("retrying request", zap.String("url", endpoint), zap.Int("attempt", i+1))
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.Token != "" {
			req.Header.Set("Authorization", "Bearer "+c.Token)
		}

		resp, err := c.HttpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			c.logger.Error("request failed", zap.String("url", endpoint), zap.Error(err))
			continue
		}

		// Retry on server errors
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			if i == c.retryCount {
				return resp, nil
			}
			resp.Body.Close()
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", c.retryCount+1, lastErr)
}

func (c *Client) parseError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{StatusCode: resp.StatusCode, Message: "failed to read error response"}
	}

	c.logger.Debug("API error response",
		zap.Int("status", resp.StatusCode),
		zap.String("body", string(body)),
	)

	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err == nil {
		switch {
		case errResp.Error != "":
			return &Error{StatusCode: resp.StatusCode, Code: errResp.Code, Message: errResp.Error}
		case errResp.Message != "":
			return &Error{StatusCode: resp.StatusCode, Code: errResp.Code, Message: errResp.Message}
		}
	}

	return &Error{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(body))}
}
