package api

import (
	"errors"
	"fmt"
	"time"
)

type Room struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Location  string   `json:"location,omitempty"`
	Capacity  int      `json:"capacity"`
	Amenities []string `json:"amenities,omitempty"`
}

type Booking struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	Title     string    `json:"title,omitempty"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Status    string    `json:"status"`
	CreatedBy string    `json:"created_by,omitempty"`
}

type BookingRequest struct {
	RoomID    string    `json:"room_id"`
	Title     string    `json:"title,omitempty"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

func (r BookingRequest) Validate() error {
	if r.RoomID == "" {
		return fmt.Errorf("room ID is required")
	}
	if r.StartTime.IsZero() || r.EndTime.IsZero() {
		return fmt.Errorf("start and end time are required")
	}
	if !r.EndTime.After(r.StartTime) {
		return fmt.Errorf("end time %s must be after start time %s",
			r.EndTime.Format(time.RFC3339), r.StartTime.Format(time.RFC3339))
	}
	return nil
}

// Error is returned for responses with a 4xx or 5xx status.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("API error %s (status %d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// StatusCode extracts the HTTP status from err, or 0 if err is not an *Error.
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
