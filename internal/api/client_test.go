package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/roombook/roombook-cli/internal/endpoints"
)

func newTestClient(t *testing.T, handler http.Handler, retries int) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(endpoints.Derive(server.URL+"/api", ""), "token-123", 5*time.Second, retries, zap.NewNop())
	client.retryDelay = time.Millisecond
	return client
}

func writeData(t *testing.T, w http.ResponseWriter, status int, data interface{}) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	assert.NoError(t, json.NewEncoder(w).Encode(map[string]interface{}{
		"data":    data,
		"status":  "success",
		"message": "ok",
	}))
}

func TestListRooms(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/rooms", r.URL.Path)
		assert.Equal(t, "Bearer token-123", r.Header.Get("Authorization"))
		writeData(t, w, http.StatusOK, []Room{
			{ID: "r1", Name: "Aurora", Capacity: 8},
			{ID: "r2", Name: "Borealis", Capacity: 4, Amenities: []string{"projector"}},
		})
	}), 0)

	rooms, err := client.ListRooms(context.Background())
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, "Aurora", rooms[0].Name)
	assert.Equal(t, []string{"projector"}, rooms[1].Amenities)
}

func TestGetRoom(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/rooms/missing" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"room not found","code":"NOT_FOUND"}`))
			return
		}
		assert.Equal(t, "/api/rooms/r1", r.URL.Path)
		writeData(t, w, http.StatusOK, Room{ID: "r1", Name: "Aurora"})
	}), 3)

	room, err := client.GetRoom(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "r1", room.ID)

	_, err = client.GetRoom(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, StatusCode(err))
	assert.Contains(t, err.Error(), "room not found")

	_, err = client.GetRoom(context.Background(), "")
	assert.Error(t, err)
}

func TestListBookingsFiltersByRoom(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/bookings", r.URL.Path)
		assert.Equal(t, "r 1", r.URL.Query().Get("room_id"))
		writeData(t, w, http.StatusOK, []Booking{{ID: "b1", RoomID: "r 1"}})
	}), 0)

	bookings, err := client.ListBookings(context.Background(), "r 1")
	require.NoError(t, err)
	require.Len(t, bookings, 1)
	assert.Equal(t, "b1", bookings[0].ID)
}

func TestCreateBooking(t *testing.T) {
	start := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/bookings", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req BookingRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "r1", req.RoomID)
		assert.True(t, req.StartTime.Equal(start))

		writeData(t, w, http.StatusCreated, Booking{
			ID: "b9", RoomID: req.RoomID, Title: req.Title,
			StartTime: req.StartTime, EndTime: req.EndTime, Status: "confirmed",
		})
	}), 0)

	booking, err := client.CreateBooking(context.Background(), BookingRequest{
		RoomID: "r1", Title: "standup", StartTime: start, EndTime: end,
	})
	require.NoError(t, err)
	assert.Equal(t, "b9", booking.ID)
	assert.Equal(t, "confirmed", booking.Status)
}

func TestCreateBookingValidation(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}), 0)

	start := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		req  BookingRequest
	}{
		{name: "missing room", req: BookingRequest{StartTime: start, EndTime: start.Add(time.Hour)}},
		{name: "missing times", req: BookingRequest{RoomID: "r1"}},
		{name: "end before start", req: BookingRequest{RoomID: "r1", StartTime: start, EndTime: start.Add(-time.Hour)}},
		{name: "zero length", req: BookingRequest{RoomID: "r1", StartTime: start, EndTime: start}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.CreateBooking(context.Background(), tt.req)
			assert.Error(t, err)
		})
	}
	assert.Zero(t, atomic.LoadInt32(&calls), "invalid requests must not reach the server")
}

func TestCancelBooking(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/bookings/b1", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}), 0)

	require.NoError(t, client.CancelBooking(context.Background(), "b1"))
	assert.Error(t, client.CancelBooking(context.Background(), ""))
}

func TestRetryOnServerError(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeData(t, w, http.StatusOK, []Room{{ID: "r1"}})
	}), 3)

	rooms, err := client.ListRooms(context.Background())
	require.NoError(t, err)
	assert.Len(t, rooms, 1)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestRetryExhausted(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"database unavailable"}`))
	}), 2)

	_, err := client.ListRooms(context.Background())
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, StatusCode(err))
	assert.Contains(t, err.Error(), "database unavailable")
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestNoRetryOnClientError(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"room already booked","code":"CONFLICT"}`))
	}), 3)

	start := time.Now()
	_, err := client.CreateBooking(context.Background(), BookingRequest{
		RoomID: "r1", StartTime: start, EndTime: start.Add(time.Hour),
	})
	require.Error(t, err)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "CONFLICT", apiErr.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestContextCancelledDuringBackoff(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}), 5)
	client.retryDelay = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.ListRooms(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNoTokenNoAuthorizationHeader(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		writeData(t, w, http.StatusOK, []Room{})
	}), 0)
	client.Token = ""

	_, err := client.ListRooms(context.Background())
	require.NoError(t, err)
}
