package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Booking actions recorded in the history.
const (
	ActionCreate = "create"
	ActionCancel = "cancel"
)

// Record statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

type DB struct {
	conn *sql.DB
}

type BookingRecord struct {
	ID           int64
	BookingID    string
	RoomID       string
	Action       string
	StartTime    time.Time
	EndTime      time.Time
	Status       string
	ErrorMessage string
	RecordedAt   time.Time
}

type SearchCriteria struct {
	RoomID    string
	Action    string
	Status    string
	StartTime time.Time
	EndTime   time.Time
	Limit     int
}

type Stats struct {
	TotalRecords  int
	ByAction      map[string]int
	ByStatus      map[string]int
	Recent24h     int
	DistinctRooms int
}

func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.initialize(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return db, nil
}

func (db *DB) initialize() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS booking_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			booking_id TEXT,
			room_id TEXT NOT NULL,
			action TEXT NOT NULL,
			start_time TIMESTAMP,
			end_time TIMESTAMP,
			status TEXT NOT NULL,
			error_message TEXT,
			recorded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_booking_records_room_id ON booking_records(room_id)`,
		`CREATE INDEX IF NOT EXISTS idx_booking_records_status ON booking_records(status)`,
		`CREATE INDEX IF NOT EXISTS idx_booking_records_recorded_at ON booking_records(recorded_at)`,
	}

	for _, query := range queries {
		if _, err := db.conn.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}

	return nil
}

// InsertBookingRecord stores one create or cancel attempt
func (db *DB) InsertBookingRecord(record BookingRecord) (int64, error) {
	if record.RecordedAt.IsZero() {
		record.RecordedAt = time.Now()
	}
	// Timestamps compare as text in sqlite, so keep them all in UTC.
	record.RecordedAt = record.RecordedAt.UTC()
	record.StartTime = record.StartTime.UTC()
	record.EndTime = record.EndTime.UTC()

	query := `
		INSERT INTO booking_records
		(booking_id, room_id, action, start_time, end_time, status, error_message, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := db.conn.Exec(query,
		record.BookingID, record.RoomID, record.Action,
		record.StartTime, record.EndTime,
		record.Status, record.ErrorMessage, record.RecordedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert booking record: %w", err)
	}

	return result.LastInsertId()
}

// GetBookingHistory returns the latest records, optionally for one room
func (db *DB) GetBookingHistory(roomID string, limit int) ([]BookingRecord, error) {
	return db.SearchBookings(SearchCriteria{RoomID: roomID, Limit: limit})
}

// SearchBookings searches for records based on criteria
func (db *DB) SearchBookings(criteria SearchCriteria) ([]BookingRecord, error) {
	query := `
		SELECT id, booking_id, room_id, action, start_time, end_time,
		       status, error_message, recorded_at
		FROM booking_records
		WHERE 1=1
	`
	args := []interface{}{}

	if criteria.RoomID != "" {
		query += " AND room_id = ?"
		args = append(args, criteria.RoomID)
	}

	if criteria.Action != "" {
		query += " AND action = ?"
		args = append(args, criteria.Action)
	}

	if criteria.Status != "" {
		query += " AND status = ?"
		args = append(args, criteria.Status)
	}

	if !criteria.StartTime.IsZero() {
		query += " AND recorded_at >= ?"
		args = append(args, criteria.StartTime.UTC())
	}

	if !criteria.EndTime.IsZero() {
		query += " AND recorded_at <= ?"
		args = append(args, criteria.EndTime.UTC())
	}

	limit := criteria.Limit
	if limit <= 0 {
		limit = -1
	}
	query += " ORDER BY recorded_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search bookings: %w", err)
	}
	defer rows.Close()

	var records []BookingRecord
	for rows.Next() {
		var r BookingRecord
		var bookingID, errorMessage sql.NullString
		err := rows.Scan(
			&r.ID, &bookingID, &r.RoomID, &r.Action,
			&r.StartTime, &r.EndTime,
			&r.Status, &errorMessage, &r.RecordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		r.BookingID = bookingID.String
		r.ErrorMessage = errorMessage.String
		records = append(records, r)
	}

	return records, rows.Err()
}

// GetStats summarizes the history
func (db *DB) GetStats() (*Stats, error) {
	stats := &Stats{
		ByAction: make(map[string]int),
		ByStatus: make(map[string]int),
	}

	err := db.conn.QueryRow(`SELECT COUNT(*), COUNT(DISTINCT room_id) FROM booking_records`).
		Scan(&stats.TotalRecords, &stats.DistinctRooms)
	if err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}

	if err := db.countBy("action", stats.ByAction); err != nil {
		return nil, err
	}
	if err := db.countBy("status", stats.ByStatus); err != nil {
		return nil, err
	}

	recentQuery := `
		SELECT COUNT(*)
		FROM booking_records
		WHERE recorded_at > ?
	`
	err = db.conn.QueryRow(recentQuery, time.Now().UTC().Add(-24*time.Hour)).Scan(&stats.Recent24h)
	if err != nil {
		return nil, fmt.Errorf("failed to count recent records: %w", err)
	}

	return stats, nil
}

// column is one of a fixed set of names, never user input.
func (db *DB) countBy(column string, into map[string]int) error {
	rows, err := db.conn.Query(`SELECT ` + column + `, COUNT(*) FROM booking_records GROUP BY ` + column)
	if err != nil {
		return fmt.Errorf("failed to group by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return err
		}
		into[key] = count
	}
	return rows.Err()
}

// CleanupOldRecords removes records older than the given number of days
func (db *DB) CleanupOldRecords(days int) (int64, error) {
	query := `
		DELETE FROM booking_records
		WHERE recorded_at < ?
	`

	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	result, err := db.conn.Exec(query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old records: %w", err)
	}

	affected, _ := result.RowsAffected()
	if affected > 0 {
		// Vacuum to reclaim space
		_, _ = db.conn.Exec("VACUUM")
	}

	return affected, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}
