package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jdowner/chime/internal/model"
)

type EventStore struct {
	db *sql.DB
}

func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

func (s *EventStore) Create(ownerID int64, title string, startTime time.Time, endTime *time.Time) (*model.Event, error) {
	e := model.Event{OwnerID: ownerID, Title: title, StartTime: startTime, EndTime: endTime}
	if err := e.Validate(); err != nil {
		return nil, err
	}

	var end sql.NullTime
	if endTime != nil {
		end = sql.NullTime{Time: endTime.UTC(), Valid: true}
	}

	result, err := s.db.Exec(
		`INSERT INTO events (owner_id, title, start_time, end_time) VALUES (?, ?, ?, ?)`,
		ownerID, title, startTime.UTC(), end,
	)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *EventStore) GetByID(id int64) (*model.Event, error) {
	var e model.Event
	var end sql.NullTime

	err := s.db.QueryRow(
		`SELECT id, owner_id, title, start_time, end_time, created_at, updated_at
		 FROM events WHERE id = ?`, id,
	).Scan(&e.ID, &e.OwnerID, &e.Title, &e.StartTime, &end, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query event: %w", err)
	}

	if end.Valid {
		e.EndTime = &end.Time
	}
	return &e, nil
}

func (s *EventStore) Update(id int64, title string, startTime time.Time, endTime *time.Time) (*model.Event, error) {
	e := model.Event{Title: title, StartTime: startTime, EndTime: endTime}
	if err := e.Validate(); err != nil {
		return nil, err
	}

	var end sql.NullTime
	if endTime != nil {
		end = sql.NullTime{Time: endTime.UTC(), Valid: true}
	}

	_, err := s.db.Exec(
		`UPDATE events SET title = ?, start_time = ?, end_time = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		title, startTime.UTC(), end, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update event: %w", err)
	}
	return s.GetByID(id)
}

func (s *EventStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}

// ListUpcoming returns events starting within [from, until), soonest first.
func (s *EventStore) ListUpcoming(from, until time.Time) ([]model.Event, error) {
	rows, err := s.db.Query(
		`SELECT id, owner_id, title, start_time, end_time, created_at, updated_at
		 FROM events WHERE start_time >= ? AND start_time < ?
		 ORDER BY start_time ASC`,
		from.UTC(), until.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("query upcoming events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var e model.Event
		var end sql.NullTime
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.Title, &e.StartTime, &end, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if end.Valid {
			e.EndTime = &end.Time
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
