package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// InsertInteraction inserts a logged exchange with a client.
func (db *DB) InsertInteraction(i *Interaction) (string, error) {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	if i.CreatedAt.IsZero() {
		i.CreatedAt = time.Now()
	}

	_, err := db.conn.Exec(
		`INSERT INTO interactions (id, user_id, client_id, date, sujet, notes,
			satisfaction_client, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		i.ID, i.UserID, i.ClientID, formatTime(i.Date), i.Sujet, i.Notes,
		i.SatisfactionClient, formatTime(i.CreatedAt),
	)
	if err != nil {
		return "", err
	}
	return i.ID, nil
}

// RecentInteractions returns a client's interactions, newest first.
func (db *DB) RecentInteractions(clientID string, limit int) ([]Interaction, error) {
	rows, err := db.conn.Query(
		`SELECT id, user_id, client_id, date, sujet, notes, satisfaction_client, created_at
		FROM interactions WHERE client_id = ?
		ORDER BY date DESC LIMIT ?`,
		clientID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var interactions []Interaction
	for rows.Next() {
		var i Interaction
		var date, createdAt *string
		if err := rows.Scan(&i.ID, &i.UserID, &i.ClientID, &date, &i.Sujet, &i.Notes,
			&i.SatisfactionClient, &createdAt); err != nil {
			return nil, err
		}
		i.Date = parseTimeOrZero(date)
		i.CreatedAt = parseTimeOrZero(createdAt)
		interactions = append(interactions, i)
	}
	return interactions, rows.Err()
}

// HasInteractionWithSubjectSince reports whether the client has an
// interaction on or after the cutoff whose subject contains the given text,
// case-insensitively.
func (db *DB) HasInteractionWithSubjectSince(clientID, subject string, since time.Time) (bool, error) {
	var id string
	err := db.conn.QueryRow(
		`SELECT id FROM interactions
		WHERE client_id = ? AND date >= ? AND sujet LIKE ? COLLATE NOCASE
		LIMIT 1`,
		clientID, formatTime(since), "%"+subject+"%",
	).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// LatestInteractionDate returns the date of the client's most recent
// interaction, or nil when none is logged.
func (db *DB) LatestInteractionDate(clientID string) (*time.Time, error) {
	var date *string
	err := db.conn.QueryRow(
		`SELECT date FROM interactions WHERE client_id = ?
		ORDER BY date DESC LIMIT 1`, clientID,
	).Scan(&date)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return parseTimePtr(date), nil
}
