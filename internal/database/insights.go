package database

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

const insightColumns = `id, user_id, type, client_id, project_id, titre, description,
	score_confiance, action_suggeree, statut, metadata, created_at`

// InsertInsight inserts a detector finding. New insights default to the
// "Nouveau" status.
func (db *DB) InsertInsight(i *Insight) (string, error) {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	if i.Statut == "" {
		i.Statut = InsightStatusNew
	}
	if i.CreatedAt.IsZero() {
		i.CreatedAt = time.Now()
	}

	var metadata *string
	if i.Metadata != nil {
		data, err := json.Marshal(i.Metadata)
		if err != nil {
			return "", err
		}
		s := string(data)
		metadata = &s
	}

	_, err := db.conn.Exec(
		`INSERT INTO insights_ia (id, user_id, type, client_id, project_id, titre, description,
			score_confiance, action_suggeree, statut, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		i.ID, i.UserID, i.Type, i.ClientID, i.ProjectID, i.Titre, i.Description,
		i.ScoreConfiance, i.ActionSuggeree, i.Statut, metadata, formatTime(i.CreatedAt),
	)
	if err != nil {
		return "", err
	}
	return i.ID, nil
}

// InsightFilter selects existing insights for duplicate suppression. UserID
// and Type are always applied; the remaining fields narrow the match when
// set.
type InsightFilter struct {
	UserID        string
	Type          string
	ClientID      *string
	ProjectID     *string
	OpenOnly      bool
	CreatedAfter  *time.Time
	TitleContains *string
}

// HasMatchingInsight reports whether any insight matches the filter.
// Detectors call it before inserting to avoid re-raising the same finding.
func (db *DB) HasMatchingInsight(f InsightFilter) (bool, error) {
	var conditions []string
	var args []any

	conditions = append(conditions, "user_id = ?", "type = ?")
	args = append(args, f.UserID, f.Type)

	if f.ClientID != nil {
		conditions = append(conditions, "client_id = ?")
		args = append(args, *f.ClientID)
	}
	if f.ProjectID != nil {
		conditions = append(conditions, "project_id = ?")
		args = append(args, *f.ProjectID)
	}
	if f.OpenOnly {
		conditions = append(conditions, "statut = ?")
		args = append(args, InsightStatusNew)
	}
	if f.CreatedAfter != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, formatTime(*f.CreatedAfter))
	}
	if f.TitleContains != nil {
		conditions = append(conditions, "titre LIKE ?")
		args = append(args, "%"+*f.TitleContains+"%")
	}

	query := "SELECT id FROM insights_ia WHERE " + strings.Join(conditions, " AND ") + " LIMIT 1"

	var id string
	err := db.conn.QueryRow(query, args...).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListInsights returns a tenant's insights, newest first. A limit of 0 means
// no limit.
func (db *DB) ListInsights(userID string, limit int) ([]Insight, error) {
	query := `SELECT ` + insightColumns + ` FROM insights_ia
		WHERE user_id = ? ORDER BY created_at DESC, id`
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var insights []Insight
	for rows.Next() {
		i, err := scanInsight(rows)
		if err != nil {
			return nil, err
		}
		insights = append(insights, *i)
	}
	return insights, rows.Err()
}

func scanInsight(row rowScanner) (*Insight, error) {
	var i Insight
	var metadata, createdAt *string
	if err := row.Scan(&i.ID, &i.UserID, &i.Type, &i.ClientID, &i.ProjectID, &i.Titre,
		&i.Description, &i.ScoreConfiance, &i.ActionSuggeree, &i.Statut,
		&metadata, &createdAt); err != nil {
		return nil, err
	}
	if metadata != nil && *metadata != "" {
		if err := json.Unmarshal([]byte(*metadata), &i.Metadata); err != nil {
			i.Metadata = nil
		}
	}
	i.CreatedAt = parseTimeOrZero(createdAt)
	return &i, nil
}
