package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// InsertIdea inserts a project idea.
func (db *DB) InsertIdea(i *Idea) (string, error) {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	if i.Statut == "" {
		i.Statut = IdeaToPropose
	}
	if i.CreatedAt.IsZero() {
		i.CreatedAt = time.Now()
	}

	_, err := db.conn.Exec(
		`INSERT INTO project_ideas (id, user_id, project_id, titre, categorie, statut,
			potentiel_financier, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		i.ID, i.UserID, i.ProjectID, i.Titre, i.Categorie, i.Statut,
		i.PotentielFinancier, formatTime(i.CreatedAt),
	)
	if err != nil {
		return "", err
	}
	return i.ID, nil
}

// Ideas returns a tenant's ideas, newest first. A limit of 0 means no limit.
func (db *DB) Ideas(userID string, limit int) ([]Idea, error) {
	query := `SELECT id, user_id, project_id, titre, categorie, statut, potentiel_financier, created_at
		FROM project_ideas WHERE user_id = ? ORDER BY created_at DESC`
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
	return scanIdeas(rows)
}

// PendingIdea is an idea awaiting proposal, joined with the owning client.
type PendingIdea struct {
	Idea
	ClientID string
}

// PendingIdeasWithClient returns a tenant's to-propose ideas on non-deleted
// projects, each carrying the project's client id.
func (db *DB) PendingIdeasWithClient(userID string) ([]PendingIdea, error) {
	rows, err := db.conn.Query(
		`SELECT i.id, i.user_id, i.project_id, i.titre, i.categorie, i.statut,
			i.potentiel_financier, i.created_at, p.client_id
		FROM project_ideas i
		JOIN projects p ON p.id = i.project_id
		WHERE i.user_id = ? AND i.statut = ? AND p.deleted_at IS NULL`,
		userID, IdeaToPropose,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ideas []PendingIdea
	for rows.Next() {
		var pi PendingIdea
		var createdAt *string
		if err := rows.Scan(&pi.ID, &pi.UserID, &pi.ProjectID, &pi.Titre, &pi.Categorie,
			&pi.Statut, &pi.PotentielFinancier, &createdAt, &pi.ClientID); err != nil {
			return nil, err
		}
		pi.CreatedAt = parseTimeOrZero(createdAt)
		ideas = append(ideas, pi)
	}
	return ideas, rows.Err()
}

func scanIdeas(rows *sql.Rows) ([]Idea, error) {
	var ideas []Idea
	for rows.Next() {
		var i Idea
		var createdAt *string
		if err := rows.Scan(&i.ID, &i.UserID, &i.ProjectID, &i.Titre, &i.Categorie,
			&i.Statut, &i.PotentielFinancier, &createdAt); err != nil {
			return nil, err
		}
		i.CreatedAt = parseTimeOrZero(createdAt)
		ideas = append(ideas, i)
	}
	return ideas, rows.Err()
}
