package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const projectColumns = `id, user_id, client_id, nom, type, montant_ht, stack_technique,
	statut_projet, probabilite_closing, extensions_possibles, documentation_md,
	date_fin_prevue, date_fin_reelle, deleted_at, created_at`

// InsertProject inserts a project, generating an id when none is set.
// Returns the id.
func (db *DB) InsertProject(p *Project) (string, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.StatutProjet == "" {
		p.StatutProjet = ProjectDiscussion
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	_, err := db.conn.Exec(
		`INSERT INTO projects (id, user_id, client_id, nom, type, montant_ht, stack_technique,
			statut_projet, probabilite_closing, extensions_possibles, documentation_md,
			date_fin_prevue, date_fin_reelle, deleted_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.ClientID, p.Nom, p.Type, p.MontantHT, marshalList(p.StackTechnique),
		string(p.StatutProjet), p.ProbabiliteClosing, marshalList(p.ExtensionsPossibles),
		p.DocumentationMD, formatTimePtr(p.DateFinPrevue), formatTimePtr(p.DateFinReelle),
		formatTimePtr(p.DeletedAt), formatTime(p.CreatedAt),
	)
	if err != nil {
		return "", err
	}
	return p.ID, nil
}

// ProjectsForClient returns a client's non-deleted projects.
func (db *DB) ProjectsForClient(clientID string) ([]Project, error) {
	rows, err := db.conn.Query(
		`SELECT `+projectColumns+` FROM projects
		WHERE client_id = ? AND deleted_at IS NULL`, clientID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanProjects(rows)
}

// CompletedProjects returns a tenant's completed, non-deleted projects,
// most recently finished first. A limit of 0 means no limit.
func (db *DB) CompletedProjects(userID string, limit int) ([]Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects
		WHERE user_id = ? AND statut_projet = ? AND deleted_at IS NULL
		ORDER BY date_fin_reelle DESC`
	args := []any{userID, string(ProjectCompleted)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanProjects(rows)
}

// CompletedProjectsSince returns completed, non-deleted projects whose actual
// end date is on or after the cutoff.
func (db *DB) CompletedProjectsSince(userID string, since time.Time) ([]Project, error) {
	rows, err := db.conn.Query(
		`SELECT `+projectColumns+` FROM projects
		WHERE user_id = ? AND statut_projet = ? AND deleted_at IS NULL
		AND date_fin_reelle >= ?`,
		userID, string(ProjectCompleted), formatTime(since),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanProjects(rows)
}

// PipelineProjects returns non-deleted projects still in the sales pipeline
// (discussion or proposal sent).
func (db *DB) PipelineProjects(userID string) ([]Project, error) {
	rows, err := db.conn.Query(
		`SELECT `+projectColumns+` FROM projects
		WHERE user_id = ? AND deleted_at IS NULL
		AND statut_projet IN (?, ?)`,
		userID, string(ProjectDiscussion), string(ProjectProposalSent),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanProjects(rows)
}

// GetProject returns a single project by id, or nil when not found.
func (db *DB) GetProject(id string) (*Project, error) {
	row := db.conn.QueryRow(
		`SELECT `+projectColumns+` FROM projects WHERE id = ?`, id,
	)
	p, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func scanProject(row rowScanner) (*Project, error) {
	var p Project
	var statut string
	var stack, extensions, finPrevue, finReelle, deletedAt, createdAt *string
	if err := row.Scan(&p.ID, &p.UserID, &p.ClientID, &p.Nom, &p.Type, &p.MontantHT,
		&stack, &statut, &p.ProbabiliteClosing, &extensions, &p.DocumentationMD,
		&finPrevue, &finReelle, &deletedAt, &createdAt); err != nil {
		return nil, err
	}
	p.StatutProjet = ProjectStatus(statut)
	p.StackTechnique = unmarshalList(stack)
	p.ExtensionsPossibles = unmarshalList(extensions)
	p.DateFinPrevue = parseTimePtr(finPrevue)
	p.DateFinReelle = parseTimePtr(finReelle)
	p.DeletedAt = parseTimePtr(deletedAt)
	p.CreatedAt = parseTimeOrZero(createdAt)
	return &p, nil
}

func scanProjects(rows *sql.Rows) ([]Project, error) {
	var projects []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}
