package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const clientColumns = `id, user_id, nom, contact_principal, statut, satisfaction,
	ca_total_genere, notes, idees_vente, source_acquisition, date_dernier_contact,
	deleted_at, created_at`

// InsertClient inserts a client, generating an id when none is set.
// Returns the id.
func (db *DB) InsertClient(c *Client) (string, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Statut == "" {
		c.Statut = ClientActive
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	_, err := db.conn.Exec(
		`INSERT INTO clients (id, user_id, nom, contact_principal, statut, satisfaction,
			ca_total_genere, notes, idees_vente, source_acquisition, date_dernier_contact,
			deleted_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Nom, c.ContactPrincipal, c.Statut, c.Satisfaction,
		c.CATotalGenere, c.Notes, marshalList(c.IdeesVente), c.SourceAcquisition,
		formatTimePtr(c.DateDernierContact), formatTimePtr(c.DeletedAt), formatTime(c.CreatedAt),
	)
	if err != nil {
		return "", err
	}
	return c.ID, nil
}

// GetClient returns a single client by id, or nil when not found.
func (db *DB) GetClient(id string) (*Client, error) {
	row := db.conn.QueryRow(
		`SELECT `+clientColumns+` FROM clients WHERE id = ?`, id,
	)
	c, err := scanClient(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListTenants returns the distinct owners of active, non-deleted clients.
func (db *DB) ListTenants() ([]string, error) {
	rows, err := db.conn.Query(
		`SELECT DISTINCT user_id FROM clients
		WHERE statut = ? AND deleted_at IS NULL
		ORDER BY user_id`, ClientActive,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		tenants = append(tenants, id)
	}
	return tenants, rows.Err()
}

// ActiveClients returns a tenant's active, non-deleted clients.
func (db *DB) ActiveClients(userID string) ([]Client, error) {
	rows, err := db.conn.Query(
		`SELECT `+clientColumns+` FROM clients
		WHERE user_id = ? AND statut = ? AND deleted_at IS NULL`,
		userID, ClientActive,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanClients(rows)
}

// ActiveClientsNotContactedSince returns active, non-deleted clients whose
// last contact is before the cutoff. Clients with no contact date at all are
// excluded.
func (db *DB) ActiveClientsNotContactedSince(userID string, before time.Time) ([]Client, error) {
	rows, err := db.conn.Query(
		`SELECT `+clientColumns+` FROM clients
		WHERE user_id = ? AND statut = ? AND deleted_at IS NULL
		AND date_dernier_contact IS NOT NULL AND date_dernier_contact < ?`,
		userID, ClientActive, formatTime(before),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanClients(rows)
}

// ActiveClientsWithMinSatisfaction returns active, non-deleted clients whose
// satisfaction score is at least min.
func (db *DB) ActiveClientsWithMinSatisfaction(userID string, min int) ([]Client, error) {
	rows, err := db.conn.Query(
		`SELECT `+clientColumns+` FROM clients
		WHERE user_id = ? AND statut = ? AND deleted_at IS NULL
		AND satisfaction >= ?`,
		userID, ClientActive, min,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanClients(rows)
}

// SoftDeleteClient marks a client as deleted without removing the row.
func (db *DB) SoftDeleteClient(id string) error {
	_, err := db.conn.Exec(
		"UPDATE clients SET deleted_at = ? WHERE id = ?", formatTime(time.Now()), id,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner) (*Client, error) {
	var c Client
	var ideesVente, dernierContact, deletedAt, createdAt *string
	if err := row.Scan(&c.ID, &c.UserID, &c.Nom, &c.ContactPrincipal, &c.Statut,
		&c.Satisfaction, &c.CATotalGenere, &c.Notes, &ideesVente, &c.SourceAcquisition,
		&dernierContact, &deletedAt, &createdAt); err != nil {
		return nil, err
	}
	c.IdeesVente = unmarshalList(ideesVente)
	c.DateDernierContact = parseTimePtr(dernierContact)
	c.DeletedAt = parseTimePtr(deletedAt)
	c.CreatedAt = parseTimeOrZero(createdAt)
	return &c, nil
}

func scanClients(rows *sql.Rows) ([]Client, error) {
	var clients []Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, *c)
	}
	return clients, rows.Err()
}
