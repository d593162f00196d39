package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS clients (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    nom TEXT NOT NULL,
    contact_principal TEXT,
    statut TEXT NOT NULL DEFAULT 'Actif',
    satisfaction INTEGER,
    ca_total_genere REAL NOT NULL DEFAULT 0,
    notes TEXT,
    idees_vente TEXT,
    source_acquisition TEXT,
    date_dernier_contact TEXT,
    deleted_at TEXT,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS projects (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    client_id TEXT NOT NULL REFERENCES clients(id),
    nom TEXT NOT NULL,
    type TEXT,
    montant_ht REAL,
    stack_technique TEXT,
    statut_projet TEXT NOT NULL DEFAULT 'Discussion',
    probabilite_closing INTEGER,
    extensions_possibles TEXT,
    documentation_md TEXT,
    date_fin_prevue TEXT,
    date_fin_reelle TEXT,
    deleted_at TEXT,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS project_lots (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    project_id TEXT NOT NULL REFERENCES projects(id),
    nom TEXT NOT NULL,
    montant_ht REAL NOT NULL DEFAULT 0,
    montant_paye REAL,
    statut_facturation TEXT NOT NULL DEFAULT 'Brouillon',
    statut_livraison TEXT,
    date_facturation TEXT,
    date_livraison TEXT,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS project_lot_echeances (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    lot_id TEXT NOT NULL REFERENCES project_lots(id),
    label TEXT NOT NULL,
    montant_ht REAL NOT NULL DEFAULT 0,
    statut_facturation TEXT NOT NULL DEFAULT 'Brouillon',
    date_facturation TEXT,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS project_recurrents (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    project_id TEXT NOT NULL REFERENCES projects(id),
    label TEXT NOT NULL,
    montant_ht REAL NOT NULL DEFAULT 0,
    frequence TEXT NOT NULL DEFAULT 'Mensuel',
    statut TEXT NOT NULL DEFAULT 'Actif',
    date_fin TEXT,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS project_recurrent_echeances (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    recurrent_id TEXT NOT NULL REFERENCES project_recurrents(id),
    label TEXT NOT NULL,
    montant_ht REAL NOT NULL DEFAULT 0,
    statut_facturation TEXT NOT NULL DEFAULT 'Brouillon',
    date_facturation TEXT,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS interactions (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    client_id TEXT NOT NULL REFERENCES clients(id),
    date TEXT NOT NULL,
    sujet TEXT,
    notes TEXT,
    satisfaction_client INTEGER,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS project_ideas (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    project_id TEXT NOT NULL REFERENCES projects(id),
    titre TEXT NOT NULL,
    categorie TEXT,
    statut TEXT NOT NULL DEFAULT 'À proposer',
    potentiel_financier REAL,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS insights_ia (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    type TEXT NOT NULL,
    client_id TEXT REFERENCES clients(id),
    project_id TEXT REFERENCES projects(id),
    titre TEXT NOT NULL,
    description TEXT NOT NULL,
    score_confiance INTEGER NOT NULL DEFAULT 0,
    action_suggeree TEXT,
    statut TEXT NOT NULL DEFAULT 'Nouveau',
    metadata TEXT,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_clients_user ON clients(user_id);
CREATE INDEX IF NOT EXISTS idx_projects_user ON projects(user_id);
CREATE INDEX IF NOT EXISTS idx_projects_client ON projects(client_id);
CREATE INDEX IF NOT EXISTS idx_lots_project ON project_lots(project_id);
CREATE INDEX IF NOT EXISTS idx_lot_echeances_lot ON project_lot_echeances(lot_id);
CREATE INDEX IF NOT EXISTS idx_recurrents_project ON project_recurrents(project_id);
CREATE INDEX IF NOT EXISTS idx_recurrent_echeances_recurrent ON project_recurrent_echeances(recurrent_id);
CREATE INDEX IF NOT EXISTS idx_interactions_client ON interactions(client_id);
CREATE INDEX IF NOT EXISTS idx_ideas_user ON project_ideas(user_id);
CREATE INDEX IF NOT EXISTS idx_insights_user_type ON insights_ia(user_id, type);
CREATE INDEX IF NOT EXISTS idx_insights_client ON insights_ia(client_id);
CREATE INDEX IF NOT EXISTS idx_insights_project ON insights_ia(project_id);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	latest := 0
	for _, m := range migrations {
		if m.Version > latest {
			latest = m.Version
		}
	}
	return latest
}
