// database.go - SQLite-Verbindung, Schema und Migrationen

package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // SQLite-Treiber registrieren
)

// currentSchemaVersion wird bei Schema-Aenderungen erhoeht
const currentSchemaVersion = 1

// database umhuellt die SQLite-Verbindung. SQLite serialisiert Schreiber
// selbst, im WAL-Modus blockieren Leser keine Schreiber.
type database struct {
	conn *sql.DB
}

// newDatabase oeffnet die Datenbank und initialisiert das Schema
func newDatabase(dbPath string) (*database, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db := &database{conn: conn}
	if err := db.init(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	return db, nil
}

// Close schliesst die Datenbankverbindung
func (db *database) Close() error {
	_, _ = db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE);")
	return db.conn.Close()
}

// init legt das Schema an
func (db *database) init() error {
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		instance_id TEXT NOT NULL DEFAULT '',
		schema_version INTEGER NOT NULL DEFAULT %d
	);

	INSERT OR IGNORE INTO settings (id) VALUES (1);

	CREATE TABLE IF NOT EXISTS sketches (
		id TEXT PRIMARY KEY,
		original_name TEXT NOT NULL DEFAULT '',
		prompt TEXT NOT NULL DEFAULT '',
		input_path TEXT NOT NULL,
		result_path TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sketches_created_at ON sketches(created_at);
	`, currentSchemaVersion)

	if _, err := db.conn.Exec(schema); err != nil {
		return err
	}

	if err := db.migrate(); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// migrate bringt das Schema auf currentSchemaVersion. Neuere Schemata
// stammen von einer neueren Version und werden abgelehnt.
func (db *database) migrate() error {
	version, err := db.getSchemaVersion()
	if err != nil {
		return err
	}

	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}

	// Noch keine Migrationen seit Version 1
	if version < currentSchemaVersion {
		return db.setSchemaVersion(currentSchemaVersion)
	}
	return nil
}

func (db *database) getSchemaVersion() (int, error) {
	var version int
	if err := db.conn.QueryRow("SELECT schema_version FROM settings").Scan(&version); err != nil {
		return 0, fmt.Errorf("get schema version: %w", err)
	}
	return version, nil
}

func (db *database) setSchemaVersion(version int) error {
	if _, err := db.conn.Exec("UPDATE settings SET schema_version = ?", version); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	return nil
}

// getID gibt die Instanz-ID zurueck
func (db *database) getID() (string, error) {
	var id string
	if err := db.conn.QueryRow("SELECT instance_id FROM settings").Scan(&id); err != nil {
		return "", fmt.Errorf("get instance id: %w", err)
	}
	return id, nil
}

// setID setzt die Instanz-ID
func (db *database) setID(id string) error {
	if _, err := db.conn.Exec("UPDATE settings SET instance_id = ?", id); err != nil {
		return fmt.Errorf("set instance id: %w", err)
	}
	return nil
}
