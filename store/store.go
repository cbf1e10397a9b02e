// Modul: store.go
// Beschreibung: Skizzen-Historie des Servers auf SQLite-Basis.
// Die Datenbank wird beim ersten Zugriff angelegt.

package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sketchgan/sketchgan/envconfig"
)

type Store struct {
	// DBPath ueberschreibt den Standardpfad (vor allem fuer Tests)
	DBPath string

	// dbMu schuetzt nur die Initialisierung
	dbMu sync.Mutex
	db   *database

	// now ist fuer Tests austauschbar
	now func() time.Time
}

func (s *Store) ensureDB() error {
	s.dbMu.Lock()
	defer s.dbMu.Unlock()

	if s.db != nil {
		return nil
	}

	dbPath := s.DBPath
	if dbPath == "" {
		dbPath = envconfig.Database()
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("create db directory: %w", err)
	}

	database, err := newDatabase(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	// Instanz-ID beim ersten Start erzeugen
	if id, err := database.getID(); err != nil || id == "" {
		if u, err := uuid.NewV7(); err == nil {
			if err := database.setID(u.String()); err != nil {
				slog.Warn("failed to store instance id", "error", err)
			}
		}
	}

	slog.Debug("sketch history opened", "path", dbPath)
	s.db = database
	return nil
}

func (s *Store) timestamp() time.Time {
	if s.now != nil {
		return s.now().UTC()
	}
	return time.Now().UTC()
}

// ID gibt die Instanz-ID dieser Datenbank zurueck
func (s *Store) ID() (string, error) {
	if err := s.ensureDB(); err != nil {
		return "", err
	}
	return s.db.getID()
}

// CreateSketch legt einen Eintrag im Status pending an
func (s *Store) CreateSketch(originalName, inputPath, prompt string) (Sketch, error) {
	if err := s.ensureDB(); err != nil {
		return Sketch{}, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return Sketch{}, fmt.Errorf("generate id: %w", err)
	}

	now := s.timestamp()
	sketch := Sketch{
		ID:           id.String(),
		OriginalName: originalName,
		Prompt:       strings.TrimSpace(prompt),
		InputPath:    inputPath,
		Status:       StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.db.insertSketch(sketch); err != nil {
		return Sketch{}, err
	}
	return sketch, nil
}

// Sketch laedt einen Eintrag
func (s *Store) Sketch(id string) (Sketch, error) {
	if err := s.ensureDB(); err != nil {
		return Sketch{}, err
	}
	return s.db.getSketch(id)
}

// Sketches gibt die neuesten Eintraege zuerst zurueck
func (s *Store) Sketches(limit int) ([]Sketch, error) {
	if err := s.ensureDB(); err != nil {
		return nil, err
	}
	return s.db.listSketches(limit)
}

// UpdateSketch setzt einen neuen Status
func (s *Store) UpdateSketch(id string, u SketchUpdate) error {
	if !u.Status.Valid() {
		return fmt.Errorf("unknown sketch status %q", u.Status)
	}
	if err := s.ensureDB(); err != nil {
		return err
	}
	return s.db.updateSketch(id, u, s.timestamp())
}

// DeleteSketch entfernt einen Eintrag. Dateien bleiben liegen.
func (s *Store) DeleteSketch(id string) error {
	if err := s.ensureDB(); err != nil {
		return err
	}
	return s.db.deleteSketch(id)
}

func (s *Store) Close() error {
	s.dbMu.Lock()
	defer s.dbMu.Unlock()

	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}
