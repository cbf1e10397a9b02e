// database_sketch.go - CRUD-Operationen fuer Skizzen

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const sketchColumns = `id, original_name, prompt, input_path, result_path, status, error, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSketch(row rowScanner) (Sketch, error) {
	var s Sketch
	var status string
	err := row.Scan(&s.ID, &s.OriginalName, &s.Prompt, &s.InputPath, &s.ResultPath, &status, &s.Error, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return Sketch{}, err
	}
	s.Status = Status(status)
	return s, nil
}

// insertSketch speichert einen neuen Eintrag
func (db *database) insertSketch(s Sketch) error {
	_, err := db.conn.Exec(`
		INSERT INTO sketches (`+sketchColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.OriginalName, s.Prompt, s.InputPath, s.ResultPath, string(s.Status), s.Error, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert sketch: %w", err)
	}
	return nil
}

// getSketch laedt einen Eintrag
func (db *database) getSketch(id string) (Sketch, error) {
	row := db.conn.QueryRow(`SELECT `+sketchColumns+` FROM sketches WHERE id = ?`, id)
	s, err := scanSketch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Sketch{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Sketch{}, fmt.Errorf("get sketch: %w", err)
	}
	return s, nil
}

// listSketches gibt die neuesten Eintraege zuerst zurueck. limit <= 0 liefert alle.
func (db *database) listSketches(limit int) ([]Sketch, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := db.conn.Query(`
		SELECT `+sketchColumns+`
		FROM sketches
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sketches: %w", err)
	}
	defer rows.Close()

	sketches := []Sketch{}
	for rows.Next() {
		s, err := scanSketch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sketch: %w", err)
		}
		sketches = append(sketches, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sketches: %w", err)
	}
	return sketches, nil
}

// updateSketch setzt den Status und optional Ergebnis oder Fehler
func (db *database) updateSketch(id string, u SketchUpdate, now time.Time) error {
	res, err := db.conn.Exec(`
		UPDATE sketches
		SET status = ?,
			result_path = CASE WHEN ? = '' THEN result_path ELSE ? END,
			error = CASE WHEN ? = '' THEN error ELSE ? END,
			updated_at = ?
		WHERE id = ?
	`, string(u.Status), u.ResultPath, u.ResultPath, u.Error, u.Error, now, id)
	if err != nil {
		return fmt.Errorf("update sketch: %w", err)
	}
	return expectRow(res, id)
}

// deleteSketch entfernt einen Eintrag
func (db *database) deleteSketch(id string) error {
	res, err := db.conn.Exec(`DELETE FROM sketches WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete sketch: %w", err)
	}
	return expectRow(res, id)
}

func expectRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
