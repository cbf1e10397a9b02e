// Modul: types.go
// Beschreibung: Datentypen der Skizzen-Historie.

package store

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound wird zurueckgegeben, wenn eine Skizze nicht existiert
var ErrNotFound = errors.New("sketch not found")

// Status beschreibt den Verarbeitungsstand einer Skizze
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Valid prueft ob s ein bekannter Status ist
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// ParseStatus wandelt einen String in einen Status um
func ParseStatus(s string) (Status, error) {
	if st := Status(s); st.Valid() {
		return st, nil
	}
	return "", fmt.Errorf("unknown sketch status %q", s)
}

// Sketch ist ein Eintrag der Historie
type Sketch struct {
	ID           string    `json:"id"`
	OriginalName string    `json:"originalName"`
	Prompt       string    `json:"prompt,omitempty"`
	InputPath    string    `json:"inputPath"`
	ResultPath   string    `json:"resultPath,omitempty"`
	Status       Status    `json:"status"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// SketchUpdate beschreibt einen Statuswechsel. Leere Felder bleiben unveraendert.
type SketchUpdate struct {
	Status     Status
	ResultPath string
	Error      string
}
