// Package api - Anfrage- und Antworttypen des sketchgan HTTP-Dienstes
// Enthaelt: StatusError, ProcessResponse, SimilarityResponse, Sketch, Device
package api

import (
	"fmt"
	"time"
)

// StatusError is an error with an HTTP status code and message.
type StatusError struct {
	StatusCode   int
	Status       string
	ErrorMessage string `json:"error"`
	Details      string `json:"details,omitempty"`
}

func (e StatusError) Error() string {
	msg := e.ErrorMessage
	if msg != "" && e.Details != "" {
		msg += " (" + e.Details + ")"
	}

	switch {
	case e.Status != "" && msg != "":
		return fmt.Sprintf("%s: %s", e.Status, msg)
	case e.Status != "":
		return e.Status
	case msg != "":
		return msg
	default:
		// this should not happen
		return "something went wrong, please see the sketchgan server logs for details"
	}
}

// ErrorResponse ist der JSON-Koerper aller Fehlerantworten
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ProcessResponse is the response of POST /api/process-sketch.
type ProcessResponse struct {
	Success   bool   `json:"success"`
	ResultURL string `json:"resultUrl"`
	Message   string `json:"message"`
	ID        string `json:"id,omitempty"`
}

// SimilarityResponse is the response of POST /api/similarity.
type SimilarityResponse struct {
	Similarity float64 `json:"similarity"`
	Size       int     `json:"size"`
}

// VersionResponse is the response of GET /api/version.
type VersionResponse struct {
	Version string `json:"version"`
}

// Device beschreibt ein Compute-Geraet des Servers
type Device struct {
	Backend     string `json:"backend"`
	Name        string `json:"name"`
	MemoryTotal uint64 `json:"memory_total,omitempty"`
	Selected    bool   `json:"selected"`
}

// DevicesResponse is the response of GET /api/devices.
type DevicesResponse struct {
	Devices []Device `json:"devices"`
}

// Sketch ist ein Eintrag der Skizzen-Historie
type Sketch struct {
	ID           string    `json:"id"`
	OriginalName string    `json:"originalName"`
	Prompt       string    `json:"prompt,omitempty"`
	ResultURL    string    `json:"resultUrl,omitempty"`
	Status       string    `json:"status"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ListSketchesResponse is the response of GET /api/sketches.
type ListSketchesResponse struct {
	Sketches []Sketch `json:"sketches"`
}
