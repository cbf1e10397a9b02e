// Package fs enthaelt die formatunabhaengige Sicht auf Checkpoints.
//
// Dieses Modul enthaelt:
// - StateDict: geordnete Abbildung Parametername -> Tensor
// - Checkpoint: benannte Sektionen (z.B. "G_sketch_to_real") eines Checkpoints
// - ErrSectionNotFound: Sektion fehlt im Checkpoint
package fs

import (
	"errors"
	"fmt"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/sketchgan/sketchgan/ml"
)

// ErrSectionNotFound wird zurueckgegeben, wenn eine Sektion im Checkpoint fehlt
var ErrSectionNotFound = errors.New("section not found")

// RootSection ist der Sektionsname fuer Dateien, die direkt ein state_dict enthalten
const RootSection = "state_dict"

// =============================================================================
// StateDict
// =============================================================================

// StateDict haelt die Parameter eines Netzes in Einfuegereihenfolge.
// Schluessel folgen der PyTorch-Notation, z.B. "down1.0.weight".
type StateDict struct {
	tensors *orderedmap.OrderedMap[string, *ml.Tensor]
}

// NewStateDict erstellt ein leeres StateDict
func NewStateDict() *StateDict {
	return &StateDict{tensors: orderedmap.New[string, *ml.Tensor]()}
}

// Set fuegt einen Tensor hinzu oder ersetzt ihn
func (s *StateDict) Set(name string, t *ml.Tensor) {
	s.tensors.Set(name, t)
}

// Get gibt den Tensor fuer name zurueck
func (s *StateDict) Get(name string) (*ml.Tensor, bool) {
	return s.tensors.Get(name)
}

// Len gibt die Anzahl der Tensoren zurueck
func (s *StateDict) Len() int {
	return s.tensors.Len()
}

// Keys gibt alle Namen in Einfuegereihenfolge zurueck
func (s *StateDict) Keys() []string {
	keys := make([]string, 0, s.tensors.Len())
	for pair := s.tensors.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Each ruft fn fuer jeden Tensor in Einfuegereihenfolge auf.
// Ein Fehler von fn bricht die Iteration ab.
func (s *StateDict) Each(fn func(name string, t *ml.Tensor) error) error {
	for pair := s.tensors.Oldest(); pair != nil; pair = pair.Next() {
		if err := fn(pair.Key, pair.Value); err != nil {
			return err
		}
	}
	return nil
}

// NumParams gibt die Gesamtzahl der Parameter zurueck
func (s *StateDict) NumParams() int {
	n := 0
	for pair := s.tensors.Oldest(); pair != nil; pair = pair.Next() {
		n += pair.Value.Len()
	}
	return n
}

// WithPrefix gibt alle Tensoren unter prefix zurueck, mit entferntem Prefix
func (s *StateDict) WithPrefix(prefix string) *StateDict {
	sub := NewStateDict()
	for pair := s.tensors.Oldest(); pair != nil; pair = pair.Next() {
		if rest, ok := strings.CutPrefix(pair.Key, prefix); ok {
			sub.Set(rest, pair.Value)
		}
	}
	return sub
}

// =============================================================================
// Checkpoint
// =============================================================================

// Format bezeichnet das Dateiformat eines Checkpoints
type Format string

const (
	FormatPyTorch Format = "pytorch"
	FormatGGUF    Format = "gguf"
)

// Checkpoint ist ein geladener Checkpoint mit einer oder mehreren Sektionen
type Checkpoint struct {
	Format   Format
	Path     string
	sections *orderedmap.OrderedMap[string, *StateDict]
}

// NewCheckpoint erstellt einen leeren Checkpoint
func NewCheckpoint(format Format, path string) *Checkpoint {
	return &Checkpoint{
		Format:   format,
		Path:     path,
		sections: orderedmap.New[string, *StateDict](),
	}
}

// AddSection fuegt eine Sektion hinzu oder ersetzt sie
func (c *Checkpoint) AddSection(name string, sd *StateDict) {
	c.sections.Set(name, sd)
}

// Section gibt die Sektion name zurueck
func (c *Checkpoint) Section(name string) (*StateDict, error) {
	sd, ok := c.sections.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q in %s (available: %s)", ErrSectionNotFound, name, c.Path, strings.Join(c.Sections(), ", "))
	}
	return sd, nil
}

// Sections gibt alle Sektionsnamen in Dateireihenfolge zurueck
func (c *Checkpoint) Sections() []string {
	names := make([]string, 0, c.sections.Len())
	for pair := c.sections.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}
