// Package gguf - Abbildung zwischen GGUF-Dateien und Checkpoints
//
// Tensor-Namen haben die Form "<sektion>/<parameter>", z.B.
// "G_sketch_to_real/down1.0.weight". Namen ohne Sektion landen in fs.RootSection.
package gguf

import (
	"fmt"
	"strings"

	"github.com/sketchgan/sketchgan/fs"
	"github.com/sketchgan/sketchgan/ml"
)

// Architecture ist der Wert von general.architecture fuer Generator-Dateien
const Architecture = "sketchgan"

// KeySections listet die enthaltenen Sektionen
const KeySections = Architecture + ".sections"

// TensorName setzt Sektion und Parametername zusammen
func TensorName(section, name string) string {
	if section == "" || section == fs.RootSection {
		return name
	}
	return section + "/" + name
}

// splitName zerlegt einen Tensor-Namen in Sektion und Parametername
func splitName(name string) (string, string) {
	if section, param, ok := strings.Cut(name, "/"); ok {
		return section, param
	}
	return fs.RootSection, name
}

// Load liest eine GGUF-Datei als Checkpoint
func Load(path string) (*fs.Checkpoint, error) {
	f, err := Open(path)
	if err != nil {
		return nil, err
	}
	return f.Checkpoint(path)
}

// Checkpoint dekodiert alle Tensoren nach float32 und gruppiert sie nach Sektion
func (f *File) Checkpoint(path string) (*fs.Checkpoint, error) {
	if arch := f.String("general.architecture"); arch != "" && arch != Architecture {
		return nil, fmt.Errorf("%w architecture %q", ErrUnsupported, arch)
	}

	ckpt := fs.NewCheckpoint(fs.FormatGGUF, path)
	for _, ti := range f.Tensors {
		values, err := f.Float32(ti.Name)
		if err != nil {
			return nil, err
		}
		t, err := ml.New(ti.IntShape(), values)
		if err != nil {
			return nil, fmt.Errorf("tensor %q: %w", ti.Name, err)
		}

		section, name := splitName(ti.Name)
		sd, err := ckpt.Section(section)
		if err != nil {
			sd = fs.NewStateDict()
			ckpt.AddSection(section, sd)
		}
		sd.Set(name, t)
	}
	return ckpt, nil
}
