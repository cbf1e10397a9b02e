// convert.go - Checkpoint-Konvertierung: PyTorch-Sektionen nach GGUF
// Hauptfunktionen: ToGGUF, Plan
package convert

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/sketchgan/sketchgan/fs"
	"github.com/sketchgan/sketchgan/fs/gguf"
	"github.com/sketchgan/sketchgan/ml"
)

// Options steuert die Konvertierung
type Options struct {
	// Sections waehlt die zu uebernehmenden Sektionen, leer bedeutet alle
	Sections []string

	// Type ist der Zieltyp fuer Gewichte mit Rang >= 2. Biases bleiben F32.
	Type gguf.TensorType
}

// ToGGUF schreibt die gewaehlten Sektionen von ckpt als GGUF-Datei nach path
func ToGGUF(ckpt *fs.Checkpoint, path string, opts Options) error {
	kvs, ts, err := Plan(ckpt, opts)
	if err != nil {
		return err
	}

	slog.Info("writing gguf", "path", path, "tensors", len(ts), "type", opts.Type)
	return gguf.WriteFile(path, kvs, ts)
}

// Plan berechnet Metadaten und Tensorliste ohne zu schreiben
func Plan(ckpt *fs.Checkpoint, opts Options) ([]gguf.KeyValue, []gguf.Tensor, error) {
	sections := opts.Sections
	if len(sections) == 0 {
		sections = ckpt.Sections()
	}

	var ts []gguf.Tensor
	for _, section := range sections {
		sd, err := ckpt.Section(section)
		if err != nil {
			return nil, nil, err
		}

		err = sd.Each(func(name string, t *ml.Tensor) error {
			if strings.Contains(name, "/") {
				return fmt.Errorf("tensor name %q must not contain '/'", name)
			}

			kind := gguf.TensorTypeF32
			if t.Rank() >= 2 {
				kind = opts.Type
			}

			shape := make([]uint64, t.Rank())
			for i, d := range t.Shape() {
				shape[i] = uint64(d)
			}

			ts = append(ts, gguf.Tensor{
				Name:   gguf.TensorName(section, name),
				Shape:  shape,
				Type:   kind,
				Values: t.Data(),
			})
			return nil
		})
		if err != nil {
			return nil, nil, fmt.Errorf("section %q: %w", section, err)
		}
		slog.Debug("converted section", "section", section, "tensors", sd.Len(), "params", sd.NumParams())
	}

	name := strings.TrimSuffix(filepath.Base(ckpt.Path), filepath.Ext(ckpt.Path))
	kvs := []gguf.KeyValue{
		{Key: "general.architecture", Value: gguf.Architecture},
		{Key: "general.name", Value: name},
		{Key: "general.file_type", Value: opts.Type.FileType()},
		{Key: "general.alignment", Value: uint32(gguf.DefaultAlignment)},
		{Key: gguf.KeySections, Value: sections},
		{Key: gguf.Architecture + ".source_format", Value: string(ckpt.Format)},
	}

	return kvs, ts, nil
}
