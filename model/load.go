// load.go - Checkpoint-Dateien erkennen und Generatoren laden
package model

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/sketchgan/sketchgan/fs"
	"github.com/sketchgan/sketchgan/fs/gguf"
	"github.com/sketchgan/sketchgan/fs/pth"
)

// DetectFormat erkennt das Checkpoint-Format an den ersten Bytes der Datei.
// torch.save schreibt ein Zip-Archiv (PK..) oder einen rohen Pickle-Stream (0x80).
func DetectFormat(path string) (fs.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	magic := make([]byte, 4)
	if _, err := io.ReadFull(f, magic); err != nil {
		return "", fmt.Errorf("%s: read header: %w", path, err)
	}

	switch {
	case bytes.Equal(magic, []byte(gguf.Magic)):
		return fs.FormatGGUF, nil
	case bytes.Equal(magic, []byte("PK\x03\x04")), magic[0] == 0x80:
		return fs.FormatPyTorch, nil
	default:
		return "", fmt.Errorf("%s: unknown checkpoint format (header % x)", path, magic)
	}
}

// LoadCheckpoint liest einen PyTorch- oder GGUF-Checkpoint
func LoadCheckpoint(path string) (*fs.Checkpoint, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	slog.Debug("loading checkpoint", "path", path, "format", format)
	switch format {
	case fs.FormatGGUF:
		return gguf.Load(path)
	default:
		return pth.Load(path)
	}
}

// FromCheckpoint baut einen Generator aus der Sektion section
func FromCheckpoint(ckpt *fs.Checkpoint, section string) (*Generator, error) {
	sd, err := ckpt.Section(section)
	if err != nil {
		return nil, err
	}

	cfg, err := ConfigFromStateDict(sd)
	if err != nil {
		return nil, fmt.Errorf("section %q: %w", section, err)
	}

	g := NewGenerator(cfg)
	if err := g.Load(sd); err != nil {
		return nil, fmt.Errorf("section %q: %w", section, err)
	}

	slog.Debug("generator loaded", "section", section, "ngf", cfg.NGF, "res_blocks", cfg.NumResBlocks, "params", sd.NumParams())
	return g, nil
}

// Load liest path und gibt den Generator aus section zurueck
func Load(path, section string) (*Generator, error) {
	ckpt, err := LoadCheckpoint(path)
	if err != nil {
		return nil, err
	}
	return FromCheckpoint(ckpt, section)
}
