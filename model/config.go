// config.go - Generator-Konfiguration und Ableitung aus Checkpoint-Formen
package model

import (
	"fmt"
	"strconv"

	"github.com/sketchgan/sketchgan/fs"
	"github.com/sketchgan/sketchgan/ml"
)

// DefaultSection ist der Checkpoint-Eintrag des Skizze-zu-Foto-Generators
const DefaultSection = "G_sketch_to_real"

// Config beschreibt die Groesse eines Generators
type Config struct {
	InChannels   int
	OutChannels  int
	NGF          int // Basis-Kanalzahl, die Stufen verwenden NGF, 2, 4 und 8 mal NGF
	NumResBlocks int
	ImageSize    int // Kantenlaenge, auf die Eingaben skaliert werden
}

// DefaultConfig ist die Konfiguration des trainierten Skizze-zu-Foto-Generators
func DefaultConfig() Config {
	return Config{
		InChannels:   3,
		OutChannels:  3,
		NGF:          64,
		NumResBlocks: 5,
		ImageSize:    128,
	}
}

// ConfigFromStateDict leitet die Konfiguration aus den Tensor-Formen ab:
// down1.0.weight [ngf, in, 4, 4], up4.0.weight [2*ngf, out, 4, 4] und die
// Anzahl aufeinanderfolgender res_blocks.N-Eintraege.
func ConfigFromStateDict(sd *fs.StateDict) (Config, error) {
	cfg := DefaultConfig()

	down1, err := rank4(sd, "down1.0.weight")
	if err != nil {
		return Config{}, err
	}
	cfg.NGF = down1.Dim(0)
	cfg.InChannels = down1.Dim(1)

	up4, err := rank4(sd, "up4.0.weight")
	if err != nil {
		return Config{}, err
	}
	if up4.Dim(0) != 2*cfg.NGF {
		return Config{}, fmt.Errorf("%w: up4.0.weight has %d input channels, expected %d", ml.ErrShapeMismatch, up4.Dim(0), 2*cfg.NGF)
	}
	cfg.OutChannels = up4.Dim(1)

	cfg.NumResBlocks = 0
	for {
		if _, ok := sd.Get("res_blocks." + strconv.Itoa(cfg.NumResBlocks) + ".block.1.weight"); !ok {
			break
		}
		cfg.NumResBlocks++
	}

	return cfg, nil
}

func rank4(sd *fs.StateDict, name string) (*ml.Tensor, error) {
	t, ok := sd.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingTensor, name)
	}
	if t.Rank() != 4 {
		return nil, fmt.Errorf("%w: %s has shape %v", ml.ErrShapeMismatch, name, t.Shape())
	}
	return t, nil
}
