// Package modeltest erzeugt kleine Generator-Checkpoints fuer Tests.
package modeltest

import (
	"math"
	"math/rand/v2"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/sketchgan/sketchgan/convert"
	"github.com/sketchgan/sketchgan/fs"
	"github.com/sketchgan/sketchgan/ml"
	"github.com/sketchgan/sketchgan/model"
)

// TinyConfig ist ein Generator mit wenigen Kanaelen fuer schnelle Tests
func TinyConfig() model.Config {
	cfg := model.DefaultConfig()
	cfg.NGF = 4
	cfg.NumResBlocks = 2
	return cfg
}

// StateDict erzeugt deterministische Zufallsgewichte fuer cfg
func StateDict(cfg model.Config, seed uint64) *fs.StateDict {
	r := rand.New(rand.NewPCG(seed, 0x5ce7c4))
	sd := fs.NewStateDict()

	add := func(name string, fanIn int, shape ...int) {
		bound := float32(1 / math.Sqrt(float64(fanIn)))
		t := ml.Zeros(shape...)
		for i := range t.Data() {
			t.Data()[i] = (r.Float32()*2 - 1) * bound
		}
		sd.Set(name, t)
	}

	conv := func(name string, in, out, k int) {
		add(name+".weight", in*k*k, out, in, k, k)
		add(name+".bias", in*k*k, out)
	}
	convT := func(name string, in, out, k int) {
		add(name+".weight", out*k*k, in, out, k, k)
		add(name+".bias", out*k*k, out)
	}

	ngf := cfg.NGF
	conv("down1.0", cfg.InChannels, ngf, 4)
	conv("down2.0", ngf, 2*ngf, 4)
	conv("down3.0", 2*ngf, 4*ngf, 4)
	conv("down4.0", 4*ngf, 8*ngf, 4)
	for i := range cfg.NumResBlocks {
		prefix := "res_blocks." + strconv.Itoa(i)
		conv(prefix+".block.1", 8*ngf, 8*ngf, 3)
		conv(prefix+".block.5", 8*ngf, 8*ngf, 3)
	}
	convT("up1.0", 8*ngf, 4*ngf, 4)
	convT("up2.0", 8*ngf, 2*ngf, 4)
	convT("up3.0", 4*ngf, ngf, 4)
	convT("up4.0", 2*ngf, cfg.OutChannels, 4)

	return sd
}

// Checkpoint packt einen Zufallsgenerator in die Sektion model.DefaultSection
func Checkpoint(cfg model.Config, seed uint64) *fs.Checkpoint {
	ckpt := fs.NewCheckpoint(fs.FormatGGUF, "tiny.gguf")
	ckpt.AddSection(model.DefaultSection, StateDict(cfg, seed))
	return ckpt
}

// WriteGGUF schreibt einen kleinen Generator nach dir und gibt den Pfad zurueck
func WriteGGUF(tb testing.TB, dir string) string {
	tb.Helper()

	path := filepath.Join(dir, "tiny.gguf")
	if err := convert.ToGGUF(Checkpoint(TinyConfig(), 1), path, convert.Options{}); err != nil {
		tb.Fatalf("tiny model: %v", err)
	}
	return path
}
