// Package imagegen verbindet Checkpoint, Generator und Bildverarbeitung zu
// einer Skizze-zu-Bild Inferenz.
//
// Hauptkomponenten:
// - Pipeline: Einmal geladener Generator fuer wiederholte Aufrufe (Server)
// - Generate: Einzelner Aufruf mit Fortschrittsausgabe auf stdout (CLI)
// - ResolveModelPath: Relative Modellpfade gegen das Installationsverzeichnis
package imagegen

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sketchgan/sketchgan/envconfig"
	"github.com/sketchgan/sketchgan/ml"
	"github.com/sketchgan/sketchgan/model"
	"github.com/sketchgan/sketchgan/vision"
)

// Fehler-Definitionen
var (
	ErrModelNotFound  = errors.New("model file not found")
	ErrPipelineClosed = errors.New("pipeline closed")
)

// Options konfiguriert eine Pipeline. Nullwerte werden aus envconfig gelesen.
type Options struct {
	Section string // Checkpoint-Eintrag, Default envconfig.Section
	Backend string // erzwungenes Backend, Default envconfig.Device
	Threads int    // Kernel-Worker, Default envconfig.NumThreads
}

func (o Options) withDefaults() Options {
	if o.Section == "" {
		o.Section = envconfig.Section()
	}
	if o.Backend == "" {
		o.Backend = envconfig.Device()
	}
	if o.Threads <= 0 {
		o.Threads = int(envconfig.NumThreads())
	}
	return o
}

// Pipeline haelt einen geladenen Generator. Aufrufe von Process werden
// serialisiert.
type Pipeline struct {
	mu    sync.Mutex
	gen   *model.Generator
	dev   *ml.Device
	model string
}

// ResolveModelPath verankert relative Pfade im Verzeichnis der laufenden
// Binary. Absolute Pfade bleiben unveraendert.
func ResolveModelPath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}

	exe, err := os.Executable()
	if err != nil {
		slog.Warn("executable path unavailable, using working directory", "error", err)
		return path
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Join(filepath.Dir(exe), path)
}

// NewPipeline loest modelPath auf, waehlt ein Geraet und laedt den Generator
func NewPipeline(modelPath string, opts Options) (*Pipeline, error) {
	opts = opts.withDefaults()

	path := ResolveModelPath(modelPath)
	if !isFile(path) {
		return nil, fmt.Errorf("%w at %s", ErrModelNotFound, path)
	}

	return newPipeline(ml.SelectDevice(opts.Backend, opts.Threads), path, opts.Section)
}

func newPipeline(dev *ml.Device, path, section string) (*Pipeline, error) {
	start := time.Now()
	gen, err := model.Load(path, section)
	if err != nil {
		return nil, err
	}

	slog.Info("model loaded", "path", path, "section", section, "device", dev, "duration", time.Since(start))
	return &Pipeline{gen: gen, dev: dev, model: path}, nil
}

// Device gibt das Compute-Geraet der Pipeline zurueck
func (p *Pipeline) Device() *ml.Device {
	return p.dev
}

// ModelPath gibt den aufgeloesten Checkpoint-Pfad zurueck
func (p *Pipeline) ModelPath() string {
	return p.model
}

// Config gibt die Generator-Konfiguration zurueck
func (p *Pipeline) Config() (model.Config, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen == nil {
		return model.Config{}, ErrPipelineClosed
	}
	return p.gen.Config, nil
}

// Process erzeugt aus einer Skizze ein Bild in Generator-Aufloesung
func (p *Pipeline) Process(ctx context.Context, sketch image.Image) (image.Image, error) {
	x, err := p.preprocess(vision.NewImageInput(sketch, vision.FormatUnknown))
	if err != nil {
		return nil, err
	}

	y, err := p.forward(ctx, x)
	if err != nil {
		return nil, err
	}
	return vision.ToImage(y)
}

// Run laedt sketchPath, erzeugt das Bild und schreibt es nach outputPath.
// Das Format folgt der Endung von outputPath.
func (p *Pipeline) Run(ctx context.Context, sketchPath, outputPath string) error {
	sketch, err := vision.LoadImage(sketchPath)
	if err != nil {
		return err
	}

	out, err := p.Process(ctx, sketch.Image)
	if err != nil {
		return err
	}
	return vision.SaveImage(outputPath, out)
}

// Close gibt den Generator frei. Weitere Aufrufe liefern ErrPipelineClosed.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen = nil
	return nil
}

// preprocess skaliert auf die Generator-Aufloesung und normalisiert auf [-1, 1]
func (p *Pipeline) preprocess(img *vision.ImageInput) (*ml.Tensor, error) {
	cfg, err := p.Config()
	if err != nil {
		return nil, err
	}

	resized, err := vision.ResizeImage(img, cfg.ImageSize, cfg.ImageSize)
	if err != nil {
		return nil, err
	}
	return vision.ToTensor(resized)
}

func (p *Pipeline) forward(ctx context.Context, x *ml.Tensor) (*ml.Tensor, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.gen == nil {
		return nil, ErrPipelineClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	y, err := p.gen.Forward(p.dev, x)
	if err != nil {
		return nil, fmt.Errorf("forward: %w", err)
	}
	slog.Debug("forward pass", "shape", y.Shape(), "duration", time.Since(start))
	return y, ctx.Err()
}

func isFile(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}
