// processor.go - Inferenz-Backend des Servers
// Enthaelt: Processor Interface, lazyPipeline (laedt das Modell beim ersten Request)

package server

import (
	"context"
	"sync"

	"github.com/sketchgan/sketchgan/imagegen"
)

// Processor erzeugt aus der Skizze sketchPath ein Bild unter outputPath
type Processor interface {
	Run(ctx context.Context, sketchPath, outputPath string) error
}

// lazyPipeline laedt den Generator beim ersten Request und haelt ihn bis
// Close. Schlaegt das Laden fehl, versucht der naechste Request es erneut.
type lazyPipeline struct {
	mu    sync.Mutex
	model string
	opts  imagegen.Options
	p     *imagegen.Pipeline
}

func newLazyPipeline(modelPath string, opts imagegen.Options) *lazyPipeline {
	return &lazyPipeline{model: modelPath, opts: opts}
}

func (l *lazyPipeline) pipeline() (*imagegen.Pipeline, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.p == nil {
		p, err := imagegen.NewPipeline(l.model, l.opts)
		if err != nil {
			return nil, err
		}
		l.p = p
	}
	return l.p, nil
}

func (l *lazyPipeline) Run(ctx context.Context, sketchPath, outputPath string) error {
	p, err := l.pipeline()
	if err != nil {
		return err
	}
	return p.Run(ctx, sketchPath, outputPath)
}

func (l *lazyPipeline) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.p == nil {
		return nil
	}
	err := l.p.Close()
	l.p = nil
	return err
}
