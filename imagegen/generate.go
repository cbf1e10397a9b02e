package imagegen

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/sketchgan/sketchgan/envconfig"
	"github.com/sketchgan/sketchgan/ml"
	"github.com/sketchgan/sketchgan/vision"
)

// Generate wandelt die Skizze sketchPath mit dem Checkpoint modelPath in ein
// Bild unter outputPath um. Fortschritt und Fehler gehen auf stdout, das
// Ergebnis meldet nur Erfolg oder Misserfolg. Jeder Aufruf laedt das Modell neu.
func Generate(sketchPath, outputPath, modelPath string) bool {
	return generate(os.Stdout, sketchPath, outputPath, modelPath)
}

func generate(w io.Writer, sketchPath, outputPath, modelPath string) bool {
	path := ResolveModelPath(modelPath)
	if !isFile(path) {
		fmt.Fprintf(w, "Error: Model file not found at %s\n", path)
		return false
	}

	dev := ml.SelectDevice(envconfig.Device(), int(envconfig.NumThreads()))
	fmt.Fprintf(w, "Using device: %s\n", dev)

	if err := generateWith(w, dev, path, sketchPath, outputPath); err != nil {
		slog.Error("image generation failed", "sketch", sketchPath, "output", outputPath, "error", err)
		fmt.Fprintf(w, "Error generating image: %v\n", err)
		return false
	}
	return true
}

func generateWith(w io.Writer, dev *ml.Device, modelPath, sketchPath, outputPath string) error {
	p, err := newPipeline(dev, modelPath, envconfig.Section())
	if err != nil {
		return err
	}
	defer p.Close()
	fmt.Fprintln(w, "Model loaded successfully")

	sketch, err := vision.LoadImage(sketchPath)
	if err != nil {
		return err
	}
	x, err := p.preprocess(sketch)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Sketch loaded from %s\n", sketchPath)

	y, err := p.forward(context.Background(), x)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "Image generation complete")

	img, err := vision.ToImage(y)
	if err != nil {
		return err
	}
	if err := vision.SaveImage(outputPath, img); err != nil {
		return err
	}
	fmt.Fprintf(w, "Generated image saved to %s\n", outputPath)
	return nil
}
