// cmd_run.go - Lokale Inferenz ohne Server
// Hauptfunktionen: RunHandler
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sketchgan/sketchgan/envconfig"
	"github.com/sketchgan/sketchgan/imagegen"
	"github.com/sketchgan/sketchgan/logutil"
)

const runUsage = "Usage: sketchgan run <input_sketch_path> <output_image_path> [model_path]"

// RunHandler - Wandelt eine Skizze lokal in ein Bild um
func RunHandler(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if len(args) < 2 || len(args) > 3 {
		fmt.Fprintln(out, runUsage)
		return ErrSilent
	}

	slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))

	input, output := args[0], args[1]
	modelPath := envconfig.Model()
	if len(args) > 2 {
		modelPath = args[2]
	}

	fmt.Fprintf(out, "Processing sketch: %s\n", input)
	fmt.Fprintf(out, "Output will be saved to: %s\n", output)

	if !generate(input, output, modelPath) {
		fmt.Fprintln(out, "Sketch processing failed")
		return ErrSilent
	}

	fmt.Fprintln(out, "Sketch processing completed successfully")
	return nil
}

// generate ist in Tests austauschbar
var generate = imagegen.Generate

// newRunCmd - Erstellt den run Command
func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run INPUT_SKETCH OUTPUT_IMAGE [MODEL]",
		Short: "Generate an image from a sketch",
		Long:  "Generate an image from a sketch. A relative MODEL path is resolved next to the sketchgan binary.",
		Args:  cobra.ArbitraryArgs,
		RunE:  RunHandler,
	}
}
