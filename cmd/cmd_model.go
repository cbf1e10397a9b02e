// cmd_model.go - Checkpoint-Konvertierung, Inspektion und Geraeteanzeige
// Hauptfunktionen: ConvertHandler, InspectHandler, DevicesHandler
package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sketchgan/sketchgan/convert"
	"github.com/sketchgan/sketchgan/envconfig"
	"github.com/sketchgan/sketchgan/fs/gguf"
	"github.com/sketchgan/sketchgan/ml"
	"github.com/sketchgan/sketchgan/model"
)

// ConvertHandler - Schreibt einen Checkpoint als GGUF
func ConvertHandler(cmd *cobra.Command, args []string) error {
	typeName, _ := cmd.Flags().GetString("type")
	tt, err := gguf.ParseTensorType(typeName)
	if err != nil {
		return err
	}
	sections, _ := cmd.Flags().GetStringSlice("section")

	ckpt, err := model.LoadCheckpoint(args[0])
	if err != nil {
		return err
	}

	if err := convert.ToGGUF(ckpt, args[1], convert.Options{Sections: sections, Type: tt}); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "converted %s (%s) to %s (%s)\n", args[0], ckpt.Format, args[1], tt)
	return nil
}

// InspectHandler - Listet Sektionen und Tensoren eines Checkpoints
func InspectHandler(cmd *cobra.Command, args []string) error {
	ckpt, err := model.LoadCheckpoint(args[0])
	if err != nil {
		return err
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "format: %s\n\n", ckpt.Format)

	var data [][]string
	for _, name := range ckpt.Sections() {
		sd, err := ckpt.Section(name)
		if err != nil {
			return err
		}

		arch := "-"
		if cfg, err := model.ConfigFromStateDict(sd); err == nil {
			arch = fmt.Sprintf("generator ngf=%d res_blocks=%d in=%d out=%d", cfg.NGF, cfg.NumResBlocks, cfg.InChannels, cfg.OutChannels)
		}
		data = append(data, []string{name, strconv.Itoa(sd.Len()), strconv.Itoa(sd.NumParams()), arch})
	}
	renderTable(cmd, []string{"SECTION", "TENSORS", "PARAMETERS", "ARCHITECTURE"}, data)

	if !verbose {
		return nil
	}

	for _, name := range ckpt.Sections() {
		sd, _ := ckpt.Section(name)
		fmt.Fprintf(out, "\n%s\n", name)

		data = data[:0]
		err := sd.Each(func(key string, t *ml.Tensor) error {
			data = append(data, []string{key, formatShape(t.Shape()), strconv.Itoa(t.Len())})
			return nil
		})
		if err != nil {
			return err
		}
		renderTable(cmd, []string{"NAME", "SHAPE", "PARAMETERS"}, data)
	}
	return nil
}

func formatShape(shape []int) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = strconv.Itoa(d)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// DevicesHandler - Zeigt erkannte Compute-Geraete
func DevicesHandler(cmd *cobra.Command, _ []string) error {
	selected := ml.SelectDevice(envconfig.Device(), int(envconfig.NumThreads()))

	var data [][]string
	for _, d := range ml.GetDevices() {
		memory := "-"
		if d.MemoryTotal > 0 {
			memory = humanBytes(d.MemoryTotal)
		}
		mark := ""
		if d.Backend == selected.Backend() {
			mark = "*"
		}
		data = append(data, []string{string(d.Backend), d.DeviceName, memory, mark})
	}

	renderTable(cmd, []string{"BACKEND", "NAME", "MEMORY", "SELECTED"}, data)
	fmt.Fprintf(cmd.OutOrStdout(), "\nthreads: %d\n", selected.Threads())
	return nil
}

// newConvertCmd - Erstellt den convert Command
func newConvertCmd() *cobra.Command {
	convertCmd := &cobra.Command{
		Use:   "convert CHECKPOINT OUTPUT.gguf",
		Short: "Convert a PyTorch checkpoint to GGUF",
		Args:  cobra.ExactArgs(2),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if args[0] == args[1] {
				return errors.New("input and output must differ")
			}
			return nil
		},
		RunE: ConvertHandler,
	}
	convertCmd.Flags().String("type", "f32", "Tensor type for weights (f32, f16, bf16)")
	convertCmd.Flags().StringSlice("section", nil, "Sections to keep (default: all, e.g. "+model.DefaultSection+")")
	return convertCmd
}

// newInspectCmd - Erstellt den inspect Command
func newInspectCmd() *cobra.Command {
	inspectCmd := &cobra.Command{
		Use:   "inspect CHECKPOINT",
		Short: "List sections and tensors of a checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE:  InspectHandler,
	}
	inspectCmd.Flags().BoolP("verbose", "V", false, "List every tensor")
	return inspectCmd
}

// newDevicesCmd - Erstellt den devices Command
func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List compute devices",
		Args:  cobra.ExactArgs(0),
		RunE:  DevicesHandler,
	}
}
