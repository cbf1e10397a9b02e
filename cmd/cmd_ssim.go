// cmd_ssim.go - Bildvergleich per SSIM
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sketchgan/sketchgan/ssim"
)

// Standardpfade des Vergleichs im Arbeitsverzeichnis
const (
	defaultSSIMFirst  = "test1.jpg"
	defaultSSIMSecond = "output_1.png"
)

// SSIMHandler - Vergleicht zwei Bilder und gibt den SSIM-Wert aus
func SSIMHandler(cmd *cobra.Command, args []string) error {
	first, second := defaultSSIMFirst, defaultSSIMSecond
	if len(args) == 2 {
		first, second = args[0], args[1]
	}

	size, _ := cmd.Flags().GetInt("size")
	score, err := ssim.CompareFiles(first, second, size)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "SSIM similarity score: %v\n", score)
	return nil
}

// newSSIMCmd - Erstellt den ssim Command
func newSSIMCmd() *cobra.Command {
	ssimCmd := &cobra.Command{
		Use:   "ssim [FIRST SECOND]",
		Short: "Compare two images with the structural similarity index",
		Long:  fmt.Sprintf("Compare two images with the structural similarity index. Without arguments %s and %s are compared.", defaultSSIMFirst, defaultSSIMSecond),
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return fmt.Errorf("expected 0 or 2 images, got %d", len(args))
			}
			return nil
		},
		RunE: SSIMHandler,
	}
	ssimCmd.Flags().Int("size", ssim.DefaultImageSize, "Edge length both images are resized to")
	return ssimCmd
}
