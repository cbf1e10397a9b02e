// cmd.go - Haupt-CLI Setup und Root Command
// Hauptfunktionen: NewCLI, appendEnvDocs
package cmd

import (
	"errors"
	"fmt"
	"log"
	"os"
	"runtime"

	"github.com/containerd/console"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sketchgan/sketchgan/envconfig"
)

// ErrSilent beendet den Prozess mit Exit-Code 1, ohne eine weitere
// Fehlermeldung auszugeben. Der Command hat den Fehler bereits gemeldet.
var ErrSilent = errors.New("command failed")

// appendEnvDocs - Fuegt Umgebungsvariablen-Dokumentation zum Command hinzu
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-26s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// NewCLI - Erstellt das Haupt-CLI mit allen Commands
func NewCLI() *cobra.Command {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	cobra.EnableCommandSorting = false

	if runtime.GOOS == "windows" && term.IsTerminal(int(os.Stdout.Fd())) {
		console.ConsoleFromFile(os.Stdin) //nolint:errcheck
	}

	rootCmd := &cobra.Command{
		Use:           "sketchgan",
		Short:         "Turn sketches into images with a pix2pix style generator",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Run: func(cmd *cobra.Command, args []string) {
			if version, _ := cmd.Flags().GetBool("version"); version {
				versionHandler(cmd, args)
				return
			}

			cmd.Print(cmd.UsageString())
		},
	}

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	runCmd := newRunCmd()
	serveCmd := newServeCmd()
	processCmd := newProcessCmd()
	historyCmd := newHistoryCmd()
	ssimCmd := newSSIMCmd()
	convertCmd := newConvertCmd()
	inspectCmd := newInspectCmd()
	devicesCmd := newDevicesCmd()

	// Environment-Dokumentation hinzufuegen
	envVars := envconfig.AsMap()
	deviceEnvs := []envconfig.EnvVar{envVars["SKETCHGAN_DEBUG"], envVars["SKETCHGAN_DEVICE"], envVars["SKETCHGAN_NUM_THREADS"]}

	for _, cmd := range []*cobra.Command{
		runCmd,
		serveCmd,
		processCmd,
		historyCmd,
		convertCmd,
		inspectCmd,
		devicesCmd,
	} {
		switch cmd {
		case runCmd:
			appendEnvDocs(cmd, append([]envconfig.EnvVar{envVars["SKETCHGAN_SECTION"]}, deviceEnvs...))
		case serveCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{
				envVars["SKETCHGAN_DEBUG"],
				envVars["SKETCHGAN_HOST"],
				envVars["SKETCHGAN_ORIGINS"],
				envVars["SKETCHGAN_HOME"],
				envVars["SKETCHGAN_MODEL"],
				envVars["SKETCHGAN_SECTION"],
				envVars["SKETCHGAN_DEVICE"],
				envVars["SKETCHGAN_NUM_THREADS"],
				envVars["SKETCHGAN_PROCESS_TIMEOUT"],
				envVars["SKETCHGAN_MAX_UPLOAD"],
				envVars["SKETCHGAN_MAX_PIXELS"],
				envVars["SKETCHGAN_NOHISTORY"],
			})
		case processCmd, historyCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{envVars["SKETCHGAN_HOST"], envVars["SKETCHGAN_PROCESS_TIMEOUT"]})
		case inspectCmd, convertCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{envVars["SKETCHGAN_DEBUG"]})
		default:
			appendEnvDocs(cmd, deviceEnvs)
		}
	}

	rootCmd.AddCommand(
		runCmd,
		serveCmd,
		processCmd,
		historyCmd,
		ssimCmd,
		convertCmd,
		inspectCmd,
		devicesCmd,
	)

	return rootCmd
}
