// cmd_process.go - Verarbeitung ueber einen laufenden Server
// Hauptfunktionen: ProcessHandler, HistoryHandler, HistoryRemoveHandler, checkServerHeartbeat
package cmd

import (
	"context"
	"fmt"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/sketchgan/sketchgan/api"
	"github.com/sketchgan/sketchgan/envconfig"
)

// checkServerHeartbeat - Prueft ob der Server erreichbar ist
func checkServerHeartbeat(cmd *cobra.Command, _ []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}
	if err := client.Heartbeat(cmd.Context()); err != nil {
		return fmt.Errorf("sketchgan server not responding at %s - %w (start it with 'sketchgan serve')", envconfig.Host(), err)
	}
	return nil
}

// ProcessHandler - Laedt eine Skizze zum Server hoch und speichert das Ergebnis
func ProcessHandler(cmd *cobra.Command, args []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), envconfig.ProcessTimeout())
	defer cancel()

	start := time.Now()
	resp, err := client.ProcessSketch(ctx, args[0])
	if err != nil {
		return err
	}

	data, err := client.FetchResult(ctx, resp.ResultURL)
	if err != nil {
		return err
	}

	output := path.Base(resp.ResultURL)
	if len(args) > 1 {
		output = args[1]
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s\nGenerated image saved to %s (%s)\n", resp.Message, output, time.Since(start).Round(time.Millisecond))
	return nil
}

// HistoryHandler - Listet die zuletzt verarbeiteten Skizzen
func HistoryHandler(cmd *cobra.Command, _ []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	limit, _ := cmd.Flags().GetInt("limit")
	status, _ := cmd.Flags().GetString("status")
	resp, err := client.ListSketches(cmd.Context(), limit, status)
	if err != nil {
		return err
	}

	var data [][]string
	for _, s := range resp.Sketches {
		data = append(data, []string{s.ID, s.OriginalName, s.Status, s.ResultURL, humanTime(s.CreatedAt)})
	}

	renderTable(cmd, []string{"ID", "NAME", "STATUS", "RESULT", "CREATED"}, data)
	return nil
}

// HistoryRemoveHandler - Loescht Eintraege samt Upload und Ergebnisbild
func HistoryRemoveHandler(cmd *cobra.Command, args []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	for _, id := range args {
		if err := client.DeleteSketch(cmd.Context(), id); err != nil {
			return fmt.Errorf("%s: %w", id, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted '%s'\n", id)
	}
	return nil
}

// newProcessCmd - Erstellt den process Command
func newProcessCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "process SKETCH [OUTPUT]",
		Short:   "Process a sketch on a running server",
		Args:    cobra.RangeArgs(1, 2),
		PreRunE: checkServerHeartbeat,
		RunE:    ProcessHandler,
	}
}

// newHistoryCmd - Erstellt den history Command
func newHistoryCmd() *cobra.Command {
	historyCmd := &cobra.Command{
		Use:     "history",
		Aliases: []string{"ls"},
		Short:   "List sketches processed by the server",
		Args:    cobra.ExactArgs(0),
		PreRunE: checkServerHeartbeat,
		RunE:    HistoryHandler,
	}
	historyCmd.Flags().Int("limit", 20, "Maximum number of entries (0 for all)")
	historyCmd.Flags().String("status", "", "Only show entries with this status (pending, processing, completed, failed)")

	historyCmd.AddCommand(&cobra.Command{
		Use:     "rm ID [ID...]",
		Short:   "Remove sketches and their files from the history",
		Args:    cobra.MinimumNArgs(1),
		PreRunE: checkServerHeartbeat,
		RunE:    HistoryRemoveHandler,
	})
	return historyCmd
}

// renderTable - Gibt eine Tabelle im CLI-Stil ohne Rahmen aus
func renderTable(cmd *cobra.Command, header []string, data [][]string) {
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}

// humanTime - Relative Zeitangabe fuer Tabellen
func humanTime(t time.Time) string {
	if t.IsZero() {
		return "Never"
	}

	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "Less than a minute ago"
	case d < time.Hour:
		return pluralize(int(d.Minutes()), "minute") + " ago"
	case d < 24*time.Hour:
		return pluralize(int(d.Hours()), "hour") + " ago"
	default:
		return pluralize(int(d.Hours()/24), "day") + " ago"
	}
}

func pluralize(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}

// humanBytes - Groessenangabe mit binaeren Einheiten
func humanBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
