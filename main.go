package main

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/sketchgan/sketchgan/cmd"
)

func main() {
	err := cmd.NewCLI().ExecuteContext(context.Background())
	if errors.Is(err, cmd.ErrSilent) {
		os.Exit(1)
	}
	cobra.CheckErr(err)
}
