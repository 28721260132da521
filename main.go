// Command coolestutil runs the COOLEST lens-model utilities on the documents
// listed in a json5 run file: coordinate grids, image transforms, parameter
// extraction and critical lines / caustics.
//
// Usage:
//
//	coolestutil [--verbose] coords|image|params|lines <run-file>
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

// !!!!! This MUST match the release tag !!!!!
const version = "0_1_0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:          "coolestutil",
		Short:        "Utilities for COOLEST lens-model documents",
		Long:         `coolestutil maps COOLEST observation grids to sky coordinates, transforms images, flattens model parameters for comparison and finds critical lines and caustics.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := charmlog.InfoLevel
			if verbose {
				level = charmlog.DebugLevel
			}
			cmd.SetContext(withLogger(cmd.Context(), newLogger(cmd.ErrOrStderr(), level)))
		},
	}

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	root.AddCommand(newCoordsCmd())
	root.AddCommand(newImageCmd())
	root.AddCommand(newParamsCmd())
	root.AddCommand(newLinesCmd())

	return root
}
