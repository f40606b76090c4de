package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configDir string

func main() {
	root := &cobra.Command{
		Use:           "lms",
		Short:         "Multi-institute library inventory and lending service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configDir, "config", "configs", "directory holding config.yaml")

	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newImportCmd(),
		newInstituteCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
