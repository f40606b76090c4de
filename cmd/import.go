package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"lms/internal/importer"
)

func newImportCmd() *cobra.Command {
	var institute string
	cmd := &cobra.Command{
		Use:   "import-catalog <file.csv>",
		Short: "Load titles and stock for one institute from CSV",
		Long: `Each record is name,edition,price,department,authors,copies.
Authors are separated by ';'. A header record is skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			instituteID, err := uuid.Parse(institute)
			if err != nil {
				return fmt.Errorf("--institute: %w", err)
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			rows, parseFailures, err := importer.Parse(f)
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}

			ctx := cmd.Context()
			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			sum, err := importer.New(a.catalog, a.inventory).Import(ctx, instituteID, rows)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, fail := range append(parseFailures, sum.Failures...) {
				fmt.Fprintf(out, "ERROR %v\n", fail)
			}
			fmt.Fprintf(out, "\nImport complete!\n")
			fmt.Fprintf(out, "Books resolved: %d\n", sum.Books)
			fmt.Fprintf(out, "Copies added:   %d\n", sum.Copies)
			fmt.Fprintf(out, "Errors:         %d\n", len(parseFailures)+len(sum.Failures))
			return nil
		},
	}
	cmd.Flags().StringVar(&institute, "institute", "", "institute id to stock (required)")
	_ = cmd.MarkFlagRequired("institute")
	return cmd
}
