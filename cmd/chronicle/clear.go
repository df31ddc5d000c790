package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newClearCmd(app func() *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear [name]",
		Short: "Discard every record",
		Long: "Truncates the data and index files back to one segment. Readers in other " +
			"processes see the chronicle as empty; their current record views become invalid.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := app()
			force, _ := cmd.Flags().GetBool("force")
			if !force {
				return errors.New("clear discards all records; pass --force to confirm")
			}
			c, err := e.open(args, false)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			before := c.Size()
			if err := c.Clear(); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "cleared %d records from %s\n", before, c.Path())
			return nil
		},
	}
	cmd.Flags().Bool("force", false, "confirm discarding all records")
	return cmd
}
