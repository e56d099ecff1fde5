package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/systemstart/guidedstats/pkg/server"
	"github.com/systemstart/guidedstats/pkg/store"
)

func exportCmd() *cobra.Command {
	var (
		dbPath   string
		from, to int
	)

	cmd := &cobra.Command{
		Use:   "export SESSION",
		Short: "Print the analysis code of a stored session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Open(dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			w, _, err := server.Restore(cmd.Context(), st, args[0])
			if err != nil {
				return err
			}
			var code string
			if cmd.Flags().Changed("from") || cmd.Flags().Changed("to") {
				code, err = w.ExportRange(from, to)
			} else {
				code, err = w.ExportCode()
			}
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), code)
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", envOr(envDB, "guidedstats.db"), "session database path")
	cmd.Flags().IntVar(&from, "from", 0, "first step to export")
	cmd.Flags().IntVar(&to, "to", 0, "last step to export")
	return cmd
}
