package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/systemstart/guidedstats/pkg/api"
	"github.com/systemstart/guidedstats/pkg/processing"
)

func templatesCmd() *cobra.Command {
	var (
		dir      string
		maxDepth int
	)

	cmd := &cobra.Command{
		Use:     "templates",
		Aliases: []string{"ls"},
		Short:   "List built-in and discovered pipeline templates",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var rows [][]string
			for _, name := range api.BuiltinTemplates() {
				tpl, err := api.BuiltinTemplate(name)
				if err != nil {
					return err
				}
				rows = append(rows, []string{name, tpl.Name, strconv.Itoa(len(tpl.Steps)), mutedStyle.Render("built-in")})
			}
			if dir != "" {
				found, err := processing.DiscoverTemplates(dir, maxDepth)
				if err != nil {
					return err
				}
				for _, tpl := range found {
					rows = append(rows, []string{tpl.Name, tpl.Name, strconv.Itoa(len(tpl.Steps)), tpl.FilePath})
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Ref", "Name", "Steps", "Source"}, rows))
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", envOr(envTemplateDir, ""), "directory to search for .guided.yaml templates")
	cmd.Flags().IntVar(&maxDepth, "max-depth", -1, "max directory recursion depth (-1 = unlimited, 0 = root only)")
	return cmd
}
