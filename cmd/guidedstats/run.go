package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/systemstart/guidedstats/pkg/processing"
)

func runCmd() *cobra.Command {
	var (
		contextFile string
		exportPath  string
		quiet       bool
	)

	cmd := &cobra.Command{
		Use:   "run SCRIPT",
		Short: "Run a recorded session script and print where it got to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			globalContext, err := loadGlobalContext(contextFile)
			if err != nil {
				return err
			}

			sess, runErr := processing.RunScriptFile(args[0], globalContext)
			if sess == nil {
				return runErr
			}
			w := sess.Workflow

			if !quiet {
				out := cmd.ErrOrStderr()
				if exportPath != "-" {
					out = cmd.OutOrStdout()
				}
				info := w.Info()
				fmt.Fprintln(out, titleStyle.Render(info.WorkflowName)+" "+mutedStyle.Render("on "+w.DatasetName()))
				fmt.Fprintln(out, stepTable(info))
				if info.Message != "" {
					fmt.Fprintln(out, warnStyle.Render(info.Message))
				}
				if w.Complete() {
					fmt.Fprintln(out, successStyle.Render("complete"))
				}
				if r := w.Report(); r != "" {
					fmt.Fprintln(out, r)
				}
			}

			if exportPath != "" {
				code, err := w.ExportCode()
				if err != nil {
					return err
				}
				if exportPath == "-" {
					fmt.Fprint(cmd.OutOrStdout(), code)
				} else if err := os.WriteFile(exportPath, []byte(code), 0o644); err != nil {
					return fmt.Errorf("writing export: %w", err)
				}
			}

			if runErr != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), errorStyle.Render(fmt.Sprintf("stopped after %d of %d actions", sess.Applied, len(sess.Script.Actions))))
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&contextFile, "context-file", "", "global context YAML file")
	cmd.Flags().StringVar(&exportPath, "export", "", "write the analysis code to this file, - for stdout")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print the step table")
	return cmd
}
