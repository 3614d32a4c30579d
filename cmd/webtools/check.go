package main

import (
	"fmt"

	"github.com/neurodesk/webtools/pkg/template"
	"github.com/spf13/cobra"
)

func newCheckCmd(a *app) *cobra.Command {
	var flags string
	cmd := &cobra.Command{
		Use:   "check [templates...]",
		Short: "Compile templates and report errors",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ev, err := a.evaluator()
			if err != nil {
				return err
			}
			failed := 0
			for _, file := range args {
				dir, name, err := templatePath("", file)
				if err == nil {
					_, err = a.loader(dir, ev).Load(name, flags)
				}
				if err != nil {
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: %v\n", file, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ok   %s\n", file)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d templates failed to compile", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&flags, "flags", template.DefaultFlags, "compile flags")
	return cmd
}
