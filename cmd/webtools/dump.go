package main

import (
	"github.com/neurodesk/webtools/pkg/template"
	"github.com/spf13/cobra"
)

func newDumpCmd(a *app) *cobra.Command {
	var flags string
	cmd := &cobra.Command{
		Use:   "dump [template]",
		Short: "Print the compiled program of a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ev, err := a.evaluator()
			if err != nil {
				return err
			}
			dir, name, err := templatePath("", args[0])
			if err != nil {
				return err
			}
			prog, err := a.loader(dir, ev).Load(name, flags)
			if err != nil {
				return err
			}
			return prog.Dump(cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&flags, "flags", template.DefaultFlags, "compile flags")
	return cmd
}
