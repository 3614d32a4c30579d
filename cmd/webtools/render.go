package main

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/neurodesk/webtools/pkg/template"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newRenderCmd(a *app) *cobra.Command {
	var (
		flags    string
		root     string
		varsFile string
		sets     []string
		output   string
	)
	cmd := &cobra.Command{
		Use:   "render [template]",
		Short: "Render a template to stdout or a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ev, err := a.evaluator()
			if err != nil {
				return err
			}
			dir, name, err := templatePath(root, args[0])
			if err != nil {
				return err
			}
			loader := a.loader(dir, ev)
			prog, err := loader.Load(name, flags)
			if err != nil {
				return err
			}

			env := ev.NewEnv(name)
			stop := env.SetContext(cmd.Context())
			defer stop()
			if varsFile != "" {
				vars, err := loadVars(varsFile)
				if err != nil {
					return err
				}
				for k, v := range vars {
					if err := env.Set(k, v); err != nil {
						return err
					}
				}
			}
			for _, kv := range sets {
				k, v, ok := strings.Cut(kv, "=")
				if !ok || k == "" {
					return fmt.Errorf("invalid --set %q, want name=value", kv)
				}
				if err := env.Set(k, v); err != nil {
					return err
				}
			}

			var buf bytes.Buffer
			if err := template.Render(cmd.Context(), prog, env, &buf, template.WithLoader(loader)); err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err := buf.WriteTo(cmd.OutOrStdout())
				return err
			}
			if err := atomic.WriteFile(output, &buf); err != nil {
				return fmt.Errorf("writing %s: %w", output, err)
			}
			a.log.Info("rendered", "file", args[0], "output", output)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&flags, "flags", template.DefaultFlags, "compile flags (p parse, x escape xml, u escape url, n suppress nil, e suppress errors)")
	f.StringVar(&root, "root", "", "template root for includes (default is the template's directory)")
	f.StringVar(&varsFile, "vars", "", "YAML file of variables to bind")
	f.StringArrayVar(&sets, "set", nil, "bind a string variable as name=value (repeatable)")
	f.StringVarP(&output, "output", "o", "", "write output to a file instead of stdout")
	return cmd
}

func loadVars(path string) (map[string]any, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading vars: %w", err)
	}
	vars := map[string]any{}
	if err := yaml.Unmarshal(b, &vars); err != nil {
		return nil, fmt.Errorf("decoding vars file %s: %w", path, err)
	}
	return vars, nil
}
