package main

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/neurodesk/webtools/pkg/is"
	wstarlark "github.com/neurodesk/webtools/pkg/starlark"
	"github.com/neurodesk/webtools/pkg/template"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app holds state shared by the subcommands of one invocation.
type app struct {
	cfgFile string
	v       *viper.Viper
	log     *slog.Logger
	db      *sql.DB
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New(), log: slog.Default()}

	root := &cobra.Command{
		Use:           "webtools",
		Short:         "Compile and render server-side templates",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initConfig(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.db != nil {
				return a.db.Close()
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default is .webtools.yaml)")
	pf.BoolP("verbose", "v", false, "enable debug logging")
	pf.String("prefix", template.DefaultPrefix, "directive element prefix")
	pf.String("db", "", "SQLite data source exposed to templates as db")
	for _, name := range []string{"verbose", "prefix", "db"} {
		_ = a.v.BindPFlag(name, pf.Lookup(name))
	}

	root.AddCommand(newRenderCmd(a), newDumpCmd(a), newCheckCmd(a), newServeCmd(a))
	return root
}

// initConfig reads the config file and WEBTOOLS_* environment variables.
// Flags given on the command line take precedence.
func (a *app) initConfig(cmd *cobra.Command) error {
	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		a.v.AddConfigPath(".")
		a.v.SetConfigType("yaml")
		a.v.SetConfigName(".webtools")
	}
	a.v.SetEnvPrefix("WEBTOOLS")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	a.v.AutomaticEnv()

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if a.cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("reading config: %w", err)
		}
	}

	level := slog.LevelInfo
	if a.v.GetBool("verbose") {
		level = slog.LevelDebug
	}
	a.log = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	if used := a.v.ConfigFileUsed(); used != "" {
		a.log.Debug("using config file", "file", used)
	}
	return nil
}

// evaluator returns a Starlark evaluator with the db module bound when a
// data source is configured.
func (a *app) evaluator() (*wstarlark.Evaluator, error) {
	ev := wstarlark.NewEvaluatorWithLogger(a.log)
	dsn := a.v.GetString("db")
	if dsn == "" {
		return ev, nil
	}
	if a.db == nil {
		db, err := is.Open(dsn)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, fmt.Errorf("opening database: %w", err)
		}
		a.db = db
	}
	ev.SetGlobalStarlark("db", is.New(a.db).Starlark())
	return ev, nil
}

func (a *app) loader(root string, c template.Compiler) *template.FileLoader {
	l := template.NewFileLoader(template.NewFSReader(root), c)
	l.Parser.Prefix = a.v.GetString("prefix")
	return l
}

// templatePath splits a file argument into the template root and the
// template's path below it. An empty root means the file's directory.
func templatePath(root, file string) (string, string, error) {
	if root == "" {
		root = filepath.Dir(file)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", "", err
	}
	absFile, err := filepath.Abs(file)
	if err != nil {
		return "", "", err
	}
	rel, err := filepath.Rel(absRoot, absFile)
	if err != nil {
		return "", "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", "", fmt.Errorf("%s is outside the template root %s", file, root)
	}
	return absRoot, "/" + filepath.ToSlash(rel), nil
}
