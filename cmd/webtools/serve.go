package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/neurodesk/webtools/pkg/cache"
	"github.com/neurodesk/webtools/pkg/server"
	"github.com/neurodesk/webtools/pkg/template"
	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve templates over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ln, err := net.Listen("tcp", a.v.GetString("addr"))
			if err != nil {
				return fmt.Errorf("listening: %w", err)
			}
			return a.serve(ctx, ln)
		},
	}
	f := cmd.Flags()
	f.String("addr", "localhost:8080", "listen address")
	f.String("root", ".", "template directory")
	f.String("flags", template.DefaultFlags, "compile flags for served templates")
	f.String("index", "index.html", "template served for directory paths")
	f.StringSlice("ext", []string{".html", ".htm", ".xml"}, "file extensions rendered as templates")
	f.Bool("watch", true, "recompile templates when their files change")
	for _, name := range []string{"addr", "root", "flags", "index", "ext", "watch"} {
		_ = a.v.BindPFlag(name, f.Lookup(name))
	}
	return cmd
}

// serve runs the template server on ln until ctx is done.
func (a *app) serve(ctx context.Context, ln net.Listener) error {
	root, err := filepath.Abs(a.v.GetString("root"))
	if err != nil {
		return err
	}
	ev, err := a.evaluator()
	if err != nil {
		return err
	}

	programs := cache.New(a.loader(root, ev), a.log)
	if a.v.GetBool("watch") {
		go func() {
			if err := programs.Watch(ctx, root); err != nil {
				a.log.Error("template watcher stopped", "error", err)
			}
		}()
	}

	cfg := server.DefaultConfig()
	if f := a.v.GetString("flags"); f != "" {
		cfg.Flags = f
	}
	if idx := a.v.GetString("index"); idx != "" {
		cfg.Index = idx
	}
	if ext := a.v.GetStringSlice("ext"); len(ext) > 0 {
		cfg.Extensions = ext
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}
	handler := server.New(cfg, programs, ev, a.log)

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	a.log.Info("serving templates", "addr", ln.Addr().String(), "root", root)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
