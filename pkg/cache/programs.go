// Package cache keeps compiled template programs across renders.
package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/neurodesk/webtools/pkg/template"
)

type key struct {
	path  string
	flags string
}

// Programs caches compiled programs by (path, flags). It implements
// template.Loader, so it can back the include directive directly.
type Programs struct {
	loader template.Loader
	log    *slog.Logger

	mu      sync.RWMutex
	entries map[key]*template.Program
}

var _ template.Loader = (*Programs)(nil)

// New returns a cache in front of loader.
func New(loader template.Loader, log *slog.Logger) *Programs {
	if log == nil {
		log = slog.Default()
	}
	return &Programs{
		loader:  loader,
		log:     log,
		entries: make(map[key]*template.Program),
	}
}

func normalize(p string) string {
	return path.Clean("/" + filepath.ToSlash(p))
}

// Load returns the cached program or compiles it. Concurrent misses for
// the same key may compile twice; the first stored program wins.
func (c *Programs) Load(p, flags string) (*template.Program, error) {
	k := key{path: normalize(p), flags: flags}
	c.mu.RLock()
	prog, ok := c.entries[k]
	c.mu.RUnlock()
	if ok {
		return prog, nil
	}

	prog, err := c.loader.Load(k.path, flags)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[k]; ok {
		return existing, nil
	}
	c.entries[k] = prog
	c.log.Debug("compiled template", "path", k.path, "flags", flags, "nodes", prog.Len())
	return prog, nil
}

// Invalidate drops every cached program compiled from path.
func (c *Programs) Invalidate(p string) int {
	p = normalize(p)
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.entries {
		if k.path == p {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Reset drops all cached programs.
func (c *Programs) Reset() {
	c.mu.Lock()
	c.entries = make(map[key]*template.Program)
	c.mu.Unlock()
}

// Len returns the number of cached programs.
func (c *Programs) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Watch invalidates entries when files below root change. Template paths
// are taken relative to root. It blocks until ctx is done.
func (c *Programs) Watch(ctx context.Context, root string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()

	if err := addTree(w, root); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			c.handle(w, root, ev)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			c.log.Warn("template watcher error", "error", err)
		}
	}
}

func (c *Programs) handle(w *fsnotify.Watcher, root string, ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			if err := addTree(w, ev.Name); err != nil {
				c.log.Warn("watching new directory", "dir", ev.Name, "error", err)
			}
			return
		}
	}
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Create) {
		return
	}
	rel, err := filepath.Rel(root, ev.Name)
	if err != nil {
		return
	}
	if n := c.Invalidate(rel); n > 0 {
		c.log.Info("template changed", "path", normalize(rel), "dropped", n)
	}
}

func addTree(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.Add(p); err != nil {
			return fmt.Errorf("watching %s: %w", p, err)
		}
		return nil
	})
}
