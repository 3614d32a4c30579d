// Package server renders templates from a directory in response to HTTP
// requests.
package server

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"net/http"
	"path"
	"slices"
	"strings"
	"time"

	wstarlark "github.com/neurodesk/webtools/pkg/starlark"
	"github.com/neurodesk/webtools/pkg/template"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

type Config struct {
	// Flags are the compile flags for requested templates.
	Flags string
	// Index is served for paths ending in a slash.
	Index string
	// Extensions lists the file suffixes rendered as templates. Other
	// paths are not found.
	Extensions []string
	// ContentType is sent with every rendered response.
	ContentType string
}

// DefaultConfig returns the settings used for zero Config fields.
func DefaultConfig() Config {
	return Config{
		Flags:       template.DefaultFlags,
		Index:       "index.html",
		Extensions:  []string{".html", ".htm", ".xml"},
		ContentType: "text/html; charset=utf-8",
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	for _, r := range c.Flags {
		if !strings.ContainsRune("pxune", r) {
			return fmt.Errorf("flags: unknown flag %q", r)
		}
	}
	if c.Index == "" || strings.ContainsRune(c.Index, '/') {
		return fmt.Errorf("index must be a file name, got %q", c.Index)
	}
	for i, ext := range c.Extensions {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			return fmt.Errorf("extensions[%d]: %q must start with a dot", i, ext)
		}
	}
	return nil
}

// Server is an http.Handler. Each request gets its own evaluation
// environment; compiled programs come from the shared loader.
type Server struct {
	cfg    Config
	loader template.Loader
	eval   *wstarlark.Evaluator
	log    *slog.Logger
}

// New returns a server loading templates through loader, usually a
// *cache.Programs, and evaluating them with eval.
func New(cfg Config, loader template.Loader, eval *wstarlark.Evaluator, log *slog.Logger) *Server {
	def := DefaultConfig()
	if cfg.Flags == "" {
		cfg.Flags = def.Flags
	}
	if cfg.Index == "" {
		cfg.Index = def.Index
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = def.Extensions
	}
	if cfg.ContentType == "" {
		cfg.ContentType = def.ContentType
	}
	if log == nil {
		log = slog.Default()
	}
	return &Server{cfg: cfg, loader: loader, eval: eval, log: log}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if r.Method != http.MethodGet && r.Method != http.MethodHead && r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, HEAD, POST")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name, ok := s.resolve(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	prog, err := s.loader.Load(name, s.cfg.Flags)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			http.NotFound(w, r)
			return
		}
		s.fail(w, r, name, err)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	env := s.eval.NewEnv(name)
	stop := env.SetContext(r.Context())
	defer stop()
	bindRequest(env, r)
	resp := newResponse()
	env.Bind("response", wstarlark.FromStarlark(resp.module()))

	var buf bytes.Buffer
	if err := template.Render(r.Context(), prog, env, &buf, template.WithLoader(s.loader)); err != nil {
		resp.apply(w.Header(), false)
		s.fail(w, r, name, err)
		return
	}

	status := http.StatusOK
	if resp.status != 0 {
		status = resp.status
	}
	contentType := s.cfg.ContentType
	if resp.contentType != "" {
		contentType = resp.contentType
	}
	w.Header().Set("Content-Type", contentType)
	resp.apply(w.Header(), true)
	if status == http.StatusOK {
		etag := etagOf(buf.Bytes())
		w.Header().Set("ETag", etag)
		if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	size := buf.Len()
	w.WriteHeader(status)
	if r.Method != http.MethodHead && bodyAllowed(status) {
		if _, err := buf.WriteTo(w); err != nil {
			s.log.Warn("writing response", "path", name, "error", err)
		}
	}
	s.log.Info("rendered", "method", r.Method, "path", name, "status", status, "bytes", size, "duration", time.Since(start))
}

// resolve maps a URL path to a template path.
func (s *Server) resolve(urlPath string) (string, bool) {
	p := path.Clean("/" + urlPath)
	if strings.HasSuffix(urlPath, "/") {
		p = path.Join(p, s.cfg.Index)
	}
	for _, ext := range s.cfg.Extensions {
		if strings.HasSuffix(p, ext) {
			return p, true
		}
	}
	return "", false
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, name string, err error) {
	s.log.Error("render failed", "method", r.Method, "path", name, "error", err)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

// bindRequest exposes r as the struct "request". args holds the first
// value of each query or form parameter; headers use canonical names.
func bindRequest(env *wstarlark.Env, r *http.Request) {
	args := starlark.NewDict(len(r.Form))
	for _, k := range slices.Sorted(maps.Keys(r.Form)) {
		_ = args.SetKey(starlark.String(k), starlark.String(r.Form.Get(k)))
	}
	headers := starlark.NewDict(len(r.Header))
	for _, k := range slices.Sorted(maps.Keys(r.Header)) {
		_ = headers.SetKey(starlark.String(k), starlark.String(r.Header.Get(k)))
	}
	req := starlarkstruct.FromStringDict(starlark.String("request"), starlark.StringDict{
		"method":      starlark.String(r.Method),
		"path":        starlark.String(r.URL.Path),
		"args":        args,
		"headers":     headers,
		"remote_addr": starlark.String(r.RemoteAddr),
	})
	env.Bind("request", wstarlark.FromStarlark(req))
}

// etagOf is a strong validator over the rendered bytes.
func etagOf(b []byte) string {
	sum := sha256.Sum256(b)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}
