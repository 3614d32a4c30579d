package server

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/neurodesk/webtools/pkg/cache"
	wstarlark "github.com/neurodesk/webtools/pkg/starlark"
	"github.com/neurodesk/webtools/pkg/template"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, files template.MemoryReader, logs *bytes.Buffer) *Server {
	t.Helper()
	ev := wstarlark.NewEvaluator()
	require.NoError(t, ev.SetGlobal("site", "webtools"))
	log := slog.New(slog.NewTextHandler(logs, nil))
	programs := cache.New(template.NewFileLoader(files, ev), log)
	return New(Config{}, programs, ev, log)
}

func TestServeRendersRequest(t *testing.T) {
	var logs bytes.Buffer
	srv := newTestServer(t, template.MemoryReader{
		"/index.html":  `<P:include filename="'header.inc'" flags="p"/>${request.method} ${request.args["q"]} ${site}`,
		"/header.inc":  `<h1>${request.path}</h1>`,
		"/hello.html":  `hi ${request.headers["X-Name"]} from ${request.remote_addr}`,
		"/broken.html": `${1 // 0}`,
	}, &logs)

	tests := []struct {
		name   string
		req    *http.Request
		status int
		body   string
	}{
		{"index", httptest.NewRequest(http.MethodGet, "/?q=a%3Cb", nil), http.StatusOK, "<h1>/</h1>GET a&lt;b webtools"},
		{"headers", func() *http.Request {
			r := httptest.NewRequest(http.MethodGet, "/hello.html", nil)
			r.Header.Set("X-Name", "ada")
			r.RemoteAddr = "10.0.0.1:1234"
			return r
		}(), http.StatusOK, "hi ada from 10.0.0.1:1234"},
		{"post form", func() *http.Request {
			form := url.Values{"q": {"posted"}}
			r := httptest.NewRequest(http.MethodPost, "/index.html", strings.NewReader(form.Encode()))
			r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			return r
		}(), http.StatusOK, "<h1>/index.html</h1>POST posted webtools"},
		{"missing", httptest.NewRequest(http.MethodGet, "/nope.html", nil), http.StatusNotFound, ""},
		{"not a template", httptest.NewRequest(http.MethodGet, "/header.inc", nil), http.StatusNotFound, ""},
		{"method", httptest.NewRequest(http.MethodDelete, "/", nil), http.StatusMethodNotAllowed, ""},
		{"render error", httptest.NewRequest(http.MethodGet, "/broken.html", nil), http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, tt.req)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusMethodNotAllowed {
				assert.Equal(t, "GET, HEAD, POST", rec.Header().Get("Allow"))
			}
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
				assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
			}
		})
	}
	assert.Contains(t, logs.String(), "render failed")
	assert.Contains(t, logs.String(), "path=/broken.html")
}

func TestServeHead(t *testing.T) {
	var logs bytes.Buffer
	srv := newTestServer(t, template.MemoryReader{"/index.html": "body"}, &logs)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestResolve(t *testing.T) {
	srv := New(Config{Extensions: []string{".html"}}, nil, nil, nil)
	for in, want := range map[string]string{
		"/":               "/index.html",
		"/a/":             "/a/index.html",
		"/a/../b.html":    "/b.html",
		"/../../etc.html": "/etc.html",
	} {
		got, ok := srv.resolve(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := srv.resolve("/style.css")
	assert.False(t, ok)
}

func TestServeETag(t *testing.T) {
	var logs bytes.Buffer
	srv := newTestServer(t, template.MemoryReader{"/index.html": "stable ${site}"}, &logs)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("If-None-Match", `"other"`)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name string
		mod  func(*Config)
	}{
		{"flag", func(c *Config) { c.Flags = "pz" }},
		{"index", func(c *Config) { c.Index = "a/b.html" }},
		{"empty index", func(c *Config) { c.Index = "" }},
		{"extension", func(c *Config) { c.Extensions = []string{"html"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mod(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestServeResponseControl(t *testing.T) {
	var logs bytes.Buffer
	srv := newTestServer(t, template.MemoryReader{
		"/gone.html":   `$[n]{response.set_status(404)}no such page`,
		"/move.html":   `$[n]{response.redirect("/new.html?a=1", 301)}`,
		"/json.html":   `$[n]{response.set_content_type("application/json")}{"name": "${escape_js(request.args["n"])}"}`,
		"/cookie.html": `$[n]{response.add_header("Set-Cookie", "a=1")}$[n]{response.add_header("Set-Cookie", "b=2")}ok`,
		"/empty.html":  `$[n]{response.set_status(204)}ignored`,
		"/fail.html":   `$[n]{response.add_header("X-Trace", "t1", True)}$[n]{response.add_header("X-Ok", "no")}${1 // 0}`,
		"/bad.html":    `$[n]{response.set_status(700)}`,
	}, &logs)

	get := func(target string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		return rec
	}

	rec := get("/gone.html")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "no such page", rec.Body.String())
	assert.Empty(t, rec.Header().Get("ETag"))

	rec = get("/move.html")
	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "/new.html?a=1", rec.Header().Get("Location"))

	rec = get(`/json.html?n=` + url.QueryEscape(`a"b`))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, `{"name": "a\&quot;b"}`, rec.Body.String())

	rec = get("/cookie.html")
	assert.Equal(t, []string{"a=1", "b=2"}, rec.Header().Values("Set-Cookie"))

	rec = get("/empty.html")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = get("/fail.html")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "t1", rec.Header().Get("X-Trace"))
	assert.Empty(t, rec.Header().Get("X-Ok"))

	rec = get("/bad.html")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, logs.String(), "invalid status")
}

func TestResponseStateIsPerRequest(t *testing.T) {
	var logs bytes.Buffer
	srv := newTestServer(t, template.MemoryReader{
		"/index.html": `<P:if cond="request.args.get('miss')">$[n]{response.set_status(404)}</P:if>page`,
	}, &logs)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?miss=1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
