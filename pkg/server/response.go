package server

import (
	"fmt"
	"net/http"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// response collects what a template asks of the HTTP response. It is
// applied after the render, once the output is complete.
type response struct {
	status      int
	contentType string
	header      http.Header
	// errHeader is also sent when the render fails.
	errHeader http.Header
}

func newResponse() *response {
	return &response{header: http.Header{}, errHeader: http.Header{}}
}

// module returns the per-request "response" module.
func (rs *response) module() *starlarkstruct.Module {
	return &starlarkstruct.Module{
		Name: "response",
		Members: starlark.StringDict{
			"set_status":       starlark.NewBuiltin("response.set_status", rs.setStatus),
			"set_content_type": starlark.NewBuiltin("response.set_content_type", rs.setContentType),
			"add_header":       starlark.NewBuiltin("response.add_header", rs.addHeader),
			"redirect":         starlark.NewBuiltin("response.redirect", rs.redirect),
		},
	}
}

func (rs *response) setStatus(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var status int
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &status); err != nil {
		return nil, err
	}
	if status < 100 || status > 599 {
		return nil, fmt.Errorf("%s: invalid status (expected [100,599], got %d)", fn.Name(), status)
	}
	rs.status = status
	return starlark.None, nil
}

func (rs *response) setContentType(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var ct string
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &ct); err != nil {
		return nil, err
	}
	rs.contentType = ct
	return starlark.None, nil
}

// add_header(name, value, on_error=False) adds a header value. With
// on_error set the header is sent with error responses too.
func (rs *response) addHeader(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name, value string
	var onError bool
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &name, "value", &value, "on_error?", &onError); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("%s: empty header name", fn.Name())
	}
	if onError {
		rs.errHeader.Add(name, value)
	} else {
		rs.header.Add(name, value)
	}
	return starlark.None, nil
}

// redirect(location, status=302) sets a redirect status and Location.
func (rs *response) redirect(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var location string
	status := http.StatusFound
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "location", &location, "status?", &status); err != nil {
		return nil, err
	}
	if status < 300 || status > 399 {
		return nil, fmt.Errorf("%s: invalid redirect status %d", fn.Name(), status)
	}
	rs.status = status
	rs.header.Set("Location", location)
	return starlark.None, nil
}

// apply copies the collected headers to h. Error headers always apply.
func (rs *response) apply(h http.Header, ok bool) {
	copyHeader(h, rs.errHeader)
	if ok {
		copyHeader(h, rs.header)
	}
}

func copyHeader(dst, src http.Header) {
	for k, vs := range src {
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}

// bodyAllowed reports whether status permits a response body.
func bodyAllowed(status int) bool {
	return status >= 200 && status != http.StatusNoContent && status != http.StatusNotModified
}
