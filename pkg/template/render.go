package template

import (
	"bytes"
	"context"
	"fmt"
	"io"
)

// MaxDepth bounds the include chain. The top-level template counts as
// depth one.
const MaxDepth = 8

// Loader compiles the template at path with the given flags. Include
// directives resolve through a Loader.
type Loader interface {
	Load(path, flags string) (*Program, error)
}

// RenderOption configures a single render.
type RenderOption func(*renderer)

// WithLoader enables include directives.
func WithLoader(l Loader) RenderOption {
	return func(r *renderer) { r.loader = l }
}

type cacheKey struct {
	path  string
	flags string
}

type renderer struct {
	ctx      context.Context
	env      Env
	w        io.Writer
	loader   Loader
	programs map[cacheKey]*Program
	depth    int
}

// loopState is the retained iteration triple of an active for loop.
type loopState struct {
	fn, state, control Value
}

// Render executes p against env and writes the output to w. Output
// already written when an error occurs is not retracted.
func Render(ctx context.Context, p *Program, env Env, w io.Writer, opts ...RenderOption) error {
	r := &renderer{
		ctx:      ctx,
		env:      env,
		w:        w,
		programs: make(map[cacheKey]*Program),
	}
	for _, o := range opts {
		o(r)
	}
	return r.render(p)
}

// RenderString renders p into a string.
func RenderString(ctx context.Context, p *Program, env Env, opts ...RenderOption) (string, error) {
	var buf bytes.Buffer
	if err := Render(ctx, p, env, &buf, opts...); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (r *renderer) fail(p *Program, err error, format string, args ...any) error {
	return &RuntimeError{Name: p.name, Msg: fmt.Sprintf(format, args...), Err: err}
}

func (r *renderer) eval(p *Program, e Expr, n int) ([]Value, error) {
	vals, err := r.env.Eval(e, n)
	if err != nil {
		return nil, r.fail(p, err, "evaluating %q", e.Source())
	}
	return pad(vals, n), nil
}

func (r *renderer) render(p *Program) error {
	r.depth++
	defer func() { r.depth-- }()
	if r.depth > MaxDepth {
		return r.fail(p, nil, "template depth exceeds %d", MaxDepth)
	}

	var loops []*loopState
	pc := 0
	for pc < len(p.nodes) {
		if err := r.ctx.Err(); err != nil {
			return err
		}
		n := &p.nodes[pc]
		switch n.Op {
		case OpRaw:
			if _, err := r.w.Write(p.Raw(*n)); err != nil {
				return fmt.Errorf("writing output: %w", err)
			}
			pc++

		case OpJump:
			pc = n.Target

		case OpIf:
			vals, err := r.eval(p, n.Expr, 1)
			if err != nil {
				return err
			}
			if vals[0] != nil && vals[0].Truth() {
				pc++
			} else {
				pc = n.Target
			}

		case OpForInit:
			vals, err := r.eval(p, n.Expr, 3)
			if err != nil {
				return err
			}
			loops = append(loops, &loopState{fn: vals[0], state: vals[1], control: vals[2]})
			pc++

		case OpForNext:
			if len(loops) == 0 {
				return r.fail(p, nil, "for loop without iteration state")
			}
			l := loops[len(loops)-1]
			vals, err := r.env.Call(l.fn, []Value{l.state, l.control}, len(n.Names))
			if err != nil {
				return r.fail(p, err, "calling iterator")
			}
			vals = pad(vals, len(n.Names))
			if vals[0] == nil {
				loops = loops[:len(loops)-1]
				pc = n.Target
				break
			}
			for i, name := range n.Names {
				r.env.Bind(name, vals[i])
			}
			l.control = vals[0]
			pc++

		case OpSet:
			vals, err := r.eval(p, n.Expr, len(n.Names))
			if err != nil {
				return err
			}
			for i, name := range n.Names {
				r.env.Bind(name, vals[i])
			}
			pc++

		case OpInclude:
			if err := r.include(p, n); err != nil {
				return err
			}
			pc++

		case OpSub:
			if err := r.substitute(p, n); err != nil {
				return err
			}
			pc++

		default:
			return r.fail(p, nil, "invalid node %d (%s)", pc, n.Op)
		}
	}
	return nil
}

func (r *renderer) include(p *Program, n *Node) error {
	vals, err := r.eval(p, n.Expr, 1)
	if err != nil {
		return err
	}
	path, ok := "", false
	if vals[0] != nil {
		path, ok = vals[0].Text()
	}
	if !ok {
		return r.fail(p, nil, "include filename is (%s)", typeName(vals[0]))
	}
	flags := DefaultFlags
	if n.IncludeFlags != nil {
		flags = *n.IncludeFlags
	}
	key := cacheKey{path: path, flags: flags}
	sub, ok := r.programs[key]
	if !ok {
		if r.loader == nil {
			return r.fail(p, nil, "include of %q without a loader", path)
		}
		sub, err = r.loader.Load(path, flags)
		if err != nil {
			return r.fail(p, err, "including %q", path)
		}
		r.programs[key] = sub
	}
	return r.render(sub)
}

func (r *renderer) substitute(p *Program, n *Node) error {
	var s string
	vals, err := r.env.Eval(n.Expr, 1)
	switch {
	case err != nil:
		if !n.Flags.Has(FlagSuppressErr) {
			return r.fail(p, err, "evaluating %q", n.Expr.Source())
		}
	default:
		var v Value
		if len(vals) > 0 {
			v = vals[0]
		}
		s = r.text(v, n.Flags)
	}
	if n.Flags.Has(FlagEscapeURL) {
		s = EscapeURL(s)
	}
	if n.Flags.Has(FlagEscapeXML) {
		s = EscapeXML(s)
	}
	if _, err := io.WriteString(r.w, s); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}

func (r *renderer) text(v Value, flags Flags) string {
	if v == nil {
		if flags.Has(FlagSuppressNil) {
			return ""
		}
		return "(" + typeName(v) + ")"
	}
	if s, ok := v.Text(); ok {
		return s
	}
	return "(" + v.Type() + ")"
}
