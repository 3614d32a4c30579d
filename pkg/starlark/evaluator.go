package starlark

import (
	"context"
	"fmt"
	"log/slog"
	"maps"

	"github.com/neurodesk/webtools/pkg/template"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

const contextKey = "context"

// Evaluator compiles template expressions as Starlark expressions. It
// holds the builtins and host globals every render starts from; it is
// safe for concurrent use once configured.
type Evaluator struct {
	opts     *syntax.FileOptions
	builtins starlark.StringDict
	globals  starlark.StringDict
	log      *slog.Logger
}

// NewEvaluator creates a new Starlark evaluator
func NewEvaluator() *Evaluator {
	return NewEvaluatorWithLogger(slog.Default())
}

// NewEvaluatorWithLogger creates an evaluator whose print builtin writes
// to log.
func NewEvaluatorWithLogger(log *slog.Logger) *Evaluator {
	return &Evaluator{
		opts:     &syntax.FileOptions{Set: true, While: true, Recursion: true},
		builtins: CreateBuiltins(log),
		globals:  make(starlark.StringDict),
		log:      log,
	}
}

// SetGlobal converts a Go value and makes it visible to every render.
// The value is frozen; renders cannot mutate it. Globals must be set
// before the evaluator is used concurrently.
func (e *Evaluator) SetGlobal(name string, value any) error {
	v, err := ToStarlark(value)
	if err != nil {
		return fmt.Errorf("global %q: %w", name, err)
	}
	v.Freeze()
	e.globals[name] = v
	return nil
}

// SetGlobalStarlark sets a global variable using a native Starlark value.
// The value is frozen.
func (e *Evaluator) SetGlobalStarlark(name string, value starlark.Value) {
	value.Freeze()
	e.globals[name] = value
}

// expr is a syntax-checked expression. It keeps the source rather than
// the resolved tree because resolution annotates the tree in place, and
// programs are shared between concurrent renders.
type expr struct{ src string }

func (x expr) Source() string { return x.src }

// Compile implements template.Compiler.
func (e *Evaluator) Compile(src string) (template.Expr, error) {
	if _, err := e.opts.ParseExpr("<expr>", src, 0); err != nil {
		return nil, err
	}
	return expr{src: src}, nil
}

// NewEnv returns the evaluation context for one render. Bindings made
// during the render, including those made by included templates, stay in
// this Env.
func (e *Evaluator) NewEnv(name string) *Env {
	vars := make(starlark.StringDict, len(e.builtins)+len(e.globals))
	maps.Copy(vars, e.builtins)
	maps.Copy(vars, e.globals)
	thread := &starlark.Thread{
		Name: name,
		Print: func(_ *starlark.Thread, msg string) {
			e.log.Info("template print", "template", name, "msg", msg)
		},
	}
	return &Env{opts: e.opts, thread: thread, vars: vars}
}

// Env implements template.Env on a Starlark thread and a per-render
// variable map.
type Env struct {
	opts   *syntax.FileOptions
	thread *starlark.Thread
	vars   starlark.StringDict
}

var _ template.Env = (*Env)(nil)

// SetContext attaches ctx to the thread so builtins can honor
// cancellation, and cancels running Starlark code when ctx is done. The
// returned stop func detaches the cancellation; call it when the render
// ends.
func (v *Env) SetContext(ctx context.Context) (stop func() bool) {
	v.thread.SetLocal(contextKey, ctx)
	return context.AfterFunc(ctx, func() {
		v.thread.Cancel(context.Cause(ctx).Error())
	})
}

// Context returns the context attached to thread, or context.Background.
func Context(thread *starlark.Thread) context.Context {
	if ctx, ok := thread.Local(contextKey).(context.Context); ok {
		return ctx
	}
	return context.Background()
}

// Set binds a Go value, converting it first.
func (v *Env) Set(name string, value any) error {
	sv, err := ToStarlark(value)
	if err != nil {
		return fmt.Errorf("binding %q: %w", name, err)
	}
	v.vars[name] = sv
	return nil
}

// Get returns the current binding of name.
func (v *Env) Get(name string) (starlark.Value, bool) {
	val, ok := v.vars[name]
	return val, ok
}

func (v *Env) Eval(e template.Expr, n int) ([]template.Value, error) {
	val, err := starlark.EvalOptions(v.opts, v.thread, "<expr>", e.Source(), v.vars)
	if err != nil {
		return nil, err
	}
	return spread(val, n, n > 1), nil
}

func (v *Env) Call(fn template.Value, args []template.Value, n int) ([]template.Value, error) {
	callable, ok := toStarlark(fn).(starlark.Callable)
	if !ok {
		return nil, fmt.Errorf("iterator is not callable: %s", toStarlark(fn).Type())
	}
	targs := make(starlark.Tuple, len(args))
	for i, a := range args {
		targs[i] = toStarlark(a)
	}
	val, err := starlark.Call(v.thread, callable, targs, nil)
	if err != nil {
		return nil, err
	}
	return spread(val, n, true), nil
}

func (v *Env) Bind(name string, val template.Value) {
	v.vars[name] = toStarlark(val)
}

// spread turns a result into n values. With multi set, a tuple result
// supplies one value per element, like a multiple return.
func spread(val starlark.Value, n int, multi bool) []template.Value {
	out := make([]template.Value, n)
	if n == 0 {
		return out
	}
	if t, ok := val.(starlark.Tuple); ok && multi {
		for i := 0; i < n && i < len(t); i++ {
			out[i] = FromStarlark(t[i])
		}
		return out
	}
	out[0] = FromStarlark(val)
	return out
}
