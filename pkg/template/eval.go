package template

// Expr is a compiled expression handle produced by a Compiler.
type Expr interface {
	Source() string
}

// Compiler turns expression source into a handle. Syntax errors are
// reported here, at template compile time.
type Compiler interface {
	Compile(src string) (Expr, error)
}

// Value is a value produced by the host expression language. A nil Value
// means the result is absent.
type Value interface {
	// Type names the value's type; it is used in placeholders like "(list)".
	Type() string
	Truth() bool
	// Text returns the textual form of strings and numbers. ok is false
	// for values that are not rendered verbatim.
	Text() (s string, ok bool)
}

// Env is the evaluation context of a single render. It is not shared
// between concurrent renders.
type Env interface {
	// Eval evaluates e for n results. Missing results are nil.
	Eval(e Expr, n int) ([]Value, error)
	// Call invokes fn with args for n results.
	Call(fn Value, args []Value, n int) ([]Value, error)
	// Bind makes name visible to subsequently evaluated expressions.
	Bind(name string, v Value)
}

// pad returns vals resized to exactly n entries.
func pad(vals []Value, n int) []Value {
	if len(vals) == n {
		return vals
	}
	out := make([]Value, n)
	copy(out, vals)
	return out
}

func typeName(v Value) string {
	if v == nil {
		return "NoneType"
	}
	return v.Type()
}
