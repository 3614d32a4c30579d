package starlark

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/neurodesk/webtools/pkg/template"
	"go.starlark.net/starlark"
)

func TestToStarlark(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string value", "hello", `"hello"`},
		{"int value", 42, "42"},
		{"int64 value", int64(-7), "-7"},
		{"float value", 3.14, "3.14"},
		{"bool value true", true, "True"},
		{"nil value", nil, "None"},
		{"bytes value", []byte("b"), `"b"`},
		{"slice value", []string{"a", "b"}, `["a", "b"]`},
		{"map value", map[string]any{"z": 1, "a": []any{true}}, `{"a": [True], "z": 1}`},
		{"nil pointer", (*int)(nil), "None"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ToStarlark(tt.input)
			if err != nil {
				t.Fatalf("ToStarlark() error: %v", err)
			}
			if result.String() != tt.expected {
				t.Errorf("ToStarlark() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestToStarlarkRejectsUnsupported(t *testing.T) {
	if _, err := ToStarlark(map[int]string{1: "a"}); err == nil {
		t.Error("expected error for int-keyed map")
	}
	if _, err := ToStarlark(make(chan int)); err == nil {
		t.Error("expected error for channel")
	}
}

func TestToGo(t *testing.T) {
	dict := starlark.NewDict(2)
	_ = dict.SetKey(starlark.String("n"), starlark.MakeInt(1))
	_ = dict.SetKey(starlark.String("l"), starlark.NewList([]starlark.Value{starlark.Float(1.5), starlark.None}))

	got, err := ToGo(dict)
	if err != nil {
		t.Fatalf("ToGo() error: %v", err)
	}
	m, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("ToGo() = %T, want map", got)
	}
	if m["n"] != int64(1) {
		t.Errorf("n = %#v", m["n"])
	}
	l, ok := m["l"].([]any)
	if !ok || len(l) != 2 || l[0] != 1.5 || l[1] != nil {
		t.Errorf("l = %#v", m["l"])
	}
}

func TestValueText(t *testing.T) {
	tests := []struct {
		input starlark.Value
		text  string
		ok    bool
		typ   string
	}{
		{starlark.String("s"), "s", true, "string"},
		{starlark.MakeInt(3), "3", true, "int"},
		{starlark.Float(0.5), "0.5", true, "float"},
		{starlark.True, "", false, "bool"},
		{starlark.NewList(nil), "", false, "list"},
	}
	for _, tt := range tests {
		v := FromStarlark(tt.input)
		s, ok := v.Text()
		if s != tt.text || ok != tt.ok || v.Type() != tt.typ {
			t.Errorf("%v: Text() = %q, %v; Type() = %q", tt.input, s, ok, v.Type())
		}
	}
	if FromStarlark(starlark.None) != nil {
		t.Error("None should be absent")
	}
}

func TestCompileReportsSyntaxErrors(t *testing.T) {
	e := NewEvaluator()
	if _, err := e.Compile("1 +"); err == nil {
		t.Error("expected syntax error")
	}
	x, err := e.Compile("a, b")
	if err != nil {
		t.Fatalf("Compile error: %v", err)
	}
	if x.Source() != "a, b" {
		t.Errorf("Source() = %q", x.Source())
	}
}

func TestEvaluatorWithGlobals(t *testing.T) {
	eval := NewEvaluator()
	if err := eval.SetGlobal("test_var", "hello"); err != nil {
		t.Fatal(err)
	}

	env := eval.NewEnv("t")
	x, _ := eval.Compile("test_var + ' world'")
	vals, err := env.Eval(x, 1)
	if err != nil {
		t.Fatalf("Eval error: %v", err)
	}
	if s, _ := vals[0].Text(); s != "hello world" {
		t.Errorf("Expected 'hello world', got %q", s)
	}
}

func TestEvalSpreadsTuples(t *testing.T) {
	eval := NewEvaluator()
	env := eval.NewEnv("t")
	x, _ := eval.Compile("1, 2")

	vals, err := env.Eval(x, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(vals) != 3 || vals[2] != nil {
		t.Fatalf("vals = %v", vals)
	}
	if s, _ := vals[1].Text(); s != "2" {
		t.Errorf("vals[1] = %q", s)
	}

	vals, _ = env.Eval(x, 1)
	if vals[0].Type() != "tuple" {
		t.Errorf("single result should keep the tuple, got %s", vals[0].Type())
	}
}

func TestBindIsScopedToEnv(t *testing.T) {
	eval := NewEvaluator()
	a := eval.NewEnv("a")
	b := eval.NewEnv("b")
	a.Bind("x", FromStarlark(starlark.String("bound")))

	if v, ok := a.Get("x"); !ok || v != starlark.String("bound") {
		t.Errorf("a.x = %v, %v", v, ok)
	}
	if _, ok := b.Get("x"); ok {
		t.Error("binding leaked into another env")
	}
	a.Bind("x", nil)
	if v, _ := a.Get("x"); v != starlark.None {
		t.Errorf("nil binding = %v, want None", v)
	}
}

func TestCallIterator(t *testing.T) {
	eval := NewEvaluator()
	env := eval.NewEnv("t")
	x, _ := eval.Compile("ipairs(['a'])")
	triple, err := env.Eval(x, 3)
	if err != nil {
		t.Fatal(err)
	}

	vals, err := env.Call(triple[0], triple[1:], 2)
	if err != nil {
		t.Fatal(err)
	}
	if s, _ := vals[1].Text(); s != "a" {
		t.Errorf("first element = %q", s)
	}
	vals, err = env.Call(triple[0], []template.Value{triple[1], vals[0]}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if vals[0] != nil {
		t.Errorf("exhausted iterator returned %v", vals[0])
	}

	if _, err := env.Call(FromStarlark(starlark.MakeInt(1)), nil, 1); err == nil {
		t.Error("calling an int should fail")
	}
}

func TestBuiltins(t *testing.T) {
	eval := NewEvaluator()
	env := eval.NewEnv("t")
	tests := []struct {
		expr string
		want string
	}{
		{`escape_xml("<a & b>")`, "&lt;a &amp; b&gt;"},
		{`escape_uri("a b")`, "a%20b"},
		{`escape_js("it's\n")`, `it\'s\n`},
	}
	for _, tt := range tests {
		x, err := eval.Compile(tt.expr)
		if err != nil {
			t.Fatal(err)
		}
		vals, err := env.Eval(x, 1)
		if err != nil {
			t.Fatalf("%s: %v", tt.expr, err)
		}
		if s, _ := vals[0].Text(); s != tt.want {
			t.Errorf("%s = %q, want %q", tt.expr, s, tt.want)
		}
	}

	x, _ := eval.Compile("irange(1, 2, 0)")
	if _, err := env.Eval(x, 3); err == nil {
		t.Error("irange with zero step should fail")
	}
}

func TestSetContext(t *testing.T) {
	eval := NewEvaluator()
	env := eval.NewEnv("t")
	if Context(env.thread) != context.Background() {
		t.Error("default context should be Background")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := env.SetContext(ctx)
	defer stop()
	if Context(env.thread) != ctx {
		t.Error("context not attached")
	}
}

func TestSetContextCancelsThread(t *testing.T) {
	eval := NewEvaluator()
	x, _ := eval.Compile("1 + 1")

	env := eval.NewEnv("t")
	ctx, cancel := context.WithCancel(context.Background())
	env.SetContext(ctx)
	cancel()
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := env.Eval(x, 1); err != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("evaluation still runs after the context was canceled")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSetContextStopDetaches(t *testing.T) {
	eval := NewEvaluator()
	x, _ := eval.Compile("1 + 1")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	base := runtime.NumGoroutine()
	for range 50 {
		env := eval.NewEnv("t")
		stop := env.SetContext(ctx)
		if _, err := env.Eval(x, 1); err != nil {
			t.Fatalf("Eval error: %v", err)
		}
		if !stop() {
			t.Fatal("stop should detach a pending cancellation")
		}
	}
	if n := runtime.NumGoroutine(); n > base+5 {
		t.Errorf("goroutines grew from %d to %d across renders", base, n)
	}

	env := eval.NewEnv("t")
	stop := env.SetContext(ctx)
	stop()
	cancel()
	time.Sleep(10 * time.Millisecond)
	if _, err := env.Eval(x, 1); err != nil {
		t.Errorf("detached env was canceled: %v", err)
	}
}

func TestGlobalsAreFrozen(t *testing.T) {
	eval := NewEvaluator()
	if err := eval.SetGlobal("seen", []any{}); err != nil {
		t.Fatal(err)
	}
	appendSeen, _ := eval.Compile("seen.append(1)")
	length, _ := eval.Compile("len(seen)")
	local, _ := eval.Compile("[1] + seen")

	for i := 0; i < 2; i++ {
		env := eval.NewEnv("t")
		if _, err := env.Eval(appendSeen, 1); err == nil {
			t.Fatal("appending to a global list should fail")
		}
		vals, err := env.Eval(length, 1)
		if err != nil {
			t.Fatal(err)
		}
		if s, _ := vals[0].Text(); s != "0" {
			t.Errorf("render %d saw len(seen) = %s", i, s)
		}
		if _, err := env.Eval(local, 1); err != nil {
			t.Errorf("values built from a global should stay usable: %v", err)
		}
	}
}
