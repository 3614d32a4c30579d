package starlark

import (
	"fmt"
	"log/slog"

	"github.com/neurodesk/webtools/pkg/template"
	"go.starlark.net/starlark"
)

// CreateBuiltins returns the functions predeclared for every template
// expression. The iteration builtins return the (iterator, state, control)
// triple that a for directive consumes.
func CreateBuiltins(log *slog.Logger) starlark.StringDict {
	return starlark.StringDict{
		"ipairs":     starlark.NewBuiltin("ipairs", ipairs),
		"pairs":      starlark.NewBuiltin("pairs", pairs),
		"values":     starlark.NewBuiltin("values", values),
		"irange":     starlark.NewBuiltin("irange", irange),
		"escape_xml": stringFunc("escape_xml", template.EscapeXML),
		"escape_uri": stringFunc("escape_uri", template.EscapeURL),
		"escape_js":  stringFunc("escape_js", template.EscapeJS),
		"log": starlark.NewBuiltin("log", func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var msg string
			if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &msg); err != nil {
				return nil, err
			}
			log.Info(msg, "template", thread.Name)
			return starlark.None, nil
		}),
	}
}

func stringFunc(name string, f func(string) string) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var s string
		if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &s); err != nil {
			return nil, err
		}
		return starlark.String(f(s)), nil
	})
}

// ipairs(seq) iterates (index, element) pairs with 0-based indices. The
// control value is the last index.
func ipairs(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var seq starlark.Indexable
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &seq); err != nil {
		return nil, err
	}
	return starlark.Tuple{ipairsNext, seq, starlark.MakeInt(-1)}, nil
}

var ipairsNext = starlark.NewBuiltin("ipairs_next", func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var seq starlark.Indexable
	var i int
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 2, &seq, &i); err != nil {
		return nil, err
	}
	i++
	if i < 0 || i >= seq.Len() {
		return starlark.None, nil
	}
	return starlark.Tuple{starlark.MakeInt(i), seq.Index(i)}, nil
})

// pairs(mapping) iterates (key, value) pairs in the mapping's order.
func pairs(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var m starlark.IterableMapping
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &m); err != nil {
		return nil, err
	}
	items := m.Items()
	c := &cursor{items: make([]starlark.Value, len(items))}
	for i, kv := range items {
		c.items[i] = kv
	}
	return starlark.Tuple{cursorNext, c, starlark.None}, nil
}

// values(iterable) iterates the elements alone. A None element ends the
// iteration early.
func values(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var it starlark.Iterable
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &it); err != nil {
		return nil, err
	}
	iter := it.Iterate()
	defer iter.Done()
	c := &cursor{}
	var x starlark.Value
	for iter.Next(&x) {
		c.items = append(c.items, x)
	}
	return starlark.Tuple{cursorNext, c, starlark.None}, nil
}

// irange(first, last[, step]) iterates integers from first to last
// inclusive.
func irange(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var first, last int
	step := 1
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 2, &first, &last, &step); err != nil {
		return nil, err
	}
	if step == 0 {
		return nil, fmt.Errorf("%s: step must not be zero", fn.Name())
	}
	state := starlark.Tuple{starlark.MakeInt(last), starlark.MakeInt(step)}
	return starlark.Tuple{irangeNext, state, starlark.MakeInt(first - step)}, nil
}

var irangeNext = starlark.NewBuiltin("irange_next", func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var state starlark.Tuple
	var i int
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 2, &state, &i); err != nil {
		return nil, err
	}
	var last, step int
	if err := starlark.UnpackPositionalArgs(fn.Name(), state, nil, 2, &last, &step); err != nil {
		return nil, err
	}
	i += step
	if (step > 0 && i > last) || (step < 0 && i < last) {
		return starlark.None, nil
	}
	return starlark.MakeInt(i), nil
})

// cursor is iteration state over a snapshot of items. Tuple items are
// spread into multiple loop variables.
type cursor struct {
	items []starlark.Value
	pos   int
}

var _ starlark.Value = (*cursor)(nil)

func (c *cursor) String() string        { return fmt.Sprintf("<cursor %d/%d>", c.pos, len(c.items)) }
func (c *cursor) Type() string          { return "cursor" }
func (c *cursor) Freeze()               {}
func (c *cursor) Truth() starlark.Bool  { return c.pos < len(c.items) }
func (c *cursor) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: cursor") }

var cursorNext = starlark.NewBuiltin("cursor_next", func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("%s: missing state", fn.Name())
	}
	c, ok := args[0].(*cursor)
	if !ok {
		return nil, fmt.Errorf("%s: state is %s, want cursor", fn.Name(), args[0].Type())
	}
	if c.pos >= len(c.items) {
		return starlark.None, nil
	}
	x := c.items[c.pos]
	c.pos++
	return x, nil
})

// Iterate returns an iteration triple over items, suitable as the result
// of a host function used in a for directive.
func Iterate(items []starlark.Value) starlark.Tuple {
	return starlark.Tuple{cursorNext, &cursor{items: items}, starlark.None}
}
