package template

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// nopEnv fails every evaluation; plain text never reaches it.
type nopEnv struct{}

func (nopEnv) Eval(Expr, int) ([]Value, error)           { return nil, errStubSyntax }
func (nopEnv) Call(Value, []Value, int) ([]Value, error) { return nil, errStubSyntax }
func (nopEnv) Bind(string, Value)                        {}

func TestPlainTextProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("text without markers renders verbatim", prop.ForAll(
		func(s string) bool {
			p, err := Parse("prop", []byte(s), DefaultFlags, stubCompiler{})
			if err != nil {
				return false
			}
			if len(s) > 0 && p.Len() != 1 {
				return false
			}
			var buf bytes.Buffer
			if err := Render(context.Background(), p, nopEnv{}, &buf); err != nil {
				return false
			}
			return buf.String() == s
		},
		gen.RegexMatch(`^[a-zA-Z0-9 \t\r\n.,;:!?{}\[\]/=">]*$`),
	))

	properties.Property("doubled dollars render as single dollars", prop.ForAll(
		func(s string) bool {
			src := strings.ReplaceAll(s, "$", "$$")
			p, err := Parse("prop", []byte(src), DefaultFlags, stubCompiler{})
			if err != nil {
				return false
			}
			var buf bytes.Buffer
			if err := Render(context.Background(), p, nopEnv{}, &buf); err != nil {
				return false
			}
			return buf.String() == s
		},
		gen.RegexMatch(`^[a-z$ {}\[\]]*$`),
	))

	properties.Property("flag strings round-trip through canonical form", prop.ForAll(
		func(s string) bool {
			f := ParseFlags(s)
			return ParseFlags(f.String()) == f
		},
		gen.RegexMatch(`^[pxuneq]*$`),
	))

	properties.TestingRun(t)
}
