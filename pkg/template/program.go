package template

import (
	"fmt"
	"io"
	"slices"
	"strings"
)

// Op identifies the kind of a program node.
type Op uint8

const (
	OpJump Op = iota + 1
	OpIf
	OpForInit
	OpForNext
	OpSet
	OpInclude
	OpSub
	OpRaw
)

var opNames = map[Op]string{
	OpJump:    "JUMP",
	OpIf:      "IF",
	OpForInit: "FOR_INIT",
	OpForNext: "FOR_NEXT",
	OpSet:     "SET",
	OpInclude: "INCLUDE",
	OpSub:     "SUB",
	OpRaw:     "RAW",
}

func (o Op) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return fmt.Sprintf("Op(%d)", uint8(o))
}

// unresolved marks a jump target that has not been patched yet.
const unresolved = -1

// Node is one instruction of a compiled program. Which fields are used
// depends on Op:
//
//	OpJump     Target
//	OpIf       Expr (condition), Target (taken when false)
//	OpForInit  Expr (iteration triple)
//	OpForNext  Names, Target (taken when exhausted)
//	OpSet      Names, Expr (values)
//	OpInclude  Expr (file name), IncludeFlags
//	OpSub      Expr, Flags
//	OpRaw      Offset, Length into the program source
type Node struct {
	Op           Op
	Target       int
	Expr         Expr
	Names        []string
	Flags        Flags
	IncludeFlags *string
	Offset       int
	Length       int
}

// Program is a compiled template: a flat list of nodes addressed by index.
// A Program is immutable and may be rendered concurrently.
type Program struct {
	name  string
	src   []byte
	nodes []Node
}

// Name returns the name the program was compiled under.
func (p *Program) Name() string { return p.name }

// Len returns the number of nodes.
func (p *Program) Len() int { return len(p.nodes) }

// Node returns a copy of the i-th node. Its Names and IncludeFlags are
// copies too, so changing them leaves the program intact.
func (p *Program) Node(i int) Node {
	n := p.nodes[i]
	n.Names = slices.Clone(n.Names)
	if n.IncludeFlags != nil {
		f := *n.IncludeFlags
		n.IncludeFlags = &f
	}
	return n
}

// Raw returns the source bytes referenced by a raw node.
func (p *Program) Raw(n Node) []byte { return p.src[n.Offset : n.Offset+n.Length] }

// Dump writes a line-oriented listing of the program, one node per line.
func (p *Program) Dump(w io.Writer) error {
	for i, n := range p.nodes {
		if _, err := fmt.Fprintf(w, "%d %s\n", i, describe(n)); err != nil {
			return err
		}
	}
	return nil
}

func describe(n Node) string {
	switch n.Op {
	case OpJump:
		return fmt.Sprintf("JUMP next=%d", n.Target)
	case OpIf:
		return fmt.Sprintf("IF cond=%s next=%d", n.Expr.Source(), n.Target)
	case OpForInit:
		return fmt.Sprintf("FOR_INIT in=%s", n.Expr.Source())
	case OpForNext:
		return fmt.Sprintf("FOR_NEXT names=%s next=%d", strings.Join(n.Names, ","), n.Target)
	case OpSet:
		return fmt.Sprintf("SET names=%s expressions=%s", strings.Join(n.Names, ","), n.Expr.Source())
	case OpInclude:
		flags := "(default)"
		if n.IncludeFlags != nil {
			flags = *n.IncludeFlags
		}
		return fmt.Sprintf("INCLUDE filename=%s flags=%s", n.Expr.Source(), flags)
	case OpSub:
		return fmt.Sprintf("SUB exp=%s flags=%s", n.Expr.Source(), n.Flags)
	case OpRaw:
		return fmt.Sprintf("RAW len=%d", n.Length)
	}
	return n.Op.String()
}
