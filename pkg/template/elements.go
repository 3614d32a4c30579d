package template

import "strings"

// state says whether a tag opens a directive, closes it, or both.
type state uint8

const (
	stateOpen state = 1 << iota
	stateClose
)

func (p *parser) processElement(name string, st state, attrs map[string]string) error {
	switch name {
	case "if":
		return p.processIf(st, attrs)
	case "elseif":
		return p.processElseIf(st, attrs)
	case "else":
		return p.processElse(st)
	case "for":
		return p.processFor(st, attrs)
	case "set":
		return p.processSet(st, attrs)
	case "include":
		return p.processInclude(st, attrs)
	}
	return p.errorf("unknown element '%s'", name)
}

func (p *parser) processIf(st state, attrs map[string]string) error {
	if st&stateOpen != 0 {
		cond, err := p.requiredExpr(attrs, "cond")
		if err != nil {
			return err
		}
		idx := p.emit(Node{Op: OpIf, Expr: cond, Target: unresolved})
		p.blocks.push(&block{kind: blockIf, start: idx, last: idx})
	}
	if st&stateClose != 0 {
		b := p.blocks.pop()
		if b == nil || b.kind != blockIf {
			return p.errorf("no 'if' to close")
		}
		end := len(p.nodes)
		if b.last != unresolved {
			p.nodes[b.last].Target = end
		}
		for _, j := range b.pending {
			p.nodes[j].Target = end
		}
	}
	return nil
}

// continueIf returns the innermost if block that can take another branch.
func (p *parser) continueIf(name string) (*block, error) {
	b := p.blocks.top()
	if b == nil || b.kind != blockIf {
		return nil, p.errorf("no 'if' to continue")
	}
	if b.last == unresolved {
		return nil, p.errorf("'%s' following 'else'", name)
	}
	return b, nil
}

func (p *parser) processElseIf(st state, attrs map[string]string) error {
	if st&stateOpen == 0 {
		return nil
	}
	b, err := p.continueIf("elseif")
	if err != nil {
		return err
	}
	cond, err := p.requiredExpr(attrs, "cond")
	if err != nil {
		return err
	}
	b.pending = append(b.pending, p.emit(Node{Op: OpJump, Target: unresolved}))
	p.nodes[b.last].Target = len(p.nodes)
	b.last = p.emit(Node{Op: OpIf, Expr: cond, Target: unresolved})
	return nil
}

func (p *parser) processElse(st state) error {
	if st&stateOpen == 0 {
		return nil
	}
	b, err := p.continueIf("else")
	if err != nil {
		return err
	}
	b.pending = append(b.pending, p.emit(Node{Op: OpJump, Target: unresolved}))
	p.nodes[b.last].Target = len(p.nodes)
	b.last = unresolved
	return nil
}

func (p *parser) processFor(st state, attrs map[string]string) error {
	if st&stateOpen != 0 {
		in, err := p.requiredExpr(attrs, "in")
		if err != nil {
			return err
		}
		names, err := p.requiredNames(attrs)
		if err != nil {
			return err
		}
		p.emit(Node{Op: OpForInit, Expr: in})
		next := p.emit(Node{Op: OpForNext, Names: names, Target: unresolved})
		p.blocks.push(&block{kind: blockFor, start: next})
	}
	if st&stateClose != 0 {
		b := p.blocks.pop()
		if b == nil || b.kind != blockFor {
			return p.errorf("no 'for' to close")
		}
		p.emit(Node{Op: OpJump, Target: b.start})
		p.nodes[b.start].Target = len(p.nodes)
	}
	return nil
}

func (p *parser) processSet(st state, attrs map[string]string) error {
	if st&stateOpen == 0 {
		return nil
	}
	names, err := p.requiredNames(attrs)
	if err != nil {
		return err
	}
	values, err := p.requiredExpr(attrs, "expressions")
	if err != nil {
		return err
	}
	p.emit(Node{Op: OpSet, Names: names, Expr: values})
	return nil
}

func (p *parser) processInclude(st state, attrs map[string]string) error {
	if st&stateOpen == 0 {
		return nil
	}
	filename, err := p.requiredExpr(attrs, "filename")
	if err != nil {
		return err
	}
	n := Node{Op: OpInclude, Expr: filename}
	if flags, ok := attrs["flags"]; ok {
		n.IncludeFlags = &flags
	}
	p.emit(n)
	return nil
}

func (p *parser) requiredExpr(attrs map[string]string, key string) (Expr, error) {
	src, ok := attrs[key]
	if !ok {
		return nil, p.errorf("missing attribute '%s'", key)
	}
	return p.compile(src)
}

func (p *parser) requiredNames(attrs map[string]string) ([]string, error) {
	list, ok := attrs["names"]
	if !ok {
		return nil, p.errorf("missing attribute 'names'")
	}
	names := strings.FieldsFunc(list, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	if len(names) == 0 {
		return nil, p.errorf("empty 'names'")
	}
	return names, nil
}
