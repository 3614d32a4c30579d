package template

import (
	"fmt"
	"strings"
)

// DefaultPrefix is the namespace prefix of directive tags, as in <P:if>.
const DefaultPrefix = "P"

// Parser compiles template source into a Program.
type Parser struct {
	// Compiler compiles the expressions embedded in the template.
	Compiler Compiler
	// Prefix is the directive tag prefix; DefaultPrefix when empty.
	Prefix string
}

// Parse compiles src with the default prefix.
func Parse(name string, src []byte, flags string, c Compiler) (*Program, error) {
	return (&Parser{Compiler: c}).Parse(name, src, flags)
}

// Parse compiles src. name is used in error messages only. The first
// error stops compilation and no Program is returned.
func (ps *Parser) Parse(name string, src []byte, flags string) (*Program, error) {
	prefix := ps.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	p := &parser{
		name:  name,
		src:   src,
		flags: ParseFlags(flags),
		open:  "<" + prefix + ":",
		close: "</" + prefix + ":",
		comp:  ps.Compiler,
		nodes: make([]Node, 0, 32),
	}
	if err := p.parse(); err != nil {
		return nil, err
	}
	return &Program{name: name, src: src, nodes: p.nodes}, nil
}

type parser struct {
	name   string
	src    []byte
	flags  Flags
	open   string
	close  string
	comp   Compiler
	pos    int
	begin  int
	nodes  []Node
	blocks blockStack
}

func (p *parser) errorf(format string, args ...any) error {
	return &CompileError{Name: p.name, Msg: fmt.Sprintf(format, args...), src: p.src, offset: p.pos}
}

func (p *parser) emit(n Node) int {
	p.nodes = append(p.nodes, n)
	return len(p.nodes) - 1
}

func (p *parser) compile(src string) (Expr, error) {
	if p.comp == nil {
		return nil, p.errorf("no expression compiler")
	}
	e, err := p.comp.Compile(src)
	if err != nil {
		ce := p.errorf("%v", err).(*CompileError)
		ce.Err = err
		return nil, ce
	}
	return e, nil
}

func (p *parser) peekAt(i int) byte {
	if p.pos+i >= len(p.src) {
		return 0
	}
	return p.src[p.pos+i]
}

func (p *parser) hasPrefix(s string) bool {
	return len(p.src)-p.pos >= len(s) && string(p.src[p.pos:p.pos+len(s)]) == s
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) skipSpace() {
	for !p.eof() && isSpace(p.src[p.pos]) {
		p.pos++
	}
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\v' || b == '\f'
}

// flushRaw emits the pending raw run ending at the current position.
func (p *parser) flushRaw() {
	if p.pos > p.begin {
		p.emit(Node{Op: OpRaw, Offset: p.begin, Length: p.pos - p.begin})
	}
}

func (p *parser) parse() error {
	if !p.flags.Has(FlagParse) {
		p.pos = len(p.src)
		p.flushRaw()
		return nil
	}
	for !p.eof() {
		switch p.src[p.pos] {
		case '<':
			if !p.hasPrefix(p.open) && !p.hasPrefix(p.close) {
				p.pos++
				continue
			}
			p.flushRaw()
			if err := p.parseElement(); err != nil {
				return err
			}
			p.begin = p.pos
		case '$':
			switch p.peekAt(1) {
			case '{', '[':
				p.flushRaw()
				if err := p.parseSub(); err != nil {
					return err
				}
				p.begin = p.pos
			case '$':
				// keep the first '$' in the raw run, drop the second
				p.pos++
				p.flushRaw()
				p.pos++
				p.begin = p.pos
			default:
				p.pos++
			}
		default:
			p.pos++
		}
	}
	p.flushRaw()
	if n := len(p.blocks); n > 0 {
		return p.errorf("%d open elements at end of template", n)
	}
	return nil
}

// parseElement parses a directive tag starting at '<'.
func (p *parser) parseElement() error {
	st := stateOpen
	if p.hasPrefix(p.close) {
		st = stateClose
		p.pos += len(p.close)
	} else {
		p.pos += len(p.open)
	}

	start := p.pos
	for !p.eof() && !isSpace(p.src[p.pos]) && p.src[p.pos] != '>' && !(p.src[p.pos] == '/' && p.peekAt(1) == '>') {
		p.pos++
	}
	name := string(p.src[start:p.pos])
	if name == "" {
		return p.errorf("element name expected")
	}
	p.skipSpace()

	attrs := make(map[string]string, 2)
	for !p.eof() && p.src[p.pos] != '>' && p.src[p.pos] != '/' {
		key, val, err := p.parseAttr(name)
		if err != nil {
			return err
		}
		attrs[key] = val
		p.skipSpace()
	}
	if p.peekAt(0) == '/' {
		st |= stateClose
		p.pos++
	}
	if p.peekAt(0) != '>' {
		return p.errorf("'>' expected following '%s'", name)
	}
	p.pos++
	return p.processElement(name, st, attrs)
}

// parseAttr parses key="value". Values are double-quoted and may contain
// the four entity escapes only.
func (p *parser) parseAttr(element string) (string, string, error) {
	start := p.pos
	for !p.eof() && !isSpace(p.src[p.pos]) && !strings.ContainsRune("=>/", rune(p.src[p.pos])) {
		p.pos++
	}
	if p.pos == start {
		return "", "", p.errorf("attribute expected following '%s'", element)
	}
	key := unescapeEntities(string(p.src[start:p.pos]))
	p.skipSpace()
	if p.peekAt(0) != '=' {
		return "", "", p.errorf("'=' expected following '%s'", key)
	}
	p.pos++
	p.skipSpace()
	if p.peekAt(0) != '"' {
		return "", "", p.errorf("'\"' expected following '%s'", key)
	}
	p.pos++
	start = p.pos
	for !p.eof() && p.src[p.pos] != '"' {
		p.pos++
	}
	if p.eof() {
		return "", "", p.errorf("'\"' expected following '%s'", key)
	}
	val := unescapeEntities(string(p.src[start:p.pos]))
	p.pos++
	return key, val, nil
}

// parseSub parses $[flags]{expr} or ${expr} starting at '$'.
func (p *parser) parseSub() error {
	p.pos++
	flags := p.flags
	if p.peekAt(0) == '[' {
		p.pos++
		start := p.pos
		for !p.eof() && p.src[p.pos] != ']' {
			p.pos++
		}
		if p.eof() {
			return p.errorf("']' expected")
		}
		flags = ParseFlags(string(p.src[start:p.pos]))
		p.pos++
	}
	if p.peekAt(0) != '{' {
		return p.errorf("'{' expected")
	}
	p.pos++
	start := p.pos
	braces := 1
	var quote byte
	for !p.eof() && braces > 0 {
		switch c := p.src[p.pos]; c {
		case '{':
			if quote == 0 {
				braces++
			}
		case '}':
			if quote == 0 {
				braces--
			}
		case '"', '\'':
			switch quote {
			case 0:
				quote = c
			case c:
				quote = 0
			}
		case '\\':
			if quote != 0 && p.peekAt(1) == quote {
				p.pos++
			}
		}
		p.pos++
	}
	if braces > 0 {
		return p.errorf("'}' expected")
	}
	src := unescapeEntities(string(p.src[start : p.pos-1]))
	e, err := p.compile(src)
	if err != nil {
		return err
	}
	p.emit(Node{Op: OpSub, Expr: e, Flags: flags})
	return nil
}
