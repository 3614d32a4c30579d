package template

type blockKind uint8

const (
	blockIf blockKind = iota + 1
	blockFor
)

// block is a compile-time record of an open directive.
type block struct {
	kind blockKind
	// start is the first If of an if chain, or the ForNext of a loop.
	start int
	// last is the If whose false target is still open; unresolved once
	// the chain reached its else branch.
	last int
	// pending holds the Jump nodes that end each taken branch.
	pending []int
}

type blockStack []*block

func (s *blockStack) push(b *block) { *s = append(*s, b) }

func (s *blockStack) pop() *block {
	if len(*s) == 0 {
		return nil
	}
	b := (*s)[len(*s)-1]
	*s = (*s)[:len(*s)-1]
	return b
}

func (s blockStack) top() *block {
	if len(s) == 0 {
		return nil
	}
	return s[len(s)-1]
}
