package template

import "strings"

// Flags controls how a template is parsed and how substitutions are written.
type Flags uint8

const (
	// FlagParse enables directive and substitution processing. Without it
	// the whole file is emitted verbatim.
	FlagParse Flags = 1 << iota
	// FlagEscapeXML escapes substitution results as markup.
	FlagEscapeXML
	// FlagEscapeURL percent-encodes substitution results.
	FlagEscapeURL
	// FlagSuppressNil writes absent substitution results as "".
	FlagSuppressNil
	// FlagSuppressErr writes failed substitutions as "" instead of aborting.
	FlagSuppressErr
)

// DefaultFlags are the template flags used when none are given.
const DefaultFlags = "px"

var flagLetters = [...]struct {
	letter byte
	flag   Flags
}{
	{'p', FlagParse},
	{'x', FlagEscapeXML},
	{'u', FlagEscapeURL},
	{'n', FlagSuppressNil},
	{'e', FlagSuppressErr},
}

// ParseFlags converts a flag string such as "px" into a bitset. Unknown
// letters are ignored.
func ParseFlags(s string) Flags {
	var f Flags
	for i := 0; i < len(s); i++ {
		for _, fl := range flagLetters {
			if s[i] == fl.letter {
				f |= fl.flag
			}
		}
	}
	return f
}

// Has reports whether all bits of x are set.
func (f Flags) Has(x Flags) bool { return f&x == x }

// String returns the canonical letter form, e.g. "pxn".
func (f Flags) String() string {
	var b strings.Builder
	for _, fl := range flagLetters {
		if f.Has(fl.flag) {
			b.WriteByte(fl.letter)
		}
	}
	return b.String()
}
