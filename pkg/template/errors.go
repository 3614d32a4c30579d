package template

import (
	"fmt"
	"io/fs"
)

// CompileError reports a malformed template. The line number is derived
// from the byte offset only when asked for.
type CompileError struct {
	Name   string
	Msg    string
	Err    error
	src    []byte
	offset int
}

// Line returns the 1-based line of the failure. LF, CR and CRLF each end
// one line.
func (e *CompileError) Line() int {
	line := 1
	end := min(e.offset, len(e.src))
	for i := 0; i < end; i++ {
		switch e.src[i] {
		case '\n':
			line++
		case '\r':
			line++
			if i+1 < end && e.src[i+1] == '\n' {
				i++
			}
		}
	}
	return line
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%s, line %d: %s", e.Name, e.Line(), e.Msg)
}

func (e *CompileError) Unwrap() error { return e.Err }

// RuntimeError aborts a render.
type RuntimeError struct {
	Name string
	Msg  string
	Err  error
}

func (e *RuntimeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Name, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Msg)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// ErrTemplateNotFound is returned by readers for missing templates.
type ErrTemplateNotFound struct{ Name string }

func (e ErrTemplateNotFound) Error() string { return "template not found: " + e.Name }

// Is makes ErrTemplateNotFound match fs.ErrNotExist.
func (e ErrTemplateNotFound) Is(target error) bool { return target == fs.ErrNotExist }
