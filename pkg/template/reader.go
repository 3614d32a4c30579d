package template

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/afero"
)

// FileReader reads template sources. Path resolution and rooting are the
// reader's concern; the engine passes paths through unchanged.
type FileReader interface {
	ReadFile(path string) ([]byte, error)
}

// MemoryReader serves templates from a map, keyed by path.
type MemoryReader map[string]string

func (m MemoryReader) ReadFile(path string) ([]byte, error) {
	if s, ok := m[path]; ok {
		return []byte(s), nil
	}
	return nil, ErrTemplateNotFound{path}
}

// FSReader reads templates from an afero filesystem.
type FSReader struct {
	fs afero.Fs
}

// NewFSReader returns a reader rooted at dir on the OS filesystem. Paths
// cannot escape dir.
func NewFSReader(dir string) *FSReader {
	return &FSReader{fs: afero.NewBasePathFs(afero.NewOsFs(), dir)}
}

// NewFSReaderFrom wraps an existing afero filesystem.
func NewFSReaderFrom(fsys afero.Fs) *FSReader {
	return &FSReader{fs: fsys}
}

func (r *FSReader) ReadFile(path string) ([]byte, error) {
	b, err := afero.ReadFile(r.fs, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrTemplateNotFound{path}
		}
		return nil, fmt.Errorf("reading template %q: %w", path, err)
	}
	return b, nil
}

// FileLoader reads and compiles templates on every call. Wrap it in a
// cache to reuse programs across renders.
type FileLoader struct {
	Reader FileReader
	Parser *Parser
}

// NewFileLoader returns a loader using the default directive prefix.
func NewFileLoader(r FileReader, c Compiler) *FileLoader {
	return &FileLoader{Reader: r, Parser: &Parser{Compiler: c}}
}

func (l *FileLoader) Load(path, flags string) (*Program, error) {
	src, err := l.Reader.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return l.Parser.Parse(path, src, flags)
}
