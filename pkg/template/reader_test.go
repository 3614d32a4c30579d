package template

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryReader(t *testing.T) {
	r := MemoryReader{"a": "A"}
	b, err := r.ReadFile("a")
	require.NoError(t, err)
	assert.Equal(t, "A", string(b))

	_, err = r.ReadFile("b")
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.EqualError(t, err, "template not found: b")
}

func TestFSReaderFromMemFs(t *testing.T) {
	mfs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(mfs, "/site/index.html", []byte("hi"), 0o644))
	r := NewFSReaderFrom(afero.NewBasePathFs(mfs, "/site"))

	b, err := r.ReadFile("/index.html")
	require.NoError(t, err)
	assert.Equal(t, "hi", string(b))

	_, err = r.ReadFile("/nope.html")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestFSReaderIsRooted(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "root")
	require.NoError(t, os.Mkdir(root, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secret.html"), []byte("secret"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "page.html"), []byte("page"), 0o644))

	r := NewFSReader(root)
	b, err := r.ReadFile("page.html")
	require.NoError(t, err)
	assert.Equal(t, "page", string(b))

	_, err = r.ReadFile("../secret.html")
	assert.Error(t, err)
}

func TestFileLoader(t *testing.T) {
	l := NewFileLoader(MemoryReader{"p": "text ${x}"}, stubCompiler{})
	p, err := l.Load("p", "")
	require.NoError(t, err)
	assert.Equal(t, "p", p.Name())
	assert.Equal(t, 1, p.Len())

	p, err = l.Load("p", DefaultFlags)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Len())

	_, err = l.Load("q", DefaultFlags)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}
