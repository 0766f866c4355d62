package world

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWorkspace(t *testing.T) *Workspace {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "foo.py"), []byte("print('foo')\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blob.bin"), []byte{0x00, 0x01, 0xff}, 0o644))
	ws, err := NewWorkspace(dir)
	require.NoError(t, err)
	return ws
}

func TestWorkspace_Read(t *testing.T) {
	ws := newTestWorkspace(t)

	content, rel, err := ws.Read("./src/../src/foo.py")
	require.NoError(t, err)
	assert.Equal(t, "src/foo.py", rel)
	assert.Equal(t, "print('foo')\n", content)

	content, rel, err = ws.Read(filepath.Join(ws.Root(), "src", "foo.py"))
	require.NoError(t, err)
	assert.Equal(t, "src/foo.py", rel)
	assert.NotEmpty(t, content)
}

func TestWorkspace_ReadErrors(t *testing.T) {
	ws := newTestWorkspace(t)

	tests := []struct {
		path string
		want error
	}{
		{"../etc/passwd", ErrOutsideWorkspace},
		{"/etc/passwd", ErrOutsideWorkspace},
		{"src/missing.py", ErrNotFound},
		{"src", ErrNotRegular},
		{"blob.bin", ErrBinary},
		{"", ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			_, _, err := ws.Read(tt.path)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestWorkspace_MaxFileSize(t *testing.T) {
	ws := newTestWorkspace(t)
	ws.SetMaxFileSize(4)
	_, _, err := ws.Read("src/foo.py")
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestWorkspace_Exists(t *testing.T) {
	ws := newTestWorkspace(t)
	assert.True(t, ws.Exists("src/foo.py"))
	assert.False(t, ws.Exists("src"))
	assert.False(t, ws.Exists("nope.txt"))
	assert.False(t, ws.Exists("../outside"))
}

func TestNewWorkspace_NotADirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err := NewWorkspace(file)
	assert.Error(t, err)
}
