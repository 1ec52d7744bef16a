package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndRemove(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(dir, 16)
	require.NoError(t, err)

	p, err := s.Save("Photo.JPG", strings.NewReader("jpeg-bytes"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(p, "uploads/"))
	assert.True(t, strings.HasSuffix(p, ".jpg"))

	data, err := os.ReadFile(filepath.Join(dir, filepath.Base(p)))
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))

	require.NoError(t, s.Remove(p))
	require.NoError(t, s.Remove(p))
	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
}

func TestSaveRejects(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(dir, 4)
	require.NoError(t, err)

	_, err = s.Save("run.sh", strings.NewReader("x"))
	assert.Error(t, err)

	_, err = s.Save("big.png", strings.NewReader("too large"))
	assert.Error(t, err)

	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(dir, 16)
	require.NoError(t, err)

	p, err := s.Save("a.png", strings.NewReader("png"))
	require.NoError(t, err)
	assert.True(t, s.Exists(p))

	assert.False(t, s.Exists(filepath.Base(p)))
	assert.False(t, s.Exists("uploads/"))
	assert.False(t, s.Exists("uploads/../local.go"))
	assert.False(t, s.Exists("uploads/missing.png"))
	assert.False(t, s.Exists("https://cdn.example.com/a.png"))

	require.NoError(t, s.Remove(p))
	assert.False(t, s.Exists(p))
}
