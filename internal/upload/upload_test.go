package upload

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadTextFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("# Plan\n- ship it\n"), 0o600))

	att, err := Load(path, 0)
	require.NoError(t, err)
	assert.Equal(t, "notes.md", att.Name)
	assert.Equal(t, "text/markdown", att.MimeType)
	assert.Equal(t, int64(17), att.Size)
	assert.Equal(t, "# Plan\n- ship it\n", att.Content)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.txt"), 0)
	assert.Error(t, err)
}

func TestLoadTooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("a", 64)), 0o600))

	_, err := Load(path, 32)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestFromReaderSizeCap(t *testing.T) {
	_, err := FromReader("a.txt", strings.NewReader(strings.Repeat("x", 11)), 10)
	assert.ErrorIs(t, err, ErrTooLarge)

	att, err := FromReader("a.txt", strings.NewReader(strings.Repeat("x", 10)), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), att.Size)
}

func TestFromReaderRejectsBinary(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0x00, 0x00}
	_, err := FromReader("image.png", strings.NewReader(string(png)), 0)
	assert.ErrorIs(t, err, ErrBinary)

	_, err = FromReader("latin1.txt", strings.NewReader("caf\xe9"), 0)
	assert.ErrorIs(t, err, ErrBinary)
}

func TestFromReaderName(t *testing.T) {
	att, err := FromReader("../../etc/report.csv", strings.NewReader("a,b\n1,2\n"), 0)
	require.NoError(t, err)
	assert.Equal(t, "report.csv", att.Name)
	assert.Equal(t, "text/csv", att.MimeType)

	_, err = FromReader("  ", strings.NewReader("x"), 0)
	assert.Error(t, err)
}

func TestDetectType(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"config.yaml", "a: 1\n", "application/yaml"},
		{"data.json", `{"a":1}`, "application/json"},
		{"page.html", "<html><body>hi</body></html>", "text/html"},
		{"README", "just words", "text/plain"},
		{"main.go", "package main\n", "text/x-go"},
	}
	for _, tt := range tests {
		got, err := DetectType(tt.name, []byte(tt.data))
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, got, tt.name)
	}
}
