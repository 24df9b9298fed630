// Package testutil provides helpers shared by the clusterprep tests.
package testutil

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

// WriteTempFile writes content to filename in dir and returns its path.
func WriteTempFile(t testing.TB, dir, filename, content string) string {
	t.Helper()

	path := filepath.Join(dir, filename)
	err := os.WriteFile(path, []byte(content), 0o644)
	require.NoError(t, err, "failed to write temp file: %s", filename)

	return path
}

// ReadFile returns the content of path, failing the test when it cannot be
// read.
func ReadFile(t testing.TB, path string) string {
	t.Helper()

	content, err := os.ReadFile(path)
	require.NoError(t, err, "failed to read file: %s", path)

	return string(content)
}

// BackupPath returns the path of backup n of file under numeric ordering.
func BackupPath(file string, n int) string {
	return file + ".bak" + strconv.Itoa(n)
}
