package testutil

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// AssertFileExists asserts that a regular file exists at path.
func AssertFileExists(t testing.TB, path string, msgAndArgs ...interface{}) {
	t.Helper()

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		assert.Fail(t, "file does not exist", append([]interface{}{"expected file to exist: " + path}, msgAndArgs...)...)
		return
	}
	require.NoError(t, err)
	assert.False(t, info.IsDir(), "expected file but got directory: %s", path)
}

// AssertFileNotExists asserts that nothing exists at path.
func AssertFileNotExists(t testing.TB, path string, msgAndArgs ...interface{}) {
	t.Helper()

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), append([]interface{}{"expected no file at " + path}, msgAndArgs...)...)
}

// AssertFileContains asserts that the file at path contains expected.
func AssertFileContains(t testing.TB, path, expected string, msgAndArgs ...interface{}) {
	t.Helper()
	assert.Contains(t, ReadFile(t, path), expected, msgAndArgs...)
}

// AssertFileEquals asserts that the file at path holds exactly expected.
func AssertFileEquals(t testing.TB, path, expected string, msgAndArgs ...interface{}) {
	t.Helper()
	assert.Equal(t, expected, ReadFile(t, path), msgAndArgs...)
}

// AssertBackup asserts that backup n of file holds expected.
func AssertBackup(t testing.TB, file string, n int, expected string) {
	t.Helper()
	AssertFileEquals(t, BackupPath(file, n), expected, "backup %d of %s", n, file)
}

// AssertYAMLEquals asserts that two YAML documents decode to the same value.
func AssertYAMLEquals(t testing.TB, expected, actual string, msgAndArgs ...interface{}) {
	t.Helper()

	var expectedDoc, actualDoc interface{}

	err := yaml.Unmarshal([]byte(expected), &expectedDoc)
	require.NoError(t, err, "failed to parse expected YAML")

	err = yaml.Unmarshal([]byte(actual), &actualDoc)
	require.NoError(t, err, "failed to parse actual YAML")

	assert.Equal(t, expectedDoc, actualDoc, msgAndArgs...)
}
