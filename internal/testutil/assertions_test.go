package testutil

import (
	"testing"
)

func TestAssertFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := WriteTempFile(t, dir, "hosts", "127.0.0.1 localhost\n")
	WriteTempFile(t, dir, "hosts.bak0", "")

	AssertFileExists(t, file)
	AssertFileNotExists(t, BackupPath(file, 1))
	AssertFileContains(t, file, "localhost")
	AssertFileEquals(t, file, "127.0.0.1 localhost\n")
	AssertBackup(t, file, 0, "")
}

func TestAssertYAMLEquals(t *testing.T) {
	t.Parallel()

	AssertYAMLEquals(t, "a: 1\nb: [x, y]\n", "b:\n  - x\n  - y\na: 1\n")
}
