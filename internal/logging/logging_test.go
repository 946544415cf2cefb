package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupCreatesLogDirectory(t *testing.T) {
	dir := t.TempDir()

	log, err := Setup(dir)
	require.NoError(t, err)
	require.NotNil(t, log)

	info, err := os.Stat(filepath.Join(dir, "logs"))
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestSetupWritesJSONToRotatedFile(t *testing.T) {
	dir := t.TempDir()

	log, err := Setup(dir)
	require.NoError(t, err)

	log.Info("hello from the test")

	data, err := os.ReadFile(filepath.Join(dir, "logs", "atomkv.log"))
	require.NoError(t, err)
	require.Contains(t, string(data), `"msg":"hello from the test"`)
}
