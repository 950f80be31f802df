package common

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteCrashFile(t *testing.T) {
	prev := CrashLogDir
	t.Cleanup(func() { CrashLogDir = prev })

	InstallCrashHandler(t.TempDir())
	path := WriteCrashFile("boom", GetStackTrace())
	require.NotEmpty(t, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	report := string(data)
	assert.True(t, strings.HasPrefix(report, "=== MOVERWATCH CRASH REPORT ==="))
	assert.Contains(t, report, "boom")
	assert.Contains(t, report, "TestWriteCrashFile")
}
