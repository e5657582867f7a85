package tools

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bungeeguard.pid")
	require.False(t, FileExists(path))

	require.NoError(t, WritePidFile(path))
	require.True(t, FileExists(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, strconv.Itoa(os.Getpid()), strings.TrimSpace(string(data)))

	require.NoError(t, RemovePidFile(path))
	require.False(t, FileExists(path))
	require.NoError(t, RemovePidFile(path))
}

func TestPidFileDisabled(t *testing.T) {
	require.NoError(t, WritePidFile(""))
	require.NoError(t, RemovePidFile(""))
}
