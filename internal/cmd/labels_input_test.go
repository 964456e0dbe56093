package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveLabelsPositional(t *testing.T) {
	labels, err := resolveLabels([]string{" Story by alice ", "", "bob's story"}, "", nil)
	require.NoError(t, err)
	require.Equal(t, []string{"Story by alice", "bob's story"}, labels)

	_, err = resolveLabels(nil, "", nil)
	require.Error(t, err)
}

func TestResolveLabelsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.txt")
	require.NoError(t, os.WriteFile(path, []byte("# captured from the tray\nStory by alice\n\nbob's story\n"), 0o600))

	labels, err := resolveLabels(nil, path, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"Story by alice", "bob's story"}, labels)

	_, err = resolveLabels([]string{"x"}, path, nil)
	require.Error(t, err)
}

func TestResolveLabelsStdin(t *testing.T) {
	labels, err := resolveLabels(nil, "-", strings.NewReader("Story by carol\n"))
	require.NoError(t, err)
	require.Equal(t, []string{"Story by carol"}, labels)

	_, err = resolveLabels(nil, "-", strings.NewReader("\n# nothing\n"))
	require.Error(t, err)
}
