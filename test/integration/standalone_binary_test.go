package integration

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildBinary compiles cmd/livetrack with a stamped version into a
// directory outside the module.
func buildBinary(t *testing.T, version string) string {
	t.Helper()
	goMod, err := exec.Command("go", "env", "GOMOD").Output()
	require.NoError(t, err)
	repoRoot := filepath.Dir(strings.TrimSpace(string(goMod)))
	require.NotEqual(t, ".", repoRoot, "go env GOMOD returned nothing")

	binary := filepath.Join(t.TempDir(), "livetrack")
	build := exec.Command("go", "build", "-ldflags", "-X main.version="+version, "-o", binary, "./cmd/livetrack")
	build.Dir = repoRoot
	out, err := build.CombinedOutput()
	require.NoError(t, err, string(out))
	return binary
}

func TestStandaloneBinaryWorksOutsideRepo(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix only")
	}
	if testing.Short() {
		t.Skip("builds the binary")
	}
	binary := buildBinary(t, "9.9.9-test")

	// An empty HOME keeps the developer's config and .env out of the run.
	home := t.TempDir()
	env := append(os.Environ(), "HOME="+home, "XDG_CONFIG_HOME="+filepath.Join(home, ".config"))

	run := func(args ...string) string {
		t.Helper()
		c := exec.Command(binary, args...)
		c.Dir = home
		c.Env = env
		out, err := c.CombinedOutput()
		require.NoError(t, err, "%s:\n%s", strings.Join(args, " "), out)
		return string(out)
	}

	require.Contains(t, run("version"), "livetrack 9.9.9-test")
	require.Contains(t, run("--help"), "reconciles periodic snapshots")

	var report struct {
		Version string `json:"version"`
	}
	require.NoError(t, json.Unmarshal([]byte(run("version", "--json")), &report))
	require.Equal(t, "9.9.9-test", report.Version)

	require.Contains(t, run("extract", "--output-format", "json", "Story by alice, seen"), `"alice"`)
	require.Contains(t, run("extract", "--output-format", "csv", "Story by bob"), "bob")
}
