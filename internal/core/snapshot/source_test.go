package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/livetrack/livetrack/internal/core"
)

func TestPushSourceEmpty(t *testing.T) {
	src := NewPushSource(0)
	_, err := src.Snapshot(context.Background())
	require.ErrorIs(t, err, ErrNoSnapshot)
}

func TestPushSourceReturnsCopy(t *testing.T) {
	src := NewPushSource(0)
	pushed := core.NewObservedSet("alice")
	src.Push(core.Snapshot{Page: "/", Identities: pushed})

	pushed["bob"] = struct{}{}

	got, err := src.Snapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, "/", got.Page)
	require.Equal(t, []core.Identity{"alice"}, got.Identities.Sorted())

	got.Identities["carol"] = struct{}{}
	again, err := src.Snapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, again.Identities.Len())

	_, pushes := src.LastPush()
	require.Equal(t, uint64(1), pushes)
}

func TestPushSourceStale(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	src := NewPushSource(10 * time.Second)
	src.Clock = func() time.Time { return now }
	src.Push(core.Snapshot{Identities: core.NewObservedSet("alice")})

	now = now.Add(11 * time.Second)
	_, err := src.Snapshot(context.Background())
	var stale *StaleError
	require.ErrorAs(t, err, &stale)
	require.Equal(t, 11*time.Second, stale.Age)
}

func TestDocumentResolveMergesLabels(t *testing.T) {
	doc := Document{
		Page:       "https://www.instagram.com/",
		Identities: []string{"alice", " "},
		Labels:     []string{"Story by bob, seen", "..."},
	}
	snapshot, rejected := doc.Resolve()
	require.Equal(t, []core.Identity{"alice", "bob"}, snapshot.Identities.Sorted())
	require.Equal(t, []string{"..."}, rejected)
	require.Equal(t, doc.Page, snapshot.Page)
}

func TestFileSourceYAMLAndJSON(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "snapshot.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("page: home\nidentities:\n  - alice\nlabels:\n  - \"carol's story\"\n"), 0o600))
	got, err := NewFileSource(yamlPath).Snapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, "home", got.Page)
	require.Equal(t, []core.Identity{"alice", "carol"}, got.Identities.Sorted())

	jsonPath := filepath.Join(dir, "snapshot.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"identities":["dave"]}`), 0o600))
	got, err = NewFileSource(jsonPath).Snapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, []core.Identity{"dave"}, got.Identities.Sorted())
}

func TestFileSourceErrors(t *testing.T) {
	_, err := NewFileSource(filepath.Join(t.TempDir(), "missing.yaml")).Snapshot(context.Background())
	require.Error(t, err)

	_, err = NewFileSource("").Snapshot(context.Background())
	require.Error(t, err)

	_, err = DecodeDocument([]byte("{"), ".json")
	require.Error(t, err)
}
