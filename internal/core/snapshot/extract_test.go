package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livetrack/livetrack/internal/core"
)

func TestExtractIdentity(t *testing.T) {
	tests := []struct {
		label string
		want  core.Identity
		ok    bool
	}{
		{"Story by alice, seen", "alice", true},
		{"story by Bob.Smith", "Bob.Smith", true},
		{"carol's story", "carol", true},
		{"dave’s story", "dave", true},
		{"erin_99 live now", "erin_99", true},
		{"  @frank!  ", "frank", true},
		{"", "", false},
		{"   ", "", false},
		{"!!! live", "", false},
		{"Profile picture. Story by alice, not seen", "alice", true},
		{"Live: Story by alice", "alice", true},
		{"...", "", false},
		{"._ live", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, ok := ExtractIdentity(tt.label)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractAllDropsFailures(t *testing.T) {
	set, rejected := ExtractAll([]string{"Story by alice", "alice's story", "???", "bob", "..."})
	require.Equal(t, []core.Identity{"alice", "bob"}, set.Sorted())
	require.Equal(t, []string{"???", "..."}, rejected)
}
