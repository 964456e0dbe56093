package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDiff(t *testing.T) {
	t.Run("EnteredAndExited", func(t *testing.T) {
		previous := NewObservedSet("alice", "bob", "carol")
		current := NewObservedSet("bob", "dave", "erin")

		batch := Diff(previous, current)
		require.Equal(t, []Identity{"dave", "erin"}, batch.Entered)
		require.Equal(t, []Identity{"alice", "carol"}, batch.Exited)
	})

	t.Run("SameSetIsEmpty", func(t *testing.T) {
		set := NewObservedSet("alice", "bob")
		batch := Diff(set, set)
		require.True(t, batch.Empty())
		require.Empty(t, batch.Entered)
		require.Empty(t, batch.Exited)
	})

	t.Run("NilPrevious", func(t *testing.T) {
		batch := Diff(nil, NewObservedSet("alice"))
		require.Equal(t, []Identity{"alice"}, batch.Entered)
		require.Empty(t, batch.Exited)
	})

	t.Run("NilCurrent", func(t *testing.T) {
		batch := Diff(NewObservedSet("alice"), nil)
		require.Empty(t, batch.Entered)
		require.Equal(t, []Identity{"alice"}, batch.Exited)
	})

	t.Run("InputsUntouched", func(t *testing.T) {
		previous := NewObservedSet("alice")
		current := NewObservedSet("bob")
		_ = Diff(previous, current)
		require.Equal(t, NewObservedSet("alice"), previous)
		require.Equal(t, NewObservedSet("bob"), current)
	})
}

func TestDiffMatchesSetDifference(t *testing.T) {
	universe := []Identity{"a", "b", "c", "d"}
	// every pair of subsets of a four element universe
	for pm := 0; pm < 16; pm++ {
		for cm := 0; cm < 16; cm++ {
			previous := subset(universe, pm)
			current := subset(universe, cm)
			batch := Diff(previous, current)

			for _, id := range batch.Entered {
				require.True(t, current.Has(id))
				require.False(t, previous.Has(id))
			}
			for _, id := range batch.Exited {
				require.True(t, previous.Has(id))
				require.False(t, current.Has(id))
			}

			expectedEntered, expectedExited := 0, 0
			for _, id := range universe {
				if current.Has(id) && !previous.Has(id) {
					expectedEntered++
				}
				if previous.Has(id) && !current.Has(id) {
					expectedExited++
				}
			}
			require.Len(t, batch.Entered, expectedEntered)
			require.Len(t, batch.Exited, expectedExited)
		}
	}
}

func subset(universe []Identity, mask int) ObservedSet {
	set := NewObservedSet()
	for i, id := range universe {
		if mask&(1<<i) != 0 {
			set[id] = struct{}{}
		}
	}
	return set
}

func TestNewObservedSetSkipsBlanks(t *testing.T) {
	set := NewObservedSet(" alice ", "", "  ", "alice", "bob")
	require.Equal(t, 2, set.Len())
	require.Equal(t, []Identity{"alice", "bob"}, set.Sorted())
}

func TestObservedSetJSON(t *testing.T) {
	set := NewObservedSet("bob", "alice")
	data, err := json.Marshal(set)
	require.NoError(t, err)
	require.JSONEq(t, `["alice","bob"]`, string(data))

	var decoded ObservedSet
	require.NoError(t, json.Unmarshal([]byte(`["carol"," ","dave"]`), &decoded))
	require.Equal(t, []Identity{"carol", "dave"}, decoded.Sorted())
}
