package state

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// Any sequence of mutations never touches earlier snapshots, and the audit
// trail never exceeds its bound.
func TestPropertySnapshotsAreImmutable(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		maxHistory := rapid.IntRange(1, 20).Draw(t, "maxHistory")
		s := New(WithMaxHistorySize(maxHistory))
		snapshots := []*State{s}
		contents := []map[string]any{s.Data()}

		ops := rapid.IntRange(1, 30).Draw(t, "ops")
		for i := 0; i < ops; i++ {
			key := rapid.StringMatching(`[a-c]`).Draw(t, "key")
			switch rapid.IntRange(0, 2).Draw(t, "op") {
			case 0:
				next, err := s.CopyWith(map[string]any{key: rapid.Int().Draw(t, "val")}, nil)
				require.NoError(t, err)
				s = next
			case 1:
				s = s.Remove(key)
			case 2:
				s = s.Clear()
			}
			snapshots = append(snapshots, s)
			contents = append(contents, s.Data())

			require.LessOrEqual(t, len(s.ChangeHistory()), maxHistory)
		}

		// Every earlier snapshot still holds exactly what it held when taken.
		for i, snap := range snapshots {
			require.Equal(t, contents[i], snap.Data(), "snapshot %d mutated", i)
		}
	})
}
