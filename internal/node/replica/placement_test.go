package replica

import (
	"fmt"
	"testing"

	"MovieDHT/internal/domain"
	"MovieDHT/internal/node/chord"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ring(t *testing.T, ids ...domain.ID) *chord.Ring {
	t.Helper()
	r := chord.New(domain.MustSpace(8, domain.HashXX))
	for _, id := range ids {
		require.NoError(t, r.Join(domain.Node{ID: id, Name: fmt.Sprintf("n%d", id)}))
	}
	return r
}

func ids(nodes []domain.Node) []domain.ID {
	out := make([]domain.ID, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ID)
	}
	return out
}

func TestBackupsStartOppositeTheKey(t *testing.T) {
	r := ring(t, 0x10, 0x40, 0x80, 0xC0)

	// key 0x20: primary 0x40, anchor 0xA0 -> 0xC0
	backups, hops, err := New(2).Backups(r, 0x20, 0x40)
	require.NoError(t, err)
	assert.Equal(t, []domain.ID{0xC0, 0x10}, ids(backups))
	assert.GreaterOrEqual(t, hops, 1)
}

func TestBackupsSkipPrimary(t *testing.T) {
	r := ring(t, 0x10, 0x40, 0x80, 0xC0)

	backups, _, err := New(3).Backups(r, 0x20, 0x40)
	require.NoError(t, err)
	assert.Equal(t, []domain.ID{0xC0, 0x10, 0x80}, ids(backups))
}

func TestBackupsCappedByMembership(t *testing.T) {
	r := ring(t, 0x10, 0x40, 0x80, 0xC0)
	backups, _, err := New(10).Backups(r, 0x20, 0x40)
	require.NoError(t, err)
	assert.Len(t, backups, 3)
	assert.NotContains(t, ids(backups), domain.ID(0x40))

	lone := ring(t, 0x10)
	backups, _, err = New(3).Backups(lone, 0x20, 0x10)
	require.NoError(t, err)
	assert.Empty(t, backups)

	backups, _, err = New(0).Backups(r, 0x20, 0x40)
	require.NoError(t, err)
	assert.Empty(t, backups)
}

func TestBackupsSurvivePrimaryLoss(t *testing.T) {
	r := ring(t, 0x10, 0x40, 0x80, 0xC0)
	before, _, err := New(2).Backups(r, 0x20, 0x40)
	require.NoError(t, err)

	_, err = r.Leave(0x40)
	require.NoError(t, err)

	// The new primary is 0x80; the first backup is still found.
	after, _, err := New(2).Backups(r, 0x20, 0x80)
	require.NoError(t, err)
	assert.Equal(t, before[0], after[0])
}
