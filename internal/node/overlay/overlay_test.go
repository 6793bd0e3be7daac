package overlay

import (
	"context"
	"fmt"
	"testing"

	"MovieDHT/internal/domain"
	"MovieDHT/internal/node/chord"
	"MovieDHT/internal/node/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func movie(id, title string) domain.Record {
	return domain.NewRecord(id, map[string]string{"title": title})
}

func names(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return out
}

func newOverlay(t *testing.T, protocol string, members int, mutate ...func(*config.DHTConfig)) *DHT {
	t.Helper()
	cfg := config.DefaultConfig().DHT
	cfg.Protocol = protocol
	cfg.IDBits = 32
	cfg.RouteCacheSize = 0
	for _, m := range mutate {
		m(&cfg)
	}
	d, err := NewFromConfig(cfg, nil)
	require.NoError(t, err)
	if members > 0 {
		_, err = d.JoinAll(names("node", members))
		require.NoError(t, err)
	}
	return d
}

// keyWithID finds a key string that hashes onto target.
func keyWithID(t *testing.T, sp domain.Space, target domain.ID) string {
	t.Helper()
	for i := 0; i < 1<<20; i++ {
		k := fmt.Sprintf("movie-%d", i)
		if sp.NewIdFromString(k) == target {
			return k
		}
	}
	t.Fatalf("no key hashes to %d", target)
	return ""
}

// fixedRing wraps an 8-bit ring with members at the given ids.
func fixedRing(t *testing.T, r int, ids ...domain.ID) (*DHT, domain.Space) {
	t.Helper()
	sp := domain.MustSpace(8, domain.HashXX)
	ring := chord.New(sp)
	for _, id := range ids {
		require.NoError(t, ring.Join(domain.Node{ID: id, Name: fmt.Sprintf("n%02x", uint64(id))}))
	}
	d, err := New(ring, WithReplication(r))
	require.NoError(t, err)
	return d, sp
}

func TestEmptyOverlay(t *testing.T) {
	ctx := context.Background()
	d := newOverlay(t, config.ProtocolRing, 0)

	_, err := d.Put(ctx, "Heat", movie("1", "Heat"))
	assert.ErrorIs(t, err, domain.ErrEmptyOverlay)
	_, err = d.Get(ctx, "Heat")
	assert.ErrorIs(t, err, domain.ErrEmptyOverlay)
	_, err = d.GetParallel(ctx, "Heat")
	assert.ErrorIs(t, err, domain.ErrEmptyOverlay)
	_, err = d.Update(ctx, "Heat", "1", movie("1", "Heat"))
	assert.ErrorIs(t, err, domain.ErrEmptyOverlay)
	_, err = d.Delete(ctx, "Heat", "1")
	assert.ErrorIs(t, err, domain.ErrEmptyOverlay)

	_, err = d.Leave("ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLastLeaveEmptiesOverlay(t *testing.T) {
	ctx := context.Background()
	d := newOverlay(t, config.ProtocolRing, 0)

	n, err := d.Join("solo")
	require.NoError(t, err)
	owner, err := d.Put(ctx, "Alien", movie("7", "Alien"))
	require.NoError(t, err)
	assert.Equal(t, n, owner)

	_, err = d.Leave("solo")
	require.NoError(t, err)
	assert.Zero(t, d.Len())
	_, err = d.Get(ctx, "Alien")
	assert.ErrorIs(t, err, domain.ErrEmptyOverlay)

	// A fresh join under the same name starts with an empty store.
	_, err = d.Join("solo")
	require.NoError(t, err)
	res, err := d.Get(ctx, "Alien")
	require.NoError(t, err)
	assert.False(t, res.Found())
}

func TestDuplicateJoinRejected(t *testing.T) {
	for _, protocol := range []string{config.ProtocolRing, config.ProtocolMesh, config.ProtocolModulo} {
		t.Run(protocol, func(t *testing.T) {
			d := newOverlay(t, protocol, 0)
			_, err := d.Join("alpha")
			require.NoError(t, err)
			_, err = d.Join("alpha")
			assert.ErrorIs(t, err, domain.ErrDuplicateIdentifier)
			assert.Equal(t, 1, d.Len())
		})
	}
}

func TestUnknownProtocol(t *testing.T) {
	cfg := config.DefaultConfig().DHT
	cfg.Protocol = "koorde"
	_, err := NewFromConfig(cfg, nil)
	assert.ErrorIs(t, err, domain.ErrUnknownTopology)
}

func TestPutGetKeepsDuplicateTitles(t *testing.T) {
	ctx := context.Background()
	d := newOverlay(t, config.ProtocolRing, 16)

	_, err := d.Put(ctx, "Solaris", movie("1", "Solaris 1972"))
	require.NoError(t, err)
	_, err = d.Put(ctx, "  Solaris ", movie("2", "Solaris 2002"))
	require.NoError(t, err)

	res, err := d.Get(ctx, "Solaris")
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.Equal(t, "1", res.Records[0].ID)
	assert.Equal(t, "2", res.Records[1].ID)
	assert.False(t, res.FromReplica)
	assert.Equal(t, res.Primary, res.Owner)
	assert.GreaterOrEqual(t, res.Hops, 1)

	res, err = d.Get(ctx, "Stalker")
	require.NoError(t, err)
	assert.False(t, res.Found())

	_, err = d.Get(ctx, "   ")
	assert.ErrorIs(t, err, domain.ErrInvalidKey)
}

func TestUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	d := newOverlay(t, config.ProtocolRing, 12)

	_, err := d.Put(ctx, "Ran", movie("10", "Ran"))
	require.NoError(t, err)

	ok, err := d.Update(ctx, "Ran", "10", movie("10", "Ran (restored)"))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = d.Update(ctx, "Ran", "99", movie("99", "nope"))
	require.NoError(t, err)
	assert.False(t, ok)

	res, err := d.Get(ctx, "Ran")
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "Ran (restored)", res.Records[0].Attr("title"))

	ok, err = d.Delete(ctx, "Ran", "10")
	require.NoError(t, err)
	assert.True(t, ok)
	res, err = d.Get(ctx, "Ran")
	require.NoError(t, err)
	assert.False(t, res.Found())
}

func TestDeleteAbsentIsIdempotent(t *testing.T) {
	ctx := context.Background()
	d := newOverlay(t, config.ProtocolRing, 10)
	for i := range 30 {
		_, err := d.Put(ctx, fmt.Sprintf("title-%d", i), movie(fmt.Sprint(i), "x"))
		require.NoError(t, err)
	}
	before := d.Views()

	for _, tc := range []struct{ key, id string }{
		{"title-3", "nope"},
		{"missing", "3"},
	} {
		ok, err := d.Delete(ctx, tc.key, tc.id)
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.Equal(t, before, d.Views())

	ok, err := d.Delete(ctx, "title-3", "3")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = d.Delete(ctx, "title-3", "3")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteForgetsHotKeyWithLastRecord(t *testing.T) {
	ctx := context.Background()
	d := newOverlay(t, config.ProtocolRing, 8)
	_, err := d.Put(ctx, "Heat", movie("1", "1995"))
	require.NoError(t, err)
	_, err = d.Put(ctx, "Heat", movie("2", "1986"))
	require.NoError(t, err)
	_, err = d.Get(ctx, "Heat")
	require.NoError(t, err)

	hotKeys := func() []string {
		var out []string
		for _, h := range d.HotKeys(10) {
			out = append(out, h.Key)
		}
		return out
	}

	ok, err := d.Delete(ctx, "Heat", "1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, hotKeys(), "Heat", "one record left")

	ok, err = d.Delete(ctx, "  Heat ", "2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotContains(t, hotKeys(), "Heat")
}

func TestReadFromOppositeReplica(t *testing.T) {
	ctx := context.Background()
	d, sp := fixedRing(t, 1, 0x10, 0x40, 0x80, 0xC0)
	key := keyWithID(t, sp, 0x20)

	owner, err := d.Put(ctx, key, movie("1", "x"))
	require.NoError(t, err)
	assert.Equal(t, domain.ID(0x40), owner.ID)

	// Anchor 0xA0 belongs to 0xC0, which holds the only backup.
	_, err = d.LeaveID(0x40)
	require.NoError(t, err)

	res, err := d.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, res.Found())
	assert.True(t, res.FromReplica)
	assert.Equal(t, domain.ID(0x80), res.Primary.ID)
	assert.Equal(t, domain.ID(0xC0), res.Owner.ID)
	assert.Greater(t, res.Hops, 1)
	assert.Equal(t, uint64(1), d.RoutingMetrics().ReplicaReads)
}

func TestReplicaMutationsFollowPrimary(t *testing.T) {
	ctx := context.Background()
	d, sp := fixedRing(t, 1, 0x10, 0x40, 0x80, 0xC0)
	key := keyWithID(t, sp, 0x20)

	_, err := d.Put(ctx, key, movie("1", "old"))
	require.NoError(t, err)
	ok, err := d.Update(ctx, key, "1", movie("1", "new"))
	require.NoError(t, err)
	require.True(t, ok)

	_, err = d.LeaveID(0x40)
	require.NoError(t, err)
	res, err := d.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, res.FromReplica)
	assert.Equal(t, "new", res.Records[0].Attr("title"))

	ok, err = d.Delete(ctx, key, "1")
	require.NoError(t, err)
	assert.True(t, ok)
	res, err = d.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, res.Found())
}

func TestPropertyReplicasSurviveSingleLoss(t *testing.T) {
	ctx := context.Background()
	const members, keys = 24, 40

	for k := range keys {
		key := fmt.Sprintf("film-%d", k)
		for victim := range members {
			d := newOverlay(t, config.ProtocolRing, members, func(c *config.DHTConfig) {
				c.ReplicationFactor = 2
			})
			_, err := d.Put(ctx, key, movie(fmt.Sprint(k), key))
			require.NoError(t, err)

			_, err = d.Leave(fmt.Sprintf("node%d", victim))
			require.NoError(t, err)

			res, err := d.Get(ctx, key)
			require.NoError(t, err)
			require.True(t, res.Found(), "key %s lost after removing node%d", key, victim)
			assert.Equal(t, fmt.Sprint(k), res.Records[0].ID)
		}
	}
}

func TestNoReplicationLosesPrimary(t *testing.T) {
	ctx := context.Background()
	d, sp := fixedRing(t, 0, 0x10, 0x40, 0x80, 0xC0)
	key := keyWithID(t, sp, 0x20)

	_, err := d.Put(ctx, key, movie("1", "x"))
	require.NoError(t, err)
	_, err = d.LeaveID(0x40)
	require.NoError(t, err)

	res, err := d.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, res.Found())
}

func TestMigrationOnLeave(t *testing.T) {
	ctx := context.Background()
	d := newOverlay(t, config.ProtocolRing, 20, func(c *config.DHTConfig) {
		c.ReplicationFactor = 0
		c.MigrateOnLeave = true
	})
	owners := make(map[string]domain.Node)
	for i := range 50 {
		key := fmt.Sprintf("film-%d", i)
		o, err := d.Put(ctx, key, movie(fmt.Sprint(i), key))
		require.NoError(t, err)
		owners[key] = o
	}
	_, err := d.Leave("node3")
	require.NoError(t, err)

	for key := range owners {
		res, err := d.Get(ctx, key)
		require.NoError(t, err)
		assert.True(t, res.Found(), key)
	}
}

func TestOtherTopologies(t *testing.T) {
	ctx := context.Background()
	for _, protocol := range []string{config.ProtocolMesh, config.ProtocolModulo} {
		t.Run(protocol, func(t *testing.T) {
			d := newOverlay(t, protocol, 30)
			for i := range 100 {
				key := fmt.Sprintf("film-%d", i)
				_, err := d.Put(ctx, key, movie(fmt.Sprint(i), key))
				require.NoError(t, err)
			}
			_, err := d.JoinAll(names("late", 5))
			require.NoError(t, err)

			for i := range 100 {
				key := fmt.Sprintf("film-%d", i)
				res, err := d.Get(ctx, key)
				require.NoError(t, err)
				require.True(t, res.Found(), key)
				assert.False(t, res.FromReplica)
			}
			assert.Equal(t, protocol, d.Protocol())
			assert.Equal(t, 35, d.Len())
		})
	}
}

func TestRouteCacheInvalidatedByChurn(t *testing.T) {
	ctx := context.Background()
	d := newOverlay(t, config.ProtocolRing, 8, func(c *config.DHTConfig) {
		c.RouteCacheSize = 64
	})
	_, err := d.Put(ctx, "Brazil", movie("1", "Brazil"))
	require.NoError(t, err)

	first, err := d.Get(ctx, "Brazil")
	require.NoError(t, err)
	second, err := d.Get(ctx, "Brazil")
	require.NoError(t, err)
	assert.Equal(t, first.Owner, second.Owner)

	m, ok := d.CacheMetrics()
	require.True(t, ok)
	assert.Equal(t, int64(2), m.Hits)

	_, err = d.Join("newcomer")
	require.NoError(t, err)
	m, _ = d.CacheMetrics()
	assert.Zero(t, m.EntryCount)

	res, err := d.Get(ctx, "Brazil")
	require.NoError(t, err)
	assert.True(t, res.Found())
}

func TestSnapshot(t *testing.T) {
	ctx := context.Background()
	d := newOverlay(t, config.ProtocolRing, 6, func(c *config.DHTConfig) {
		c.ReplicationFactor = 1
	})
	for i := range 10 {
		_, err := d.Put(ctx, fmt.Sprintf("film-%d", i), movie(fmt.Sprint(i), "x"))
		require.NoError(t, err)
	}
	_, err := d.Get(ctx, "film-1")
	require.NoError(t, err)

	snap := d.Snapshot(true, 5)
	assert.Equal(t, "ring", snap.Protocol)
	assert.Equal(t, 6, snap.Members)
	assert.Equal(t, 20, snap.Records)
	require.Len(t, snap.Nodes, 6)
	assert.Len(t, snap.Nodes[0].Fingers, 32)
	assert.Nil(t, snap.Cache)
	require.NotEmpty(t, snap.HotKeys)
	assert.Equal(t, "film-1", snap.HotKeys[0].Key)

	brief := d.Snapshot(false, 0)
	assert.Empty(t, brief.Nodes)
	assert.Equal(t, 20, brief.Records)
}
