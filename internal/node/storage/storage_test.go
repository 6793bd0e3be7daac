package storage

import (
	"strings"
	"testing"

	"MovieDHT/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func movie(id, year string) domain.Record {
	return domain.NewRecord(id, map[string]string{"release_date": year})
}

func TestAddKeepsDuplicateKeys(t *testing.T) {
	s := NewMemoryStorage(nil)
	s.Add("Solaris", movie("1", "1972"))
	s.Add("Solaris", movie("2", "2002"))

	got := s.Get("Solaris")
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "2", got[1].ID)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 2, s.RecordCount())
}

func TestGetReturnsCopies(t *testing.T) {
	s := NewMemoryStorage(nil)
	s.Add("Heat", movie("1", "1995"))

	got := s.Get("Heat")
	got[0].Attrs["release_date"] = "tampered"

	assert.Equal(t, "1995", s.Get("Heat")[0].Attr("release_date"))
	assert.Nil(t, s.Get("missing"))
}

func TestUpdate(t *testing.T) {
	s := NewMemoryStorage(nil)
	s.Add("Heat", movie("1", "1995"))

	assert.True(t, s.Update("Heat", "1", movie("1", "1996")))
	assert.Equal(t, "1996", s.Get("Heat")[0].Attr("release_date"))

	assert.False(t, s.Update("Heat", "9", movie("9", "2000")), "unknown id")
	assert.False(t, s.Update("Ronin", "1", movie("1", "1998")), "unknown key")
}

func TestDeleteDropsEmptyKey(t *testing.T) {
	s := NewMemoryStorage(nil)
	s.Add("Solaris", movie("1", "1972"))
	s.Add("Solaris", movie("2", "2002"))

	assert.True(t, s.Delete("Solaris", "1"))
	assert.True(t, s.Has("Solaris"))
	assert.True(t, s.Delete("Solaris", "2"))
	assert.False(t, s.Has("Solaris"))

	assert.False(t, s.Delete("Solaris", "2"), "already gone")
	assert.Zero(t, s.Len())
}

func TestTakeAndMerge(t *testing.T) {
	src := NewMemoryStorage(nil)
	src.Add("Alien", movie("1", "1979"))
	src.Add("Aliens", movie("2", "1986"))
	src.Add("Heat", movie("3", "1995"))

	moved := src.Take(func(k string) bool { return strings.HasPrefix(k, "Alien") })
	assert.Len(t, moved, 2)
	assert.Equal(t, []string{"Heat"}, src.Keys())

	dst := NewMemoryStorage(nil)
	dst.Add("Alien", movie("0", "2012"))
	dst.Merge(moved)
	assert.Equal(t, []string{"Alien", "Aliens"}, dst.Keys())
	assert.Len(t, dst.Get("Alien"), 2)
	assert.Equal(t, "0", dst.Get("Alien")[0].ID)

	dst.Merge(map[string][]domain.Record{"Alien": {movie("1", "1979")}})
	assert.Len(t, dst.Get("Alien"), 2, "same id under the same key is not duplicated")
}

func TestClear(t *testing.T) {
	s := NewMemoryStorage(nil)
	s.Add("Heat", movie("1", "1995"))
	s.Clear()
	assert.Zero(t, s.Len())
	assert.Empty(t, s.Keys())
}
