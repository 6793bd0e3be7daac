// Package storage implements the per-node record store.
package storage

import (
	"slices"
	"sync"

	"MovieDHT/internal/domain"
	"MovieDHT/internal/logger"
)

// Storage maps a normalised key to the ordered list of records stored
// under it. A key may hold several records (same title, different film);
// records are told apart by Record.ID.
type Storage struct {
	mu   sync.RWMutex
	data map[string][]domain.Record
	lgr  logger.Logger
}

// NewMemoryStorage returns an empty in-memory store.
func NewMemoryStorage(lgr logger.Logger) *Storage {
	if lgr == nil {
		lgr = &logger.NopLogger{}
	}
	return &Storage{
		data: make(map[string][]domain.Record),
		lgr:  lgr,
	}
}

// Add appends rec to the list under key.
func (s *Storage) Add(key string, rec domain.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append(s.data[key], rec.Clone())
}

// Get returns a copy of the records under key, or nil.
func (s *Storage) Get(key string) []domain.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs, ok := s.data[key]
	if !ok {
		return nil
	}
	out := make([]domain.Record, len(recs))
	for i, r := range recs {
		out[i] = r.Clone()
	}
	return out
}

// Has reports whether key has at least one record.
func (s *Storage) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[key]
	return ok
}

// Update replaces the first record under key whose ID is id.
// It returns false when the key or the record is absent.
func (s *Storage) Update(key, id string, rec domain.Record) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, ok := s.data[key]
	if !ok {
		return false
	}
	for i := range recs {
		if recs[i].ID == id {
			recs[i] = rec.Clone()
			return true
		}
	}
	return false
}

// Delete removes the first record under key whose ID is id. The key is
// dropped once its list is empty. It returns false when nothing matched.
func (s *Storage) Delete(key, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, ok := s.data[key]
	if !ok {
		return false
	}
	i := slices.IndexFunc(recs, func(r domain.Record) bool { return r.ID == id })
	if i < 0 {
		return false
	}
	recs = slices.Delete(recs, i, i+1)
	if len(recs) == 0 {
		delete(s.data, key)
	} else {
		s.data[key] = recs
	}
	return true
}

// Keys returns the stored keys in lexical order.
func (s *Storage) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Take removes and returns every key for which match is true.
func (s *Storage) Take(match func(key string) bool) map[string][]domain.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]domain.Record)
	for k, recs := range s.data {
		if match(k) {
			out[k] = recs
			delete(s.data, k)
		}
	}
	if len(out) > 0 {
		s.lgr.Debug("storage: entries taken", logger.F("keys", len(out)))
	}
	return out
}

// Merge appends the given entries, preserving the order of each list.
// A record whose ID is already stored under the same key is skipped, so
// a node that ends up holding both a primary and a backup copy keeps one.
func (s *Storage) Merge(entries map[string][]domain.Record) {
	if len(entries) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, recs := range entries {
		cur := s.data[k]
		for _, r := range recs {
			if slices.ContainsFunc(cur, func(c domain.Record) bool { return c.ID == r.ID }) {
				continue
			}
			cur = append(cur, r)
		}
		if len(cur) > 0 {
			s.data[k] = cur
		}
	}
	s.lgr.Debug("storage: entries merged", logger.F("keys", len(entries)))
}

// Len returns the number of distinct keys.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// RecordCount returns the number of records across all keys.
func (s *Storage) RecordCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, recs := range s.data {
		n += len(recs)
	}
	return n
}

// Clear drops everything.
func (s *Storage) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.data)
}
