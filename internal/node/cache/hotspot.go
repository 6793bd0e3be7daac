package cache

import (
	"math"
	"sort"
	"sync"
	"time"
)

// HotKeyDetector tracks per-key request rates using exponential decay to
// flag keys read far more often than the rest.
type HotKeyDetector struct {
	threshold float64 // decayed requests/second above which a key is hot
	decayRate float64 // decay factor γ applied per elapsed second

	entries map[string]*HotKeyEntry
	mu      sync.RWMutex
	now     func() time.Time
}

// HotKeyEntry tracks the decayed average request rate for a key.
type HotKeyEntry struct {
	Average         float64 // H_t = γ^Δt · H_{t-1} + 1
	LastRequestTime int64   // Unix seconds of the last request
	TotalRequests   int64
}

// HotKey is one row of the hot key report.
type HotKey struct {
	Key     string  `json:"key"`
	Rate    float64 `json:"rate"`
	Total   int64   `json:"total"`
	IsAbove bool    `json:"hot"`
}

// NewHotKeyDetector creates a detector with the given parameters.
//
// Recommended values:
//   - threshold: 50 (keys read more than 50 times/second are hot)
//   - decayRate: 0.65
func NewHotKeyDetector(threshold, decayRate float64) *HotKeyDetector {
	return &HotKeyDetector{
		threshold: threshold,
		decayRate: decayRate,
		entries:   make(map[string]*HotKeyEntry),
		now:       time.Now,
	}
}

// RecordAccess records a read of key and reports whether it is now hot.
//
//	same second:      H_t = H_{t-1} + 1
//	different second: H_t = γ^Δt · H_{t-1} + 1
func (hd *HotKeyDetector) RecordAccess(key string) bool {
	hd.mu.Lock()
	defer hd.mu.Unlock()

	now := hd.now().Unix()
	e, ok := hd.entries[key]
	if !ok {
		hd.entries[key] = &HotKeyEntry{Average: 1, LastRequestTime: now, TotalRequests: 1}
		return 1 >= hd.threshold
	}

	e.TotalRequests++
	if e.LastRequestTime == now {
		e.Average++
	} else {
		e.Average = e.Average*math.Pow(hd.decayRate, float64(now-e.LastRequestTime)) + 1
		e.LastRequestTime = now
	}
	return e.Average >= hd.threshold
}

func (hd *HotKeyDetector) decayed(e *HotKeyEntry, now int64) float64 {
	return e.Average * math.Pow(hd.decayRate, float64(now-e.LastRequestTime))
}

// IsHot checks if key is currently classified as hot.
func (hd *HotKeyDetector) IsHot(key string) bool {
	hd.mu.RLock()
	defer hd.mu.RUnlock()
	e, ok := hd.entries[key]
	if !ok {
		return false
	}
	return hd.decayed(e, hd.now().Unix()) >= hd.threshold
}

// Top returns up to n keys ordered by decayed rate, highest first.
func (hd *HotKeyDetector) Top(n int) []HotKey {
	hd.mu.RLock()
	defer hd.mu.RUnlock()

	now := hd.now().Unix()
	out := make([]HotKey, 0, len(hd.entries))
	for k, e := range hd.entries {
		rate := hd.decayed(e, now)
		out = append(out, HotKey{Key: k, Rate: rate, Total: e.TotalRequests, IsAbove: rate >= hd.threshold})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rate != out[j].Rate {
			return out[i].Rate > out[j].Rate
		}
		return out[i].Key < out[j].Key
	})
	if n = max(n, 0); len(out) > n {
		out = out[:n]
	}
	return out
}

// Forget drops key, e.g. after it is deleted.
func (hd *HotKeyDetector) Forget(key string) {
	hd.mu.Lock()
	defer hd.mu.Unlock()
	delete(hd.entries, key)
}

// CleanStale removes keys not read within maxAge and returns how many.
func (hd *HotKeyDetector) CleanStale(maxAge time.Duration) int {
	hd.mu.Lock()
	defer hd.mu.Unlock()

	now := hd.now().Unix()
	cleaned := 0
	for k, e := range hd.entries {
		if time.Duration(now-e.LastRequestTime)*time.Second > maxAge {
			delete(hd.entries, k)
			cleaned++
		}
	}
	return cleaned
}
