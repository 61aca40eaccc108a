package ratelimit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

const defaultMaxKeys = 100000

var ErrCapacityExceeded = errors.New("rate limiter capacity exceeded")

// RateWindow is the counter state for one key.
type RateWindow struct {
	Key         string
	WindowStart time.Time
	WindowEnd   time.Time
	Count       int
}

// MemoryStore keeps windows in process memory behind a single mutex. It
// suits one-instance deployments and tests.
//
// Windows are partitioned by policy and MaxKeys bounds each partition, so
// keys piling up under one policy never crowd out another.
type MemoryStore struct {
	mu         sync.Mutex
	now        func() time.Time
	partitions map[string]map[string]*RateWindow
	maxKeys    int
}

type MemoryStoreConfig struct {
	Now func() time.Time
	// MaxKeys caps the live windows per policy.
	MaxKeys int
}

func NewMemoryStore(cfg MemoryStoreConfig) *MemoryStore {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = defaultMaxKeys
	}
	return &MemoryStore{
		now:        cfg.Now,
		partitions: make(map[string]map[string]*RateWindow),
		maxKeys:    cfg.MaxKeys,
	}
}

// Increment fails with ErrCapacityExceeded when key is new and its policy's
// partition is still full after dropping elapsed windows.
func (m *MemoryStore) Increment(_ context.Context, key string, window time.Duration) (int, time.Time, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	windows := m.partition(key)
	w, ok := windows[key]
	if !ok || !now.Before(w.WindowEnd) {
		if !ok && len(windows) >= m.maxKeys {
			sweepWindows(windows, now)
			if len(windows) >= m.maxKeys {
				return 0, time.Time{}, ErrCapacityExceeded
			}
		}
		w = &RateWindow{Key: key, WindowStart: now, WindowEnd: now.Add(window)}
		windows[key] = w
	}

	w.Count++
	return w.Count, w.WindowEnd, nil
}

func (m *MemoryStore) Decrement(_ context.Context, key string) error {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if w, ok := m.partitions[partitionOf(key)][key]; ok && now.Before(w.WindowEnd) && w.Count > 0 {
		w.Count--
	}
	return nil
}

// Window returns a copy of the current window for key.
func (m *MemoryStore) Window(key string) (RateWindow, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.partitions[partitionOf(key)][key]
	if !ok {
		return RateWindow{}, false
	}
	return *w, true
}

// Sweep drops windows that have elapsed.
func (m *MemoryStore) Sweep() {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, windows := range m.partitions {
		sweepWindows(windows, now)
	}
}

func (m *MemoryStore) partition(key string) map[string]*RateWindow {
	name := partitionOf(key)
	windows, ok := m.partitions[name]
	if !ok {
		windows = make(map[string]*RateWindow)
		m.partitions[name] = windows
	}
	return windows
}

// partitionOf extracts the policy from a limiter key ("rl:<policy>:...").
// Keys in any other shape share the unnamed partition.
func partitionOf(key string) string {
	rest, ok := strings.CutPrefix(key, keyPrefix+":")
	if !ok {
		return ""
	}
	policy, _, found := strings.Cut(rest, ":")
	if !found {
		return ""
	}
	return policy
}

func sweepWindows(windows map[string]*RateWindow, now time.Time) {
	for key, w := range windows {
		if !now.Before(w.WindowEnd) {
			delete(windows, key)
		}
	}
}
