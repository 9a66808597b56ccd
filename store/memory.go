package store

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/use-agent/reviewguard/models"
)

// entry holds a stored result with its creation timestamp. Entries are
// never mutated once stored; Put swaps in a new one.
type entry struct {
	result    *models.AnalysisResult
	createdAt time.Time
	seq       uint64 // insertion sequence, kept across overwrites
}

// MemoryStore is an in-memory Store bounded by entry count. When full, the
// oldest entry is evicted. Scan walks entries in insertion order.
// It is safe for concurrent use.
type MemoryStore struct {
	mu         sync.RWMutex
	entries    map[string]*entry
	order      []string // keys by ascending seq
	nextSeq    uint64
	maxEntries int
	ttl        time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemoryStore creates a MemoryStore holding at most maxEntries results.
// When ttl > 0, results older than ttl are invisible and a background
// goroutine removes them every minute; call Close to stop it.
func NewMemoryStore(maxEntries int, ttl time.Duration) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	s := &MemoryStore{
		entries:    make(map[string]*entry),
		maxEntries: maxEntries,
		ttl:        ttl,
		stop:       make(chan struct{}),
	}
	if ttl > 0 {
		go s.cleanupLoop(time.Minute)
	}
	return s
}

// Put stores result under key. Replacing a key keeps its scan position.
func (s *MemoryStore) Put(_ context.Context, key string, result *models.AnalysisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[key]; ok {
		s.entries[key] = &entry{result: result, createdAt: time.Now(), seq: old.seq}
		return nil
	}

	for len(s.order) >= s.maxEntries {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.entries, oldest)
	}

	s.nextSeq++
	s.entries[key] = &entry{result: result, createdAt: time.Now(), seq: s.nextSeq}
	s.order = append(s.order, key)
	return nil
}

// Get retrieves the result stored under key.
func (s *MemoryStore) Get(_ context.Context, key string) (*models.AnalysisResult, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok || s.expired(e) {
		return nil, ErrNotFound
	}
	return e.result, nil
}

// Scan pages through results in insertion order. The cursor is the
// sequence number of the next entry and stays valid across evictions.
func (s *MemoryStore) Scan(_ context.Context, limit int, cursor string) ([]*models.AnalysisResult, string, error) {
	if limit <= 0 {
		limit = DefaultScanLimit
	}
	var from uint64
	if cursor != "" {
		n, err := strconv.ParseUint(cursor, 10, 64)
		if err != nil {
			return nil, "", models.NewAnalysisError(models.ErrCodeInvalidInput, "invalid cursor", err)
		}
		from = n
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	i := sort.Search(len(s.order), func(i int) bool {
		return s.entries[s.order[i]].seq >= from
	})

	var out []*models.AnalysisResult
	for ; i < len(s.order) && len(out) < limit; i++ {
		if e := s.entries[s.order[i]]; !s.expired(e) {
			out = append(out, e.result)
		}
	}

	next := ""
	if i < len(s.order) {
		next = strconv.FormatUint(s.entries[s.order[i]].seq, 10)
	}
	return out, next, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Len returns the number of stored entries, including expired ones not
// yet cleaned up.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Close stops the cleanup goroutine.
func (s *MemoryStore) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *MemoryStore) expired(e *entry) bool {
	return s.ttl > 0 && time.Since(e.createdAt) > s.ttl
}

// cleanupLoop removes expired entries every interval.
func (s *MemoryStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.removeExpired()
		}
	}
}

func (s *MemoryStore) removeExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.order[:0]
	for _, k := range s.order {
		if s.expired(s.entries[k]) {
			delete(s.entries, k)
			continue
		}
		kept = append(kept, k)
	}
	s.order = kept
}
