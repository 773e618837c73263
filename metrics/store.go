package metrics

import (
	"sort"
	"sync"
	"time"
)

// Store is an in-memory Collector. Totals cover every record ever seen;
// percentiles cover the retained history only.
//
// Usage:
//
//	store := NewStore(DefaultStoreConfig(), time.Now())
//	store.RecordInvoke(rec)
//	sum := store.Summary()
type Store struct {
	mu sync.RWMutex

	history []InvokeRecord // circular buffer
	cap     int
	head    int
	size    int

	total        int64
	success      int64
	errors       int64
	totalElapsed time.Duration
	min, max     time.Duration

	byInterpreter map[string]*interpreterStats

	startTime time.Time
}

type interpreterStats struct {
	count         int64
	successCount  int64
	totalDuration time.Duration
}

// StoreConfig configures a Store.
type StoreConfig struct {
	// HistoryCapacity is the number of records retained for Recent and percentiles
	HistoryCapacity int
}

// DefaultStoreConfig returns the default configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{HistoryCapacity: 1000}
}

// NewStore creates an empty Store. startTime anchors Summary.Uptime.
func NewStore(config StoreConfig, startTime time.Time) *Store {
	capacity := config.HistoryCapacity
	if capacity < 1 {
		capacity = DefaultStoreConfig().HistoryCapacity
	}
	return &Store{
		history:       make([]InvokeRecord, capacity),
		cap:           capacity,
		byInterpreter: make(map[string]*interpreterStats),
		startTime:     startTime,
	}
}

// RecordInvoke implements Collector.
func (s *Store) RecordInvoke(rec InvokeRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history[s.head] = rec
	s.head = (s.head + 1) % s.cap
	if s.size < s.cap {
		s.size++
	}

	s.total++
	switch rec.Status {
	case StatusSuccess:
		s.success++
	case StatusError:
		s.errors++
	}
	s.totalElapsed += rec.Duration
	if s.total == 1 || rec.Duration < s.min {
		s.min = rec.Duration
	}
	if rec.Duration > s.max {
		s.max = rec.Duration
	}

	stats, ok := s.byInterpreter[rec.Interpreter]
	if !ok {
		stats = &interpreterStats{}
		s.byInterpreter[rec.Interpreter] = stats
	}
	stats.count++
	if rec.Status == StatusSuccess {
		stats.successCount++
	}
	stats.totalDuration += rec.Duration
}

// Summary implements Collector.
func (s *Store) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := Summary{
		Total:         s.total,
		Success:       s.success,
		Errors:        s.errors,
		MinDuration:   s.min,
		MaxDuration:   s.max,
		Uptime:        time.Since(s.startTime),
		ByInterpreter: make(map[string]*InterpreterStats, len(s.byInterpreter)),
	}
	if s.total > 0 {
		sum.MeanDuration = s.totalElapsed / time.Duration(s.total)
	}

	durations := make([]time.Duration, 0, s.size)
	for _, rec := range s.recentLocked(s.size) {
		durations = append(durations, rec.Duration)
	}
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
	sum.P50 = percentile(durations, 50)
	sum.P95 = percentile(durations, 95)

	for name, st := range s.byInterpreter {
		is := &InterpreterStats{Count: st.count}
		if st.count > 0 {
			is.SuccessRate = float64(st.successCount) / float64(st.count) * 100
			is.AvgDuration = st.totalDuration / time.Duration(st.count)
		}
		sum.ByInterpreter[name] = is
	}
	return sum
}

// percentile uses nearest-rank on sorted input.
func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := (p*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}

// Recent implements Collector.
func (s *Store) Recent(limit int) []InvokeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recentLocked(limit)
}

func (s *Store) recentLocked(limit int) []InvokeRecord {
	if limit <= 0 || s.size == 0 {
		return []InvokeRecord{}
	}
	if limit > s.size {
		limit = s.size
	}
	out := make([]InvokeRecord, limit)
	for i := 0; i < limit; i++ {
		idx := (s.head - limit + i + s.cap) % s.cap
		out[i] = s.history[idx]
	}
	return out
}

var _ Collector = (*Store)(nil)
