// Package telemetry aggregates search activity in memory for status
// reporting. Nothing leaves the process.
package telemetry

import (
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Aman-CERP/ragpipe/internal/tokenize"
)

// LatencyBucket is one bar of the latency histogram.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// SearchEvent is one completed or failed search.
type SearchEvent struct {
	Query   string
	Task    string
	Results int
	Latency time.Duration
	Err     error
}

// TermCount is a query term and how often it was searched.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	TotalQueries      int64                   `json:"total_queries"`
	FailedQueries     int64                   `json:"failed_queries"`
	ZeroResultCount   int64                   `json:"zero_result_count"`
	ExactRepeatCount  int64                   `json:"exact_repeat_count"`
	TaskCounts        map[string]int64        `json:"task_counts"`
	Latency           map[LatencyBucket]int64 `json:"latency"`
	TopTerms          []TermCount             `json:"top_terms"`
	ZeroResultQueries []string                `json:"zero_result_queries"`
	Since             time.Time               `json:"since"`
}

// RepeatRate is the fraction of queries seen before.
func (s Snapshot) RepeatRate() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ExactRepeatCount) / float64(s.TotalQueries)
}

// Config bounds the memory used by Metrics.
type Config struct {
	TopTermsCapacity    int
	ZeroResultsCapacity int
	RecentCapacity      int
}

// DefaultConfig returns the default capacities.
func DefaultConfig() Config {
	return Config{
		TopTermsCapacity:    100,
		ZeroResultsCapacity: 20,
		RecentCapacity:      500,
	}
}

// Metrics collects search telemetry. Safe for concurrent use.
type Metrics struct {
	mu sync.Mutex

	total       int64
	failed      int64
	zeroResults int64
	repeats     int64
	tasks       map[string]int64
	latency     map[LatencyBucket]int64
	terms       *lru.Cache[string, int64]
	recent      *lru.Cache[string, struct{}]
	zeroQueries []string
	zeroCap     int
	since       time.Time
}

// New creates a collector. Non-positive capacities take defaults.
func New(cfg Config) *Metrics {
	def := DefaultConfig()
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = def.TopTermsCapacity
	}
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = def.ZeroResultsCapacity
	}
	if cfg.RecentCapacity <= 0 {
		cfg.RecentCapacity = def.RecentCapacity
	}

	terms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	recent, _ := lru.New[string, struct{}](cfg.RecentCapacity)

	return &Metrics{
		tasks:   make(map[string]int64),
		latency: make(map[LatencyBucket]int64),
		terms:   terms,
		recent:  recent,
		zeroCap: cfg.ZeroResultsCapacity,
		since:   time.Now(),
	}
}

// Record adds one search to the counters.
func (m *Metrics) Record(e SearchEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total++
	m.tasks[e.Task]++
	m.latency[LatencyToBucket(e.Latency)]++

	if e.Err != nil {
		m.failed++
	} else if e.Results == 0 {
		m.zeroResults++
		m.zeroQueries = append(m.zeroQueries, e.Query)
		if len(m.zeroQueries) > m.zeroCap {
			m.zeroQueries = m.zeroQueries[len(m.zeroQueries)-m.zeroCap:]
		}
	}

	key := hashQuery(e.Query)
	if _, seen := m.recent.Get(key); seen {
		m.repeats++
	} else {
		m.recent.Add(key, struct{}{})
	}

	for _, term := range tokenize.Terms(e.Query) {
		if len(term) < 3 {
			continue
		}
		n, _ := m.terms.Get(term)
		m.terms.Add(term, n+1)
	}
}

// Snapshot copies the current counters. TopTerms holds at most limit
// entries, most frequent first; limit <= 0 returns all tracked terms.
func (m *Metrics) Snapshot(limit int) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		TotalQueries:      m.total,
		FailedQueries:     m.failed,
		ZeroResultCount:   m.zeroResults,
		ExactRepeatCount:  m.repeats,
		TaskCounts:        make(map[string]int64, len(m.tasks)),
		Latency:           make(map[LatencyBucket]int64, len(m.latency)),
		ZeroResultQueries: slices.Clone(m.zeroQueries),
		Since:             m.since,
	}
	for k, v := range m.tasks {
		s.TaskCounts[k] = v
	}
	for k, v := range m.latency {
		s.Latency[k] = v
	}

	for _, term := range m.terms.Keys() {
		if n, ok := m.terms.Peek(term); ok {
			s.TopTerms = append(s.TopTerms, TermCount{Term: term, Count: n})
		}
	}
	slices.SortStableFunc(s.TopTerms, func(a, b TermCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return strings.Compare(a.Term, b.Term)
	})
	if limit > 0 && len(s.TopTerms) > limit {
		s.TopTerms = s.TopTerms[:limit]
	}
	return s
}

// Reset clears every counter.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total, m.failed, m.zeroResults, m.repeats = 0, 0, 0, 0
	m.tasks = make(map[string]int64)
	m.latency = make(map[LatencyBucket]int64)
	m.terms.Purge()
	m.recent.Purge()
	m.zeroQueries = nil
	m.since = time.Now()
}

func hashQuery(q string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(q))))
	return hex.EncodeToString(sum[:8])
}
