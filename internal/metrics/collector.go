// Package metrics provides in-memory runtime statistics collection.
package metrics

import (
	"math"
	"sort"
	"sync"
	"time"
)

// OperationMetrics holds aggregated metrics for a single operation type.
type OperationMetrics struct {
	Count     int64
	Failures  int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration

	// Token metrics (only for LLM operations)
	TotalInputTokens  int64
	TotalOutputTokens int64
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Name        string
	Count       int64
	Failures    int64
	TotalTimeMs int64
	AvgTimeMs   float64
	MinTimeMs   int64
	MaxTimeMs   int64

	// Token stats (nil if not applicable)
	TotalInputTokens  *int64
	TotalOutputTokens *int64
}

// Snapshot represents the process statistics at a point in time.
type Snapshot struct {
	UptimeSeconds float64
	LLMGenerate   *OperationSnapshot
	Embedding     *OperationSnapshot
	Classify      *OperationSnapshot
	Enrichment    *OperationSnapshot
	Specialist    *OperationSnapshot
	MemorySave    *OperationSnapshot
	MemorySearch  *OperationSnapshot
	Delivery      *OperationSnapshot
	Pipeline      *OperationSnapshot
	Counters      map[string]int64
}

// Operations returns the non-empty operation snapshots in a stable order.
func (s Snapshot) Operations() []*OperationSnapshot {
	all := []*OperationSnapshot{
		s.Pipeline, s.Classify, s.Enrichment, s.Specialist, s.LLMGenerate,
		s.Embedding, s.MemorySave, s.MemorySearch, s.Delivery,
	}
	out := make([]*OperationSnapshot, 0, len(all))
	for _, op := range all {
		if op != nil {
			out = append(out, op)
		}
	}
	return out
}

// Operation names for the collector.
const (
	OpLLMGenerate  = "llm_generate"
	OpEmbedding    = "embedding"
	OpClassify     = "classify"
	OpEnrichment   = "enrichment"
	OpSpecialist   = "specialist"
	OpMemorySave   = "memory_save"
	OpMemorySearch = "memory_search"
	OpDelivery     = "delivery"
	OpPipeline     = "pipeline"
)

// Counter names.
const (
	CounterClassifierFallback = "classifier_fallback"
	CounterEnrichmentDegraded = "enrichment_degraded"
	CounterSpecialistFailed   = "specialist_failed"
	CounterMemoryFailed       = "memory_failed"
	CounterDeliveryFailed     = "delivery_failed"
	CounterSearchFallback     = "search_fallback"
)

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe and safe on a nil receiver.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*OperationMetrics
	counters  map[string]int64
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
		counters:  make(map[string]int64),
	}
}

// getOrCreate returns existing metrics or creates new ones for an operation.
// Caller must hold write lock.
func (c *Collector) getOrCreate(op string) *OperationMetrics {
	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{MinTime: time.Duration(math.MaxInt64)}
		c.ops[op] = m
	}
	return m
}

func (m *OperationMetrics) observe(duration time.Duration) {
	m.Count++
	m.TotalTime += duration
	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
}

// RecordTiming records timing for an operation.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.getOrCreate(op).observe(duration)
}

// RecordOutcome records timing for an operation and counts it as failed when err != nil.
func (c *Collector) RecordOutcome(op string, duration time.Duration, err error) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.getOrCreate(op)
	m.observe(duration)
	if err != nil {
		m.Failures++
	}
}

// RecordLLMUsage records timing and token usage for an LLM operation.
func (c *Collector) RecordLLMUsage(op string, duration time.Duration, inputTokens, outputTokens int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.observe(duration)
	m.TotalInputTokens += inputTokens
	m.TotalOutputTokens += outputTokens
}

// Increment bumps a named counter.
func (c *Collector) Increment(counter string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[counter]++
}

// snapshotOp creates a snapshot for an operation, returning nil if no data.
func snapshotOp(name string, m *OperationMetrics, includeTokens bool) *OperationSnapshot {
	if m == nil || m.Count == 0 {
		return nil
	}

	snap := &OperationSnapshot{
		Name:        name,
		Count:       m.Count,
		Failures:    m.Failures,
		TotalTimeMs: m.TotalTime.Milliseconds(),
		AvgTimeMs:   float64(m.TotalTime.Milliseconds()) / float64(m.Count),
		MinTimeMs:   m.MinTime.Milliseconds(),
		MaxTimeMs:   m.MaxTime.Milliseconds(),
	}

	if includeTokens && (m.TotalInputTokens > 0 || m.TotalOutputTokens > 0) {
		totalIn := m.TotalInputTokens
		totalOut := m.TotalOutputTokens
		snap.TotalInputTokens = &totalIn
		snap.TotalOutputTokens = &totalOut
	}

	return snap
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	counters := make(map[string]int64, len(c.counters))
	for k, v := range c.counters {
		counters[k] = v
	}

	return Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		LLMGenerate:   snapshotOp(OpLLMGenerate, c.ops[OpLLMGenerate], true),
		Embedding:     snapshotOp(OpEmbedding, c.ops[OpEmbedding], false),
		Classify:      snapshotOp(OpClassify, c.ops[OpClassify], false),
		Enrichment:    snapshotOp(OpEnrichment, c.ops[OpEnrichment], false),
		Specialist:    snapshotOp(OpSpecialist, c.ops[OpSpecialist], false),
		MemorySave:    snapshotOp(OpMemorySave, c.ops[OpMemorySave], false),
		MemorySearch:  snapshotOp(OpMemorySearch, c.ops[OpMemorySearch], false),
		Delivery:      snapshotOp(OpDelivery, c.ops[OpDelivery], false),
		Pipeline:      snapshotOp(OpPipeline, c.ops[OpPipeline], false),
		Counters:      counters,
	}
}

// CounterNames returns the counter names present in s, sorted.
func (s Snapshot) CounterNames() []string {
	names := make([]string, 0, len(s.Counters))
	for k := range s.Counters {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
