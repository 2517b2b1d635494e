package metrics

import (
	"sync"
	"sync/atomic"
)

// rateLimitStats holds counters for rate limit drops (HTTP 429).
type rateLimitStats struct {
	total    uint64
	mu       sync.Mutex
	byPrefix map[string]uint64
}

var rl rateLimitStats

// IncRateLimitDrop increments drop counters for the given prefix.
// Use prefix "global" for global limiter rejections.
func IncRateLimitDrop(prefix string) {
	if prefix == "" {
		prefix = "global"
	}
	atomic.AddUint64(&rl.total, 1)
	rl.mu.Lock()
	if rl.byPrefix == nil {
		rl.byPrefix = make(map[string]uint64)
	}
	rl.byPrefix[prefix]++
	rl.mu.Unlock()
}

// RateLimitSnapshot returns a copy of the current counters.
func RateLimitSnapshot() (total uint64, by map[string]uint64) {
	total = atomic.LoadUint64(&rl.total)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	by = make(map[string]uint64, len(rl.byPrefix))
	for k, v := range rl.byPrefix {
		by[k] = v
	}
	return total, by
}

// automationStats 自动化引擎计数器
type automationStats struct {
	submitFailed      uint64
	dedupSkipped      uint64
	sinkDuplicates    uint64
	sweeps            uint64
	sweepsGated       uint64
	ruleSourceFailure uint64

	mu        sync.Mutex
	byTrigger map[string]uint64 // tasks created per trigger type
}

var auto automationStats

// AutomationStats is a point-in-time copy of the engine counters.
type AutomationStats struct {
	TasksCreated       uint64            `json:"tasks_created"`
	TasksByTrigger     map[string]uint64 `json:"tasks_by_trigger"`
	SubmitFailed       uint64            `json:"submit_failed"`
	DedupSkipped       uint64            `json:"dedup_skipped"`
	SinkDuplicates     uint64            `json:"sink_duplicates"`
	Sweeps             uint64            `json:"sweeps"`
	SweepsGated        uint64            `json:"sweeps_gated"`
	RuleSourceFailures uint64            `json:"rule_source_failures"`
}

func IncAutomationTaskCreated(triggerType string) {
	auto.mu.Lock()
	if auto.byTrigger == nil {
		auto.byTrigger = make(map[string]uint64)
	}
	auto.byTrigger[triggerType]++
	auto.mu.Unlock()
}

func IncAutomationSubmitFailed()      { atomic.AddUint64(&auto.submitFailed, 1) }
func IncAutomationDedupSkipped()      { atomic.AddUint64(&auto.dedupSkipped, 1) }
func IncAutomationSinkDuplicate()     { atomic.AddUint64(&auto.sinkDuplicates, 1) }
func IncAutomationSweep()             { atomic.AddUint64(&auto.sweeps, 1) }
func IncAutomationSweepGated()        { atomic.AddUint64(&auto.sweepsGated, 1) }
func IncAutomationRuleSourceFailure() { atomic.AddUint64(&auto.ruleSourceFailure, 1) }

// AutomationSnapshot returns a copy of the engine counters.
func AutomationSnapshot() AutomationStats {
	s := AutomationStats{
		SubmitFailed:       atomic.LoadUint64(&auto.submitFailed),
		DedupSkipped:       atomic.LoadUint64(&auto.dedupSkipped),
		SinkDuplicates:     atomic.LoadUint64(&auto.sinkDuplicates),
		Sweeps:             atomic.LoadUint64(&auto.sweeps),
		SweepsGated:        atomic.LoadUint64(&auto.sweepsGated),
		RuleSourceFailures: atomic.LoadUint64(&auto.ruleSourceFailure),
	}
	auto.mu.Lock()
	defer auto.mu.Unlock()
	s.TasksByTrigger = make(map[string]uint64, len(auto.byTrigger))
	for k, v := range auto.byTrigger {
		s.TasksByTrigger[k] = v
		s.TasksCreated += v
	}
	return s
}
