package services

import "sync"

type firedKey struct {
	ruleID string
	dealID string
}

// FiredLedger records (rule, deal) pairs that already produced a task.
// A mark lives for the lifetime of the ledger and is only removed by
// UnmarkFired after a failed submission. It is owned by a single engine.
type FiredLedger struct {
	mu    sync.Mutex
	fired map[firedKey]struct{}
}

// NewFiredLedger 创建空账本
func NewFiredLedger() *FiredLedger {
	return &FiredLedger{fired: make(map[firedKey]struct{})}
}

func (l *FiredLedger) HasFired(ruleID, dealID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.fired[firedKey{ruleID, dealID}]
	return ok
}

func (l *FiredLedger) MarkFired(ruleID, dealID string) {
	l.mu.Lock()
	l.fired[firedKey{ruleID, dealID}] = struct{}{}
	l.mu.Unlock()
}

func (l *FiredLedger) UnmarkFired(ruleID, dealID string) {
	l.mu.Lock()
	delete(l.fired, firedKey{ruleID, dealID})
	l.mu.Unlock()
}

// TryMark marks the pair and reports true if it was not already fired.
// Check and mark happen under one lock so two concurrent callers cannot
// both claim the same pair.
func (l *FiredLedger) TryMark(ruleID, dealID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := firedKey{ruleID, dealID}
	if _, ok := l.fired[k]; ok {
		return false
	}
	l.fired[k] = struct{}{}
	return true
}

// Len 返回当前已标记的数量
func (l *FiredLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.fired)
}
