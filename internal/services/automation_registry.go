package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"dealflow/internal/models"

	"github.com/sirupsen/logrus"
)

// AutomationRegistryConfig 注册表配置
type AutomationRegistryConfig struct {
	SweepEnabled        bool
	Sweep               SweepSchedule
	RuleRefreshInterval time.Duration
}

type registeredEngine struct {
	engine *AutomationEngine
	sweep  *SweepHandle
	ready  chan struct{} // closed once the first rule snapshot is loaded
}

// WorkspaceDiscoverer lists the workspaces that have at least one enabled
// rule of the given trigger type.
type WorkspaceDiscoverer interface {
	WorkspacesWithEnabledTrigger(ctx context.Context, trigger TriggerType) ([]string, error)
}

// AutomationRegistry owns one engine per workspace. Engines never share a
// ledger; evicting an engine discards its ledger.
type AutomationRegistry struct {
	rules  RuleSource
	deals  DealSource
	sink   TaskSink
	logger *logrus.Logger
	cfg    AutomationRegistryConfig

	baseCtx context.Context
	cancel  context.CancelFunc

	mu        sync.Mutex
	engines   map[string]*registeredEngine
	observers []func(TaskCreatedEvent)
	refresher *SweepHandle
}

func NewAutomationRegistry(rules RuleSource, deals DealSource, sink TaskSink, cfg AutomationRegistryConfig, logger *logrus.Logger) *AutomationRegistry {
	if logger == nil {
		logger = logrus.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &AutomationRegistry{
		rules:   rules,
		deals:   deals,
		sink:    sink,
		logger:  logger,
		cfg:     cfg,
		baseCtx: ctx,
		cancel:  cancel,
		engines: make(map[string]*registeredEngine),
	}
}

// Subscribe adds an observer to every current and future engine.
func (r *AutomationRegistry) Subscribe(fn func(TaskCreatedEvent)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, fn)
}

func (r *AutomationRegistry) notify(evt TaskCreatedEvent) {
	r.mu.Lock()
	observers := append([]func(TaskCreatedEvent){}, r.observers...)
	r.mu.Unlock()
	for _, fn := range observers {
		fn(evt)
	}
}

// Engine returns the workspace's engine, creating it on first use: the rule
// snapshot is loaded and the stale sweep scheduled.
func (r *AutomationRegistry) Engine(ctx context.Context, workspaceID string) *AutomationEngine {
	r.mu.Lock()
	if re, ok := r.engines[workspaceID]; ok {
		r.mu.Unlock()
		select {
		case <-re.ready:
		case <-ctx.Done():
		}
		return re.engine
	}
	engine := NewAutomationEngine(workspaceID, r.rules, r.deals, r.sink, r.logger)
	engine.OnTaskCreated(r.notify)
	re := &registeredEngine{engine: engine, ready: make(chan struct{})}
	r.engines[workspaceID] = re
	r.mu.Unlock()

	// the first snapshot outlives a cancelled request
	_ = engine.RefreshRules(context.WithoutCancel(ctx))
	close(re.ready)
	if r.cfg.SweepEnabled {
		handle := engine.ScheduleStaleSweep(r.baseCtx, r.cfg.Sweep)
		r.mu.Lock()
		if cur, ok := r.engines[workspaceID]; ok && cur == re {
			re.sweep = handle
			r.mu.Unlock()
		} else {
			// evicted while loading
			r.mu.Unlock()
			handle.Stop()
		}
	}
	r.logger.Infof("automation: engine started for workspace %s (%d rules)", workspaceID, len(engine.Rules()))
	return engine
}

// Lookup 返回已存在的引擎，不创建
func (r *AutomationRegistry) Lookup(workspaceID string) (*AutomationEngine, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	re, ok := r.engines[workspaceID]
	if !ok {
		return nil, false
	}
	return re.engine, true
}

// Workspaces 返回已加载引擎的工作区（排序）
func (r *AutomationRegistry) Workspaces() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.engines))
	for ws := range r.engines {
		out = append(out, ws)
	}
	sort.Strings(out)
	return out
}

// RefreshAll reloads the rule snapshot of every engine.
func (r *AutomationRegistry) RefreshAll(ctx context.Context) {
	for _, ws := range r.Workspaces() {
		if engine, ok := r.Lookup(ws); ok {
			_ = engine.RefreshRules(ctx)
		}
	}
}

// DiscoverStaleWorkspaces loads an engine, and so schedules a sweep, for
// every workspace with an enabled deal_stale rule. Idle workspaces otherwise
// get no engine until their next deal event. It is a no-op when sweeps are
// disabled or the rule source cannot list workspaces.
func (r *AutomationRegistry) DiscoverStaleWorkspaces(ctx context.Context) {
	if !r.cfg.SweepEnabled {
		return
	}
	disc, ok := r.rules.(WorkspaceDiscoverer)
	if !ok {
		return
	}
	workspaces, err := disc.WorkspacesWithEnabledTrigger(ctx, TriggerDealStale)
	if err != nil {
		r.logger.Warnf("automation: discover workspaces failed: %v", err)
		return
	}
	for _, ws := range workspaces {
		if ctx.Err() != nil {
			return
		}
		if _, loaded := r.Lookup(ws); !loaded {
			r.Engine(ctx, ws)
		}
	}
}

// StartRuleRefresher discovers stale-rule workspaces at once, then refreshes
// all engines and repeats discovery on RuleRefreshInterval until Close. A
// non-positive interval leaves only the initial discovery.
func (r *AutomationRegistry) StartRuleRefresher() {
	ctx, cancel := context.WithCancel(r.baseCtx)
	h := &SweepHandle{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		r.DiscoverStaleWorkspaces(ctx)
		if r.cfg.RuleRefreshInterval <= 0 {
			return
		}
		ticker := time.NewTicker(r.cfg.RuleRefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.RefreshAll(ctx)
				r.DiscoverStaleWorkspaces(ctx)
			}
		}
	}()
	r.mu.Lock()
	r.refresher = h
	r.mu.Unlock()
}

// Evict tears the workspace engine down: its sweep is stopped, in-flight
// submissions are drained and its ledger is dropped.
func (r *AutomationRegistry) Evict(workspaceID string) {
	r.mu.Lock()
	re, ok := r.engines[workspaceID]
	delete(r.engines, workspaceID)
	r.mu.Unlock()
	if !ok {
		return
	}
	if re.sweep != nil {
		re.sweep.Stop()
	}
	re.engine.Wait()
	r.logger.Infof("automation: engine for workspace %s evicted", workspaceID)
}

// Close stops every engine and waits for in-flight submissions.
func (r *AutomationRegistry) Close() {
	r.mu.Lock()
	refresher := r.refresher
	r.refresher = nil
	r.mu.Unlock()
	if refresher != nil {
		refresher.Stop()
	}
	for _, ws := range r.Workspaces() {
		r.Evict(ws)
	}
	r.cancel()
}

// DealCreated 实现 DealEventListener
func (r *AutomationRegistry) DealCreated(ctx context.Context, deal models.Deal) {
	r.Engine(ctx, deal.WorkspaceID).CheckNewDeal(ctx, deal)
}

// DealStageChanged 实现 DealEventListener
func (r *AutomationRegistry) DealStageChanged(ctx context.Context, deal models.Deal, fromStageID, toStageID string) {
	r.Engine(ctx, deal.WorkspaceID).CheckStageChange(ctx, deal, fromStageID, toStageID)
}
