package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"dealflow/internal/metrics"
	"dealflow/internal/models"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RuleSource supplies the enabled rules of a workspace. The result may lag
// the backing store; refresh cadence belongs to the caller.
type RuleSource interface {
	FetchEnabledRules(ctx context.Context, workspaceID string) ([]AutomationRule, error)
}

// DealSource enumerates the current deals of a workspace for sweeps.
type DealSource interface {
	ListDeals(ctx context.Context, workspaceID string) ([]models.Deal, error)
}

// TaskSink durably stores tasks. It is the only collaborator whose failure
// the engine handles.
type TaskSink interface {
	CreateTask(ctx context.Context, req TaskCreationRequest) (*models.Task, error)
}

// TaskCreatedEvent is emitted once per successful sink call.
type TaskCreatedEvent struct {
	WorkspaceID string    `json:"workspace_id"`
	RuleID      string    `json:"rule_id"`
	DealID      string    `json:"deal_id"`
	TaskID      string    `json:"task_id"`
	TaskTitle   string    `json:"task_title"`
	DealTitle   string    `json:"deal_title"`
	CreatedAt   time.Time `json:"created_at"`
}

// AutomationEngine evaluates one workspace's rules against deal events and
// creates at most one task per (rule, deal) for its own lifetime.
type AutomationEngine struct {
	workspaceID string
	rules       RuleSource
	deals       DealSource
	sink        TaskSink
	logger      *logrus.Logger
	tracer      trace.Tracer

	clockMu sync.RWMutex
	now     func() time.Time

	ledger  *FiredLedger
	factory *TaskFactory

	mu       sync.RWMutex
	snapshot []AutomationRule
	observer func(TaskCreatedEvent)

	inflight sync.WaitGroup
}

// NewAutomationEngine 创建工作区自动化引擎
func NewAutomationEngine(workspaceID string, rules RuleSource, deals DealSource, sink TaskSink, logger *logrus.Logger) *AutomationEngine {
	if logger == nil {
		logger = logrus.New()
	}
	e := &AutomationEngine{
		workspaceID: workspaceID,
		rules:       rules,
		deals:       deals,
		sink:        sink,
		logger:      logger,
		tracer:      otel.Tracer("dealflow.automation"),
		now:         time.Now,
		ledger:      NewFiredLedger(),
	}
	e.factory = NewTaskFactory(e.clock)
	return e
}

// SetClock 替换时间源（测试用），可与评估并发调用
func (e *AutomationEngine) SetClock(now func() time.Time) {
	if now == nil {
		return
	}
	e.clockMu.Lock()
	e.now = now
	e.clockMu.Unlock()
}

func (e *AutomationEngine) clock() time.Time {
	e.clockMu.RLock()
	now := e.now
	e.clockMu.RUnlock()
	return now()
}

// OnTaskCreated registers the observer notified after each created task.
func (e *AutomationEngine) OnTaskCreated(fn func(TaskCreatedEvent)) {
	e.mu.Lock()
	e.observer = fn
	e.mu.Unlock()
}

func (e *AutomationEngine) WorkspaceID() string { return e.workspaceID }

func (e *AutomationEngine) Ledger() *FiredLedger { return e.ledger }

// RefreshRules replaces the rule snapshot. When the source fails the engine
// runs with no rules until the next successful refresh.
func (e *AutomationEngine) RefreshRules(ctx context.Context) error {
	if e.rules == nil {
		e.SetRules(nil)
		return nil
	}
	rules, err := e.rules.FetchEnabledRules(ctx, e.workspaceID)
	if err != nil {
		metrics.IncAutomationRuleSourceFailure()
		e.logger.Warnf("automation: fetch rules for workspace %s failed: %v", e.workspaceID, err)
		e.SetRules(nil)
		return err
	}
	e.SetRules(rules)
	return nil
}

// SetRules stores a copy of rules as the current snapshot.
func (e *AutomationEngine) SetRules(rules []AutomationRule) {
	snap := make([]AutomationRule, 0, len(rules))
	for _, r := range rules {
		if r.Enabled {
			snap = append(snap, r)
		}
	}
	e.mu.Lock()
	e.snapshot = snap
	e.mu.Unlock()
}

// Rules 返回当前规则快照的副本
func (e *AutomationEngine) Rules() []AutomationRule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]AutomationRule, len(e.snapshot))
	copy(out, e.snapshot)
	return out
}

func (e *AutomationEngine) rulesFor(category TriggerType) []AutomationRule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []AutomationRule
	for _, r := range e.snapshot {
		if r.Trigger != nil && r.Trigger.Type() == category {
			out = append(out, r)
		}
	}
	return out
}

// CheckNewDeal runs deal_created rules against a freshly created deal.
func (e *AutomationEngine) CheckNewDeal(ctx context.Context, deal models.Deal) {
	ctx, span := e.tracer.Start(ctx, "automation.check_new_deal")
	defer span.End()
	span.SetAttributes(attribute.String("deal.id", deal.ID))
	e.process(ctx, []models.Deal{deal}, dealEvent{category: TriggerDealCreated})
}

// CheckStageChange runs deal_stage_changed rules against one transition.
func (e *AutomationEngine) CheckStageChange(ctx context.Context, deal models.Deal, fromStageID, toStageID string) {
	ctx, span := e.tracer.Start(ctx, "automation.check_stage_change")
	defer span.End()
	span.SetAttributes(
		attribute.String("deal.id", deal.ID),
		attribute.String("stage.from", fromStageID),
		attribute.String("stage.to", toStageID),
	)
	e.process(ctx, []models.Deal{deal}, dealEvent{
		category:    TriggerDealStageChanged,
		fromStageID: fromStageID,
		toStageID:   toStageID,
	})
}

// CheckStaleDeal runs deal_stale rules against one deal.
func (e *AutomationEngine) CheckStaleDeal(ctx context.Context, deal models.Deal) {
	ctx, span := e.tracer.Start(ctx, "automation.check_stale_deal")
	defer span.End()
	span.SetAttributes(attribute.String("deal.id", deal.ID))
	e.process(ctx, []models.Deal{deal}, dealEvent{category: TriggerDealStale})
}

// RunStaleDealsCheck sweeps every deal of the workspace. Deals are not
// enumerated when no deal_stale rule is enabled.
func (e *AutomationEngine) RunStaleDealsCheck(ctx context.Context) {
	ctx, span := e.tracer.Start(ctx, "automation.run_stale_sweep")
	defer span.End()

	if len(e.rulesFor(TriggerDealStale)) == 0 {
		metrics.IncAutomationSweepGated()
		span.SetAttributes(attribute.Bool("sweep.gated", true))
		return
	}
	if e.deals == nil {
		return
	}
	deals, err := e.deals.ListDeals(ctx, e.workspaceID)
	if err != nil {
		span.RecordError(err)
		e.logger.Warnf("automation: list deals for workspace %s failed: %v", e.workspaceID, err)
		return
	}
	metrics.IncAutomationSweep()
	span.SetAttributes(attribute.Int("sweep.deals", len(deals)))
	e.process(ctx, deals, dealEvent{category: TriggerDealStale})
}

type firing struct {
	rule AutomationRule
	deal models.Deal
	req  TaskCreationRequest
}

// process evaluates and marks every matching pair before any submission is
// started, then submits each claimed pair on its own goroutine.
func (e *AutomationEngine) process(ctx context.Context, deals []models.Deal, evt dealEvent) {
	rules := e.rulesFor(evt.category)
	if len(rules) == 0 {
		return
	}
	now := e.clock()

	var claimed []firing
	for _, deal := range deals {
		for _, rule := range rules {
			if !evaluateTrigger(rule, deal, evt, now) {
				continue
			}
			if !e.ledger.TryMark(rule.ID, deal.ID) {
				metrics.IncAutomationDedupSkipped()
				e.logger.Debugf("automation: rule %s already fired for deal %s", rule.ID, deal.ID)
				continue
			}
			claimed = append(claimed, firing{rule: rule, deal: deal, req: e.factory.Build(rule, deal)})
		}
	}

	// submissions outlive the caller: a torn-down caller only drops interest
	subCtx := context.WithoutCancel(ctx)
	for _, f := range claimed {
		e.inflight.Add(1)
		go func(f firing) {
			defer e.inflight.Done()
			e.submit(subCtx, f)
		}(f)
	}
}

func (e *AutomationEngine) submit(ctx context.Context, f firing) {
	ctx, span := e.tracer.Start(ctx, "automation.submit_task")
	defer span.End()
	span.SetAttributes(
		attribute.String("rule.id", f.rule.ID),
		attribute.String("deal.id", f.deal.ID),
		attribute.String("trigger.type", string(f.rule.Trigger.Type())),
	)

	task, err := e.sink.CreateTask(ctx, f.req)
	if err != nil {
		if errors.Is(err, ErrDuplicateAutomationTask) {
			// already persisted by an earlier engine instance; keep the mark
			metrics.IncAutomationSinkDuplicate()
			e.logger.Debugf("automation: task for rule %s deal %s already exists", f.rule.ID, f.deal.ID)
			return
		}
		e.ledger.UnmarkFired(f.rule.ID, f.deal.ID)
		metrics.IncAutomationSubmitFailed()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.WithFields(logrus.Fields{
			"workspace_id": e.workspaceID,
			"rule_id":      f.rule.ID,
			"deal_id":      f.deal.ID,
		}).Warnf("automation: create task failed: %v", err)
		return
	}

	metrics.IncAutomationTaskCreated(string(f.rule.Trigger.Type()))
	e.logger.WithFields(logrus.Fields{
		"workspace_id": e.workspaceID,
		"rule_id":      f.rule.ID,
		"deal_id":      f.deal.ID,
	}).Infof("automation: rule %q created task %q", f.rule.Name, f.req.Title)

	e.mu.RLock()
	observer := e.observer
	e.mu.RUnlock()
	if observer == nil {
		return
	}
	evt := TaskCreatedEvent{
		WorkspaceID: e.workspaceID,
		RuleID:      f.rule.ID,
		DealID:      f.deal.ID,
		TaskTitle:   f.req.Title,
		DealTitle:   f.deal.Title,
		CreatedAt:   e.clock(),
	}
	if task != nil {
		evt.TaskID = task.ID
	}
	observer(evt)
}

// Wait blocks until every in-flight submission has resolved.
func (e *AutomationEngine) Wait() {
	e.inflight.Wait()
}
