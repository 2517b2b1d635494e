package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dealflow/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var errSinkDown = errors.New("sink unavailable")

type fakeRuleSource struct {
	mu    sync.Mutex
	rules map[string][]AutomationRule
	err   error
	calls int32
}

func newFakeRuleSource() *fakeRuleSource {
	return &fakeRuleSource{rules: make(map[string][]AutomationRule)}
}

func (f *fakeRuleSource) set(ws string, rules ...AutomationRule) {
	f.mu.Lock()
	f.rules[ws] = rules
	f.mu.Unlock()
}

func (f *fakeRuleSource) FetchEnabledRules(ctx context.Context, ws string) ([]AutomationRule, error) {
	atomic.AddInt32(&f.calls, 1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]AutomationRule(nil), f.rules[ws]...), nil
}

func (f *fakeRuleSource) WorkspacesWithEnabledTrigger(ctx context.Context, trigger TriggerType) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for ws, rules := range f.rules {
		for _, r := range rules {
			if r.Enabled && r.Trigger != nil && r.Trigger.Type() == trigger {
				out = append(out, ws)
				break
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

type fakeDealSource struct {
	mu    sync.Mutex
	deals []models.Deal
	calls int32
}

func (f *fakeDealSource) ListDeals(ctx context.Context, ws string) ([]models.Deal, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Deal
	for _, d := range f.deals {
		if d.WorkspaceID == ws {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeDealSource) Calls() int { return int(atomic.LoadInt32(&f.calls)) }

// fakeSink records successful requests. failures is the number of calls to
// reject before accepting; err overrides the rejection error.
type fakeSink struct {
	mu       sync.Mutex
	created  []TaskCreationRequest
	attempts int
	failures int
	err      error
	delay    time.Duration
}

func (f *fakeSink) CreateTask(ctx context.Context, req TaskCreationRequest) (*models.Task, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.failures > 0 {
		f.failures--
		if f.err != nil {
			return nil, f.err
		}
		return nil, errSinkDown
	}
	f.created = append(f.created, req)
	return &models.Task{ID: fmt.Sprintf("task-%d", len(f.created)), Title: req.Title}, nil
}

func (f *fakeSink) Created() []TaskCreationRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]TaskCreationRequest(nil), f.created...)
}

func (f *fakeSink) Attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func strPtr(s string) *string { return &s }

func taskRule(id string, trig Trigger, title string, dueDays int) AutomationRule {
	return AutomationRule{
		ID:          id,
		WorkspaceID: "ws-1",
		Name:        id,
		Enabled:     true,
		Trigger:     trig,
		Action:      CreateTaskAction{TaskTitle: title, DueDaysFromNow: dueDays},
	}
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := "file:dealflow_" + name + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&models.Deal{}, &models.Task{}, &models.AutomationRule{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}
