package metrics

import (
	"sync"
	"testing"
)

func TestIncRateLimitDrop(t *testing.T) {
	// 重置全局状态
	rl = rateLimitStats{}

	tests := []struct {
		name   string
		prefix string
		want   string
	}{
		{name: "increment with prefix", prefix: "/api", want: "/api"},
		{name: "empty prefix defaults to global", prefix: "", want: "global"},
		{name: "increment global", prefix: "global", want: "global"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			initialTotal, _ := RateLimitSnapshot()
			IncRateLimitDrop(tt.prefix)
			newTotal, byPrefix := RateLimitSnapshot()
			if newTotal != initialTotal+1 {
				t.Errorf("total = %d, want %d", newTotal, initialTotal+1)
			}
			if byPrefix[tt.want] == 0 {
				t.Errorf("prefix %s not incremented", tt.want)
			}
		})
	}
}

func TestRateLimitSnapshot_ReturnsCopy(t *testing.T) {
	rl = rateLimitStats{}
	IncRateLimitDrop("x")

	_, by := RateLimitSnapshot()
	by["x"] = 100

	_, again := RateLimitSnapshot()
	if again["x"] != 1 {
		t.Errorf("snapshot mutation leaked: got %d", again["x"])
	}
}

func TestAutomationCounters_Concurrent(t *testing.T) {
	auto = automationStats{}

	const goroutines = 50
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				IncAutomationTaskCreated("deal_stale")
			} else {
				IncAutomationTaskCreated("deal_created")
			}
			IncAutomationDedupSkipped()
		}(i)
	}
	wg.Wait()

	s := AutomationSnapshot()
	if s.TasksCreated != goroutines {
		t.Errorf("tasks created = %d, want %d", s.TasksCreated, goroutines)
	}
	if s.TasksByTrigger["deal_stale"] != goroutines/2 {
		t.Errorf("deal_stale = %d, want %d", s.TasksByTrigger["deal_stale"], goroutines/2)
	}
	if s.DedupSkipped != goroutines {
		t.Errorf("dedup skipped = %d, want %d", s.DedupSkipped, goroutines)
	}
}

func TestAutomationSnapshot_SimpleCounters(t *testing.T) {
	auto = automationStats{}

	IncAutomationSubmitFailed()
	IncAutomationSinkDuplicate()
	IncAutomationSweep()
	IncAutomationSweep()
	IncAutomationSweepGated()
	IncAutomationRuleSourceFailure()

	s := AutomationSnapshot()
	if s.SubmitFailed != 1 || s.SinkDuplicates != 1 || s.SweepsGated != 1 || s.RuleSourceFailures != 1 {
		t.Errorf("unexpected snapshot: %+v", s)
	}
	if s.Sweeps != 2 {
		t.Errorf("sweeps = %d, want 2", s.Sweeps)
	}
	if s.TasksCreated != 0 {
		t.Errorf("tasks created = %d, want 0", s.TasksCreated)
	}
}
