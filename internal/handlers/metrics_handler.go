package handlers

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	appmetrics "dealflow/internal/metrics"
	"dealflow/internal/services"

	"github.com/gin-gonic/gin"
)

// MetricsHandler 指标处理器
type MetricsHandler struct {
	hub       *services.NotificationHub
	registry  *services.AutomationRegistry
	sink      *services.BreakerSink
	startedAt time.Time
}

// NewMetricsHandler 创建指标处理器；参数均可为空
func NewMetricsHandler(hub *services.NotificationHub, registry *services.AutomationRegistry, sink *services.BreakerSink) *MetricsHandler {
	return &MetricsHandler{hub: hub, registry: registry, sink: sink, startedAt: time.Now()}
}

func writeMetric(b *strings.Builder, name, kind, help string, value interface{}) {
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s %s\n", name, kind)
	fmt.Fprintf(b, "%s %v\n\n", name, value)
}

// GetMetrics 获取系统指标（Prometheus 格式）
func (h *MetricsHandler) GetMetrics(c *gin.Context) {
	c.Header("Content-Type", "text/plain")

	wsClients := 0
	if h.hub != nil {
		wsClients = h.hub.ClientCount()
	}
	engines := 0
	if h.registry != nil {
		engines = len(h.registry.Workspaces())
	}
	auto := appmetrics.AutomationSnapshot()
	rlTotal, rlBy := appmetrics.RateLimitSnapshot()

	b := &strings.Builder{}
	writeMetric(b, "dealflow_uptime_seconds", "counter", "Total uptime in seconds", fmt.Sprintf("%.0f", time.Since(h.startedAt).Seconds()))
	writeMetric(b, "dealflow_websocket_active_connections", "gauge", "Active notification WebSocket connections", wsClients)
	writeMetric(b, "dealflow_automation_engines", "gauge", "Workspaces with a running automation engine", engines)

	fmt.Fprintf(b, "# HELP dealflow_automation_tasks_created_total Tasks created by automation rules\n")
	fmt.Fprintf(b, "# TYPE dealflow_automation_tasks_created_total counter\n")
	fmt.Fprintf(b, "dealflow_automation_tasks_created_total %d\n", auto.TasksCreated)
	triggers := make([]string, 0, len(auto.TasksByTrigger))
	for k := range auto.TasksByTrigger {
		triggers = append(triggers, k)
	}
	sort.Strings(triggers)
	for _, k := range triggers {
		fmt.Fprintf(b, "dealflow_automation_tasks_created_total{trigger=%q} %d\n", k, auto.TasksByTrigger[k])
	}
	b.WriteString("\n")

	writeMetric(b, "dealflow_automation_submit_failed_total", "counter", "Task submissions rejected by the sink", auto.SubmitFailed)
	writeMetric(b, "dealflow_automation_dedup_skipped_total", "counter", "Matches skipped because the rule already fired for the deal", auto.DedupSkipped)
	writeMetric(b, "dealflow_automation_sink_duplicates_total", "counter", "Submissions the sink reported as already stored", auto.SinkDuplicates)
	writeMetric(b, "dealflow_automation_sweeps_total", "counter", "Stale sweeps that enumerated deals", auto.Sweeps)
	writeMetric(b, "dealflow_automation_sweeps_gated_total", "counter", "Stale sweeps skipped for lack of stale rules", auto.SweepsGated)
	writeMetric(b, "dealflow_automation_rule_source_failures_total", "counter", "Failed rule snapshot loads", auto.RuleSourceFailures)

	if h.sink != nil {
		open := 0
		if h.sink.Breaker().State() == services.StateOpen {
			open = 1
		}
		writeMetric(b, "dealflow_task_sink_circuit_open", "gauge", "1 when the task sink circuit breaker is open", open)
	}

	fmt.Fprintf(b, "# HELP dealflow_rate_limit_dropped_total Requests rejected by rate limiting\n")
	fmt.Fprintf(b, "# TYPE dealflow_rate_limit_dropped_total counter\n")
	fmt.Fprintf(b, "dealflow_rate_limit_dropped_total %d\n", rlTotal)
	prefixes := make([]string, 0, len(rlBy))
	for k := range rlBy {
		prefixes = append(prefixes, k)
	}
	sort.Strings(prefixes)
	for _, k := range prefixes {
		fmt.Fprintf(b, "dealflow_rate_limit_dropped_total{prefix=%q} %d\n", k, rlBy[k])
	}

	c.String(http.StatusOK, b.String())
}
