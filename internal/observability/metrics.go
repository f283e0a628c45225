package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	queueSize    *prometheus.GaugeVec
	enqueueTotal *prometheus.CounterVec
	dequeueTotal *prometheus.CounterVec
	laneDuration *prometheus.HistogramVec

	activeConversations prometheus.Gauge
	sessionLoadDuration prometheus.Histogram
	sessionSaveDuration prometheus.Histogram

	playbookSearchDuration prometheus.Histogram
	playbookSyncDuration   prometheus.Histogram
	playbookSections       prometheus.Gauge

	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec
	toolErrorsTotal       *prometheus.CounterVec

	llmCallTotal     *prometheus.CounterVec
	llmCallDuration  *prometheus.HistogramVec
	providerCooldown *prometheus.GaugeVec

	taskTransitions    *prometheus.CounterVec
	workerTurns        *prometheus.HistogramVec
	decompositionTotal *prometheus.CounterVec
	compactionTotal    prometheus.Counter
	compactedMessages  prometheus.Counter
	routerStepsTotal   *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			queueSize: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "supportdesk_queue_size",
					Help: "Current queue size by lane.",
				},
				[]string{"lane"},
			),
			enqueueTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "supportdesk_enqueue_total",
					Help: "Total enqueue operations by lane.",
				},
				[]string{"lane"},
			),
			dequeueTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "supportdesk_dequeue_total",
					Help: "Total completions by lane and status.",
				},
				[]string{"lane", "status"},
			),
			laneDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "supportdesk_lane_task_duration_seconds",
					Help:    "Queued work duration in seconds by lane.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"lane"},
			),
			activeConversations: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "supportdesk_conversations",
					Help: "Conversations known to the session store.",
				},
			),
			sessionLoadDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "supportdesk_session_load_duration_seconds",
					Help:    "Session load duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			sessionSaveDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "supportdesk_session_save_duration_seconds",
					Help:    "Session save duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			playbookSearchDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "supportdesk_playbook_search_duration_seconds",
					Help:    "Playbook search duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			playbookSyncDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "supportdesk_playbook_sync_duration_seconds",
					Help:    "Playbook index sync duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			playbookSections: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "supportdesk_playbook_sections",
					Help: "Playbook sections indexed.",
				},
			),
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "supportdesk_tool_execution_total",
					Help: "Total tool executions by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "supportdesk_tool_execution_duration_seconds",
					Help:    "Tool execution duration in seconds by tool.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			toolErrorsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "supportdesk_tool_errors_total",
					Help: "Total tool execution errors by tool.",
				},
				[]string{"tool"},
			),
			llmCallTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "supportdesk_llm_call_total",
					Help: "Total LLM calls by provider and status.",
				},
				[]string{"provider", "status"},
			),
			llmCallDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "supportdesk_llm_call_duration_seconds",
					Help:    "LLM call duration in seconds by provider.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			providerCooldown: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "supportdesk_provider_cooldown_active",
					Help: "Provider cooldown active state (1 active, 0 inactive).",
				},
				[]string{"provider"},
			),
			taskTransitions: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "supportdesk_task_transitions_total",
					Help: "Task status transitions by capability and target status.",
				},
				[]string{"capability", "status"},
			),
			workerTurns: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "supportdesk_worker_turns",
					Help:    "Model round-trips per worker run by capability.",
					Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10},
				},
				[]string{"capability"},
			),
			decompositionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "supportdesk_decomposition_total",
					Help: "Decomposition outcomes by kind.",
				},
				[]string{"outcome"},
			),
			compactionTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "supportdesk_compaction_total",
					Help: "History compactions performed.",
				},
			),
			compactedMessages: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "supportdesk_compacted_messages_total",
					Help: "Messages folded into summaries.",
				},
			),
			routerStepsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "supportdesk_router_steps_total",
					Help: "Router steps by resulting phase.",
				},
				[]string{"phase"},
			),
		}

		prometheus.MustRegister(
			m.queueSize,
			m.enqueueTotal,
			m.dequeueTotal,
			m.laneDuration,
			m.activeConversations,
			m.sessionLoadDuration,
			m.sessionSaveDuration,
			m.playbookSearchDuration,
			m.playbookSyncDuration,
			m.playbookSections,
			m.toolExecutionTotal,
			m.toolExecutionDuration,
			m.toolErrorsTotal,
			m.llmCallTotal,
			m.llmCallDuration,
			m.providerCooldown,
			m.taskTransitions,
			m.workerTurns,
			m.decompositionTotal,
			m.compactionTotal,
			m.compactedMessages,
			m.routerStepsTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func RecordQueueEnqueue(lane string, queueSize int) {
	m := getMetrics()
	m.enqueueTotal.WithLabelValues(lane).Inc()
	m.queueSize.WithLabelValues(lane).Set(float64(queueSize))
}

func RecordQueueCompletion(lane string, duration time.Duration, success bool, queueSize int) {
	m := getMetrics()
	m.dequeueTotal.WithLabelValues(lane, statusLabel(success)).Inc()
	m.laneDuration.WithLabelValues(lane).Observe(duration.Seconds())
	m.queueSize.WithLabelValues(lane).Set(float64(queueSize))
}

func SetActiveConversations(count int) {
	getMetrics().activeConversations.Set(float64(count))
}

func RecordSessionLoad(duration time.Duration) {
	getMetrics().sessionLoadDuration.Observe(duration.Seconds())
}

func RecordSessionSave(duration time.Duration) {
	getMetrics().sessionSaveDuration.Observe(duration.Seconds())
}

func RecordPlaybookSearch(duration time.Duration) {
	getMetrics().playbookSearchDuration.Observe(duration.Seconds())
}

func RecordPlaybookSync(duration time.Duration) {
	getMetrics().playbookSyncDuration.Observe(duration.Seconds())
}

func SetPlaybookSections(total int) {
	getMetrics().playbookSections.Set(float64(total))
}

func RecordToolExecution(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	m.toolExecutionTotal.WithLabelValues(tool, statusLabel(success)).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
	if !success {
		m.toolErrorsTotal.WithLabelValues(tool).Inc()
	}
}

func RecordLLMCall(provider string, duration time.Duration, success bool) {
	m := getMetrics()
	m.llmCallTotal.WithLabelValues(provider, statusLabel(success)).Inc()
	m.llmCallDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func SetProviderCooldown(provider string, active bool) {
	value := 0.0
	if active {
		value = 1.0
	}
	getMetrics().providerCooldown.WithLabelValues(provider).Set(value)
}

func RecordTaskTransition(capability, status string) {
	getMetrics().taskTransitions.WithLabelValues(capability, status).Inc()
}

func RecordWorkerTurns(capability string, turns int) {
	getMetrics().workerTurns.WithLabelValues(capability).Observe(float64(turns))
}

func RecordDecomposition(outcome string) {
	getMetrics().decompositionTotal.WithLabelValues(outcome).Inc()
}

func RecordCompaction(folded int) {
	m := getMetrics()
	m.compactionTotal.Inc()
	m.compactedMessages.Add(float64(folded))
}

func RecordRouterStep(phase string) {
	getMetrics().routerStepsTotal.WithLabelValues(phase).Inc()
}
