package metrics

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Actions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "charognard_actions_total",
		Help: "Follow/unfollow calls by source and outcome",
	}, []string{"action", "source", "outcome"})
	StatusChecks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "charognard_status_checks_total",
		Help: "Follow-back status probes by outcome",
	}, []string{"outcome"})
	AutomationRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "charognard_automation_runs_total",
		Help: "Total automation runs",
	})
	AutomationErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "charognard_automation_errors_total",
		Help: "Per-candidate and phase errors collected by automation runs",
	})
	AutomationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "charognard_automation_duration_seconds",
		Help:    "Automation run duration seconds",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
	})
	QuotaRemaining = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "charognard_quota_remaining",
		Help: "Remaining daily allowance observed at the last check",
	}, []string{"action"})
	Messages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "charognard_messages_total",
		Help: "Relayed messages by type and outcome",
	}, []string{"type", "outcome"})
	CommandRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "charognard_command_runs_total",
		Help: "CLI command invocations",
	}, []string{"command"})
	CommandErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "charognard_command_errors_total",
		Help: "CLI command failures",
	}, []string{"command"})
)

func init() {
	prometheus.MustRegister(Actions, StatusChecks, AutomationRuns, AutomationErrors, AutomationDuration,
		QuotaRemaining, Messages, CommandRuns, CommandErrors)
}

// StartServer starts a metrics HTTP server on addr (e.g., ":9090").
func StartServer(addr string) {
	if addr == "" {
		addr = os.Getenv("METRICS_ADDR")
	}
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	go func() { _ = http.ListenAndServe(addr, mux) }()
}

// ObserveAutomationDuration records a run duration
func ObserveAutomationDuration(start time.Time) {
	AutomationDuration.Observe(time.Since(start).Seconds())
}

func IncAction(action, source, outcome string) { Actions.WithLabelValues(action, source, outcome).Inc() }

func SetQuotaRemaining(action string, n int) { QuotaRemaining.WithLabelValues(action).Set(float64(n)) }

func IncMessage(typ, outcome string) { Messages.WithLabelValues(typ, outcome).Inc() }

func IncCommandRun(cmd string) { CommandRuns.WithLabelValues(cmd).Inc() }

func IncCommandError(cmd string) { CommandErrors.WithLabelValues(cmd).Inc() }
