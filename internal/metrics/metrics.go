package metrics

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PollTicks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bilirelay_poll_ticks_total",
		Help: "Total poll ticks executed",
	})
	PollErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bilirelay_poll_errors_total",
		Help: "Total poll ticks that failed and stopped the poller",
	})
	TickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "bilirelay_tick_duration_seconds",
		Help:    "Poll tick duration seconds",
		Buckets: prometheus.DefBuckets,
	})
	BotQueries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bilirelay_bot_queries_total",
		Help: "Total bot query dispatches",
	})
	BotQueryErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bilirelay_bot_query_errors_total",
		Help: "Total failed bot query dispatches",
	})
	TokenRefreshes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bilirelay_token_refreshes_total",
		Help: "Total bot-service token refreshes",
	})
	MessagesRelayed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bilirelay_messages_relayed_total",
		Help: "Total replies sent back to Bilibili",
	})
	CommandRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bilirelay_command_runs_total",
		Help: "Total CLI command runs",
	}, []string{"command"})
	CommandErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bilirelay_command_errors_total",
		Help: "Total CLI command failures",
	}, []string{"command"})
)

func init() {
	prometheus.MustRegister(PollTicks, PollErrors, TickDuration, BotQueries,
		BotQueryErrors, TokenRefreshes, MessagesRelayed, CommandRuns, CommandErrors)
}

// StartServer starts a metrics HTTP server on addr (e.g., ":9090").
func StartServer(addr string) {
	if addr == "" {
		addr = os.Getenv("METRICS_ADDR")
	}
	if addr == "" {
		return
	}
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	go func() { _ = http.ListenAndServe(addr, nil) }()
}

// ObserveTickDuration records one poll tick duration.
func ObserveTickDuration(start time.Time) {
	TickDuration.Observe(time.Since(start).Seconds())
}

// IncCommandRun counts a CLI command invocation.
func IncCommandRun(cmd string) { CommandRuns.WithLabelValues(cmd).Inc() }

// IncCommandError counts a CLI command failure.
func IncCommandError(cmd string) { CommandErrors.WithLabelValues(cmd).Inc() }
