package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/halvorsen/speedd/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus counters
var (
	ConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "connections_total",
		Help: "Total TCP connections accepted.",
	})
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "active_connections",
		Help: "Current number of open connections.",
	})
	ActiveCameras = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "active_cameras",
		Help: "Current number of connections identified as cameras.",
	})
	ActiveDispatchers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "active_dispatchers",
		Help: "Current number of connections identified as dispatchers.",
	})
	ObservationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "observations_total",
		Help: "Total plate observations recorded by cameras.",
	})
	TicketsIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tickets_issued_total",
		Help: "Total speeding tickets adjudicated and queued for delivery.",
	})
	TicketsDedupedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tickets_deduped_total",
		Help: "Total ticket candidates suppressed by the per-plate per-day ledger.",
	})
	PendingTickets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pending_tickets",
		Help: "Tickets queued awaiting a dispatcher for their road.",
	})
	HeartbeatsSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heartbeats_sent_total",
		Help: "Total heartbeat messages sent to clients.",
	})
	RateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rate_limited_total",
		Help: "Total inbound messages delayed or rejected by the per-connection rate limiter.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by classification.",
	}, []string{"where"})

	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality)
const (
	ErrTCPRead         = "tcp_read"
	ErrTCPWrite        = "tcp_write"
	ErrProtocol        = "protocol"
	ErrDoubleIdentify  = "double_identify"
	ErrUnidentified    = "unidentified"
	ErrWrongRoleForMsg = "wrong_role_for_message"
)

// StartHTTP serves Prometheus metrics at /metrics and readiness at /ready
// on addr, in a background goroutine, and returns the HTTP server.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters for easy logging (avoid Prometheus scraping in-process)
var (
	localConnections  uint64
	localActiveConns  uint64
	localCameras      uint64
	localDispatchers  uint64
	localObservations uint64
	localIssued       uint64
	localDeduped      uint64
	localPending      uint64
	localHeartbeats   uint64
	localRateLimited  uint64
	localErrors       uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	Connections  uint64
	ActiveConns  uint64
	Cameras      uint64
	Dispatchers  uint64
	Observations uint64
	Issued       uint64
	Deduped      uint64
	Pending      uint64
	Heartbeats   uint64
	RateLimited  uint64
	Errors       uint64
}

func Snap() Snapshot {
	return Snapshot{
		Connections:  atomic.LoadUint64(&localConnections),
		ActiveConns:  atomic.LoadUint64(&localActiveConns),
		Cameras:      atomic.LoadUint64(&localCameras),
		Dispatchers:  atomic.LoadUint64(&localDispatchers),
		Observations: atomic.LoadUint64(&localObservations),
		Issued:       atomic.LoadUint64(&localIssued),
		Deduped:      atomic.LoadUint64(&localDeduped),
		Pending:      atomic.LoadUint64(&localPending),
		Heartbeats:   atomic.LoadUint64(&localHeartbeats),
		RateLimited:  atomic.LoadUint64(&localRateLimited),
		Errors:       atomic.LoadUint64(&localErrors),
	}
}

// IncConnection records a newly accepted connection.
func IncConnection() {
	ConnectionsTotal.Inc()
	atomic.AddUint64(&localConnections, 1)
}

// SetActiveConnections records the current open-connection count.
func SetActiveConnections(n int) {
	ActiveConnections.Set(float64(n))
	atomic.StoreUint64(&localActiveConns, uint64(n))
}

// SetActiveCameras records the current camera-role connection count.
func SetActiveCameras(n int) {
	ActiveCameras.Set(float64(n))
	atomic.StoreUint64(&localCameras, uint64(n))
}

// SetActiveDispatchers records the current dispatcher-role connection count.
func SetActiveDispatchers(n int) {
	ActiveDispatchers.Set(float64(n))
	atomic.StoreUint64(&localDispatchers, uint64(n))
}

// IncObservations increments the plate-observation counter.
func IncObservations() {
	ObservationsTotal.Inc()
	atomic.AddUint64(&localObservations, 1)
}

// IncTicketsIssued increments the ticket-issued counter.
func IncTicketsIssued() {
	TicketsIssuedTotal.Inc()
	atomic.AddUint64(&localIssued, 1)
}

// IncTicketsDeduped increments the ticket-deduped counter.
func IncTicketsDeduped() {
	TicketsDedupedTotal.Inc()
	atomic.AddUint64(&localDeduped, 1)
}

// SetPendingTickets records the total number of tickets awaiting a dispatcher.
func SetPendingTickets(n int) {
	PendingTickets.Set(float64(n))
	atomic.StoreUint64(&localPending, uint64(n))
}

// IncHeartbeat increments the heartbeat-sent counter.
func IncHeartbeat() {
	HeartbeatsSentTotal.Inc()
	atomic.AddUint64(&localHeartbeats, 1)
}

// IncRateLimited increments the rate-limited counter.
func IncRateLimited() {
	RateLimitedTotal.Inc()
	atomic.AddUint64(&localRateLimited, 1)
}

// IncError increments the labeled error counter.
func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

// InitBuildInfo sets the build info gauge (should be called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	for _, lbl := range []string{
		ErrTCPRead, ErrTCPWrite, ErrProtocol, ErrDoubleIdentify, ErrUnidentified, ErrWrongRoleForMsg,
	} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil {
		return true
	}
	return fn()
}

// Ready is a concise alias used at call sites.
func Ready() bool { return IsReady() }
