// internal/obs/metrics.go
package obs

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics receives bus client events and exposes them to Prometheus.
type Metrics struct {
	Registry *prometheus.Registry

	TransactionsTotal *prometheus.CounterVec   // result=ok|transient|lock_busy|...
	ReinitsTotal      *prometheus.CounterVec   // kind=soft|hard, result=ok|fail
	RefusedTotal      *prometheus.CounterVec   // reason=unprivileged|cooldown|...
	LockWaitSeconds   *prometheus.HistogramVec // time until the bus lock was held
	DeviceDisabled    *prometheus.GaugeVec
}

// NewMetrics registers every collector on a private registry, so two
// Metrics never collide (tests, or two daemons linked into one binary).
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		TransactionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "busguard_transactions_total",
				Help: "Bus transactions by device and outcome",
			},
			[]string{"device", "result"},
		),
		ReinitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "busguard_reinits_total",
				Help: "Device re-inits by kind and result",
			},
			[]string{"device", "kind", "result"},
		),
		RefusedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "busguard_hard_reset_refused_total",
				Help: "Hard resets that were due but not performed",
			},
			[]string{"device", "reason"},
		),
		LockWaitSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "busguard_lock_wait_seconds",
				Help:    "Time spent waiting for the cross-process bus lock",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 13), // 0.5ms .. ~2s
			},
			[]string{"device"},
		),
		DeviceDisabled: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "busguard_device_disabled",
				Help: "1 while the device is in its post-failure cooldown",
			},
			[]string{"device"},
		),
	}

	m.Registry.MustRegister(
		m.TransactionsTotal,
		m.ReinitsTotal,
		m.RefusedTotal,
		m.LockWaitSeconds,
		m.DeviceDisabled,
	)
	return m
}

func (m *Metrics) Transaction(device, result string) {
	m.TransactionsTotal.WithLabelValues(device, result).Inc()
}

func (m *Metrics) Reinit(device, kind string, err error) {
	result := "ok"
	if err != nil {
		result = "fail"
	}
	m.ReinitsTotal.WithLabelValues(device, kind, result).Inc()
}

func (m *Metrics) HardResetRefused(device, reason string) {
	m.RefusedTotal.WithLabelValues(device, reason).Inc()
}

func (m *Metrics) Disabled(device string, on bool) {
	v := 0.0
	if on {
		v = 1
	}
	m.DeviceDisabled.WithLabelValues(device).Set(v)
}

// ---- LOCK WAIT ----

type locker interface {
	WithLock(ctx context.Context, timeout time.Duration, fn func() error) error
}

// TimedLocker records how long each WithLock call waited before fn ran.
// Calls that never got the lock are recorded at their full wait too.
type TimedLocker struct {
	Locker  locker
	Device  string
	Metrics *Metrics
}

func (t TimedLocker) WithLock(ctx context.Context, timeout time.Duration, fn func() error) error {
	start := time.Now()
	acquired := false
	err := t.Locker.WithLock(ctx, timeout, func() error {
		acquired = true
		t.observe(time.Since(start))
		return fn()
	})
	if !acquired {
		t.observe(time.Since(start))
	}
	return err
}

func (t TimedLocker) observe(d time.Duration) {
	if t.Metrics != nil {
		t.Metrics.LockWaitSeconds.WithLabelValues(t.Device).Observe(d.Seconds())
	}
}

// ---- HTTP ----

// Serve exposes /metrics on addr until ctx is done. An empty addr
// disables the endpoint.
func (m *Metrics) Serve(ctx context.Context, addr string, log *slog.Logger) error {
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("metrics endpoint up", "addr", addr)
	// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
