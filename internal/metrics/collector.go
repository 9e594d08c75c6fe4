// Package metrics exposes plugin lifecycle, hook and HTTP metrics on a
// dedicated Prometheus registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/hooks"
	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/plugin"
)

const Namespace = "exilon"

// Collector implements hooks.FailureObserver and plugin.ActivationObserver.
type Collector struct {
	registry *prometheus.Registry

	activations  *prometheus.CounterVec
	pluginUp     *prometheus.GaugeVec
	hookFailures *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	logger *zap.Logger
}

var (
	_ hooks.FailureObserver     = (*Collector)(nil)
	_ plugin.ActivationObserver = (*Collector)(nil)
)

func NewCollector(logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		activations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "plugin_activations_total",
			Help:      "Plugin activation attempts by outcome.",
		}, []string{"plugin", "status"}),
		pluginUp: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "plugin_activated",
			Help:      "1 while the plugin is activated.",
		}, []string{"plugin"}),
		hookFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "hook_failures_total",
			Help:      "Hook calls that returned an error or panicked.",
		}, []string{"category", "plugin", "operation"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status.",
		}, []string{"method", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		logger: logger.With(zap.String("component", "metrics")),
	}
}

func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) PluginActivated(pluginID string, status plugin.Status) {
	if status != plugin.StatusNotActivated {
		c.activations.WithLabelValues(pluginID, string(status)).Inc()
	}
	up := 0.0
	if status == plugin.StatusActivated {
		up = 1
	}
	c.pluginUp.WithLabelValues(pluginID).Set(up)
}

func (c *Collector) HookFailed(category hooks.Category, pluginID, operation string) {
	c.hookFailures.WithLabelValues(string(category), pluginID, operation).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		ErrorLog: zap.NewStdLog(c.logger),
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Middleware records request counts and latency.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		c.httpRequests.WithLabelValues(r.Method, strconv.Itoa(sw.status)).Inc()
		c.httpDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	})
}
