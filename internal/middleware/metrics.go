package middleware

import (
	"context"
	"errors"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

const metricsNamespace = "bearcatboard"

// Metrics bundles the HTTP and auth collectors of one server instance.
type Metrics struct {
	registry   *prometheus.Registry
	prom       *fiberprometheus.FiberPrometheus
	authEvents *prometheus.CounterVec
	redisErrs  *prometheus.CounterVec
}

// InitMetrics creates the collectors on a private registry so several
// servers can live in one process.
func InitMetrics(serviceName string) *Metrics {
	reg := prometheus.NewRegistry()

	authEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "auth_events_total",
		Help:      "Authentication events by type and outcome",
	}, []string{"event", "outcome"})
	redisErrs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "redis_errors_total",
		Help:      "Redis command errors by command",
	}, []string{"command"})
	reg.MustRegister(authEvents, redisErrs)

	return &Metrics{
		registry:   reg,
		prom:       fiberprometheus.NewWithRegistry(reg, serviceName, metricsNamespace, "http", nil),
		authEvents: authEvents,
		redisErrs:  redisErrs,
	}
}

// MetricsMiddleware records request counts and latency.
func MetricsMiddleware(m *Metrics) fiber.Handler {
	return m.prom.Middleware
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

// AuthEvent counts one login, refresh, logout or registration outcome.
// A nil receiver is a no-op.
func (m *Metrics) AuthEvent(event, outcome string) {
	if m == nil {
		return
	}
	m.authEvents.WithLabelValues(event, outcome).Inc()
}

// RedisHook returns a go-redis hook counting failed commands.
func (m *Metrics) RedisHook() redis.Hook {
	return redisMetricsHook{errs: m.redisErrs}
}

type redisMetricsHook struct {
	errs *prometheus.CounterVec
}

func (h redisMetricsHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (h redisMetricsHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		if err != nil && !errors.Is(err, redis.Nil) {
			h.errs.WithLabelValues(cmd.Name()).Inc()
		}
		return err
	}
}

func (h redisMetricsHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		if err != nil && !errors.Is(err, redis.Nil) {
			h.errs.WithLabelValues("pipeline").Inc()
		}
		return err
	}
}
