package observability

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// EnvCollector bundles Prometheus metrics for the environment service and
// the episodes it hosts, and provides helpers to wire them into gRPC servers
// and HTTP handlers.
type EnvCollector struct {
	gatherer prometheus.Gatherer

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec

	EpisodesStarted  prometheus.Counter
	EpisodesFinished *prometheus.CounterVec
	StepReward       prometheus.Histogram
	EpisodeCoverage  prometheus.Histogram
	EpisodeSteps     prometheus.Histogram
	ActiveSessions   prometheus.Gauge
}

// NewEnvCollector registers environment metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewEnvCollector(reg prometheus.Registerer) (*EnvCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "env_rpc_requests_total",
		Help: "Total number of handled environment RPCs, labeled by service, method, and gRPC status code.",
	}, []string{"service", "method", "code"})
	requests, err := registerCounterVec(reg, requests, "env_rpc_requests_total")
	if err != nil {
		return nil, err
	}

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "env_rpc_duration_seconds",
		Help:    "Environment RPC latency in seconds.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"service", "method"})
	durations, err = registerHistogramVec(reg, durations, "env_rpc_duration_seconds")
	if err != nil {
		return nil, err
	}

	started, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "env_episodes_started_total",
		Help: "Number of episodes started by Reset.",
	}), "env_episodes_started_total")
	if err != nil {
		return nil, err
	}

	finished := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "env_episodes_finished_total",
		Help: "Number of episodes that ended, labeled by outcome (terminated, truncated, abandoned).",
	}, []string{"outcome"})
	finished, err = registerCounterVec(reg, finished, "env_episodes_finished_total")
	if err != nil {
		return nil, err
	}

	reward, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "env_step_reward",
		Help:    "Distribution of per-step rewards.",
		Buckets: []float64{-1500, -1000, -500, -100, -50, 0, 50, 100, 500, 1000, 1500, 2500},
	}), "env_step_reward")
	if err != nil {
		return nil, err
	}

	coverage, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "env_episode_coverage",
		Help:    "Sensor coverage fraction at the end of each episode.",
		Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
	}), "env_episode_coverage")
	if err != nil {
		return nil, err
	}

	steps, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "env_episode_steps",
		Help:    "Number of placements made in each finished episode.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 8),
	}), "env_episode_steps")
	if err != nil {
		return nil, err
	}

	sessions, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "env_active_sessions",
		Help: "Current number of open environment sessions.",
	}), "env_active_sessions")
	if err != nil {
		return nil, err
	}

	return &EnvCollector{
		gatherer:         gatherer,
		RPCRequests:      requests,
		RPCDurations:     durations,
		EpisodesStarted:  started,
		EpisodesFinished: finished,
		StepReward:       reward,
		EpisodeCoverage:  coverage,
		EpisodeSteps:     steps,
		ActiveSessions:   sessions,
	}, nil
}

// UnaryServerInterceptor records request counts and durations for unary RPCs.
func (c *EnvCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		if c == nil {
			return resp, err
		}

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)
		code := status.Code(err).String()

		if c.RPCRequests != nil {
			c.RPCRequests.WithLabelValues(service, method, code).Inc()
		}
		if c.RPCDurations != nil {
			c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
		}

		return resp, err
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *EnvCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// EpisodeStarted counts a Reset. The sizes are not recorded.
func (c *EnvCollector) EpisodeStarted(_, _ int) {
	if c == nil || c.EpisodesStarted == nil {
		return
	}
	c.EpisodesStarted.Inc()
}

// StepObserved records one step reward.
func (c *EnvCollector) StepObserved(reward, _ float64) {
	if c == nil || c.StepReward == nil {
		return
	}
	c.StepReward.Observe(reward)
}

// EpisodeFinished records how an episode ended.
func (c *EnvCollector) EpisodeFinished(outcome string, steps int, coverage float64) {
	if c == nil {
		return
	}
	if c.EpisodesFinished != nil {
		c.EpisodesFinished.WithLabelValues(outcome).Inc()
	}
	if c.EpisodeCoverage != nil {
		c.EpisodeCoverage.Observe(coverage)
	}
	if c.EpisodeSteps != nil {
		c.EpisodeSteps.Observe(float64(steps))
	}
}

// SetActiveSessions updates the open session gauge.
func (c *EnvCollector) SetActiveSessions(n int) {
	if c == nil || c.ActiveSessions == nil {
		return
	}
	c.ActiveSessions.Set(float64(n))
}

// SplitMethod parses a fully-qualified gRPC method name into service and method
// components. It tolerates empty strings and partial paths, returning
// "unknown"/"unknown" when parsing fails.
func SplitMethod(fullMethod string) (string, string) {
	if fullMethod == "" {
		return "unknown", "unknown"
	}
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 2 {
		return "unknown", "unknown"
	}
	service := parts[len(parts)-2]
	method := parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 && dot+1 < len(service) {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}
