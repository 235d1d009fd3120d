package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RolloutCollector exposes metrics for batch rollouts.
type RolloutCollector struct {
	gatherer prometheus.Gatherer

	EpisodesTotal   *prometheus.CounterVec
	EpisodeReward   prometheus.Histogram
	EpisodeDuration prometheus.Histogram
	SuccessRatio    prometheus.Gauge
}

// NewRolloutCollector registers rollout metrics against the provided registerer.
func NewRolloutCollector(reg prometheus.Registerer) (*RolloutCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	episodes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rollout_episodes_total",
		Help: "Episodes completed by rollouts, labeled by agent and outcome.",
	}, []string{"agent", "outcome"})
	episodes, err := registerCounterVec(reg, episodes, "rollout_episodes_total")
	if err != nil {
		return nil, err
	}

	reward, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rollout_episode_reward",
		Help:    "Total reward per rollout episode.",
		Buckets: []float64{-20000, -10000, -5000, -1000, 0, 1000, 2500, 5000, 10000},
	}), "rollout_episode_reward")
	if err != nil {
		return nil, err
	}

	duration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rollout_episode_duration_seconds",
		Help:    "Wall-clock duration of rollout episodes.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}), "rollout_episode_duration_seconds")
	if err != nil {
		return nil, err
	}

	ratio, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rollout_success_ratio",
		Help: "Fraction of successful episodes in the last finished batch.",
	}), "rollout_success_ratio")
	if err != nil {
		return nil, err
	}

	return &RolloutCollector{
		gatherer:        gatherer,
		EpisodesTotal:   episodes,
		EpisodeReward:   reward,
		EpisodeDuration: duration,
		SuccessRatio:    ratio,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *RolloutCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveEpisode records one finished rollout episode.
func (c *RolloutCollector) ObserveEpisode(agent, outcome string, reward float64, d time.Duration) {
	if c == nil {
		return
	}
	if c.EpisodesTotal != nil {
		c.EpisodesTotal.WithLabelValues(agent, outcome).Inc()
	}
	if c.EpisodeReward != nil {
		c.EpisodeReward.Observe(reward)
	}
	if c.EpisodeDuration != nil {
		c.EpisodeDuration.Observe(d.Seconds())
	}
}

// SetSuccessRatio sets the batch success ratio, clamped to [0, 1].
func (c *RolloutCollector) SetSuccessRatio(ratio float64) {
	if c == nil || c.SuccessRatio == nil {
		return
	}
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	c.SuccessRatio.Set(ratio)
}

// WriteTextfile dumps the collector's registry in the node_exporter textfile
// format.
func (c *RolloutCollector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.Gatherer())
}
