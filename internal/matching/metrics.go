package matching

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	strategySerial   = "serial"
	strategyParallel = "parallel"
	strategyClosest  = "closest"
)

var (
	matchRounds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prbf_match_rounds_total",
		Help: "Matching rounds by strategy",
	}, []string{"strategy"})

	matchRoundDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "prbf_match_round_duration_seconds",
		Help:    "Matching round duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.00001, 2, 16), // 10us to ~330ms
	}, []string{"strategy"})

	matchSetSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "prbf_match_set_size",
		Help:    "Number of classifiers in the match set after a round",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100, 200, 500},
	})

	calibrationDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prbf_calibration_decisions_total",
		Help: "Serial/parallel threshold calibration decisions by outcome",
	}, []string{"outcome"})

	matchRoundFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "prbf_match_round_failures_total",
		Help: "Parallel matching rounds that failed to rendezvous",
	})
)
