package controller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	iterationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoscaler_iterations_total",
			Help: "Total autoscaling iterations by outcome",
		},
		[]string{"result"},
	)

	iterationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "autoscaler_iteration_duration_seconds",
			Help:    "Time spent per autoscaling iteration",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	effectorErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoscaler_effector_errors_total",
			Help: "Failed desired capacity updates per ASG",
		},
		[]string{"asg"},
	)
)
