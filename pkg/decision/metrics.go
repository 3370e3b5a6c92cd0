package decision

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	decisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoscaler_decisions_total",
			Help: "Total per-ASG scaling decisions by reason",
		},
		[]string{"asg", "reason"},
	)

	requiredNodes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "autoscaler_required_nodes",
			Help: "Nodes required to satisfy buffered demand per ASG",
		},
		[]string{"asg"},
	)

	targetCapacity = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "autoscaler_target_desired_capacity",
			Help: "Final desired capacity computed per ASG",
		},
		[]string{"asg"},
	)
)

func recordDecision(result Result) {
	decisionsTotal.WithLabelValues(result.Name, result.Reason).Inc()
	requiredNodes.WithLabelValues(result.Name).Set(float64(result.Required))
	targetCapacity.WithLabelValues(result.Name).Set(float64(result.Final))
}
