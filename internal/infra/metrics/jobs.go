package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(outcomeDeliveriesTotal) }

var outcomeDeliveriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "outcome_deliveries_total",
		Help: "Rulings and breakthrough events handed to the reward consumer, by result.",
	},
	[]string{"kind", "result"}, // kind: 'ruling', 'breakthrough'; result: 'ok', 'failed', 'inline'
)

func IncOutcomeDelivery(kind, result string) {
	outcomeDeliveriesTotal.WithLabelValues(norm(kind), norm(result)).Inc()
}
