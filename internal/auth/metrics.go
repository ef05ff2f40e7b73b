package auth

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sahilsz/node-docker/internal/audit"
)

// Metrics は認証処理の結果を数えます。nil のままでも安全に呼び出せます。
type Metrics struct {
	operations *prometheus.CounterVec
}

// NewMetrics はメトリクスを作成し、reg に登録します。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_operations_total",
				Help: "Total number of authentication operations by action and outcome",
			},
			[]string{"action", "outcome"},
		),
	}
	reg.MustRegister(m.operations)
	return m
}

func (m *Metrics) observe(action audit.Action, outcome audit.Outcome) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(string(action), string(outcome)).Inc()
}
