package install

import "github.com/prometheus/client_golang/prometheus"

// Stage is a position in the install flow.
type Stage string

const (
	StageIdle             Stage = "idle"
	StageAwaitingCallback Stage = "awaiting_callback"
	StageVerified         Stage = "verified"
	StageExchanged        Stage = "exchanged"
	StageStored           Stage = "stored"
	StageRejected         Stage = "rejected"
	StageFailed           Stage = "failed"
)

// Metrics counts flow outcomes. A nil *Metrics records nothing.
type Metrics struct {
	outcomes *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shopconnect_install_outcomes_total",
			Help: "Install flow transitions by resulting stage and reason",
		}, []string{"stage", "result"}),
	}
	if err := reg.Register(m.outcomes); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) observe(stage Stage, result string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(string(stage), result).Inc()
}
