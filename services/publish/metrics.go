package publish

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts publish outcomes. A nil *Metrics records nothing.
type Metrics struct {
	files  *prometheus.CounterVec
	errors prometheus.Counter
}

// NewMetrics creates the publish counters and registers them with reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cdnsync",
			Subsystem: "publish",
			Name:      "files_total",
			Help:      "Files handled by publish runs, by result.",
		}, []string{"result"}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cdnsync",
			Subsystem: "publish",
			Name:      "errors_total",
			Help:      "Publish runs aborted by an error.",
		}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.files, m.errors} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) observe(uploaded bool) {
	if m == nil {
		return
	}
	result := "skipped"
	if uploaded {
		result = "uploaded"
	}
	m.files.WithLabelValues(result).Inc()
}

func (m *Metrics) observeError() {
	if m == nil {
		return
	}
	m.errors.Inc()
}
