package obs

import "github.com/prometheus/client_golang/prometheus"

// DomainMetrics counts settlement outcomes. A nil *DomainMetrics records nothing.
type DomainMetrics struct {
	CheckoutsTotal *prometheus.CounterVec
	ReturnsTotal   *prometheus.CounterVec
	ExchangesTotal *prometheus.CounterVec
}

func NewDomainMetrics(namespace string, reg prometheus.Registerer) *DomainMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &DomainMetrics{
		CheckoutsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkouts_total",
			Help:      "Checkout attempts by result.",
		}, []string{"result"}),
		ReturnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "returns_total",
			Help:      "Return batches by result.",
		}, []string{"result"}),
		ExchangesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exchanges_total",
			Help:      "Exchanges by settlement type; failed exchanges use settlement=\"error\".",
		}, []string{"settlement"}),
	}
	for _, c := range []**prometheus.CounterVec{&m.CheckoutsTotal, &m.ReturnsTotal, &m.ExchangesTotal} {
		target := c
		mustRegister(reg, *target, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				*target = v
			}
		})
	}
	return m
}

func (m *DomainMetrics) Checkout(err error) {
	if m == nil {
		return
	}
	m.CheckoutsTotal.WithLabelValues(result(err)).Inc()
}

func (m *DomainMetrics) Return(err error) {
	if m == nil {
		return
	}
	m.ReturnsTotal.WithLabelValues(result(err)).Inc()
}

func (m *DomainMetrics) Exchange(settlement string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		settlement = "error"
	}
	m.ExchangesTotal.WithLabelValues(settlement).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
