package deployer

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	kindDescriptor = "descriptor"
	kindWAR        = "war"
	kindDirectory  = "directory"
	kindManaged    = "managed"

	outcomeSuccess = "success"
	outcomeFailure = "failure"
	outcomeInvalid = "invalid"

	reasonModified = "modified"
	reasonDeleted  = "deleted"
	reasonAdmin    = "admin"
)

var checkDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}

// Metrics exposes deployer activity to Prometheus
type Metrics struct {
	deployments   *prometheus.CounterVec
	undeployments *prometheus.CounterVec
	reloads       *prometheus.CounterVec
	checkDuration prometheus.Histogram
	deployed      prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with registerer when
// it is not nil. Collectors already registered by an earlier instance are
// reused.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		deployments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hsu",
			Subsystem: "deployer",
			Name:      "deployments_total",
			Help:      "Deployment attempts by artifact kind and outcome",
		}, []string{"kind", "outcome"}),
		undeployments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hsu",
			Subsystem: "deployer",
			Name:      "undeployments_total",
			Help:      "Applications undeployed by reason",
		}, []string{"reason"}),
		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hsu",
			Subsystem: "deployer",
			Name:      "reloads_total",
			Help:      "In-place application reloads by outcome",
		}, []string{"outcome"}),
		checkDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hsu",
			Subsystem: "deployer",
			Name:      "check_duration_seconds",
			Help:      "Duration of reconciliation cycles",
			Buckets:   checkDurationBuckets,
		}),
		deployed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hsu",
			Subsystem: "deployer",
			Name:      "deployed_applications",
			Help:      "Number of applications currently tracked",
		}),
	}

	if registerer == nil {
		return m
	}

	collectors := []prometheus.Collector{m.deployments, m.undeployments, m.reloads, m.checkDuration, m.deployed}
	for _, collector := range collectors {
		err := registerer.Register(collector)
		if err == nil {
			continue
		}
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			continue
		}
		switch existing := already.ExistingCollector.(type) {
		case *prometheus.CounterVec:
			switch collector {
			case m.deployments:
				m.deployments = existing
			case m.undeployments:
				m.undeployments = existing
			case m.reloads:
				m.reloads = existing
			}
		case prometheus.Histogram:
			m.checkDuration = existing
		case prometheus.Gauge:
			m.deployed = existing
		}
	}
	return m
}

func (m *Metrics) recordDeployment(kind, outcome string) {
	m.deployments.With(prometheus.Labels{"kind": kind, "outcome": outcome}).Inc()
}

func (m *Metrics) recordUndeployment(reason string) {
	m.undeployments.With(prometheus.Labels{"reason": reason}).Inc()
}

func (m *Metrics) recordReload(outcome string) {
	m.reloads.With(prometheus.Labels{"outcome": outcome}).Inc()
}

func (m *Metrics) observeCheck(seconds float64) {
	m.checkDuration.Observe(seconds)
}

func (m *Metrics) setDeployed(count int) {
	m.deployed.Set(float64(count))
}
