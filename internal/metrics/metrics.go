// Package metrics exposes provisioning counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tortuga"

// Metrics holds the provisioning collectors. A nil *Metrics discards
// observations.
type Metrics struct {
	nodesAdded      *prometheus.CounterVec
	addHostFailures *prometheus.CounterVec
	nodesDeleted    prometheus.Counter
	nodeRequests    *prometheus.CounterVec
	registerer      prometheus.Registerer
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		nodesAdded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nodes_added_total",
			Help:      "Number of nodes committed by add-host sessions.",
		}, []string{"hardware_profile"}),
		addHostFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "add_host_failures_total",
			Help:      "Number of add-host batches that failed before or during commit.",
		}, []string{"hardware_profile"}),
		nodesDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nodes_deleted_total",
			Help:      "Number of nodes removed by the deletion workflow.",
		}),
		nodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_requests_total",
			Help:      "Number of asynchronous node requests by terminal state.",
		}, []string{"state"}),
		registerer: reg,
	}

	for _, c := range []prometheus.Collector{m.nodesAdded, m.addHostFailures, m.nodesDeleted, m.nodeRequests} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// NodesAdded records n committed nodes for a hardware profile
func (m *Metrics) NodesAdded(hardwareProfile string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.nodesAdded.WithLabelValues(hardwareProfile).Add(float64(n))
}

// AddHostFailed records a failed add-host batch
func (m *Metrics) AddHostFailed(hardwareProfile string) {
	if m == nil {
		return
	}
	m.addHostFailures.WithLabelValues(hardwareProfile).Inc()
}

// NodesDeleted records n deleted nodes
func (m *Metrics) NodesDeleted(n int) {
	if m == nil {
		return
	}
	m.nodesDeleted.Add(float64(n))
}

// NodeRequestFinished records the terminal state of a queued request
func (m *Metrics) NodeRequestFinished(state string) {
	if m == nil {
		return
	}
	m.nodeRequests.WithLabelValues(state).Inc()
}

// ReservationCounter reports the number of pending names and IPs
type ReservationCounter interface {
	Len() (names, ips int)
}

// TrackReservations exports the size of the pending reservation sets
func (m *Metrics) TrackReservations(store ReservationCounter) error {
	if m == nil {
		return nil
	}

	names := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pending_names",
		Help:      "Node names reserved by in-flight nodes.",
	}, func() float64 {
		n, _ := store.Len()
		return float64(n)
	})
	ips := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pending_ips",
		Help:      "IP addresses reserved by in-flight nodes.",
	}, func() float64 {
		_, n := store.Len()
		return float64(n)
	})

	if err := m.registerer.Register(names); err != nil {
		return err
	}
	return m.registerer.Register(ips)
}
