package pktdcf

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts what happens at each station of an experiment.  Counters are
// registered on a registry of their own so that experiments run side by side
// do not share them
type Metrics struct {
	Registry *prometheus.Registry

	TxOk           *prometheus.CounterVec
	TxFailed       *prometheus.CounterVec
	QueueDrops     *prometheus.CounterVec
	RxOk           *prometheus.CounterVec
	RxError        *prometheus.CounterVec
	Relayed        *prometheus.CounterVec
	Delivered      *prometheus.CounterVec
	DeliveredBytes *prometheus.CounterVec
	Delay          *prometheus.HistogramVec
}

// CreateMetrics is a constructor
func CreateMetrics() *Metrics {
	m := new(Metrics)
	m.Registry = prometheus.NewRegistry()
	counter := func(name, help string, label string) *prometheus.CounterVec {
		cv := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pktdcf",
			Name:      name,
			Help:      help,
		}, []string{label})
		m.Registry.MustRegister(cv)
		return cv
	}
	m.TxOk = counter("tx_ok_total", "Frames acknowledged, or sent without need of acknowledgement.", "station")
	m.TxFailed = counter("tx_failed_total", "Frames given up on after the retry limit.", "station")
	m.QueueDrops = counter("queue_drops_total", "Packets dropped at a full or flushed queue.", "station")
	m.RxOk = counter("rx_ok_total", "Frames received intact.", "station")
	m.RxError = counter("rx_error_total", "Frames lost to collision or channel error.", "station")
	m.Relayed = counter("relayed_total", "Packets forwarded toward another station.", "station")
	m.Delivered = counter("delivered_total", "Packets delivered to their destination.", "flow")
	m.DeliveredBytes = counter("delivered_bytes_total", "Bytes delivered to their destination.", "flow")

	m.Delay = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pktdcf",
		Name:      "delay_seconds",
		Help:      "Time from a packet's arrival at its source to its delivery.",
		Buckets:   prometheus.ExponentialBuckets(100e-6, 2, 16),
	}, []string{"flow"})
	m.Registry.MustRegister(m.Delay)
	return m
}
