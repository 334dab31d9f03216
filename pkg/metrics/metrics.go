// Package metrics exposes Prometheus metrics of the frame bridge.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/robotalks/fpm.go/pkg/fpm"
)

// NewRegistry creates a registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler returns the HTTP handler serving the registry.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// BridgeMetrics counts frames forwarded to the sensor.
type BridgeMetrics struct {
	FramesTotal     *prometheus.CounterVec // labels: endpoint, cmd
	OutcomesTotal   *prometheus.CounterVec // labels: cmd, outcome
	RejectedTotal   *prometheus.CounterVec // labels: endpoint
	TransportErrors prometheus.Counter
	RoundTrip       prometheus.Histogram
}

// NewBridgeMetrics registers and returns the bridge metrics.
func NewBridgeMetrics(reg prometheus.Registerer) *BridgeMetrics {
	m := &BridgeMetrics{
		FramesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fpm_bridge_frames_total",
			Help: "Request frames forwarded to the sensor.",
		}, []string{"endpoint", "cmd"}),
		OutcomesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fpm_bridge_outcomes_total",
			Help: "Sensor replies by status outcome.",
		}, []string{"cmd", "outcome"}),
		RejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fpm_bridge_rejected_total",
			Help: "Malformed request frames not forwarded.",
		}, []string{"endpoint"}),
		TransportErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fpm_bridge_transport_errors_total",
			Help: "Serial write/read failures.",
		}),
		RoundTrip: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fpm_bridge_round_trip_seconds",
			Help:    "Time from request write to reply.",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2, 5},
		}),
	}
	reg.MustRegister(m.FramesTotal, m.OutcomesTotal, m.RejectedTotal, m.TransportErrors, m.RoundTrip)
	return m
}

// ObserveRequest counts a forwarded request.
func (m *BridgeMetrics) ObserveRequest(endpoint string, cmd byte) {
	m.FramesTotal.WithLabelValues(endpoint, cmdLabel(cmd)).Inc()
}

// ObserveReply records a reply to cmd. raw may be malformed.
func (m *BridgeMetrics) ObserveReply(cmd byte, raw []byte, elapsed time.Duration) {
	m.RoundTrip.Observe(elapsed.Seconds())
	m.OutcomesTotal.WithLabelValues(cmdLabel(cmd), outcomeLabel(cmd, raw)).Inc()
}

// outcomeLabel is the kind of the reply, or "match" for an identified
// finger, whose status byte is a permission.
func outcomeLabel(cmd byte, raw []byte) string {
	resp, err := fpm.Decode(raw)
	if err != nil {
		return fpm.KindMalformed.String()
	}
	outcome := fpm.ReplyOutcome(cmd, resp)
	if cmd == fpm.CmdVerifyOneToMany && outcome.OK() {
		return "match"
	}
	return outcome.Kind.String()
}

// ObserveRejected counts a request refused before reaching the sensor.
func (m *BridgeMetrics) ObserveRejected(endpoint string) {
	m.RejectedTotal.WithLabelValues(endpoint).Inc()
}

// ObserveTransportError counts a failed round trip.
func (m *BridgeMetrics) ObserveTransportError() {
	m.TransportErrors.Inc()
}

func cmdLabel(cmd byte) string {
	return fmt.Sprintf("0x%02x", cmd)
}
