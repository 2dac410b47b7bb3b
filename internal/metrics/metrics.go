// Package metrics exposes fulfillment counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeGranted   = "granted"
	OutcomeDuplicate = "duplicate"
	OutcomeFailed    = "failed"
)

// Recorder is what services depend on.
type Recorder interface {
	RecordFulfillment(provider, product, outcome string)
	RecordNotification(kind, via string, ok bool)
	RecordDownload(result string)
	RecordProviderRejection(provider string)
}

type Collector struct {
	fulfillments       *prometheus.CounterVec
	notifications      *prometheus.CounterVec
	downloads          *prometheus.CounterVec
	providerRejections *prometheus.CounterVec
}

// NewCollector registers the counters on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		fulfillments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sinew_fulfillments_total",
			Help: "Fulfillment attempts by provider, product kind and outcome.",
		}, []string{"provider", "product", "outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sinew_notifications_total",
			Help: "Notification emails by kind, transport and result.",
		}, []string{"kind", "via", "result"}),
		downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sinew_downloads_total",
			Help: "Download token consumptions by result.",
		}, []string{"result"}),
		providerRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sinew_provider_rejections_total",
			Help: "Payments a provider reported as not approved or not completed.",
		}, []string{"provider"}),
	}

	reg.MustRegister(
		c.fulfillments,
		c.notifications,
		c.downloads,
		c.providerRejections,
	)

	return c
}

func (c *Collector) RecordFulfillment(provider, product, outcome string) {
	c.fulfillments.WithLabelValues(provider, product, outcome).Inc()
}

func (c *Collector) RecordNotification(kind, via string, ok bool) {
	result := "sent"
	if !ok {
		result = "failed"
	}
	if via == "" {
		via = "none"
	}
	c.notifications.WithLabelValues(kind, via, result).Inc()
}

func (c *Collector) RecordDownload(result string) {
	c.downloads.WithLabelValues(result).Inc()
}

func (c *Collector) RecordProviderRejection(provider string) {
	c.providerRejections.WithLabelValues(provider).Inc()
}

// Handler serves the gathered metrics in the Prometheus text format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordFulfillment(string, string, string) {}
func (Nop) RecordNotification(string, string, bool)  {}
func (Nop) RecordDownload(string)                    {}
func (Nop) RecordProviderRejection(string)           {}
