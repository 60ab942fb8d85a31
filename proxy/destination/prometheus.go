package destination

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

type (
	resolutionMetricsVecs struct {
		resolutions *prometheus.GaugeVec
		updates     *prometheus.CounterVec
		reconnects  *prometheus.CounterVec
	}

	resolutionMetrics struct {
		labels     prometheus.Labels
		vecs       resolutionMetricsVecs
		updates    prometheus.Counter
		reconnects prometheus.Counter
	}
)

var resolutionVecs = newResolutionMetricsVecs()

func newResolutionMetricsVecs() resolutionMetricsVecs {
	labels := []string{"authority"}

	resolutions := promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "destination_resolutions",
			Help: "A gauge which is 1 while a resolution is active for an authority.",
		},
		labels,
	)

	updates := promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "destination_resolution_updates",
			Help: "A counter for the number of updates applied to a resolution.",
		},
		labels,
	)

	reconnects := promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "destination_resolution_reconnects",
			Help: "A counter for the number of times a resolution's stream was reopened.",
		},
		labels,
	)

	return resolutionMetricsVecs{
		resolutions: resolutions,
		updates:     updates,
		reconnects:  reconnects,
	}
}

func (rmv resolutionMetricsVecs) newResolutionMetrics(authority Authority) resolutionMetrics {
	labels := prometheus.Labels{"authority": authority.String()}
	rmv.resolutions.With(labels).Set(1.0)
	return resolutionMetrics{
		labels:     labels,
		vecs:       rmv,
		updates:    rmv.updates.With(labels),
		reconnects: rmv.reconnects.With(labels),
	}
}

func (rm resolutionMetrics) incUpdates() {
	rm.updates.Inc()
}

func (rm resolutionMetrics) incReconnects() {
	rm.reconnects.Inc()
}

func (rm resolutionMetrics) unregister() {
	if !rm.vecs.resolutions.Delete(rm.labels) {
		log.Warnf("unable to delete destination_resolutions metric with labels %s", rm.labels)
	}
	if !rm.vecs.updates.Delete(rm.labels) {
		log.Warnf("unable to delete destination_resolution_updates metric with labels %s", rm.labels)
	}
	if !rm.vecs.reconnects.Delete(rm.labels) {
		log.Warnf("unable to delete destination_resolution_reconnects metric with labels %s", rm.labels)
	}
}
