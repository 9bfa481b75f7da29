// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package events

import "github.com/prometheus/client_golang/prometheus"

var deliveredCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "sensorvision",
		Subsystem: "events",
		Name:      "delivered_total",
		Help:      "Total number of events delivered to observers.",
	}, []string{"event_type"},
)

var observerErrors = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "sensorvision",
		Subsystem: "events",
		Name:      "observer_errors_total",
		Help:      "Total number of events that an observer failed to handle.",
	},
)

var queueLength = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "sensorvision",
		Subsystem: "events",
		Name:      "queue_length",
		Help:      "Number of events waiting for delivery.",
	},
)

func init() {
	prometheus.MustRegister(deliveredCounter)
	prometheus.MustRegister(observerErrors)
	prometheus.MustRegister(queueLength)
}
