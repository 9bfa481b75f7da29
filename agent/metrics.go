// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package agent

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sensorvision/agent/topic"
)

var requestCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "sensorvision",
		Subsystem: "agent",
		Name:      "requests_total",
		Help:      "Total number of requests published to the device agent.",
	}, []string{"request_type"},
)

var refusedCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "sensorvision",
		Subsystem: "agent",
		Name:      "requests_refused_total",
		Help:      "Total number of requests refused by middleware.",
	}, []string{"request_type"},
)

var droppedCounter = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "sensorvision",
		Subsystem: "agent",
		Name:      "messages_dropped_total",
		Help:      "Total number of received messages dropped by middleware.",
	},
)

func registerRequest(route topic.Route) {
	requestCounter.WithLabelValues(route.Kind.String()).Inc()
}

func registerRefused(route topic.Route) {
	refusedCounter.WithLabelValues(route.Kind.String()).Inc()
}

func registerDropped() {
	droppedCounter.Inc()
}

func init() {
	prometheus.MustRegister(requestCounter)
	prometheus.MustRegister(refusedCounter)
	prometheus.MustRegister(droppedCounter)
}
