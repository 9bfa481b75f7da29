// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package state

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sensorvision/agent/topic"
)

var sensorsGauge = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "sensorvision",
		Subsystem: "state",
		Name:      "sensors",
		Help:      "Number of sensors in the model.",
	},
)

var metricsGauge = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "sensorvision",
		Subsystem: "state",
		Name:      "metrics",
		Help:      "Number of metrics in the model.",
	},
)

var subscriptionsGauge = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "sensorvision",
		Subsystem: "state",
		Name:      "subscriptions",
		Help:      "Number of active entity subscriptions.",
	},
)

var handledCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "sensorvision",
		Subsystem: "state",
		Name:      "messages_handled_total",
		Help:      "Total number of messages handled.",
	}, []string{"message_type"},
)

var decodeErrorCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "sensorvision",
		Subsystem: "state",
		Name:      "decode_errors_total",
		Help:      "Total number of messages with a payload that could not be decoded.",
	}, []string{"message_type"},
)

func messageType(route topic.Route) string {
	if route.Error {
		return route.Kind.String() + "Error"
	}
	return route.Kind.String()
}

func registerHandled(route topic.Route) {
	handledCounter.WithLabelValues(messageType(route)).Inc()
}

func registerDecodeError(route topic.Route) {
	decodeErrorCounter.WithLabelValues(messageType(route)).Inc()
}

func init() {
	prometheus.MustRegister(sensorsGauge)
	prometheus.MustRegister(metricsGauge)
	prometheus.MustRegister(subscriptionsGauge)
	prometheus.MustRegister(handledCounter)
	prometheus.MustRegister(decodeErrorCounter)
}
