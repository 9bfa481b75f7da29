// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

// Package amqp forwards the events of the agent to an AMQP topic exchange.
//
// Every event is published as JSON (`{"type":"...","event":{...}}`). Events of
// a sensor use the routing key "sensor.[sensor-id].[event-type]", other events
// (errors reported by the device agent, ping answers) use
// "agent.[event-type]". Consumers can bind to "sensor.*.Livedata" to receive
// all values, or to "sensor.[sensor-id].#" to follow a single sensor.
package amqp
