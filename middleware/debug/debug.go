// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package debug

import (
	"github.com/apex/log"
	"github.com/sensorvision/agent/middleware"
	"github.com/sensorvision/agent/topic"
	"github.com/sensorvision/agent/types"
)

// New returns a middleware that debugs traffic
func New(ctx log.Interface, scheme topic.Scheme) *Debug {
	return &Debug{ctx: ctx, scheme: scheme}
}

// Debug middleware
type Debug struct {
	ctx    log.Interface
	scheme topic.Scheme
}

func (d *Debug) fields(msg *types.Message, route topic.Route) log.Fields {
	fields := log.Fields{
		"Topic": msg.Topic,
		"Size":  len(msg.Payload),
		"Kind":  route.Kind.String(),
	}
	if route.Error {
		fields["Error"] = true
	}
	if route.SensorID != "" {
		fields["SensorID"] = route.SensorID
	}
	if route.MetricID != "" {
		fields["MetricID"] = route.MetricID
	}
	return fields
}

// HandleInbound debugs inbound traffic
func (d *Debug) HandleInbound(_ middleware.Context, msg *types.Message) error {
	d.ctx.WithFields(d.fields(msg, d.scheme.Parse(msg.Topic))).Debug("Received message")
	return nil
}

// HandleOutbound debugs outbound traffic
func (d *Debug) HandleOutbound(_ middleware.Context, msg *types.Message) error {
	d.ctx.WithFields(d.fields(msg, d.scheme.ParseRequest(msg.Topic))).Debug("Publishing request")
	return nil
}
