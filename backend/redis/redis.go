// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

// Package redis forwards the events of the agent to Redis.
//
// Every event is published as JSON on the "[prefix]:events" channel. The latest
// value of every metric is kept in the hash "[prefix]:sensor:[sensor-id]:livedata",
// keyed by metric id. The hash follows the model: values of deleted metrics and
// sensors are removed.
package redis

import (
	"encoding/json"

	"github.com/apex/log"
	"github.com/sensorvision/agent/events"
	redis "gopkg.in/redis.v5"
)

// DefaultPrefix is used as prefix when no prefix is given
var DefaultPrefix = "sensorvision"

// Redis forwards events to Redis
type Redis struct {
	ctx    log.Interface
	client *redis.Client
	prefix string
}

// New returns a new Redis northbound backend
func New(client *redis.Client, prefix string, ctx log.Interface) *Redis {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Redis{
		ctx:    ctx.WithField("Connector", "Redis"),
		client: client,
		prefix: prefix,
	}
}

// EventsChannel returns the channel on which events are published
func (r *Redis) EventsChannel() string {
	return r.prefix + ":events"
}

// LivedataKey returns the hash that holds the latest values of a sensor
func (r *Redis) LivedataKey(sensorID string) string {
	return r.prefix + ":sensor:" + sensorID + ":livedata"
}

// Connect implements backend.Northbound
func (r *Redis) Connect() error {
	return r.client.Ping().Err()
}

// Disconnect implements backend.Northbound
func (r *Redis) Disconnect() error {
	return r.client.Close()
}

// PublishEvent implements backend.Northbound
func (r *Redis) PublishEvent(event events.Event) error {
	switch event := event.(type) {
	case events.Livedata:
		value, err := json.Marshal(event.Value)
		if err != nil {
			return err
		}
		if err := r.client.HSet(r.LivedataKey(event.SensorID), event.MetricID, string(value)).Err(); err != nil {
			return err
		}
	case events.MetricDeleted:
		if err := r.client.HDel(r.LivedataKey(event.SensorID), event.MetricID).Err(); err != nil {
			return err
		}
	case events.SensorDeleted:
		if err := r.client.Del(r.LivedataKey(event.SensorID)).Err(); err != nil {
			return err
		}
	}

	data, err := events.Marshal(event)
	if err != nil {
		return err
	}
	if err := r.client.Publish(r.EventsChannel(), string(data)).Err(); err != nil {
		return err
	}
	r.ctx.WithField("Event", event.Type()).Debug("Published event")
	return nil
}
