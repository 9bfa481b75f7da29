// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/TheThingsNetwork/go-utils/rate"
	"github.com/sensorvision/agent/events"
	"github.com/sensorvision/agent/middleware"
	"github.com/sensorvision/agent/topic"
	"github.com/sensorvision/agent/types"
	redis "gopkg.in/redis.v5"
)

// Limits per minute and per sensor. Zero means unlimited.
type Limits struct {
	Push     int
	Requests int
}

// sensor creation has no sensor id yet; those requests share one limit
const newSensors = "new"

// NewRateLimit returns a middleware that rate-limits pushed values and other modifying requests
// per sensor
func NewRateLimit(scheme topic.Scheme, conf Limits) *RateLimit {
	return &RateLimit{
		scheme:  scheme,
		limits:  conf,
		sensors: make(map[string]*limits),
	}
}

// NewRedisRateLimit returns a RateLimit that keeps its counters in Redis, so that they are shared
// between agents of the same connector
func NewRedisRateLimit(client *redis.Client, scheme topic.Scheme, conf Limits) *RateLimit {
	l := NewRateLimit(scheme, conf)
	l.client = client
	return l
}

// RateLimit pushed values and modifying requests per sensor
type RateLimit struct {
	scheme topic.Scheme
	limits Limits
	client *redis.Client

	mu      sync.Mutex
	sensors map[string]*limits
}

type limits struct {
	push     rate.Limiter
	requests rate.Limiter
}

func (l *RateLimit) newLimiter(sensorID, kind string, limit int) rate.Limiter {
	if limit == 0 {
		return nil
	}
	var counter rate.Counter
	if l.client != nil {
		key := fmt.Sprintf("ratelimit:%s:%s:%s", l.scheme.ConnectorID, sensorID, kind)
		counter = rate.NewRedisCounter(l.client, key, time.Second, time.Minute)
	} else {
		counter = rate.NewCounter(time.Second, time.Minute)
	}
	return rate.NewLimiter(counter, time.Minute, uint64(limit))
}

func (l *RateLimit) get(sensorID string) *limits {
	l.mu.Lock()
	defer l.mu.Unlock()
	if sensor, ok := l.sensors[sensorID]; ok {
		return sensor
	}
	sensor := &limits{
		push:     l.newLimiter(sensorID, "push", l.limits.Push),
		requests: l.newLimiter(sensorID, "requests", l.limits.Requests),
	}
	l.sensors[sensorID] = sensor
	return sensor
}

// ErrRateLimited is returned if the rate limit has been reached
var ErrRateLimited = errors.New("rate limit reached")

// HandleOutbound rate-limits pushed values and requests that create, update or delete
func (l *RateLimit) HandleOutbound(_ middleware.Context, msg *types.Message) error {
	route := l.scheme.ParseRequest(msg.Topic)
	var limiter rate.Limiter
	switch route.Kind {
	case topic.PushValues:
		limiter = l.get(route.SensorID).push
	case topic.SensorCreate:
		limiter = l.get(newSensors).requests
	case topic.SensorUpdate, topic.SensorDelete, topic.MetricCreate, topic.MetricUpdate, topic.MetricDelete:
		limiter = l.get(route.SensorID).requests
	}
	if limiter == nil {
		return nil
	}
	limit, err := limiter.Limit()
	if err != nil {
		return err
	}
	if limit {
		return ErrRateLimited
	}
	return nil
}

// HandleEvent forgets the limits of deleted sensors
func (l *RateLimit) HandleEvent(event events.Event) error {
	if deleted, ok := event.(events.SensorDeleted); ok {
		l.forget(deleted.SensorID)
	}
	return nil
}

func (l *RateLimit) forget(sensorID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.sensors, sensorID)
}
