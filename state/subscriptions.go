// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package state

import (
	"sort"

	"github.com/apex/log"
	"github.com/deckarep/golang-set"
	"github.com/sensorvision/agent/topic"
)

type metricKey struct {
	sensorID string
	metricID string
}

// subscriptionSet is the set of active entity subscriptions, indexed by the sensor or metric that
// justifies them. It is only modified by the engine, under the engine lock.
type subscriptionSet struct {
	ctx       log.Interface
	scheme    topic.Scheme
	transport Transport

	active   mapset.Set
	bySensor map[string][]string
	byMetric map[metricKey]string
}

func newSubscriptionSet(ctx log.Interface, scheme topic.Scheme, transport Transport) *subscriptionSet {
	return &subscriptionSet{
		ctx:       ctx,
		scheme:    scheme,
		transport: transport,
		active:    mapset.NewThreadUnsafeSet(),
		bySensor:  make(map[string][]string),
		byMetric:  make(map[metricKey]string),
	}
}

func (s *subscriptionSet) subscribe(topic string) {
	if !s.active.Add(topic) {
		return
	}
	if err := s.transport.Subscribe(topic); err != nil {
		s.ctx.WithError(err).WithField("Topic", topic).Warn("Could not subscribe")
	}
}

func (s *subscriptionSet) unsubscribe(topic string) {
	if !s.active.Contains(topic) {
		return
	}
	s.active.Remove(topic)
	if err := s.transport.Unsubscribe(topic); err != nil {
		s.ctx.WithError(err).WithField("Topic", topic).Warn("Could not unsubscribe")
	}
}

// AddSensor subscribes to the reply topics of a sensor
func (s *subscriptionSet) AddSensor(sensorID string) {
	if _, ok := s.bySensor[sensorID]; ok {
		return
	}
	topics := s.scheme.SensorTopics(sensorID)
	s.bySensor[sensorID] = topics
	for _, topic := range topics {
		s.subscribe(topic)
	}
}

// RemoveSensor unsubscribes from the reply topics of a sensor
func (s *subscriptionSet) RemoveSensor(sensorID string) {
	topics, ok := s.bySensor[sensorID]
	if !ok {
		return
	}
	delete(s.bySensor, sensorID)
	for _, topic := range topics {
		s.unsubscribe(topic)
	}
}

// AddMetric subscribes to the describe reply topic of a metric
func (s *subscriptionSet) AddMetric(sensorID, metricID string) {
	key := metricKey{sensorID, metricID}
	if _, ok := s.byMetric[key]; ok {
		return
	}
	topic := s.scheme.DescribeTopic(sensorID, metricID)
	s.byMetric[key] = topic
	s.subscribe(topic)
}

// RemoveMetric unsubscribes from the describe reply topic of a metric
func (s *subscriptionSet) RemoveMetric(sensorID, metricID string) {
	key := metricKey{sensorID, metricID}
	topic, ok := s.byMetric[key]
	if !ok {
		return
	}
	delete(s.byMetric, key)
	s.unsubscribe(topic)
}

// HasSensor returns true if the reply topics of the sensor are subscribed
func (s *subscriptionSet) HasSensor(sensorID string) bool {
	_, ok := s.bySensor[sensorID]
	return ok
}

// HasMetric returns true if the describe reply topic of the metric is subscribed
func (s *subscriptionSet) HasMetric(sensorID, metricID string) bool {
	_, ok := s.byMetric[metricKey{sensorID, metricID}]
	return ok
}

// Len returns the number of active topics
func (s *subscriptionSet) Len() int {
	return s.active.Cardinality()
}

// Topics returns the sorted active topics
func (s *subscriptionSet) Topics() []string {
	topics := make([]string, 0, s.active.Cardinality())
	for _, topic := range s.active.ToSlice() {
		topics = append(topics, topic.(string))
	}
	sort.Strings(topics)
	return topics
}
