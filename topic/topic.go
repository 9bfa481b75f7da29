// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

// Package topic implements the MQTT topic grammar of the device agent.
//
// All device topics live below "/v1.0/<connector-id>/". Requests are published on request topics
// (for example "sensor/<sensor-id>/update") and the agent replies on the matching inbox topic
// ("sensor/<sensor-id>/update/info/inbox") or error inbox ("sensor/<sensor-id>/update/error/inbox").
// Ids are UUIDs in their 32 character hexadecimal form.
package topic

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Version of the topic tree
const Version = "v1.0"

// Certificate bootstrap topics, outside of the connector namespace
const (
	CreateClientTopic      = "/" + Version + "/createClient"
	CertificateReplyFormat = "/certBack/%s"
)

// Kind of request or reply
type Kind int

// Message kinds
const (
	Unknown Kind = iota
	SensorList
	SensorCreate
	SensorUpdate
	SensorDelete
	MetricCreate
	MetricUpdate
	MetricDelete
	MetricDescribe
	PushValues
	Livedata
	Ping
)

var kindNames = map[Kind]string{
	Unknown:        "Unknown",
	SensorList:     "SensorList",
	SensorCreate:   "SensorCreate",
	SensorUpdate:   "SensorUpdate",
	SensorDelete:   "SensorDelete",
	MetricCreate:   "MetricCreate",
	MetricUpdate:   "MetricUpdate",
	MetricDelete:   "MetricDelete",
	MetricDescribe: "MetricDescribe",
	PushValues:     "PushValues",
	Livedata:       "Livedata",
	Ping:           "Ping",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// SensorScoped returns true if replies of this kind belong to a single sensor
func (k Kind) SensorScoped() bool {
	switch k {
	case SensorUpdate, SensorDelete, MetricCreate, MetricUpdate, MetricDelete, MetricDescribe, PushValues, Livedata:
		return true
	}
	return false
}

// Wildcard is the placeholder for an id in a template
const Wildcard = "+"

var requestTemplates = map[Kind]string{
	SensorList:     "sensor/list",
	SensorCreate:   "sensor/create",
	SensorUpdate:   "sensor/+/update",
	SensorDelete:   "sensor/+/delete",
	MetricCreate:   "sensor/+/metric/create",
	MetricUpdate:   "sensor/+/metric/update",
	MetricDelete:   "sensor/+/metric/delete",
	MetricDescribe: "sensor/+/metric/+/inventory",
	PushValues:     "sensor/+/metric/pushValues",
	Ping:           "ping",
}

var replyTemplates = map[Kind]string{
	SensorList:     "inventory/inbox",
	SensorCreate:   "sensor/inbox",
	SensorUpdate:   "sensor/+/update/info/inbox",
	SensorDelete:   "sensor/+/delete/info/inbox",
	MetricCreate:   "sensor/+/metric/inbox",
	MetricUpdate:   "sensor/+/metric/update/info/inbox",
	MetricDelete:   "sensor/+/metric/delete/info/inbox",
	MetricDescribe: "sensor/+/metric/+/inventory/inbox",
	PushValues:     "sensor/+/info/inbox",
	Livedata:       "sensor/+/livedata",
	Ping:           "ping/info/inbox",
}

// The metric delete reply shares its error topic with metric create
var errorTemplates = map[Kind]string{
	SensorList:     "inventory/error/inbox",
	SensorCreate:   "sensor/error/inbox",
	SensorUpdate:   "sensor/+/update/error/inbox",
	SensorDelete:   "sensor/+/delete/error/inbox",
	MetricCreate:   "sensor/+/metric/error/inbox",
	MetricUpdate:   "sensor/+/metric/update/error/inbox",
	MetricDescribe: "sensor/+/metric/+/inventory/error/inbox",
	PushValues:     "sensor/+/error/inbox",
	Ping:           "ping/error/inbox",
}

// SensorReplies are the reply kinds that are subscribed for every sensor in the model
var SensorReplies = []Kind{SensorUpdate, SensorDelete, MetricCreate, MetricUpdate, MetricDelete, Livedata}

type template struct {
	kind     Kind
	error    bool
	segments []string
}

func compile(kind Kind, isError bool, tmpl string) template {
	return template{kind: kind, error: isError, segments: strings.Split(tmpl, "/")}
}

// no two templates match the same topic, so their order does not matter
var templates, requests []template

func init() {
	for kind, tmpl := range replyTemplates {
		templates = append(templates, compile(kind, false, tmpl))
	}
	for kind, tmpl := range errorTemplates {
		templates = append(templates, compile(kind, true, tmpl))
	}
	for kind, tmpl := range requestTemplates {
		requests = append(requests, compile(kind, false, tmpl))
	}
}

func (t template) match(segments []string) (ids []string, ok bool) {
	if len(segments) != len(t.segments) {
		return nil, false
	}
	for i, segment := range t.segments {
		if segment == Wildcard {
			id, err := NormalizeID(segments[i])
			if err != nil {
				return nil, false
			}
			ids = append(ids, id)
			continue
		}
		if segment != segments[i] {
			return nil, false
		}
	}
	return ids, true
}

// Route is the result of parsing an inbound topic
type Route struct {
	Kind     Kind
	Error    bool
	SensorID string
	MetricID string
}

// ErrInvalidID is returned for ids that are not UUIDs
var ErrInvalidID = errors.New("invalid id")

// NormalizeID validates an id and returns it in its 32 character hexadecimal form
func NormalizeID(id string) (string, error) {
	if id == "" || id == Wildcard {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	u, err := uuid.Parse(id)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return FormatID(u), nil
}

// FormatID formats a UUID in its 32 character hexadecimal form
func FormatID(u uuid.UUID) string {
	return strings.Replace(u.String(), "-", "", -1)
}

// Scheme builds and parses the topics of a single connector
type Scheme struct {
	ConnectorID string
	prefix      string
}

// NewScheme returns the topic scheme for the given connector
func NewScheme(connectorID string) Scheme {
	return Scheme{
		ConnectorID: connectorID,
		prefix:      fmt.Sprintf("/%s/%s/", Version, connectorID),
	}
}

// Root returns the wildcard topic that covers the entire connector namespace
func (s Scheme) Root() string {
	return s.prefix + "#"
}

func (s Scheme) render(tmpl string, ids ...string) string {
	for _, id := range ids {
		tmpl = strings.Replace(tmpl, Wildcard, id, 1)
	}
	return s.prefix + tmpl
}

// Request returns the request topic of the given kind
func (s Scheme) Request(kind Kind, ids ...string) string {
	return s.render(requestTemplates[kind], ids...)
}

// Reply returns the reply topic of the given kind
func (s Scheme) Reply(kind Kind, ids ...string) string {
	return s.render(replyTemplates[kind], ids...)
}

// ErrorReply returns the error reply topic of the given kind
func (s Scheme) ErrorReply(kind Kind, ids ...string) string {
	if kind == MetricDelete {
		kind = MetricCreate
	}
	return s.render(errorTemplates[kind], ids...)
}

// SensorTopics returns the reply topics that are subscribed for a sensor
func (s Scheme) SensorTopics(sensorID string) []string {
	topics := make([]string, 0, len(SensorReplies))
	for _, kind := range SensorReplies {
		topics = append(topics, s.Reply(kind, sensorID))
	}
	return topics
}

// DescribeTopic returns the reply topic of the describe request for a metric
func (s Scheme) DescribeTopic(sensorID, metricID string) string {
	return s.Reply(MetricDescribe, sensorID, metricID)
}

// Parse matches an inbound topic against the reply templates. Topics outside of the connector
// namespace and topics that match no template return a Route of kind Unknown.
func (s Scheme) Parse(topic string) Route {
	return s.parse(templates, topic)
}

// ParseRequest matches an outbound topic against the request templates
func (s Scheme) ParseRequest(topic string) Route {
	return s.parse(requests, topic)
}

func (s Scheme) parse(templates []template, topic string) Route {
	if !strings.HasPrefix(topic, s.prefix) {
		return Route{}
	}
	segments := strings.Split(strings.TrimPrefix(topic, s.prefix), "/")
	for _, t := range templates {
		ids, ok := t.match(segments)
		if !ok {
			continue
		}
		route := Route{Kind: t.kind, Error: t.error}
		if len(ids) > 0 {
			route.SensorID = ids[0]
		}
		if len(ids) > 1 {
			route.MetricID = ids[1]
		}
		return route
	}
	return Route{}
}

// CertificateReply returns the topic on which the certificate for the CSR with the given hash arrives
func CertificateReply(hash string) string {
	return fmt.Sprintf(CertificateReplyFormat, hash)
}
