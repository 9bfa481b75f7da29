// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package mqtt

import (
	"crypto/tls"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/deckarep/golang-set"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sensorvision/agent/backend"
	"github.com/sensorvision/agent/topic"
	"github.com/sensorvision/agent/types"
)

// DefaultClientID is the prefix of the client ids of the sessions
const DefaultClientID = "sv"

// QoS indicates the MQTT Quality of Service level.
// 0: The broker/client will deliver the message once, with no confirmation.
// 1: The broker/client will deliver the message at least once, with confirmation required.
// 2: The broker/client will deliver the message exactly once by using a four step handshake.
var (
	PublishQoS   byte = 0x01
	SubscribeQoS byte = 0x01
)

// BufferSize indicates the maximum number of MQTT messages that should be buffered
var BufferSize = 256

// Config contains configuration for MQTT
type Config struct {
	Brokers     []string
	ClientID    string
	ConnectorID string
	TLSConfig   *tls.Config
}

// session is the part of paho.Client that the backend uses
type session interface {
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
	Unsubscribe(topics ...string) paho.Token
}

var newClient = func(opts *paho.ClientOptions) session {
	return paho.NewClient(opts)
}

// MQTT side of the agent
type MQTT struct {
	ctx    log.Interface
	config Config
	scheme topic.Scheme

	request session
	event   session

	mu            sync.Mutex
	handler       backend.Handler
	subscriptions mapset.Set

	inbound   chan *types.Message
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// New returns a new MQTT
func New(config Config, ctx log.Interface) (*MQTT, error) {
	if config.ConnectorID == "" {
		return nil, ErrNoConnectorID
	}
	if config.ClientID == "" {
		config.ClientID = DefaultClientID
	}
	mqtt := &MQTT{
		ctx:           ctx.WithField("Connector", "MQTT"),
		config:        config,
		scheme:        topic.NewScheme(config.ConnectorID),
		subscriptions: mapset.NewSet(),
		inbound:       make(chan *types.Message, BufferSize),
		done:          make(chan struct{}),
	}
	mqtt.request = newClient(mqtt.options("request", nil))
	mqtt.event = newClient(mqtt.options("event", mqtt.resubscribe))
	return mqtt, nil
}

func (c *MQTT) options(name string, onReconnect func()) *paho.ClientOptions {
	ctx := c.ctx.WithField("Session", name)

	mqttOpts := paho.NewClientOptions()
	for _, broker := range c.config.Brokers {
		mqttOpts.AddBroker(broker)
	}
	if c.config.TLSConfig != nil {
		mqttOpts.SetTLSConfig(c.config.TLSConfig)
	}
	mqttOpts.SetClientID(fmt.Sprintf("%s_%s", c.config.ClientID, name))
	mqttOpts.SetKeepAlive(30 * time.Second)
	mqttOpts.SetPingTimeout(10 * time.Second)
	mqttOpts.SetCleanSession(true)
	mqttOpts.SetAutoReconnect(true)
	mqttOpts.SetOrderMatters(true)
	mqttOpts.SetDefaultPublishHandler(func(_ paho.Client, msg paho.Message) {
		ctx.WithField("Topic", msg.Topic()).Warn("Received unhandled message on MQTT")
	})

	var (
		mu           sync.Mutex
		reconnecting bool
	)
	mqttOpts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		ctx.Warnf("Disconnected (%s). Reconnecting...", err.Error())
		mu.Lock()
		reconnecting = true
		mu.Unlock()
	})
	mqttOpts.SetOnConnectHandler(func(_ paho.Client) {
		ctx.Info("Connected")
		mu.Lock()
		wasReconnecting := reconnecting
		reconnecting = false
		mu.Unlock()
		if wasReconnecting && onReconnect != nil {
			onReconnect()
		}
	})
	return mqttOpts
}

// SetHandler implements backend.Southbound
func (c *MQTT) SetHandler(handler backend.Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

func (c *MQTT) getHandler() backend.Handler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler
}

func (c *MQTT) connect(name string, session session) error {
	token := session.Connect()
	finished := token.WaitTimeout(1 * time.Second)
	if !finished {
		c.ctx.WithField("Session", name).Warn("MQTT connection took longer than expected...")
		token.Wait()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w (%s session): %s", ErrConnect, name, err)
	}
	return nil
}

// Connect both sessions and subscribe to the connector namespace
func (c *MQTT) Connect() error {
	c.startOnce.Do(func() {
		c.wg.Add(1)
		go c.dispatch()
	})
	if err := c.connect("request", c.request); err != nil {
		return err
	}
	if err := c.connect("event", c.event); err != nil {
		c.request.Disconnect(100)
		return err
	}
	token := c.event.Subscribe(c.scheme.Root(), SubscribeQoS, c.receive)
	token.Wait()
	if err := token.Error(); err != nil {
		c.Disconnect()
		return fmt.Errorf("%w: could not subscribe to %s: %s", ErrConnect, c.scheme.Root(), err)
	}
	c.ctx.WithField("ConnectorID", c.config.ConnectorID).Info("Subscribed to connector")
	return nil
}

// Disconnect both sessions and stop dispatching messages
func (c *MQTT) Disconnect() error {
	c.event.Disconnect(100)
	c.request.Disconnect(100)
	c.stopOnce.Do(func() {
		close(c.done)
	})
	c.wg.Wait()
	return nil
}

func (c *MQTT) receive(_ paho.Client, msg paho.Message) {
	if msg.Retained() {
		c.ctx.WithField("Topic", msg.Topic()).Debug("Ignore retained message")
		return
	}
	select {
	case c.inbound <- &types.Message{Topic: msg.Topic(), Payload: msg.Payload()}:
	case <-c.done:
	}
}

func (c *MQTT) dispatch() {
	defer c.wg.Done()
	for {
		select {
		case msg := <-c.inbound:
			if handler := c.getHandler(); handler != nil {
				handler(msg)
			}
		case <-c.done:
			return
		}
	}
}

// wait logs the outcome of the token. Disconnect waits for these goroutines; tokens that are not
// done by then are not logged.
func (c *MQTT) wait(ctx log.Interface, token paho.Token, action string) {
	select {
	case <-c.done:
		return
	default:
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		select {
		case <-token.Done():
		case <-c.done:
			select {
			case <-token.Done():
			default:
				return
			}
		}
		if err := token.Error(); err != nil {
			ctx.WithError(err).Warnf("Could not %s", action)
			return
		}
		ctx.Debugf("Completed %s", action)
	}()
}

// Publish implements backend.Southbound. It does not wait for the broker to acknowledge the message.
func (c *MQTT) Publish(topic string, payload []byte) error {
	token := c.request.Publish(topic, PublishQoS, false, payload)
	c.wait(c.ctx.WithFields(log.Fields{
		"Topic":       topic,
		"PayloadSize": len(payload),
	}), token, "publish")
	return nil
}

// Subscribe implements backend.Southbound. The subscription has no handler of its own: its messages
// are handled by the subscription to the connector namespace.
func (c *MQTT) Subscribe(topic string) error {
	c.mu.Lock()
	added := c.subscriptions.Add(topic)
	c.mu.Unlock()
	if !added {
		return nil
	}
	c.wait(c.ctx.WithField("Topic", topic), c.event.Subscribe(topic, SubscribeQoS, nil), "subscribe")
	return nil
}

// Unsubscribe implements backend.Southbound
func (c *MQTT) Unsubscribe(topic string) error {
	c.mu.Lock()
	known := c.subscriptions.Contains(topic)
	c.subscriptions.Remove(topic)
	c.mu.Unlock()
	if !known {
		return nil
	}
	c.wait(c.ctx.WithField("Topic", topic), c.event.Unsubscribe(topic), "unsubscribe")
	return nil
}

// Subscriptions returns the sorted topics that are subscribed in addition to the connector namespace
func (c *MQTT) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	topics := make([]string, 0, c.subscriptions.Cardinality())
	for _, topic := range c.subscriptions.ToSlice() {
		topics = append(topics, topic.(string))
	}
	sort.Strings(topics)
	return topics
}

// resubscribe restores the subscriptions after the event session reconnected without a session
func (c *MQTT) resubscribe() {
	c.ctx.Info("Restoring subscriptions")
	c.event.Subscribe(c.scheme.Root(), SubscribeQoS, c.receive)
	for _, topic := range c.Subscriptions() {
		c.event.Subscribe(topic, SubscribeQoS, nil)
	}
}
