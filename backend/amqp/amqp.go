// Copyright © 2016 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package amqp

import (
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/sensorvision/agent/events"
	"github.com/streadway/amqp"
)

// New returns a new AMQP
func New(config Config, ctx log.Interface) (*AMQP, error) {
	if config.ExchangeName == "" {
		config.ExchangeName = "amq.topic"
	}
	return &AMQP{
		ctx:    ctx.WithField("Connector", "AMQP"),
		config: config,
	}, nil
}

// Routing key formats for sensor events and agent events
var (
	SensorRoutingKeyFormat = "sensor.%s.%s"
	AgentRoutingKeyFormat  = "agent.%s"
)

// RoutingKey returns the routing key of an event
func RoutingKey(event events.Event) string {
	if sensorID := events.SensorID(event); sensorID != "" {
		return fmt.Sprintf(SensorRoutingKeyFormat, sensorID, event.Type())
	}
	return fmt.Sprintf(AgentRoutingKeyFormat, event.Type())
}

// Config contains configuration for AMQP
type Config struct {
	Address      string
	Username     string
	Password     string
	VHost        string
	ExchangeName string
	TLSConfig    *tls.Config
}

func (c Config) url() (url string) {
	if c.TLSConfig != nil {
		url += "amqps://"
	} else {
		url += "amqp://"
	}
	if c.Username != "" {
		url += c.Username
		if c.Password != "" {
			url += ":" + c.Password
		}
		url += "@"
	}
	url += c.Address
	if c.VHost != "" {
		url += "/" + c.VHost
	}
	return
}

// ErrNotConnected is returned when publishing before Connect
var ErrNotConnected = errors.New("AMQP is not connected")

// AMQP forwards events to an exchange
type AMQP struct {
	config  Config
	ctx     log.Interface
	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

var (
	// ConnectRetries says how many times the client should retry a failed connection
	ConnectRetries = 10
	// ConnectRetryDelay says how long the client should wait between retries
	ConnectRetryDelay = time.Second
)

func (c *AMQP) dial() (*amqp.Connection, error) {
	if c.config.TLSConfig != nil {
		return amqp.DialTLS(c.config.url(), c.config.TLSConfig)
	}
	return amqp.Dial(c.config.url())
}

func (c *AMQP) setup(conn *amqp.Connection) (*amqp.Channel, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.ExchangeDeclarePassive(c.config.ExchangeName, "topic", true, false, false, false, nil); err != nil {
		c.ctx.WithError(err).Warnf("Exchange %s does not exist, trying to create...", c.config.ExchangeName)
		// A failed passive declare closes the channel
		ch, err = conn.Channel()
		if err != nil {
			return nil, err
		}
		if err := ch.ExchangeDeclare(c.config.ExchangeName, "topic", true, false, false, false, nil); err != nil {
			ch.Close()
			return nil, err
		}
	}
	return ch, nil
}

// Connect to AMQP
func (c *AMQP) Connect() error {
	var (
		conn *amqp.Connection
		err  error
	)
	for retries := 0; retries < ConnectRetries; retries++ {
		conn, err = c.dial()
		if err == nil {
			break
		}
		c.ctx.Warnf("Could not connect to AMQP (%s). Retrying...", err.Error())
		<-time.After(ConnectRetryDelay)
	}
	if err != nil {
		return fmt.Errorf("Could not connect to AMQP (%s)", err)
	}
	ch, err := c.setup(conn)
	if err != nil {
		conn.Close()
		return err
	}
	c.mu.Lock()
	c.conn, c.channel = conn, ch
	c.mu.Unlock()
	c.ctx.Info("Connected to AMQP")
	return nil
}

// Disconnect from AMQP
func (c *AMQP) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	c.channel.Close()
	err := c.conn.Close()
	c.conn, c.channel = nil, nil
	return err
}

// PublishEvent implements backend.Northbound
func (c *AMQP) PublishEvent(event events.Event) error {
	body, err := events.Marshal(event)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel == nil {
		return ErrNotConnected
	}
	key := RoutingKey(event)
	err = c.channel.Publish(c.config.ExchangeName, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Type:         event.Type(),
		Body:         body,
	})
	if err != nil {
		return err
	}
	c.ctx.WithField("RoutingKey", key).Debug("Published event")
	return nil
}
