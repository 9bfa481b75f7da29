// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package mqtt

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/apex/log"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sensorvision/agent/auth"
	"github.com/sensorvision/agent/topic"
)

// DefaultBootstrapTimeout is the time to wait for the certificate
const DefaultBootstrapTimeout = 30 * time.Second

// BootstrapConfig contains configuration for the certificate bootstrap
type BootstrapConfig struct {
	Brokers  []string
	ClientID string
	RootCAs  *x509.CertPool
	Timeout  time.Duration
}

// Bootstrapper obtains the client certificate from the device agent
type Bootstrapper struct {
	ctx    log.Interface
	config BootstrapConfig
	store  auth.Store
}

// NewBootstrapper returns a new Bootstrapper that reads the certificate signing request from the
// store and saves the issued certificate in it
func NewBootstrapper(config BootstrapConfig, store auth.Store, ctx log.Interface) *Bootstrapper {
	if config.ClientID == "" {
		config.ClientID = DefaultClientID
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultBootstrapTimeout
	}
	return &Bootstrapper{
		ctx:    ctx.WithField("Connector", "Bootstrap"),
		config: config,
		store:  store,
	}
}

// CSRHash returns the hash that correlates the certificate with its signing request
func CSRHash(csr []byte) string {
	hash := sha256.Sum256(csr)
	return hex.EncodeToString(hash[:])
}

func waitToken(ctx context.Context, token paho.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run the bootstrap. It blocks until the certificate is saved, the timeout expires or the context
// is done. Nothing is saved unless the reply is a certificate.
func (b *Bootstrapper) Run(ctx context.Context) error {
	csr, err := b.store.ReadCSR()
	if err != nil {
		return err
	}
	hash := CSRHash(csr)
	logger := b.ctx.WithField("Hash", hash)

	ctx, cancel := context.WithTimeout(ctx, b.config.Timeout)
	defer cancel()

	mqttOpts := paho.NewClientOptions()
	for _, broker := range b.config.Brokers {
		mqttOpts.AddBroker(broker)
	}
	mqttOpts.SetTLSConfig(&tls.Config{
		RootCAs:    b.config.RootCAs,
		MinVersion: tls.VersionTLS12,
	})
	mqttOpts.SetClientID(fmt.Sprintf("%s_cert", b.config.ClientID))
	mqttOpts.SetCleanSession(true)
	mqttOpts.SetAutoReconnect(false)
	client := newClient(mqttOpts)

	failed := func(action string, err error) error {
		if ctx.Err() != nil {
			return fmt.Errorf("%w while trying to %s", ErrBootstrapTimeout, action)
		}
		return fmt.Errorf("%w: could not %s: %s", ErrConnect, action, err)
	}

	if err := waitToken(ctx, client.Connect()); err != nil {
		return failed("connect", err)
	}
	defer client.Disconnect(100)

	replies := make(chan []byte, 1)
	replyTopic := topic.CertificateReply(hash)
	if err := waitToken(ctx, client.Subscribe(replyTopic, SubscribeQoS, func(_ paho.Client, msg paho.Message) {
		select {
		case replies <- msg.Payload():
		default:
		}
	})); err != nil {
		return failed("subscribe to "+replyTopic, err)
	}

	if err := waitToken(ctx, client.Publish(topic.CreateClientTopic, PublishQoS, false, csr)); err != nil {
		return failed("publish the certificate signing request", err)
	}
	logger.Info("Published certificate signing request")

	select {
	case reply := <-replies:
		cert, err := auth.ParseCertificate(reply)
		if err != nil {
			logger.WithError(err).Warn("Received invalid certificate")
			return fmt.Errorf("%w: %s", ErrBootstrapRejected, err)
		}
		if err := b.store.SaveCertificate(reply); err != nil {
			return err
		}
		logger.WithField("CommonName", cert.Subject.CommonName).Info("Saved client certificate")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w after %s", ErrBootstrapTimeout, b.config.Timeout)
	}
}
