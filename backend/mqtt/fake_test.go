// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package mqtt

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sensorvision/agent/types"
)

type fakeToken struct {
	paho.Token
	err  error
	done chan struct{}
}

func newToken(err error) *fakeToken {
	done := make(chan struct{})
	close(done)
	return &fakeToken{err: err, done: done}
}

func (t *fakeToken) Wait() bool                     { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type fakeMessage struct {
	paho.Message
	topic    string
	payload  []byte
	retained bool
}

func (m *fakeMessage) Topic() string   { return m.topic }
func (m *fakeMessage) Payload() []byte { return m.payload }
func (m *fakeMessage) Retained() bool  { return m.retained }

type fakeSession struct {
	mu           sync.Mutex
	opts         *paho.ClientOptions
	connectErr   error
	connected    bool
	published    []types.Message
	routes       map[string]paho.MessageHandler
	subscribed   []string
	unsubscribed []string
	onPublish    func(s *fakeSession, topic string, payload []byte)
}

func (s *fakeSession) Connect() paho.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connectErr == nil {
		s.connected = true
	}
	return newToken(s.connectErr)
}

func (s *fakeSession) Disconnect(quiesce uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
}

func (s *fakeSession) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	s.mu.Lock()
	s.published = append(s.published, types.Message{Topic: topic, Payload: payload.([]byte)})
	onPublish := s.onPublish
	s.mu.Unlock()
	if onPublish != nil {
		go onPublish(s, topic, payload.([]byte))
	}
	return newToken(nil)
}

func (s *fakeSession) Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribed = append(s.subscribed, topic)
	if callback != nil {
		s.routes[topic] = callback
	}
	return newToken(nil)
}

func (s *fakeSession) Unsubscribe(topics ...string) paho.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsubscribed = append(s.unsubscribed, topics...)
	return newToken(nil)
}

// deliver a message through the route of the given subscription
func (s *fakeSession) deliver(route, topic string, payload []byte, retained bool) {
	s.mu.Lock()
	handler := s.routes[route]
	s.mu.Unlock()
	if handler != nil {
		handler(nil, &fakeMessage{topic: topic, payload: payload, retained: retained})
	}
}

func (s *fakeSession) Subscribed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.subscribed...)
}

func (s *fakeSession) Published() []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Message(nil), s.published...)
}

type fakeBroker struct {
	mu       sync.Mutex
	sessions map[string]*fakeSession
	prepare  func(*fakeSession)
}

func (b *fakeBroker) newClient(opts *paho.ClientOptions) session {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := &fakeSession{opts: opts, routes: make(map[string]paho.MessageHandler)}
	if b.prepare != nil {
		b.prepare(s)
	}
	b.sessions[opts.ClientID] = s
	return s
}

func (b *fakeBroker) session(clientID string) *fakeSession {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sessions[clientID]
}

// useFakeBroker replaces the paho client until the returned function is called
func useFakeBroker(prepare func(*fakeSession)) (*fakeBroker, func()) {
	broker := &fakeBroker{sessions: make(map[string]*fakeSession), prepare: prepare}
	previous := newClient
	newClient = broker.newClient
	return broker, func() { newClient = previous }
}

// generate returns a self-signed certificate, its private key and a certificate signing request
func generate(commonName string) (certPEM, keyPEM, csrPEM []byte) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		panic(err)
	}
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		panic(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		panic(err)
	}
	csrDER, err := x509.CreateCertificateRequest(rand.Reader, &x509.CertificateRequest{
		Subject: pkix.Name{CommonName: commonName},
	}, key)
	if err != nil {
		panic(err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}),
		pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: csrDER})
}
