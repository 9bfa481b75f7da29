// Copyright © 2016 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

// Package auth holds the certificate material that authenticates the agent with the broker.
//
// The client certificate is issued by the device agent during the bootstrap and is stored next to
// the private key that signed the certificate signing request. The common name of the certificate
// is the connector id that scopes all topics.
package auth

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io/ioutil"

	"github.com/sensorvision/agent/topic"
)

// Store for certificate material
type Store interface {
	// Load returns ErrNoCertificate if no certificate was issued yet
	Load() (*Material, error)
	// ReadCSR returns the certificate signing request that is used for the bootstrap
	ReadCSR() ([]byte, error)
	// SaveCertificate stores the certificate that was issued during the bootstrap
	SaveCertificate(certPEM []byte) error
}

// ErrNoCertificate is returned when a Store does not hold a certificate
var ErrNoCertificate = errors.New("no client certificate")

// ErrNoCSR is returned when a Store does not hold a certificate signing request
var ErrNoCSR = errors.New("no certificate signing request")

// ErrInvalidCertificate is returned for certificate material that can not be parsed
var ErrInvalidCertificate = errors.New("invalid certificate")

// Material is a client certificate with its private key
type Material struct {
	Certificate tls.Certificate
	Leaf        *x509.Certificate
}

// NewMaterial parses a PEM encoded certificate and private key
func NewMaterial(certPEM, keyPEM []byte) (*Material, error) {
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCertificate, err)
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCertificate, err)
	}
	cert.Leaf = leaf
	return &Material{Certificate: cert, Leaf: leaf}, nil
}

// ConnectorID returns the connector id, which is the common name of the certificate
func (m *Material) ConnectorID() (string, error) {
	id, err := topic.NormalizeID(m.Leaf.Subject.CommonName)
	if err != nil {
		return "", fmt.Errorf("%w: common name is not a connector id: %s", ErrInvalidCertificate, err)
	}
	return id, nil
}

// TLSConfig returns the mutual TLS configuration for the broker
func (m *Material) TLSConfig(roots *x509.CertPool) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{m.Certificate},
		RootCAs:      roots,
		MinVersion:   tls.VersionTLS12,
	}
}

// ParseCertificate parses the first certificate of PEM encoded data
func ParseCertificate(data []byte) (*x509.Certificate, error) {
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			return nil, fmt.Errorf("%w: no PEM certificate found", ErrInvalidCertificate)
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidCertificate, err)
		}
		return cert, nil
	}
}

// LoadRootCAs loads the PEM encoded trust store of the broker
func LoadRootCAs(file string) (*x509.CertPool, error) {
	data, err := ioutil.ReadFile(file)
	if err != nil {
		return nil, err
	}
	roots := x509.NewCertPool()
	if !roots.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("%w: no certificates in %s", ErrInvalidCertificate, file)
	}
	return roots, nil
}
