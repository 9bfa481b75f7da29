// Copyright © 2016 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package auth

import "sync"

// Memory implements Store in memory
type Memory struct {
	mu   sync.RWMutex
	cert []byte
	key  []byte
	csr  []byte
}

// NewMemory returns a new Store in memory with the given private key and certificate signing request
func NewMemory(keyPEM, csrPEM []byte) *Memory {
	return &Memory{
		key: keyPEM,
		csr: csrPEM,
	}
}

// Load implements Store
func (m *Memory) Load() (*Material, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.cert) == 0 {
		return nil, ErrNoCertificate
	}
	return NewMaterial(m.cert, m.key)
}

// ReadCSR implements Store
func (m *Memory) ReadCSR() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.csr) == 0 {
		return nil, ErrNoCSR
	}
	return m.csr, nil
}

// SaveCertificate implements Store
func (m *Memory) SaveCertificate(certPEM []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cert = append([]byte(nil), certPEM...)
	return nil
}
