// Copyright © 2016 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package auth

import (
	redis "gopkg.in/redis.v5"
)

// Redis implements Store with a Redis backend. The material of a device is kept in a single hash.
type Redis struct {
	key    string
	client *redis.Client
}

// DefaultRedisKey is used when no key is given
var DefaultRedisKey = "sensorvision:certificate"

var redisField = struct {
	certificate string
	key         string
	csr         string
}{
	certificate: "certificate",
	key:         "key",
	csr:         "csr",
}

// NewRedis returns a new Store with a Redis backend
func NewRedis(client *redis.Client, key string) *Redis {
	if key == "" {
		key = DefaultRedisKey
	}
	return &Redis{
		client: client,
		key:    key,
	}
}

// Init stores the private key and certificate signing request
func (r *Redis) Init(keyPEM, csrPEM []byte) error {
	return r.client.HMSet(r.key, map[string]string{
		redisField.key: string(keyPEM),
		redisField.csr: string(csrPEM),
	}).Err()
}

// Delete all certificate material
func (r *Redis) Delete() error {
	return r.client.Del(r.key).Err()
}

// Load implements Store
func (r *Redis) Load() (*Material, error) {
	res, err := r.client.HGetAll(r.key).Result()
	if err == redis.Nil || (err == nil && res[redisField.certificate] == "") {
		return nil, ErrNoCertificate
	}
	if err != nil {
		return nil, err
	}
	return NewMaterial([]byte(res[redisField.certificate]), []byte(res[redisField.key]))
}

// ReadCSR implements Store
func (r *Redis) ReadCSR() ([]byte, error) {
	csr, err := r.client.HGet(r.key, redisField.csr).Result()
	if err == redis.Nil || (err == nil && csr == "") {
		return nil, ErrNoCSR
	}
	if err != nil {
		return nil, err
	}
	return []byte(csr), nil
}

// SaveCertificate implements Store
func (r *Redis) SaveCertificate(certPEM []byte) error {
	return r.client.HSet(r.key, redisField.certificate, string(certPEM)).Err()
}
