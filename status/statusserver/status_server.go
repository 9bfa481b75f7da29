// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package statusserver

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sensorvision/agent/types"
)

// Source of the status
type Source interface {
	Running() bool
	Snapshot() types.Sensors
	Subscriptions() []string
}

var global = newStatusServer()

type statusServer struct {
	mu         sync.RWMutex
	accessKeys []string
	source     Source
	started    time.Time
}

func newStatusServer() *statusServer {
	return &statusServer{started: time.Now()}
}

func (s *statusServer) AddAccessKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessKeys = append(s.accessKeys, key)
}

// AddAccessKey adds an access key for a client. When access keys are added, the status and the
// sensors are only served to requests with an "Authorization: Key <key>" header.
func AddAccessKey(key string) {
	global.AddAccessKey(key)
}

func (s *statusServer) SetSource(source Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = source
}

// SetSource sets the source of the default status server
func SetSource(source Source) {
	global.SetSource(source)
}

// Status response
type Status struct {
	Running       bool   `json:"running"`
	Uptime        string `json:"uptime"`
	Sensors       int    `json:"sensors"`
	Metrics       int    `json:"metrics"`
	Described     int    `json:"described"`
	Subscriptions int    `json:"subscriptions"`
}

func (s *statusServer) getStatus() *Status {
	status := &Status{Uptime: time.Since(s.started).Round(time.Second).String()}
	if s.source == nil {
		return status
	}
	status.Running = s.source.Running()
	snapshot := s.source.Snapshot()
	status.Sensors = len(snapshot)
	for _, sensor := range snapshot {
		status.Metrics += len(sensor.Metrics)
		for _, metric := range sensor.Metrics {
			if metric.Described {
				status.Described++
			}
		}
	}
	status.Subscriptions = len(s.source.Subscriptions())
	return status
}

func (s *statusServer) authorized(r *http.Request) bool {
	if len(s.accessKeys) == 0 {
		return true
	}
	key := strings.TrimPrefix(r.Header.Get("Authorization"), "Key ")
	for _, allowed := range s.accessKeys {
		if key == allowed {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *statusServer) serveStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.authorized(r) {
		http.Error(w, "Not authenticated", http.StatusUnauthorized)
		return
	}
	writeJSON(w, s.getStatus())
}

func (s *statusServer) serveSensors(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.authorized(r) {
		http.Error(w, "Not authenticated", http.StatusUnauthorized)
		return
	}
	if s.source == nil {
		writeJSON(w, types.Sensors{})
		return
	}
	writeJSON(w, s.source.Snapshot())
}

func (s *statusServer) serveHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.source == nil || !s.source.Running() {
		http.Error(w, "Not running", http.StatusServiceUnavailable)
		return
	}
	w.Write([]byte("ok\n"))
}

func (s *statusServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/status", s.serveStatus)
	mux.HandleFunc("/sensors", s.serveSensors)
	mux.HandleFunc("/healthz", s.serveHealth)
	return mux
}

// Handler returns the HTTP handler of the default status server
func Handler() http.Handler {
	return global.Handler()
}
