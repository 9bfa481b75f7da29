// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package protect

import (
	"errors"
	"io/ioutil"
	"net/http"
	"net/url"
	"path/filepath"
	"sync"

	"github.com/apex/log"
	"github.com/fsnotify/fsnotify"
	"github.com/sensorvision/agent/middleware"
	"github.com/sensorvision/agent/topic"
	"github.com/sensorvision/agent/types"
	"gopkg.in/yaml.v2"
)

type protectedItem struct {
	Sensor string `yaml:"sensor"`
	Name   string `yaml:"name"`
}

// mutating requests are refused for protected sensors; list, describe and ping requests pass
var mutating = map[topic.Kind]bool{
	topic.SensorUpdate: true,
	topic.SensorDelete: true,
	topic.MetricCreate: true,
	topic.MetricUpdate: true,
	topic.MetricDelete: true,
	topic.PushValues:   true,
}

// NewProtect returns a middleware that refuses requests that would modify protected sensors.
// Lists are YAML files, which are watched for changes, or http(s) URLs, which are fetched on
// FetchRemotes.
func NewProtect(ctx log.Interface, scheme topic.Scheme, lists ...string) (p *Protect, err error) {
	p = &Protect{
		ctx:      ctx,
		scheme:   scheme,
		lists:    make(map[string][]protectedItem),
		idLookup: make(map[string]bool),
	}
	p.watcher, err = fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, location := range lists {
		if err := p.addList(location); err != nil {
			ctx.WithError(err).WithField("List", location).Warn("Could not add protected sensor list")
		}
	}
	p.FetchRemotes()
	go func() {
		for e := range p.watcher.Events {
			if e.Op&fsnotify.Write == fsnotify.Write {
				if err := p.read(e.Name); err != nil {
					ctx.WithError(err).WithField("List", e.Name).Warn("Could not reload protected sensor list")
				}
			}
		}
	}()
	return p, nil
}

// Protect middleware
type Protect struct {
	ctx     log.Interface
	scheme  topic.Scheme
	watcher *fsnotify.Watcher
	urls    []string

	mu       sync.RWMutex
	lists    map[string][]protectedItem
	idLookup map[string]bool
}

func (p *Protect) addList(location string) error {
	url, err := url.Parse(location)
	if err != nil {
		return err
	}
	switch url.Scheme {
	case "", "file":
		return p.addFile(url.Path)
	case "http", "https":
		p.urls = append(p.urls, url.String())
		return nil
	}
	return errors.New("protect: unknown list type")
}

func (p *Protect) addFile(filename string) (err error) {
	filename, err = filepath.Abs(filename)
	if err != nil {
		return err
	}
	if err = p.watcher.Add(filename); err != nil {
		return err
	}
	return p.read(filename)
}

// FetchRemotes fetches remote lists
func (p *Protect) FetchRemotes() {
	for _, url := range p.urls {
		if err := p.fetch(url); err != nil {
			p.ctx.WithError(err).WithField("List", url).Warn("Could not fetch protected sensor list")
		}
	}
}

// Close the list watcher
func (p *Protect) Close() {
	p.watcher.Close()
}

func (p *Protect) read(filename string) error {
	contents, err := ioutil.ReadFile(filename)
	if err != nil {
		return err
	}
	return p.set(filename, contents)
}

func (p *Protect) fetch(location string) error {
	resp, err := http.Get(location)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.New("protect: " + resp.Status)
	}
	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return p.set(location, body)
}

func (p *Protect) set(location string, contents []byte) error {
	var list []protectedItem
	if err := yaml.Unmarshal(contents, &list); err != nil {
		return err
	}
	for i, item := range list {
		id, err := topic.NormalizeID(item.Sensor)
		if err != nil {
			return err
		}
		list[i].Sensor = id
	}
	p.mu.Lock()
	p.lists[location] = list
	p.updateLookup()
	p.mu.Unlock()
	p.ctx.WithField("List", location).WithField("Sensors", len(list)).Debug("Loaded protected sensor list")
	return nil
}

func (p *Protect) updateLookup() {
	var n int
	for _, list := range p.lists {
		n += len(list)
	}
	p.idLookup = make(map[string]bool, n)
	for _, list := range p.lists {
		for _, item := range list {
			p.idLookup[item.Sensor] = true
		}
	}
}

// IsProtected returns whether the sensor is on one of the lists
func (p *Protect) IsProtected(sensorID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.idLookup[sensorID]
}

// ErrProtected is returned for requests that would modify a protected sensor
var ErrProtected = errors.New("protect: sensor is protected")

// HandleOutbound blocks requests that would modify protected sensors
func (p *Protect) HandleOutbound(_ middleware.Context, msg *types.Message) error {
	route := p.scheme.ParseRequest(msg.Topic)
	if !mutating[route.Kind] {
		return nil
	}
	if p.IsProtected(route.SensorID) {
		return ErrProtected
	}
	return nil
}
