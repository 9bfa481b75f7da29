// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package cmd

import (
	"crypto/x509"
	"strings"
	"time"

	"github.com/sensorvision/agent/agent"
	"github.com/sensorvision/agent/auth"
	"github.com/sensorvision/agent/backend/mqtt"
	"github.com/sensorvision/agent/events"
	"github.com/sensorvision/agent/middleware/debug"
	"github.com/sensorvision/agent/middleware/deduplicate"
	"github.com/sensorvision/agent/middleware/protect"
	"github.com/sensorvision/agent/middleware/ratelimit"
	"github.com/sensorvision/agent/state"
	redis "gopkg.in/redis.v5"
)

var redisConn *redis.Client

func redisClient() *redis.Client {
	if redisConn == nil {
		redisConn = redis.NewClient(&redis.Options{
			Addr:     config.GetString("redis-address"),
			Password: config.GetString("redis-password"),
			DB:       config.GetInt("redis-db"),
		})
	}
	return redisConn
}

// certStore returns the configured store of the certificate material
func certStore() auth.Store {
	switch store := config.GetString("cert-store"); store {
	case "redis":
		ctx.Info("Using Redis certificate store")
		return auth.NewRedis(redisClient(), config.GetString("redis-cert-key"))
	case "file", "":
		ctx.WithField("Dir", config.GetString("cert-dir")).Info("Using file certificate store")
		return auth.NewFileStore(config.GetString("cert-dir"))
	default:
		ctx.Fatalf("Unknown certificate store %q", store)
		return nil
	}
}

// rootCAs returns the trust store of the broker. Without a trust store the system roots are used.
func rootCAs() *x509.CertPool {
	rootCAFile := config.GetString("trust-store")
	if rootCAFile == "" {
		return nil
	}
	roots, err := auth.LoadRootCAs(rootCAFile)
	if err != nil {
		ctx.WithError(err).Fatal("Could not load trust store")
	}
	ctx.Infof("Using Root CAs from %s", rootCAFile)
	return roots
}

func brokers() (brokers []string) {
	for _, broker := range config.GetStringSlice("broker") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	if len(brokers) == 0 {
		ctx.Fatal("No brokers configured")
	}
	return
}

// closer is called when the agent is stopped
type closer func()

// newAgent sets up the agent with its MQTT transport and middleware
func newAgent() (*agent.Agent, closer) {
	material, err := certStore().Load()
	if err != nil {
		ctx.WithError(err).Fatal("Could not load certificate, run the bootstrap command first")
	}
	connectorID, err := material.ConnectorID()
	if err != nil {
		ctx.WithError(err).Fatal("Could not get connector ID from certificate")
	}

	transport, err := mqtt.New(mqtt.Config{
		Brokers:     brokers(),
		ClientID:    config.GetString("client-id"),
		ConnectorID: connectorID,
		TLSConfig:   material.TLSConfig(rootCAs()),
	}, ctx)
	if err != nil {
		ctx.WithError(err).Fatal("Could not initialize MQTT")
	}

	a := agent.New(connectorID, transport, ctx, state.WithRefreshDelay(config.GetDuration("refresh-delay")))
	a.AddMiddleware(deduplicate.NewDeduplicate(config.GetDuration("dedup-window")))
	if config.GetBool("debug") {
		a.AddMiddleware(debug.New(ctx, a.Scheme()))
	}

	limits := ratelimit.Limits{
		Push:     config.GetInt("ratelimit-push"),
		Requests: config.GetInt("ratelimit-requests"),
	}
	if limits.Push != 0 || limits.Requests != 0 {
		var l *ratelimit.RateLimit
		if config.GetBool("ratelimit-redis") {
			l = ratelimit.NewRedisRateLimit(redisClient(), a.Scheme(), limits)
		} else {
			l = ratelimit.NewRateLimit(a.Scheme(), limits)
		}
		a.AddMiddleware(l)
		a.Observe(l)
	}

	stop := func() {}
	if lists := config.GetStringSlice("protect"); len(lists) > 0 {
		p, err := protect.NewProtect(ctx, a.Scheme(), lists...)
		if err != nil {
			ctx.WithError(err).Fatal("Could not initialize protected sensor lists")
		}
		a.AddMiddleware(p)
		stop = p.Close
	}
	ctx.WithField("ConnectorID", connectorID).Info("Initialized agent")
	return a, stop
}

// observeSettle registers an observer on the agent and returns a function that blocks until the
// model is settled: no events arrived for the settle period, or the wait period expired.
func observeSettle(a *agent.Agent) func() {
	activity := make(chan struct{}, 1)
	a.Observe(events.ObserverFunc(func(events.Event) error {
		select {
		case activity <- struct{}{}:
		default:
		}
		return nil
	}))
	return func() {
		settle := config.GetDuration("settle")
		deadline := time.After(config.GetDuration("wait"))
		timer := time.NewTimer(settle)
		defer timer.Stop()
		for {
			select {
			case <-activity:
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(settle)
			case <-timer.C:
				return
			case <-deadline:
				ctx.Warn("Sensors did not settle in time")
				return
			}
		}
	}
}
