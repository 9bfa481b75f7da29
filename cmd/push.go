// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package cmd

import (
	"sync"

	"github.com/sensorvision/agent/agent"
	"github.com/sensorvision/agent/events"
	"github.com/sensorvision/agent/topic"
	"github.com/sensorvision/agent/types"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// PushCmd pushes a value of a metric
var PushCmd = &cobra.Command{
	Use:   "push [sensor] [metric] [value]",
	Short: "Push a value of a metric",
	Long:  `push loads the sensors and pushes a value of a metric; sensors and metrics are given by name or id`,
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		a, stop := newAgent()
		defer stop()

		var mu sync.Mutex
		var agentErr *events.AgentError
		a.Observe(events.ObserverFunc(func(event events.Event) error {
			if event, ok := event.(events.AgentError); ok {
				mu.Lock()
				agentErr = &event
				mu.Unlock()
			}
			return nil
		}))
		settled := observeSettle(a)
		if err := a.Start(); err != nil {
			ctx.WithError(err).Fatal("Could not start agent")
		}
		defer a.Stop()
		settled()

		sensorID, ok := resolveSensor(a, args[0])
		if !ok {
			ctx.WithField("Sensor", args[0]).Fatal("Sensor not found")
		}
		metricID, ok := resolveMetric(a, sensorID, args[1])
		if !ok {
			ctx.WithField("Metric", args[1]).Fatal("Metric not found")
		}
		metric := a.Snapshot()[sensorID].Metrics[metricID]
		value, err := types.ParseValue(metric.ValueType, args[2])
		if err != nil {
			ctx.WithError(err).Fatal("Invalid value")
		}

		var timestamp *int64
		if ms := config.GetInt64("timestamp"); ms != 0 {
			timestamp = &ms
		}
		if err := a.PushValue(sensorID, metricID, value, timestamp); err != nil {
			ctx.WithError(err).Fatal("Could not push value")
		}
		settled()

		mu.Lock()
		defer mu.Unlock()
		if agentErr != nil {
			ctx.WithField("Code", agentErr.Code).Fatal(agentErr.Message)
		}
		ctx.WithField("SensorID", sensorID).WithField("MetricID", metricID).Infof("Pushed %s", value)
	},
}

func resolveSensor(a *agent.Agent, sensor string) (string, bool) {
	if id, err := topic.NormalizeID(sensor); err == nil {
		_, ok := a.Snapshot()[id]
		return id, ok
	}
	return a.SensorIDByName(sensor)
}

func resolveMetric(a *agent.Agent, sensorID, metric string) (string, bool) {
	if id, err := topic.NormalizeID(metric); err == nil {
		sensor := a.Snapshot()[sensorID]
		m, ok := sensor.Metrics[id]
		return id, ok && m.Described
	}
	return a.MetricIDByName(sensorID, metric)
}

func init() {
	AgentCmd.AddCommand(PushCmd)
	PushCmd.Flags().Int64("timestamp", 0, "Timestamp of the value in milliseconds since the epoch")
	viper.BindPFlags(PushCmd.Flags())
}
