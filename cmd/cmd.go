// Copyright © 2016 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package cmd

import (
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/multi"
	"github.com/sensorvision/agent/backend/amqp"
	redisbackend "github.com/sensorvision/agent/backend/redis"
	"github.com/sensorvision/agent/events"
	"github.com/sensorvision/agent/state"
	"github.com/sensorvision/agent/status/statusserver"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// AgentCmd is the main command that is executed when running sensorvision-agent
var AgentCmd = &cobra.Command{
	Use:   "sensorvision-agent",
	Short: "Sensor agent client",
	Long:  `sensorvision-agent mirrors the sensors and metrics of a device agent and forwards their events`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var logHandlers []log.Handler

		logHandlers = append(logHandlers, cli.New(os.Stdout))

		if logFileLocation := config.GetString("log-file"); logFileLocation != "" {
			absLogFileLocation, err := filepath.Abs(logFileLocation)
			if err != nil {
				panic(err)
			}
			logFile, err = os.OpenFile(absLogFileLocation, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
			if err != nil {
				panic(err)
			}
			logHandlers = append(logHandlers, json.New(logFile))
		}

		level := log.InfoLevel
		if config.GetBool("debug") {
			level = log.DebugLevel
		}
		ctx = &log.Logger{
			Level:   level,
			Handler: multi.New(logHandlers...),
		}
	},
	Run: runAgent,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logFile != nil {
			time.Sleep(100 * time.Millisecond)
			logFile.Close()
		}
	},
}

func runAgent(cmd *cobra.Command, args []string) {
	a, stop := newAgent()
	defer stop()

	// Set up Redis
	if config.GetBool("redis") {
		ctx.Info("Initializing Redis backend")
		a.AddNorthbound(redisbackend.New(redisClient(), config.GetString("redis-prefix"), ctx))
	}

	// Set up the AMQP backends (from comma-separated list of user:pass@host:port)
	amqpRegexp := regexp.MustCompile(`^(?:([0-9a-z_-]+)(?::([0-9A-Za-z-!"#$%&'()*+,.:;<=>?@[\]^_{|}~]+))?@)?([0-9a-z.-]+:[0-9]+)$`) // user:pass@host:port
	for _, amqpBroker := range config.GetStringSlice("amqp") {
		if amqpBroker == "disable" || amqpBroker == "" {
			continue
		}
		parts := amqpRegexp.FindStringSubmatch(amqpBroker)
		if parts == nil {
			ctx.Warnf("Invalid AMQP broker %s", amqpBroker)
			continue
		}
		ctx.WithField("Username", parts[1]).WithField("Address", parts[3]).Info("Initializing AMQP")
		amqp, err := amqp.New(amqp.Config{
			Address:      parts[3],
			Username:     parts[1],
			Password:     parts[2],
			ExchangeName: config.GetString("amqp-exchange"),
		}, ctx)
		if err != nil {
			ctx.WithError(err).Warnf("Could not initialize AMQP broker %s", amqpBroker)
			continue
		}
		a.AddNorthbound(amqp)
	}

	a.Observe(events.ObserverFunc(func(event events.Event) error {
		ctx.WithField("SensorID", events.SensorID(event)).Infof("%s", event.Type())
		return nil
	}))

	if addr := config.GetString("status-addr"); addr != "" && addr != "disable" {
		for _, key := range config.GetStringSlice("status-key") {
			statusserver.AddAccessKey(key)
		}
		statusserver.SetSource(a)
		go func() {
			ctx.WithField("Address", addr).Info("Starting status server")
			if err := http.ListenAndServe(addr, statusserver.Handler()); err != nil {
				ctx.WithError(err).Error("Status server stopped")
			}
		}()
	}

	if err := a.Start(); err != nil {
		ctx.WithError(err).Fatal("Could not start agent")
	}
	defer func() {
		a.Stop()
		time.Sleep(100 * time.Millisecond)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	ctx.WithField("signal", <-sigChan).Info("signal received")
}

func init() {
	AgentCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Location of the config file")
	AgentCmd.PersistentFlags().String("log-file", "", "Location of the log file")
	AgentCmd.PersistentFlags().Bool("debug", false, "Log debug messages and traffic")

	AgentCmd.PersistentFlags().StringSlice("broker", []string{"ssl://localhost:8883"}, "MQTT Broker to connect to")
	AgentCmd.PersistentFlags().String("client-id", "", "MQTT client ID prefix")
	AgentCmd.PersistentFlags().String("trust-store", "", "Location of the file containing the Root CA certificates of the broker")

	AgentCmd.PersistentFlags().String("cert-store", "file", "Certificate store (file or redis)")
	AgentCmd.PersistentFlags().String("cert-dir", ".", "Directory of the certificate, private key and CSR")
	AgentCmd.PersistentFlags().String("redis-cert-key", "", "Redis key of the certificate material")

	AgentCmd.PersistentFlags().String("redis-address", "localhost:6379", "Redis host and port")
	AgentCmd.PersistentFlags().String("redis-password", "", "Redis password")
	AgentCmd.PersistentFlags().Int("redis-db", 0, "Redis database")

	AgentCmd.PersistentFlags().Duration("refresh-delay", state.DefaultRefreshDelay, "Delay of sensor list refreshes after updates")
	AgentCmd.PersistentFlags().Duration("dedup-window", 0, "Window in which identical messages are dropped")
	AgentCmd.PersistentFlags().StringSlice("protect", nil, "Lists of sensors that may not be modified (files or URLs)")
	AgentCmd.PersistentFlags().Int("ratelimit-push", 0, "Pushed values per sensor per minute (0 is unlimited)")
	AgentCmd.PersistentFlags().Int("ratelimit-requests", 0, "Modifying requests per sensor per minute (0 is unlimited)")
	AgentCmd.PersistentFlags().Bool("ratelimit-redis", false, "Keep the rate limit counters in Redis")

	AgentCmd.PersistentFlags().Duration("settle", 2*time.Second, "Time without changes after which the sensors are loaded (dump and push)")
	AgentCmd.PersistentFlags().Duration("wait", 30*time.Second, "Maximum time to wait for the sensors (dump and push)")

	AgentCmd.Flags().Bool("redis", false, "Publish events to Redis")
	AgentCmd.Flags().String("redis-prefix", "", "Prefix of the Redis keys and channels")
	AgentCmd.Flags().StringSlice("amqp", []string{"disable"}, "AMQP Broker to publish events to (disable with \"disable\")")
	AgentCmd.Flags().String("amqp-exchange", "", "AMQP exchange")
	AgentCmd.Flags().String("status-addr", ":9090", "Address of the status server (disable with \"disable\")")
	AgentCmd.Flags().StringSlice("status-key", nil, "Access keys of the status server")

	viper.BindPFlags(AgentCmd.PersistentFlags())
	viper.BindPFlags(AgentCmd.Flags())
}
