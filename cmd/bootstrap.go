// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package cmd

import (
	"context"
	"io/ioutil"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sensorvision/agent/auth"
	"github.com/sensorvision/agent/backend/mqtt"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// BootstrapCmd obtains the client certificate
var BootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Obtain the client certificate",
	Long:  `bootstrap sends the certificate signing request to the device agent and stores the certificate that it issues`,
	Run: func(cmd *cobra.Command, args []string) {
		store := certStore()

		if config.GetBool("import") {
			redisStore, ok := store.(*auth.Redis)
			if !ok {
				ctx.Fatal("Only the Redis certificate store can import material")
			}
			dir := config.GetString("cert-dir")
			key, err := ioutil.ReadFile(filepath.Join(dir, auth.KeyFile))
			if err != nil {
				ctx.WithError(err).Fatal("Could not read private key")
			}
			csr, err := ioutil.ReadFile(filepath.Join(dir, auth.CSRFile))
			if err != nil {
				ctx.WithError(err).Fatal("Could not read CSR")
			}
			if err := redisStore.Delete(); err != nil {
				ctx.WithError(err).Fatal("Could not delete certificate material")
			}
			if err := redisStore.Init(key, csr); err != nil {
				ctx.WithError(err).Fatal("Could not import certificate material")
			}
			ctx.WithField("Dir", dir).Info("Imported private key and CSR")
		}

		if material, err := store.Load(); err == nil && !config.GetBool("force") {
			connectorID, _ := material.ConnectorID()
			ctx.WithField("ConnectorID", connectorID).Info("Certificate already present")
			return
		}

		bootstrapCtx, cancel := context.WithCancel(context.Background())
		defer cancel()
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		go func() {
			select {
			case <-sigChan:
				cancel()
			case <-bootstrapCtx.Done():
			}
		}()

		bootstrapper := mqtt.NewBootstrapper(mqtt.BootstrapConfig{
			Brokers:  brokers(),
			ClientID: config.GetString("client-id"),
			RootCAs:  rootCAs(),
			Timeout:  config.GetDuration("timeout"),
		}, store, ctx)
		if err := bootstrapper.Run(bootstrapCtx); err != nil {
			ctx.WithError(err).Fatal("Could not obtain certificate")
		}

		material, err := store.Load()
		if err != nil {
			ctx.WithError(err).Fatal("Could not load certificate")
		}
		connectorID, err := material.ConnectorID()
		if err != nil {
			ctx.WithError(err).Fatal("Certificate has no valid connector ID")
		}
		ctx.WithField("ConnectorID", connectorID).Info("Obtained certificate")
	},
}

func init() {
	AgentCmd.AddCommand(BootstrapCmd)
	BootstrapCmd.Flags().Duration("timeout", mqtt.DefaultBootstrapTimeout, "Time to wait for the certificate")
	BootstrapCmd.Flags().Bool("force", false, "Request a certificate even if one is present")
	BootstrapCmd.Flags().Bool("import", false, "Import the private key and CSR from the certificate directory into the Redis certificate store")
	viper.BindPFlags(BootstrapCmd.Flags())
}
