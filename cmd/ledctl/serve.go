package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/ledctl/internal/api"
	"github.com/srg/ledctl/internal/devicefactory"
	"github.com/srg/ledctl/internal/mqtt"
	"github.com/srg/ledctl/pkg/config"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the MQTT bridge",
	Long: `Serve the configured devices over HTTP and, when mqtt.broker is set, MQTT.

HTTP routes:
  GET  /api/devices
  POST /api/connect/{address}
  POST /api/disconnect/{address}
  POST /api/set/{address}       {"event_type":"color","color":"#FF8000"}
  GET  /health

Devices are not connected until asked to, unless --connect is given.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveListen     string
	serveConnectAll bool
)

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "HTTP listen address (overrides the config)")
	serveCmd.Flags().BoolVar(&serveConnectAll, "connect", false, "Connect every configured device at startup")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := serviceLogger(cmd, cfg)
	if err != nil {
		return err
	}
	if serveListen != "" {
		cfg.Listen = serveListen
	}

	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, serveConnectAll, logger, nil)
}

// serve runs until ctx is done. onReady, when set, receives the bound HTTP address.
func serve(ctx context.Context, cfg *config.Config, connectAll bool, logger *logrus.Logger, onReady func(net.Addr)) error {
	fleet, err := devicefactory.Build(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := fleet.Close(context.Background()); err != nil {
			logger.WithField("error", err).Warn("Shutdown finished with errors")
		}
	}()

	if connectAll {
		for _, addr := range fleet.Registry.Addresses() {
			if err := fleet.Registry.Connect(ctx, addr); err != nil {
				logger.WithFields(logrus.Fields{
					"address": addr,
					"error":   FormatUserError(err),
				}).Warn("Startup connect failed")
			}
		}
	}

	srv, err := api.New(api.Deps{Listen: cfg.Listen, Registry: fleet.Registry, Logger: logger})
	if err != nil {
		return err
	}
	if err := srv.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = srv.Close() }()

	if cfg.MQTT.Enabled() {
		bridge, err := mqtt.NewBridge(mqtt.Options{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         cfg.MQTT.QoS,
		}, fleet.Registry, logger)
		if err != nil {
			return fmt.Errorf("invalid mqtt config: %w", err)
		}
		if err := bridge.Start(ctx); err != nil {
			return err
		}
		defer func() { _ = bridge.Close() }()
	}

	if onReady != nil {
		onReady(srv.Addr())
	}

	<-ctx.Done()
	logger.Info("Shutting down...")
	return nil
}
