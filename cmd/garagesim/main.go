// GarageSim - text-mode garage door simulator
//
// It reads the controller's configuration, follows the retained door
// state topic over MQTT and animates the door on stdout. Logs go to
// stderr so they do not interleave with the animation.
package main

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/garagegate/internal/infrastructure/config"
	"github.com/nerrad567/garagegate/internal/infrastructure/logging"
	"github.com/nerrad567/garagegate/internal/infrastructure/mqtt"
	"github.com/nerrad567/garagegate/internal/simulator"
)

var version = "dev"

const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("GARAGEGATE_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logCfg := cfg.Logging
	logCfg.Output = "stderr"
	log := logging.New(logCfg, version).Component("simulator")

	mqttCfg := cfg.MQTT
	mqttCfg.Broker.ClientID += "-sim"
	// Keep the controller's retained online/offline status intact.
	mqttCfg.Topics.System = cmp.Or(mqttCfg.Topics.System, mqtt.DefaultSystemTopic) + "/simulator"
	client, err := mqtt.New(mqttCfg)
	if err != nil {
		return fmt.Errorf("creating MQTT client: %w", err)
	}
	client.SetLogger(log)
	defer client.Close()

	sim := simulator.New(os.Stdout, cfg.Security.SharedSecret, log)
	if err := sim.Subscribe(client, cfg.MQTT.Topics.State, byte(cfg.MQTT.QoS)); err != nil {
		return err
	}
	if err := client.Connect(ctx); err != nil {
		// paho keeps retrying; the retained state arrives on connect.
		log.Warn("MQTT broker unavailable, running offline", "error", err)
	}

	return sim.Run(ctx)
}
