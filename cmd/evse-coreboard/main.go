// Command evse-coreboard wires the core charging engine to real collaborators
// (MQTT telemetry, an RS-485 node-bus poller, an OCPP current-limit
// endpoint) and runs it. Grounded on ocpp_server/cmd/main.go's shape: load
// config, build a logger, construct collaborators, start, wait for signal.
package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"evse-coreboard/config"
	"evse-coreboard/core"
	"evse-coreboard/host"
	"evse-coreboard/internal/evselog"
	"evse-coreboard/transport/modbus"
	"evse-coreboard/transport/mqtt"
	"evse-coreboard/transport/ocpp"
)

// noopMeters satisfies host.MeterReader when no real CT clamps are wired,
// so the runner still ticks on a bare-bones standalone EVSE.
type noopMeters struct{}

func (noopMeters) ReadMainsCurrents() ([3]int16, error) { return [3]int16{}, nil }
func (noopMeters) ReadEVCurrents() ([3]int16, error)    { return [3]int16{}, nil }

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}

	logger := evselog.New(cfg.LogLevel)
	log := evselog.For(logger, "main")

	ctx, err := config.Apply(cfg, nil)
	if err != nil {
		log.Fatalf("failed to apply config: %v", err)
	}

	runner := host.NewRunner(ctx, noopMeters{}, evselog.For(logger, "host"))

	if cfg.MQTT.Broker != "" {
		mqttClient := mqtt.NewClient(mqtt.Config{
			Broker:            cfg.MQTT.Broker,
			Username:          cfg.MQTT.Username,
			Password:          cfg.MQTT.Password,
			ClientID:          "evse-coreboard",
			TelemetryTopic:    cfg.MQTT.TelemetryTopic,
			CurrentLimitTopic: cfg.MQTT.CurrentLimitTopic,
		}, evselog.For(logger, "mqtt"))

		mqttClient.OnCurrentLimit(func(amps float64) {
			runner.Do(func(ctx *core.Context) {
				ctx.OverrideCurrent = uint16(amps * 10)
			})
		})

		if err := mqttClient.Connect(); err != nil {
			log.WithError(err).Error("MQTT connect failed, continuing without telemetry")
		} else {
			defer mqttClient.Disconnect()
			_ = runner.Bus().SubscribeAsync(host.EvStateChanged, func(_, _ core.CpState) {
				var err error
				runner.Do(func(ctx *core.Context) { err = mqttClient.PublishTelemetry(ctx) })
				if err != nil {
					log.WithError(err).Warn("telemetry publish failed")
				}
			}, false)
		}
	}

	if cfg.Modbus.Device != "" && ctx.LoadBl == 1 {
		poller, err := modbus.NewPoller(modbus.Config{
			Device:   cfg.Modbus.Device,
			BaudRate: cfg.Modbus.BaudRate,
			Timeout:  time.Duration(cfg.Modbus.Timeout) * time.Millisecond,
		}, evselog.For(logger, "modbus"))
		if err != nil {
			log.WithError(err).Error("modbus poller unavailable, running standalone")
		} else {
			defer poller.Close()
			go func() {
				t := time.NewTicker(2 * time.Second)
				defer t.Stop()
				for range t.C {
					runner.Do(poller.PollAll)
				}
			}()
		}
	}

	if cfg.OCPP.Enabled {
		ocppServer := ocpp.NewServer(cfg.OCPP.StationID,
			func(amps float64) {
				runner.Do(func(ctx *core.Context) { ctx.OCPPCurrentLimit = amps })
			},
			func(active bool) {
				runner.Do(func(ctx *core.Context) { ctx.OCPPMode = active })
			},
			evselog.For(logger, "ocpp"))
		go func() {
			if err := ocppServer.ListenAndServe(cfg.OCPP.ListenAddr); err != nil {
				log.WithError(err).Error("OCPP endpoint stopped")
			}
		}()
	}

	log.Info("evse-coreboard running")
	go runner.Run(func() core.Pilot { return core.Pilot12V })

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	runner.Stop()
}
