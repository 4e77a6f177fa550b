// Package config loads the EVSE's boot-time configuration with viper,
// grounded on ocpp_server/internal/config's Load() shape and on the
// mapstructure tags the teacher's own LoadPoint config struct carries.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"evse-coreboard/core"
)

// MQTTConfig describes the broker this EVSE publishes telemetry to and
// subscribes for remote current limits on.
type MQTTConfig struct {
	Broker             string `mapstructure:"broker"`
	Username           string `mapstructure:"username"`
	Password           string `mapstructure:"password"`
	TelemetryTopic     string `mapstructure:"telemetry_topic"`
	CurrentLimitTopic  string `mapstructure:"current_limit_topic"`
}

// ModbusConfig describes the RS-485 node bus used to poll sibling EVSEs
// when LoadBl selects master mode.
type ModbusConfig struct {
	Device   string `mapstructure:"device"`
	BaudRate int    `mapstructure:"baud_rate"`
	Timeout  int    `mapstructure:"timeout_ms"`
}

// OCPPConfig describes the charge-point identity used when accepting
// SetChargingProfile current limits from a CSMS.
type OCPPConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	StationID   string `mapstructure:"station_id"`
	ListenAddr  string `mapstructure:"listen_addr"`
}

// EVSEConfig is the full boot-time configuration: the core.Context defaults
// plus the domain-stack collaborators that drive it from the outside.
type EVSEConfig struct {
	LogLevel string `mapstructure:"log_level"`

	Mode       string `mapstructure:"mode"`        // "normal", "smart", "solar"
	LoadBl     uint8  `mapstructure:"load_balance"` // 0=standalone, 1=master, 2-8=node
	Config     string `mapstructure:"cable_config"` // "socket", "fixed"

	MaxMains    uint16 `mapstructure:"max_mains"`
	MaxCurrent  uint16 `mapstructure:"max_current"`
	MinCurrent  uint16 `mapstructure:"min_current"`
	MaxCircuit  uint16 `mapstructure:"max_circuit"`
	MaxCapacity uint16 `mapstructure:"max_capacity"`
	MaxSumMains uint16 `mapstructure:"max_sum_mains"`

	PrioStrategy     string `mapstructure:"priority_strategy"` // "modbus_addr", "first_connected", "last_connected"
	RotationInterval uint16 `mapstructure:"rotation_interval_minutes"`
	IdleTimeout      uint16 `mapstructure:"idle_timeout_seconds"`

	EnableC2 string `mapstructure:"enable_c2"` // "not_present", "always_off", "solar_off", "always_on", "auto"

	ModemEnabled   bool   `mapstructure:"modem_enabled"`
	RequiredEVCCID string `mapstructure:"required_evccid"`

	Tick10msMillis int `mapstructure:"tick_10ms_millis"`
	Tick1sMillis   int `mapstructure:"tick_1s_millis"`

	MQTT   MQTTConfig   `mapstructure:"mqtt"`
	Modbus ModbusConfig `mapstructure:"modbus"`
	OCPP   OCPPConfig   `mapstructure:"ocpp"`
}

// Load reads ./config.yaml (or EVSE_-prefixed environment overrides),
// applying the same default-then-override shape as ocpp_server's
// config.Load.
func Load() (*EVSEConfig, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetDefault("log_level", "info")
	viper.SetDefault("mode", "normal")
	viper.SetDefault("load_balance", 0)
	viper.SetDefault("cable_config", "socket")
	viper.SetDefault("max_mains", 25)
	viper.SetDefault("max_current", 13)
	viper.SetDefault("min_current", 6)
	viper.SetDefault("max_circuit", 16)
	viper.SetDefault("max_capacity", 13)
	viper.SetDefault("priority_strategy", "modbus_addr")
	viper.SetDefault("idle_timeout_seconds", 60)
	viper.SetDefault("enable_c2", "not_present")
	viper.SetDefault("tick_10ms_millis", 10)
	viper.SetDefault("tick_1s_millis", 1000)

	viper.SetEnvPrefix("EVSE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Println("config: no config.yaml found, using defaults")
		} else {
			return nil, fmt.Errorf("config: reading config file: %w", err)
		}
	}

	var cfg EVSEConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling: %w", err)
	}

	if cfg.MQTT.Broker == "" {
		cfg.MQTT.Broker = os.Getenv("EVSE_MQTT_BROKER")
	}

	return &cfg, nil
}

// Apply validates cfg and populates a freshly-initialised core.Context,
// the Go analogue of the firmware's NVS-to-struct config load.
func Apply(cfg *EVSEConfig, hal core.HAL) (*core.Context, error) {
	if cfg.MinCurrent == 0 {
		return nil, fmt.Errorf("config: min_current must be > 0")
	}
	if cfg.MaxCurrent < cfg.MinCurrent {
		return nil, fmt.Errorf("config: max_current (%d) below min_current (%d)", cfg.MaxCurrent, cfg.MinCurrent)
	}
	if cfg.LoadBl > core.NrEvses {
		return nil, fmt.Errorf("config: load_balance %d exceeds NrEvses %d", cfg.LoadBl, core.NrEvses)
	}

	ctx := &core.Context{}
	core.Init(ctx, hal)

	switch cfg.Mode {
	case "smart":
		ctx.Mode = core.ModeSmart
	case "solar":
		ctx.Mode = core.ModeSolar
	default:
		ctx.Mode = core.ModeNormal
	}

	if cfg.Config == "fixed" {
		ctx.Config = core.ConfigFixedCable
	}

	ctx.LoadBl = cfg.LoadBl

	ctx.MaxMains = cfg.MaxMains
	ctx.MaxCurrent = cfg.MaxCurrent
	ctx.MinCurrent = cfg.MinCurrent
	ctx.MaxCircuit = cfg.MaxCircuit
	ctx.MaxCapacity = cfg.MaxCapacity
	ctx.MaxSumMains = cfg.MaxSumMains

	switch cfg.PrioStrategy {
	case "first_connected":
		ctx.PrioStrategy = core.PrioFirstConnected
	case "last_connected":
		ctx.PrioStrategy = core.PrioLastConnected
	default:
		ctx.PrioStrategy = core.PrioModbusAddr
	}
	ctx.RotationInterval = cfg.RotationInterval
	if cfg.IdleTimeout != 0 {
		ctx.IdleTimeout = cfg.IdleTimeout
	}

	switch cfg.EnableC2 {
	case "always_off":
		ctx.EnableC2 = core.EnableC2AlwaysOff
	case "solar_off":
		ctx.EnableC2 = core.EnableC2SolarOff
	case "always_on":
		ctx.EnableC2 = core.EnableC2AlwaysOn
	case "auto":
		ctx.EnableC2 = core.EnableC2Auto
	default:
		ctx.EnableC2 = core.EnableC2NotPresent
	}

	ctx.ModemEnabled = cfg.ModemEnabled
	ctx.RequiredEVCCID = cfg.RequiredEVCCID

	return ctx, nil
}
