package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evse-coreboard/core"
)

func TestLoad_DefaultsWhenNoConfigFilePresent(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "normal", cfg.Mode)
	assert.Equal(t, uint8(0), cfg.LoadBl)
	assert.Equal(t, "socket", cfg.Config)
	assert.EqualValues(t, 25, cfg.MaxMains)
	assert.EqualValues(t, 13, cfg.MaxCurrent)
	assert.EqualValues(t, 6, cfg.MinCurrent)
	assert.Equal(t, "modbus_addr", cfg.PrioStrategy)
	assert.Equal(t, "not_present", cfg.EnableC2)
}

func validConfig() *EVSEConfig {
	return &EVSEConfig{
		Mode:        "normal",
		Config:      "socket",
		MaxMains:    25,
		MaxCurrent:  13,
		MinCurrent:  6,
		MaxCircuit:  16,
		MaxCapacity: 13,
	}
}

func TestApply_RejectsZeroMinCurrent(t *testing.T) {
	cfg := validConfig()
	cfg.MinCurrent = 0

	_, err := Apply(cfg, nil)

	assert.Error(t, err)
}

func TestApply_RejectsMaxBelowMin(t *testing.T) {
	cfg := validConfig()
	cfg.MaxCurrent = 5
	cfg.MinCurrent = 6

	_, err := Apply(cfg, nil)

	assert.Error(t, err)
}

func TestApply_RejectsLoadBlAboveNrEvses(t *testing.T) {
	cfg := validConfig()
	cfg.LoadBl = core.NrEvses + 1

	_, err := Apply(cfg, nil)

	assert.Error(t, err)
}

func TestApply_MapsModeAndCableConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "solar"
	cfg.Config = "fixed"

	ctx, err := Apply(cfg, nil)

	require.NoError(t, err)
	assert.Equal(t, core.ModeSolar, ctx.Mode)
	assert.Equal(t, core.ConfigFixedCable, ctx.Config)
}

func TestApply_UnrecognizedModeDefaultsToNormal(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "bogus"

	ctx, err := Apply(cfg, nil)

	require.NoError(t, err)
	assert.Equal(t, core.ModeNormal, ctx.Mode)
}

func TestApply_MapsPriorityStrategyAndEnableC2(t *testing.T) {
	cfg := validConfig()
	cfg.PrioStrategy = "last_connected"
	cfg.EnableC2 = "auto"

	ctx, err := Apply(cfg, nil)

	require.NoError(t, err)
	assert.Equal(t, core.PrioLastConnected, ctx.PrioStrategy)
	assert.Equal(t, core.EnableC2Auto, ctx.EnableC2)
}

func TestApply_CarriesModemSettings(t *testing.T) {
	cfg := validConfig()
	cfg.ModemEnabled = true
	cfg.RequiredEVCCID = "EVCC-1234"

	ctx, err := Apply(cfg, nil)

	require.NoError(t, err)
	assert.True(t, ctx.ModemEnabled)
	assert.Equal(t, "EVCC-1234", ctx.RequiredEVCCID)
}

func TestApply_InstallsNoopHALWhenNilGiven(t *testing.T) {
	cfg := validConfig()

	ctx, err := Apply(cfg, nil)

	require.NoError(t, err)
	require.NotNil(t, ctx.HAL)
	assert.IsType(t, core.NoopHAL{}, ctx.HAL)
}
