package core

import "testing"

func newTestContext() *Context {
	ctx := &Context{}
	Init(ctx, NewRecordingHAL())
	return ctx
}

// Invariant U1: after Init, the engine is powered-on-safe.
func TestInitInvariants(t *testing.T) {
	ctx := newTestContext()

	if ctx.State != StateA {
		t.Errorf("State = %v, want StateA", ctx.State)
	}
	if ctx.ErrorFlags != 0 {
		t.Errorf("ErrorFlags = %v, want 0", ctx.ErrorFlags)
	}
	hal := ctx.HAL.(*RecordingHAL)
	if hal.Contactor1State || hal.Contactor2State {
		t.Errorf("contactors = (%v, %v), want both false", hal.Contactor1State, hal.Contactor2State)
	}
	if !hal.PilotConnected {
		t.Errorf("PilotConnected = false, want true")
	}
}

func TestIsCurrentAvailable_NormalModeStandaloneDefaultsTrue(t *testing.T) {
	ctx := newTestContext()
	ctx.Mode = ModeNormal

	if !IsCurrentAvailable(ctx) {
		t.Errorf("IsCurrentAvailable() = false in ModeNormal, want true")
	}
}

func TestIsCurrentAvailable_SolarNoSunBlocksFirstEVSE(t *testing.T) {
	ctx := newTestContext()
	ctx.Mode = ModeSolar
	ctx.StartCurrent = 4
	ctx.Isum = 0 // no export

	if IsCurrentAvailable(ctx) {
		t.Errorf("IsCurrentAvailable() = true with no surplus solar export, want false")
	}
}

func TestIsCurrentAvailable_SolarWithSurplusAllowsStart(t *testing.T) {
	ctx := newTestContext()
	ctx.Mode = ModeSolar
	ctx.StartCurrent = 4
	ctx.Isum = -100 // 10A exported

	if !IsCurrentAvailable(ctx) {
		t.Errorf("IsCurrentAvailable() = false with 10A solar surplus, want true")
	}
}

func TestIsCurrentAvailable_SmartModeRespectsMaxMains(t *testing.T) {
	ctx := newTestContext()
	ctx.Mode = ModeSmart
	ctx.MaxMains = 10
	ctx.MinCurrent = 6
	ctx.MainsMeterImeasured = 95 // 9.5A already drawn

	// One more EVSE at MinCurrent (6A) would push mains to 15.5A > 10A cap.
	if IsCurrentAvailable(ctx) {
		t.Errorf("IsCurrentAvailable() = true, want false (would exceed MaxMains)")
	}
}

func TestIsCurrentAvailable_OCPPBelowMinRejects(t *testing.T) {
	ctx := newTestContext()
	ctx.Mode = ModeNormal
	ctx.LoadBl = 0
	ctx.OCPPMode = true
	ctx.MinCurrent = 6
	ctx.OCPPCurrentLimit = 3.0

	if IsCurrentAvailable(ctx) {
		t.Errorf("IsCurrentAvailable() = true with OCPP limit below MinCurrent, want false")
	}
}
