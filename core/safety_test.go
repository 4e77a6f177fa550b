package core

import "testing"

// S3: modem negotiation success, then a forced re-negotiation denial.
//
// The literal tick counts here (60 ticks WAIT->DONE, 5 ticks DONE->B) are
// one less than a naive reading of the negotiation timers would suggest,
// for the same reason the DENIED->A leg works out exactly: evse_tick_1s
// evaluates STATE_MODEM_REQUEST/WAIT/DONE/DENIED as separate, non-exclusive
// `if` blocks (not an if/else-if chain), so a transition made by one block
// is visible to the next block's guard within the very same call. Firing
// STATE_MODEM_WAIT sets ToModemDoneStateTimer to ModemWaitSeconds (60), and
// the WAIT block that runs immediately after in that same tick decrements
// it to 59 before the caller ever sees it -- the same mechanism documented
// for leave_modem_denied_state_timer landing on 59 instead of 60.
func TestTick_S3_ModemSuccessThenDenied(t *testing.T) {
	ctx := newTestContext()
	ctx.ModemEnabled = true
	ctx.ModemStage = 0
	ctx.Mode = ModeNormal
	ctx.LoadBl = 0
	ctx.AccessStatus = AccessOn
	ctx.RequiredEVCCID = "EVCC-ALLOW"
	ctx.EVCCID = "EVCC-ALLOW"

	hal := ctx.HAL.(*RecordingHAL)

	Tick10ms(ctx, Pilot9V)
	if ctx.State != StateModemRequest {
		t.Fatalf("State = %v, want StateModemRequest", ctx.State)
	}
	if hal.LastPWMDuty != 1024 || hal.PilotConnected {
		t.Fatalf("PWM = %d, pilot connected = %v, want 1024/disconnected", hal.LastPWMDuty, hal.PilotConnected)
	}

	Tick1s(ctx)
	if ctx.State != StateModemWait {
		t.Fatalf("State = %v, want StateModemWait", ctx.State)
	}
	if hal.LastPWMDuty != 51 || !hal.PilotConnected {
		t.Fatalf("PWM = %d, pilot connected = %v, want 51/connected", hal.LastPWMDuty, hal.PilotConnected)
	}

	for i := 0; i < 60; i++ {
		Tick1s(ctx)
	}
	if ctx.State != StateModemDone {
		t.Fatalf("State = %v, want StateModemDone", ctx.State)
	}

	for i := 0; i < 5; i++ {
		Tick1s(ctx)
	}
	if ctx.State != StateB {
		t.Fatalf("State = %v, want StateB", ctx.State)
	}
	if ctx.ModemStage != 1 {
		t.Errorf("ModemStage = %d, want 1", ctx.ModemStage)
	}

	// Force a second negotiation round with a mismatching EVCCID.
	ctx.EVCCID = "EVCC-OTHER"
	SetState(ctx, StateModemDone)
	ctx.LeaveModemDoneStateTimer = 0

	Tick1s(ctx)
	if ctx.State != StateModemDenied {
		t.Fatalf("State = %v, want StateModemDenied", ctx.State)
	}
	if ctx.LeaveModemDeniedStateTimer != 59 {
		t.Fatalf("LeaveModemDeniedStateTimer = %d, want 59", ctx.LeaveModemDeniedStateTimer)
	}

	for i := 0; i < 60; i++ {
		Tick1s(ctx)
	}
	if ctx.State != StateA {
		t.Fatalf("State = %v, want StateA", ctx.State)
	}
}

// U7: a full tick_1s with temp_evse > max_temp sets TempHigh and withholds power.
func TestTick1s_U7_OverTemperatureSetsErrorAndWithholdsPower(t *testing.T) {
	ctx := newTestContext()
	SetState(ctx, StateC)
	ctx.MaxTemp = 65
	ctx.TempEVSE = 70

	Tick1s(ctx)

	if ctx.ErrorFlags&ErrTempHigh == 0 {
		t.Errorf("ErrTempHigh not set after over-temperature tick")
	}
	if ctx.State != StateC1 {
		t.Errorf("State = %v, want StateC1 (power withheld)", ctx.State)
	}
}

// B2: temperature hysteresis is strict-less-than.
func TestTick1s_B2_TemperatureHysteresis(t *testing.T) {
	ctx := newTestContext()
	ctx.MaxTemp = 65
	ctx.ErrorFlags = ErrTempHigh
	ctx.TempEVSE = 55

	Tick1s(ctx)
	if ctx.ErrorFlags&ErrTempHigh == 0 {
		t.Errorf("ErrTempHigh cleared at temp_evse=55, want still set (strict less-than)")
	}

	ctx.TempEVSE = 54
	Tick1s(ctx)
	if ctx.ErrorFlags&ErrTempHigh != 0 {
		t.Errorf("ErrTempHigh still set at temp_evse=54, want cleared")
	}
}
