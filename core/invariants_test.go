package core

import "testing"

// U5: state in {A, B1, C1} immediately after entry => PWM duty == 1024.
func TestSetState_U5_EntryStatesDrivePWM1024(t *testing.T) {
	cases := []CpState{StateA, StateB1, StateC1}
	for _, s := range cases {
		ctx := newTestContext()
		ctx.AccessStatus = AccessOn
		SetState(ctx, s)
		hal := ctx.HAL.(*RecordingHAL)
		if hal.LastPWMDuty != 1024 {
			t.Errorf("state %v: LastPWMDuty = %d, want 1024", s, hal.LastPWMDuty)
		}
	}
}

// U8: every EVSE in StateA has ConnectedTime == 0 after ScheduleTick1s.
func TestScheduleTick1s_U8_StateAHasNoConnectedTime(t *testing.T) {
	ctx := newTestContext()
	ctx.LoadBl = 1
	ctx.ConnectedTime[0] = 500
	ctx.BalancedState[0] = StateA

	ScheduleTick1s(ctx)

	if ctx.ConnectedTime[0] != 0 {
		t.Errorf("ConnectedTime[0] = %d, want 0 for an EVSE in StateA", ctx.ConnectedTime[0])
	}
}

// U9: with LoadBl != 1 (standalone or node), ScheduleTick1s is a no-op.
func TestScheduleTick1s_U9_NoopWhenNotMaster(t *testing.T) {
	for _, loadBl := range []uint8{0, 2} {
		ctx := newTestContext()
		ctx.LoadBl = loadBl
		ctx.BalancedState[0] = StateC
		ctx.ScheduleState[0] = ScheduleActive
		ctx.ConnectedTime[0] = 42
		ctx.Uptime = 10
		before := *ctx

		ScheduleTick1s(ctx)

		if ctx.Uptime != before.Uptime {
			t.Errorf("LoadBl=%d: Uptime changed (%d -> %d), want no-op", loadBl, before.Uptime, ctx.Uptime)
		}
		if ctx.ConnectedTime[0] != before.ConnectedTime[0] {
			t.Errorf("LoadBl=%d: ConnectedTime[0] changed, want no-op", loadBl)
		}
		if ctx.ScheduleState[0] != before.ScheduleState[0] {
			t.Errorf("LoadBl=%d: ScheduleState[0] changed, want no-op", loadBl)
		}
	}
}

// R1: two consecutive set_state(same) differ only in on_state_change count.
func TestSetState_R1_RepeatedSameStateIdempotentExceptCallback(t *testing.T) {
	ctx := newTestContext()
	ctx.AccessStatus = AccessOn

	SetState(ctx, StateB1)
	hal := ctx.HAL.(*RecordingHAL)
	wantState, wantChargeDelay, wantPilotDisconnectTime := ctx.State, ctx.ChargeDelay, ctx.PilotDisconnectTime
	countBefore := hal.StateChangeCount

	SetState(ctx, StateB1)

	if ctx.State != wantState || ctx.ChargeDelay != wantChargeDelay ||
		ctx.PilotDisconnectTime != wantPilotDisconnectTime {
		t.Errorf("repeated set_state(same) mutated Context beyond the callback count")
	}
	if hal.StateChangeCount != countBefore+1 {
		t.Errorf("StateChangeCount = %d, want %d (one more callback)", hal.StateChangeCount, countBefore+1)
	}
}

// R2: entering then leaving StateB (A -> B -> A) restores charge_delay = 0
// and leaves no residual error bit set.
func TestSetState_R2_EnterLeaveStateBRestoresCleanSlate(t *testing.T) {
	ctx := newTestContext()
	ctx.AccessStatus = AccessOn
	ctx.ErrorFlags = ErrLess6A
	ctx.ChargeDelay = 7

	SetState(ctx, StateB)
	SetState(ctx, StateA)

	if ctx.ChargeDelay != 0 {
		t.Errorf("ChargeDelay = %d, want 0 after A->B->A round trip", ctx.ChargeDelay)
	}
	if ctx.ErrorFlags&ErrLess6A != 0 {
		t.Errorf("ErrLess6A still set after A->B->A round trip")
	}
}

// B3: decrement-else-fire boundary — timer == 1 merely decrements to 0 on
// this tick; the transition fires on the following tick.
func TestTick1s_B3_DecrementThenFireBoundary(t *testing.T) {
	ctx := newTestContext()
	SetState(ctx, StateC1)
	ctx.C1Timer = 1

	Tick1s(ctx)
	if ctx.State != StateC1 {
		t.Fatalf("State = %v after C1Timer 1->0, want still StateC1 (fires next tick)", ctx.State)
	}
	if ctx.C1Timer != 0 {
		t.Fatalf("C1Timer = %d, want 0", ctx.C1Timer)
	}

	Tick1s(ctx)
	if ctx.State != StateB1 {
		t.Errorf("State = %v after the following tick, want StateB1", ctx.State)
	}
}
