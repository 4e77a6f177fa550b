package core

// SetErrorFlags ORs mask into ctx.ErrorFlags.
func SetErrorFlags(ctx *Context, mask ErrorFlags) {
	ctx.ErrorFlags |= mask
}

// ClearErrorFlags ANDs the complement of mask into ctx.ErrorFlags.
func ClearErrorFlags(ctx *Context, mask ErrorFlags) {
	ctx.ErrorFlags &^= mask
}

// ForceSinglePhase reports whether the current EnableC2 policy and mode
// require charging on a single phase (contactor 2 held open). Faithful to
// Force_Single_Phase_Charging() in the original firmware.
func ForceSinglePhase(ctx *Context) uint8 {
	switch ctx.EnableC2 {
	case EnableC2NotPresent:
		return 0
	case EnableC2AlwaysOff:
		return 1
	case EnableC2SolarOff:
		if ctx.Mode == ModeSolar {
			return 1
		}
		return 0
	case EnableC2Auto:
		if ctx.NrOfPhasesCharging == 1 {
			return 1
		}
		return 0
	case EnableC2AlwaysOn:
		return 0
	default:
		return 0
	}
}

// CheckSwitchingPhases decides whether a 1P/3P phase switch is needed and
// either applies it immediately (when disconnected, State == StateA) or
// defers it via SwitchingPhasesC2 for application on the next StateC entry.
// Faithful to CheckSwitchingPhases() in the original firmware.
func CheckSwitchingPhases(ctx *Context) {
	if ctx.EnableC2 != EnableC2Auto || ctx.Mode == ModeSolar {
		if ForceSinglePhase(ctx) != 0 {
			if ctx.NrOfPhasesCharging != 1 {
				if ctx.State != StateA {
					ctx.SwitchingPhasesC2 = GoingTo1P
				} else {
					ctx.NrOfPhasesCharging = 1
				}
			} else {
				ctx.SwitchingPhasesC2 = NoSwitch
			}
		} else {
			if ctx.NrOfPhasesCharging != 3 {
				if ctx.State != StateA {
					ctx.SwitchingPhasesC2 = GoingTo3P
				} else {
					ctx.NrOfPhasesCharging = 3
				}
			} else {
				ctx.SwitchingPhasesC2 = NoSwitch
			}
		}
	} else if ctx.Mode == ModeSmart {
		if ctx.NrOfPhasesCharging != 3 {
			ctx.SwitchingPhasesC2 = GoingTo3P
		} else {
			ctx.SwitchingPhasesC2 = NoSwitch
		}
	}
}

// SetPowerUnavailable drives the EVSE out of an active charge when power
// can no longer be guaranteed: StateC -> StateC1, any other non-A/C1/B1
// state -> StateB1. A no-op in StateA. Faithful to
// setStatePowerUnavailable() in the original firmware.
func SetPowerUnavailable(ctx *Context) {
	switch ctx.State {
	case StateA:
		return
	case StateC:
		SetState(ctx, StateC1)
	case StateC1, StateB1:
		// already withheld
	default:
		SetState(ctx, StateB1)
	}
}

// SetAccess updates the authorization status. Revoking access (Off or
// Pause) while charging or negotiating forces a graceful stop: StateC ->
// StateC1, {B, MODEM_*} -> StateB1. Faithful to setAccess() in the
// original firmware.
func SetAccess(ctx *Context, access AccessStatus) {
	ctx.AccessStatus = access
	if access == AccessOff || access == AccessPause {
		switch ctx.State {
		case StateC:
			SetState(ctx, StateC1)
		case StateB, StateModemRequest, StateModemWait, StateModemDone, StateModemDenied:
			SetState(ctx, StateB1)
		}
	}
}

// SetState performs the state-entry actions for new, updates
// ctx.BalancedState[0] and ctx.State, then fires HAL.OnStateChange. Faithful
// to setState() in the original firmware, including the StateB1/StateA
// fall-through.
func SetState(ctx *Context, newState CpState) {
	old := ctx.State

	switch newState {
	case StateB1:
		if ctx.ChargeDelay == 0 {
			ctx.ChargeDelay = B1ChargeDelaySeconds
		}
		if ctx.State != StateB1 && !ctx.PilotDisconnected && ctx.AccessStatus == AccessOn {
			ctx.HAL.SetPilot(false)
			ctx.PilotDisconnected = true
			ctx.PilotDisconnectTime = PilotDisconnectB1
		}
		fallthrough
	case StateA:
		ctx.HAL.Contactor1(false)
		ctx.HAL.Contactor2(false)
		ctx.HAL.SetCPDuty(1024)

		if newState == StateA {
			ctx.ModemStage = 0
			if ctx.ModemEnabled && ctx.DisconnectTimeCounter == -1 {
				ctx.DisconnectTimeCounter = 0
			}
			ClearErrorFlags(ctx, ErrLess6A)
			ctx.ChargeDelay = 0
			ctx.Nodes[0].Timer = 0
			ctx.Nodes[0].IntTimer = 0
			ctx.Nodes[0].Phases = 0
			ctx.Nodes[0].MinCurrent = 0
		}

	case StateModemRequest:
		ctx.ToModemWaitStateTimer = 0
		ctx.DisconnectTimeCounter = -1
		ctx.HAL.SetPilot(false)
		ctx.HAL.SetCPDuty(1024)
		ctx.HAL.Contactor1(false)
		ctx.HAL.Contactor2(false)

	case StateModemWait:
		ctx.HAL.SetPilot(true)
		ctx.HAL.SetCPDuty(51)
		ctx.ToModemDoneStateTimer = ModemWaitSeconds

	case StateModemDone:
		ctx.DisconnectTimeCounter = -1
		ctx.HAL.SetPilot(false)
		ctx.LeaveModemDoneStateTimer = ModemDoneSeconds

	case StateB:
		CheckSwitchingPhases(ctx)
		if ctx.ModemEnabled {
			ctx.HAL.SetPilot(true)
			ctx.DisconnectTimeCounter = -1
		}
		ctx.HAL.Contactor1(false)
		ctx.HAL.Contactor2(false)

	case StateC:
		ctx.ActivationMode = 255

		switch ctx.SwitchingPhasesC2 {
		case GoingTo1P:
			ctx.NrOfPhasesCharging = 1
		case GoingTo3P:
			ctx.NrOfPhasesCharging = 3
		}

		ctx.HAL.Contactor1(true)
		if ForceSinglePhase(ctx) == 0 {
			ctx.HAL.Contactor2(true)
			ctx.NrOfPhasesCharging = 3
		} else {
			ctx.HAL.Contactor2(false)
			ctx.NrOfPhasesCharging = 1
		}

		ctx.SolarStopTimer = 0
		ctx.MaxSumMainsTimer = 0
		ctx.SwitchingPhasesC2 = NoSwitch

	case StateC1:
		ctx.HAL.SetCPDuty(1024)
		ctx.C1Timer = C1DebounceSeconds
		ctx.ChargeDelay = 15
	}

	ctx.BalancedState[0] = newState
	ctx.State = newState

	ctx.HAL.OnStateChange(old, newState)
}
