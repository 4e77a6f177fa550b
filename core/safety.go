package core

// Tick1s runs the once-per-second safety and housekeeping supervisor: modem
// negotiation timeouts, C1/SolarStop/MaxSumMains/ChargeDelay/AccessTimer
// countdowns, per-EVSE charge timers, meter-communication watchdogs,
// over-temperature detection, and LESS_6A enforcement, finishing with the
// priority scheduler. Faithful to evse_tick_1s() in the original firmware
// (spec.md §4.7); steps run in the original's fixed order since several
// later steps read flags an earlier step in the same tick may have set.
func Tick1s(ctx *Context) {
	if ctx.ActivationMode != 0 && ctx.ActivationMode != 255 {
		ctx.ActivationMode--
	}

	if ctx.ActivationTimer > 0 {
		ctx.ActivationTimer--
	}

	if ctx.ModemEnabled {
		if ctx.State == StateModemRequest {
			if ctx.ToModemWaitStateTimer > 0 {
				ctx.ToModemWaitStateTimer--
			} else {
				SetState(ctx, StateModemWait)
			}
		}
		if ctx.State == StateModemWait {
			if ctx.ToModemDoneStateTimer > 0 {
				ctx.ToModemDoneStateTimer--
			} else {
				SetState(ctx, StateModemDone)
			}
		}
		if ctx.State == StateModemDone {
			if ctx.LeaveModemDoneStateTimer > 0 {
				ctx.LeaveModemDoneStateTimer--
			} else {
				ctx.HAL.SetCPDuty(1024)
				ctx.HAL.SetPilot(false)
				if ctx.RequiredEVCCID == "" || ctx.RequiredEVCCID == ctx.EVCCID {
					ctx.ModemStage = 1
					SetState(ctx, StateB)
				} else {
					ctx.ModemStage = 0
					ctx.LeaveModemDeniedStateTimer = ModemDeniedSeconds
					SetState(ctx, StateModemDenied)
				}
			}
		}
		if ctx.State == StateModemDenied {
			if ctx.LeaveModemDeniedStateTimer > 0 {
				ctx.LeaveModemDeniedStateTimer--
			} else {
				SetState(ctx, StateA)
				ctx.HAL.SetPilot(true)
			}
		}

		// DisconnectTimeCounter increment and pilot-presence check stay with
		// the host: they need the hardware pilot reading, not just state.
	}

	if ctx.State == StateC1 {
		if ctx.C1Timer > 0 {
			ctx.C1Timer--
		} else {
			SetState(ctx, StateB1)
		}
	}

	if ctx.SolarStopTimer > 0 {
		ctx.SolarStopTimer--
		if ctx.SolarStopTimer == 0 {
			if ctx.State == StateC {
				SetState(ctx, StateC1)
			}
			SetErrorFlags(ctx, ErrLess6A)
		}
	}

	if ctx.PilotDisconnectTime > 0 {
		ctx.PilotDisconnectTime--
	}

	for x := 0; x < NrEvses; x++ {
		if ctx.BalancedState[x] == StateC {
			ctx.Nodes[x].IntTimer++
			ctx.Nodes[x].Timer++
		} else {
			ctx.Nodes[x].IntTimer = 0
		}
	}

	if ctx.MaxSumMainsTimer > 0 {
		ctx.MaxSumMainsTimer--
		if ctx.MaxSumMainsTimer == 0 {
			if ctx.State == StateC {
				SetState(ctx, StateC1)
			}
			SetErrorFlags(ctx, ErrLess6A)
		}
	}

	if ctx.ChargeDelay > 0 {
		ctx.ChargeDelay--
	}

	if ctx.AccessTimer > 0 && ctx.State == StateA {
		ctx.AccessTimer--
		if ctx.AccessTimer == 0 {
			SetAccess(ctx, AccessOff)
		}
	} else if ctx.State != StateA {
		ctx.AccessTimer = 0
	}

	if int32(ctx.TempEVSE) < int32(ctx.MaxTemp)-10 && ctx.ErrorFlags&ErrTempHigh != 0 {
		ClearErrorFlags(ctx, ErrTempHigh)
	}

	if ctx.ErrorFlags&ErrLess6A != 0 && ctx.LoadBl < 2 && IsCurrentAvailable(ctx) {
		ClearErrorFlags(ctx, ErrLess6A)
	}

	if ctx.MainsMeterType && ctx.LoadBl < 2 {
		if ctx.MainsMeterTimeout == 0 && ctx.ErrorFlags&ErrCtNoComm == 0 && ctx.Mode != ModeNormal {
			SetErrorFlags(ctx, ErrCtNoComm)
			SetPowerUnavailable(ctx)
		} else if ctx.MainsMeterTimeout > 0 {
			ctx.MainsMeterTimeout--
		}
	} else if ctx.LoadBl > 1 {
		if ctx.MainsMeterTimeout == 0 && ctx.ErrorFlags&ErrCtNoComm == 0 {
			SetErrorFlags(ctx, ErrCtNoComm)
			SetPowerUnavailable(ctx)
		} else if ctx.MainsMeterTimeout > 0 {
			ctx.MainsMeterTimeout--
		}
	} else {
		ctx.MainsMeterTimeout = CommTimeout
	}

	if ctx.EVMeterType {
		if ctx.EVMeterTimeout == 0 && ctx.ErrorFlags&ErrEvNoComm == 0 && ctx.Mode != ModeNormal {
			SetErrorFlags(ctx, ErrEvNoComm)
			SetPowerUnavailable(ctx)
		} else if ctx.EVMeterTimeout > 0 {
			ctx.EVMeterTimeout--
		}
	} else {
		ctx.EVMeterTimeout = CommEVTimeout
	}

	if ctx.ErrorFlags&ErrCtNoComm != 0 && ctx.MainsMeterTimeout > 0 {
		ClearErrorFlags(ctx, ErrCtNoComm)
	}

	if ctx.ErrorFlags&ErrEvNoComm != 0 && ctx.EVMeterTimeout > 0 {
		ClearErrorFlags(ctx, ErrEvNoComm)
	}

	if int32(ctx.TempEVSE) > int32(ctx.MaxTemp) && ctx.ErrorFlags&ErrTempHigh == 0 {
		SetErrorFlags(ctx, ErrTempHigh)
		SetPowerUnavailable(ctx)
	}

	if ctx.ErrorFlags&ErrLess6A != 0 {
		SetPowerUnavailable(ctx)
		ctx.ChargeDelay = ChargeDelaySeconds
	}

	ScheduleTick1s(ctx)
}
