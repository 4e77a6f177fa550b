package core

// Tick10ms advances the Control-Pilot state machine given the pilot voltage
// level sampled this tick. Blocks are guarded by the current state and
// deliberately fall through within a single call: a transition made in the
// A/B1 block is honoured by the B/COMM_C block later in the same tick, and
// so on, mirroring the original firmware's flat if-chain (spec.md §4.8).
func Tick10ms(ctx *Context, pilot Pilot) {
	// ---- StateA / StateCommB / StateB1 ----
	if ctx.State == StateA || ctx.State == StateCommB || ctx.State == StateB1 {
		switch {
		case ctx.PilotDisconnected:
			if ctx.PilotDisconnectTime == 0 {
				ctx.HAL.SetPilot(true)
				ctx.PilotDisconnected = false
			}

		case pilot == Pilot12V:
			if (ctx.RFIDReader == RFIDEnableOne || ctx.RFIDReader == RFIDEnableAll) &&
				ctx.AccessTimer == 0 && ctx.AccessStatus == AccessOn {
				ctx.AccessTimer = RFIDLockTime
			}
			if ctx.State != StateA {
				SetState(ctx, StateA)
			}
			ctx.ChargeDelay = 0

		case pilot == Pilot9V && ctx.ErrorFlags == 0 && ctx.ChargeDelay == 0 &&
			ctx.AccessStatus == AccessOn && ctx.State != StateCommB:
			ctx.DiodeCheck = 0

			if ctx.MaxCurrent > ctx.MaxCapacity && ctx.MaxCapacity != 0 {
				ctx.ChargeCurrent = ctx.MaxCapacity * 10
			} else {
				ctx.ChargeCurrent = ctx.MinCurrent * 10
			}

			if ctx.LoadBl > 1 {
				SetState(ctx, StateCommB)
			} else if IsCurrentAvailable(ctx) {
				ctx.BalancedMax[0] = ctx.MaxCapacity * 10
				ctx.Balanced[0] = ctx.ChargeCurrent

				if ctx.ModemEnabled && ctx.ModemStage == 0 {
					SetState(ctx, StateModemRequest)
				} else {
					SetState(ctx, StateB)
				}

				ctx.ActivationMode = 30
				ctx.AccessTimer = 0
			} else {
				SetErrorFlags(ctx, ErrLess6A)
			}

		case pilot == Pilot9V && ctx.State != StateB1 && ctx.State != StateCommB &&
			ctx.AccessStatus == AccessOn:
			SetState(ctx, StateB1)
		}
	}

	// ---- StateCommBOK ----
	if ctx.State == StateCommBOK {
		SetState(ctx, StateB)
		ctx.ActivationMode = 30
		ctx.AccessTimer = 0
	}

	// ---- StateB / StateCommC ----
	if ctx.State == StateB || ctx.State == StateCommC {
		switch pilot {
		case Pilot12V:
			SetState(ctx, StateA)

		case Pilot6V:
			ctx.StateTimer++
			if ctx.StateTimer > StateTimerDebounce10 {
				if ctx.DiodeCheck == 1 && ctx.ErrorFlags == 0 && ctx.ChargeDelay == 0 &&
					ctx.AccessStatus == AccessOn {
					if ctx.LoadBl > 1 {
						if ctx.State != StateCommC {
							SetState(ctx, StateCommC)
						}
					} else {
						ctx.BalancedMax[0] = ctx.ChargeCurrent
						if IsCurrentAvailable(ctx) {
							ctx.Balanced[0] = ctx.MinCurrent * 10
							CalcBalancedCurrent(ctx, true)
							ctx.DiodeCheck = 0
							SetState(ctx, StateC)
						} else {
							SetErrorFlags(ctx, ErrLess6A)
						}
					}
				}
			}

		case Pilot9V:
			ctx.StateTimer = 0
			if ctx.ActivationMode == 0 {
				SetState(ctx, StateActStart)
				ctx.ActivationTimer = 3
			}
		}

		if pilot == PilotDiode {
			ctx.DiodeCheck = 1
		}
	}

	// ---- StateC1 ----
	if ctx.State == StateC1 {
		switch pilot {
		case Pilot12V:
			SetState(ctx, StateA)
		case Pilot9V:
			SetState(ctx, StateB1)
		}
	}

	// ---- StateActStart ----
	if ctx.State == StateActStart {
		if ctx.ActivationTimer == 0 {
			SetState(ctx, StateB)
			ctx.ActivationMode = 255
		}
	}

	// ---- StateCommCOK ----
	if ctx.State == StateCommCOK {
		ctx.DiodeCheck = 0
		SetState(ctx, StateC)
	}

	// ---- StateC ----
	if ctx.State == StateC {
		switch pilot {
		case Pilot12V:
			SetState(ctx, StateA)
		case Pilot9V:
			SetState(ctx, StateB)
			ctx.DiodeCheck = 0
		case PilotShort:
			ctx.StateTimer++
			if ctx.StateTimer > StateTimerDebounce10 {
				ctx.StateTimer = 0
				SetState(ctx, StateB)
				ctx.DiodeCheck = 0
			}
		default:
			ctx.StateTimer = 0
		}
	}
}
