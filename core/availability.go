package core

// IsCurrentAvailable reports whether one additional EVSE could start
// charging at MinCurrent right now. It composes the checks of spec.md §4.3
// in order; any failing check returns false. Faithful to
// IsCurrentAvailable() in the original firmware.
func IsCurrentAvailable(ctx *Context) bool {
	var active int32
	var total int32

	for n := 0; n < NrEvses; n++ {
		if ctx.BalancedState[n] == StateC {
			active++
			total += int32(ctx.Balanced[n])
		}
	}

	if ctx.Mode == ModeSolar {
		if active == 0 && int32(ctx.Isum) >= -int32(ctx.StartCurrent)*10 {
			return false
		}
		if active*int32(ctx.MinCurrent)*10 > total {
			return false
		}
		if active > 0 && int32(ctx.Isum) > int32(ctx.ImportCurrent)*10+total-active*int32(ctx.MinCurrent)*10 {
			return false
		}
	}

	active++
	if active > NrEvses {
		active = NrEvses
	}

	baseload := int32(ctx.MainsMeterImeasured) - total
	baseloadEV := int32(ctx.EVMeterImeasured) - total
	if baseloadEV < 0 {
		baseloadEV = 0
	}

	if ctx.Mode != ModeNormal && active*int32(ctx.MinCurrent)*10+baseload > int32(ctx.MaxMains)*10 {
		return false
	}

	if ((ctx.LoadBl == 0 && ctx.EVMeterType && ctx.Mode != ModeNormal) || ctx.LoadBl == 1) &&
		active*int32(ctx.MinCurrent)*10+baseloadEV > int32(ctx.MaxCircuit)*10 {
		return false
	}

	phases := int32(1)
	if ctx.LoadBl == 0 {
		if ForceSinglePhase(ctx) != 0 {
			phases = 1
		} else {
			phases = 3
		}
	}
	if ctx.Mode != ModeNormal && ctx.MaxSumMains != 0 &&
		phases*active*int32(ctx.MinCurrent)*10+int32(ctx.Isum) > int32(ctx.MaxSumMains)*10 {
		return false
	}

	if ctx.OCPPMode && ctx.LoadBl == 0 && ctx.OCPPCurrentLimit >= 0 &&
		ctx.OCPPCurrentLimit < float64(ctx.MinCurrent) {
		return false
	}

	return true
}
