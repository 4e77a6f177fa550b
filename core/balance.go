package core

func minI32(a, b int32) int32 {
	if a < b {
		return a
	}
	return b
}

// CalcBalancedCurrent recomputes the current distribution across every
// charging EVSE. mod=true signals that a new EVSE is joining; mod=false is
// regular regulation. The host calls this whenever load-balancing inputs
// change (typically every 2s from the meter-poll loop), and once more when
// an EVSE transitions B->C. Faithful to evse_calc_balanced_current() in the
// original firmware (spec.md §4.4).
func CalcBalancedCurrent(ctx *Context, mod bool) {
	var activeEVSE int32
	var totalCurrent int32
	var activeMax int32
	var isumImport int32
	limitedByMaxSumMains := false
	priorityScheduled := false
	var currentSet [NrEvses]bool

	// ---- Phase 1: ChargeCurrent baseline ----
	if ctx.BalancedState[0] == StateC && ctx.MaxCurrent > ctx.MaxCapacity && ctx.Config == ConfigSocket {
		ctx.ChargeCurrent = ctx.MaxCapacity * 10
	} else {
		ctx.ChargeCurrent = ctx.MaxCurrent * 10
	}

	if ctx.OCPPMode && ctx.LoadBl == 0 && ctx.OCPPCurrentLimit >= 0 {
		if ctx.OCPPCurrentLimit < float64(ctx.MinCurrent) {
			ctx.ChargeCurrent = 0
		} else {
			ocppLimit := uint16(10.0 * ctx.OCPPCurrentLimit)
			if ocppLimit < ctx.ChargeCurrent {
				ctx.ChargeCurrent = ocppLimit
			}
		}
	}

	if ctx.OverrideCurrent != 0 {
		ctx.ChargeCurrent = ctx.OverrideCurrent
	}

	ctx.BalancedMax[0] = ctx.ChargeCurrent

	// ---- Phase 2: tallies ----
	for n := 0; n < NrEvses; n++ {
		if ctx.BalancedState[n] == StateC {
			activeEVSE++
			activeMax += int32(ctx.BalancedMax[n])
			totalCurrent += int32(ctx.Balanced[n])
		}
	}

	baseloadEV := int32(ctx.EVMeterImeasured) - totalCurrent
	if baseloadEV < 0 {
		baseloadEV = 0
	}
	baseload := int32(ctx.MainsMeterImeasured) - totalCurrent

	saveActiveEVSE := activeEVSE

	// ---- Phase 3: IsetBalanced regulation ----
	if ctx.Mode == ModeNormal {
		if ctx.LoadBl == 1 {
			ctx.IsetBalanced = int32(ctx.MaxCircuit)*10 - baseloadEV
		} else {
			ctx.IsetBalanced = int32(ctx.ChargeCurrent)
		}

		if ctx.NrOfPhasesCharging != 3 {
			ctx.SwitchingPhasesC2 = GoingTo3P
		}
	} else {
		if ctx.Mode == ModeSolar && ctx.State == StateB && ctx.EnableC2 == EnableC2Auto {
			if -int32(ctx.Isum) >= 30*int32(ctx.MinCurrent)+30 {
				if ctx.NrOfPhasesCharging != 3 {
					ctx.SwitchingPhasesC2 = GoingTo3P
				}
			} else {
				if ctx.NrOfPhasesCharging != 1 {
					ctx.SwitchingPhasesC2 = GoingTo1P
				}
			}
		}

		var idifference int32
		if (ctx.LoadBl == 0 && ctx.EVMeterType) || (ctx.LoadBl == 1 && ctx.EVMeterType) {
			idifference = minI32(int32(ctx.MaxMains)*10-int32(ctx.MainsMeterImeasured),
				int32(ctx.MaxCircuit)*10-int32(ctx.EVMeterImeasured))
		} else {
			idifference = int32(ctx.MaxMains)*10 - int32(ctx.MainsMeterImeasured)
		}

		excessMaxSumMains := int32(ctx.MaxSumMains)*10 - int32(ctx.Isum)
		if ctx.MaxSumMains != 0 {
			idifference = excessMaxSumMains
			if excessMaxSumMains < 0 {
				limitedByMaxSumMains = true
			} else {
				limitedByMaxSumMains = false
				ctx.MaxSumMainsTimer = 0
			}
		}

		if !mod {
			if ctx.PhasesLastUpdateFlag {
				if idifference > 0 {
					if ctx.Mode == ModeSmart {
						ctx.IsetBalanced += idifference / 4
					}
				} else {
					ctx.IsetBalanced += idifference
				}
			}
			if ctx.IsetBalanced < 0 {
				ctx.IsetBalanced = 0
			}
			if ctx.IsetBalanced > IsetBalancedHardCap {
				ctx.IsetBalanced = IsetBalancedHardCap
			}
		}

		if ctx.Mode == ModeSolar {
			isumImport = int32(ctx.Isum) - 10*int32(ctx.ImportCurrent)
			if activeEVSE > 0 && idifference > 0 && ctx.PhasesLastUpdateFlag {
				switch {
				case isumImport < 0:
					if isumImport < -10 && idifference > 10 {
						ctx.IsetBalanced += 5
					} else {
						ctx.IsetBalanced += 1
					}
				case isumImport > 20:
					ctx.IsetBalanced -= isumImport / 2
				case isumImport > 10:
					ctx.IsetBalanced -= 5
				case isumImport > 3:
					ctx.IsetBalanced -= 1
				}
			}
		} else {
			if mod && activeEVSE > 0 {
				ctx.IsetBalanced = minI32(int32(ctx.MaxMains)*10-baseload, int32(ctx.MaxCircuit)*10-baseloadEV)
				if ctx.MaxSumMains != 0 {
					ctx.IsetBalanced = minI32(ctx.IsetBalanced, (int32(ctx.MaxSumMains)*10-int32(ctx.Isum))/3)
				}
			}
		}
	}

	// ---- Phase 4: guard rails ----
	if ctx.MainsMeterType && ctx.Mode != ModeNormal {
		ctx.IsetBalanced = minI32(ctx.IsetBalanced, int32(ctx.MaxMains)*10-baseload)
	}
	if (ctx.LoadBl == 0 && ctx.EVMeterType && ctx.Mode != ModeNormal) || ctx.LoadBl == 1 {
		ctx.IsetBalanced = minI32(ctx.IsetBalanced, int32(ctx.MaxCircuit)*10-baseloadEV)
	}
	if ctx.GridRelayOpen {
		phases := int32(3)
		if ForceSinglePhase(ctx) != 0 {
			phases = 1
		}
		ctx.IsetBalanced = minI32(ctx.IsetBalanced, int32(ctx.GridRelayMaxSumMains)*10/phases)
	}

	// ---- Phase 5: shortage or distribution ----
	if activeEVSE > 0 && (ctx.PhasesLastUpdateFlag || ctx.Mode == ModeNormal) {
		if ctx.IsetBalanced < activeEVSE*int32(ctx.MinCurrent)*10 {
			// -- Shortage --
			actualAvailable := ctx.IsetBalanced
			if actualAvailable < 0 {
				actualAvailable = 0
			}
			ctx.IsetBalanced = activeEVSE * int32(ctx.MinCurrent) * 10

			if ctx.Mode == ModeSolar {
				if activeEVSE > 0 && isumImport > 0 &&
					(int32(ctx.Isum) > (activeEVSE*int32(ctx.MinCurrent)*int32(ctx.NrOfPhasesCharging)-int32(ctx.StartCurrent))*10 ||
						(ctx.NrOfPhasesCharging > 1 && ctx.EnableC2 == EnableC2Auto)) {

					if ctx.NrOfPhasesCharging > 1 && ctx.EnableC2 == EnableC2Auto && ctx.State == StateC {
						if ctx.SolarStopTimer == 0 {
							if isumImport < 10*int32(ctx.MinCurrent) {
								ctx.SolarStopTimer = ctx.StopTime * 60
							}
							if ctx.SolarStopTimer == 0 {
								ctx.SolarStopTimer = 30
							}
						}
						if ctx.SolarStopTimer <= 2 {
							ctx.SwitchingPhasesC2 = GoingTo1P
							SetState(ctx, StateC1)
							ctx.SolarStopTimer = 0
						}
					} else {
						if ctx.SolarStopTimer == 0 {
							ctx.SolarStopTimer = ctx.StopTime * 60
						}
					}
				} else {
					ctx.SolarStopTimer = 0
				}
			}

			hardShortage := false
			if ctx.MainsMeterType && ctx.Mode != ModeNormal {
				if ctx.IsetBalanced > int32(ctx.MaxMains)*10-baseload {
					hardShortage = true
				}
			}
			if ((ctx.LoadBl == 0 && ctx.EVMeterType && ctx.Mode != ModeNormal) || ctx.LoadBl == 1) &&
				ctx.IsetBalanced > int32(ctx.MaxCircuit)*10-baseloadEV {
				hardShortage = true
			}
			if ctx.MaxSumMainsTime == 0 && limitedByMaxSumMains {
				hardShortage = true
			}

			if ctx.LoadBl == 1 && activeEVSE > 1 {
				priorityScheduled = true
				SortPriority(ctx)
				surplus := schedulePriority(ctx, actualAvailable)
				handoutSurplus(ctx, surplus)

				anyActive := false
				for i := 0; i < NrEvses; i++ {
					if ctx.ScheduleState[i] == ScheduleActive {
						anyActive = true
						break
					}
				}
				if !anyActive {
					ctx.NoCurrent++
				}
			} else {
				if hardShortage && ctx.SwitchingPhasesC2 != GoingTo1P {
					ctx.NoCurrent++
				} else {
					if limitedByMaxSumMains && ctx.MaxSumMainsTime != 0 {
						if ctx.MaxSumMainsTimer == 0 {
							ctx.MaxSumMainsTimer = uint16(ctx.MaxSumMainsTime) * 60
						}
					}
				}
			}
		} else {
			// -- No shortage --
			if ctx.LoadBl == 1 {
				for n := 0; n < NrEvses; n++ {
					if ctx.BalancedState[n] == StateC {
						ctx.ScheduleState[n] = ScheduleActive
						ctx.BalancedError[n] &^= ErrLess6A | ErrNoSun
						ctx.IdleTimer[n] = 0
					}
				}
			}

			if ctx.Mode == ModeSolar && ctx.NrOfPhasesCharging == 1 && ctx.EnableC2 == EnableC2Auto &&
				ctx.IsetBalanced+8 >= int32(ctx.MaxCurrent)*10 && ctx.State == StateC {

				spareCurrent := 3*(int32(ctx.MinCurrent)+1) - int32(ctx.MaxCurrent)
				if spareCurrent < 0 {
					spareCurrent = 3
				}
				if -int32(ctx.Isum) > 10*spareCurrent {
					if ctx.SolarStopTimer == 0 {
						ctx.SolarStopTimer = 63
					}
					if ctx.SolarStopTimer <= 3 {
						ctx.SwitchingPhasesC2 = GoingTo3P
						SetState(ctx, StateC1)
						ctx.SolarStopTimer = 0
					}
				} else {
					ctx.SolarStopTimer = 0
				}
			} else {
				ctx.SolarStopTimer = 0
				ctx.MaxSumMainsTimer = 0
				ctx.NoCurrent = 0
			}
		}

		// ---- Distribution ----
		if !priorityScheduled {
			if ctx.IsetBalanced > activeMax {
				ctx.IsetBalanced = activeMax
			}
			maxBalanced := ctx.IsetBalanced

			n := 0
			for n < NrEvses && activeEVSE > 0 {
				average := maxBalanced / activeEVSE
				if ctx.BalancedState[n] == StateC && !currentSet[n] {
					if ctx.Mode == ModeSolar && ctx.Nodes[n].IntTimer < SolarStartTime {
						ctx.Balanced[n] = ctx.MinCurrent * 10
						currentSet[n] = true
						activeEVSE--
						maxBalanced -= int32(ctx.Balanced[n])
						ctx.IsetBalanced = totalCurrent
						n = 0
						continue
					} else if average >= int32(ctx.BalancedMax[n]) {
						ctx.Balanced[n] = ctx.BalancedMax[n]
						currentSet[n] = true
						activeEVSE--
						maxBalanced -= int32(ctx.Balanced[n])
						n = 0
						continue
					}
				}
				n++
			}

			n = 0
			for n < NrEvses && activeEVSE > 0 {
				if ctx.BalancedState[n] == StateC && !currentSet[n] {
					ctx.Balanced[n] = uint16(maxBalanced / activeEVSE)
					currentSet[n] = true
					activeEVSE--
					maxBalanced -= int32(ctx.Balanced[n])
				}
				n++
			}
		}
	}

	if saveActiveEVSE == 0 {
		ctx.SolarStopTimer = 0
		ctx.MaxSumMainsTimer = 0
		ctx.NoCurrent = 0
	}

	ctx.PhasesLastUpdateFlag = false
}
