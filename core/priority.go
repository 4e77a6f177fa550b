package core

// SortPriority rebuilds ctx.Priority as an index permutation: EVSEs
// currently charging (BalancedState == StateC) sort before idle ones;
// within each group, ties break by ctx.PrioStrategy. Faithful to
// evse_sort_priority() in the original firmware (an insertion sort, so
// the comparison below is applied pairwise during insertion).
func SortPriority(ctx *Context) {
	for i := range ctx.Priority {
		ctx.Priority[i] = uint8(i)
	}

	less := func(key, pj uint8) bool {
		keyActive := ctx.BalancedState[key] == StateC
		pjActive := ctx.BalancedState[pj] == StateC

		if keyActive && !pjActive {
			return true
		}
		if keyActive != pjActive {
			return false
		}

		switch ctx.PrioStrategy {
		case PrioFirstConnected:
			if ctx.ConnectedTime[key] != 0 && ctx.ConnectedTime[pj] == 0 {
				return true
			}
			if ctx.ConnectedTime[key] != 0 && ctx.ConnectedTime[pj] != 0 &&
				ctx.ConnectedTime[key] < ctx.ConnectedTime[pj] {
				return true
			}
			return false
		case PrioLastConnected:
			return ctx.ConnectedTime[key] > ctx.ConnectedTime[pj]
		default: // PrioModbusAddr
			return key < pj
		}
	}

	for i := 1; i < NrEvses; i++ {
		key := ctx.Priority[i]
		j := i - 1
		for j >= 0 && less(key, ctx.Priority[j]) {
			ctx.Priority[j+1] = ctx.Priority[j]
			j--
		}
		ctx.Priority[j+1] = key
	}
}

// schedulePriority allocates MinCurrent, in priority order, to every
// charging EVSE until available (0.1A) runs out. EVSEs that miss out are
// marked Paused and tagged NoSun (solar) or Less6A (otherwise). Returns
// the surplus above all MinCurrent allocations. Faithful to
// evse_schedule_priority() in the original firmware.
func schedulePriority(ctx *Context, available int32) int32 {
	minEach := int32(ctx.MinCurrent) * 10

	for i := 0; i < NrEvses; i++ {
		idx := ctx.Priority[i]
		if ctx.BalancedState[idx] != StateC {
			continue
		}

		if available >= minEach {
			ctx.Balanced[idx] = uint16(minEach)
			ctx.ScheduleState[idx] = ScheduleActive
			ctx.BalancedError[idx] &^= ErrLess6A | ErrNoSun
			available -= minEach
		} else {
			ctx.Balanced[idx] = 0
			ctx.ScheduleState[idx] = SchedulePaused
			if ctx.Mode == ModeSolar {
				ctx.BalancedError[idx] |= ErrNoSun
			} else {
				ctx.BalancedError[idx] |= ErrLess6A
			}
		}
	}

	return available
}

// handoutSurplus distributes remaining power above MinCurrent fairly among
// Active EVSEs, respecting each EVSE's BalancedMax. Faithful to
// evse_handout_surplus() in the original firmware.
func handoutSurplus(ctx *Context, surplus int32) {
	if surplus <= 0 {
		return
	}

	var capped [NrEvses]bool
	progress := true

	for surplus > 0 && progress {
		progress = false

		uncapped := 0
		for i := 0; i < NrEvses; i++ {
			if ctx.ScheduleState[i] == ScheduleActive && !capped[i] {
				uncapped++
			}
		}
		if uncapped == 0 {
			break
		}

		share := surplus / int32(uncapped)
		if share == 0 {
			share = 1
		}
		var distributed int32

		for i := 0; i < NrEvses; i++ {
			if ctx.ScheduleState[i] != ScheduleActive || capped[i] {
				continue
			}

			canAdd := int32(ctx.BalancedMax[i]) - int32(ctx.Balanced[i])
			if canAdd <= 0 {
				capped[i] = true
				progress = true
				continue
			}

			add := share
			if canAdd < add {
				add = canAdd
			}
			if add > surplus-distributed {
				add = surplus - distributed
			}
			if add <= 0 {
				continue
			}

			ctx.Balanced[i] += uint16(add)
			distributed += add
			progress = true

			if int32(ctx.Balanced[i]) >= int32(ctx.BalancedMax[i]) {
				capped[i] = true
			}
		}

		surplus -= distributed
	}
}

// ScheduleTick1s runs the per-second priority housekeeping: it records
// ConnectedTime on STATE_C entry, detects an idle Active EVSE and rotates
// it out for a Paused sibling, and counts down the rotation timer. A no-op
// when ctx.LoadBl != 1 (only the master schedules). Faithful to
// evse_schedule_tick_1s() in the original firmware.
func ScheduleTick1s(ctx *Context) {
	if ctx.LoadBl != 1 {
		return
	}

	ctx.Uptime++

	for i := 0; i < NrEvses; i++ {
		if ctx.BalancedState[i] == StateC && ctx.ConnectedTime[i] == 0 {
			ctx.ConnectedTime[i] = ctx.Uptime
		} else if ctx.BalancedState[i] != StateC {
			ctx.ConnectedTime[i] = 0
			if ctx.ScheduleState[i] != ScheduleInactive {
				ctx.ScheduleState[i] = ScheduleInactive
			}
		}
	}

	activeIdx := -1
	pausedCount := 0
	for i := 0; i < NrEvses; i++ {
		if ctx.ScheduleState[i] == ScheduleActive {
			activeIdx = i
		}
		if ctx.ScheduleState[i] == SchedulePaused {
			pausedCount++
		}
	}

	if pausedCount == 0 || activeIdx < 0 {
		return
	}

	for i := 0; i < NrEvses; i++ {
		if ctx.ScheduleState[i] == ScheduleActive {
			ctx.IdleTimer[i]++
		}
	}

	rotated := false
	for i := 0; i < NrEvses; i++ {
		if ctx.ScheduleState[i] != ScheduleActive {
			continue
		}
		if ctx.IdleTimer[i] < ctx.IdleTimeout {
			continue
		}

		if ctx.Balanced[i] > 0 && ctx.EVMeterImeasured >= IdleCurrentThreshold {
			if ctx.RotationInterval > 0 && ctx.RotationTimer == 0 {
				ctx.RotationTimer = ctx.RotationInterval * 60
			}
		} else {
			ctx.ScheduleState[i] = SchedulePaused
			ctx.Balanced[i] = 0

			SortPriority(ctx)
			for p := 0; p < NrEvses; p++ {
				next := ctx.Priority[p]
				if next == uint8(i) {
					continue
				}
				if ctx.BalancedState[next] != StateC {
					continue
				}
				if ctx.ScheduleState[next] == SchedulePaused {
					ctx.ScheduleState[next] = ScheduleActive
					ctx.IdleTimer[next] = 0
					if ctx.RotationInterval > 0 {
						ctx.RotationTimer = ctx.RotationInterval * 60
					} else {
						ctx.RotationTimer = 0
					}
					rotated = true
					break
				}
			}
			if !rotated {
				for p := 0; p < NrEvses; p++ {
					next := ctx.Priority[p]
					if ctx.BalancedState[next] == StateC && ctx.ScheduleState[next] == SchedulePaused {
						ctx.ScheduleState[next] = ScheduleActive
						ctx.IdleTimer[next] = 0
						if ctx.RotationInterval > 0 {
							ctx.RotationTimer = ctx.RotationInterval * 60
						} else {
							ctx.RotationTimer = 0
						}
						rotated = true
						break
					}
				}
			}
			break
		}
	}

	if !rotated && ctx.RotationInterval > 0 && ctx.RotationTimer > 0 {
		ctx.RotationTimer--
		if ctx.RotationTimer == 0 {
			SortPriority(ctx)
			for i := 0; i < NrEvses; i++ {
				if ctx.ScheduleState[i] != ScheduleActive {
					continue
				}

				ctx.ScheduleState[i] = SchedulePaused
				ctx.Balanced[i] = 0

				found := false
				pastCurrent := false
				for p := 0; p < NrEvses; p++ {
					next := ctx.Priority[p]
					if next == uint8(i) {
						pastCurrent = true
						continue
					}
					if !pastCurrent {
						continue
					}
					if ctx.BalancedState[next] == StateC && ctx.ScheduleState[next] == SchedulePaused {
						ctx.ScheduleState[next] = ScheduleActive
						ctx.IdleTimer[next] = 0
						ctx.RotationTimer = ctx.RotationInterval * 60
						found = true
						break
					}
				}
				if !found {
					for p := 0; p < NrEvses; p++ {
						next := ctx.Priority[p]
						if ctx.BalancedState[next] == StateC && ctx.ScheduleState[next] == SchedulePaused {
							ctx.ScheduleState[next] = ScheduleActive
							ctx.IdleTimer[next] = 0
							ctx.RotationTimer = ctx.RotationInterval * 60
							break
						}
					}
				}
				break
			}
		}
	}
}
