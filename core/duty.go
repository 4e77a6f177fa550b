package core

// CurrentToDuty maps a charge current in 0.1A units to a Control-Pilot PWM
// duty in the range [0, 1024], where 1024 means 100% (CP held at +12V,
// "EVSE not ready"). Faithful to SetCurrent() in the original firmware.
func CurrentToDuty(current01A uint16) uint32 {
	var dutyRaw uint32

	switch {
	case current01A >= 60 && current01A <= 510:
		dutyRaw = uint32(float64(current01A) / 0.6)
	case current01A > 510 && current01A <= 800:
		dutyRaw = uint32(float64(current01A)/2.5) + 640
	default:
		dutyRaw = 100 // invalid input, ~6A safe default
	}

	duty := dutyRaw * 1024 / 1000
	if duty > 1024 {
		duty = 1024
	}
	return duty
}
