// Package host is the direct generalization of the teacher's LoadPoint: it
// owns the mockable clock, the event bus and the retrying meter reads that
// the pure core.Context/core functions are deliberately forbidden from
// touching, and drives core.Tick10ms/core.Tick1s/core.CalcBalancedCurrent on
// their respective cadences.
package host

import (
	"sync"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"github.com/avast/retry-go"
	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"evse-coreboard/core"
)

// Event names published on the bus, mirroring the teacher's
// evChargeStart/evChargeStop/evVehicleConnect/evVehicleDisconnect set.
const (
	EvVehicleConnect    = "connect"
	EvVehicleDisconnect = "disconnect"
	EvChargeStart       = "charge_start"
	EvChargeStop        = "charge_stop"
	EvStateChanged      = "state_changed"
	EvError             = "error"
)

// MeterReader abstracts the mains/EV current transformers; reads are wrapped
// in retry.Do the same way the teacher's updateChargeMeter wraps
// chargeMeter.CurrentPower().
type MeterReader interface {
	// ReadMainsCurrents returns per-phase 0.1A RMS mains readings.
	ReadMainsCurrents() ([3]int16, error)
	// ReadEVCurrents returns per-phase 0.1A RMS EV-side readings, used only
	// when an EV meter is present.
	ReadEVCurrents() ([3]int16, error)
}

// Runner owns one core.Context and the collaborators needed to drive it from
// wall-clock time and real meters. mu serializes every touch of ctx: the
// 10ms/1s ticks on Run's own goroutine, and any external mutation (an MQTT
// current-limit callback, a modbus poll) made through Do.
type Runner struct {
	clock clock.Clock
	bus   evbus.Bus
	log   *logrus.Entry

	mu     sync.Mutex
	ctx    *core.Context
	meters MeterReader

	tick10msEvery time.Duration
	tick1sEvery   time.Duration

	lastState core.CpState

	stopCh chan struct{}
}

// NewRunner builds a Runner around ctx, defaulting to the real wall clock.
// Tests substitute clock.NewMock() the way the teacher's loadpoint tests do.
func NewRunner(ctx *core.Context, meters MeterReader, log *logrus.Entry) *Runner {
	return &Runner{
		clock:         clock.New(),
		bus:           evbus.New(),
		log:           log,
		ctx:           ctx,
		meters:        meters,
		tick10msEvery: 10 * time.Millisecond,
		tick1sEvery:   time.Second,
		lastState:     ctx.State,
		stopCh:        make(chan struct{}),
	}
}

// Bus exposes the event bus so transport packages can subscribe.
func (r *Runner) Bus() evbus.Bus { return r.bus }

// SetClock overrides the clock, used by tests to inject clock.NewMock().
func (r *Runner) SetClock(c clock.Clock) { r.clock = c }

var meterRetryOptions = []retry.Option{
	retry.Attempts(3),
	retry.Delay(20 * time.Millisecond),
	retry.LastErrorOnly(true),
}

// pollMeters refreshes ctx.MainsMeterImeasured/EVMeterImeasured, retrying
// transient read failures exactly as updateChargeMeter retries
// chargeMeter.CurrentPower() in the teacher.
func (r *Runner) pollMeters() {
	if r.meters == nil {
		return
	}

	err := retry.Do(func() error {
		irms, err := r.meters.ReadMainsCurrents()
		if err != nil {
			return err
		}
		r.ctx.MainsMeterIrms = irms
		r.ctx.MainsMeterImeasured = irms[0] + irms[1] + irms[2]
		return nil
	}, meterRetryOptions...)
	if err != nil {
		r.log.WithError(errors.Wrap(err, "reading mains meter")).Error("mains meter read failed")
	} else {
		// A fresh Irms sample re-arms CalcBalancedCurrent's regulation step,
		// which consumes and clears this flag on every call.
		r.ctx.PhasesLastUpdateFlag = true
	}

	if !r.ctx.EVMeterType {
		return
	}

	err = retry.Do(func() error {
		irms, err := r.meters.ReadEVCurrents()
		if err != nil {
			return err
		}
		r.ctx.EVMeterIrms = irms
		r.ctx.EVMeterImeasured = irms[0] + irms[1] + irms[2]
		return nil
	}, meterRetryOptions...)
	if err != nil {
		r.log.WithError(errors.Wrap(err, "reading EV meter")).Error("EV meter read failed")
	}
}

// publishTransition emits connect/disconnect/charge-start/charge-stop events
// derived from a core.Context state change, decoupling the engine from its
// subscribers exactly as spec.md requires ("HAL callbacks never mutate the
// Context back").
func (r *Runner) publishTransition(old, next core.CpState) {
	if old == next {
		return
	}

	r.bus.Publish(EvStateChanged, old, next)

	if old == core.StateA && next != core.StateA {
		r.bus.Publish(EvVehicleConnect)
	}
	if next == core.StateA && old != core.StateA {
		r.bus.Publish(EvVehicleDisconnect)
	}
	if next == core.StateC && old != core.StateC {
		r.bus.Publish(EvChargeStart)
	}
	if old == core.StateC && next != core.StateC {
		r.bus.Publish(EvChargeStop)
	}
}

// Do runs fn with exclusive access to the Runner's core.Context, the entry
// point any goroutine outside Run (an MQTT subscription callback, a modbus
// poll ticker) must use instead of touching the Context directly.
func (r *Runner) Do(fn func(*core.Context)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.ctx)
}

// Step10ms samples pilot and advances the Control-Pilot state machine by one
// 10ms tick, publishing any resulting transition.
func (r *Runner) Step10ms(pilot core.Pilot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	before := r.ctx.State
	core.Tick10ms(r.ctx, pilot)
	if r.ctx.State != before {
		r.publishTransition(before, r.ctx.State)
	}
}

// Step1s runs the once-per-second safety/priority tick, then refreshes
// meters and recomputes the balanced current distribution.
func (r *Runner) Step1s() {
	r.mu.Lock()
	defer r.mu.Unlock()

	before := r.ctx.State
	core.Tick1s(r.ctx)
	if r.ctx.State != before {
		r.publishTransition(before, r.ctx.State)
	}

	r.pollMeters()
	core.CalcBalancedCurrent(r.ctx, false)
}

// Run drives Step10ms/Step1s on their cadences from the installed clock
// until Stop is called. pilotFn samples the current Control-Pilot voltage
// class; it is called from the 10ms tick goroutine. Any other goroutine that
// needs to read or mutate the Context must go through Do.
func (r *Runner) Run(pilotFn func() core.Pilot) {
	tick10 := r.clock.Ticker(r.tick10msEvery)
	tick1 := r.clock.Ticker(r.tick1sEvery)
	defer tick10.Stop()
	defer tick1.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-tick10.C:
			r.Step10ms(pilotFn())
		case <-tick1.C:
			r.Step1s()
		}
	}
}

// Stop terminates a running Run loop.
func (r *Runner) Stop() {
	close(r.stopCh)
}
