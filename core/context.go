package core

// NodeInfo tracks per-EVSE bookkeeping used by the balancer and the safety
// supervisor. Node[0] always describes the local EVSE (master or
// standalone); Node[1..NrEvses-1] describe sibling EVSEs polled over the
// (out-of-core) node bus.
type NodeInfo struct {
	Online        bool
	ConfigChanged bool
	EVMeter       bool
	EVAddress     uint8
	MinCurrent    uint8
	Phases        uint8
	Timer         uint32
	IntTimer      uint32 // seconds since entering STATE_C; solar-startup gate
	SolarTimer    uint16
	Mode          uint8
}

// Context is the single aggregate holding every value the engine reads or
// writes. One Context exists per EVSE unit. All invariants in spec.md §3
// hold at every entry-point boundary (i.e. between calls into this
// package's exported functions).
type Context struct {
	HAL HAL

	// Core
	State  CpState
	Mode   Mode
	LoadBl uint8 // 0=standalone, 1=master, 2..8=node index
	Config Config

	// Authorization
	AccessStatus     AccessStatus
	RFIDReader       RFIDMode
	OCPPMode         bool
	OCPPCurrentLimit float64 // amps, <0 = none
	CPDutyOverride   bool

	// Limits (amps unless noted)
	MaxMains           uint16
	MaxCurrent         uint16
	MinCurrent         uint16
	MaxCircuit         uint16
	MaxCapacity        uint16
	MaxSumMains        uint16
	MaxSumMainsTime    uint8 // minutes
	GridRelayMaxSumMains uint16
	GridRelayOpen      bool

	// Distribution (0.1A units unless noted)
	Balanced      [NrEvses]uint16
	BalancedMax   [NrEvses]uint16
	BalancedState [NrEvses]CpState
	BalancedError [NrEvses]ErrorFlags
	ChargeCurrent uint16
	IsetBalanced  int32 // signed, hard-capped at 800
	OverrideCurrent uint16

	// Priority
	PrioStrategy     PrioStrategy
	RotationInterval uint16 // 0 or 30..1440 minutes
	IdleTimeout      uint16 // 30..300 seconds
	Priority         [NrEvses]uint8
	ConnectedTime    [NrEvses]uint32 // uptime seconds at STATE_C entry; 0 = never
	IdleTimer        [NrEvses]uint16
	RotationTimer    uint16
	ScheduleState    [NrEvses]ScheduleState
	Uptime           uint32

	// Meters
	Isum               int16 // signed 0.1A
	MainsMeterIrms     [3]int16
	MainsMeterImeasured int16
	EVMeterIrms        [3]int16
	EVMeterImeasured   int16
	MainsMeterType     bool
	EVMeterType        bool
	MainsMeterTimeout  uint8
	EVMeterTimeout     uint8

	// Errors
	ErrorFlags ErrorFlags
	ChargeDelay uint8 // s
	NoCurrent  uint8  // shortage tick counter

	// Timers
	SolarStopTimer   uint16
	MaxSumMainsTimer uint16
	StateTimer       uint32 // 10ms ticks
	AccessTimer      uint16 // s
	C1Timer          uint8  // s
	ActivationMode   uint8  // 255 = disabled
	ActivationTimer  uint8

	// Phase switching
	EnableC2              EnableC2
	NrOfPhasesCharging    uint8 // 1 or 3
	SwitchingPhasesC2     SwitchPhase
	PhasesLastUpdateFlag  bool
	LimitedByMaxSumMains  bool

	// Modem
	ModemEnabled                bool
	ModemStage                  uint8 // 0 = negotiate, 1 = skip
	ToModemWaitStateTimer       uint8
	ToModemDoneStateTimer       uint8
	LeaveModemDoneStateTimer    uint8
	LeaveModemDeniedStateTimer  uint8
	DisconnectTimeCounter       int16 // -1 = disabled
	RequiredEVCCID              string
	EVCCID                      string

	// Solar
	StartCurrent   uint16
	StopTime       uint16 // min
	ImportCurrent  uint16

	// Safety
	TempEVSE int8 // °C
	MaxTemp  uint16
	RCMOn    bool
	RCMFault bool

	// Misc
	DiodeCheck           uint8
	PilotDisconnected    bool
	PilotDisconnectTime  uint8 // s

	Nodes [NrEvses]NodeInfo
}

// Init resets ctx to power-on defaults and installs hal (or NoopHAL if nil).
// After Init, invariant U1 holds: State == StateA, ErrorFlags == 0, both
// contactors off, pilot connected.
func Init(ctx *Context, hal HAL) {
	*ctx = Context{}

	if hal != nil {
		ctx.HAL = hal
	} else {
		ctx.HAL = NoopHAL{}
	}

	ctx.State = StateA
	ctx.Mode = ModeNormal
	ctx.LoadBl = 0
	ctx.Config = ConfigSocket

	ctx.AccessStatus = AccessOff
	ctx.RFIDReader = RFIDDisabled
	ctx.OCPPCurrentLimit = -1.0

	ctx.MaxMains = 25
	ctx.MaxCurrent = 13
	ctx.MinCurrent = 6
	ctx.MaxCircuit = 16
	ctx.MaxCapacity = 13
	ctx.MaxSumMains = 0
	ctx.MaxSumMainsTime = 0
	ctx.GridRelayMaxSumMains = GridRelayMaxSumMains

	for i := range ctx.BalancedState {
		ctx.BalancedState[i] = StateA
	}

	ctx.PrioStrategy = PrioModbusAddr
	ctx.IdleTimeout = 60
	for i := range ctx.Priority {
		ctx.Priority[i] = uint8(i)
	}

	ctx.MainsMeterTimeout = CommTimeout
	ctx.EVMeterTimeout = CommEVTimeout

	ctx.EnableC2 = EnableC2NotPresent
	ctx.NrOfPhasesCharging = 3
	ctx.PhasesLastUpdateFlag = true

	ctx.DisconnectTimeCounter = -1
	ctx.StartCurrent = 4
	ctx.StopTime = 10

	ctx.TempEVSE = 25
	ctx.MaxTemp = DefaultMaxTemperature

	ctx.ActivationMode = 255

	ctx.Nodes[0].Online = true

	// Init does not call ctx.HAL.SetPilot: the pilot line is assumed wired
	// connected by default (the engine only ever actively disconnects it),
	// matching the firmware's instrumentation default.
}
