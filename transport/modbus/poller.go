// Package modbus polls sibling EVSEs over an RS-485 node bus using
// goburrow/modbus as an RTU master, grounded on the sigenergy Modbus client
// shape retrieved alongside this pack's fakeSungrowMeter (which wires the
// sibling goburrow/serial package on the server side of the same bus).
package modbus

import (
	"encoding/binary"
	"fmt"
	"time"

	gomodbus "github.com/goburrow/modbus"
	"github.com/sirupsen/logrus"

	"evse-coreboard/core"
)

// Holding register layout each node exposes on the bus; the master polls
// these every cycle to populate core.Context.Nodes[i].
const (
	regState       = 0 // CpState
	regBalanced    = 1 // 0.1A
	regErrorFlags  = 2 // ErrorFlags bitset
	regCount       = 3
)

// Config describes the RTU master's serial parameters.
type Config struct {
	Device   string
	BaudRate int
	Timeout  time.Duration
}

// Poller is a modbus.RTUClientHandler-backed master that reads each node's
// status registers in turn.
type Poller struct {
	handler *gomodbus.RTUClientHandler
	client  gomodbus.Client
	log     *logrus.Entry
}

// NewPoller opens the serial device described by cfg.
func NewPoller(cfg Config, log *logrus.Entry) (*Poller, error) {
	handler := gomodbus.NewRTUClientHandler(cfg.Device)
	handler.BaudRate = cfg.BaudRate
	handler.DataBits = 8
	handler.Parity = "N"
	handler.StopBits = 1
	handler.Timeout = cfg.Timeout

	if err := handler.Connect(); err != nil {
		return nil, fmt.Errorf("modbus: connect %s: %w", cfg.Device, err)
	}

	return &Poller{
		handler: handler,
		client:  gomodbus.NewClient(handler),
		log:     log,
	}, nil
}

// Close releases the serial device.
func (p *Poller) Close() error {
	return p.handler.Close()
}

// PollNode reads node address addr's status registers into ctx.Nodes[addr].
// A read failure sets the node's Online flag to false. Package core does not
// read Online; PollAll uses it to decide which slots to poll.
func (p *Poller) PollNode(ctx *core.Context, addr uint8) {
	p.handler.SlaveId = addr

	raw, err := p.client.ReadHoldingRegisters(0, regCount)
	if err != nil {
		p.log.WithError(err).WithField("node", addr).Warn("node poll failed")
		ctx.Nodes[addr].Online = false
		return
	}

	state := core.CpState(binary.BigEndian.Uint16(raw[regState*2:]))
	balanced := binary.BigEndian.Uint16(raw[regBalanced*2:])
	errFlags := binary.BigEndian.Uint16(raw[regErrorFlags*2:])

	ctx.Nodes[addr].Online = true
	ctx.BalancedState[addr] = state
	ctx.Balanced[addr] = balanced
	ctx.BalancedError[addr] = core.ErrorFlags(errFlags)
}

// PollAll polls every configured sibling node (addresses 1..NrEvses-1;
// address 0 is always the local EVSE).
func (p *Poller) PollAll(ctx *core.Context) {
	for addr := uint8(1); addr < core.NrEvses; addr++ {
		if !ctx.Nodes[addr].ConfigChanged && !ctx.Nodes[addr].Online && ctx.Nodes[addr].EVAddress == 0 {
			continue // unconfigured slot, never polled
		}
		p.PollNode(ctx, addr)
	}
}
