// Package lss implements the CANopen LSS (Layer Setting Services) slave:
// switch-state, inquiry, node-ID configuration, and fast-scan discovery.
//
// Grounded on the teacher's pkg/lss/slave.go and common.go (command
// constants, state machine shape), generalized from its goroutine+channel
// Process(ctx) loop to a cooperative Handle/NextTransmit call pair. Fast-scan has
// no teacher or original_source implementation (only an unused
// addressFastscan field in the teacher, and the Rust original's fast-scan
// master lives outside this repo's scope with no retrieved slave-side
// counterpart) — built from the CiA 305 fast-scan protocol.
package lss

import (
	"encoding/binary"

	log "github.com/sirupsen/logrus"

	"github.com/zencan-go/zencan/mailbox"
)

// Command is an LSS service command specifier, byte 0 of an LSS frame.
type Command uint8

const (
	CmdSwitchStateGlobal            Command = 4
	CmdSwitchStateSelectiveVendor   Command = 64
	CmdSwitchStateSelectiveProduct  Command = 65
	CmdSwitchStateSelectiveRevision Command = 66
	CmdSwitchStateSelectiveSerialNb Command = 67
	CmdSwitchStateSelectiveResult   Command = 68

	CmdConfigureNodeID          Command = 17
	CmdConfigureNodeIDResult    Command = 17

	CmdInquireVendor   Command = 90
	CmdInquireProduct  Command = 91
	CmdInquireRevision Command = 92
	CmdInquireSerial   Command = 93
	CmdInquireNodeID   Command = 94

	CmdIdentifyFastscan      Command = 81
	CmdIdentifySlaveResponse Command = 79
)

// State is the LSS slave's mode: Waiting (identification only) or
// Configuration (node-ID/bit-timing changes allowed).
type State uint8

const (
	StateWaiting       State = 1
	StateConfiguration State = 2
)

// Identity mirrors object 0x1018: vendor ID, product code, revision, serial.
type Identity struct {
	VendorID     uint32
	ProductCode  uint32
	Revision     uint32
	SerialNumber uint32
}

func (id Identity) field(n int) uint32 {
	switch n {
	case 0:
		return id.VendorID
	case 1:
		return id.ProductCode
	case 2:
		return id.Revision
	default:
		return id.SerialNumber
	}
}

// ConfigResult codes for the configure-node-id response, CiA 305 Table 3.
const (
	ConfigNodeIDOk           byte = 0
	ConfigNodeIDOutOfRange   byte = 1
)

// Slave is the cooperative LSS slave state machine for one node.
type Slave struct {
	Identity Identity

	state         State
	selectMatched [4]bool // which of vendor/product/revision/serial the current selective-switch probe has matched so far

	fastScanField    int
	fastScanArmed    bool

	NodeIDUnconfigured bool
	ActiveNodeID       uint8
	PendingNodeID      uint8

	pending mailbox.AtomicCell[mailbox.Frame]
}

// NewSlave builds an LSS slave starting in the Waiting state.
func NewSlave(identity Identity) *Slave {
	return &Slave{Identity: identity, state: StateWaiting}
}

// State reports the slave's current LSS mode.
func (s *Slave) State() State { return s.state }

// NextTransmit returns the pending LSS reply frame, if any, consuming it.
func (s *Slave) NextTransmit() (mailbox.Frame, bool) {
	return s.pending.Take()
}

func (s *Slave) reply(cmd Command, payload [7]byte) {
	var d [8]byte
	d[0] = byte(cmd)
	copy(d[1:], payload[:])
	s.pending.Store(mailbox.Frame{ID: mailbox.LSSReplyCobID, DLC: 8, Data: d})
}

// Handle processes one inbound LSS request frame addressed to this node (LSS
// requests are always broadcast on ServiceMasterId; filtering by identity
// happens inside the selective-switch and fast-scan services themselves).
func (s *Slave) Handle(f mailbox.Frame) {
	if f.DLC != 8 {
		return
	}
	cmd := Command(f.Data[0])

	switch {
	case cmd == CmdSwitchStateGlobal:
		s.handleSwitchGlobal(f.Data)
	case cmd >= CmdSwitchStateSelectiveVendor && cmd <= CmdSwitchStateSelectiveResult:
		s.handleSwitchSelective(cmd, f.Data)
	case cmd == CmdIdentifyFastscan:
		s.handleFastScan(f.Data)
	case s.state == StateConfiguration && cmd == CmdConfigureNodeID:
		s.handleConfigureNodeID(f.Data)
	case s.state == StateConfiguration && cmd >= CmdInquireVendor && cmd <= CmdInquireNodeID:
		s.handleInquiry(cmd)
	default:
		log.Debugf("[LSS][SLAVE] ignoring command %d in state %d", cmd, s.state)
	}
}

func (s *Slave) handleSwitchGlobal(data [8]byte) {
	switch data[1] {
	case 0:
		s.state = StateWaiting
	case 1:
		s.state = StateConfiguration
	}
	log.Debugf("[LSS][SLAVE] switch global -> state %d", s.state)
}

func (s *Slave) handleSwitchSelective(cmd Command, data [8]byte) {
	value := binary.LittleEndian.Uint32(data[1:5])
	switch cmd {
	case CmdSwitchStateSelectiveVendor:
		s.selectMatched = [4]bool{}
		s.selectMatched[0] = value == s.Identity.VendorID
	case CmdSwitchStateSelectiveProduct:
		s.selectMatched[1] = value == s.Identity.ProductCode
	case CmdSwitchStateSelectiveRevision:
		s.selectMatched[2] = value == s.Identity.Revision
	case CmdSwitchStateSelectiveSerialNb:
		s.selectMatched[3] = value == s.Identity.SerialNumber
		if s.selectMatched[0] && s.selectMatched[1] && s.selectMatched[2] && s.selectMatched[3] {
			s.state = StateConfiguration
			s.reply(CmdSwitchStateSelectiveResult, [7]byte{})
		}
	}
}

func (s *Slave) handleConfigureNodeID(data [8]byte) {
	nodeID := data[1]
	var result [7]byte
	if nodeID == 0 || (nodeID > 127 && nodeID != 0xFF) {
		result[0] = ConfigNodeIDOutOfRange
	} else {
		s.PendingNodeID = nodeID
		s.NodeIDUnconfigured = nodeID == 0xFF
		result[0] = ConfigNodeIDOk
	}
	s.reply(CmdConfigureNodeIDResult, result)
}

func (s *Slave) handleInquiry(cmd Command) {
	var payload [7]byte
	var v uint32
	switch cmd {
	case CmdInquireVendor:
		v = s.Identity.VendorID
	case CmdInquireProduct:
		v = s.Identity.ProductCode
	case CmdInquireRevision:
		v = s.Identity.Revision
	case CmdInquireSerial:
		v = s.Identity.SerialNumber
	case CmdInquireNodeID:
		payload[0] = s.ActiveNodeID
		s.reply(cmd, payload)
		return
	}
	binary.LittleEndian.PutUint32(payload[:4], v)
	s.reply(cmd, payload)
}
