// Package nmt implements the CANopen Network Management slave state machine:
// Bootup, Stopped, Operational, Pre-Operational, command parsing, and the
// auto-start-once latch, driven by a single cooperative Process call per
// node tick.
//
// Grounded on the teacher's pkg/nmt/nmt.go (state/command constants, the
// NMT command byte layout and processCommand dispatch) and on
// original_source/zencan-node/src/node.rs's Node::process (Bootup is
// transient and resolves to PreOperational before the first boot_up() call,
// auto-start is consumed exactly once) — the teacher's own NMT object has no
// auto-start concept at all.
package nmt

import log "github.com/sirupsen/logrus"

// State is the CANopen NMT slave state.
type State uint8

const (
	StateInitializing   State = 0
	StateStopped        State = 4
	StateOperational     State = 5
	StatePreOperational  State = 127
	StateBootup          State = 0 // wire value of the bootup message is 0x00, same byte as Initializing
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "STOPPED"
	case StateOperational:
		return "OPERATIONAL"
	case StatePreOperational:
		return "PRE-OPERATIONAL"
	default:
		return "INITIALIZING"
	}
}

// Command is an NMT service command, byte 0 of a two-byte NMT message.
type Command uint8

const (
	CommandEnterOperational    Command = 1
	CommandEnterStopped        Command = 2
	CommandEnterPreOperational Command = 128
	CommandResetNode           Command = 129
	CommandResetCommunication  Command = 130
)

// ResetKind reports which kind of reset, if any, a processed command implies.
type ResetKind uint8

const (
	ResetNone ResetKind = iota
	ResetApp
	ResetCommunication
)

// NMT is the slave-side NMT state machine for a single node.
type NMT struct {
	NodeID       uint8
	state        State
	autoStart    bool
	autoConsumed bool
	booted       bool
}

// New creates an NMT state machine. If autoStart is true, the node
// transitions straight to Operational after its first Bootup instead of
// waiting in Pre-Operational for an explicit Start command — consumed
// exactly once, per node.rs.
func New(nodeID uint8, autoStart bool) *NMT {
	return &NMT{NodeID: nodeID, state: StateInitializing, autoStart: autoStart}
}

// State reports the current NMT state.
func (n *NMT) State() State { return n.state }

// Boot transitions Initializing -> PreOperational (or straight to
// Operational if auto-start hasn't been consumed yet), and reports whether a
// Bootup message should be emitted this call. Matches node.rs's ordering:
// the state is advanced before boot_up() is invoked.
func (n *NMT) Boot() (shouldEmitBootup bool) {
	if n.booted {
		return false
	}
	n.booted = true
	if n.autoStart && !n.autoConsumed {
		n.autoConsumed = true
		n.state = StateOperational
	} else {
		n.state = StatePreOperational
	}
	log.Debugf("[NMT] bootup -> %s", n.state)
	return true
}

// HandleCommand applies an NMT command addressed to this node (or
// broadcast), returning the reset kind implied, if any.
func (n *NMT) HandleCommand(cmd Command) ResetKind {
	prev := n.state
	switch cmd {
	case CommandEnterOperational:
		n.state = StateOperational
	case CommandEnterStopped:
		n.state = StateStopped
	case CommandEnterPreOperational:
		n.state = StatePreOperational
	case CommandResetNode:
		n.reset()
		return ResetApp
	case CommandResetCommunication:
		n.reset()
		return ResetCommunication
	default:
		log.Warnf("[NMT] unknown command %#x", uint8(cmd))
		return ResetNone
	}
	if prev != n.state {
		log.Debugf("[NMT] %s -> %s", prev, n.state)
	}
	return ResetNone
}

func (n *NMT) reset() {
	n.state = StateInitializing
	n.booted = false
}

// ParseCommand decodes a 2-byte NMT service request, returning ok=false if
// the frame isn't addressed to this node (node id 0 means broadcast).
func (n *NMT) ParseCommand(data []byte) (cmd Command, ok bool) {
	if len(data) != 2 {
		return 0, false
	}
	target := data[1]
	if target != 0 && target != n.NodeID {
		return 0, false
	}
	return Command(data[0]), true
}
