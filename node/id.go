// Package node implements the CANopen node's top-level orchestration: the
// cooperative Process step, the storage command object (0x1010), and the
// node identity type.
package node

import "fmt"

// ID is a CANopen node identity: either Unconfigured (the LSS "node not yet
// addressed" sentinel, wire value 255/0xFF) or a Configured value in 1..127.
// The teacher represents this as a bare validated uint8 scattered across
// canopen.go/sdo_server.go call sites; grounded on
// original_source zencan_common::NodeId, this makes validity a type
// invariant instead of a repeated range check.
type ID struct {
	value   uint8
	present bool
}

// Unconfigured is the node identity before LSS assigns one.
var Unconfigured = ID{}

// NewID validates v and returns a Configured ID, or an error if v is outside
// 1..127 (0 and 128..254 are reserved, 255 means Unconfigured).
func NewID(v uint8) (ID, error) {
	if v == 0 || v > 127 {
		return ID{}, fmt.Errorf("node: invalid node id %d, must be in 1..127", v)
	}
	return ID{value: v, present: true}, nil
}

// IsConfigured reports whether the ID holds an assigned value.
func (id ID) IsConfigured() bool { return id.present }

// Value returns the raw node-id byte. Callers must check IsConfigured first;
// Value on an Unconfigured ID returns 0.
func (id ID) Value() uint8 {
	if !id.present {
		return 0
	}
	return id.value
}

func (id ID) String() string {
	if !id.present {
		return "unconfigured"
	}
	return fmt.Sprintf("%d", id.value)
}
