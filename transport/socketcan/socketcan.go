// Package socketcan adapts a Linux SocketCAN interface to a node.Node: it
// receives CAN frames and delivers them into the node's mailbox, and drains
// the mailbox's outbound queue onto the bus.
//
// Grounded on the teacher's socketcan.go (SocketcanBus wrapping
// github.com/brutella/can), generalized from the teacher's Bus/FrameHandler
// interfaces to feed a mailbox.NodeMbox directly instead of a callback.
package socketcan

import (
	"github.com/brutella/can"

	"github.com/zencan-go/zencan/mailbox"
)

// Deliverer is the subset of node.Node used by ListenTo, kept narrow so this
// package doesn't need to import node.
type Deliverer interface {
	Deliver(mailbox.Frame)
}

// Bus wraps a brutella/can SocketCAN bus, translating between its Frame type
// and mailbox.Frame.
type Bus struct {
	bus     *can.Bus
	onFrame func(mailbox.Frame)
}

// Open binds to the named SocketCAN interface (e.g. "can0", "vcan0").
func Open(name string) (*Bus, error) {
	b, err := can.NewBusForInterfaceWithName(name)
	if err != nil {
		return nil, err
	}
	return &Bus{bus: b}, nil
}

// Handle satisfies brutella/can's frame-handler interface.
func (b *Bus) Handle(frame can.Frame) {
	if b.onFrame != nil {
		b.onFrame(toMailboxFrame(frame))
	}
}

// ListenTo wires inbound bus frames straight into dest's mailbox and starts
// the read loop in a background goroutine, matching the teacher's
// SocketcanBus.Connect starting bus.ConnectAndPublish() in its own goroutine.
// This is the one place in the module that spawns a goroutine: the node's
// own Process/Handle surface stays single-threaded and cooperative, fed by
// frames this goroutine hands off through the mutex-guarded mailbox.
func (b *Bus) ListenTo(dest Deliverer) {
	b.onFrame = dest.Deliver
	b.bus.Subscribe(b)
	go b.bus.ConnectAndPublish()
}

// Send transmits one frame on the bus.
func (b *Bus) Send(f mailbox.Frame) error {
	return b.bus.Publish(can.Frame{ID: f.ID, Length: f.DLC, Data: f.Data})
}

// DrainAndSend pulls every pending outbound frame from src's mailbox and
// writes it to the bus, stopping at the first error or once the mailbox has
// nothing left to send.
func (b *Bus) DrainAndSend(src *mailbox.NodeMbox) error {
	for {
		f, ok := src.NextTransmitMessage()
		if !ok {
			return nil
		}
		if err := b.Send(f); err != nil {
			return err
		}
	}
}

func toMailboxFrame(f can.Frame) mailbox.Frame {
	return mailbox.Frame{
		ID:       f.ID,
		Extended: f.ID > 0x7FF,
		DLC:      f.Length,
		Data:     f.Data,
	}
}
