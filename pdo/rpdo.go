package pdo

import (
	"github.com/zencan-go/zencan/mailbox"
)

// RPDO is one receive PDO: a mapping and a COB-ID, applying the most
// recently received frame to its mapped sub-objects once per Process call.
type RPDO struct {
	CobID       uint32
	Entries     []MappedEntry
	Synchronous bool

	pending     mailbox.Frame
	hasPending  bool
}

// NewRPDO builds an RPDO from resolved mapping entries.
func NewRPDO(cobID uint32, entries []MappedEntry, synchronous bool) *RPDO {
	return &RPDO{CobID: cobID, Entries: entries, Synchronous: synchronous}
}

// Receive latches an inbound frame for this RPDO's COB-ID; asynchronous
// RPDOs apply immediately, synchronous ones wait for the next SYNC.
func (r *RPDO) Receive(f mailbox.Frame) {
	r.pending = f
	r.hasPending = true
	if !r.Synchronous {
		r.apply()
	}
}

// Process applies a pending synchronous RPDO on SYNC reception; asynchronous
// RPDOs are already applied by Receive and this is a no-op for them.
func (r *RPDO) Process(syncReceived bool) {
	if r.Synchronous && syncReceived && r.hasPending {
		r.apply()
	}
}

func (r *RPDO) apply() {
	Unpack(r.Entries, r.pending.Data)
	r.hasPending = false
}
