package pdo

import (
	log "github.com/sirupsen/logrus"

	"github.com/zencan-go/zencan/mailbox"
	"github.com/zencan-go/zencan/od"
)

// TPDO is one transmit PDO: a mapping, a COB-ID, and a transmission-type
// driven trigger. Event-driven types (254/255) fire when the node's global
// trigger reports that some event flag was drained this tick and one of this
// PDO's mapped slots is among them. Type 0 fires on a SYNC tick when a mapped
// slot's flag was drained on that same tick; types 1..240 fire every Nth
// SYNC.
type TPDO struct {
	CobID            uint32
	TransmissionType uint8
	Entries          []MappedEntry
	InhibitTimeUs    uint32
	EventTimeUs      uint32

	inhibitTimer uint32
	eventTimer   uint32
	syncCounter  uint8
}

// NewTPDO builds a TPDO from resolved mapping entries.
func NewTPDO(cobID uint32, transmissionType uint8, entries []MappedEntry, inhibitUs, eventUs uint32) *TPDO {
	return &TPDO{CobID: cobID, TransmissionType: transmissionType, Entries: entries, InhibitTimeUs: inhibitUs, EventTimeUs: eventUs}
}

// Process ages the inhibit/event timers and decides whether to emit this
// tick, given the node's global event-flag toggle and whether a SYNC frame
// arrived this tick. When it decides to send, it packs the mapped values and
// stores the frame in the mailbox's TPDO slot.
//
// Grounded on node.rs's TPDO loop: event-driven types gate on
// (global_trigger && any mapped flag set), synchronous types gate on
// (sync && sync_update()).
func (t *TPDO) Process(mbox *mailbox.NodeMbox, slot int, elapsedUs uint32, syncReceived bool, drainedFlags *[od.FlagsPDOSize]uint64, globalTrigger bool) {
	if t.inhibitTimer < t.InhibitTimeUs {
		t.inhibitTimer += elapsedUs
	}
	t.eventTimer += elapsedUs

	send := false
	switch {
	case t.TransmissionType == TransmissionEventDriven || t.TransmissionType == TransmissionEventDriven2:
		eventDue := t.EventTimeUs != 0 && t.eventTimer >= t.EventTimeUs
		flagged := globalTrigger && t.anyFlagSet(drainedFlags)
		send = (eventDue || flagged) && t.inhibitTimer >= t.InhibitTimeUs
	case t.TransmissionType == TransmissionSyncAcyclic:
		send = syncReceived && globalTrigger && t.anyFlagSet(drainedFlags)
	default: // 1..240: every Nth sync
		if syncReceived {
			t.syncCounter++
			if t.syncCounter >= t.TransmissionType {
				t.syncCounter = 0
				send = true
			}
		}
	}

	if !send {
		return
	}
	t.inhibitTimer = 0
	t.eventTimer = 0
	data := Pack(t.Entries)
	mbox.SetTPDOBuffer(slot, mailbox.Frame{ID: t.CobID, DLC: uint8(len(data)), Data: data})
	log.Debugf("[PDO][TPDO] sent x%x", t.CobID)
}

func (t *TPDO) anyFlagSet(drained *[od.FlagsPDOSize]uint64) bool {
	if drained == nil {
		return false
	}
	for _, e := range t.Entries {
		if od.Test(drained, e.EventSlot) {
			return true
		}
	}
	return false
}
