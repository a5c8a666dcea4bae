package node

import (
	log "github.com/sirupsen/logrus"

	"github.com/zencan-go/zencan/lss"
	"github.com/zencan-go/zencan/mailbox"
	"github.com/zencan-go/zencan/nmt"
	"github.com/zencan-go/zencan/od"
	"github.com/zencan-go/zencan/pdo"
	"github.com/zencan-go/zencan/sdo"
)

// SDOBaseRx/SDOBaseTx are the predefined connection set base COB-IDs (CiA
// 301 §7.3.3): actual COB-IDs are these plus the node ID.
const (
	SDOBaseRx     uint32 = 0x600
	SDOBaseTx     uint32 = 0x580
	HeartbeatBase uint32 = 0x700
)

// Node orchestrates one CANopen device: object dictionary, SDO server, PDO
// engine, NMT lifecycle, LSS slave, and the storage command object, all
// driven by a single cooperative Process call per tick.
//
// Grounded step-for-step on original_source/zencan-node/src/node.rs's
// Node::process (reassign node ID -> Bootup/PreOperational -> SDO -> NMT
// command -> LSS -> heartbeat -> TPDO/RPDO).
type Node struct {
	Table *od.Table
	Mbox  *mailbox.NodeMbox
	NMT   *nmt.NMT
	SDO   *sdo.Server
	LSS   *lss.Slave

	TPDOs []*pdo.TPDO
	RPDOs []*pdo.RPDO

	EventFlags *od.EventFlags
	Storage    *StorageContext

	HeartbeatProducerTimeUs uint32
	heartbeatTimer          uint32
	heartbeatToggle         bool

	globalTrigger bool

	id ID

	// StateChangeCallback, if set, is invoked with the new NMT state whenever
	// an NMT command changes it. Matches the teacher's MainCallback field
	// (node.go) — a plain settable func, not a registration list.
	StateChangeCallback func(nmt.State)
}

// New builds a Node. id may be Unconfigured, in which case the LSS slave is
// expected to assign one before the SDO server or PDOs become reachable.
// table must already be fully assembled (including any 0x1010 storage
// command object built over storage) since it is a static array, never
// resized after construction. tpdos/rpdos are the PDOs this node exposes,
// already resolved against table by the caller.
func New(id ID, table *od.Table, autoStart bool, identity lss.Identity, storage *StorageContext, tpdos []*pdo.TPDO, rpdos []*pdo.RPDO) *Node {
	if storage == nil {
		storage = &StorageContext{}
	}
	n := &Node{
		Table:      table,
		EventFlags: &od.EventFlags{},
		Storage:    storage,
		TPDOs:      tpdos,
		RPDOs:      rpdos,
	}
	n.id = id
	n.NMT = nmt.New(id.Value(), autoStart)
	n.LSS = lss.NewSlave(identity)
	n.LSS.NodeIDUnconfigured = !id.IsConfigured()
	n.LSS.ActiveNodeID = id.Value()

	rxCobID, txCobID := sdoCobIDs(id)
	n.SDO = sdo.NewServer(table, id.Value(), rxCobID, txCobID)
	n.Mbox = mailbox.NewNodeMbox(rxCobID, txCobID, len(rpdos), len(tpdos))
	n.Mbox.SDONextTransmit = n.SDO.NextTransmit
	for i, r := range rpdos {
		n.Mbox.SetRPDOCobID(i, r.CobID)
	}
	return n
}

func sdoCobIDs(id ID) (rx, tx uint32) {
	if !id.IsConfigured() {
		return 0, 0
	}
	return SDOBaseRx + uint32(id.Value()), SDOBaseTx + uint32(id.Value())
}

// ID reports the node's current identity.
func (n *Node) ID() ID { return n.id }

// Deliver routes an inbound CAN frame into the mailbox for the next Process
// call to consume; it never blocks or allocates beyond the mailbox's
// pre-sized slots.
func (n *Node) Deliver(f mailbox.Frame) {
	n.Mbox.StoreMessage(f)
}

// Process advances the node state machine by elapsedUs of wall-clock time.
// It is the single driving call of the whole node: NMT, SDO, LSS, and PDO
// all step once per call, in a fixed order, none of it blocking.
func (n *Node) Process(elapsedUs uint32) {
	n.reassignNodeID()

	if n.NMT.Boot() {
		n.emitBootup()
	}

	if f, ok := n.Mbox.TakeSDORequest(); ok {
		n.SDO.Handle(f)
	}
	n.SDO.Process(elapsedUs)

	if f, ok := n.Mbox.TakeNMT(); ok {
		if cmd, ok := n.NMT.ParseCommand(f.Data[:f.DLC]); ok {
			prev := n.NMT.State()
			switch n.NMT.HandleCommand(cmd) {
			case nmt.ResetApp, nmt.ResetCommunication:
				n.heartbeatTimer = 0
				n.heartbeatToggle = false
			}
			n.notifyStateChange(prev)
		}
	}

	if f, ok := n.Mbox.TakeLSS(); ok {
		n.LSS.Handle(f)
	}
	if f, ok := n.LSS.NextTransmit(); ok {
		n.Mbox.QueueTransmit(f.ID, f)
	}

	n.processHeartbeat(elapsedUs)

	syncReceived := false
	if _, ok := n.Mbox.TakeSync(); ok {
		syncReceived = true
	}

	if n.NMT.State() == nmt.StateOperational {
		drained := n.EventFlags.Swap()
		n.globalTrigger = false
		for _, w := range drained {
			if w != 0 {
				n.globalTrigger = true
				break
			}
		}
		for i, t := range n.TPDOs {
			t.Process(n.Mbox, i, elapsedUs, syncReceived, drained, n.globalTrigger)
		}
		od.ClearDrained(drained)
		for i, r := range n.RPDOs {
			if f, ok := n.Mbox.TakeRPDO(i); ok {
				r.Receive(f)
			}
			r.Process(syncReceived)
		}
	}
}

// reassignNodeID applies a node ID the LSS slave has just accepted,
// re-wiring the SDO server and mailbox's COB-IDs to match. Matches node.rs's
// step of checking for a pending LSS-assigned node ID before anything else.
func (n *Node) reassignNodeID() {
	if n.LSS.PendingNodeID == 0 || n.LSS.PendingNodeID == n.id.Value() {
		return
	}
	newID, err := NewID(n.LSS.PendingNodeID)
	if err != nil {
		log.Warnf("[NODE] rejecting LSS-assigned node id: %v", err)
		n.LSS.PendingNodeID = 0
		return
	}
	n.id = newID
	n.LSS.ActiveNodeID = newID.Value()
	n.LSS.NodeIDUnconfigured = false
	n.LSS.PendingNodeID = 0
	n.NMT.NodeID = newID.Value()
	n.SDO.NodeID = newID.Value()
	n.SDO.RxCobID, n.SDO.TxCobID = sdoCobIDs(newID)
	n.Mbox.SDORxCobID, n.Mbox.SDOTxCobID = n.SDO.RxCobID, n.SDO.TxCobID
	log.Infof("[NODE] node id configured to %d", newID.Value())
}

func (n *Node) notifyStateChange(prev nmt.State) {
	if prev == n.NMT.State() || n.StateChangeCallback == nil {
		return
	}
	n.StateChangeCallback(n.NMT.State())
}

// emitBootup queues the Bootup heartbeat frame (state byte 0x00) onto the
// mailbox's priority queue, at the node's heartbeat COB-ID priority.
func (n *Node) emitBootup() {
	cobID := HeartbeatBase + uint32(n.id.Value())
	var d [8]byte
	d[0] = 0
	n.Mbox.QueueTransmit(cobID, mailbox.Frame{ID: cobID, DLC: 1, Data: d})
}

// processHeartbeat ages the heartbeat timer and emits a heartbeat frame when
// due, resetting the timer to exactly zero rather than subtracting the
// period repeatedly — a stalled Process loop catches up with one heartbeat
// on resumption instead of bursting several, matching node.rs's producer.
func (n *Node) processHeartbeat(elapsedUs uint32) {
	if n.HeartbeatProducerTimeUs == 0 || !n.id.IsConfigured() {
		return
	}
	n.heartbeatTimer += elapsedUs
	if n.heartbeatTimer < n.HeartbeatProducerTimeUs {
		return
	}
	n.heartbeatTimer = 0
	n.sendHeartbeat()
}

// sendHeartbeat emits the producer heartbeat. The toggle bit (bit 4 of the
// state byte) flips on every send — the Rust original this spec was
// distilled from does this in Node::send_heartbeat, even though it is not
// load-bearing for a conformant consumer (see DESIGN.md's open-question
// decision).
func (n *Node) sendHeartbeat() {
	cobID := HeartbeatBase + uint32(n.id.Value())
	var d [8]byte
	state := byte(n.NMT.State())
	if n.heartbeatToggle {
		state |= 0x10
	}
	n.heartbeatToggle = !n.heartbeatToggle
	d[0] = state
	n.Mbox.QueueTransmit(cobID, mailbox.Frame{ID: cobID, DLC: 1, Data: d})
}
