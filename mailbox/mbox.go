package mailbox

// Well-known function-code COB-IDs (CiA 301 §7.3.3 predefined connection set).
const (
	NMTCmdCobID     uint32 = 0x000
	SyncCobID       uint32 = 0x080
	LSSRequestCobID uint32 = 0x7E5
	LSSReplyCobID   uint32 = 0x7E4
)

// TxQueueCapacity bounds the number of pending non-PDO, non-SDO outbound
// frames (bootup and heartbeat frames, LSS replies) buffered between Process
// calls.
const TxQueueCapacity = 8

// NodeMbox is the node's single inbound/outbound message surface. All
// incoming frames are classified by COB-ID at StoreMessage time into one of
// a small number of single-slot cells (NMT command, SYNC, LSS request, one
// per configured RPDO, the SDO request); nothing here blocks or allocates.
//
// Grounded on original_source/zencan-node/src/node_mbox.rs's store_message
// dispatch and next_transmit_message priority order.
type NodeMbox struct {
	SDORxCobID uint32
	SDOTxCobID uint32

	nmt    AtomicCell[Frame]
	sync   AtomicCell[Frame]
	lss    AtomicCell[Frame]
	sdoReq AtomicCell[Frame]

	rpdoCobIDs []uint32
	rpdo       []AtomicCell[Frame]

	tpdoCobIDs []uint32
	tpdo       []AtomicCell[Frame]

	txQueue *PriorityQueue[Frame]

	// SDONextTransmit is consulted last, after tpdo buffers and txQueue, so
	// the SDO server's own pending response is the lowest-priority source —
	// matching node_mbox.rs wrapping sdo_comms.next_transmit_message() with
	// the configured sdo_tx_cob_id.
	SDONextTransmit func() (Frame, bool)
}

// NewNodeMbox builds a mailbox configured for the given SDO COB-IDs and the
// number of RPDO/TPDO slots the node exposes.
func NewNodeMbox(sdoRxCobID, sdoTxCobID uint32, numRPDO, numTPDO int) *NodeMbox {
	return &NodeMbox{
		SDORxCobID: sdoRxCobID,
		SDOTxCobID: sdoTxCobID,
		rpdoCobIDs: make([]uint32, numRPDO),
		rpdo:       make([]AtomicCell[Frame], numRPDO),
		tpdoCobIDs: make([]uint32, numTPDO),
		tpdo:       make([]AtomicCell[Frame], numTPDO),
		txQueue:    NewPriorityQueue[Frame](TxQueueCapacity),
	}
}

// SetRPDOCobID configures the COB-ID that slot i of the RPDO array listens on.
func (m *NodeMbox) SetRPDOCobID(slot int, cobID uint32) {
	if slot >= 0 && slot < len(m.rpdoCobIDs) {
		m.rpdoCobIDs[slot] = cobID
	}
}

// StoreMessage classifies an inbound frame by COB-ID and places it in the
// matching slot, overwriting any previous unconsumed value there (the
// mailbox only ever cares about the latest frame of each kind). Returns
// false if the COB-ID matches nothing this node listens for.
func (m *NodeMbox) StoreMessage(f Frame) bool {
	switch {
	case f.ID == NMTCmdCobID:
		m.nmt.Store(f)
		return true
	case f.ID == SyncCobID:
		m.sync.Store(f)
		return true
	case f.ID == LSSRequestCobID:
		m.lss.Store(f)
		return true
	case f.ID == m.SDORxCobID:
		m.sdoReq.Store(f)
		return true
	}
	for i, cobID := range m.rpdoCobIDs {
		if cobID != 0 && f.ID == cobID {
			m.rpdo[i].Store(f)
			return true
		}
	}
	return false
}

// TakeNMT consumes the pending NMT command frame, if any.
func (m *NodeMbox) TakeNMT() (Frame, bool) { return m.nmt.Take() }

// TakeSync consumes the pending SYNC frame, if any.
func (m *NodeMbox) TakeSync() (Frame, bool) { return m.sync.Take() }

// TakeLSS consumes the pending LSS request frame, if any.
func (m *NodeMbox) TakeLSS() (Frame, bool) { return m.lss.Take() }

// TakeSDORequest consumes the pending SDO request frame, if any.
func (m *NodeMbox) TakeSDORequest() (Frame, bool) { return m.sdoReq.Take() }

// TakeRPDO consumes the pending frame for RPDO slot i, if any.
func (m *NodeMbox) TakeRPDO(slot int) (Frame, bool) {
	if slot < 0 || slot >= len(m.rpdo) {
		return Frame{}, false
	}
	return m.rpdo[slot].Take()
}

// QueueTransmit enqueues a non-PDO, non-SDO frame (bootup, heartbeat, LSS
// reply) for transmission at the given CAN arbitration priority (its COB-ID). Returns
// false if the queue is full.
func (m *NodeMbox) QueueTransmit(prio uint32, f Frame) bool {
	return m.txQueue.Push(prio, f)
}

// SetTPDOBuffer latches the next frame to send for TPDO slot i, overwriting
// whatever was previously buffered there.
func (m *NodeMbox) SetTPDOBuffer(slot int, f Frame) {
	if slot >= 0 && slot < len(m.tpdo) {
		m.tpdo[slot].Store(f)
	}
}

// NextTransmitMessage returns the next frame to place on the bus, in
// priority order: buffered TPDOs (in declared slot order), then the
// priority queue (lowest COB-ID first), then the SDO server's own pending
// response. Matches node_mbox.rs's next_transmit_message.
func (m *NodeMbox) NextTransmitMessage() (Frame, bool) {
	for i := range m.tpdo {
		if f, ok := m.tpdo[i].Take(); ok {
			return f, true
		}
	}
	if f, ok := m.txQueue.Pop(); ok {
		return f, true
	}
	if m.SDONextTransmit != nil {
		if f, ok := m.SDONextTransmit(); ok {
			return f, true
		}
	}
	return Frame{}, false
}
