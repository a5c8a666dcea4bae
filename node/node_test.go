package node

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zencan-go/zencan/lss"
	"github.com/zencan-go/zencan/mailbox"
	"github.com/zencan-go/zencan/nmt"
	"github.com/zencan-go/zencan/od"
	"github.com/zencan-go/zencan/pdo"
)

func newTestNode(t *testing.T, autoStart bool) *Node {
	t.Helper()
	id, err := NewID(5)
	assert.NoError(t, err)

	valueSub := od.NewSubObject("Value", od.UInt16, od.AttrSDORW|od.AttrTPDO|od.AttrRPDO, 2, nil)
	table := od.NewTable([]*od.Object{od.NewVariableObject(0x6001, "Value", valueSub)})

	entries, byteLen, errCode := pdo.Mapping(table, []uint32{0x60010010})
	assert.NoError(t, errCode)
	assert.Equal(t, 2, byteLen)

	tpdo := pdo.NewTPDO(0x185, 1, entries, 0, 0)
	return New(id, table, autoStart, lss.Identity{}, nil, []*pdo.TPDO{tpdo}, nil)
}

func nmtCommandFrame(cmd nmt.Command, target uint8) mailbox.Frame {
	var d [8]byte
	d[0] = byte(cmd)
	d[1] = target
	return mailbox.Frame{ID: mailbox.NMTCmdCobID, DLC: 2, Data: d}
}

func TestNodeBootsToPreOperationalWithoutAutoStart(t *testing.T) {
	n := newTestNode(t, false)

	n.Process(0)
	assert.Equal(t, nmt.StatePreOperational, n.NMT.State())

	f, ok := n.Mbox.NextTransmitMessage()
	assert.True(t, ok, "bootup message expected")
	assert.EqualValues(t, HeartbeatBase+5, f.ID)
	assert.Equal(t, byte(0), f.Data[0])
}

func TestNodeBootsToOperationalWithAutoStart(t *testing.T) {
	n := newTestNode(t, true)
	n.Process(0)
	assert.Equal(t, nmt.StateOperational, n.NMT.State())
}

func TestNodeAppliesAddressedNMTCommand(t *testing.T) {
	n := newTestNode(t, false)
	n.Process(0)
	_, _ = n.Mbox.NextTransmitMessage() // drain bootup

	n.Deliver(nmtCommandFrame(nmt.CommandEnterOperational, 5))
	n.Process(1000)
	assert.Equal(t, nmt.StateOperational, n.NMT.State())
}

func TestNodeIgnoresNMTCommandAddressedToOtherNode(t *testing.T) {
	n := newTestNode(t, false)
	n.Process(0)
	_, _ = n.Mbox.NextTransmitMessage()

	n.Deliver(nmtCommandFrame(nmt.CommandEnterOperational, 9))
	n.Process(1000)
	assert.Equal(t, nmt.StatePreOperational, n.NMT.State())
}

func TestNodeHeartbeatTogglesEachSend(t *testing.T) {
	n := newTestNode(t, true)
	n.HeartbeatProducerTimeUs = 1000
	n.Process(0)
	_, _ = n.Mbox.NextTransmitMessage() // drain bootup

	n.Process(1000)
	f1, ok := n.Mbox.NextTransmitMessage()
	assert.True(t, ok)

	n.Process(1000)
	f2, ok := n.Mbox.NextTransmitMessage()
	assert.True(t, ok)

	assert.NotEqual(t, f1.Data[0]&0x10, f2.Data[0]&0x10, "toggle bit flips on each heartbeat send")
	assert.EqualValues(t, nmt.StateOperational, f1.Data[0]&^0x10)
}

func TestNodeTPDOFiresOnceOperational(t *testing.T) {
	n := newTestNode(t, true)
	n.Process(0)
	_, _ = n.Mbox.NextTransmitMessage() // drain bootup

	n.Deliver(mailbox.Frame{ID: mailbox.SyncCobID, DLC: 0})
	n.Process(1000)

	f, ok := n.Mbox.NextTransmitMessage()
	assert.True(t, ok)
	assert.EqualValues(t, 0x185, f.ID)
}

func TestNodeReassignsIDFromLSS(t *testing.T) {
	n := newTestNode(t, false)
	n.Process(0)
	_, _ = n.Mbox.NextTransmitMessage()

	n.LSS.PendingNodeID = 42
	n.Process(0)

	assert.EqualValues(t, 42, n.ID().Value())
	assert.EqualValues(t, 42, n.NMT.NodeID)
	assert.EqualValues(t, SDOBaseRx+42, n.SDO.RxCobID)
	assert.EqualValues(t, SDOBaseRx+42, n.Mbox.SDORxCobID)
}

func TestNodeStorageCommandObjectWiredIntoTable(t *testing.T) {
	storage := &StorageContext{}
	storage.SetSupported(true)
	storeObj := NewStorageCommandObject(storage)
	table := od.NewTable([]*od.Object{storeObj})

	id, err := NewID(10)
	assert.NoError(t, err)
	n := New(id, table, false, lss.Identity{}, storage, nil, nil)

	sub1, errCode := n.Table.FindSub(od.IndexStoreParameters, 1)
	assert.Equal(t, od.ErrOK, errCode)

	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, SaveCmd)
	assert.Equal(t, od.ErrOK, sub1.WriteFrom(data))
	assert.True(t, n.Storage.StoreRequested())
}
