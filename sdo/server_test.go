package sdo

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zencan-go/zencan/internal/crc"
	"github.com/zencan-go/zencan/mailbox"
	"github.com/zencan-go/zencan/od"
)

func newTestTable() *od.Table {
	counter := od.NewSubObject("Counter", od.UInt32, od.AttrSDORW, 4, []byte{1, 2, 3, 4})
	str := od.NewSubObject("Name", od.VisibleString, od.AttrSDORW|od.AttrString, 20, []byte("hello"))
	ro := od.NewSubObject("ReadOnly", od.UInt8, od.AttrSDOR, 1, []byte{9})
	objects := []*od.Object{
		od.NewVariableObject(0x2000, "Counter", counter),
		od.NewVariableObject(0x2001, "Name", str),
		od.NewVariableObject(0x2002, "ReadOnly", ro),
	}
	return od.NewTable(objects)
}

func TestExpeditedDownloadAndUpload(t *testing.T) {
	table := newTestTable()
	s := NewServer(table, 5, 0x605, 0x585)

	var d [8]byte
	d[0] = 0x23 // ccs=1 (download initiate), expedited, size indicated, 0 unused bytes -> 4 bytes data
	binary.LittleEndian.PutUint16(d[1:3], 0x2000)
	binary.LittleEndian.PutUint32(d[4:8], 0xAABBCCDD)
	s.Handle(mailbox.Frame{ID: 0x605, DLC: 8, Data: d})

	resp, ok := s.NextTransmit()
	assert.True(t, ok)
	assert.Equal(t, byte(scsDownloadInitiate<<5), resp.Data[0])

	sub, _ := table.FindSub(0x2000, 0)
	assert.EqualValues(t, 0xAABBCCDD, sub.Uint32())

	var up [8]byte
	up[0] = 0x40
	binary.LittleEndian.PutUint16(up[1:3], 0x2000)
	s.Handle(mailbox.Frame{ID: 0x605, DLC: 8, Data: up})

	resp, ok = s.NextTransmit()
	assert.True(t, ok)
	assert.EqualValues(t, 0xAABBCCDD, binary.LittleEndian.Uint32(resp.Data[4:8]))
}

func TestUploadUnknownIndexAborts(t *testing.T) {
	s := NewServer(newTestTable(), 5, 0x605, 0x585)
	var up [8]byte
	up[0] = 0x40
	binary.LittleEndian.PutUint16(up[1:3], 0x3000)
	s.Handle(mailbox.Frame{ID: 0x605, DLC: 8, Data: up})

	resp, ok := s.NextTransmit()
	assert.True(t, ok)
	assert.Equal(t, byte(0x80), resp.Data[0])
	assert.EqualValues(t, AbortNotExist, binary.LittleEndian.Uint32(resp.Data[4:8]))
}

func TestWriteToReadOnlyAborts(t *testing.T) {
	s := NewServer(newTestTable(), 5, 0x605, 0x585)
	var d [8]byte
	d[0] = 0x2F
	binary.LittleEndian.PutUint16(d[1:3], 0x2002)
	d[4] = 1
	s.Handle(mailbox.Frame{ID: 0x605, DLC: 8, Data: d})

	resp, ok := s.NextTransmit()
	assert.True(t, ok)
	assert.Equal(t, byte(0x80), resp.Data[0])
	assert.EqualValues(t, AbortReadOnly, binary.LittleEndian.Uint32(resp.Data[4:8]))
}

func TestSegmentedUploadRoundTrip(t *testing.T) {
	table := newTestTable()
	s := NewServer(table, 5, 0x605, 0x585)

	var init [8]byte
	init[0] = 0x40
	binary.LittleEndian.PutUint16(init[1:3], 0x2001)
	s.Handle(mailbox.Frame{ID: 0x605, DLC: 8, Data: init})

	resp, ok := s.NextTransmit()
	assert.True(t, ok)
	assert.Equal(t, byte(scsUploadInitiate<<5|0x01), resp.Data[0])
	size := binary.LittleEndian.Uint32(resp.Data[4:8])
	assert.EqualValues(t, 20, size)

	var collected []byte
	toggle := byte(0)
	for {
		var seg [8]byte
		seg[0] = 0x60 | toggle
		s.Handle(mailbox.Frame{ID: 0x605, DLC: 8, Data: seg})
		resp, ok := s.NextTransmit()
		assert.True(t, ok)
		n := 7 - int((resp.Data[0]>>1)&0x07)
		collected = append(collected, resp.Data[1:1+n]...)
		last := resp.Data[0]&0x01 != 0
		toggle ^= 0x10
		if last {
			break
		}
	}
	assert.Equal(t, "hello"+string(make([]byte, 15)), string(collected))
}

func TestSegmentedDownloadToggleMismatchAborts(t *testing.T) {
	table := newTestTable()
	s := NewServer(table, 5, 0x605, 0x585)

	var init [8]byte
	init[0] = 0x21 // download initiate, not expedited, size indicated
	binary.LittleEndian.PutUint16(init[1:3], 0x2001)
	binary.LittleEndian.PutUint32(init[4:8], 3)
	s.Handle(mailbox.Frame{ID: 0x605, DLC: 8, Data: init})
	_, ok := s.NextTransmit()
	assert.True(t, ok)

	var seg [8]byte
	seg[0] = 0x10 | 0x01 // wrong toggle (expected 0), claims last segment
	copy(seg[1:], []byte("abc"))
	s.Handle(mailbox.Frame{ID: 0x605, DLC: 8, Data: seg})

	resp, ok := s.NextTransmit()
	assert.True(t, ok)
	assert.Equal(t, byte(0x80), resp.Data[0])
	assert.EqualValues(t, AbortToggleBit, binary.LittleEndian.Uint32(resp.Data[4:8]))
}

func TestBlockUploadRoundTrip(t *testing.T) {
	value := make([]byte, 20)
	for i := range value {
		value[i] = byte(i + 1)
	}
	sub := od.NewSubObject("Blob", od.OctetString, od.AttrSDOR, 20, value)
	table := od.NewTable([]*od.Object{od.NewVariableObject(0x2100, "Blob", sub)})
	s := NewServer(table, 5, 0x605, 0x585)

	var init [8]byte
	init[0] = ccsBlockUpload<<5 | blockSubInitiate | 0x04 // crc enabled
	binary.LittleEndian.PutUint16(init[1:3], 0x2100)
	s.Handle(mailbox.Frame{ID: 0x605, DLC: 8, Data: init})
	resp, ok := s.NextTransmit()
	assert.True(t, ok)
	assert.Equal(t, byte(scsBlockUpload<<5|blockSubInitiate|0x02), resp.Data[0])
	assert.EqualValues(t, 20, binary.LittleEndian.Uint32(resp.Data[4:8]))

	var start [8]byte
	start[0] = ccsBlockUpload<<5 | blockSubStart
	s.Handle(mailbox.Frame{ID: 0x605, DLC: 8, Data: start})

	var collected []byte
	for {
		resp, ok := s.NextTransmit()
		assert.True(t, ok)
		last := resp.Data[0]&0x80 != 0
		collected = append(collected, resp.Data[1:8]...)
		if last {
			break
		}
		var ack [8]byte
		ack[0] = ccsBlockUpload<<5 | blockSubCRSP
		ack[1] = resp.Data[0] & 0x7F
		ack[2] = MaxBlockSize
		s.Handle(mailbox.Frame{ID: 0x605, DLC: 8, Data: ack})
	}

	var finalAck [8]byte
	finalAck[0] = ccsBlockUpload<<5 | blockSubCRSP
	finalAck[1] = collected[len(collected)-7] // placeholder, not validated strictly
	s.Handle(mailbox.Frame{ID: 0x605, DLC: 8, Data: finalAck})

	endFrame, ok := s.NextTransmit()
	assert.True(t, ok)
	assert.EqualValues(t, scsBlockUpload<<5|blockSubEnd, endFrame.Data[0]&0xE3)

	var expectCRC crc.CRC16
	expectCRC.Block(value)
	gotCRC := crc.CRC16(binary.LittleEndian.Uint16(endFrame.Data[1:3]))
	assert.Equal(t, expectCRC, gotCRC)

	var closeFrame [8]byte
	closeFrame[0] = ccsBlockUpload<<5 | blockSubEnd
	s.Handle(mailbox.Frame{ID: 0x605, DLC: 8, Data: closeFrame})
}

func TestProcessTimesOutStalledSegmentedTransfer(t *testing.T) {
	table := newTestTable()
	s := NewServer(table, 5, 0x605, 0x585)

	var init [8]byte
	init[0] = 0x21
	binary.LittleEndian.PutUint16(init[1:3], 0x2001)
	binary.LittleEndian.PutUint32(init[4:8], 3)
	s.Handle(mailbox.Frame{ID: 0x605, DLC: 8, Data: init})
	_, _ = s.NextTransmit()

	s.Process(DefaultTimeoutUs + 1)

	resp, ok := s.NextTransmit()
	assert.True(t, ok)
	assert.Equal(t, byte(0x80), resp.Data[0])
	assert.EqualValues(t, AbortTimeout, binary.LittleEndian.Uint32(resp.Data[4:8]))
}
