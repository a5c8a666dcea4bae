package sdo

import (
	"encoding/binary"

	log "github.com/sirupsen/logrus"

	"github.com/zencan-go/zencan/internal/crc"
	"github.com/zencan-go/zencan/mailbox"
	"github.com/zencan-go/zencan/od"
)

// Server is a cooperative SDO server state machine for one node: a single
// Handle call per inbound request, a single Process call per tick to age
// timeouts, no goroutines or blocking waits.
type Server struct {
	Table  *od.Table
	NodeID uint8
	RxCobID uint32
	TxCobID uint32

	st     state
	index  uint16
	sub    uint8
	subObj *od.SubObject

	toggle          byte
	buf             []byte
	bufOffset       int
	sizeIndicated   uint32
	sizeTransferred uint32

	timeoutTimerUs uint32

	blockCRCEnabled bool
	blockSize       byte
	blockSeqno      byte
	blockCRC        crc.CRC16
	blockSizeIndicated uint32

	pending mailbox.AtomicCell[mailbox.Frame]
}

// NewServer builds an SDO server bound to table, listening on the given
// client->server COB-ID and replying on server->client, matching the 0x600 +
// nodeID / 0x580 + nodeID predefined connection set when nodeID is
// Configured.
func NewServer(table *od.Table, nodeID uint8, rxCobID, txCobID uint32) *Server {
	return &Server{Table: table, NodeID: nodeID, RxCobID: rxCobID, TxCobID: txCobID, st: stateIdle}
}

// NextTransmit satisfies mailbox.NodeMbox.SDONextTransmit: it returns the
// server's pending response frame, if any, consuming it.
func (s *Server) NextTransmit() (mailbox.Frame, bool) {
	return s.pending.Take()
}

func (s *Server) reply(cmd byte, index uint16, sub uint8, data [4]byte) {
	var d [8]byte
	d[0] = cmd
	binary.LittleEndian.PutUint16(d[1:3], index)
	d[3] = sub
	copy(d[4:8], data[:])
	s.pending.Store(mailbox.Frame{ID: s.TxCobID, DLC: 8, Data: d})
}

func (s *Server) abort(index uint16, sub uint8, code AbortCode) {
	s.st = stateIdle
	var d [8]byte
	d[0] = scsAbort
	binary.LittleEndian.PutUint16(d[1:3], index)
	d[3] = sub
	binary.LittleEndian.PutUint32(d[4:8], uint32(code))
	s.pending.Store(mailbox.Frame{ID: s.TxCobID, DLC: 8, Data: d})
	log.Warnf("[SDO][SERVER] abort %x:%x -> %v", index, sub, code)
}

// Handle processes one inbound SDO request frame.
func (s *Server) Handle(f mailbox.Frame) {
	if f.DLC != 8 {
		return
	}
	data := f.Data
	cmd := data[0]

	if cmd == ccsAbort {
		log.Debugf("[SDO][SERVER] client aborted transfer")
		s.st = stateIdle
		return
	}

	switch s.st {
	case stateIdle:
		s.handleInitiate(data)
	case stateDownloadSegment:
		s.handleDownloadSegment(data)
	case stateUploadSegment:
		s.handleUploadSegment(data)
	case stateDownloadBlockSubblock:
		s.handleBlockDownloadSegment(data)
	case stateDownloadBlockEnd:
		s.handleBlockDownloadEnd(data)
	case stateUploadBlockInitiate, stateUploadBlockEnd:
		s.handleBlockUploadSubStart(data)
	case stateUploadBlockEndCRSP:
		s.st = stateIdle
	default:
		s.abort(s.index, s.sub, AbortCommand)
	}
}

func (s *Server) handleInitiate(data [8]byte) {
	ccs := data[0] >> 5
	switch {
	case data[0]&0xE0 == ccsDownloadInitiate<<5:
		s.handleDownloadInitiate(data)
	case data[0]&0xE0 == ccsUploadInitiate<<5:
		s.handleUploadInitiate(data)
	case data[0]&0xE3 == ccsBlockDownload<<5|blockSubInitiate:
		s.handleBlockDownloadInitiate(data)
	case data[0]&0xE3 == ccsBlockUpload<<5|blockSubStart || data[0]&0xE0 == ccsBlockUpload<<5:
		s.handleBlockUploadInitiate(data)
	default:
		_ = ccs
		s.abort(0, 0, AbortCommand)
	}
}

func (s *Server) lookup(index uint16, sub uint8) (*od.SubObject, AbortCode) {
	subObj, err := s.Table.FindSub(index, sub)
	if err == od.ErrIdxNotExist {
		return nil, AbortNotExist
	}
	if err == od.ErrSubNotExist {
		return nil, AbortSubUnknown
	}
	return subObj, AbortNone
}

func (s *Server) handleDownloadInitiate(data [8]byte) {
	index := binary.LittleEndian.Uint16(data[1:3])
	sub := data[3]
	subObj, code := s.lookup(index, sub)
	if code != AbortNone {
		s.abort(index, sub, code)
		return
	}
	expedited := data[0]&0x02 != 0
	sizeIndicated := data[0]&0x01 != 0

	if expedited {
		n := 4
		if sizeIndicated {
			n = 4 - int((data[0]>>2)&0x03)
		}
		if n > subObj.Size() {
			s.abort(index, sub, AbortDataLong)
			return
		}
		if ec := subObj.WriteFrom(data[4 : 4+n]); ec != od.ErrOK {
			s.abort(index, sub, FromODR(ec))
			return
		}
		s.reply(scsDownloadInitiate<<5, index, sub, [4]byte{})
		return
	}

	// Segmented: stash index/sub, prepare a write buffer sized to the sub.
	size := uint32(subObj.Size())
	if sizeIndicated {
		size = binary.LittleEndian.Uint32(data[4:8])
		if size > uint32(subObj.Size()) {
			s.abort(index, sub, AbortDataLong)
			return
		}
	}
	s.index, s.sub, s.subObj = index, sub, subObj
	s.sizeIndicated = size
	s.sizeTransferred = 0
	s.buf = make([]byte, 0, size)
	s.toggle = 0
	s.st = stateDownloadSegment
	s.timeoutTimerUs = 0
	s.reply(scsDownloadInitiate<<5, index, sub, [4]byte{})
}

func (s *Server) handleDownloadSegment(data [8]byte) {
	toggle := data[0] & 0x10
	if toggle != s.toggle {
		s.abort(s.index, s.sub, AbortToggleBit)
		return
	}
	last := data[0]&0x01 != 0
	n := 7 - int((data[0]>>1)&0x07)
	s.buf = append(s.buf, data[1:1+n]...)
	s.sizeTransferred += uint32(n)

	if s.sizeTransferred > s.sizeIndicated {
		s.abort(s.index, s.sub, AbortDataLong)
		return
	}

	if last {
		if s.sizeTransferred < s.sizeIndicated {
			s.abort(s.index, s.sub, AbortDataShort)
			return
		}
		if ec := s.subObj.WriteFrom(s.buf); ec != od.ErrOK {
			s.abort(s.index, s.sub, FromODR(ec))
			return
		}
		s.st = stateIdle
	}
	resp := scsDownloadSegment | toggle
	s.reply(resp, 0, 0, [4]byte{})
	if !last {
		s.toggle ^= 0x10
	}
}

func (s *Server) handleUploadInitiate(data [8]byte) {
	index := binary.LittleEndian.Uint16(data[1:3])
	sub := data[3]
	subObj, code := s.lookup(index, sub)
	if code != AbortNone {
		s.abort(index, sub, code)
		return
	}

	size := subObj.Size()
	if size <= 4 {
		buf := make([]byte, size)
		n, ec := subObj.ReadInto(0, buf)
		if ec != od.ErrOK {
			s.abort(index, sub, FromODR(ec))
			return
		}
		var d [4]byte
		copy(d[:], buf[:n])
		cmd := scsUploadInitiate<<5 | 0x02 | 0x01 | byte(4-n)<<2
		s.reply(cmd, index, sub, d)
		return
	}

	s.index, s.sub, s.subObj = index, sub, subObj
	s.buf = subObj.Bytes()
	s.bufOffset = 0
	s.sizeIndicated = uint32(size)
	s.toggle = 0
	s.st = stateUploadSegment
	var d [4]byte
	binary.LittleEndian.PutUint32(d[:], uint32(size))
	s.reply(scsUploadInitiate<<5|0x01, index, sub, d)
}

func (s *Server) handleUploadSegment(data [8]byte) {
	toggle := data[0] & 0x10
	if toggle != s.toggle {
		s.abort(s.index, s.sub, AbortToggleBit)
		return
	}
	remaining := len(s.buf) - s.bufOffset
	n := remaining
	if n > 7 {
		n = 7
	}
	var d [8]byte
	last := remaining <= 7
	d[0] = scsUploadSegment | toggle | byte(7-n)<<1
	if last {
		d[0] |= 0x01
	}
	copy(d[1:1+n], s.buf[s.bufOffset:s.bufOffset+n])
	s.bufOffset += n
	s.pending.Store(mailbox.Frame{ID: s.TxCobID, DLC: 8, Data: d})
	if last {
		s.st = stateIdle
	} else {
		s.toggle ^= 0x10
	}
}

// Process ages the active transfer's timeout by elapsedUs, aborting with
// AbortTimeout if no follow-up segment/sub-block request arrived in time.
func (s *Server) Process(elapsedUs uint32) {
	if s.st == stateIdle {
		return
	}
	s.timeoutTimerUs += elapsedUs
	if s.timeoutTimerUs > DefaultTimeoutUs {
		s.abort(s.index, s.sub, AbortTimeout)
	}
}
