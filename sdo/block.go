package sdo

import (
	"encoding/binary"

	log "github.com/sirupsen/logrus"

	"github.com/zencan-go/zencan/internal/crc"
	"github.com/zencan-go/zencan/mailbox"
	"github.com/zencan-go/zencan/od"
)

// Block download (client -> server): the client streams sub-blocks of up to
// blockSize 7-byte segments; the server acks each completed sub-block with
// the highest seqno it saw and the blksize to use for the next one, then
// validates an end-of-transfer CRC before committing the write.

func (s *Server) handleBlockDownloadInitiate(data [8]byte) {
	index := binary.LittleEndian.Uint16(data[1:3])
	sub := data[3]
	subObj, code := s.lookup(index, sub)
	if code != AbortNone {
		s.abort(index, sub, code)
		return
	}

	crcEnabled := data[0]&0x04 != 0
	sizeIndicated := data[0]&0x02 != 0
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
	s.blockCRCEnabled = crcEnabled
	s.blockCRC = crc.CRC16(0)
	s.blockSize = MaxBlockSize
	s.blockSeqno = 0
	s.st = stateDownloadBlockSubblock
	s.timeoutTimerUs = 0

	var d [4]byte
	d[0] = s.blockSize
	s.reply(scsBlockDownload<<5|blockSubInitiate, index, sub, d)
}

func (s *Server) handleBlockDownloadSegment(data [8]byte) {
	seqno := data[0] & 0x7F
	last := data[0]&0x80 != 0
	s.timeoutTimerUs = 0

	if seqno != s.blockSeqno+1 {
		// Gap or duplicate: ignore, the client will time out the sub-block
		// and retransmit from the last acked seqno.
		log.Debugf("[SDO][SERVER] block download seqno gap: got %d want %d", seqno, s.blockSeqno+1)
		return
	}
	s.blockSeqno = seqno
	s.buf = append(s.buf, data[1:8]...)
	s.sizeTransferred += 7

	if last || seqno == s.blockSize {
		var d [8]byte
		d[0] = scsBlockDownload<<5 | blockSubCRSP
		d[1] = s.blockSeqno
		d[2] = s.blockSize
		s.blockSeqno = 0
		if last {
			s.st = stateDownloadBlockEnd
		}
		s.pending.Store(mailbox.Frame{ID: s.TxCobID, DLC: 8, Data: d})
	}
}

// handleBlockDownloadEnd processes the final "end" frame carrying the
// transfer CRC and the count of valid bytes in the last segment.
func (s *Server) handleBlockDownloadEnd(data [8]byte) {
	unusedBytes := (data[0] >> 2) & 0x07
	if int(unusedBytes) <= len(s.buf) {
		s.buf = s.buf[:len(s.buf)-int(unusedBytes)]
	}
	if uint32(len(s.buf)) != s.sizeIndicated && s.sizeIndicated != 0 {
		s.abort(s.index, s.sub, AbortDataShort)
		return
	}
	if s.blockCRCEnabled {
		var computed crc.CRC16
		computed.Block(s.buf)
		clientCRC := crc.CRC16(binary.LittleEndian.Uint16(data[1:3]))
		if computed != clientCRC {
			s.abort(s.index, s.sub, AbortCRC)
			return
		}
	}
	if ec := s.subObj.WriteFrom(s.buf); ec != od.ErrOK {
		s.abort(s.index, s.sub, FromODR(ec))
		return
	}
	s.st = stateIdle
	s.reply(scsBlockDownload<<5|blockSubEnd, 0, 0, [4]byte{})
}

// Block upload (server -> client): the server streams sub-blocks; the
// client's "start" message kicks off the first one, and a CRSP ack (carrying
// the highest seqno it received and the next blksize) advances to the next
// sub-block. The server buffers the whole value up front since sub-objects
// here are always small enough to fit in memory; the buffer is a fresh copy
// of the sub-object's storage (subObj.Bytes()), allocated on every block
// upload request.

func (s *Server) handleBlockUploadInitiate(data [8]byte) {
	index := binary.LittleEndian.Uint16(data[1:3])
	sub := data[3]
	subObj, code := s.lookup(index, sub)
	if code != AbortNone {
		s.abort(index, sub, code)
		return
	}
	crcEnabled := data[0]&0x04 != 0
	s.index, s.sub, s.subObj = index, sub, subObj
	s.buf = subObj.Bytes()
	s.bufOffset = 0
	s.blockCRCEnabled = crcEnabled
	s.blockCRC = crc.CRC16(0)
	if crcEnabled {
		s.blockCRC.Block(s.buf)
	}
	s.st = stateUploadBlockInitiate

	var d [4]byte
	binary.LittleEndian.PutUint32(d[:], uint32(len(s.buf)))
	s.reply(scsBlockUpload<<5|blockSubInitiate|0x02, index, sub, d)
}

// handleBlockUploadSubStart handles the client's "start transmission" frame
// (and later sub-block acks, which carry blockSubCRSP in bits 0-1).
func (s *Server) handleBlockUploadSubStart(data [8]byte) {
	sub := data[0] & 0x03
	switch sub {
	case blockSubStart:
		s.blockSize = MaxBlockSize
		s.sendNextBlockUploadSegment()
	case blockSubCRSP:
		ackSeq := data[1]
		nextBlkSize := data[2]
		_ = ackSeq // single in-flight sub-block model: a clean ack always covers everything sent
		s.blockSize = nextBlkSize
		if s.bufOffset >= len(s.buf) {
			s.finishBlockUpload()
			return
		}
		s.sendNextBlockUploadSegment()
	default:
		s.abort(s.index, s.sub, AbortCommand)
	}
}

func (s *Server) sendNextBlockUploadSegment() {
	remaining := len(s.buf) - s.bufOffset
	n := 7
	last := false
	if remaining <= 7 {
		n = remaining
		last = true
	}
	var d [8]byte
	copy(d[1:], s.buf[s.bufOffset:s.bufOffset+n])
	s.bufOffset += n
	s.blockSeqno++
	d[0] = s.blockSeqno
	if last {
		d[0] |= 0x80
	}
	s.pending.Store(mailbox.Frame{ID: s.TxCobID, DLC: 8, Data: d})
	if last {
		s.st = stateUploadBlockEnd
	}
}

// finishBlockUpload sends the end-of-transfer frame carrying the CRC and the
// number of padding bytes in the final segment.
func (s *Server) finishBlockUpload() {
	lastLen := len(s.buf) % 7
	if lastLen == 0 && len(s.buf) > 0 {
		lastLen = 7
	}
	unused := byte(7 - lastLen)
	var d [8]byte
	d[0] = scsBlockUpload<<5 | blockSubEnd | unused<<2
	if s.blockCRCEnabled {
		binary.LittleEndian.PutUint16(d[1:3], uint16(s.blockCRC))
	}
	s.blockSeqno = 0
	s.st = stateUploadBlockEndCRSP
	s.pending.Store(mailbox.Frame{ID: s.TxCobID, DLC: 8, Data: d})
}
