package lss

import (
	"encoding/binary"

	log "github.com/sirupsen/logrus"
)

// bitCheckReset is the special BitCheck value (CiA 305 §4.3) the master
// sends with IDNumber=0 to make every not-yet-identified slave in Waiting
// state respond and restart its scan at the vendor-ID field.
const bitCheckReset byte = 0x80

// handleFastScan implements the CiA 305 LSS fast-scan service: the master
// narrows one 32-bit identity field at a time, from the most-significant bit
// down, by proposing a candidate value and a bit-mask (BitCheck = how many
// low bits are still undetermined); every slave still in the race for that
// field echoes back a response if its own field value agrees on all bits at
// or above BitCheck. A BitCheck of 0 means the field is fully resolved and
// the master moves to LSSNext (the next field index, or ends the scan once
// all four fields are pinned down and exactly one slave remains selected).
func (s *Slave) handleFastScan(data [8]byte) {
	if s.state != StateWaiting || !s.NodeIDUnconfigured {
		return
	}

	idNumber := binary.LittleEndian.Uint32(data[1:5])
	bitCheck := data[5]
	lssSub := data[6]
	lssNext := data[7]

	if bitCheck == bitCheckReset {
		s.fastScanField = 0
		s.fastScanArmed = true
		s.respondFastScan()
		log.Debugf("[LSS][SLAVE] fast-scan reset, scanning field 0")
		return
	}

	if !s.fastScanArmed || int(lssSub) != s.fastScanField {
		return
	}
	if bitCheck > 31 {
		return
	}

	fieldValue := s.Identity.field(s.fastScanField)
	mask := ^uint32(0) << bitCheck
	if fieldValue&mask != idNumber&mask {
		return
	}

	s.respondFastScan()
	if bitCheck == 0 {
		s.fastScanField = int(lssNext)
		log.Debugf("[LSS][SLAVE] fast-scan field resolved, advancing to field %d", s.fastScanField)
		if s.fastScanField > 3 {
			// All four fields pinned: this slave is the one the master has
			// selected. It now behaves as if selectively switched, so a
			// following configure-node-id addressed without further
			// qualification applies to it.
			s.state = StateConfiguration
			s.fastScanArmed = false
		}
	}
}

func (s *Slave) respondFastScan() {
	s.reply(CmdIdentifySlaveResponse, [7]byte{})
}
