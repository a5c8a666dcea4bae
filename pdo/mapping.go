// Package pdo implements the CANopen Process Data Object engine: packing of
// mapped sub-objects and TPDO/RPDO transmission, including event-driven
// (254/255) and synchronous transmission types. Packing is byte-aligned:
// each mapping occupies whole bytes (its bit length rounded up), and
// sub-byte mappings are not packed together at the bit level.
//
// Grounded on the teacher's pdo.go/pdo_tpdo.go/pdo_rpdo.go for mapping and
// packing structures; since the teacher's legacy TPDO loop is always-
// periodic with no event-driven path, that trigger logic is supplemented
// from original_source/zencan-node/src/node.rs's TPDO loop
// (global_trigger && read_events() / sync && sync_update()).
package pdo

import "github.com/zencan-go/zencan/od"

// Transmission types, CiA 301 §7.2.2 / Table 76.
const (
	TransmissionSyncAcyclic  uint8 = 0
	TransmissionSyncEventLo  uint8 = 1
	TransmissionSyncEventHi  uint8 = 240
	TransmissionEventDriven  uint8 = 254
	TransmissionEventDriven2 uint8 = 255
)

// MappedEntry is one sub-object mapped into a PDO, resolved from an
// 0x1Axx/0x16xx mapping parameter's 4-byte (index, sub, bitlength) encoding.
type MappedEntry struct {
	Sub      *od.SubObject
	BitLen   int
	ByteLen  int
	EventSlot uint32
}

// DecodeMappingEntry splits a CiA 301 mapping parameter dword into
// (index, subIndex, bitLength).
func DecodeMappingEntry(raw uint32) (index uint16, sub uint8, bitLen uint8) {
	return uint16(raw >> 16), uint8(raw >> 8), uint8(raw)
}

// Mapping resolves up to od.MaxMappedEntriesPDO mapping dwords against table
// into concrete MappedEntry values, and reports total byte length.
func Mapping(table *od.Table, mappingDwords []uint32) ([]MappedEntry, int, error) {
	var entries []MappedEntry
	totalBits := 0
	for _, raw := range mappingDwords {
		if raw == 0 {
			continue
		}
		index, sub, bitLen := DecodeMappingEntry(raw)
		subObj, err := table.FindSub(index, sub)
		if err != od.ErrOK {
			return nil, 0, err
		}
		entries = append(entries, MappedEntry{Sub: subObj, BitLen: int(bitLen), ByteLen: (int(bitLen) + 7) / 8})
		totalBits += int(bitLen)
	}
	if totalBits > 64 {
		return nil, 0, od.ErrMapLen
	}
	return entries, (totalBits + 7) / 8, nil
}

// Pack copies each mapped entry's current value, byte-aligned in mapping
// order, into a PDO payload buffer (at most 8 bytes).
func Pack(entries []MappedEntry) [8]byte {
	var out [8]byte
	offset := 0
	for _, e := range entries {
		buf := make([]byte, e.ByteLen)
		e.Sub.ReadInto(0, buf)
		copy(out[offset:], buf)
		offset += e.ByteLen
	}
	return out
}

// Unpack writes an inbound PDO payload into each mapped entry in mapping
// order.
func Unpack(entries []MappedEntry, data [8]byte) {
	offset := 0
	for _, e := range entries {
		if offset+e.ByteLen > 8 {
			return
		}
		e.Sub.WriteFrom(data[offset : offset+e.ByteLen])
		offset += e.ByteLen
	}
}
