package node

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/zencan-go/zencan/od"
)

// SaveCmd is the magic value ("save" in ASCII, little-endian) that sub 1 of
// the storage command object must receive to trigger a save. Matches
// spec.md's external-interface magic value table.
const SaveCmd uint32 = 0x65766173

// StorageContext is the shared flag surface between the storage command
// object and the application/runtime loop that actually performs a save:
// the object only raises StoreRequested; something outside this package
// (the embedder) watches it and performs the write, then calls Clear.
//
// Grounded on original_source/zencan-node/src/storage.rs's StorageContext
// (AtomicBool store_flag / store_supported) — the teacher has no 0x1010
// object at all, so this whole component is supplemented from the original.
type StorageContext struct {
	storeFlag      atomic.Bool
	storeSupported atomic.Bool
}

// SetSupported marks whether the embedding application has registered a save
// handler; until it does, writing the save command to sub 1 returns
// ResourceNotAvailable.
func (c *StorageContext) SetSupported(supported bool) {
	c.storeSupported.Store(supported)
}

// StoreRequested reports whether a save was requested and not yet cleared.
func (c *StorageContext) StoreRequested() bool {
	return c.storeFlag.Load()
}

// Clear resets the store request flag after the embedder has performed a save.
func (c *StorageContext) Clear() {
	c.storeFlag.Store(false)
}

// NewStorageCommandObject builds the 0x1010 StoreParameters object backed by
// ctx. sub 0 is NumberOfEntries (fixed at 1), sub 1 is the save-trigger u32.
func NewStorageCommandObject(ctx *StorageContext) *od.Object {
	sub0 := od.NewSubObject("NumberOfEntries", od.UInt8, od.AttrSDOR, 1, []byte{1})
	sub1 := od.NewSubObject("SaveAll", od.UInt32, od.AttrSDORW, 4, nil)
	sub1.Read = func(s *od.SubObject, offset int, buf []byte) (int, od.ODR) {
		var value uint32
		if ctx.storeSupported.Load() {
			value |= 1
		}
		raw := make([]byte, 4)
		binary.LittleEndian.PutUint32(raw, value)
		if offset >= len(raw) {
			return 0, od.ErrOK
		}
		n := copy(buf, raw[offset:])
		return n, od.ErrOK
	}
	sub1.Write = func(s *od.SubObject, data []byte) od.ODR {
		if len(data) != 4 {
			return od.ErrTypeMismatch
		}
		value := binary.LittleEndian.Uint32(data)
		if value != SaveCmd {
			return od.ErrParIncompat
		}
		if !ctx.storeSupported.Load() {
			return od.ErrNoResource
		}
		ctx.storeFlag.Store(true)
		return od.ErrOK
	}
	return od.NewRecordObject(od.IndexStoreParameters, "StoreParameters", []*od.SubObject{sub0, sub1})
}
