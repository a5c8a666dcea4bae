package od

import (
	"encoding/binary"
	"sync"
	"sync/atomic"
)

// ReadFunc backs a sub-object whose value is computed or intercepted rather
// than stored directly, mirroring the teacher's Extension.Read callback.
type ReadFunc func(sub *SubObject, offset int, buf []byte) (n int, err ODR)

// WriteFunc backs a sub-object whose write is intercepted, mirroring the
// teacher's Extension.Write callback.
type WriteFunc func(sub *SubObject, data []byte) ODR

// SubObject is one addressable (index, subIndex) cell. Its backing storage is
// a pre-sized byte slice allocated once at table-build time; no sub-object
// ever reallocates on write.
type SubObject struct {
	Name      string
	DataType  DataType
	Attr      Attribute
	data      []byte
	mu        sync.Mutex
	word      atomic.Uint64 // lock-free fast path for word-sized scalars
	wordSized bool
	Read      ReadFunc
	Write     WriteFunc
}

// NewSubObject allocates a sub-object with storage sized to capacity bytes,
// seeded with defaultValue (truncated or zero-padded to capacity).
func NewSubObject(name string, dt DataType, attr Attribute, capacity int, defaultValue []byte) *SubObject {
	s := &SubObject{Name: name, DataType: dt, Attr: attr, data: make([]byte, capacity)}
	n := copy(s.data, defaultValue)
	_ = n
	switch capacity {
	case 1, 2, 4, 8:
		s.wordSized = true
		s.word.Store(leWord(s.data))
	}
	return s
}

func leWord(b []byte) uint64 {
	var v uint64
	for i, c := range b {
		v |= uint64(c) << (8 * i)
	}
	return v
}

func putLeWord(b []byte, v uint64) {
	for i := range b {
		b[i] = byte(v >> (8 * i))
	}
}

// Size reports the declared storage capacity of the sub-object in bytes.
func (s *SubObject) Size() int {
	return len(s.data)
}

// ReadInto copies len(buf) bytes starting at offset into buf, honoring a
// registered ReadFunc if present. Without a callback, returns ErrDataShort if
// offset is beyond the declared size; a read that runs past the end copies
// only the bytes available and returns that count with ErrOK.
func (s *SubObject) ReadInto(offset int, buf []byte) (int, ODR) {
	if s.Read != nil {
		return s.Read(s, offset, buf)
	}
	if s.Attr&AttrSDOR == 0 {
		return 0, ErrWriteOnly
	}
	if s.wordSized && offset == 0 && len(buf) == len(s.data) {
		putLeWord(buf, s.word.Load())
		return len(buf), ErrOK
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if offset > len(s.data) {
		return 0, ErrDataShort
	}
	n := copy(buf, s.data[offset:])
	return n, ErrOK
}

// WriteFrom writes data at offset 0, honoring a registered WriteFunc, size
// checks, and the AttrString short-write zero-pad rule.
func (s *SubObject) WriteFrom(data []byte) ODR {
	if s.Write != nil {
		return s.Write(s, data)
	}
	if s.Attr&AttrSDOW == 0 {
		return ErrReadOnly
	}
	if len(data) > len(s.data) {
		return ErrDataLong
	}
	if len(data) < len(s.data) && s.Attr&AttrString == 0 {
		return ErrDataShort
	}
	s.mu.Lock()
	copy(s.data, data)
	for i := len(data); i < len(s.data); i++ {
		s.data[i] = 0
	}
	if s.wordSized {
		s.word.Store(leWord(s.data))
	}
	s.mu.Unlock()
	return ErrOK
}

// Uint32 reads the sub-object as a little-endian uint32 without going through
// the SDO read-attribute gate; used internally by PDO mapping and comm params.
func (s *SubObject) Uint32() uint32 {
	if s.wordSized {
		return uint32(s.word.Load())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.data) < 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(s.data)
}

// PutUint32 writes v as little-endian without going through the SDO
// write-attribute gate; used internally to seed or update comm parameters.
// On a sub-object shorter than 4 bytes only the low-order bytes that fit are
// written.
func (s *SubObject) PutUint32(v uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	copy(s.data, tmp[:])
	if s.wordSized {
		s.word.Store(leWord(s.data))
	}
}

// Uint16 reads the sub-object as a little-endian uint16.
func (s *SubObject) Uint16() uint16 {
	if s.wordSized {
		return uint16(s.word.Load())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.data) < 2 {
		return 0
	}
	return binary.LittleEndian.Uint16(s.data)
}

// Uint8 reads the sub-object's first byte.
func (s *SubObject) Uint8() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.data) < 1 {
		return 0
	}
	return s.data[0]
}

// Bytes returns a copy of the raw backing storage.
func (s *SubObject) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, len(s.data))
	copy(out, s.data)
	return out
}

// Object is one index of the dictionary: a variable (single sub 0), an array
// (subs 0..N sharing a type, sub 0 is the count), or a record (heterogeneous
// named subs).
type Object struct {
	Index uint16
	Name  string
	Code  ObjectCode
	Subs  []*SubObject
}

// Sub looks up a sub-index, returning ErrSubNotExist if out of range.
func (o *Object) Sub(subIndex uint8) (*SubObject, ODR) {
	if int(subIndex) >= len(o.Subs) {
		return nil, ErrSubNotExist
	}
	return o.Subs[subIndex], ErrOK
}

// NewVariableObject builds a single-sub VAR object, the common case for
// scalar device parameters.
func NewVariableObject(index uint16, name string, sub *SubObject) *Object {
	return &Object{Index: index, Name: name, Code: ObjectVar, Subs: []*SubObject{sub}}
}

// NewRecordObject builds a heterogeneous RECORD object from an ordered list
// of subs; subs[0] conventionally holds the highest sub-index present.
func NewRecordObject(index uint16, name string, subs []*SubObject) *Object {
	return &Object{Index: index, Name: name, Code: ObjectRecord, Subs: subs}
}

// NewArrayObject builds an ARRAY object: sub 0 is the element count, subs
// 1..n share dataType and attr, each sized elemSize bytes.
func NewArrayObject(index uint16, name string, dataType DataType, attr Attribute, elemSize int, n int) *Object {
	subs := make([]*SubObject, n+1)
	subs[0] = NewSubObject("NumberOfEntries", UInt8, AttrSDOR, 1, []byte{byte(n)})
	for i := 1; i <= n; i++ {
		subs[i] = NewSubObject(name, dataType, attr, elemSize, nil)
	}
	return &Object{Index: index, Name: name, Code: ObjectArray, Subs: subs}
}
