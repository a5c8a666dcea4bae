package od

import "sync/atomic"

// EventFlags is a double-buffered bitset of "this sub-object changed" marks,
// one bit per dictionary entry slot. PDO emission code reads and clears one
// side (the "stable" side) while application writes set bits on the other
// side; Swap() publishes the writer's side to the reader with a single
// atomic toggle so no lock is needed on the hot write path.
//
// Grounded on the release/acquire double-buffer scheme described for PDO
// event flags; the teacher's own flagsPDO is a single flat array, which this
// generalizes to avoid torn reads between a writer setting a flag and a
// concurrent TPDO scan clearing it.
type EventFlags struct {
	sides  [2][FlagsPDOSize]uint64
	active atomic.Uint32 // index (0 or 1) currently being written to
}

// Set marks slot as dirty on the currently-active (writer) side.
func (f *EventFlags) Set(slot uint32) {
	side := f.active.Load() & 1
	word := slot / 64
	bit := slot % 64
	if int(word) >= FlagsPDOSize {
		return
	}
	for {
		old := atomic.LoadUint64(&f.sides[side][word])
		newVal := old | (1 << bit)
		if old == newVal || atomic.CompareAndSwapUint64(&f.sides[side][word], old, newVal) {
			return
		}
	}
}

// Swap flips the active write side and returns the just-retired side for the
// reader to drain; the reader must call ClearDrained once done so the side
// is reusable on the next Swap.
func (f *EventFlags) Swap() (drained *[FlagsPDOSize]uint64) {
	old := f.active.Load() & 1
	f.active.Store(old ^ 1)
	return &f.sides[old]
}

// Test reports whether slot is set within a drained side snapshot.
func Test(side *[FlagsPDOSize]uint64, slot uint32) bool {
	word := slot / 64
	bit := slot % 64
	if int(word) >= FlagsPDOSize {
		return false
	}
	return side[word]&(1<<bit) != 0
}

// ClearDrained zeroes a side previously returned by Swap, making it available
// for the next write cycle.
func ClearDrained(side *[FlagsPDOSize]uint64) {
	for i := range side {
		side[i] = 0
	}
}
