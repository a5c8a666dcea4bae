package od

import "sort"

// Table is the static object dictionary: a slice of objects sorted by index,
// looked up by binary search. Built once at startup (or compiled in by a
// generator) and never resized afterward, matching the "static array" data
// model invariant.
type Table struct {
	objects []*Object
}

// NewTable builds a Table from an unordered slice of objects, sorting them by
// index once up front so Find can binary-search.
func NewTable(objects []*Object) *Table {
	sorted := make([]*Object, len(objects))
	copy(sorted, objects)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })
	return &Table{objects: sorted}
}

// Find looks up an object by index in O(log N).
func (t *Table) Find(index uint16) (*Object, ODR) {
	objs := t.objects
	lo, hi := 0, len(objs)
	for lo < hi {
		mid := (lo + hi) / 2
		if objs[mid].Index < index {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(objs) && objs[lo].Index == index {
		return objs[lo], ErrOK
	}
	return nil, ErrIdxNotExist
}

// FindSub is a convenience wrapper combining Find and Object.Sub.
func (t *Table) FindSub(index uint16, subIndex uint8) (*SubObject, ODR) {
	obj, err := t.Find(index)
	if err != ErrOK {
		return nil, err
	}
	return obj.Sub(subIndex)
}

// Len reports the number of objects in the table.
func (t *Table) Len() int { return len(t.objects) }

// All returns the sorted backing slice directly; callers must not mutate it.
func (t *Table) All() []*Object { return t.objects }
