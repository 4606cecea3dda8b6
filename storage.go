package blockfs

// storage is a fixed-capacity slab with a parallel occupancy bitmap,
// ported from original_source/src/storage/storage.h. insert finds the
// first free slot, remove frees it; indices are stable until removed.
type storage[T any] struct {
	slab []T
	free *bitmap // bit set == occupied, despite the name (mirrors bitmap.set semantics)
}

func newStorage[T any](capacity int) *storage[T] {
	return &storage[T]{
		slab: make([]T, capacity),
		free: newBitmap(uint32(capacity)),
	}
}

// insert places elem in the first free slot and returns its index, or
// invalidIndex if the storage is full.
func (s *storage[T]) insert(elem T) uint32 {
	idx := s.free.findFirstOf(false)
	if idx == invalidIndex {
		return invalidIndex
	}
	s.slab[idx] = elem
	s.free.set(idx, true)
	return idx
}

// remove clears slot i. Fails with EFID_INVALID_ID-shaped semantics if the
// slot wasn't occupied; callers translate to the id kind that applies.
func (s *storage[T]) remove(i uint32) bool {
	if !s.occupied(i) {
		return false
	}
	var zero T
	s.slab[i] = zero
	s.free.set(i, false)
	return true
}

func (s *storage[T]) occupied(i uint32) bool {
	return i < uint32(len(s.slab)) && s.free.get(i)
}

// get returns the element at i and whether the slot is occupied.
func (s *storage[T]) get(i uint32) (T, bool) {
	var zero T
	if !s.occupied(i) {
		return zero, false
	}
	return s.slab[i], true
}

// set overwrites the element at an already-occupied slot i.
func (s *storage[T]) set(i uint32, elem T) bool {
	if !s.occupied(i) {
		return false
	}
	s.slab[i] = elem
	return true
}

func (s *storage[T]) capacity() int {
	return len(s.slab)
}
