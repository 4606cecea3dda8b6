package blockfs

import "testing"

func TestStorageInsertGetRemove(t *testing.T) {
	s := newStorage[string](4)

	i0 := s.insert("a")
	i1 := s.insert("b")
	if i0 == invalidIndex || i1 == invalidIndex {
		t.Fatalf("unexpected invalidIndex from insert: %d, %d", i0, i1)
	}
	if i0 == i1 {
		t.Fatalf("insert returned the same index twice: %d", i0)
	}

	v, ok := s.get(i0)
	if !ok || v != "a" {
		t.Fatalf("get(%d) = %q, %v, want %q, true", i0, v, ok, "a")
	}

	if !s.remove(i0) {
		t.Fatal("remove on an occupied slot returned false")
	}
	if _, ok := s.get(i0); ok {
		t.Fatal("get still reports the slot occupied after remove")
	}

	// the freed slot should be reusable
	i2 := s.insert("c")
	if i2 != i0 {
		t.Fatalf("insert after remove got index %d, want the freed index %d", i2, i0)
	}
}

func TestStorageFullReturnsInvalidIndex(t *testing.T) {
	s := newStorage[int](2)
	if s.insert(1) == invalidIndex {
		t.Fatal("first insert into empty storage failed")
	}
	if s.insert(2) == invalidIndex {
		t.Fatal("second insert into storage of capacity 2 failed")
	}
	if idx := s.insert(3); idx != invalidIndex {
		t.Fatalf("insert into full storage = %d, want invalidIndex", idx)
	}
}

func TestStorageRemoveUnoccupiedFails(t *testing.T) {
	s := newStorage[int](4)
	if s.remove(0) {
		t.Fatal("remove on an unoccupied slot returned true")
	}
	if s.remove(100) {
		t.Fatal("remove on an out-of-range slot returned true")
	}
}

func TestStorageSetRequiresOccupied(t *testing.T) {
	s := newStorage[int](2)
	if s.set(0, 7) {
		t.Fatal("set on unoccupied slot returned true")
	}

	idx := s.insert(1)
	if !s.set(idx, 99) {
		t.Fatal("set on occupied slot returned false")
	}
	v, ok := s.get(idx)
	if !ok || v != 99 {
		t.Fatalf("get(%d) = %d, %v, want 99, true", idx, v, ok)
	}
}

func TestStorageOccupiedOutOfRange(t *testing.T) {
	s := newStorage[int](2)
	if s.occupied(50) {
		t.Fatal("occupied() reported true for an out-of-range index")
	}
}

func TestStorageRemoveZeroesSlot(t *testing.T) {
	s := newStorage[string](2)
	idx := s.insert("hello")
	s.remove(idx)

	// reinsert into the same freed slot and confirm no stale data leaks
	// through: a zero-value reset happened on remove.
	idx2 := s.insert("")
	if idx2 != idx {
		t.Fatalf("expected reused index %d, got %d", idx, idx2)
	}
	v, _ := s.get(idx2)
	if v != "" {
		t.Fatalf("get(%d) = %q after reinserting zero value, want empty string", idx2, v)
	}
}

func TestStorageCapacity(t *testing.T) {
	s := newStorage[int](5)
	if got := s.capacity(); got != 5 {
		t.Fatalf("capacity() = %d, want 5", got)
	}
}
