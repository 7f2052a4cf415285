// File: reactor/slotmap.go
// Author: momentics <momentics@gmail.com>
//
// Generational arena. Handles are stable integers safe to park in kernel
// user-data: a handle to a removed slot never resolves again, even after the
// slot is reused.

package reactor

// handle packs a slot index (low 32 bits) and its generation (high 32 bits).
// The zero handle is never issued.
type handle uint64

func makeHandle(index, gen uint32) handle {
	return handle(index) | handle(gen)<<32
}

func (h handle) index() uint32 { return uint32(h) }
func (h handle) gen() uint32   { return uint32(h >> 32) }

type slot[T any] struct {
	val  T
	gen  uint32
	used bool
}

// slotMap is not synchronised; callers hold their own lock.
type slotMap[T any] struct {
	slots []slot[T]
	free  []uint32
	live  int
}

func (m *slotMap[T]) insert(v T) handle {
	var idx uint32
	if n := len(m.free); n > 0 {
		idx = m.free[n-1]
		m.free = m.free[:n-1]
	} else {
		idx = uint32(len(m.slots))
		m.slots = append(m.slots, slot[T]{gen: 1})
	}
	s := &m.slots[idx]
	s.val = v
	s.used = true
	m.live++
	return makeHandle(idx, s.gen)
}

func (m *slotMap[T]) get(h handle) (T, bool) {
	var zero T
	idx := h.index()
	if int(idx) >= len(m.slots) {
		return zero, false
	}
	s := &m.slots[idx]
	if !s.used || s.gen != h.gen() {
		return zero, false
	}
	return s.val, true
}

func (m *slotMap[T]) remove(h handle) (T, bool) {
	v, ok := m.get(h)
	if !ok {
		return v, false
	}
	s := &m.slots[h.index()]
	var zero T
	s.val = zero
	s.used = false
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	m.free = append(m.free, h.index())
	m.live--
	return v, true
}

func (m *slotMap[T]) len() int {
	return m.live
}

func (m *slotMap[T]) each(fn func(h handle, v T)) {
	for i := range m.slots {
		if s := &m.slots[i]; s.used {
			fn(makeHandle(uint32(i), s.gen), s.val)
		}
	}
}
