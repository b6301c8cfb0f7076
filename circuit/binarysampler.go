package circuit

// binarySampler tracks a series of events with true or false outcomes,
// e.g. failures or successes, within a limited window. It stores the
// events compressed as bits in a ring, with count holding the number of
// true values currently in the window.
type binarySampler struct {
	size   int
	filled int
	pos    int
	frames []uint64
	count  int
}

func newBinarySampler(size int) *binarySampler {
	if size <= 0 {
		size = 1
	}

	return &binarySampler{
		size:   size,
		frames: make([]uint64, (size+63)/64),
	}
}

func (s *binarySampler) tick(set bool) {
	frame, bit := s.pos/64, uint(s.pos%64)
	mask := uint64(1) << bit

	if s.filled == s.size {
		if s.frames[frame]&mask != 0 {
			s.count--
		}
	} else {
		s.filled++
	}

	if set {
		s.frames[frame] |= mask
		s.count++
	} else {
		s.frames[frame] &^= mask
	}

	s.pos++
	if s.pos == s.size {
		s.pos = 0
	}
}
