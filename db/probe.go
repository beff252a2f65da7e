package db

import "fmt"

// probeSeq maintains the state for a probe sequence. The sequence is a
// triangular progression of the form
//
//	p(n) := hash + (n^2 + n)/2 (mod mask+1)
//
// so that the n-th step moves n slots past the previous one. Because the
// table size is a power of two, the first mask+1 probes visit every slot
// exactly once, which lets a full-table walk stop after a plain countdown.
type probeSeq struct {
	mask   int
	offset int
	index  int
}

func makeProbeSeq(hash, mask int) probeSeq {
	return probeSeq{
		mask:   mask,
		offset: hash & mask,
		index:  0,
	}
}

func (s probeSeq) next() probeSeq {
	s.index++
	s.offset = (s.offset + s.index) & s.mask
	return s
}

func (s probeSeq) String() string {
	return fmt.Sprintf("mask=%d offset=%d index=%d", s.mask, s.offset, s.index)
}
