package db

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// DebugString dumps the counters and every slot of the set.
func (s *HashSet[K]) DebugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "capacity=%d  occupied=%d  tombstones=%d\n", s.capacity, s.occupied, s.tombstones)
	for i := range s.states {
		switch st := s.states[i]; st {
		case SlotOccupied:
			fmt.Fprintf(&buf, "  %4d: %v [home=%d]\n", i, s.keys[i], s.hash(s.keys[i]))
		default:
			fmt.Fprintf(&buf, "  %4d: %s\n", i, st)
		}
	}
	return buf.String()
}

// isNaN reports whether k is a floating-point NaN, the only key that is
// unequal to itself.
func isNaN[K Key](k K) bool {
	return k != k
}

func (s *HashSet[K]) maybeCheckInvariants() {
	if invariants {
		if err := s.checkInvariants(); err != nil {
			panic(err)
		}
	}
}

// checkInvariants verifies the counters against the state tags and that
// every live key is reachable along its own probe sequence.
func (s *HashSet[K]) checkInvariants() error {
	if s.closed {
		return nil
	}
	if s.capacity < 2 || s.capacity&s.mask != 0 || s.mask != s.capacity-1 {
		return errors.AssertionFailedf("capacity %d with mask %d is not a power of two", s.capacity, s.mask)
	}
	if len(s.keys) != s.capacity || len(s.states) != s.capacity {
		return errors.AssertionFailedf("arena has %d keys and %d states for capacity %d",
			len(s.keys), len(s.states), s.capacity)
	}

	var occupied, tombstones int
	for i, st := range s.states {
		switch st {
		case SlotEmpty:
		case SlotOccupied:
			occupied++
			if isNaN(s.keys[i]) {
				// Never found by find, so nothing to check.
				continue
			}
			if j := s.find(s.keys[i]); j != i {
				return errors.AssertionFailedf("slot %d: %v found at %d\n%s", i, s.keys[i], j, s.DebugString())
			}
		case SlotTombstone:
			tombstones++
		default:
			return errors.AssertionFailedf("slot %d: unknown state %d", i, st)
		}
	}

	if occupied != s.occupied {
		return errors.AssertionFailedf("found %d occupied slots, but occupied count is %d\n%s",
			occupied, s.occupied, s.DebugString())
	}
	if tombstones != s.tombstones {
		return errors.AssertionFailedf("found %d tombstones, but tombstone count is %d\n%s",
			tombstones, s.tombstones, s.DebugString())
	}
	if s.occupied+s.tombstones > s.capacity {
		return errors.AssertionFailedf("%d occupied and %d tombstones exceed capacity %d",
			s.occupied, s.tombstones, s.capacity)
	}
	return nil
}
