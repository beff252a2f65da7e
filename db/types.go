package db

import "golang.org/x/exp/constraints"

// Key is the set of types a HashSet can hold. Keys are compared with == and
// hashed through their integer projection int(key).
type Key interface {
	constraints.Integer | constraints.Float
}

// SlotState tags a single bin of a HashSet.
type SlotState uint8

const (
	SlotEmpty     SlotState = iota // never used since the last clear
	SlotOccupied                   // holds a live key
	SlotTombstone                  // held a key that was erased
)

func (s SlotState) String() string {
	switch s {
	case SlotEmpty:
		return "empty"
	case SlotOccupied:
		return "occupied"
	case SlotTombstone:
		return "tombstone"
	default:
		return "unknown"
	}
}

// Slot is a copy of one bin: its state tag and the raw key stored there.
// Key is only meaningful when State is SlotOccupied.
type Slot[K Key] struct {
	State SlotState
	Key   K
}
