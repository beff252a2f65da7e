package db

import (
	"fmt"
	"strings"
	"unsafe"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

const (
	// DefaultPower gives a 32 slot table.
	DefaultPower = 5
	MaxPower     = 30

	arenaTag = "hashset.arena"
)

type options struct {
	allocator Allocator
	logger    *zap.Logger
}

type Option func(*options)

// WithAllocator makes the set take its slot arena from a.
func WithAllocator(a Allocator) Option {
	return func(o *options) {
		o.allocator = a
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// HashSet is a fixed-capacity set of keys stored by open addressing. The
// table has 2^power slots; collisions are resolved with a triangular probe
// sequence (see probeSeq) and erased keys leave tombstones behind so that
// the probe chains through them stay intact. The table never grows: once
// every slot holds a live key, inserting a new key fails with ErrOverflow.
//
// A HashSet is NOT goroutine-safe.
type HashSet[K Key] struct {
	// keys and states are index-aligned and live in a single arena obtained
	// from allocator. keys[i] is only meaningful when states[i] is
	// SlotOccupied.
	keys   []K
	states []SlotState

	capacity   int
	mask       int
	occupied   int
	tombstones int

	allocator Allocator
	arena     AllocID
	closed    bool

	logger *zap.Logger
}

// New creates a set with 2^power slots, all empty. power must lie in
// [1, MaxPower].
func New[K Key](power int, opts ...Option) (*HashSet[K], error) {
	if power < 1 || power > MaxPower {
		return nil, errors.Wrapf(ErrInvalidPower, "power %d not in [1, %d]", power, MaxPower)
	}

	o := options{
		allocator: defaultAllocator,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	capacity := 1 << power
	size := arenaSize[K](capacity)
	id, err := o.allocator.Alloc(arenaTag, size)
	if err != nil {
		return nil, errors.Wrapf(err, "allocating %d slots", capacity)
	}

	s := &HashSet[K]{
		keys:      make([]K, capacity),
		states:    make([]SlotState, capacity),
		capacity:  capacity,
		mask:      capacity - 1,
		allocator: o.allocator,
		arena:     id,
		logger:    o.logger,
	}
	s.logger.Debug("hash set created", zap.Int("capacity", capacity), zap.Int64("bytes", size))
	s.maybeCheckInvariants()
	return s, nil
}

func arenaSize[K Key](capacity int) int64 {
	var k K
	var st SlotState
	return int64(capacity) * int64(unsafe.Sizeof(k)+unsafe.Sizeof(st))
}

// Close releases the slot arena back to the allocator. Close is idempotent;
// any other use of a closed set is invalid.
func (s *HashSet[K]) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.keys = nil
	s.states = nil
	s.occupied = 0
	s.tombstones = 0
	s.logger.Debug("hash set closed", zap.Int("capacity", s.capacity))
	return s.allocator.Free(s.arena)
}

func (s *HashSet[K]) hash(key K) int {
	i := int(key) % s.capacity
	if i < 0 {
		i += s.capacity
	}
	return i
}

// Size returns the number of keys in the set.
func (s *HashSet[K]) Size() int {
	return s.occupied
}

// Capacity returns the number of slots, fixed at construction.
func (s *HashSet[K]) Capacity() int {
	return s.capacity
}

// LoadFactor returns the fraction of slots that are occupied or tombstoned.
// Both kinds lengthen probe chains, so both are counted.
func (s *HashSet[K]) LoadFactor() float64 {
	return float64(s.occupied+s.tombstones) / float64(s.capacity)
}

func (s *HashSet[K]) Empty() bool {
	return s.occupied == 0
}

// Member reports whether key is in the set.
func (s *HashSet[K]) Member(key K) bool {
	return s.find(key) >= 0
}

// find walks the probe sequence of key and returns the slot holding it, or
// -1. Tombstones are stepped over, an empty slot ends the walk, and the walk
// gives up after visiting every slot once.
func (s *HashSet[K]) find(key K) int {
	if s.closed {
		return -1
	}
	seq := makeProbeSeq(s.hash(key), s.mask)
	for n := 0; n < s.capacity; n++ {
		switch s.states[seq.offset] {
		case SlotEmpty:
			return -1
		case SlotOccupied:
			if s.keys[seq.offset] == key {
				return seq.offset
			}
		}
		seq = seq.next()
	}
	return -1
}

// Bin returns a copy of whatever is stored in slot i, whatever its state.
func (s *HashSet[K]) Bin(i int) (K, error) {
	var zero K
	if s.closed {
		return zero, ErrClosed
	}
	if i < 0 || i >= s.capacity {
		return zero, errors.Wrapf(ErrOutOfRange, "bin %d not in [0, %d)", i, s.capacity)
	}
	return s.keys[i], nil
}

// Insert adds key to the set. Inserting a key that is already present does
// nothing. Inserting a new key when every slot holds a live key returns an
// error wrapping ErrOverflow; tombstoned slots are reused.
func (s *HashSet[K]) Insert(key K) error {
	if s.closed {
		return ErrClosed
	}
	if s.find(key) >= 0 {
		return nil
	}
	if s.occupied == s.capacity {
		s.logger.Debug("hash set overflow",
			zap.Int("capacity", s.capacity), zap.String("key", fmt.Sprint(key)))
		return errors.Wrapf(ErrOverflow, "inserting %v into %d occupied slots", key, s.capacity)
	}

	i := s.freeSlot(key)
	if s.states[i] == SlotTombstone {
		if s.tombstones == 0 {
			panic(errors.AssertionFailedf("reusing tombstone at slot %d with a zero tombstone count\n%s",
				i, s.DebugString()))
		}
		s.tombstones--
	}
	s.keys[i] = key
	s.states[i] = SlotOccupied
	s.occupied++
	s.maybeCheckInvariants()
	return nil
}

// freeSlot returns the first slot on the probe sequence of key that does
// not hold a live key. The caller guarantees such a slot exists.
func (s *HashSet[K]) freeSlot(key K) int {
	seq := makeProbeSeq(s.hash(key), s.mask)
	for n := 0; n < s.capacity; n++ {
		if s.states[seq.offset] != SlotOccupied {
			return seq.offset
		}
		seq = seq.next()
	}
	panic(errors.AssertionFailedf("no free slot for %v with %d of %d slots occupied",
		key, s.occupied, s.capacity))
}

// Erase removes key from the set and reports whether it was present. The
// slot it occupied becomes a tombstone rather than empty, so keys further
// along the same probe chain remain reachable.
func (s *HashSet[K]) Erase(key K) bool {
	i := s.find(key)
	if i < 0 {
		return false
	}
	s.states[i] = SlotTombstone
	s.occupied--
	s.tombstones++
	s.maybeCheckInvariants()
	return true
}

// Clear empties every slot. The capacity is unchanged.
func (s *HashSet[K]) Clear() {
	for i := range s.states {
		s.states[i] = SlotEmpty
	}
	s.occupied = 0
	s.tombstones = 0
	s.logger.Debug("hash set cleared", zap.Int("capacity", s.capacity))
	s.maybeCheckInvariants()
}

// Slots returns a copy of every bin in slot order.
func (s *HashSet[K]) Slots() []Slot[K] {
	slots := make([]Slot[K], len(s.states))
	for i := range s.states {
		slots[i] = Slot[K]{State: s.states[i], Key: s.keys[i]}
	}
	return slots
}

// String renders one token per slot, each followed by a space: "-" for an
// empty slot, "x" for a tombstone, the key otherwise. The last token keeps
// its space too.
func (s *HashSet[K]) String() string {
	var buf strings.Builder
	for _, slot := range s.Slots() {
		switch slot.State {
		case SlotEmpty:
			buf.WriteByte('-')
		case SlotTombstone:
			buf.WriteByte('x')
		default:
			fmt.Fprint(&buf, slot.Key)
		}
		buf.WriteByte(' ')
	}
	return buf.String()
}
