package db

import (
	"math"
	"math/rand"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSet[K Key](t *testing.T, power int) *HashSet[K] {
	t.Helper()
	s, err := New[K](power)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})
	return s
}

func TestHashSetNew(t *testing.T) {
	s := newTestSet[int](t, DefaultPower)
	assert.Equal(t, 32, s.Capacity(), "default capacity should be 2^5")
	assert.Equal(t, 0, s.Size())
	assert.True(t, s.Empty())
	assert.Equal(t, 0.0, s.LoadFactor())
	for _, slot := range s.Slots() {
		assert.Equal(t, SlotEmpty, slot.State)
	}

	for _, power := range []int{0, -1, MaxPower + 1} {
		_, err := New[int](power)
		assert.True(t, errors.Is(err, ErrInvalidPower), "power %d should be rejected", power)
	}
}

func TestHashSetInsertMember(t *testing.T) {
	s := newTestSet[int](t, 4)
	for _, k := range []int{1, 17, 33, -5, 100} {
		require.NoError(t, s.Insert(k))
		assert.True(t, s.Member(k), "key %d should be a member after insert", k)
	}
	assert.Equal(t, 5, s.Size())
	assert.False(t, s.Member(2))
	assert.False(t, s.Member(49), "49 shares a home slot with 1 but was never inserted")
	require.NoError(t, s.checkInvariants())
}

func TestHashSetProbeSequencePlacement(t *testing.T) {
	s := newTestSet[int](t, 3)
	require.NoError(t, s.Insert(3))
	require.NoError(t, s.Insert(11))
	require.NoError(t, s.Insert(19))

	for i, want := range map[int]int{3: 3, 4: 11, 6: 19} {
		got, err := s.Bin(i)
		require.NoError(t, err)
		assert.Equal(t, want, got, "bin(%d)", i)
	}
	assert.Equal(t, "- - - 3 11 - 19 - ", s.String())
}

func TestHashSetDuplicateInsert(t *testing.T) {
	s := newTestSet[int](t, 1)
	require.NoError(t, s.Insert(0))
	require.NoError(t, s.Insert(1))

	// The table is full of live keys, yet a duplicate is still a no-op.
	require.NoError(t, s.Insert(0))
	require.NoError(t, s.Insert(1))
	assert.Equal(t, 2, s.Size())

	err := s.Insert(2)
	assert.True(t, errors.Is(err, ErrOverflow), "expected overflow, got %v", err)
	assert.Equal(t, 2, s.Size())
	assert.False(t, s.Member(2))
}

func TestHashSetOverflowIgnoresTombstones(t *testing.T) {
	s := newTestSet[int](t, 2)
	for k := 0; k < 4; k++ {
		require.NoError(t, s.Insert(k))
	}
	assert.True(t, errors.Is(s.Insert(4), ErrOverflow))

	require.True(t, s.Erase(0))
	assert.Equal(t, 1.0, s.LoadFactor(), "tombstones count toward the load factor")
	require.NoError(t, s.Insert(4), "a tombstoned slot can take a new key")
	assert.Equal(t, "4 1 2 3 ", s.String())
	assert.Equal(t, 0, s.tombstones)
	assert.True(t, errors.Is(s.Insert(5), ErrOverflow))
}

func TestHashSetErase(t *testing.T) {
	s := newTestSet[int](t, 3)
	require.NoError(t, s.Insert(3))
	require.NoError(t, s.Insert(11))
	require.NoError(t, s.Insert(19))

	assert.True(t, s.Erase(11))
	assert.False(t, s.Erase(11), "a second erase finds nothing")
	assert.False(t, s.Member(11))
	assert.True(t, s.Member(19), "keys past a tombstone stay reachable")
	assert.False(t, s.Erase(42))

	assert.Equal(t, 2, s.Size())
	assert.Equal(t, 1, s.tombstones)
	assert.Equal(t, 3.0/8.0, s.LoadFactor())
	assert.Equal(t, "- - - 3 x - 19 - ", s.String())
	require.NoError(t, s.checkInvariants())
}

func TestHashSetReuseTombstone(t *testing.T) {
	s := newTestSet[int](t, 3)
	require.NoError(t, s.Insert(3))
	require.NoError(t, s.Insert(11))
	require.True(t, s.Erase(3))
	require.Equal(t, 1, s.tombstones)

	require.NoError(t, s.Insert(19))
	got, err := s.Bin(3)
	require.NoError(t, err)
	assert.Equal(t, 19, got, "19 should land on the tombstone left by 3")
	assert.Equal(t, 0, s.tombstones)
	assert.Equal(t, 2, s.Size())
	assert.Equal(t, "- - - 19 11 - - - ", s.String())
}

func TestHashSetClear(t *testing.T) {
	s := newTestSet[int](t, 3)
	keys := []int{1, 2, 9, 17}
	for _, k := range keys {
		require.NoError(t, s.Insert(k))
	}
	s.Erase(2)
	s.Clear()

	assert.Equal(t, 0, s.Size())
	assert.True(t, s.Empty())
	assert.Equal(t, 8, s.Capacity())
	assert.Equal(t, 0.0, s.LoadFactor())
	for _, k := range keys {
		assert.False(t, s.Member(k), "key %d should be gone after clear", k)
	}
	assert.Equal(t, "- - - - - - - - ", s.String())

	// Bin is a raw peek: the stale key is still physically there.
	got, err := s.Bin(1)
	require.NoError(t, err)
	assert.Equal(t, 1, got)
}

func TestHashSetBinOutOfRange(t *testing.T) {
	s := newTestSet[int](t, 2)
	for _, i := range []int{-1, 4, 100} {
		_, err := s.Bin(i)
		assert.True(t, errors.Is(err, ErrOutOfRange), "bin(%d) should be out of range", i)
	}
	_, err := s.Bin(3)
	assert.NoError(t, err)
}

func TestHashSetNegativeAndFloatKeys(t *testing.T) {
	ints := newTestSet[int](t, 3)
	require.NoError(t, ints.Insert(-1))
	got, err := ints.Bin(7)
	require.NoError(t, err)
	assert.Equal(t, -1, got, "-1 mod 8 should wrap to slot 7")

	floats := newTestSet[float64](t, 3)
	require.NoError(t, floats.Insert(3.7))
	require.NoError(t, floats.Insert(-2.5))
	require.NoError(t, floats.Insert(3.2))
	assert.True(t, floats.Member(3.7))
	assert.False(t, floats.Member(3.0), "keys sharing a projection are still distinct")
	assert.Equal(t, "- - - 3.7 3.2 - -2.5 - ", floats.String())
}

func TestHashSetSlotsIsACopy(t *testing.T) {
	s := newTestSet[int](t, 1)
	require.NoError(t, s.Insert(1))
	slots := s.Slots()
	slots[1].Key = 99
	slots[1].State = SlotEmpty
	assert.True(t, s.Member(1))
	assert.Equal(t, []Slot[int]{{State: SlotEmpty}, {State: SlotOccupied, Key: 1}}, s.Slots())
}

func TestHashSetStringTrailsEveryToken(t *testing.T) {
	s := newTestSet[int](t, 1)
	assert.Equal(t, "- - ", s.String())

	require.NoError(t, s.Insert(1))
	assert.Equal(t, "- 1 ", s.String())

	require.True(t, s.Erase(1))
	assert.Equal(t, "- x ", s.String())
}

func TestHashSetNaNKeys(t *testing.T) {
	s := newTestSet[float64](t, 2)
	nan := math.NaN()

	// NaN never equals a stored key, so every insert takes a new slot.
	require.NoError(t, s.Insert(nan))
	require.NoError(t, s.Insert(nan))
	assert.Equal(t, 2, s.Size())
	assert.False(t, s.Member(nan))
	assert.False(t, s.Erase(nan))
	require.NoError(t, s.checkInvariants())
	assert.Equal(t, "NaN NaN - - ", s.String())
}

func TestHashSetClose(t *testing.T) {
	a := NewHeapAllocator()
	s, err := New[int](3, WithAllocator(a))
	require.NoError(t, err)
	assert.Equal(t, arenaSize[int](8), a.UsedMemory())

	require.NoError(t, s.Insert(1))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "close is idempotent")
	assert.Equal(t, int64(0), a.UsedMemory())

	assert.False(t, s.Member(1))
	assert.False(t, s.Erase(1))
	assert.True(t, errors.Is(s.Insert(2), ErrClosed))
	_, err = s.Bin(0)
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestHashSetAllocatorExhaustion(t *testing.T) {
	tr := NewTracker(WithMaxMemory(arenaSize[int](8)))
	tr.StartRecording()

	s, err := New[int](3, WithAllocator(tr))
	require.NoError(t, err)

	_, err = New[int](1, WithAllocator(tr))
	assert.True(t, errors.Is(err, ErrOutOfMemory), "second arena should not fit, got %v", err)

	require.NoError(t, s.Close())
	assert.Equal(t, int64(0), tr.InUse())
}

// The tombstone count can only reach zero with a tombstone still in the table
// if the bookkeeping is already broken; that must be loud, not clamped.
func TestHashSetTombstoneFloorIsAnAssertion(t *testing.T) {
	s := newTestSet[int](t, 2)
	require.NoError(t, s.Insert(1))
	require.True(t, s.Erase(1))
	s.tombstones = 0

	assert.Panics(t, func() {
		_ = s.Insert(5)
	})
}

// TestHashSetRandomized checks the set against a map under a random mix of
// operations, including the counters behind LoadFactor.
func TestHashSetRandomized(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, power := range []int{1, 3, 6} {
		s := newTestSet[int](t, power)
		ref := make(map[int]struct{})
		keyRange := 3 * s.Capacity()

		for op := 0; op < 2000; op++ {
			k := rng.Intn(2*keyRange) - keyRange
			switch rng.Intn(10) {
			case 0:
				s.Clear()
				ref = make(map[int]struct{})
			case 1, 2, 3, 4, 5:
				_, present := ref[k]
				err := s.Insert(k)
				if !present && len(ref) == s.Capacity() {
					require.True(t, errors.Is(err, ErrOverflow), "op %d: insert %d", op, k)
					continue
				}
				require.NoError(t, err, "op %d: insert %d", op, k)
				ref[k] = struct{}{}
			default:
				_, present := ref[k]
				require.Equal(t, present, s.Erase(k), "op %d: erase %d", op, k)
				delete(ref, k)
			}

			require.Equal(t, len(ref), s.Size())
			require.LessOrEqual(t, s.occupied+s.tombstones, s.Capacity())
			require.LessOrEqual(t, s.LoadFactor(), 1.0)
			require.NoError(t, s.checkInvariants(), "op %d", op)
		}

		for k := -keyRange; k < keyRange; k++ {
			_, present := ref[k]
			require.Equal(t, present, s.Member(k), "member %d", k)
		}
	}
}
