package db

import (
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/olekukonko/tablewriter"
	"go.uber.org/zap"
)

// DefaultMaxAllocations bounds the number of records a Tracker keeps.
const DefaultMaxAllocations = 8192

// AllocID identifies one allocation made through an Allocator.
type AllocID uint64

// Allocator hands out the memory backing a HashSet. Alloc may refuse with
// an error wrapping ErrOutOfMemory; Free of an unknown or already freed id
// returns an error wrapping ErrInvalidFree.
type Allocator interface {
	Alloc(tag string, size int64) (AllocID, error)
	Free(id AllocID) error
}

// HeapAllocator leaves memory to the Go runtime and only counts the bytes
// handed out. It never refuses an allocation and is safe for concurrent use.
// An allocation stays counted until it is freed, so a HashSet must be Closed
// to release its share, including sets using the package default.
type HeapAllocator struct {
	mu         sync.Mutex
	nextID     AllocID
	live       map[AllocID]int64
	usedMemory int64
}

var defaultAllocator = NewHeapAllocator()

func NewHeapAllocator() *HeapAllocator {
	return &HeapAllocator{live: make(map[AllocID]int64)}
}

func (a *HeapAllocator) Alloc(tag string, size int64) (AllocID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextID++
	a.live[a.nextID] = size
	a.usedMemory += size
	return a.nextID, nil
}

func (a *HeapAllocator) Free(id AllocID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	size, ok := a.live[id]
	if !ok {
		return errors.Wrapf(ErrInvalidFree, "allocation %d is not live", id)
	}
	delete(a.live, id)
	a.usedMemory -= size
	return nil
}

// UsedMemory returns the number of bytes currently allocated.
func (a *HeapAllocator) UsedMemory() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.usedMemory
}

type allocation struct {
	id      AllocID
	tag     string
	size    int64
	deleted bool
}

// Tracker is an Allocator that records every allocation made while
// recording is on, so that leaks, double frees and frees of unknown memory
// can be reported. It holds at most maxAllocations records; past that, and
// past the optional byte limit, Alloc fails with ErrOutOfMemory.
//
// A Tracker is NOT goroutine-safe.
type Tracker struct {
	maxAllocations int
	maxMemory      int64
	record         bool

	nextID  AllocID
	records map[AllocID]*allocation
	order   []AllocID

	allocated   int64
	deallocated int64
	stored      int64

	logger *zap.Logger
}

type TrackerOption func(*Tracker)

// WithMaxAllocations caps the number of allocation records.
func WithMaxAllocations(n int) TrackerOption {
	return func(t *Tracker) {
		t.maxAllocations = n
	}
}

// WithMaxMemory caps the bytes in use. Zero means no limit.
func WithMaxMemory(n int64) TrackerOption {
	return func(t *Tracker) {
		t.maxMemory = n
	}
}

func WithTrackerLogger(logger *zap.Logger) TrackerOption {
	return func(t *Tracker) {
		t.logger = logger
	}
}

func NewTracker(opts ...TrackerOption) *Tracker {
	t := &Tracker{
		maxAllocations: DefaultMaxAllocations,
		records:        make(map[AllocID]*allocation),
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) StartRecording() {
	t.record = true
}

func (t *Tracker) StopRecording() {
	t.record = false
}

func (t *Tracker) Recording() bool {
	return t.record
}

func (t *Tracker) Alloc(tag string, size int64) (AllocID, error) {
	t.nextID++
	id := t.nextID
	if !t.record {
		return id, nil
	}

	if len(t.records) >= t.maxAllocations {
		t.logger.Warn("allocation table full", zap.Int("records", len(t.records)))
		return 0, errors.Wrapf(ErrOutOfMemory, "more than %d allocations", t.maxAllocations)
	}
	if t.maxMemory > 0 && t.InUse()+size > t.maxMemory {
		t.logger.Warn("memory limit reached",
			zap.Int64("size", size), zap.Int64("inUse", t.InUse()), zap.Int64("limit", t.maxMemory))
		return 0, errors.Wrapf(ErrOutOfMemory, "allocating %d bytes with %d of %d in use", size, t.InUse(), t.maxMemory)
	}

	t.records[id] = &allocation{id: id, tag: tag, size: size}
	t.order = append(t.order, id)
	t.allocated += size
	return id, nil
}

func (t *Tracker) Free(id AllocID) error {
	if !t.record {
		return nil
	}

	rec, ok := t.records[id]
	if !ok {
		t.logger.Warn("freeing memory that was never allocated", zap.Uint64("id", uint64(id)))
		return errors.Wrapf(ErrInvalidFree, "allocation %d was never recorded", id)
	}
	if rec.deleted {
		t.logger.Warn("freeing the same allocation twice", zap.Uint64("id", uint64(id)))
		return errors.Wrapf(ErrInvalidFree, "allocation %d freed twice", id)
	}
	rec.deleted = true
	t.deallocated += rec.size
	return nil
}

// InUse returns the bytes allocated minus the bytes deallocated.
func (t *Tracker) InUse() int64 {
	return t.allocated - t.deallocated
}

// Store remembers the current InUse value for a later Change.
func (t *Tracker) Store() {
	t.stored = t.InUse()
}

// Change returns how InUse moved since the last Store.
func (t *Tracker) Change() int64 {
	return t.InUse() - t.stored
}

func (t *Tracker) Summary(w io.Writer) {
	fmt.Fprintf(w, "Memory allocated minus memory deallocated: %d\n", t.InUse())
}

// Details writes the allocation totals followed by one row per record.
func (t *Tracker) Details(w io.Writer) {
	fmt.Fprintln(w, "SUMMARY OF MEMORY ALLOCATION:")
	fmt.Fprintf(w, "  Memory allocated:   %d\n", t.allocated)
	fmt.Fprintf(w, "  Memory deallocated: %d\n", t.deallocated)
	fmt.Fprintln(w, "INDIVIDUAL REPORT OF MEMORY ALLOCATION:")

	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"ID", "TAG", "DELETED", "BYTES"})
	for _, id := range t.order {
		rec := t.records[id]
		deleted := "N"
		if rec.deleted {
			deleted = "Y"
		}
		table.Append([]string{
			strconv.FormatUint(uint64(rec.id), 10),
			rec.tag,
			deleted,
			strconv.FormatInt(rec.size, 10),
		})
	}
	table.Render()
}
