package snapshot

import (
	"sync"
	"sync/atomic"
	"time"
)

// Cache holds the current Snapshot of one device.
//
// Readers call Load and never block. A single writer at a time builds the
// next snapshot through a Batch and publishes it with one pointer swap, so a
// reader sees either the whole previous cycle or the whole new one.
type Cache struct {
	mu      sync.Mutex
	current atomic.Pointer[Snapshot]
}

// NewCache returns a cache holding the empty snapshot.
func NewCache() *Cache {
	c := &Cache{}
	c.current.Store(&Snapshot{})
	return c
}

// Load returns the latest published snapshot.
func (c *Cache) Load() Snapshot {
	return *c.current.Load()
}

// Begin starts building the next snapshot from the current one. The caller
// must finish with Commit or Discard; other writers block until then.
func (c *Cache) Begin(at time.Time) *Batch {
	c.mu.Lock()
	next := *c.current.Load()
	failures := make(map[Kind]error, len(next.Failures))
	for k, v := range next.Failures {
		failures[k] = v
	}
	next.Failures = failures
	return &Batch{cache: c, next: next, at: at}
}

// Batch accumulates the results of one poll cycle.
type Batch struct {
	cache *Cache
	next  Snapshot
	at    time.Time
	done  bool
}

// ApplyData records the outcome of a data fetch. Data fetches are the
// health signal of a cycle, so they also set or clear LastError.
func (b *Batch) ApplyData(res Resource, err error) {
	if err != nil {
		b.next.LastError = err
		b.next.Failures[KindData] = err
		return
	}
	b.next.Data = res
	b.next.DataFetchedAt = b.at
	b.next.LastSuccessAt = b.at
	b.next.LastError = nil
	delete(b.next.Failures, KindData)
}

// ApplyInfo records the outcome of an info fetch. The first successful
// fetch establishes Identity; later ones only refresh Info.
func (b *Batch) ApplyInfo(res Resource, err error) {
	if err != nil {
		b.next.Failures[KindInfo] = err
		return
	}
	b.next.Info = res
	b.next.InfoFetchedAt = b.at
	delete(b.next.Failures, KindInfo)
	if !b.next.Identity.Known() {
		b.next.Identity = identityFrom(res)
	}
}

// ApplySetup records the outcome of a setup fetch.
func (b *Batch) ApplySetup(res Resource, err error) {
	if err != nil {
		b.next.Failures[KindSetup] = err
		return
	}
	b.next.Setup = res
	b.next.SetupFetchedAt = b.at
	delete(b.next.Failures, KindSetup)
	b.next.SetupCycle = b.next.Cycle + 1
}

// Apply dispatches to the Apply method for kind.
func (b *Batch) Apply(kind Kind, res Resource, err error) {
	switch kind {
	case KindData:
		b.ApplyData(res, err)
	case KindInfo:
		b.ApplyInfo(res, err)
	case KindSetup:
		b.ApplySetup(res, err)
	}
}

// Commit publishes the batch and returns the new snapshot. Calling Commit or
// Discard again is a no-op that returns the current snapshot.
func (b *Batch) Commit() Snapshot {
	if b.done {
		return b.cache.Load()
	}
	b.done = true
	defer b.cache.mu.Unlock()

	b.next.Cycle++
	published := b.next
	b.cache.current.Store(&published)
	return published
}

// Discard releases the writer lock without publishing anything.
func (b *Batch) Discard() {
	if b.done {
		return
	}
	b.done = true
	b.cache.mu.Unlock()
}
