// Package setcache provides a generic N-way LRU set-associative store. It is
// the shared engine behind the TLB, page-walk-cache, and data-cache
// specializations: each supplies its own set-index function and its own
// eviction action instead of subclassing a common base, following Go's
// composition-over-inheritance idiom.
package setcache

// Config describes the shape of a set-associative cache.
type Config struct {
	// NumSets is the number of sets.
	NumSets int
	// Ways is the number of entries (ways) per set.
	Ways int
}

// entry is one cache line's bookkeeping.
type entry[Value any] struct {
	tag   uint64
	value Value
	valid bool
	dirty bool
	lru   uint64
}

// Cache is a generic N-way LRU set-associative store. Tags are always
// uint64 (every specialization in this module keys off an address-derived
// integer); Value is free to vary.
//
// lru is a global counter, pre-incremented on every touch (hit or fill);
// the victim for a miss is the way with the smallest stamp, with the first
// invalid way preferred over computing a minimum.
type Cache[Value any] struct {
	name string
	cfg  Config

	setIndex func(tag uint64) int
	onEvict  func(tag uint64, value Value)

	sets [][]entry[Value]

	accesses uint64
	hits     uint64
	globalLRU uint64
}

// New creates a cache with num_sets*ways entries, all initially invalid.
// setIndex maps a tag to a set in [0, cfg.NumSets). onEvict, if non-nil, is
// called when a dirty, valid entry is evicted to make room for a new tag; it
// is never called for clean or invalid evictions.
func New[Value any](name string, cfg Config, setIndex func(tag uint64) int, onEvict func(tag uint64, value Value)) *Cache[Value] {
	sets := make([][]entry[Value], cfg.NumSets)
	for i := range sets {
		sets[i] = make([]entry[Value], cfg.Ways)
	}

	return &Cache[Value]{
		name:     name,
		cfg:      cfg,
		setIndex: setIndex,
		onEvict:  onEvict,
		sets:     sets,
	}
}

// Name returns the cache's name, used in report rendering.
func (c *Cache[Value]) Name() string { return c.name }

// NumSets returns the number of sets.
func (c *Cache[Value]) NumSets() int { return c.cfg.NumSets }

// Ways returns the associativity.
func (c *Cache[Value]) Ways() int { return c.cfg.Ways }

// Size returns the total number of entries (num_sets * ways).
func (c *Cache[Value]) Size() int { return c.cfg.NumSets * c.cfg.Ways }

// Accesses returns the number of lookups performed.
func (c *Cache[Value]) Accesses() uint64 { return c.accesses }

// Hits returns the number of lookups that hit.
func (c *Cache[Value]) Hits() uint64 { return c.hits }

// HitRate returns Hits/Accesses, or 0 if there have been no accesses.
func (c *Cache[Value]) HitRate() float64 {
	if c.accesses == 0 {
		return 0
	}
	return float64(c.hits) / float64(c.accesses)
}

// GlobalLRU returns the current value of the per-cache LRU counter. Data
// caches use this to classify misses as cold vs. capacity/conflict.
func (c *Cache[Value]) GlobalLRU() uint64 { return c.globalLRU }

// findLRUWay returns the way to evict: the first invalid way, or else the
// way with the smallest LRU stamp.
func (c *Cache[Value]) findLRUWay(set int) int {
	lruWay := 0
	min := c.sets[set][0].lru
	for way := 0; way < c.cfg.Ways; way++ {
		if !c.sets[set][way].valid {
			return way
		}
		if c.sets[set][way].lru < min {
			min = c.sets[set][way].lru
			lruWay = way
		}
	}
	return lruWay
}

func (c *Cache[Value]) touch(set, way int) {
	c.globalLRU++
	c.sets[set][way].lru = c.globalLRU
}

// Lookup increments Accesses; on a tag match it increments Hits, refreshes
// the entry's LRU stamp, and returns (value, true). On a miss it returns
// the zero value and false.
func (c *Cache[Value]) Lookup(tag uint64) (Value, bool) {
	c.accesses++
	set := c.setIndex(tag)

	for way := 0; way < c.cfg.Ways; way++ {
		e := &c.sets[set][way]
		if e.valid && e.tag == tag {
			c.hits++
			c.touch(set, way)
			return e.value, true
		}
	}

	var zero Value
	return zero, false
}

// Insert writes value under tag. If tag is already present, its value is
// overwritten and its dirty bit is OR'd with isWrite. Otherwise the LRU way
// in the set is evicted (onEvict fires only if the victim was valid and
// dirty) and the new entry is installed with dirty = isWrite.
func (c *Cache[Value]) Insert(tag uint64, value Value, isWrite bool) {
	set := c.setIndex(tag)

	for way := 0; way < c.cfg.Ways; way++ {
		e := &c.sets[set][way]
		if e.valid && e.tag == tag {
			e.value = value
			if isWrite {
				e.dirty = true
			}
			c.touch(set, way)
			return
		}
	}

	victim := c.findLRUWay(set)
	e := &c.sets[set][victim]

	evictValid := e.valid
	evictDirty := e.dirty
	evictTag := e.tag
	evictValue := e.value

	e.tag = tag
	e.value = value
	e.valid = true
	e.dirty = isWrite
	c.touch(set, victim)

	if evictValid && evictDirty && c.onEvict != nil {
		c.onEvict(evictTag, evictValue)
	}
}

// VictimWayIsNonZero reports whether the way findLRUWay would currently
// choose for tag's set is anything but way 0. DataCache's miss
// classification heuristic (spec.md §4.1) uses this to distinguish capacity
// from conflict misses; it is exposed here because only the generic engine
// knows which way holds the smallest LRU stamp.
func (c *Cache[Value]) VictimWayIsNonZero(tag uint64) bool {
	set := c.setIndex(tag)
	return c.findLRUWay(set) != 0
}
