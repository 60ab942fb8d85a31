package destination

import "sort"

// ChangeKind discriminates cache change events.
type ChangeKind int

const (
	// Insertion reports a key that was not previously present.
	Insertion ChangeKind = iota
	// Modification reports a key whose value was replaced; Value holds
	// the new value.
	Modification
	// Removal reports a key that was deleted.
	Removal
)

// Change is a single structural difference produced by a cache mutation.
type Change[K comparable, V any] struct {
	Kind  ChangeKind
	Key   K
	Value V
}

// Entry is a key-value pair supplied to UpdateUnion.
type Entry[K comparable, V any] struct {
	Key   K
	Value V
}

// Cache is a key-value map whose mutations emit a minimal diff to a
// change callback.
//
// When resetOnNextModification is set, the next mutating call first
// synthesizes a Removal for every current entry and empties the map
// before applying its own operation. The flag recovers a clean slate
// after a stream disconnect: the first snapshot of a resumed stream then
// produces the correct diff instead of duplicate additions.
type Cache[K comparable, V any] struct {
	entries map[K]V
	less    func(K, K) bool
	equal   func(V, V) bool

	resetOnNextModification bool
}

func newCache[K comparable, V any](less func(K, K) bool, equal func(V, V) bool) *Cache[K, V] {
	return &Cache[K, V]{
		entries: make(map[K]V),
		less:    less,
		equal:   equal,
	}
}

// Len returns the number of entries.
func (c *Cache[K, V]) Len() int {
	return len(c.entries)
}

// Get returns the value stored for k.
func (c *Cache[K, V]) Get(k K) (V, bool) {
	v, ok := c.entries[k]
	return v, ok
}

// Keys returns the cache's keys in sorted order.
func (c *Cache[K, V]) Keys() []K {
	keys := make([]K, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return c.less(keys[i], keys[j]) })
	return keys
}

// SetResetOnNextModification arms the reset flag.
func (c *Cache[K, V]) SetResetOnNextModification() {
	c.resetOnNextModification = true
}

// UpdateUnion inserts or replaces the given entries, emitting an
// Insertion for each new key and a Modification for each changed value.
// Entries whose stored value already equals the new one emit nothing.
// Keys absent from entries are left untouched.
func (c *Cache[K, V]) UpdateUnion(entries []Entry[K, V], onChange func(Change[K, V])) {
	c.resetIfArmed(onChange)
	for _, e := range entries {
		prev, ok := c.entries[e.Key]
		switch {
		case !ok:
			c.entries[e.Key] = e.Value
			onChange(Change[K, V]{Kind: Insertion, Key: e.Key, Value: e.Value})
		case !c.equal(prev, e.Value):
			c.entries[e.Key] = e.Value
			onChange(Change[K, V]{Kind: Modification, Key: e.Key, Value: e.Value})
		}
	}
}

// Remove deletes the given keys, emitting a Removal for each key that
// was present.
func (c *Cache[K, V]) Remove(keys []K, onChange func(Change[K, V])) {
	c.resetIfArmed(onChange)
	for _, k := range keys {
		if _, ok := c.entries[k]; ok {
			delete(c.entries, k)
			onChange(Change[K, V]{Kind: Removal, Key: k})
		}
	}
}

// Clear removes every entry, emitting a Removal per key, and disarms the
// reset flag.
func (c *Cache[K, V]) Clear(onChange func(Change[K, V])) {
	c.drain(onChange)
	c.resetOnNextModification = false
}

func (c *Cache[K, V]) resetIfArmed(onChange func(Change[K, V])) {
	if !c.resetOnNextModification {
		return
	}
	c.drain(onChange)
	c.resetOnNextModification = false
}

// drain empties the map, emitting Removals in sorted key order so the
// sequence is deterministic within a call.
func (c *Cache[K, V]) drain(onChange func(Change[K, V])) {
	for _, k := range c.Keys() {
		delete(c.entries, k)
		onChange(Change[K, V]{Kind: Removal, Key: k})
	}
}

// exists distinguishes "not yet known" from "known absent" for a value
// learned from the control plane.
type existsState uint8

const (
	// existsUnknown: no authoritative response has been received.
	existsUnknown existsState = iota
	// existsNo: the control plane asserted the target does not exist.
	existsNo
	// existsYes: at least one authoritative response has been received.
	existsYes
)

type exists[T any] struct {
	state existsState
	val   T
}

func unknown[T any]() exists[T] { return exists[T]{state: existsUnknown} }

func no[T any]() exists[T] { return exists[T]{state: existsNo} }

func yes[T any](v T) exists[T] { return exists[T]{state: existsYes, val: v} }

func (e exists[T]) isYes() bool { return e.state == existsYes }

func (e exists[T]) value() (T, bool) {
	return e.val, e.state == existsYes
}
