// Package counter provides an insertion-ordered counter used wherever output
// depends on iteration order (top-N selection, first-seen detection).
package counter

import "sort"

// Entry is one key with its accumulated count.
type Entry struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Counter counts string keys while remembering the order in which keys were
// first seen. TopN selection is stable: ties are broken by first-seen order.
type Counter struct {
	counts map[string]int
	order  []string
}

// New returns an empty Counter.
func New() *Counter {
	return &Counter{counts: make(map[string]int)}
}

// Add increments key by delta, registering the key on first use.
func (c *Counter) Add(key string, delta int) {
	if _, seen := c.counts[key]; !seen {
		c.order = append(c.order, key)
	}
	c.counts[key] += delta
}

// Inc increments key by one.
func (c *Counter) Inc(key string) {
	c.Add(key, 1)
}

// Get returns the count for key, zero if never added.
func (c *Counter) Get(key string) int {
	return c.counts[key]
}

// Len returns the number of distinct keys.
func (c *Counter) Len() int {
	return len(c.order)
}

// Merge adds every entry of other into c, preserving c's first-seen order for
// keys both counters share.
func (c *Counter) Merge(other *Counter) {
	if other == nil {
		return
	}
	for _, key := range other.order {
		c.Add(key, other.counts[key])
	}
}

// AddMap merges a plain map in an arbitrary-but-deterministic way: keys are
// sorted before insertion so repeated runs produce identical first-seen order.
func (c *Counter) AddMap(m map[string]int) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		c.Add(k, m[k])
	}
}

// Entries returns all entries in first-seen order.
func (c *Counter) Entries() []Entry {
	out := make([]Entry, 0, len(c.order))
	for _, key := range c.order {
		out = append(out, Entry{Key: key, Count: c.counts[key]})
	}
	return out
}

// TopN returns the n highest-count entries, sorted by count descending with
// ties broken by first-seen order. n <= 0 or n > Len returns everything.
func (c *Counter) TopN(n int) []Entry {
	entries := c.Entries()
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Count > entries[j].Count
	})
	if n > 0 && n < len(entries) {
		entries = entries[:n]
	}
	return entries
}

// ToMap copies the counter into a plain map.
func (c *Counter) ToMap() map[string]int {
	out := make(map[string]int, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}

// FromMap builds a Counter from a plain map with deterministic ordering.
func FromMap(m map[string]int) *Counter {
	c := New()
	c.AddMap(m)
	return c
}
