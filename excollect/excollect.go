// Package excollect implements the per-connection exception collector: a
// lazily-allocated, append-only, single-writer/single-reader log of
// non-transient driver errors. Its emptiness at close time decides whether
// the owning pooled handle is invalidated.
package excollect

import (
	"sync/atomic"
)

// Classifier decides whether an error is transient (excluded from the
// collector) or not. Connection-timeout and serialization-failure kinds are
// transient; a transient-connection-unavailable kind is explicitly NOT
// treated as transient here and is still recorded.
type Classifier interface {
	// NonTransient reports whether err should be recorded.
	NonTransient(err error) bool
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(err error) bool

func (f ClassifierFunc) NonTransient(err error) bool { return f(err) }

// node is one link in the lock-free singly-linked append list.
type node struct {
	err  error
	next *node
}

// Collector is the exception collector. The zero value is usable; it
// lazily allocates its head node on first Add via compare-and-swap
// (double-checked publication).
type Collector struct {
	classifier Classifier
	head       atomic.Pointer[node]
	count      atomic.Int64
}

// New creates a Collector using classifier to decide which errors to
// record. A nil classifier records everything.
func New(classifier Classifier) *Collector {
	return &Collector{classifier: classifier}
}

// Add records err iff the classifier says it is non-transient (or no
// classifier was configured).
func (c *Collector) Add(err error) {
	if err == nil {
		return
	}
	if c.classifier != nil && !c.classifier.NonTransient(err) {
		return
	}

	n := &node{err: err}
	for {
		head := c.head.Load()
		n.next = head
		if c.head.CompareAndSwap(head, n) {
			c.count.Add(1)
			return
		}
	}
}

// IsEmpty reports whether nothing has been recorded yet. Safe to call
// concurrently with Add; a racing Add may or may not be observed.
func (c *Collector) IsEmpty() bool {
	return c.head.Load() == nil
}

// Len returns the number of recorded errors.
func (c *Collector) Len() int {
	return int(c.count.Load())
}

// Snapshot returns all recorded errors, oldest first. Intended to be called
// once, at close time.
func (c *Collector) Snapshot() []error {
	var reversed []error
	for n := c.head.Load(); n != nil; n = n.next {
		reversed = append(reversed, n.err)
	}
	// the list was built newest-first; flip it so Snapshot reads oldest-first.
	for i, j := 0, len(reversed)-1; i < j; i, j = i+1, j-1 {
		reversed[i], reversed[j] = reversed[j], reversed[i]
	}
	return reversed
}
