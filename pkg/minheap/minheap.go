// Package minheap implements a small binary min-heap used as the merge
// frontier for the LSM engine's k-way segment compaction.
package minheap

import "errors"

// ErrEmpty is returned by Pop when the heap has no elements.
var ErrEmpty = errors.New("minheap: pop from an empty heap")

// Item is a single heap element. Less defines the heap's total order: an
// Item that reports Less(other) == true pops before other.
type Item interface {
	Less(other Item) bool
}

// Heap is a dense-array binary min-heap over Item values.
type Heap struct {
	data []Item
}

// New creates an empty heap.
func New() *Heap {
	return &Heap{}
}

// Len returns the number of elements currently in the heap.
func (h *Heap) Len() int {
	return len(h.data)
}

// Push inserts item and restores the heap property by sifting up.
func (h *Heap) Push(item Item) {
	h.data = append(h.data, item)
	h.siftUp(len(h.data) - 1)
}

// Pop removes and returns the smallest item. It returns ErrEmpty if the heap
// has no elements.
func (h *Heap) Pop() (Item, error) {
	if len(h.data) == 0 {
		return nil, ErrEmpty
	}
	top := h.data[0]
	last := len(h.data) - 1
	h.data[0] = h.data[last]
	h.data = h.data[:last]
	if len(h.data) > 0 {
		h.siftDown(0)
	}
	return top, nil
}

func (h *Heap) siftUp(index int) {
	for index > 0 {
		parent := (index - 1) / 2
		if !h.data[index].Less(h.data[parent]) {
			return
		}
		h.data[index], h.data[parent] = h.data[parent], h.data[index]
		index = parent
	}
}

func (h *Heap) siftDown(index int) {
	n := len(h.data)
	for {
		left := 2*index + 1
		right := 2*index + 2
		smallest := index

		if left < n && h.data[left].Less(h.data[smallest]) {
			smallest = left
		}
		if right < n && h.data[right].Less(h.data[smallest]) {
			smallest = right
		}
		if smallest == index {
			return
		}
		h.data[index], h.data[smallest] = h.data[smallest], h.data[index]
		index = smallest
	}
}
