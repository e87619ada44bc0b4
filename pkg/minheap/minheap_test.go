package minheap

import "testing"

type intItem int

func (i intItem) Less(other Item) bool {
	return i < other.(intItem)
}

func TestHeapOrder(t *testing.T) {
	h := New()
	values := []int{5, 3, 8, 1, 9, 2, 7}
	for _, v := range values {
		h.Push(intItem(v))
	}

	var popped []int
	for h.Len() > 0 {
		item, err := h.Pop()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		popped = append(popped, int(item.(intItem)))
	}

	for i := 1; i < len(popped); i++ {
		if popped[i-1] > popped[i] {
			t.Fatalf("heap did not pop in non-decreasing order: %v", popped)
		}
	}
	if len(popped) != len(values) {
		t.Fatalf("expected %d elements, popped %d", len(values), len(popped))
	}
}

func TestPopEmptyIsError(t *testing.T) {
	h := New()
	if _, err := h.Pop(); err != ErrEmpty {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestLen(t *testing.T) {
	h := New()
	if h.Len() != 0 {
		t.Fatalf("expected empty heap to have len 0")
	}
	h.Push(intItem(1))
	h.Push(intItem(2))
	if h.Len() != 2 {
		t.Fatalf("expected len 2, got %d", h.Len())
	}
}
