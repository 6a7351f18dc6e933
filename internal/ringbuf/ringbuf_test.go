package ringbuf

import (
	"reflect"
	"testing"
)

func TestBuffer_PushWithinCapacity(t *testing.T) {
	b := New[int](3)
	b.Push(1)
	b.Push(2)
	if got := b.Items(); !reflect.DeepEqual(got, []int{1, 2}) {
		t.Fatalf("got %v", got)
	}
}

func TestBuffer_EvictsOldestWhenFull(t *testing.T) {
	b := New[int](3)
	b.Push(1)
	b.Push(2)
	b.Push(3)
	b.Push(4)
	if got := b.Items(); !reflect.DeepEqual(got, []int{2, 3, 4}) {
		t.Fatalf("got %v", got)
	}
	if b.Len() != 3 {
		t.Fatalf("len: got %d", b.Len())
	}
}

func TestBuffer_ZeroCapacityNormalizedToOne(t *testing.T) {
	b := New[string](0)
	b.Push("a")
	b.Push("b")
	if got := b.Items(); !reflect.DeepEqual(got, []string{"b"}) {
		t.Fatalf("got %v", got)
	}
}
