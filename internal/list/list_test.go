package list

import "testing"

func TestPushBackAndOrder(t *testing.T) {
	l := New[int]()
	l.PushBack(1)
	l.PushBack(2)
	l.PushBack(3)

	if l.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", l.Len())
	}

	var got []int
	l.Do(func(e *Element[int]) { got = append(got, e.Value) })
	want := []int{1, 2, 3}
	for i, v := range want {
		if got[i] != v {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestRemove(t *testing.T) {
	l := New[string]()
	a := l.PushBack("a")
	l.PushBack("b")
	l.PushBack("c")

	l.Remove(a)
	if l.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", l.Len())
	}

	var got []string
	l.Do(func(e *Element[string]) { got = append(got, e.Value) })
	if len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Fatalf("got %v, want [b c]", got)
	}

	// Removing again is a no-op.
	l.Remove(a)
	if l.Len() != 2 {
		t.Fatalf("Len() after double remove = %d, want 2", l.Len())
	}
}

func TestDoSafeDuringRemoval(t *testing.T) {
	l := New[int]()
	for i := 0; i < 5; i++ {
		l.PushBack(i)
	}

	var visited []int
	l.Do(func(e *Element[int]) {
		visited = append(visited, e.Value)
		if e.Value%2 == 0 {
			l.Remove(e)
		}
	})

	if len(visited) != 5 {
		t.Fatalf("visited %d elements, want 5", len(visited))
	}
	if l.Len() != 2 {
		t.Fatalf("Len() after removal pass = %d, want 2", l.Len())
	}

	var remaining []int
	l.Do(func(e *Element[int]) { remaining = append(remaining, e.Value) })
	if len(remaining) != 2 || remaining[0] != 1 || remaining[1] != 3 {
		t.Fatalf("remaining = %v, want [1 3]", remaining)
	}
}

func TestFrontEmpty(t *testing.T) {
	l := New[int]()
	if l.Front() != nil {
		t.Fatal("Front() on empty list should be nil")
	}
}
