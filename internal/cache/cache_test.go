package cache

import (
	"errors"
	"testing"
)

func TestLRUStickyError(t *testing.T) {
	c := New[string, []byte](2)
	c.Put("hx1", Failed[[]byte](errors.New("history too large")))

	res, ok := c.Get("hx1")
	if !ok {
		t.Fatal("expected cached entry")
	}
	if res.Err == nil {
		t.Fatal("expected sticky error to be preserved")
	}

	// Re-reading must return the same sticky error until invalidated.
	res2, _ := c.Get("hx1")
	if res2.Err == nil || res2.Err.Error() != res.Err.Error() {
		t.Fatal("sticky error changed across reads")
	}

	c.Invalidate("hx1")
	if _, ok := c.Get("hx1"); ok {
		t.Fatal("expected entry gone after invalidate")
	}
}

func TestLRUEviction(t *testing.T) {
	c := New[int, int](2)
	c.Put(1, Ok(1))
	c.Put(2, Ok(2))
	c.Put(3, Ok(3)) // evicts 1 (least recently used)

	if _, ok := c.Get(1); ok {
		t.Fatal("expected key 1 evicted")
	}
	if v, ok := c.Get(3); !ok || v.Value != 3 {
		t.Fatal("expected key 3 present")
	}
}

func TestLRUClear(t *testing.T) {
	c := New[int, int](10)
	c.Put(1, Ok(1))
	c.Put(2, Ok(2))
	c.Clear()
	if c.Len() != 0 {
		t.Fatalf("expected empty cache after Clear, got %d entries", c.Len())
	}
}
