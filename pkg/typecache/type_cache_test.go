package typecache

import (
	"sync"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	t.Run("valid parameters", func(t *testing.T) {
		c := New(100, 5*time.Minute)
		if c.maxSize != 100 {
			t.Errorf("maxSize = %d, want 100", c.maxSize)
		}
		if !c.enabled {
			t.Error("cache should be enabled by default")
		}
	})

	t.Run("zero maxSize uses default", func(t *testing.T) {
		c := New(0, time.Minute)
		if c.maxSize != 1000 {
			t.Errorf("maxSize = %d, want 1000 (default)", c.maxSize)
		}
	})
}

func TestGetPut(t *testing.T) {
	c := New(100, time.Minute)
	res := "nepomuk:/res/abc"

	if _, ok := c.Get(res); ok {
		t.Fatal("expected miss before Put")
	}

	c.Put(res, []string{"http://example.org/Tag"})

	types, ok := c.Get(res)
	if !ok {
		t.Fatal("expected hit after Put")
	}
	if len(types) != 1 || types[0] != "http://example.org/Tag" {
		t.Errorf("Get returned %v", types)
	}
}

func TestTTLExpiry(t *testing.T) {
	c := New(100, 30*time.Millisecond)
	c.Put("r", []string{"T"})

	if _, ok := c.Get("r"); !ok {
		t.Error("entry should exist before TTL")
	}
	time.Sleep(60 * time.Millisecond)
	if _, ok := c.Get("r"); ok {
		t.Error("entry should be expired after TTL")
	}
}

func TestInvalidate(t *testing.T) {
	c := New(100, time.Hour)
	c.Put("r1", []string{"T1"})
	c.Put("r2", []string{"T2"})

	c.Invalidate("r1")

	if _, ok := c.Get("r1"); ok {
		t.Error("invalidated entry should be gone")
	}
	if _, ok := c.Get("r2"); !ok {
		t.Error("other entry should survive")
	}
}

func TestLRUEviction(t *testing.T) {
	c := New(2, time.Hour)
	c.Put("r1", []string{"T1"})
	c.Put("r2", []string{"T2"})
	c.Get("r1") // promote r1
	c.Put("r3", []string{"T3"})

	if _, ok := c.Get("r2"); ok {
		t.Error("r2 should have been evicted")
	}
	if _, ok := c.Get("r1"); !ok {
		t.Error("r1 should still be cached (promoted)")
	}
}

func TestClear(t *testing.T) {
	c := New(100, time.Hour)
	c.Put("r1", []string{"T1"})
	c.Put("r2", []string{"T2"})
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len = %d after Clear, want 0", c.Len())
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New(1000, time.Hour)
	const goroutines = 50
	var wg sync.WaitGroup
	wg.Add(goroutines * 2)
	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				c.Put(string(rune('a'+id%26)), []string{"T"})
			}
		}(i)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				c.Get(string(rune('a' + id%26)))
			}
		}(i)
	}
	wg.Wait()

	stats := c.Stats()
	if stats.Hits+stats.Misses == 0 {
		t.Error("expected some recorded operations")
	}
}
