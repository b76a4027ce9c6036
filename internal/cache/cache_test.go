package cache

import (
	"errors"
	"strconv"
	"testing"
)

func TestCacheGetOrCreate(t *testing.T) {
	c := New[string, int](0, nil)

	calls := 0
	create := func() (int, error) {
		calls++
		return 42, nil
	}

	v, hit, err := c.GetOrCreate("a", create)
	if err != nil || hit || v != 42 {
		t.Fatalf("first GetOrCreate = (%d, %v, %v), want (42, false, nil)", v, hit, err)
	}
	v, hit, err = c.GetOrCreate("a", create)
	if err != nil || !hit || v != 42 {
		t.Fatalf("second GetOrCreate = (%d, %v, %v), want (42, true, nil)", v, hit, err)
	}
	if calls != 1 {
		t.Errorf("create called %d times, want 1", calls)
	}
}

func TestCacheGetOrCreateErrorNotStored(t *testing.T) {
	c := New[string, int](0, nil)
	wantErr := errors.New("boom")

	if _, _, err := c.GetOrCreate("a", func() (int, error) { return 0, wantErr }); !errors.Is(err, wantErr) {
		t.Fatalf("GetOrCreate error = %v, want %v", err, wantErr)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d after failed create, want 0", c.Len())
	}
}

func TestCacheEvictionCallback(t *testing.T) {
	var evicted []string
	c := New[string, int](4, func(k string, _ int) { evicted = append(evicted, k) })

	for i := range 5 {
		c.Set(strconv.Itoa(i), i)
	}

	if c.Len() != 3 {
		t.Errorf("Len() = %d, want 3 (3/4 of limit)", c.Len())
	}
	if len(evicted) != 2 {
		t.Fatalf("evicted %v, want 2 entries", evicted)
	}
	if evicted[0] != "0" || evicted[1] != "1" {
		t.Errorf("evicted = %v, want oldest first [0 1]", evicted)
	}
	if _, ok := c.Get("4"); !ok {
		t.Error("newest entry should survive eviction")
	}
}

func TestCachePurge(t *testing.T) {
	n := 0
	c := New[int, int](0, func(int, int) { n++ })
	c.Set(1, 1)
	c.Set(2, 2)

	c.Purge()

	if n != 2 {
		t.Errorf("onEvict called %d times, want 2", n)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d after Purge, want 0", c.Len())
	}
}

func TestCacheEvictFunc(t *testing.T) {
	var evicted []int
	c := New[int, int](0, func(k, _ int) { evicted = append(evicted, k) })
	for i := range 6 {
		c.Set(i, i*10)
	}

	n := c.EvictFunc(func(k, _ int) bool { return k%2 == 0 })

	if n != 3 {
		t.Errorf("EvictFunc() = %d, want 3", n)
	}
	if len(evicted) != 3 {
		t.Errorf("onEvict called %d times, want 3", len(evicted))
	}
	for _, k := range evicted {
		if k%2 != 0 {
			t.Errorf("evicted key %d, want only even keys", k)
		}
	}
	if c.Len() != 3 {
		t.Errorf("Len() = %d, want 3", c.Len())
	}
	if _, ok := c.Get(1); !ok {
		t.Error("Get(1) missing after EvictFunc")
	}
	if got := c.Stats().Evictions; got != 3 {
		t.Errorf("Evictions = %d, want 3", got)
	}
}

func TestCacheStats(t *testing.T) {
	c := New[int, int](0, nil)
	c.Set(1, 1)
	c.Get(1)
	c.Get(2)

	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 {
		t.Errorf("Stats() hits=%d misses=%d, want 1/1", s.Hits, s.Misses)
	}
	if s.HitRate != 0.5 {
		t.Errorf("HitRate = %v, want 0.5", s.HitRate)
	}
}

func BenchmarkCacheGet(b *testing.B) {
	c := New[string, int](1000, nil)
	for i := 0; i < 100; i++ {
		c.Set(strconv.Itoa(i), i)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Get("50")
	}
}

func BenchmarkCacheGetOrCreate(b *testing.B) {
	c := New[string, int](1000, nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = c.GetOrCreate(strconv.Itoa(i%100), func() (int, error) {
			return i, nil
		})
	}
}
