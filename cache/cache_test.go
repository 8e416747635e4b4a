// Copyright 2026 The krnl Authors
// SPDX-License-Identifier: BSD-3-Clause

package cache

import (
	"fmt"
	"sync"
	"testing"
)

func TestGetSet(t *testing.T) {
	c := NewSharded[string, int](8, StringHasher)

	if _, ok := c.Get("missing"); ok {
		t.Fatal("expected miss on empty cache")
	}

	c.Set("a", 1)
	c.Set("b", 2)

	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("Get(a) = %d, %v; want 1, true", v, ok)
	}
	if v, ok := c.Get("b"); !ok || v != 2 {
		t.Fatalf("Get(b) = %d, %v; want 2, true", v, ok)
	}
	if c.Len() != 2 {
		t.Fatalf("Len() = %d; want 2", c.Len())
	}
}

func TestSetOverwrite(t *testing.T) {
	c := NewSharded[string, int](8, StringHasher)
	c.Set("k", 1)
	c.Set("k", 2)
	if v, _ := c.Get("k"); v != 2 {
		t.Fatalf("Get(k) = %d; want 2", v)
	}
	if c.Len() != 1 {
		t.Fatalf("Len() = %d; want 1", c.Len())
	}
}

func TestGetOrCreate(t *testing.T) {
	c := NewSharded[string, int](8, StringHasher)

	calls := 0
	create := func() (int, error) {
		calls++
		return 42, nil
	}

	v, err := c.GetOrCreate("k", create)
	if err != nil || v != 42 {
		t.Fatalf("GetOrCreate = %d, %v; want 42, nil", v, err)
	}
	v, err = c.GetOrCreate("k", create)
	if err != nil || v != 42 {
		t.Fatalf("GetOrCreate = %d, %v; want 42, nil", v, err)
	}
	if calls != 1 {
		t.Fatalf("create called %d times; want 1", calls)
	}
}

func TestGetOrCreateError(t *testing.T) {
	c := NewSharded[string, int](8, StringHasher)

	wantErr := fmt.Errorf("build failed")
	_, err := c.GetOrCreate("k", func() (int, error) { return 0, wantErr })
	if err != wantErr {
		t.Fatalf("err = %v; want %v", err, wantErr)
	}
	if _, ok := c.Get("k"); ok {
		t.Fatal("failed create must not cache a value")
	}
}

func TestLRUEviction(t *testing.T) {
	// Single-shard hasher so all keys contend for the same capacity.
	c := NewSharded[string, int](2, func(string) uint64 { return 0 })

	var evicted []string
	c.OnEvict = func(k string, _ int) { evicted = append(evicted, k) }

	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a") // b is now least recently used
	c.Set("c", 3)

	if len(evicted) != 1 || evicted[0] != "b" {
		t.Fatalf("evicted = %v; want [b]", evicted)
	}
	if _, ok := c.Get("b"); ok {
		t.Fatal("b should have been evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a should survive eviction")
	}
	if _, ok := c.Get("c"); !ok {
		t.Fatal("c should be present")
	}
}

func TestDeleteSkipsCallback(t *testing.T) {
	c := NewSharded[string, int](8, StringHasher)
	c.OnEvict = func(string, int) { t.Fatal("OnEvict must not fire for Delete") }

	c.Set("k", 7)
	v, ok := c.Delete("k")
	if !ok || v != 7 {
		t.Fatalf("Delete(k) = %d, %v; want 7, true", v, ok)
	}
	if _, ok := c.Delete("k"); ok {
		t.Fatal("second Delete should report missing")
	}
}

func TestClearFiresCallback(t *testing.T) {
	c := NewSharded[string, int](8, StringHasher)

	var n int
	c.OnEvict = func(string, int) { n++ }

	for i := 0; i < 10; i++ {
		c.Set(fmt.Sprintf("k%d", i), i)
	}
	c.Clear()

	if n != 10 {
		t.Fatalf("OnEvict fired %d times; want 10", n)
	}
	if c.Len() != 0 {
		t.Fatalf("Len() = %d after Clear; want 0", c.Len())
	}
}

func TestStats(t *testing.T) {
	c := NewSharded[string, int](8, StringHasher)
	c.Set("a", 1)
	c.Get("a")
	c.Get("a")
	c.Get("zzz")

	hits, misses := c.Stats()
	if hits != 2 || misses != 1 {
		t.Fatalf("Stats() = %d, %d; want 2, 1", hits, misses)
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := NewSharded[string, int](32, StringHasher)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", i%50)
				if i%3 == 0 {
					c.Set(key, g)
				} else {
					c.Get(key)
				}
			}
		}(g)
	}
	wg.Wait()
}
