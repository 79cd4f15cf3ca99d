package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rushteam/neuralcalc/core"
)

func TestMemoryStore_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	if _, err := s.Get(ctx, "missing"); !core.IsStoreNotFound(err) {
		t.Fatalf("Get(missing) err = %v, want not found", err)
	}

	if err := s.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("Get(k) = %q, %v", got, err)
	}

	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, "k"); !core.IsStoreNotFound(err) {
		t.Errorf("key should be gone after Delete, err = %v", err)
	}
}

func TestMemoryStore_Batch(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	if err := s.BatchSet(ctx, map[string][]byte{"a": []byte("1"), "b": []byte("2")}, 60); err != nil {
		t.Fatal(err)
	}
	got, err := s.BatchGet(ctx, []string{"a", "b", "c"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || string(got["a"]) != "1" || string(got["b"]) != "2" {
		t.Errorf("BatchGet = %v", got)
	}
	if _, ok := got["c"]; ok {
		t.Error("missing key must not appear in BatchGet result")
	}
}

func TestMemoryStore_Expired(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	past := time.Now().Add(-time.Second)
	s.mu.Lock()
	s.put("old", []byte("x"), &past)
	s.mu.Unlock()

	if _, err := s.Get(ctx, "old"); !core.IsStoreNotFound(err) {
		t.Errorf("expired key should read as not found, err = %v", err)
	}
	got, _ := s.BatchGet(ctx, []string{"old"})
	if len(got) != 0 {
		t.Errorf("expired key returned from BatchGet: %v", got)
	}
}

func TestMemoryStore_MaxEntries(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(WithMaxEntries(2))
	defer s.Close()

	for _, k := range []string{"a", "b", "c"} {
		if err := s.Set(ctx, k, []byte(k)); err != nil {
			t.Fatal(err)
		}
	}
	if n := s.Len(); n != 2 {
		t.Errorf("Len = %d, want 2", n)
	}
	if _, err := s.Get(ctx, "c"); err != nil {
		t.Errorf("latest key must survive eviction: %v", err)
	}
}

func TestMemoryStore_CloseTwice(t *testing.T) {
	s := NewMemoryStore()
	s.Close()
	s.Close()
}

// TestRedisStore 需要真实的 Redis 实例：NEURALCALC_TEST_REDIS=localhost:6379
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("NEURALCALC_TEST_REDIS")
	if addr == "" {
		t.Skip("需要连接真实的 Redis 才能运行（设置 NEURALCALC_TEST_REDIS）")
	}
	ctx := context.Background()

	s, err := NewRedisStore(addr, 0)
	if err != nil {
		t.Fatalf("连接 Redis 失败: %v", err)
	}
	defer s.Close()

	key := "neuralcalc:test:" + time.Now().Format("150405.000000")
	if err := s.Set(ctx, key, []byte("v"), 10); err != nil {
		t.Fatal(err)
	}
	defer s.Delete(ctx, key)

	got, err := s.BatchGet(ctx, []string{key, key + ":missing"})
	if err != nil {
		t.Fatal(err)
	}
	if string(got[key]) != "v" || len(got) != 1 {
		t.Errorf("BatchGet = %v", got)
	}
	if _, err := s.Get(ctx, key+":missing"); !core.IsStoreNotFound(err) {
		t.Errorf("missing key err = %v", err)
	}
}
