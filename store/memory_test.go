package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rushteam/vtag/config"
	"github.com/rushteam/vtag/core"
)

func TestMemoryStoreCRUD(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	if _, err := s.Get(ctx, "absent"); !errors.Is(err, core.ErrStoreNotFound) {
		t.Errorf("Get(absent) = %v, want ErrStoreNotFound", err)
	}
	if err := s.Set(ctx, "k1", []byte("v1")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := s.Get(ctx, "k1")
	if err != nil || string(got) != "v1" {
		t.Errorf("Get = (%q, %v), want (v1, nil)", got, err)
	}
	if err := s.Delete(ctx, "k1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "k1"); !errors.Is(err, core.ErrStoreNotFound) {
		t.Errorf("Get after Delete = %v, want ErrStoreNotFound", err)
	}
}

func TestMemoryStoreBatch(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	kvs := map[string][]byte{"a": []byte("1"), "b": []byte("2")}
	if err := s.BatchSet(ctx, kvs); err != nil {
		t.Fatalf("BatchSet: %v", err)
	}
	got, err := s.BatchGet(ctx, []string{"a", "b", "missing"})
	if err != nil {
		t.Fatalf("BatchGet: %v", err)
	}
	if len(got) != 2 || string(got["a"]) != "1" || string(got["b"]) != "2" {
		t.Errorf("BatchGet = %v", got)
	}
}

func TestMemoryStoreTTL(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	if err := s.Set(ctx, "k", []byte("v"), 1); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := s.Get(ctx, "k"); err != nil {
		t.Fatalf("Get before expiry: %v", err)
	}
	time.Sleep(1100 * time.Millisecond)
	if _, err := s.Get(ctx, "k"); !errors.Is(err, core.ErrStoreNotFound) {
		t.Errorf("Get after expiry = %v, want ErrStoreNotFound", err)
	}
}

func TestFromConfig(t *testing.T) {
	s, err := FromConfig(nil)
	if err != nil || s != nil {
		t.Errorf("FromConfig(nil) = (%v, %v), want (nil, nil)", s, err)
	}
	s, err = FromConfig(&config.Registry{Backend: "memory"})
	if err != nil || s == nil || s.Name() != "memory" {
		t.Errorf("FromConfig(memory) = (%v, %v)", s, err)
	}
	if _, err := FromConfig(&config.Registry{Backend: "bogus"}); err == nil {
		t.Error("unknown backend accepted, want error")
	}
}
