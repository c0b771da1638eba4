package storage

import (
	"errors"
	"testing"
)

type doc struct {
	Name  string `json:"name" yaml:"name"`
	Count int    `json:"count" yaml:"count"`
}

func backends(t *testing.T) map[string]Storage {
	fs, err := NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStorage failed: %v", err)
	}
	return map[string]Storage{
		"file":   fs,
		"memory": NewMemoryStorage(),
	}
}

func TestStorageRoundTrip(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Set("alerts/a.yaml", []byte("one")); err != nil {
				t.Fatalf("Set failed: %v", err)
			}
			if err := s.Set("alerts/b.yaml", []byte("two")); err != nil {
				t.Fatalf("Set failed: %v", err)
			}
			if err := s.Set("other/c.yaml", []byte("three")); err != nil {
				t.Fatalf("Set failed: %v", err)
			}

			got, err := s.Get("alerts/a.yaml")
			if err != nil || string(got) != "one" {
				t.Errorf("Get = %q, %v", got, err)
			}

			keys, err := s.List("alerts/")
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(keys) != 2 || keys[0] != "alerts/a.yaml" || keys[1] != "alerts/b.yaml" {
				t.Errorf("List = %v", keys)
			}

			if err := s.Delete("alerts/a.yaml"); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
			if err := s.Delete("alerts/a.yaml"); err != nil {
				t.Errorf("second Delete should be a no-op, got %v", err)
			}
			if _, err := s.Get("alerts/a.yaml"); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestMemoryStorageCopiesValues(t *testing.T) {
	s := NewMemoryStorage()
	value := []byte("abc")
	s.Set("k", value)
	value[0] = 'x'

	got, _ := s.Get("k")
	if string(got) != "abc" {
		t.Errorf("stored value changed: %q", got)
	}
}

func TestDocumentStore(t *testing.T) {
	for _, codec := range []Codec{YAML, JSON} {
		t.Run(codec.Ext(), func(t *testing.T) {
			docs := NewDocumentStore(NewMemoryStorage(), codec, "alerts")

			if err := docs.Put("one", doc{Name: "first", Count: 1}); err != nil {
				t.Fatalf("Put failed: %v", err)
			}
			if err := docs.Put("two", doc{Name: "second", Count: 2}); err != nil {
				t.Fatalf("Put failed: %v", err)
			}

			var got doc
			if err := docs.Get("two", &got); err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if got.Name != "second" || got.Count != 2 {
				t.Errorf("Get = %+v", got)
			}

			ids, err := docs.IDs()
			if err != nil {
				t.Fatalf("IDs failed: %v", err)
			}
			if len(ids) != 2 || ids[0] != "one" || ids[1] != "two" {
				t.Errorf("IDs = %v", ids)
			}

			docs.Delete("one")
			if err := docs.Get("one", &got); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestDocumentStoreDecodeError(t *testing.T) {
	mem := NewMemoryStorage()
	mem.Set("alerts/bad.json", []byte("{not json"))

	docs := NewDocumentStore(mem, JSON, "alerts")
	var got doc
	if err := docs.Get("bad", &got); err == nil {
		t.Error("expected decode error")
	}
}
