package btree

import (
	"path/filepath"
	"testing"

	"github.com/adrienschuler/storage-engine/pkg/kv"
)

func TestPutAndGet(t *testing.T) {
	bt, err := Open(2, filepath.Join(t.TempDir(), "test.wal"))
	if err != nil {
		t.Fatalf("failed to open btree: %v", err)
	}
	defer bt.Close()

	if err := bt.Put("b", "2"); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := bt.Put("a", "1"); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := bt.Put("c", "3"); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	for k, want := range map[string]string{"a": "1", "b": "2", "c": "3"} {
		got, ok := bt.Get(k)
		if !ok || got != want {
			t.Fatalf("get(%q) = %q,%v, want %q,true", k, got, ok, want)
		}
	}

	if _, ok := bt.Get("z"); ok {
		t.Fatalf("get(z) should be absent")
	}
}

func TestPutOverwritesInPlace(t *testing.T) {
	bt, err := Open(2, filepath.Join(t.TempDir(), "test.wal"))
	if err != nil {
		t.Fatalf("failed to open btree: %v", err)
	}
	defer bt.Close()

	bt.Put("a", "1")
	bt.Put("a", "2")

	got, ok := bt.Get("a")
	if !ok || got != "2" {
		t.Fatalf("get(a) = %q,%v, want 2,true", got, ok)
	}
	if got := bt.Len(); got != 1 {
		t.Fatalf("len = %d, want 1", got)
	}
}

func TestDeleteWritesTombstone(t *testing.T) {
	bt, err := Open(2, filepath.Join(t.TempDir(), "test.wal"))
	if err != nil {
		t.Fatalf("failed to open btree: %v", err)
	}
	defer bt.Close()

	bt.Put("a", "1")
	if err := bt.Delete("a"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	got, ok := bt.Get("a")
	if !ok || got != kv.Tombstone {
		t.Fatalf("get(a) = %q,%v, want tombstone,true", got, ok)
	}
}

func TestItemsReturnsSortedOrder(t *testing.T) {
	bt, err := Open(2, filepath.Join(t.TempDir(), "test.wal"))
	if err != nil {
		t.Fatalf("failed to open btree: %v", err)
	}
	defer bt.Close()

	keys := []string{"m", "a", "z", "b", "y", "c", "x", "d"}
	for _, k := range keys {
		bt.Put(k, k+"-value")
	}

	items := bt.Items()
	if len(items) != len(keys) {
		t.Fatalf("got %d items, want %d", len(items), len(keys))
	}
	for i := 1; i < len(items); i++ {
		if items[i-1].Key >= items[i].Key {
			t.Fatalf("items not sorted: %q >= %q at index %d", items[i-1].Key, items[i].Key, i)
		}
	}
}

func TestSplitsAcrossManyInserts(t *testing.T) {
	bt, err := Open(2, filepath.Join(t.TempDir(), "test.wal"))
	if err != nil {
		t.Fatalf("failed to open btree: %v", err)
	}
	defer bt.Close()

	const n = 500
	for i := 0; i < n; i++ {
		k := paddedKey(i)
		if err := bt.Put(k, k); err != nil {
			t.Fatalf("put(%d) failed: %v", i, err)
		}
	}

	for i := 0; i < n; i++ {
		k := paddedKey(i)
		got, ok := bt.Get(k)
		if !ok || got != k {
			t.Fatalf("get(%q) = %q,%v, want %q,true", k, got, ok, k)
		}
	}

	items := bt.Items()
	if len(items) != n {
		t.Fatalf("got %d items, want %d", len(items), n)
	}
	for i := 1; i < len(items); i++ {
		if items[i-1].Key >= items[i].Key {
			t.Fatalf("items not sorted at index %d", i)
		}
	}
}

func TestRecoversFromWAL(t *testing.T) {
	walPath := filepath.Join(t.TempDir(), "test.wal")

	bt, err := Open(2, walPath)
	if err != nil {
		t.Fatalf("failed to open btree: %v", err)
	}
	bt.Put("a", "1")
	bt.Put("b", "2")
	bt.Put("a", "3")
	if err := bt.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	bt2, err := Open(2, walPath)
	if err != nil {
		t.Fatalf("failed to reopen btree: %v", err)
	}
	defer bt2.Close()

	got, ok := bt2.Get("a")
	if !ok || got != "3" {
		t.Fatalf("get(a) after recovery = %q,%v, want 3,true", got, ok)
	}
	got, ok = bt2.Get("b")
	if !ok || got != "2" {
		t.Fatalf("get(b) after recovery = %q,%v, want 2,true", got, ok)
	}
}

func paddedKey(i int) string {
	const digits = "0123456789"
	s := make([]byte, 4)
	for p := 3; p >= 0; p-- {
		s[p] = digits[i%10]
		i /= 10
	}
	return string(s)
}
