package bloom

import (
	"encoding/json"
	"testing"
)

func TestFilterNoFalseNegatives(t *testing.T) {
	f := New(1000, 5)

	keys := []string{"apple", "banana", "cherry", "date"}
	for _, k := range keys {
		f.Add(k)
	}

	for _, k := range keys {
		if !f.Contains(k) {
			t.Fatalf("key %q should be in bloom filter", k)
		}
	}
}

func TestFilterCanRejectAbsentKeys(t *testing.T) {
	f := New(10000, 5)
	for _, k := range []string{"a", "b", "c"} {
		f.Add(k)
	}

	// Not a guarantee for every possible key, but with this much headroom
	// a handful of clearly unrelated keys should come back negative.
	absent := 0
	for _, k := range []string{"zzz1", "zzz2", "zzz3", "zzz4", "zzz5"} {
		if !f.Contains(k) {
			absent++
		}
	}
	if absent == 0 {
		t.Fatal("expected at least one absent key to be rejected")
	}
}

func TestFilterJSONRoundTrip(t *testing.T) {
	f := NewForCount(20)
	f.Add("key1")
	f.Add("key2")

	data, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal raw: %v", err)
	}
	for _, field := range []string{"size", "hash_count", "bit_array"} {
		if _, ok := raw[field]; !ok {
			t.Fatalf("expected field %q in serialized filter", field)
		}
	}

	var restored Filter
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !restored.Contains("key1") || !restored.Contains("key2") {
		t.Fatal("restored filter lost membership of added keys")
	}
}

func TestNewForCountSizing(t *testing.T) {
	f := NewForCount(3)
	if f.Size() != 100 {
		t.Fatalf("expected floor of 100 bits, got %d", f.Size())
	}
	if f.HashCount() != 5 {
		t.Fatalf("expected hash count 5, got %d", f.HashCount())
	}

	f2 := NewForCount(50)
	if f2.Size() != 500 {
		t.Fatalf("expected 10*n=500 bits, got %d", f2.Size())
	}
}
