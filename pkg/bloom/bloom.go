// Package bloom implements a probabilistic set-membership filter used to
// short-circuit SSTable lookups that are certain to miss.
package bloom

import (
	"crypto/md5"
	"encoding/json"
	"math/big"
	"strconv"
)

// Filter is a fixed-size bit vector with hashCount independent hash
// functions. False positives are possible; false negatives are not.
type Filter struct {
	size      int
	hashCount int
	bits      []byte // one byte per bit, 0 or 1 — matches the on-disk JSON shape
}

// NewForCount returns a filter sized for n expected items, following the
// spec's `max(100, 10*n)` bits with a fixed hash count of 5 — the sizing the
// SSTable builder and the compactor both use.
func NewForCount(n int) *Filter {
	size := n * 10
	if size < 100 {
		size = 100
	}
	return New(size, 5)
}

// Size returns the bit-array length.
func (f *Filter) Size() int { return f.size }

// HashCount returns the number of hash functions.
func (f *Filter) HashCount() int { return f.hashCount }

// New creates an empty filter of the given size (in bits) and hash count.
func New(size, hashCount int) *Filter {
	if size < 1 {
		size = 1
	}
	return &Filter{
		size:      size,
		hashCount: hashCount,
		bits:      make([]byte, size),
	}
}

// Add inserts an item into the filter, setting hashCount bits.
func (f *Filter) Add(item string) {
	for _, idx := range f.indices(item) {
		f.bits[idx] = 1
	}
}

// Contains reports whether item might be a member. A false result is
// conclusive; a true result is not.
func (f *Filter) Contains(item string) bool {
	for _, idx := range f.indices(item) {
		if f.bits[idx] == 0 {
			return false
		}
	}
	return true
}

// indices computes the hashCount bit positions for item, using
// int(md5(item + str(i)).hexdigest(), 16) mod size for i in [0, hashCount).
// This exact hash family is fixed across implementations for on-disk
// compatibility.
func (f *Filter) indices(item string) []int {
	out := make([]int, f.hashCount)
	size := big.NewInt(int64(f.size))
	for i := 0; i < f.hashCount; i++ {
		sum := md5.Sum([]byte(item + strconv.Itoa(i)))
		n := new(big.Int).SetBytes(sum[:])
		n.Mod(n, size)
		out[i] = int(n.Int64())
	}
	return out
}

// wireFormat is the on-disk `.bf` JSON shape: {"size", "hash_count", "bit_array"}.
type wireFormat struct {
	Size      int   `json:"size"`
	HashCount int   `json:"hash_count"`
	BitArray  []int `json:"bit_array"`
}

// MarshalJSON serializes the filter as {"size", "hash_count", "bit_array"}.
func (f *Filter) MarshalJSON() ([]byte, error) {
	bits := make([]int, len(f.bits))
	for i, b := range f.bits {
		bits[i] = int(b)
	}
	return json.Marshal(wireFormat{
		Size:      f.size,
		HashCount: f.hashCount,
		BitArray:  bits,
	})
}

// UnmarshalJSON restores a filter from its `.bf` JSON shape.
func (f *Filter) UnmarshalJSON(data []byte) error {
	var w wireFormat
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	bits := make([]byte, len(w.BitArray))
	for i, b := range w.BitArray {
		if b != 0 {
			bits[i] = 1
		}
	}
	f.size = w.Size
	f.hashCount = w.HashCount
	f.bits = bits
	return nil
}
