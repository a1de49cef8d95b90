// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package indexfile

import "github.com/0xsoniclabs/chainstore/common"

// Bloom is a fixed-size bloom filter over content hashes, used to reject
// lookups of absent keys without touching the sorted hash table. Three bit
// probes are derived by double hashing with FNV-1 and FNV-1a.
type Bloom struct {
	bits []byte
}

const bloomProbes = 3

// NewBloom creates an empty filter with the given bitmap size in bytes.
func NewBloom(sizeBytes uint32) Bloom {
	return Bloom{bits: make([]byte, sizeBytes)}
}

// DefaultBloomSize returns the bitmap size in bytes for an index holding the
// given number of entries. The steps keep the false-positive rate low for
// typical pack sizes without growing the always-resident part of an index.
func DefaultBloomSize(entries int) uint32 {
	switch {
	case entries < 0x1000:
		return 4096 / 8
	case entries < 0x5000:
		return 8192 / 8
	case entries < 0x22000:
		return 16384 / 8
	default:
		return 32768 / 8
	}
}

// Size returns the bitmap size in bytes.
func (b Bloom) Size() uint32 {
	return uint32(len(b.bits))
}

// Bytes exposes the raw bitmap for serialization.
func (b Bloom) Bytes() []byte {
	return b.bits
}

// Add sets the probe bits of the given hash.
func (b Bloom) Add(h common.Hash) {
	nbits := uint64(len(b.bits)) * 8
	h1, h2 := fnv1(h[:]), fnv1a(h[:])
	for i := uint64(0); i < bloomProbes; i++ {
		bit := (h1 + i*h2) % nbits
		b.bits[bit/8] |= 1 << (bit % 8)
	}
}

// MaybeContains reports whether the hash may be present. A false result is
// definitive; a true result must be confirmed against the hash table.
func (b Bloom) MaybeContains(h common.Hash) bool {
	nbits := uint64(len(b.bits)) * 8
	h1, h2 := fnv1(h[:]), fnv1a(h[:])
	for i := uint64(0); i < bloomProbes; i++ {
		bit := (h1 + i*h2) % nbits
		if b.bits[bit/8]&(1<<(bit%8)) == 0 {
			return false
		}
	}
	return true
}

const (
	fnvOffsetBasis uint64 = 0xcbf29ce484222325
	fnvPrime       uint64 = 0x100000001b3
)

func fnv1(data []byte) uint64 {
	h := fnvOffsetBasis
	for _, b := range data {
		h *= fnvPrime
		h ^= uint64(b)
	}
	return h
}

func fnv1a(data []byte) uint64 {
	h := fnvOffsetBasis
	for _, b := range data {
		h ^= uint64(b)
		h *= fnvPrime
	}
	return h
}
