// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package common

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"hash"

	"golang.org/x/crypto/blake2b"
)

// HashSize is the size of a content hash in bytes.
const HashSize = 32

// Hash is a 32-byte content hash. It doubles as the storage key of a block
// or pack and as its integrity check: the name of a pack file is the hash of
// the pack's content.
type Hash [HashSize]byte

// HashOf computes the blake2b-256 hash of the given data.
func HashOf(data []byte) Hash {
	return blake2b.Sum256(data)
}

// NewHasher creates a streaming blake2b-256 hasher.
func NewHasher() hash.Hash {
	h, err := blake2b.New256(nil)
	if err != nil {
		panic(fmt.Sprintf("failed to create blake2b hasher: %v", err))
	}
	return h
}

// HashFromString parses a 64-character hex string into a Hash.
func HashFromString(s string) (Hash, error) {
	var h Hash
	if len(s) != 2*HashSize {
		return h, fmt.Errorf("invalid hash string length %d", len(s))
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return h, err
	}
	copy(h[:], raw)
	return h, nil
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether the hash is the all-zero sentinel.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

func (h Hash) Compare(other *Hash) int {
	return bytes.Compare(h[:], other[:])
}
