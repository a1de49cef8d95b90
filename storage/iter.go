// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package storage

import (
	"fmt"
	"os"

	"github.com/0xsoniclabs/chainstore/common"
	"github.com/0xsoniclabs/chainstore/packfile"
)

// EpochIterator yields the blocks of one sealed epoch in pack order, which
// is append order, not necessarily slot order. The reference table is the
// slot-order projection of the same data. The pack's content hash is
// verified when the iteration reaches a clean end.
type EpochIterator struct {
	store    *Store
	reader   *packfile.Reader
	packHash common.Hash
	epoch    uint64
}

// IterateEpoch opens the pack of a sealed epoch for sequential reading.
func (s *Store) IterateEpoch(epoch uint64) (*EpochIterator, error) {
	packHash, err := s.EpochPackHash(epoch)
	if err != nil {
		return nil, err
	}
	reader, err := packfile.OpenReader(s.packPath(packHash))
	if err != nil {
		return nil, err
	}
	return &EpochIterator{store: s, reader: reader, packHash: packHash, epoch: epoch}, nil
}

// Epoch returns the epoch this iterator walks.
func (it *EpochIterator) Epoch() uint64 {
	return it.epoch
}

// PackHash returns the hash of the pack backing this epoch.
func (it *EpochIterator) PackHash() common.Hash {
	return it.packHash
}

// Next returns the next block's raw content, or (nil, nil) at the end of
// the epoch.
func (it *EpochIterator) Next() ([]byte, error) {
	stored, err := it.reader.Next()
	if err != nil {
		return nil, err
	}
	if stored == nil {
		if got := it.reader.Finalize(); got != it.packHash {
			return nil, fmt.Errorf("pack of epoch %d fails verification, content hashes to %s, want %s",
				it.epoch, got, it.packHash)
		}
		return nil, nil
	}
	return it.store.cfg.Compression.Decompress(stored)
}

// Close closes the underlying pack file.
func (it *EpochIterator) Close() error {
	return it.reader.Close()
}

// EpochsIterator walks the sealed epochs 0, 1, 2, ... and stops cleanly at
// the first epoch that has not been sealed, so callers discover the epoch
// count without a separate counter.
type EpochsIterator struct {
	store *Store
	next  uint64
}

// Epochs starts an iteration over all sealed epochs.
func (s *Store) Epochs() *EpochsIterator {
	return &EpochsIterator{store: s}
}

// Next opens the next sealed epoch, or returns (nil, nil) when the first
// unsealed epoch is reached. The caller owns the returned iterator.
func (it *EpochsIterator) Next() (*EpochIterator, error) {
	epochIter, err := it.store.IterateEpoch(it.next)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	it.next++
	return epochIter, nil
}

// ReverseIterator walks the chain backwards from a starting block by
// following parent hashes, ending at the pre-genesis zero hash.
type ReverseIterator struct {
	store *Store
	next  common.Hash
}

// ReverseIter starts a backward walk at the given block, which is yielded
// first.
func (s *Store) ReverseIter(from common.Hash) *ReverseIterator {
	return &ReverseIterator{store: s, next: from}
}

// Next returns the raw content of the next block going backwards, or
// (nil, nil) once the walk has passed the start of the chain.
func (it *ReverseIterator) Next() ([]byte, error) {
	if it.next.IsZero() {
		return nil, nil
	}
	raw, err := it.store.ReadBlock(it.next)
	if err != nil {
		return nil, fmt.Errorf("chain walk broken at block %s: %w", it.next, err)
	}
	header, err := it.store.decodeHeader(raw)
	if err != nil {
		return nil, err
	}
	it.next = header.Parent()
	return raw, nil
}

// Range returns the hashes of the chain segment [from, to] in forward
// (oldest first) order, both ends inclusive. The segment is discovered by
// walking parent hashes backwards from to; an error is returned if the walk
// reaches the start of the chain without passing from.
func (s *Store) Range(from, to common.Hash) ([]common.Hash, error) {
	var reversed []common.Hash
	current := to
	for {
		raw, err := s.ReadBlock(current)
		if err != nil {
			return nil, fmt.Errorf("chain walk broken at block %s: %w", current, err)
		}
		header, err := s.decodeHeader(raw)
		if err != nil {
			return nil, err
		}
		reversed = append(reversed, current)
		if current == from {
			break
		}
		current = header.Parent()
		if current.IsZero() {
			return nil, fmt.Errorf("block %s is not an ancestor of %s", from, to)
		}
	}
	forward := make([]common.Hash, len(reversed))
	for i := range reversed {
		forward[i] = reversed[len(reversed)-1-i]
	}
	return forward, nil
}
