// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package block defines the minimal view the store needs of the blocks it
// holds. The store treats block payloads as opaque bytes; a Codec supplied
// by the embedding application decodes the few header fields the store uses
// for chain walking and epoch placement.
package block

//go:generate mockgen -source block.go -destination block_mocks.go -package block

import (
	"fmt"

	"github.com/0xsoniclabs/chainstore/common"
)

// Date places a block on the chain's calendar: either the boundary block
// opening an epoch, or a regular block in one of the epoch's slots.
type Date struct {
	Epoch uint64
	// Slot is the 1-based slot within the epoch; 0 marks the epoch's
	// boundary block.
	Slot uint32
}

// FirstSlot returns the date of an epoch's boundary block.
func FirstSlot(epoch uint64) Date {
	return Date{Epoch: epoch}
}

// IsBoundary reports whether the date names an epoch boundary block.
func (d Date) IsBoundary() bool {
	return d.Slot == 0
}

// Next returns the date following d in a chain with the given number of
// slots per epoch.
func (d Date) Next(slotsPerEpoch uint32) Date {
	if d.Slot >= slotsPerEpoch {
		return Date{Epoch: d.Epoch + 1}
	}
	return Date{Epoch: d.Epoch, Slot: d.Slot + 1}
}

// Compare orders dates chronologically.
func (d Date) Compare(other Date) int {
	switch {
	case d.Epoch < other.Epoch:
		return -1
	case d.Epoch > other.Epoch:
		return 1
	case d.Slot < other.Slot:
		return -1
	case d.Slot > other.Slot:
		return 1
	}
	return 0
}

func (d Date) String() string {
	if d.IsBoundary() {
		return fmt.Sprintf("%d.boundary", d.Epoch)
	}
	return fmt.Sprintf("%d.%d", d.Epoch, d.Slot)
}

// Header is the store's view of a decoded block header.
type Header interface {
	// Hash returns the block's content hash, its storage key.
	Hash() common.Hash
	// Parent returns the hash of the preceding block; the all-zero hash
	// marks the start of the chain.
	Parent() common.Hash
	// Date returns the block's position on the chain calendar.
	Date() Date
}

// Codec decodes raw block payloads into headers. Implementations are
// supplied by the embedding application; the store never interprets block
// bytes itself.
type Codec interface {
	Decode(raw []byte) (Header, error)
}
