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

	"github.com/0xsoniclabs/chainstore/common"
)

// Location says where a block currently lives. It is recomputed on every
// lookup and never persisted; packing a blob changes the location its hash
// resolves to. The type is a closed sum: Loose and Packed are the only
// variants.
type Location interface {
	isLocation()
	String() string
}

// Loose locates a block in the write-optimized loose tier, as its own
// content-addressed file.
type Loose struct {
	Hash common.Hash
}

// Packed locates a block inside a sealed pack at a byte offset.
type Packed struct {
	Pack   common.Hash
	Offset uint64
}

func (Loose) isLocation()  {}
func (Packed) isLocation() {}

func (l Loose) String() string {
	return fmt.Sprintf("loose(%s)", l.Hash)
}

func (l Packed) String() string {
	return fmt.Sprintf("packed(%s, %d)", l.Pack, l.Offset)
}
