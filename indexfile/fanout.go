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

// Fanout maps the first byte of a hash to the range of ranks holding hashes
// with that prefix. Slot i holds the cumulative number of entries whose
// first byte is <= i, so slot 255 is the total entry count.
type Fanout [256]uint32

// NewFanout builds the cumulative table for a sorted hash list.
func NewFanout(sorted []common.Hash) Fanout {
	var counts [256]uint32
	for i := range sorted {
		counts[sorted[i][0]]++
	}
	var fanout Fanout
	var sum uint32
	for i := 0; i < 256; i++ {
		sum += counts[i]
		fanout[i] = sum
	}
	return fanout
}

// Bucket returns the half-open rank range [start, end) of entries whose
// hash starts with the given byte.
func (f *Fanout) Bucket(prefix byte) (start, end uint32) {
	if prefix > 0 {
		start = f[prefix-1]
	}
	return start, f[prefix]
}

// Total returns the number of entries covered by the table.
func (f *Fanout) Total() uint32 {
	return f[255]
}
