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
	"encoding/binary"
	"fmt"
	"io"
)

// All multi-byte integers on disk are fixed-width big-endian. Variable-size
// payloads use length-prefixed framing: a 4-byte big-endian length, the
// payload, and zero padding up to the next multiple of 4 bytes. Readers must
// consume the padding exactly.

const (
	// SizeSize is the width of an on-disk size field.
	SizeSize = 4
	// OffsetSize is the width of an on-disk file offset field.
	OffsetSize = 8
)

// Align4 rounds an offset up to the next multiple of 4.
func Align4(n uint64) uint64 {
	if r := n % 4; r != 0 {
		return n + (4 - r)
	}
	return n
}

// FramedSize returns the total on-disk size of a length-prefixed frame
// holding a payload of the given length, padding included.
func FramedSize(payloadLen int) uint64 {
	return SizeSize + Align4(uint64(payloadLen))
}

// WriteLengthPrefixed writes one frame and returns the number of bytes
// written, padding included.
func WriteLengthPrefixed(w io.Writer, data []byte) (uint64, error) {
	if uint64(len(data)) > 0xffffffff {
		return 0, fmt.Errorf("payload length %d exceeds frame limit", len(data))
	}
	var sizeBuf [SizeSize]byte
	binary.BigEndian.PutUint32(sizeBuf[:], uint32(len(data)))
	if _, err := w.Write(sizeBuf[:]); err != nil {
		return 0, err
	}
	if _, err := w.Write(data); err != nil {
		return 0, err
	}
	var pad [SizeSize - 1]byte
	padding := 0
	if len(data)%4 != 0 {
		padding = 4 - len(data)%4
		if _, err := w.Write(pad[:padding]); err != nil {
			return 0, err
		}
	}
	return SizeSize + uint64(len(data)) + uint64(padding), nil
}

// ReadLengthPrefixed reads one frame, consuming its padding. The maxSize
// limit guards against allocating unbounded memory from a corrupt length
// field; pass 0 for no limit.
//
// Only a read ending exactly before a size field reports io.EOF; a frame cut
// anywhere after its size field, payload or padding, reports
// io.ErrUnexpectedEOF so callers can tell a clean end from a torn frame.
func ReadLengthPrefixed(r io.Reader, maxSize uint32) ([]byte, error) {
	var sizeBuf [SizeSize]byte
	if _, err := io.ReadFull(r, sizeBuf[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(sizeBuf[:])
	if maxSize != 0 && size > maxSize {
		return nil, fmt.Errorf("frame size %d exceeds limit %d", size, maxSize)
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, unexpectedEOF(err)
	}
	if size%4 != 0 {
		var pad [SizeSize - 1]byte
		if _, err := io.ReadFull(r, pad[:4-size%4]); err != nil {
			return nil, unexpectedEOF(err)
		}
	}
	return data, nil
}

// unexpectedEOF upgrades the bare io.EOF that io.ReadFull reports when zero
// bytes remain; mid-frame, running dry is a torn frame, not a clean end.
func unexpectedEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
