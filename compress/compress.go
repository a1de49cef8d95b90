// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package compress selects the block payload codec of a store. The codec is
// fixed at store creation and recorded in the store configuration; mixing
// codecs within one store is not supported.
package compress

import (
	"bytes"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/flate"
)

// Codec identifies a payload compression scheme.
type Codec string

const (
	// None stores payloads verbatim.
	None Codec = "none"
	// Deflate uses raw DEFLATE streams. This is the default codec.
	Deflate Codec = "deflate"
	// Snappy trades compression ratio for speed.
	Snappy Codec = "snappy"
)

// Default is the codec used when a store is created without an explicit
// choice.
const Default = Deflate

// Valid reports whether the codec names a supported scheme.
func (c Codec) Valid() bool {
	switch c {
	case None, Deflate, Snappy:
		return true
	}
	return false
}

// Compress encodes the payload with the codec.
func (c Codec) Compress(data []byte) ([]byte, error) {
	switch c {
	case None:
		return data, nil
	case Deflate:
		var buf bytes.Buffer
		w, err := flate.NewWriter(&buf, flate.DefaultCompression)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case Snappy:
		return snappy.Encode(nil, data), nil
	}
	return nil, fmt.Errorf("unsupported compression codec %q", string(c))
}

// Decompress decodes a payload produced by Compress with the same codec.
func (c Codec) Decompress(data []byte) ([]byte, error) {
	switch c {
	case None:
		return data, nil
	case Deflate:
		r := flate.NewReader(bytes.NewReader(data))
		defer r.Close()
		return io.ReadAll(r)
	case Snappy:
		decoded, err := snappy.Decode(nil, data)
		if err != nil {
			return nil, err
		}
		if decoded == nil {
			// snappy yields a nil slice for an encoded empty payload.
			decoded = []byte{}
		}
		return decoded, nil
	}
	return nil, fmt.Errorf("unsupported compression codec %q", string(c))
}
