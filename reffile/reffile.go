// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package reffile implements dense per-epoch hash tables: after the shared
// header, one 32-byte hash per slot of the epoch, in slot order. A slot
// without a block holds the all-zero hash. The slot of a hash is its
// position, so slot lookups are a single positioned read.
package reffile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/0xsoniclabs/chainstore/common"
	"github.com/0xsoniclabs/chainstore/fileutil"
)

// FileTypeRefs tags epoch reference files.
const FileTypeRefs fileutil.FileType = 0x52454653 // "REFS"

// FormatVersion is the current reference file schema version.
const FormatVersion fileutil.Version = 1

// RefPack is the in-memory builder of a reference file. Slots must be
// appended in slot order; gaps are holes.
type RefPack struct {
	hashes []common.Hash
}

// NewRefPack creates an empty builder.
func NewRefPack() *RefPack {
	return &RefPack{}
}

// AppendHash fills the next slot with the given hash.
func (r *RefPack) AppendHash(hash common.Hash) {
	r.hashes = append(r.hashes, hash)
}

// AppendMissing records the next slot as a hole.
func (r *RefPack) AppendMissing() {
	r.hashes = append(r.hashes, common.Hash{})
}

// Size returns the number of slots, holes included.
func (r *RefPack) Size() int {
	return len(r.hashes)
}

// HashAt returns the hash at the given slot; an all-zero hash marks a hole.
func (r *RefPack) HashAt(slot uint32) (common.Hash, error) {
	if int(slot) >= len(r.hashes) {
		return common.Hash{}, fmt.Errorf("slot %d out of range, reference table has %d slots", slot, len(r.hashes))
	}
	return r.hashes[slot], nil
}

// WriteTo serializes the complete reference file, shared header included.
func (r *RefPack) WriteTo(w io.Writer) error {
	buf := bufio.NewWriter(w)
	if err := fileutil.WriteHeader(buf, FileTypeRefs, FormatVersion); err != nil {
		return err
	}
	for i := range r.hashes {
		if _, err := buf.Write(r.hashes[i][:]); err != nil {
			return err
		}
	}
	return buf.Flush()
}

// WriteFile writes the reference file to path through a tmpfile in dir and
// an atomic rename.
func (r *RefPack) WriteFile(path, dir string) error {
	tmp, err := fileutil.NewTmpFile(dir)
	if err != nil {
		return err
	}
	defer tmp.Discard()
	if err := r.WriteTo(tmp); err != nil {
		return err
	}
	return tmp.RenderPermanent(path)
}

// Load reads a full reference file into memory.
func Load(path string) (*RefPack, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	buf := bufio.NewReader(file)
	if _, err := fileutil.CheckHeader(buf, FileTypeRefs, FormatVersion, FormatVersion); err != nil {
		return nil, err
	}
	pack := NewRefPack()
	for {
		var hash common.Hash
		if _, err := io.ReadFull(buf, hash[:]); err != nil {
			if err == io.EOF {
				return pack, nil
			}
			return nil, err
		}
		pack.hashes = append(pack.hashes, hash)
	}
}

// Reader streams the occupied slots of a reference file without loading it
// into memory.
type Reader struct {
	file *os.File
	buf  *bufio.Reader
	slot uint32
}

// OpenReader opens a reference file and validates its header.
func OpenReader(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	buf := bufio.NewReader(file)
	if _, err := fileutil.CheckHeader(buf, FileTypeRefs, FormatVersion, FormatVersion); err != nil {
		return nil, errors.Join(err, file.Close())
	}
	return &Reader{file: file, buf: buf}, nil
}

// Next returns the slot and hash of the next occupied slot, skipping holes.
// At the end of the file it returns io.EOF.
func (r *Reader) Next() (uint32, common.Hash, error) {
	for {
		var hash common.Hash
		if _, err := io.ReadFull(r.buf, hash[:]); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return 0, hash, fmt.Errorf("reference file %s has a truncated slot", r.file.Name())
			}
			return 0, hash, err
		}
		slot := r.slot
		r.slot++
		if !hash.IsZero() {
			return slot, hash, nil
		}
	}
}

// HashAtSlot reads the hash of one slot by position; an all-zero result
// marks a hole.
func (r *Reader) HashAtSlot(slot uint32) (common.Hash, error) {
	var hash common.Hash
	offset := int64(fileutil.HeaderSize) + int64(slot)*common.HashSize
	if _, err := r.file.ReadAt(hash[:], offset); err != nil {
		if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
			return hash, fmt.Errorf("slot %d beyond end of reference file %s", slot, r.file.Name())
		}
		return hash, err
	}
	return hash, nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}
