// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package indexfile implements the per-pack hash index: a bloom filter and a
// 256-way fanout table in front of a sorted hash list, resolving content
// hashes to byte offsets inside the pack file.
//
// File layout, after the shared header:
//
//	bloom size (4, bytes) | padding (4)
//	fanout table (256 x 4, cumulative counts)
//	bloom bitmap
//	sorted hashes (n x 32)
//	offsets (n x 8, in rank order)
//
// All integers are big-endian. The bloom filter and fanout table form the
// always-resident prefix of the file; hash and offset lookups go through
// positioned reads, so memory per open index stays independent of the pack
// size.
package indexfile

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/0xsoniclabs/chainstore/common"
	"github.com/0xsoniclabs/chainstore/fileutil"
)

// FileTypeIndex tags pack index files.
const FileTypeIndex fileutil.FileType = 0x494e4458 // "INDX"

// FormatVersion is the current index schema version.
const FormatVersion fileutil.Version = 1

const (
	bloomSizeFieldSize = 8 // bloom size + padding
	fanoutSize         = 256 * common.SizeSize
	fanoutOffset       = fileutil.HeaderSize + bloomSizeFieldSize
	bloomOffset        = fanoutOffset + fanoutSize
)

type entry struct {
	hash   common.Hash
	offset uint64
}

// Index is the in-memory builder of an index file. Entries can be appended
// in any order; sorting happens at write time.
type Index struct {
	entries []entry
}

// NewIndex creates an empty index builder.
func NewIndex() *Index {
	return &Index{}
}

// Append records that the blob with the given hash starts at the given byte
// offset in the pack.
func (i *Index) Append(hash common.Hash, offset uint64) {
	i.entries = append(i.entries, entry{hash: hash, offset: offset})
}

// Size returns the number of recorded entries.
func (i *Index) Size() int {
	return len(i.entries)
}

// WriteTo serializes the complete index file content, shared header
// included.
func (i *Index) WriteTo(w io.Writer) error {
	sort.Slice(i.entries, func(a, b int) bool {
		return i.entries[a].hash.Compare(&i.entries[b].hash) < 0
	})

	sorted := make([]common.Hash, len(i.entries))
	for n := range i.entries {
		sorted[n] = i.entries[n].hash
	}
	fanout := NewFanout(sorted)
	bloom := NewBloom(DefaultBloomSize(len(sorted)))
	for n := range sorted {
		bloom.Add(sorted[n])
	}

	buf := bufio.NewWriter(w)
	if err := fileutil.WriteHeader(buf, FileTypeIndex, FormatVersion); err != nil {
		return err
	}
	var field [bloomSizeFieldSize]byte
	binary.BigEndian.PutUint32(field[0:4], bloom.Size())
	if _, err := buf.Write(field[:]); err != nil {
		return err
	}
	var slot [common.SizeSize]byte
	for n := 0; n < 256; n++ {
		binary.BigEndian.PutUint32(slot[:], fanout[n])
		if _, err := buf.Write(slot[:]); err != nil {
			return err
		}
	}
	if _, err := buf.Write(bloom.Bytes()); err != nil {
		return err
	}
	for n := range i.entries {
		if _, err := buf.Write(i.entries[n].hash[:]); err != nil {
			return err
		}
	}
	var offsetBuf [common.OffsetSize]byte
	for n := range i.entries {
		binary.BigEndian.PutUint64(offsetBuf[:], i.entries[n].offset)
		if _, err := buf.Write(offsetBuf[:]); err != nil {
			return err
		}
	}
	return buf.Flush()
}

// WriteFile writes the index to path through a tmpfile in dir and an atomic
// rename.
func (i *Index) WriteFile(path, dir string) error {
	tmp, err := fileutil.NewTmpFile(dir)
	if err != nil {
		return err
	}
	defer tmp.Discard()
	if err := i.WriteTo(tmp); err != nil {
		return err
	}
	return tmp.RenderPermanent(path)
}

// Reader resolves hashes against an index file. The bloom filter and fanout
// table are held in memory; hash comparisons and offset loads use positioned
// reads against the file.
type Reader struct {
	file   *os.File
	bloom  Bloom
	fanout Fanout
}

// OpenReader opens and validates an index file, loading its resident prefix.
func OpenReader(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	reader, err := newReader(file)
	if err != nil {
		return nil, errors.Join(err, file.Close())
	}
	return reader, nil
}

func newReader(file *os.File) (*Reader, error) {
	buf := bufio.NewReader(file)
	if _, err := fileutil.CheckHeader(buf, FileTypeIndex, FormatVersion, FormatVersion); err != nil {
		return nil, err
	}
	var field [bloomSizeFieldSize]byte
	if _, err := io.ReadFull(buf, field[:]); err != nil {
		return nil, err
	}
	bloomSize := binary.BigEndian.Uint32(field[0:4])
	if bloomSize == 0 {
		return nil, fmt.Errorf("index file %s declares an empty bloom filter", file.Name())
	}

	r := &Reader{file: file}
	var slot [common.SizeSize]byte
	for n := 0; n < 256; n++ {
		if _, err := io.ReadFull(buf, slot[:]); err != nil {
			return nil, err
		}
		r.fanout[n] = binary.BigEndian.Uint32(slot[:])
	}
	bits := make([]byte, bloomSize)
	if _, err := io.ReadFull(buf, bits); err != nil {
		return nil, err
	}
	r.bloom = Bloom{bits: bits}

	// Cheap consistency check: the tail must hold exactly the entries the
	// fanout table announces.
	info, err := file.Stat()
	if err != nil {
		return nil, err
	}
	wantSize := r.hashTableOffset() +
		int64(r.fanout.Total())*(common.HashSize+common.OffsetSize)
	if info.Size() != wantSize {
		return nil, fmt.Errorf("index file %s has size %d, want %d", file.Name(), info.Size(), wantSize)
	}
	return r, nil
}

// Count returns the number of entries in the index.
func (r *Reader) Count() uint32 {
	return r.fanout.Total()
}

func (r *Reader) hashTableOffset() int64 {
	return bloomOffset + int64(r.bloom.Size())
}

func (r *Reader) offsetTableOffset() int64 {
	return r.hashTableOffset() + int64(r.fanout.Total())*common.HashSize
}

// Search resolves a hash to its rank within the index. The bloom filter
// screens absent keys; survivors are binary searched inside their fanout
// bucket.
func (r *Reader) Search(hash common.Hash) (rank uint32, found bool, err error) {
	if !r.bloom.MaybeContains(hash) {
		return 0, false, nil
	}
	start, end := r.fanout.Bucket(hash[0])
	base := r.hashTableOffset()
	var probe common.Hash
	lo, hi := int64(start), int64(end)
	for lo < hi {
		mid := lo + (hi-lo)/2
		if _, err := r.file.ReadAt(probe[:], base+mid*common.HashSize); err != nil {
			return 0, false, err
		}
		switch cmp := probe.Compare(&hash); {
		case cmp < 0:
			lo = mid + 1
		case cmp > 0:
			hi = mid
		default:
			return uint32(mid), true, nil
		}
	}
	return 0, false, nil
}

// OffsetOf returns the pack byte offset recorded for the given rank.
func (r *Reader) OffsetOf(rank uint32) (uint64, error) {
	if rank >= r.fanout.Total() {
		return 0, fmt.Errorf("rank %d out of range, index holds %d entries", rank, r.fanout.Total())
	}
	var buf [common.OffsetSize]byte
	if _, err := r.file.ReadAt(buf[:], r.offsetTableOffset()+int64(rank)*common.OffsetSize); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

// HashAt returns the hash stored at the given rank.
func (r *Reader) HashAt(rank uint32) (common.Hash, error) {
	var hash common.Hash
	if rank >= r.fanout.Total() {
		return hash, fmt.Errorf("rank %d out of range, index holds %d entries", rank, r.fanout.Total())
	}
	_, err := r.file.ReadAt(hash[:], r.hashTableOffset()+int64(rank)*common.HashSize)
	return hash, err
}

// Lookup resolves a hash straight to its pack byte offset.
func (r *Reader) Lookup(hash common.Hash) (offset uint64, found bool, err error) {
	rank, found, err := r.Search(hash)
	if err != nil || !found {
		return 0, found, err
	}
	offset, err = r.OffsetOf(rank)
	return offset, true, err
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}
