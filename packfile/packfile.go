// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package packfile implements immutable pack files: a sequence of
// length-prefixed blobs behind the shared file header. A pack's identity is
// the hash of its unframed payloads in append order, so repacking the same
// blobs in the same order always produces the same file name.
package packfile

import (
	"bufio"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/0xsoniclabs/chainstore/common"
	"github.com/0xsoniclabs/chainstore/fileutil"
	"github.com/0xsoniclabs/chainstore/indexfile"
)

// FileTypePack tags pack files.
const FileTypePack fileutil.FileType = 0x5041434b // "PACK"

// FormatVersion is the current pack schema version.
const FormatVersion fileutil.Version = 1

// maxBlobSize bounds a single blob in a pack; larger length fields are
// treated as corruption.
const maxBlobSize = 20 * 1024 * 1024

// Writer accumulates blobs into a tmpfile and builds the matching index as
// it goes. The pack only becomes visible once RenderPermanent is called with
// the name derived from Finalize's content hash.
type Writer struct {
	tmp    *fileutil.TmpFile
	buf    *bufio.Writer
	index  *indexfile.Index
	hasher hash.Hash
	pos    uint64
	count  uint32
	sealed bool
}

// NewWriter starts a new pack in a tmpfile under dir.
func NewWriter(dir string) (*Writer, error) {
	tmp, err := fileutil.NewTmpFile(dir)
	if err != nil {
		return nil, err
	}
	buf := bufio.NewWriter(tmp)
	if err := fileutil.WriteHeader(buf, FileTypePack, FormatVersion); err != nil {
		return nil, errors.Join(err, tmp.Discard())
	}
	return &Writer{
		tmp:    tmp,
		buf:    buf,
		index:  indexfile.NewIndex(),
		hasher: common.NewHasher(),
		pos:    fileutil.HeaderSize,
	}, nil
}

// Append adds one blob to the pack, keyed by the given hash. The hash is the
// blob's storage key and is recorded in the index together with the blob's
// frame offset; the pack's own identity hash covers the raw payload only.
func (w *Writer) Append(key common.Hash, blob []byte) error {
	if w.sealed {
		return errors.New("pack writer already finalized")
	}
	if len(blob) == 0 {
		return errors.New("empty blobs cannot be packed")
	}
	if len(blob) > maxBlobSize {
		return fmt.Errorf("blob of %d bytes exceeds pack limit of %d", len(blob), maxBlobSize)
	}
	w.index.Append(key, w.pos)
	w.hasher.Write(blob)
	written, err := common.WriteLengthPrefixed(w.buf, blob)
	if err != nil {
		return err
	}
	w.pos += written
	w.count++
	return nil
}

// Pos returns the file offset where the next blob frame would start.
func (w *Writer) Pos() uint64 {
	return w.pos
}

// Count returns the number of blobs appended so far.
func (w *Writer) Count() uint32 {
	return w.count
}

// Finalize flushes the pack and returns its identity hash and the index
// built alongside it. The file stays a tmpfile until RenderPermanent.
func (w *Writer) Finalize() (common.Hash, *indexfile.Index, error) {
	var packHash common.Hash
	if w.sealed {
		return packHash, nil, errors.New("pack writer already finalized")
	}
	w.sealed = true
	if err := w.buf.Flush(); err != nil {
		return packHash, nil, errors.Join(err, w.tmp.Discard())
	}
	if err := w.tmp.Sync(); err != nil {
		return packHash, nil, errors.Join(err, w.tmp.Discard())
	}
	copy(packHash[:], w.hasher.Sum(nil))
	return packHash, w.index, nil
}

// RenderPermanent atomically publishes the finalized pack under path.
func (w *Writer) RenderPermanent(path string) error {
	if !w.sealed {
		return errors.New("pack writer must be finalized first")
	}
	return w.tmp.RenderPermanent(path)
}

// Discard drops the pack unless it was rendered permanent.
func (w *Writer) Discard() error {
	return w.tmp.Discard()
}

// Reader iterates the blobs of a pack file in append order while hashing
// the payloads, so the pack's identity can be verified after a full scan.
type Reader struct {
	file   *os.File
	buf    *bufio.Reader
	hasher hash.Hash
	pos    uint64
}

// OpenReader opens a pack file and validates its header.
func OpenReader(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	buf := bufio.NewReader(file)
	if _, err := fileutil.CheckHeader(buf, FileTypePack, FormatVersion, FormatVersion); err != nil {
		return nil, errors.Join(err, file.Close())
	}
	return &Reader{
		file:   file,
		buf:    buf,
		hasher: common.NewHasher(),
		pos:    fileutil.HeaderSize,
	}, nil
}

// Pos returns the file offset of the next blob frame.
func (r *Reader) Pos() uint64 {
	return r.pos
}

// Next returns the next blob payload, or (nil, nil) at the end of the pack.
// Packs are published atomically, so a truncated frame is corruption, not a
// torn tail.
func (r *Reader) Next() ([]byte, error) {
	blob, err := common.ReadLengthPrefixed(r.buf, maxBlobSize)
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, err
	}
	r.hasher.Write(blob)
	r.pos += common.FramedSize(len(blob))
	return blob, nil
}

// Finalize returns the identity hash over all payloads returned by Next. It
// is only meaningful after the pack has been read to its end.
func (r *Reader) Finalize() common.Hash {
	var packHash common.Hash
	copy(packHash[:], r.hasher.Sum(nil))
	return packHash
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}

// Seeker provides random access to blobs of a pack by their frame offset,
// as recorded in the pack's index.
type Seeker struct {
	file *os.File
}

// OpenSeeker opens a pack file for positioned blob reads.
func OpenSeeker(path string) (*Seeker, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if _, err := fileutil.CheckHeader(file, FileTypePack, FormatVersion, FormatVersion); err != nil {
		return nil, errors.Join(err, file.Close())
	}
	return &Seeker{file: file}, nil
}

// BlobAtOffset reads the blob whose frame starts at the given file offset.
func (s *Seeker) BlobAtOffset(offset uint64) ([]byte, error) {
	if offset < fileutil.HeaderSize {
		return nil, fmt.Errorf("offset %d points into the pack header", offset)
	}
	section := io.NewSectionReader(s.file, int64(offset), int64(common.SizeSize)+maxBlobSize)
	return common.ReadLengthPrefixed(section, maxBlobSize)
}

// Close closes the underlying file.
func (s *Seeker) Close() error {
	return s.file.Close()
}
