// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package fileutil

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Every binary file of the store starts with a fixed 16-byte header: an
// 8-byte magic constant, a 4-byte file type tag, and a 4-byte schema version,
// all big-endian.

// HeaderSize is the size of the shared file header in bytes.
const HeaderSize = magicSize + typeSize + versionSize

const (
	magicSize   = 8
	typeSize    = 4
	versionSize = 4
)

var magic = [magicSize]byte{0xfe, 'C', 'H', 'S', 'T', 'O', 'R', 'E'}

// FileType tags the kind of file behind the shared header.
type FileType uint32

// Version is the schema version of a file format.
type Version uint32

var (
	// ErrMissingMagic indicates the file does not start with the store's
	// magic constant.
	ErrMissingMagic = errors.New("missing magic constant")
	// ErrWrongFileType indicates the file's type tag does not match the
	// expected format.
	ErrWrongFileType = errors.New("wrong file type")
	// ErrVersionTooOld indicates the file's schema version is older than the
	// oldest version this build can read.
	ErrVersionTooOld = errors.New("file version too old")
	// ErrVersionTooNew indicates the file's schema version is newer than the
	// newest version this build can read.
	ErrVersionTooNew = errors.New("file version too new")
)

// WriteHeader writes the shared 16-byte header.
func WriteHeader(w io.Writer, fileType FileType, version Version) error {
	var buf [HeaderSize]byte
	copy(buf[0:magicSize], magic[:])
	binary.BigEndian.PutUint32(buf[8:12], uint32(fileType))
	binary.BigEndian.PutUint32(buf[12:16], uint32(version))
	_, err := w.Write(buf[:])
	return err
}

// CheckHeader reads and validates the shared header, checking the file type
// and that the version falls in the inclusive [minVersion, maxVersion] range.
// It returns the version found in the file.
func CheckHeader(r io.Reader, fileType FileType, minVersion, maxVersion Version) (Version, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	if [magicSize]byte(buf[0:magicSize]) != magic {
		return 0, ErrMissingMagic
	}
	gotType := FileType(binary.BigEndian.Uint32(buf[8:12]))
	version := Version(binary.BigEndian.Uint32(buf[12:16]))
	if gotType != fileType {
		return 0, fmt.Errorf("%w: got %08x, want %08x", ErrWrongFileType, uint32(gotType), uint32(fileType))
	}
	if version < minVersion {
		return 0, fmt.Errorf("%w: got %d, oldest supported is %d", ErrVersionTooOld, version, minVersion)
	}
	if version > maxVersion {
		return 0, fmt.Errorf("%w: got %d, newest supported is %d", ErrVersionTooNew, version, maxVersion)
	}
	return version, nil
}
