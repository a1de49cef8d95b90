// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package appendlog provides a crash-tolerant, append-only log of
// length-prefixed frames behind the store's shared file header. A torn tail
// frame left by a crash mid-append is treated as the end of the log, not as
// corruption.
package appendlog

import (
	"bufio"
	"errors"
	"io"
	"os"

	"github.com/0xsoniclabs/chainstore/common"
	"github.com/0xsoniclabs/chainstore/fileutil"
)

// maxFrameSize bounds a single log entry; larger length fields are rejected
// as corruption rather than allocated.
const maxFrameSize = 20 * 1024 * 1024

// Writer appends frames to a log file. It holds an exclusive lock on the
// file for its whole lifetime; a second writer fails fast with an
// AlreadyLockedError.
type Writer struct {
	file *os.File
	buf  *bufio.Writer
	lock *fileutil.Lock
}

// OpenWriter opens (or creates) the log at path for appending. A fresh file
// gets the shared header; an existing one has its header validated.
func OpenWriter(path string, fileType fileutil.FileType, version fileutil.Version) (*Writer, error) {
	lock, err := fileutil.AcquireLock(path)
	if err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, errors.Join(err, lock.Release())
	}
	info, err := file.Stat()
	if err != nil {
		return nil, errors.Join(err, file.Close(), lock.Release())
	}
	if info.Size() == 0 {
		if err := fileutil.WriteHeader(file, fileType, version); err != nil {
			return nil, errors.Join(err, file.Close(), lock.Release())
		}
	} else {
		if _, err := fileutil.CheckHeader(file, fileType, version, version); err != nil {
			return nil, errors.Join(err, file.Close(), lock.Release())
		}
	}
	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return nil, errors.Join(err, file.Close(), lock.Release())
	}
	return &Writer{
		file: file,
		buf:  bufio.NewWriter(file),
		lock: lock,
	}, nil
}

// Append writes one frame to the log. Empty payloads are skipped, since a
// zero-length frame is indistinguishable from a torn tail to a reader.
func (w *Writer) Append(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	_, err := common.WriteLengthPrefixed(w.buf, data)
	return err
}

// Flush pushes buffered frames to the operating system.
func (w *Writer) Flush() error {
	return w.buf.Flush()
}

// Sync flushes buffered frames and forces them to stable storage.
func (w *Writer) Sync() error {
	if err := w.buf.Flush(); err != nil {
		return err
	}
	return w.file.Sync()
}

// Close flushes, closes the file, and releases the lock.
func (w *Writer) Close() error {
	return errors.Join(
		w.buf.Flush(),
		w.file.Close(),
		w.lock.Release(),
	)
}

// Reader iterates the frames of a log file in append order.
type Reader struct {
	file *os.File
	buf  *bufio.Reader
}

// OpenReader opens the log at path and validates its header.
func OpenReader(path string, fileType fileutil.FileType, version fileutil.Version) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if _, err := fileutil.CheckHeader(file, fileType, version, version); err != nil {
		return nil, errors.Join(err, file.Close())
	}
	return &Reader{file: file, buf: bufio.NewReader(file)}, nil
}

// Next returns the next frame's payload, or (nil, nil) at the end of the
// log. A truncated tail frame, as left by a crash during an append, also
// terminates the iteration cleanly.
func (r *Reader) Next() ([]byte, error) {
	data, err := common.ReadLengthPrefixed(r.buf, maxFrameSize)
	if err != nil {
		if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}
