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
	"errors"
	"fmt"
	"math/rand"
	"os"
)

// TmpFile is a transient file that becomes permanent only through an atomic
// rename. Data written to it is invisible to readers until RenderPermanent
// succeeds; a crash before that leaves an orphaned .tmp. file that readers
// never see and that can be garbage collected externally.
//
// Rename atomicity is a filesystem assumption: POSIX guarantees it, some
// non-POSIX filesystems do not.
type TmpFile struct {
	*os.File
	path string
	done bool
}

// NewTmpFile exclusively creates a pseudo-randomly named file for reading
// and writing under dir.
func NewTmpFile(dir string) (*TmpFile, error) {
	for {
		path := fmt.Sprintf("%s/.tmp.%d%d", dir, rand.Uint64(), rand.Uint64())
		file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0600)
		if err != nil {
			if os.IsExist(err) {
				continue
			}
			return nil, err
		}
		return &TmpFile{File: file, path: path}, nil
	}
}

// RenderPermanent closes the file and atomically renames it to path.
func (t *TmpFile) RenderPermanent(path string) error {
	if t.done {
		return fmt.Errorf("tmpfile %s already finalized", t.path)
	}
	t.done = true
	if err := t.File.Close(); err != nil {
		return err
	}
	return os.Rename(t.path, path)
}

// Discard closes and deletes the file unless it was rendered permanent.
// Safe to defer unconditionally.
func (t *TmpFile) Discard() error {
	if t.done {
		return nil
	}
	t.done = true
	return errors.Join(t.File.Close(), os.Remove(t.path))
}

// AtomicWrite writes the content to path through a tmpfile and an atomic
// rename. If anything fails before the rename, path is left untouched.
func AtomicWrite(path, dir string, content []byte) error {
	tmp, err := NewTmpFile(dir)
	if err != nil {
		return err
	}
	defer tmp.Discard()
	if _, err := tmp.Write(content); err != nil {
		return err
	}
	return tmp.RenderPermanent(path)
}
