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
	"os"
	"path/filepath"
	"strings"

	"github.com/0xsoniclabs/chainstore/common"
	"github.com/0xsoniclabs/chainstore/fileutil"
)

// TagHead is the conventional tag tracking the chain tip.
const TagHead = "HEAD"

// EpochTag names the tag pointing at the last block of an epoch.
func EpochTag(epoch uint64) string {
	return fmt.Sprintf("EPOCH_%d", epoch)
}

func (s *Store) tagPath(name string) string {
	return filepath.Join(s.cfg.tagDir(), name)
}

// WriteTag points a named tag at a block hash. Tags are mutable and replaced
// atomically.
func (s *Store) WriteTag(name string, hash common.Hash) error {
	if name == "" || strings.ContainsRune(name, os.PathSeparator) {
		return fmt.Errorf("invalid tag name %q", name)
	}
	return fileutil.AtomicWrite(s.tagPath(name), s.cfg.tagDir(), []byte(hash.String()))
}

// ReadTag resolves a tag to the block hash it points at.
func (s *Store) ReadTag(name string) (common.Hash, error) {
	content, err := os.ReadFile(s.tagPath(name))
	if err != nil {
		return common.Hash{}, err
	}
	hash, err := common.HashFromString(strings.TrimSpace(string(content)))
	if err != nil {
		return common.Hash{}, fmt.Errorf("tag %s is malformed: %w", name, err)
	}
	return hash, nil
}

// TagExists reports whether a tag is set.
func (s *Store) TagExists(name string) bool {
	_, err := os.Stat(s.tagPath(name))
	return err == nil
}
