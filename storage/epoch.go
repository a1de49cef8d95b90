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
	"strings"

	"github.com/0xsoniclabs/chainstore/block"
	"github.com/0xsoniclabs/chainstore/common"
	"github.com/0xsoniclabs/chainstore/fileutil"
	"github.com/0xsoniclabs/chainstore/packfile"
	"github.com/0xsoniclabs/chainstore/reffile"
)

// SealEpoch binds an epoch to a pack holding exactly that epoch's blocks.
// The pack is scanned once: each block's date is matched against the walked
// slot calendar to build the dense slot-to-hash reference table, and the
// running content hash is checked against the pack's name. The epoch becomes
// visible through two sibling files, a pointer file holding the hex pack
// hash and the reference table itself.
//
// The pack must hold the blocks in ascending slot order; sealing is how that
// order gets certified.
func (s *Store) SealEpoch(epoch uint64, packHash common.Hash) error {
	reader, err := packfile.OpenReader(s.packPath(packHash))
	if err != nil {
		return err
	}
	defer reader.Close()

	ref := reffile.NewRefPack()
	expected := block.FirstSlot(epoch)
	for {
		stored, err := reader.Next()
		if err != nil {
			return err
		}
		if stored == nil {
			break
		}
		raw, err := s.cfg.Compression.Decompress(stored)
		if err != nil {
			return err
		}
		header, err := s.decodeHeader(raw)
		if err != nil {
			return err
		}
		date := header.Date()
		if date.Epoch != epoch {
			return fmt.Errorf("pack %s holds block %s of epoch %d, sealing epoch %d",
				packHash, header.Hash(), date.Epoch, epoch)
		}
		if date.Compare(expected) < 0 {
			return fmt.Errorf("pack %s is not in slot order: block %s at %s arrives after slot %s",
				packHash, header.Hash(), date, expected)
		}
		for expected.Compare(date) < 0 {
			ref.AppendMissing()
			expected = expected.Next(s.cfg.SlotsPerEpoch)
		}
		ref.AppendHash(header.Hash())
		expected = expected.Next(s.cfg.SlotsPerEpoch)
	}
	if got := reader.Finalize(); got != packHash {
		return fmt.Errorf("pack %s fails verification, content hashes to %s", packHash, got)
	}
	for expected.Epoch == epoch {
		ref.AppendMissing()
		expected = expected.Next(s.cfg.SlotsPerEpoch)
	}
	return s.SealEpochWithRefPack(epoch, packHash, ref)
}

// SealEpochWithRefPack binds an epoch to a pack using an already built
// reference table, skipping the pack scan. Used when the table was
// accumulated during sync and stored under a name first.
func (s *Store) SealEpochWithRefPack(epoch uint64, packHash common.Hash, ref *reffile.RefPack) error {
	dir := s.cfg.epochDir(epoch)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	if err := ref.WriteFile(s.cfg.epochRefPackPath(epoch), dir); err != nil {
		return err
	}
	return fileutil.AtomicWrite(s.cfg.epochPackPath(epoch), dir, []byte(packHash.String()))
}

// EpochPackHash reads the pointer file of a sealed epoch. A missing epoch
// reports os.ErrNotExist, which epoch iteration turns into a clean stop.
func (s *Store) EpochPackHash(epoch uint64) (common.Hash, error) {
	content, err := os.ReadFile(s.cfg.epochPackPath(epoch))
	if err != nil {
		return common.Hash{}, err
	}
	hash, err := common.HashFromString(strings.TrimSpace(string(content)))
	if err != nil {
		return common.Hash{}, fmt.Errorf("epoch %d pointer file is malformed: %w", epoch, err)
	}
	return hash, nil
}

// EpochRefPack loads the slot-to-hash reference table of a sealed epoch.
func (s *Store) EpochRefPack(epoch uint64) (*reffile.RefPack, error) {
	return reffile.Load(s.cfg.epochRefPackPath(epoch))
}

// OpenEpochRefPackReader streams the occupied slots of a sealed epoch.
func (s *Store) OpenEpochRefPackReader(epoch uint64) (*reffile.Reader, error) {
	return reffile.OpenReader(s.cfg.epochRefPackPath(epoch))
}

// WriteRefPack stores a reference table under a name, independent of any
// epoch. Sync uses named tables as staging before an epoch is sealed.
func (s *Store) WriteRefPack(name string, ref *reffile.RefPack) error {
	if name == "" || strings.ContainsRune(name, os.PathSeparator) {
		return fmt.Errorf("invalid refpack name %q", name)
	}
	return ref.WriteFile(s.cfg.refPackPath(name), s.cfg.refPackDir())
}

// ReadRefPack loads a named reference table.
func (s *Store) ReadRefPack(name string) (*reffile.RefPack, error) {
	return reffile.Load(s.cfg.refPackPath(name))
}
