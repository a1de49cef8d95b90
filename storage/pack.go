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
	"errors"
	"fmt"

	"github.com/0xsoniclabs/chainstore/common"
	"github.com/0xsoniclabs/chainstore/indexfile"
	"github.com/0xsoniclabs/chainstore/packfile"
)

// PackParameters selects the blobs of one compaction run. With no explicit
// hash list, all loose blobs are candidates in hash order, optionally capped
// by count and total payload bytes.
type PackParameters struct {
	// Hashes packs exactly the listed blobs in the given order; nil packs
	// all loose blobs.
	Hashes []common.Hash
	// MaxBlobs caps the number of blobs per pack; 0 means no cap. Ignored
	// when Hashes is set.
	MaxBlobs int
	// MaxBytes caps the total payload bytes per pack; 0 means no cap. The
	// cap is checked before each append, so at least one blob is always
	// packed. Ignored when Hashes is set.
	MaxBytes uint64
	// DeleteLooseAfterPack removes the loose copies once the pack and its
	// index are durable.
	DeleteLooseAfterPack bool
}

// PackBlobs migrates loose blobs into a new immutable pack: streams them
// into a pack writer, publishes the pack under its content hash, writes the
// index alongside, and registers the pack in memory so lookups in this
// process see it immediately. Other processes see the pack after their next
// index rescan.
func (s *Store) PackBlobs(params PackParameters) (common.Hash, error) {
	candidates := params.Hashes
	capped := false
	if candidates == nil {
		all, err := s.blobs.list()
		if err != nil {
			return common.Hash{}, err
		}
		candidates = all
		capped = true
	}
	if len(candidates) == 0 {
		return common.Hash{}, errors.New("no blobs to pack")
	}

	writer, err := packfile.NewWriter(s.cfg.packDir())
	if err != nil {
		return common.Hash{}, err
	}
	defer writer.Discard()

	var packed []common.Hash
	var payloadBytes uint64
	for _, hash := range candidates {
		if capped {
			if params.MaxBlobs > 0 && len(packed) >= params.MaxBlobs {
				break
			}
			if params.MaxBytes > 0 && len(packed) > 0 && payloadBytes >= params.MaxBytes {
				break
			}
		}
		stored, err := s.blobs.readStored(hash)
		if err != nil {
			return common.Hash{}, fmt.Errorf("blob %s cannot be packed: %w", hash, err)
		}
		if err := writer.Append(hash, stored); err != nil {
			return common.Hash{}, err
		}
		payloadBytes += uint64(len(stored))
		packed = append(packed, hash)
	}

	packHash, index, err := writer.Finalize()
	if err != nil {
		return common.Hash{}, err
	}
	if err := writer.RenderPermanent(s.packPath(packHash)); err != nil {
		return common.Hash{}, err
	}
	if err := s.registerIndex(packHash, index); err != nil {
		return common.Hash{}, err
	}

	s.log.WithFields(map[string]any{
		"pack":  packHash.String(),
		"blobs": len(packed),
		"bytes": payloadBytes,
	}).Debug("packed loose blobs")

	if params.DeleteLooseAfterPack {
		for _, hash := range packed {
			s.blobs.remove(hash)
		}
	}
	return packHash, nil
}

// registerIndex persists a freshly built index and adds it to the in-memory
// pack list, replacing a previously loaded index of the same pack.
func (s *Store) registerIndex(packHash common.Hash, index *indexfile.Index) error {
	if err := index.WriteFile(s.indexPath(packHash), s.cfg.indexDir()); err != nil {
		return err
	}
	reader, err := indexfile.OpenReader(s.indexPath(packHash))
	if err != nil {
		return err
	}
	for i := range s.packs {
		if s.packs[i].hash == packHash {
			old := s.packs[i].index
			s.packs[i].index = reader
			return old.Close()
		}
	}
	s.packs = append(s.packs, loadedPack{hash: packHash, index: reader})
	return nil
}

// RebuildIndex reconstructs the index of a pack by rescanning it, verifying
// the pack's content hash on the way. The pack, not the index, is the
// authority; this recovers from a lost or corrupted index file.
func (s *Store) RebuildIndex(packHash common.Hash) error {
	reader, err := packfile.OpenReader(s.packPath(packHash))
	if err != nil {
		return err
	}
	defer reader.Close()

	index := indexfile.NewIndex()
	for {
		offset := reader.Pos()
		stored, err := reader.Next()
		if err != nil {
			return err
		}
		if stored == nil {
			break
		}
		raw, err := s.cfg.Compression.Decompress(stored)
		if err != nil {
			return fmt.Errorf("pack %s: blob at offset %d cannot be decoded: %w", packHash, offset, err)
		}
		index.Append(common.HashOf(raw), offset)
	}
	if got := reader.Finalize(); got != packHash {
		return fmt.Errorf("pack %s fails verification, content hashes to %s", packHash, got)
	}
	return s.registerIndex(packHash, index)
}

// VerifyPack rescans a pack and checks its content against its name.
func (s *Store) VerifyPack(packHash common.Hash) error {
	reader, err := packfile.OpenReader(s.packPath(packHash))
	if err != nil {
		return err
	}
	defer reader.Close()
	for {
		blob, err := reader.Next()
		if err != nil {
			return err
		}
		if blob == nil {
			break
		}
	}
	if got := reader.Finalize(); got != packHash {
		return fmt.Errorf("pack %s fails verification, content hashes to %s", packHash, got)
	}
	return nil
}
