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
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/0xsoniclabs/chainstore/common"
	"github.com/0xsoniclabs/chainstore/compress"
	"github.com/0xsoniclabs/chainstore/fileutil"
)

// FileTypeBlob tags loose blob files.
const FileTypeBlob fileutil.FileType = 0x424c4f42 // "BLOB"

const blobFormatVersion fileutil.Version = 1

// blobStore is the loose tier: one content-addressed file per block, named
// by the hex hash of the uncompressed content, holding the shared header
// followed by the codec-encoded payload. Packs carry the encoded payload
// verbatim, so the loose and packed copy of a block are byte-identical
// below the blob header.
type blobStore struct {
	dir   string
	codec compress.Codec
}

func (b blobStore) path(hash common.Hash) string {
	return filepath.Join(b.dir, hash.String())
}

// write stores a block's raw content under its hash. Overwriting an existing
// blob is permitted; content addressing makes it idempotent.
func (b blobStore) write(hash common.Hash, raw []byte) error {
	encoded, err := b.codec.Compress(raw)
	if err != nil {
		return err
	}
	tmp, err := fileutil.NewTmpFile(b.dir)
	if err != nil {
		return err
	}
	defer tmp.Discard()
	if err := fileutil.WriteHeader(tmp, FileTypeBlob, blobFormatVersion); err != nil {
		return err
	}
	if _, err := tmp.Write(encoded); err != nil {
		return err
	}
	return tmp.RenderPermanent(b.path(hash))
}

// readStored returns the codec-encoded payload, as carried into packs.
func (b blobStore) readStored(hash common.Hash) ([]byte, error) {
	content, err := os.ReadFile(b.path(hash))
	if err != nil {
		return nil, err
	}
	reader := bytes.NewReader(content)
	if _, err := fileutil.CheckHeader(reader, FileTypeBlob, blobFormatVersion, blobFormatVersion); err != nil {
		return nil, fmt.Errorf("blob %s: %w", hash, err)
	}
	return content[fileutil.HeaderSize:], nil
}

// read returns the decoded block content.
func (b blobStore) read(hash common.Hash) ([]byte, error) {
	stored, err := b.readStored(hash)
	if err != nil {
		return nil, err
	}
	return b.codec.Decompress(stored)
}

func (b blobStore) exists(hash common.Hash) bool {
	_, err := os.Stat(b.path(hash))
	return err == nil
}

// remove deletes a loose blob. It is best effort: it only runs after the
// blob has been packed, where a leftover loose copy costs space, not
// correctness.
func (b blobStore) remove(hash common.Hash) {
	_ = os.Remove(b.path(hash))
}

// list returns the hashes of all loose blobs in hash order, giving
// compaction a deterministic input order.
func (b blobStore) list() ([]common.Hash, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, err
	}
	hashes := make([]common.Hash, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		hash, err := common.HashFromString(entry.Name())
		if err != nil {
			continue // tmpfiles and strays are not blobs
		}
		hashes = append(hashes, hash)
	}
	sort.Slice(hashes, func(i, j int) bool {
		return hashes[i].Compare(&hashes[j]) < 0
	})
	return hashes, nil
}
