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
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/0xsoniclabs/chainstore/block"
	"github.com/0xsoniclabs/chainstore/common"
	"github.com/0xsoniclabs/chainstore/compress"
	"github.com/0xsoniclabs/chainstore/fileutil"
	"github.com/stretchr/testify/require"
)

// Test block format: parent hash (32) | epoch (8) | slot (4) | payload.
// A block's hash is the hash of its raw encoding.

const testHeaderSize = common.HashSize + 8 + 4

type testHeader struct {
	raw []byte
}

func (h testHeader) Hash() common.Hash {
	return common.HashOf(h.raw)
}

func (h testHeader) Parent() common.Hash {
	var parent common.Hash
	copy(parent[:], h.raw[:common.HashSize])
	return parent
}

func (h testHeader) Date() block.Date {
	return block.Date{
		Epoch: binary.BigEndian.Uint64(h.raw[32:40]),
		Slot:  binary.BigEndian.Uint32(h.raw[40:44]),
	}
}

type testBlockCodec struct{}

func (testBlockCodec) Decode(raw []byte) (block.Header, error) {
	if len(raw) < testHeaderSize {
		return nil, fmt.Errorf("block of %d bytes is too short", len(raw))
	}
	return testHeader{raw: raw}, nil
}

func makeBlock(parent common.Hash, date block.Date, payload string) []byte {
	raw := make([]byte, 0, testHeaderSize+len(payload))
	raw = append(raw, parent[:]...)
	raw = binary.BigEndian.AppendUint64(raw, date.Epoch)
	raw = binary.BigEndian.AppendUint32(raw, date.Slot)
	return append(raw, payload...)
}

func openTestStore(t *testing.T, cfg Config) *Store {
	t.Helper()
	store, err := Open(cfg, testBlockCodec{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_OpenBootstrapsDirectoryLayout(t *testing.T) {
	root := t.TempDir()
	store := openTestStore(t, Config{Root: root})

	for _, dir := range []string{"blob", "pack", "index", "tag", "refpack", "epoch", "chainstate"} {
		info, err := os.Stat(filepath.Join(root, dir))
		require.NoError(t, err)
		require.True(t, info.IsDir())
	}
	_, err := os.Stat(filepath.Join(root, "config.yml"))
	require.NoError(t, err)

	require.Equal(t, compress.Default, store.Config().Compression)
	require.Equal(t, uint32(DefaultSlotsPerEpoch), store.Config().SlotsPerEpoch)
}

func TestStore_SecondOpenOnSameRootIsRejected(t *testing.T) {
	root := t.TempDir()
	openTestStore(t, Config{Root: root})

	_, err := Open(Config{Root: root}, testBlockCodec{})
	require.True(t, fileutil.IsAlreadyLocked(err))
}

func TestStore_ReopenWithDifferentCodecIsRejected(t *testing.T) {
	root := t.TempDir()
	store, err := Open(Config{Root: root, Compression: compress.Deflate}, testBlockCodec{})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = Open(Config{Root: root, Compression: compress.Snappy}, testBlockCodec{})
	require.ErrorContains(t, err, "compression")

	// Matching parameters reopen fine.
	store, err = Open(Config{Root: root, Compression: compress.Deflate}, testBlockCodec{})
	require.NoError(t, err)
	require.NoError(t, store.Close())
}

func TestStore_InvalidConfigurationIsRejected(t *testing.T) {
	_, err := Open(Config{}, testBlockCodec{})
	require.ErrorContains(t, err, "root")

	_, err = Open(Config{Root: t.TempDir(), Compression: "gzip"}, testBlockCodec{})
	require.ErrorContains(t, err, "compression")
}

func TestStore_WrittenBlocksAreReadBack(t *testing.T) {
	store := openTestStore(t, Config{Root: t.TempDir()})

	raw := makeBlock(common.Hash{}, block.FirstSlot(0), "genesis")
	hash, err := store.WriteBlock(raw)
	require.NoError(t, err)
	require.Equal(t, common.HashOf(raw), hash)

	got, err := store.ReadBlock(hash)
	require.NoError(t, err)
	require.Equal(t, raw, got)

	exists, err := store.BlockExists(hash)
	require.NoError(t, err)
	require.True(t, exists)

	loc, err := store.BlockLocation(hash)
	require.NoError(t, err)
	require.Equal(t, Loose{Hash: hash}, loc)
}

func TestStore_MissingBlockReportsNotFound(t *testing.T) {
	store := openTestStore(t, Config{Root: t.TempDir()})

	absent := common.HashOf([]byte("never written"))
	_, err := store.BlockLocation(absent)
	require.ErrorIs(t, err, ErrNotFound)

	exists, err := store.BlockExists(absent)
	require.NoError(t, err)
	require.False(t, exists)
}

func TestStore_WriteBlockIsIdempotent(t *testing.T) {
	store := openTestStore(t, Config{Root: t.TempDir()})

	raw := makeBlock(common.Hash{}, block.FirstSlot(0), "dup")
	first, err := store.WriteBlock(raw)
	require.NoError(t, err)
	second, err := store.WriteBlock(raw)
	require.NoError(t, err)
	require.Equal(t, first, second)

	got, err := store.ReadBlock(first)
	require.NoError(t, err)
	require.Equal(t, raw, got)
}

func TestStore_EmptyBlocksAreRejected(t *testing.T) {
	// With the identity codec an empty block would become a zero-length
	// stored blob, which no pack can hold; the write must fail up front for
	// every codec.
	for _, codec := range []compress.Codec{compress.None, compress.Deflate, compress.Snappy} {
		t.Run(string(codec), func(t *testing.T) {
			store := openTestStore(t, Config{Root: t.TempDir(), Compression: codec})

			_, err := store.WriteBlock(nil)
			require.ErrorContains(t, err, "empty")
			_, err = store.WriteBlock([]byte{})
			require.ErrorContains(t, err, "empty")

			loose, err := store.blobs.list()
			require.NoError(t, err)
			require.Empty(t, loose, "rejected writes must leave no blob behind")
		})
	}
}

func TestStore_PackBlobsMigratesLooseToPacked(t *testing.T) {
	store := openTestStore(t, Config{Root: t.TempDir()})

	blocks := [][]byte{
		makeBlock(common.Hash{}, block.Date{Epoch: 0, Slot: 1}, "one"),
		makeBlock(common.Hash{}, block.Date{Epoch: 0, Slot: 2}, "two"),
		makeBlock(common.Hash{}, block.Date{Epoch: 0, Slot: 3}, "three"),
	}
	hashes := make([]common.Hash, len(blocks))
	for i, raw := range blocks {
		hash, err := store.WriteBlock(raw)
		require.NoError(t, err)
		hashes[i] = hash

		loc, err := store.BlockLocation(hash)
		require.NoError(t, err)
		require.IsType(t, Loose{}, loc)
	}

	packHash, err := store.PackBlobs(PackParameters{
		Hashes:               hashes,
		DeleteLooseAfterPack: true,
	})
	require.NoError(t, err)
	require.Equal(t, []common.Hash{packHash}, store.Packs())

	for i, hash := range hashes {
		loc, err := store.BlockLocation(hash)
		require.NoError(t, err)
		packed, ok := loc.(Packed)
		require.True(t, ok, "block %d must be packed", i)
		require.Equal(t, packHash, packed.Pack)

		require.False(t, store.blobs.exists(hash), "loose copy %d must be deleted", i)

		got, err := store.ReadLocation(loc)
		require.NoError(t, err)
		require.Equal(t, blocks[i], got, "packed content must equal loose content")
	}
}

func TestStore_PackHashIsDeterministic(t *testing.T) {
	build := func() common.Hash {
		store := openTestStore(t, Config{Root: t.TempDir()})
		var hashes []common.Hash
		for _, payload := range []string{"h1", "h2", "h3"} {
			hash, err := store.WriteBlock(makeBlock(common.Hash{}, block.Date{Epoch: 0, Slot: 1}, payload))
			require.NoError(t, err)
			hashes = append(hashes, hash)
		}
		packHash, err := store.PackBlobs(PackParameters{Hashes: hashes})
		require.NoError(t, err)
		return packHash
	}
	require.Equal(t, build(), build())
}

func TestStore_PackBlobsHonorsCaps(t *testing.T) {
	store := openTestStore(t, Config{Root: t.TempDir()})

	for i := 0; i < 10; i++ {
		_, err := store.WriteBlock(makeBlock(common.Hash{}, block.Date{Epoch: 0, Slot: uint32(i + 1)}, fmt.Sprintf("block %d", i)))
		require.NoError(t, err)
	}

	packHash, err := store.PackBlobs(PackParameters{MaxBlobs: 4, DeleteLooseAfterPack: true})
	require.NoError(t, err)
	require.Contains(t, store.Packs(), packHash)

	loose, err := store.blobs.list()
	require.NoError(t, err)
	require.Len(t, loose, 6, "capped pack must leave the rest loose")
}

func TestStore_PackBlobsWithoutCandidatesFails(t *testing.T) {
	store := openTestStore(t, Config{Root: t.TempDir()})
	_, err := store.PackBlobs(PackParameters{})
	require.ErrorContains(t, err, "no blobs")
}

func TestStore_PacksSurviveReopen(t *testing.T) {
	root := t.TempDir()
	store, err := Open(Config{Root: root}, testBlockCodec{})
	require.NoError(t, err)

	raw := makeBlock(common.Hash{}, block.Date{Epoch: 0, Slot: 1}, "persisted")
	hash, err := store.WriteBlock(raw)
	require.NoError(t, err)
	packHash, err := store.PackBlobs(PackParameters{DeleteLooseAfterPack: true})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store = openTestStore(t, Config{Root: root})
	require.Equal(t, []common.Hash{packHash}, store.Packs())

	got, err := store.ReadBlock(hash)
	require.NoError(t, err)
	require.Equal(t, raw, got)
}

func TestStore_UnparsableIndexFilesAreSkippedAtOpen(t *testing.T) {
	root := t.TempDir()
	store, err := Open(Config{Root: root}, testBlockCodec{})
	require.NoError(t, err)

	raw := makeBlock(common.Hash{}, block.Date{Epoch: 0, Slot: 1}, "survivor")
	hash, err := store.WriteBlock(raw)
	require.NoError(t, err)
	packHash, err := store.PackBlobs(PackParameters{DeleteLooseAfterPack: true})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// Corrupt the index and plant a stray file; the store must still open.
	indexPath := filepath.Join(root, "index", packHash.String())
	require.NoError(t, os.WriteFile(indexPath, []byte("garbage"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "index", "notahash"), []byte("stray"), 0600))

	store = openTestStore(t, Config{Root: root})
	require.Empty(t, store.Packs(), "corrupt index must be skipped")

	_, err = store.BlockLocation(hash)
	require.ErrorIs(t, err, ErrNotFound)

	// The pack is authoritative: rebuilding the index restores lookups.
	require.NoError(t, store.RebuildIndex(packHash))
	got, err := store.ReadBlock(hash)
	require.NoError(t, err)
	require.Equal(t, raw, got)
}

func TestStore_VerifyPackDetectsTampering(t *testing.T) {
	root := t.TempDir()
	store := openTestStore(t, Config{Root: root})

	_, err := store.WriteBlock(makeBlock(common.Hash{}, block.Date{Epoch: 0, Slot: 1}, "payload"))
	require.NoError(t, err)
	packHash, err := store.PackBlobs(PackParameters{})
	require.NoError(t, err)
	require.NoError(t, store.VerifyPack(packHash))

	packPath := filepath.Join(root, "pack", packHash.String())
	content, err := os.ReadFile(packPath)
	require.NoError(t, err)
	// Flip the first payload byte of the first frame; frame padding sits
	// outside the identity hash and would go unnoticed.
	content[fileutil.HeaderSize+common.SizeSize] ^= 0xff
	require.NoError(t, os.WriteFile(packPath, content, 0600))

	require.ErrorContains(t, store.VerifyPack(packHash), "verification")
}

func TestStore_TagsPointAtBlocks(t *testing.T) {
	store := openTestStore(t, Config{Root: t.TempDir()})

	hash, err := store.WriteBlock(makeBlock(common.Hash{}, block.FirstSlot(0), "tip"))
	require.NoError(t, err)

	require.False(t, store.TagExists(TagHead))
	require.NoError(t, store.WriteTag(TagHead, hash))
	require.True(t, store.TagExists(TagHead))

	got, err := store.ReadTag(TagHead)
	require.NoError(t, err)
	require.Equal(t, hash, got)

	// Tags are mutable.
	other, err := store.WriteBlock(makeBlock(hash, block.Date{Epoch: 0, Slot: 1}, "newer tip"))
	require.NoError(t, err)
	require.NoError(t, store.WriteTag(TagHead, other))
	got, err = store.ReadTag(TagHead)
	require.NoError(t, err)
	require.Equal(t, other, got)

	require.Equal(t, "EPOCH_42", EpochTag(42))
	require.Error(t, store.WriteTag("", hash))
	require.Error(t, store.WriteTag("a/b", hash))
}

func TestStore_CompressionCodecsRoundTripThroughAllTiers(t *testing.T) {
	for _, codec := range []compress.Codec{compress.None, compress.Deflate, compress.Snappy} {
		t.Run(string(codec), func(t *testing.T) {
			store := openTestStore(t, Config{Root: t.TempDir(), Compression: codec})

			raw := makeBlock(common.Hash{}, block.Date{Epoch: 0, Slot: 1}, "same bytes through every tier")
			hash, err := store.WriteBlock(raw)
			require.NoError(t, err)

			loose, err := store.ReadBlock(hash)
			require.NoError(t, err)
			require.Equal(t, raw, loose)

			_, err = store.PackBlobs(PackParameters{DeleteLooseAfterPack: true})
			require.NoError(t, err)

			packed, err := store.ReadBlock(hash)
			require.NoError(t, err)
			require.Equal(t, raw, packed)
		})
	}
}
