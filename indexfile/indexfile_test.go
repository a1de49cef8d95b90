// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package indexfile

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/0xsoniclabs/chainstore/common"
	"github.com/0xsoniclabs/chainstore/fileutil"
	"github.com/stretchr/testify/require"
)

func writeTestIndex(t *testing.T, entries map[common.Hash]uint64) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.index")
	index := NewIndex()
	for hash, offset := range entries {
		index.Append(hash, offset)
	}
	require.NoError(t, index.WriteFile(path, dir))
	return path
}

func testEntries(n int) map[common.Hash]uint64 {
	entries := make(map[common.Hash]uint64, n)
	for i := 0; i < n; i++ {
		hash := common.HashOf(binary.BigEndian.AppendUint64(nil, uint64(i)))
		entries[hash] = uint64(i) * 64
	}
	return entries
}

func TestIndex_AllEntriesAreFound(t *testing.T) {
	entries := testEntries(1000)
	path := writeTestIndex(t, entries)

	reader, err := OpenReader(path)
	require.NoError(t, err)
	defer reader.Close()

	require.Equal(t, uint32(len(entries)), reader.Count())
	for hash, wantOffset := range entries {
		offset, found, err := reader.Lookup(hash)
		require.NoError(t, err)
		require.True(t, found, "hash %s must be found", hash)
		require.Equal(t, wantOffset, offset)
	}
}

func TestIndex_AbsentKeysAreNotFound(t *testing.T) {
	path := writeTestIndex(t, testEntries(1000))

	reader, err := OpenReader(path)
	require.NoError(t, err)
	defer reader.Close()

	for i := 0; i < 1000; i++ {
		absent := common.HashOf([]byte(fmt.Sprintf("absent-%d", i)))
		_, found, err := reader.Lookup(absent)
		require.NoError(t, err)
		require.False(t, found)
	}
}

func TestIndex_EmptyIndexFindsNothing(t *testing.T) {
	path := writeTestIndex(t, nil)

	reader, err := OpenReader(path)
	require.NoError(t, err)
	defer reader.Close()

	require.Zero(t, reader.Count())
	_, found, err := reader.Lookup(common.HashOf([]byte("anything")))
	require.NoError(t, err)
	require.False(t, found)
}

func TestIndex_RanksEnumerateSortedHashes(t *testing.T) {
	entries := testEntries(100)
	path := writeTestIndex(t, entries)

	reader, err := OpenReader(path)
	require.NoError(t, err)
	defer reader.Close()

	var prev common.Hash
	for rank := uint32(0); rank < reader.Count(); rank++ {
		hash, err := reader.HashAt(rank)
		require.NoError(t, err)
		if rank > 0 {
			require.Negative(t, prev.Compare(&hash), "hash table must be sorted")
		}
		prev = hash

		offset, err := reader.OffsetOf(rank)
		require.NoError(t, err)
		require.Equal(t, entries[hash], offset)
	}

	_, err = reader.HashAt(reader.Count())
	require.Error(t, err)
	_, err = reader.OffsetOf(reader.Count())
	require.Error(t, err)
}

func TestIndex_EmptyBloomFilterIsRejectedAtOpen(t *testing.T) {
	// A file announcing a zero-size bloom filter is structurally consistent
	// but can never have been written by the builder; it must be rejected
	// when opened, not fail on the first lookup.
	path := filepath.Join(t.TempDir(), "crafted.index")
	file, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, fileutil.WriteHeader(file, FileTypeIndex, FormatVersion))

	var field [bloomSizeFieldSize]byte // bloom size 0
	_, err = file.Write(field[:])
	require.NoError(t, err)

	var fanout [fanoutSize]byte // cumulative counts, one entry in total
	for n := 0; n < 256; n++ {
		binary.BigEndian.PutUint32(fanout[n*common.SizeSize:], 1)
	}
	_, err = file.Write(fanout[:])
	require.NoError(t, err)

	hash := common.HashOf([]byte("entry"))
	_, err = file.Write(hash[:])
	require.NoError(t, err)
	var offset [common.OffsetSize]byte
	_, err = file.Write(offset[:])
	require.NoError(t, err)
	require.NoError(t, file.Close())

	_, err = OpenReader(path)
	require.ErrorContains(t, err, "bloom")
}

func TestIndex_TruncatedFileIsRejected(t *testing.T) {
	path := writeTestIndex(t, testEntries(100))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, info.Size()-8))

	_, err = OpenReader(path)
	require.Error(t, err)
}

func TestBloom_NoFalseNegatives(t *testing.T) {
	bloom := NewBloom(DefaultBloomSize(1000))
	hashes := make([]common.Hash, 1000)
	for i := range hashes {
		hashes[i] = common.HashOf(binary.BigEndian.AppendUint64(nil, uint64(i)))
		bloom.Add(hashes[i])
	}
	for _, hash := range hashes {
		require.True(t, bloom.MaybeContains(hash))
	}
}

func TestBloom_FalsePositiveRateIsBounded(t *testing.T) {
	bloom := NewBloom(DefaultBloomSize(1000))
	for i := 0; i < 1000; i++ {
		bloom.Add(common.HashOf(binary.BigEndian.AppendUint64(nil, uint64(i))))
	}
	falsePositives := 0
	const samples = 10_000
	for i := 0; i < samples; i++ {
		if bloom.MaybeContains(common.HashOf([]byte(fmt.Sprintf("absent-%d", i)))) {
			falsePositives++
		}
	}
	// 1000 entries with 3 probes in a 4096-bit filter give a theoretical
	// false-positive rate around 15%; anything far above that signals a
	// broken probe derivation.
	require.Less(t, falsePositives, samples/4)
}

func TestBloom_DefaultSizeGrowsWithEntryCount(t *testing.T) {
	require.Equal(t, uint32(512), DefaultBloomSize(0))
	require.Equal(t, uint32(512), DefaultBloomSize(0xfff))
	require.Equal(t, uint32(1024), DefaultBloomSize(0x1000))
	require.Equal(t, uint32(2048), DefaultBloomSize(0x5000))
	require.Equal(t, uint32(4096), DefaultBloomSize(0x22000))
}

func TestFanout_BucketsCoverAllRanks(t *testing.T) {
	entries := testEntries(500)
	sorted := make([]common.Hash, 0, len(entries))
	for hash := range entries {
		sorted = append(sorted, hash)
	}
	for i := range sorted {
		for j := i + 1; j < len(sorted); j++ {
			if sorted[j].Compare(&sorted[i]) < 0 {
				sorted[i], sorted[j] = sorted[j], sorted[i]
			}
		}
	}

	fanout := NewFanout(sorted)
	require.Equal(t, uint32(len(sorted)), fanout.Total())

	var covered uint32
	for prefix := 0; prefix < 256; prefix++ {
		start, end := fanout.Bucket(byte(prefix))
		require.Equal(t, covered, start)
		for rank := start; rank < end; rank++ {
			require.Equal(t, byte(prefix), sorted[rank][0])
		}
		covered = end
	}
	require.Equal(t, fanout.Total(), covered)
}
