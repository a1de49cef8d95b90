// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package packfile

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/0xsoniclabs/chainstore/common"
	"github.com/0xsoniclabs/chainstore/indexfile"
	"github.com/stretchr/testify/require"
)

func openIndex(t *testing.T, path string) *indexfile.Reader {
	t.Helper()
	reader, err := indexfile.OpenReader(path)
	require.NoError(t, err)
	return reader
}

func buildTestPack(t *testing.T, dir string, blobs [][]byte) (string, common.Hash, string) {
	t.Helper()
	writer, err := NewWriter(dir)
	require.NoError(t, err)
	for _, blob := range blobs {
		require.NoError(t, writer.Append(common.HashOf(blob), blob))
	}
	packHash, index, err := writer.Finalize()
	require.NoError(t, err)

	packPath := filepath.Join(dir, packHash.String()+".pack")
	require.NoError(t, writer.RenderPermanent(packPath))

	indexPath := filepath.Join(dir, packHash.String()+".index")
	require.NoError(t, index.WriteFile(indexPath, dir))
	return packPath, packHash, indexPath
}

func testBlobs(n int) [][]byte {
	blobs := make([][]byte, n)
	for i := range blobs {
		blobs[i] = []byte(fmt.Sprintf("blob content %d with some body", i))
	}
	return blobs
}

func TestPack_SequentialReadReturnsBlobsInAppendOrder(t *testing.T) {
	blobs := testBlobs(50)
	packPath, packHash, _ := buildTestPack(t, t.TempDir(), blobs)

	reader, err := OpenReader(packPath)
	require.NoError(t, err)
	defer reader.Close()

	for _, want := range blobs {
		got, err := reader.Next()
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	end, err := reader.Next()
	require.NoError(t, err)
	require.Nil(t, end)

	require.Equal(t, packHash, reader.Finalize(), "full scan must reproduce the pack identity")
}

func TestPack_IdentityIsDeterministic(t *testing.T) {
	blobs := testBlobs(10)
	_, first, _ := buildTestPack(t, t.TempDir(), blobs)
	_, second, _ := buildTestPack(t, t.TempDir(), blobs)
	require.Equal(t, first, second)

	// A different append order is a different pack.
	reversed := make([][]byte, len(blobs))
	for i := range blobs {
		reversed[i] = blobs[len(blobs)-1-i]
	}
	_, third, _ := buildTestPack(t, t.TempDir(), reversed)
	require.NotEqual(t, first, third)
}

func TestPack_IndexResolvesEveryBlob(t *testing.T) {
	blobs := testBlobs(200)
	dir := t.TempDir()
	packPath, _, indexPath := buildTestPack(t, dir, blobs)

	index := openIndex(t, indexPath)
	defer index.Close()

	seeker, err := OpenSeeker(packPath)
	require.NoError(t, err)
	defer seeker.Close()

	for _, blob := range blobs {
		offset, found, err := index.Lookup(common.HashOf(blob))
		require.NoError(t, err)
		require.True(t, found)

		got, err := seeker.BlobAtOffset(offset)
		require.NoError(t, err)
		require.Equal(t, blob, got)
	}
}

func TestPack_EmptyAndOversizedBlobsAreRejected(t *testing.T) {
	writer, err := NewWriter(t.TempDir())
	require.NoError(t, err)
	defer writer.Discard()

	require.Error(t, writer.Append(common.Hash{}, nil))
	require.Error(t, writer.Append(common.Hash{}, make([]byte, maxBlobSize+1)))
}

func TestPack_AppendAfterFinalizeFails(t *testing.T) {
	writer, err := NewWriter(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, writer.Append(common.HashOf([]byte("x")), []byte("x")))
	_, _, err = writer.Finalize()
	require.NoError(t, err)
	defer writer.Discard()

	require.Error(t, writer.Append(common.HashOf([]byte("y")), []byte("y")))
	_, _, err = writer.Finalize()
	require.Error(t, err)
}

func TestPack_RenderPermanentRequiresFinalize(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewWriter(dir)
	require.NoError(t, err)
	defer writer.Discard()

	require.Error(t, writer.RenderPermanent(filepath.Join(dir, "early.pack")))
}

func TestPack_TruncatedPackIsReportedAsCorrupt(t *testing.T) {
	dir := t.TempDir()
	blobs := testBlobs(3)
	packPath, _, _ := buildTestPack(t, dir, blobs)

	// Cut the last frame's padding off; the frames before it stay intact.
	info, err := os.Stat(packPath)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(packPath, info.Size()-3))

	reader, err := OpenReader(packPath)
	require.NoError(t, err)
	defer reader.Close()

	for _, want := range blobs[:2] {
		got, err := reader.Next()
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err = reader.Next()
	require.ErrorIs(t, err, io.ErrUnexpectedEOF, "a torn frame must not read as a clean end")
}

func TestPack_WriterTracksPositionAndCount(t *testing.T) {
	writer, err := NewWriter(t.TempDir())
	require.NoError(t, err)
	defer writer.Discard()

	require.Equal(t, uint64(16), writer.Pos())
	require.Zero(t, writer.Count())

	blob := []byte("12345") // framed: 4 + 5 + 3 padding
	require.NoError(t, writer.Append(common.HashOf(blob), blob))
	require.Equal(t, uint64(16+12), writer.Pos())
	require.Equal(t, uint32(1), writer.Count())
}
