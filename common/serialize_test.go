// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package common

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSerialize_Align4(t *testing.T) {
	for n, want := range map[uint64]uint64{
		0: 0, 1: 4, 2: 4, 3: 4, 4: 4, 5: 8, 8: 8, 9: 12,
	} {
		if got := Align4(n); got != want {
			t.Errorf("Align4(%d) = %d, want %d", n, got, want)
		}
	}
}

func TestSerialize_FramesArePaddedToFourBytes(t *testing.T) {
	for payloadLen := 0; payloadLen < 9; payloadLen++ {
		payload := bytes.Repeat([]byte{0xab}, payloadLen)
		var buf bytes.Buffer
		written, err := WriteLengthPrefixed(&buf, payload)
		require.NoError(t, err)
		require.Equal(t, FramedSize(payloadLen), written)
		require.Equal(t, written, uint64(buf.Len()))
		require.Zero(t, buf.Len()%4)
	}
}

func TestSerialize_RoundTripPreservesPayload(t *testing.T) {
	payloads := [][]byte{
		{},
		{0x01},
		[]byte("exactly4"),
		bytes.Repeat([]byte{0x7f}, 1000),
	}
	var buf bytes.Buffer
	for _, payload := range payloads {
		_, err := WriteLengthPrefixed(&buf, payload)
		require.NoError(t, err)
	}
	for _, want := range payloads {
		got, err := ReadLengthPrefixed(&buf, 0)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	require.Zero(t, buf.Len(), "reader must consume padding exactly")
}

func TestSerialize_ReadRejectsOversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	_, err := WriteLengthPrefixed(&buf, make([]byte, 100))
	require.NoError(t, err)

	_, err = ReadLengthPrefixed(&buf, 10)
	require.ErrorContains(t, err, "exceeds limit")
}

func TestSerialize_TruncatedFrameReportsUnexpectedEOF(t *testing.T) {
	var buf bytes.Buffer
	_, err := WriteLengthPrefixed(&buf, []byte("hello world"))
	require.NoError(t, err)

	// A cut anywhere behind the size field is a torn frame: inside the
	// payload, before the payload, or inside the padding.
	for _, keep := range []int{buf.Len() - 4, SizeSize, buf.Len() - 1} {
		truncated := buf.Bytes()[:keep]
		_, err = ReadLengthPrefixed(bytes.NewReader(truncated), 0)
		require.ErrorIs(t, err, io.ErrUnexpectedEOF, "cut at %d bytes", keep)
	}

	// A cut exactly before a size field is a clean end.
	_, err = ReadLengthPrefixed(bytes.NewReader(nil), 0)
	require.ErrorIs(t, err, io.EOF)
}
