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
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLock_AcquireIsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resource")

	lock, err := AcquireLock(path)
	require.NoError(t, err)
	require.Equal(t, path, lock.Path())

	_, err = AcquireLock(path)
	require.True(t, IsAlreadyLocked(err))

	var conflict *AlreadyLockedError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, os.Getpid(), conflict.Owner)
}

func TestLock_ReleaseAllowsReacquisition(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resource")

	lock, err := AcquireLock(path)
	require.NoError(t, err)
	require.NoError(t, lock.Release())

	again, err := AcquireLock(path)
	require.NoError(t, err)
	require.NoError(t, again.Release())
}

func TestLock_ReleaseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resource")

	lock, err := AcquireLock(path)
	require.NoError(t, err)
	require.NoError(t, lock.Release())
	require.NoError(t, lock.Release())
}

func TestLock_FileHoldsOwnerPid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resource")

	lock, err := AcquireLock(path)
	require.NoError(t, err)
	defer lock.Release()

	content, err := os.ReadFile(path + lockExtension)
	require.NoError(t, err)
	require.Equal(t, strconv.Itoa(os.Getpid()), string(content))
}

func TestLock_UnparsableLockFileIsReported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resource")
	require.NoError(t, os.WriteFile(path+lockExtension, []byte("not a pid"), 0600))

	_, err := AcquireLock(path)
	require.Error(t, err)
	require.False(t, IsAlreadyLocked(err))
}

func TestLock_IsAlreadyLockedIgnoresOtherErrors(t *testing.T) {
	require.False(t, IsAlreadyLocked(errors.New("some other error")))
	require.False(t, IsAlreadyLocked(nil))
}
