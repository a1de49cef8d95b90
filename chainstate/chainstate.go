// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package chainstate persists per-epoch snapshots of the chain's ledger
// state as dyadic deltas: the snapshot of epoch e stores only the difference
// against the snapshot of epoch e with its lowest set bit cleared, and epoch
// 0 stores the full state. Reconstructing any epoch therefore opens at most
// one file per set bit of its number, keeping both reads and total disk
// usage logarithmic in chain length.
package chainstate

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/0xsoniclabs/chainstore/common"
	"github.com/0xsoniclabs/chainstore/fileutil"
)

// FileTypeState tags chain state snapshot files.
const FileTypeState fileutil.FileType = 0x5554584f // "UTXO"

// FormatVersion is the current snapshot schema version.
const FormatVersion fileutil.Version = 1

// maxValueSize bounds a single unspent output entry.
const maxValueSize = 1024 * 1024

// UtxoKey identifies one unspent transaction output.
type UtxoKey struct {
	TxID  common.Hash
	Index uint32
}

const utxoKeySize = common.HashSize + common.SizeSize

func (k UtxoKey) String() string {
	return fmt.Sprintf("%s:%d", k.TxID, k.Index)
}

// less orders keys for the deterministic linear-merge diff.
func (k UtxoKey) less(other UtxoKey) bool {
	if cmp := k.TxID.Compare(&other.TxID); cmp != 0 {
		return cmp < 0
	}
	return k.Index < other.Index
}

// State is the ledger state of the chain at the end of an epoch. Utxo values
// are opaque to the store.
type State struct {
	Parent      common.Hash // parent of the last applied block
	Block       common.Hash // last applied block
	Boundary    common.Hash // boundary block of the epoch
	Epoch       uint64
	Slot        uint32
	ChainLength uint64
	TxCount     uint64
	SpentCount  uint64
	Utxos       map[UtxoKey][]byte

	// utxoCount is the set size declared by the snapshot file, checked
	// against the folded result as an integrity guard.
	utxoCount uint64
}

// ParentForEpoch returns the epoch a snapshot's delta is computed against:
// the epoch number with its lowest set bit cleared. Epoch 0 has no parent
// and stores the full state.
func ParentForEpoch(epoch uint64) (uint64, bool) {
	if epoch == 0 {
		return 0, false
	}
	return epoch & (epoch - 1), true
}

// Store reads and writes epoch snapshots under a directory.
type Store struct {
	dir string
	// open is an indirection for tests observing file access patterns.
	open func(path string) (io.ReadCloser, error)
}

// NewStore opens (or creates) a snapshot directory.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	return &Store{
		dir: dir,
		open: func(path string) (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}

func (s *Store) path(epoch uint64) string {
	return filepath.Join(s.dir, fmt.Sprintf("%d.state", epoch))
}

// Has reports whether a snapshot exists for the given epoch.
func (s *Store) Has(epoch uint64) bool {
	_, err := os.Stat(s.path(epoch))
	return err == nil
}

// Write persists the snapshot for state.Epoch. For epoch 0 the full state is
// written; otherwise the delta against the dyadic parent epoch, which must
// already be stored. The file becomes visible atomically.
func (s *Store) Write(state *State) error {
	var removed []UtxoKey
	added := state.Utxos
	if parentEpoch, ok := ParentForEpoch(state.Epoch); ok {
		parent, err := s.Read(parentEpoch)
		if err != nil {
			return fmt.Errorf("cannot load parent snapshot of epoch %d: %w", state.Epoch, err)
		}
		removed, added = diff(parent.Utxos, state.Utxos)
	}

	tmp, err := fileutil.NewTmpFile(s.dir)
	if err != nil {
		return err
	}
	defer tmp.Discard()
	if err := writeSnapshot(tmp, state, removed, added); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	return tmp.RenderPermanent(s.path(state.Epoch))
}

// Read reconstructs the full state of an epoch by folding its delta chain,
// starting from the full snapshot the chain bottoms out in.
//
// Applying a delta that removes an absent key or adds a present one, or a
// full snapshot that declares removals, means the snapshot files contradict
// each other; the store treats that as unrecoverable corruption and panics.
func (s *Store) Read(epoch uint64) (*State, error) {
	file, err := s.open(s.path(epoch))
	if err != nil {
		return nil, err
	}
	defer file.Close()
	state, removed, added, err := readSnapshot(file)
	if err != nil {
		return nil, fmt.Errorf("snapshot of epoch %d: %w", epoch, err)
	}
	if state.Epoch != epoch {
		return nil, fmt.Errorf("snapshot file for epoch %d declares epoch %d", epoch, state.Epoch)
	}

	parentEpoch, hasParent := ParentForEpoch(epoch)
	if !hasParent {
		if len(removed) > 0 {
			panic(fmt.Sprintf("corrupted snapshot chain: full snapshot of epoch %d declares %d removals", epoch, len(removed)))
		}
		state.Utxos = added
		state.checkUtxoCount()
		return state, nil
	}
	parent, err := s.Read(parentEpoch)
	if err != nil {
		return nil, err
	}
	utxos := parent.Utxos
	for _, key := range removed {
		if _, exists := utxos[key]; !exists {
			panic(fmt.Sprintf("corrupted snapshot chain: epoch %d removes absent utxo %s", epoch, key))
		}
		delete(utxos, key)
	}
	for key, value := range added {
		if _, exists := utxos[key]; exists {
			panic(fmt.Sprintf("corrupted snapshot chain: epoch %d re-adds present utxo %s", epoch, key))
		}
		utxos[key] = value
	}
	state.Utxos = utxos
	state.checkUtxoCount()
	return state, nil
}

func (s *State) checkUtxoCount() {
	if uint64(len(s.Utxos)) != s.utxoCount {
		panic(fmt.Sprintf("corrupted snapshot chain: epoch %d folds to %d utxos, file declares %d",
			s.Epoch, len(s.Utxos), s.utxoCount))
	}
}

// diff computes the delta turning the parent utxo set into the current one,
// as a linear merge over the sorted key sets. A key present in both with a
// different value becomes a removal plus an addition.
func diff(parent, current map[UtxoKey][]byte) (removed []UtxoKey, added map[UtxoKey][]byte) {
	parentKeys := sortedKeys(parent)
	currentKeys := sortedKeys(current)
	added = make(map[UtxoKey][]byte)

	i, j := 0, 0
	for i < len(parentKeys) && j < len(currentKeys) {
		pk, ck := parentKeys[i], currentKeys[j]
		switch {
		case pk.less(ck):
			removed = append(removed, pk)
			i++
		case ck.less(pk):
			added[ck] = current[ck]
			j++
		default:
			if !bytes.Equal(parent[pk], current[ck]) {
				removed = append(removed, pk)
				added[ck] = current[ck]
			}
			i++
			j++
		}
	}
	for ; i < len(parentKeys); i++ {
		removed = append(removed, parentKeys[i])
	}
	for ; j < len(currentKeys); j++ {
		added[currentKeys[j]] = current[currentKeys[j]]
	}
	return removed, added
}

func sortedKeys(utxos map[UtxoKey][]byte) []UtxoKey {
	keys := make([]UtxoKey, 0, len(utxos))
	for key := range utxos {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(a, b int) bool { return keys[a].less(keys[b]) })
	return keys
}

const fixedFieldsSize = 3*common.HashSize + 8 + common.SizeSize + 4*8

func writeSnapshot(w io.Writer, state *State, removed []UtxoKey, added map[UtxoKey][]byte) error {
	buf := bufio.NewWriter(w)
	if err := fileutil.WriteHeader(buf, FileTypeState, FormatVersion); err != nil {
		return err
	}

	var fixed [fixedFieldsSize]byte
	copy(fixed[0:32], state.Parent[:])
	copy(fixed[32:64], state.Block[:])
	copy(fixed[64:96], state.Boundary[:])
	binary.BigEndian.PutUint64(fixed[96:104], state.Epoch)
	binary.BigEndian.PutUint32(fixed[104:108], state.Slot)
	binary.BigEndian.PutUint64(fixed[108:116], state.ChainLength)
	binary.BigEndian.PutUint64(fixed[116:124], state.TxCount)
	binary.BigEndian.PutUint64(fixed[124:132], state.SpentCount)
	binary.BigEndian.PutUint64(fixed[132:140], uint64(len(state.Utxos)))
	if _, err := buf.Write(fixed[:]); err != nil {
		return err
	}

	var count [common.SizeSize]byte
	binary.BigEndian.PutUint32(count[:], uint32(len(removed)))
	if _, err := buf.Write(count[:]); err != nil {
		return err
	}
	for _, key := range removed {
		if err := writeKey(buf, key); err != nil {
			return err
		}
	}

	binary.BigEndian.PutUint32(count[:], uint32(len(added)))
	if _, err := buf.Write(count[:]); err != nil {
		return err
	}
	for _, key := range sortedKeys(added) {
		if err := writeKey(buf, key); err != nil {
			return err
		}
		if _, err := common.WriteLengthPrefixed(buf, added[key]); err != nil {
			return err
		}
	}
	return buf.Flush()
}

func writeKey(w io.Writer, key UtxoKey) error {
	var raw [utxoKeySize]byte
	copy(raw[0:common.HashSize], key.TxID[:])
	binary.BigEndian.PutUint32(raw[common.HashSize:], key.Index)
	_, err := w.Write(raw[:])
	return err
}

func readKey(r io.Reader) (UtxoKey, error) {
	var raw [utxoKeySize]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return UtxoKey{}, err
	}
	var key UtxoKey
	copy(key.TxID[:], raw[0:common.HashSize])
	key.Index = binary.BigEndian.Uint32(raw[common.HashSize:])
	return key, nil
}

func readSnapshot(r io.Reader) (*State, []UtxoKey, map[UtxoKey][]byte, error) {
	buf := bufio.NewReader(r)
	if _, err := fileutil.CheckHeader(buf, FileTypeState, FormatVersion, FormatVersion); err != nil {
		return nil, nil, nil, err
	}

	var fixed [fixedFieldsSize]byte
	if _, err := io.ReadFull(buf, fixed[:]); err != nil {
		return nil, nil, nil, err
	}
	state := &State{}
	copy(state.Parent[:], fixed[0:32])
	copy(state.Block[:], fixed[32:64])
	copy(state.Boundary[:], fixed[64:96])
	state.Epoch = binary.BigEndian.Uint64(fixed[96:104])
	state.Slot = binary.BigEndian.Uint32(fixed[104:108])
	state.ChainLength = binary.BigEndian.Uint64(fixed[108:116])
	state.TxCount = binary.BigEndian.Uint64(fixed[116:124])
	state.SpentCount = binary.BigEndian.Uint64(fixed[124:132])
	utxoCount := binary.BigEndian.Uint64(fixed[132:140])

	var count [common.SizeSize]byte
	if _, err := io.ReadFull(buf, count[:]); err != nil {
		return nil, nil, nil, err
	}
	removed := make([]UtxoKey, binary.BigEndian.Uint32(count[:]))
	for i := range removed {
		key, err := readKey(buf)
		if err != nil {
			return nil, nil, nil, err
		}
		removed[i] = key
	}

	if _, err := io.ReadFull(buf, count[:]); err != nil {
		return nil, nil, nil, err
	}
	addedCount := binary.BigEndian.Uint32(count[:])
	added := make(map[UtxoKey][]byte, addedCount)
	for i := uint32(0); i < addedCount; i++ {
		key, err := readKey(buf)
		if err != nil {
			return nil, nil, nil, err
		}
		value, err := common.ReadLengthPrefixed(buf, maxValueSize)
		if err != nil {
			return nil, nil, nil, err
		}
		added[key] = value
	}

	// The declared utxo count is the post-apply set size; the caller
	// re-checks it once the delta chain has been folded.
	state.utxoCount = utxoCount
	return state, removed, added, nil
}
