// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package storage is the façade of the block archive. It orchestrates the
// loose blob tier, immutable packs with their indexes, per-epoch reference
// tables, tags, and the chain state snapshot store under one root directory:
//
//	blob/        loose content-addressed blocks
//	pack/        sealed packs, named by content hash
//	index/       per-pack hash indexes
//	tag/         named block pointers (HEAD, ...)
//	refpack/     named slot-order hash tables
//	epoch/<n>/   pointer file "pack" + "refpack" of the sealed epoch
//	chainstate/  dyadic ledger snapshots
//	config.yml   persisted store parameters
//
// A Store instance is single-owner: the root is guarded by an advisory lock
// and the in-memory pack list is not synchronized. Sealed files tolerate any
// number of concurrent readers.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/0xsoniclabs/chainstore/block"
	"github.com/0xsoniclabs/chainstore/chainstate"
	"github.com/0xsoniclabs/chainstore/common"
	"github.com/0xsoniclabs/chainstore/fileutil"
	"github.com/0xsoniclabs/chainstore/indexfile"
	"github.com/0xsoniclabs/chainstore/packfile"
	"github.com/sirupsen/logrus"
)

// ErrNotFound reports that no tier holds the requested block.
var ErrNotFound = errors.New("block not found")

// loadedPack is one pack known to the store, with its index held open.
type loadedPack struct {
	hash  common.Hash
	index *indexfile.Reader
}

// Store is the storage façade. It must not be shared across goroutines
// without external synchronization: packing mutates the pack list.
type Store struct {
	cfg    Config
	codec  block.Codec
	lock   *fileutil.Lock
	log    *logrus.Entry
	blobs  blobStore
	packs  []loadedPack
	states *chainstate.Store
}

// Open creates or opens the store rooted at cfg.Root. The block codec is
// used for epoch sealing and chain walking; it may be nil for stores used
// purely as content-addressed archives. Index files that cannot be parsed
// are skipped with a warning, leaving the store degraded but open; the packs
// behind them stay reachable through RebuildIndex.
func Open(cfg Config, codec block.Codec) (*Store, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	for _, dir := range cfg.tierDirs() {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, err
		}
	}
	lock, err := fileutil.AcquireLock(filepath.Join(cfg.Root, "storage"))
	if err != nil {
		return nil, err
	}
	if err := cfg.loadOrPersist(); err != nil {
		return nil, errors.Join(err, lock.Release())
	}
	states, err := chainstate.NewStore(cfg.chainStateDir())
	if err != nil {
		return nil, errors.Join(err, lock.Release())
	}

	s := &Store{
		cfg:    cfg,
		codec:  codec,
		lock:   lock,
		log:    logrus.WithField("store", cfg.Root),
		blobs:  blobStore{dir: cfg.blobDir(), codec: cfg.Compression},
		states: states,
	}
	if err := s.loadIndexes(); err != nil {
		return nil, errors.Join(err, s.Close())
	}
	return s, nil
}

// loadIndexes scans the index tier in sorted name order, so the in-process
// pack probe order is deterministic across opens.
func (s *Store) loadIndexes() error {
	entries, err := os.ReadDir(s.cfg.indexDir())
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		packHash, err := common.HashFromString(name)
		if err != nil {
			s.log.WithField("file", name).Warn("skipping index file with unparsable name")
			continue
		}
		reader, err := indexfile.OpenReader(filepath.Join(s.cfg.indexDir(), name))
		if err != nil {
			s.log.WithField("file", name).WithError(err).Warn("skipping unreadable index file")
			continue
		}
		s.packs = append(s.packs, loadedPack{hash: packHash, index: reader})
	}
	return nil
}

// Close releases the store's lock and open index handles.
func (s *Store) Close() error {
	errs := make([]error, 0, len(s.packs)+1)
	for _, pack := range s.packs {
		errs = append(errs, pack.index.Close())
	}
	s.packs = nil
	errs = append(errs, s.lock.Release())
	return errors.Join(errs...)
}

// Config returns the effective store configuration.
func (s *Store) Config() Config {
	return s.cfg
}

// ChainState exposes the ledger snapshot store of this archive.
func (s *Store) ChainState() *chainstate.Store {
	return s.states
}

// Packs lists the hashes of all loaded packs in probe order.
func (s *Store) Packs() []common.Hash {
	hashes := make([]common.Hash, len(s.packs))
	for i, pack := range s.packs {
		hashes[i] = pack.hash
	}
	return hashes
}

// WriteBlock stores a block's raw content in the loose tier and returns its
// hash. Writing the same content twice is idempotent. Empty content is
// rejected: a zero-length payload leaves no trace in a pack's identity hash,
// so two packs differing only in empty blocks would collide.
func (s *Store) WriteBlock(raw []byte) (common.Hash, error) {
	if len(raw) == 0 {
		return common.Hash{}, errors.New("empty blocks cannot be stored")
	}
	hash := common.HashOf(raw)
	return hash, s.blobs.write(hash, raw)
}

// BlockLocation resolves where a block currently lives. Packs are probed in
// load order; the first match wins. A hash duplicated across packs cannot
// occur under correct operation and no particular winner is promised beyond
// in-process determinism.
func (s *Store) BlockLocation(hash common.Hash) (Location, error) {
	for _, pack := range s.packs {
		offset, found, err := pack.index.Lookup(hash)
		if err != nil {
			return nil, err
		}
		if found {
			return Packed{Pack: pack.hash, Offset: offset}, nil
		}
	}
	if s.blobs.exists(hash) {
		return Loose{Hash: hash}, nil
	}
	return nil, ErrNotFound
}

// ReadLocation reads a block's content from a previously resolved location.
func (s *Store) ReadLocation(loc Location) ([]byte, error) {
	switch l := loc.(type) {
	case Loose:
		return s.blobs.read(l.Hash)
	case Packed:
		seeker, err := packfile.OpenSeeker(s.packPath(l.Pack))
		if err != nil {
			return nil, err
		}
		defer seeker.Close()
		stored, err := seeker.BlobAtOffset(l.Offset)
		if err != nil {
			return nil, err
		}
		return s.cfg.Compression.Decompress(stored)
	}
	return nil, fmt.Errorf("unknown location type %T", loc)
}

// ReadBlock resolves and reads a block by hash.
func (s *Store) ReadBlock(hash common.Hash) ([]byte, error) {
	loc, err := s.BlockLocation(hash)
	if err != nil {
		return nil, err
	}
	return s.ReadLocation(loc)
}

// BlockExists reports whether any tier holds the block.
func (s *Store) BlockExists(hash common.Hash) (bool, error) {
	_, err := s.BlockLocation(hash)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *Store) packPath(hash common.Hash) string {
	return filepath.Join(s.cfg.packDir(), hash.String())
}

func (s *Store) indexPath(hash common.Hash) string {
	return filepath.Join(s.cfg.indexDir(), hash.String())
}

// decodeHeader decodes a block's header via the application codec.
func (s *Store) decodeHeader(raw []byte) (block.Header, error) {
	if s.codec == nil {
		return nil, errors.New("store was opened without a block codec")
	}
	return s.codec.Decode(raw)
}
