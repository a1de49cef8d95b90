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
	"os"
	"path/filepath"

	"github.com/0xsoniclabs/chainstore/compress"
	"gopkg.in/yaml.v3"
)

// Config carries the construction parameters of a store. Compression and the
// epoch geometry are persisted to config.yml on first open; later opens with
// different values are rejected, since blobs written under one codec are
// unreadable under another.
type Config struct {
	// Root is the store directory; all tiers live beneath it.
	Root string `yaml:"-"`
	// Compression selects the blob payload codec. Empty selects the
	// default codec.
	Compression compress.Codec `yaml:"compression"`
	// SlotsPerEpoch is the number of regular slots per epoch, the
	// boundary slot not included. Zero selects the default.
	SlotsPerEpoch uint32 `yaml:"slots_per_epoch"`
}

// DefaultSlotsPerEpoch matches the mainnet epoch geometry.
const DefaultSlotsPerEpoch = 21600

const configFileName = "config.yml"

func (c *Config) applyDefaults() {
	if c.Compression == "" {
		c.Compression = compress.Default
	}
	if c.SlotsPerEpoch == 0 {
		c.SlotsPerEpoch = DefaultSlotsPerEpoch
	}
}

func (c *Config) validate() error {
	if c.Root == "" {
		return errors.New("store root directory must be set")
	}
	if !c.Compression.Valid() {
		return fmt.Errorf("unsupported compression codec %q", string(c.Compression))
	}
	return nil
}

// loadOrPersist reconciles the in-memory configuration with the persisted
// one: a fresh store records the configuration, an existing store must be
// opened with matching parameters.
func (c *Config) loadOrPersist() error {
	path := filepath.Join(c.Root, configFileName)
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		content, err := yaml.Marshal(c)
		if err != nil {
			return err
		}
		return os.WriteFile(path, content, 0600)
	}
	if err != nil {
		return err
	}
	var persisted Config
	if err := yaml.Unmarshal(content, &persisted); err != nil {
		return fmt.Errorf("cannot parse %s: %w", path, err)
	}
	if persisted.Compression != c.Compression {
		return fmt.Errorf("store was created with compression %q, cannot open with %q",
			string(persisted.Compression), string(c.Compression))
	}
	if persisted.SlotsPerEpoch != c.SlotsPerEpoch {
		return fmt.Errorf("store was created with %d slots per epoch, cannot open with %d",
			persisted.SlotsPerEpoch, c.SlotsPerEpoch)
	}
	return nil
}

// LoadConfig reads the persisted configuration of an existing store, so
// tooling can open a store without knowing its creation parameters.
func LoadConfig(root string) (Config, error) {
	content, err := os.ReadFile(filepath.Join(root, configFileName))
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("cannot parse store configuration: %w", err)
	}
	cfg.Root = root
	cfg.applyDefaults()
	return cfg, nil
}

// Tier directories under the store root.
func (c *Config) blobDir() string       { return filepath.Join(c.Root, "blob") }
func (c *Config) packDir() string       { return filepath.Join(c.Root, "pack") }
func (c *Config) indexDir() string      { return filepath.Join(c.Root, "index") }
func (c *Config) tagDir() string        { return filepath.Join(c.Root, "tag") }
func (c *Config) refPackDir() string    { return filepath.Join(c.Root, "refpack") }
func (c *Config) epochBaseDir() string  { return filepath.Join(c.Root, "epoch") }
func (c *Config) chainStateDir() string { return filepath.Join(c.Root, "chainstate") }

func (c *Config) epochDir(epoch uint64) string {
	return filepath.Join(c.epochBaseDir(), fmt.Sprintf("%d", epoch))
}

func (c *Config) epochPackPath(epoch uint64) string {
	return filepath.Join(c.epochDir(epoch), "pack")
}

func (c *Config) epochRefPackPath(epoch uint64) string {
	return filepath.Join(c.epochDir(epoch), "refpack")
}

func (c *Config) refPackPath(name string) string {
	return filepath.Join(c.refPackDir(), name)
}

func (c *Config) tierDirs() []string {
	return []string{
		c.blobDir(), c.packDir(), c.indexDir(), c.tagDir(),
		c.refPackDir(), c.epochBaseDir(), c.chainStateDir(),
	}
}
