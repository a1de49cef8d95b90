// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/0xsoniclabs/chainstore/common"
	"github.com/0xsoniclabs/chainstore/common/diagnostics"
	"github.com/0xsoniclabs/chainstore/storage"
	"github.com/urfave/cli/v2"
)

var (
	maxBlobsFlag = cli.IntFlag{
		Name:  "max-blobs",
		Usage: "caps the number of blobs per pack, 0 for no cap",
		Value: 0,
	}
	maxBytesFlag = cli.Uint64Flag{
		Name:  "max-bytes",
		Usage: "caps the total payload bytes per pack, 0 for no cap",
		Value: 0,
	}
	keepLooseFlag = cli.BoolFlag{
		Name:  "keep-loose",
		Usage: "keep the loose copies after packing",
	}
	epochFlag = cli.Uint64Flag{
		Name:  "epoch",
		Usage: "epoch number",
	}
)

var Info = cli.Command{
	Action: diagnostics.WrapAction(info, &diagnosticsFlag, &cpuProfileFlag, &traceFlag),
	Name:   "info",
	Usage:  "prints configuration and content summary of a store",
	Flags:  []cli.Flag{&rootFlag},
}

var Pack = cli.Command{
	Action: diagnostics.WrapAction(pack, &diagnosticsFlag, &cpuProfileFlag, &traceFlag),
	Name:   "pack",
	Usage:  "compacts loose blobs into a new pack",
	Flags:  []cli.Flag{&rootFlag, &maxBlobsFlag, &maxBytesFlag, &keepLooseFlag},
}

var Verify = cli.Command{
	Action:    diagnostics.WrapAction(verify, &diagnosticsFlag, &cpuProfileFlag, &traceFlag),
	Name:      "verify",
	Usage:     "verifies the content hash of packs",
	ArgsUsage: "[<pack-hash>]",
	Flags:     []cli.Flag{&rootFlag},
}

var Epochs = cli.Command{
	Action: diagnostics.WrapAction(epochs, &diagnosticsFlag, &cpuProfileFlag, &traceFlag),
	Name:   "epochs",
	Usage:  "lists the sealed epochs and their packs",
	Flags:  []cli.Flag{&rootFlag},
}

var Locate = cli.Command{
	Action:    diagnostics.WrapAction(locate, &diagnosticsFlag, &cpuProfileFlag, &traceFlag),
	Name:      "locate",
	Usage:     "resolves where a block lives",
	ArgsUsage: "<block-hash>",
	Flags:     []cli.Flag{&rootFlag},
}

var ChainState = cli.Command{
	Action: diagnostics.WrapAction(chainState, &diagnosticsFlag, &cpuProfileFlag, &traceFlag),
	Name:   "chainstate",
	Usage:  "prints the ledger snapshot of an epoch",
	Flags:  []cli.Flag{&rootFlag, &epochFlag},
}

// openStore opens an existing store with its persisted configuration. The
// tool never decodes block payloads, so no block codec is supplied.
func openStore(context *cli.Context) (*storage.Store, error) {
	root := context.String(rootFlag.Name)
	cfg, err := storage.LoadConfig(root)
	if os.IsNotExist(err) {
		cfg = storage.Config{Root: root}
	} else if err != nil {
		return nil, err
	}
	return storage.Open(cfg, nil)
}

func info(context *cli.Context) error {
	store, err := openStore(context)
	if err != nil {
		return err
	}
	defer store.Close()

	cfg := store.Config()
	fmt.Printf("root:            %s\n", cfg.Root)
	fmt.Printf("compression:     %s\n", cfg.Compression)
	fmt.Printf("slots per epoch: %d\n", cfg.SlotsPerEpoch)
	fmt.Printf("packs:           %d\n", len(store.Packs()))

	sealed := 0
	iter := store.Epochs()
	for {
		it, err := iter.Next()
		if err != nil {
			return err
		}
		if it == nil {
			break
		}
		sealed++
		if err := it.Close(); err != nil {
			return err
		}
	}
	fmt.Printf("sealed epochs:   %d\n", sealed)

	if store.TagExists(storage.TagHead) {
		head, err := store.ReadTag(storage.TagHead)
		if err != nil {
			return err
		}
		fmt.Printf("HEAD:            %s\n", head)
	}
	return nil
}

func pack(context *cli.Context) error {
	store, err := openStore(context)
	if err != nil {
		return err
	}
	defer store.Close()

	packHash, err := store.PackBlobs(storage.PackParameters{
		MaxBlobs:             context.Int(maxBlobsFlag.Name),
		MaxBytes:             context.Uint64(maxBytesFlag.Name),
		DeleteLooseAfterPack: !context.Bool(keepLooseFlag.Name),
	})
	if err != nil {
		return err
	}
	fmt.Printf("created pack %s\n", packHash)
	return nil
}

func verify(context *cli.Context) error {
	store, err := openStore(context)
	if err != nil {
		return err
	}
	defer store.Close()

	packs := store.Packs()
	if context.Args().Present() {
		hash, err := common.HashFromString(context.Args().First())
		if err != nil {
			return fmt.Errorf("invalid pack hash: %w", err)
		}
		packs = []common.Hash{hash}
	}

	var failures []error
	for _, packHash := range packs {
		if err := store.VerifyPack(packHash); err != nil {
			fmt.Printf("pack %s: FAILED\n", packHash)
			failures = append(failures, err)
			continue
		}
		fmt.Printf("pack %s: OK\n", packHash)
	}
	return errors.Join(failures...)
}

func epochs(context *cli.Context) error {
	store, err := openStore(context)
	if err != nil {
		return err
	}
	defer store.Close()

	iter := store.Epochs()
	for {
		it, err := iter.Next()
		if err != nil {
			return err
		}
		if it == nil {
			return nil
		}
		fmt.Printf("epoch %d: pack %s\n", it.Epoch(), it.PackHash())
		if err := it.Close(); err != nil {
			return err
		}
	}
}

func locate(context *cli.Context) error {
	if !context.Args().Present() {
		return errors.New("a block hash argument is required")
	}
	hash, err := common.HashFromString(context.Args().First())
	if err != nil {
		return fmt.Errorf("invalid block hash: %w", err)
	}

	store, err := openStore(context)
	if err != nil {
		return err
	}
	defer store.Close()

	loc, err := store.BlockLocation(hash)
	if err != nil {
		return err
	}
	fmt.Println(loc)
	return nil
}

func chainState(context *cli.Context) error {
	store, err := openStore(context)
	if err != nil {
		return err
	}
	defer store.Close()

	state, err := store.ChainState().Read(context.Uint64(epochFlag.Name))
	if err != nil {
		return err
	}
	fmt.Printf("epoch:        %d\n", state.Epoch)
	fmt.Printf("slot:         %d\n", state.Slot)
	fmt.Printf("block:        %s\n", state.Block)
	fmt.Printf("parent:       %s\n", state.Parent)
	fmt.Printf("boundary:     %s\n", state.Boundary)
	fmt.Printf("chain length: %d\n", state.ChainLength)
	fmt.Printf("transactions: %d\n", state.TxCount)
	fmt.Printf("spent:        %d\n", state.SpentCount)
	fmt.Printf("utxos:        %d\n", len(state.Utxos))
	return nil
}
