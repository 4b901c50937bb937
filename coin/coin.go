// Copyright (c) 2024 The ordi developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package coin holds the per-chain parameters the indexer needs: network
// magic, address version byte, genesis hash, and the block header version
// at which AuxPow framing is activated (if ever). The original source abstracted
// these behind a polymorphic Coin trait (see trait.h); here it is a plain
// configuration record selected by name at startup, per DESIGN NOTES §9.
package coin

import (
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Params describes one chain's wire-level parameters.
type Params struct {
	// Name identifies the chain, e.g. "mainnet".
	Name string

	// Magic is the 4-byte network magic prefixing every block record in
	// a .blk file.
	Magic uint32

	// VersionID is the address version byte (unused by the core indexer,
	// kept for completeness — see original_source bitcoin/mod.h).
	VersionID byte

	// Genesis is the genesis block hash.
	Genesis chainhash.Hash

	// AuxPowActivationVersion is the header version at and above which
	// the AuxPow extension (§3.1) is present. nil means the chain never
	// uses AuxPow.
	AuxPowActivationVersion *uint32

	// DefaultFolder is the default node data-directory name to look for
	// under the user's home directory, e.g. ".bitcoin".
	DefaultFolder string
}

var registry = map[string]Params{}

func register(p Params) {
	registry[p.Name] = p
}

// Genesis is carried for completeness (original_source bitcoin/mod.h
// exposes it on the Coin trait) but the core never validates it — consensus
// checking is an explicit Non-goal.
func init() {
	register(Params{
		Name:          "mainnet",
		Magic:         0xd9b4bef9,
		VersionID:     0x00,
		Genesis:       *chaincfg.MainNetParams.GenesisHash,
		DefaultFolder: ".bitcoin",
	})

	register(Params{
		Name:          "testnet3",
		Magic:         0x0709110b,
		VersionID:     0x6f,
		Genesis:       *chaincfg.TestNet3Params.GenesisHash,
		DefaultFolder: "testnet3",
	})
}

// ByName returns the registered chain parameters for name, or false if no
// such chain has been registered.
func ByName(name string) (Params, bool) {
	p, ok := registry[name]
	return p, ok
}
