// Copyright (c) 2024 The ordi developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chainio

import (
	"fmt"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/btcordinals/ordi/coin"
)

// MerkleBranch is one merkle-path side of an AuxPow proof.
type MerkleBranch struct {
	Hashes   []chainhash.Hash
	SideMask uint32
}

// AuxPowExtension carries the auxiliary proof-of-work data present when
// the block header's version is at or above the chain's
// AuxPowActivationVersion (spec.md §3.1).
type AuxPowExtension struct {
	CoinbaseTx       *wire.MsgTx
	BlockHash        chainhash.Hash
	CoinbaseBranch   MerkleBranch
	BlockchainBranch MerkleBranch
	ParentHeader     wire.BlockHeader
}

// Block is one fully-decoded block record: header, optional AuxPow
// extension, and the ordered list of transactions (spec.md §3.1).
type Block struct {
	Header  wire.BlockHeader
	AuxPow  *AuxPowExtension
	Txs     []*wire.MsgTx
	RawSize uint32
}

// ParseBlockAt decodes one block from r, which must be positioned at the
// start of the block's data (immediately after the 8-byte
// magic+size preamble — the caller, normally blockindex.Index, already
// knows and skips that). size is the declared payload length from the
// preamble; it is recorded as Block.RawSize and is not used while
// decoding. The magic is not checked here; ReadBlockPreamble does that.
//
// Decoding order follows spec.md §4.2: header, optional aux-pow extension,
// tx_count varint, then that many transactions. Transaction decoding is
// delegated to wire.MsgTx.Deserialize, which already implements the
// BIP-141 witness-flag rules of spec.md §3.1/§4.2 exactly.
func ParseBlockAt(r io.Reader, size uint32, params coin.Params) (*Block, error) {
	br := NewReader(r)

	var header wire.BlockHeader
	if err := header.Deserialize(r); err != nil {
		return nil, decodeErr(br.Offset(), "block header", err)
	}

	var auxPow *AuxPowExtension
	if params.AuxPowActivationVersion != nil && uint32(header.Version) >= *params.AuxPowActivationVersion {
		ap, err := readAuxPow(r)
		if err != nil {
			return nil, err
		}
		auxPow = ap
	}

	txCount, err := br.ReadCompactSize()
	if err != nil {
		return nil, decodeErr(br.Offset(), "tx count", err)
	}

	txs := make([]*wire.MsgTx, 0, txCount)
	for i := uint64(0); i < txCount; i++ {
		tx := wire.NewMsgTx(wire.TxVersion)
		if err := tx.Deserialize(r); err != nil {
			return nil, decodeErr(br.Offset(), fmt.Sprintf("tx %d", i), err)
		}
		txs = append(txs, tx)
	}

	return &Block{Header: header, AuxPow: auxPow, Txs: txs, RawSize: size}, nil
}

// readAuxPow decodes the AuxPow extension: a parent coinbase tx, the
// parent block's hash, two merkle branches, and the parent header
// (spec.md §3.1).
func readAuxPow(r io.Reader) (*AuxPowExtension, error) {
	br := NewReader(r)

	coinbaseTx := wire.NewMsgTx(wire.TxVersion)
	if err := coinbaseTx.Deserialize(r); err != nil {
		return nil, decodeErr(br.Offset(), "aux-pow coinbase tx", err)
	}

	blockHashBytes, err := br.ReadHash32()
	if err != nil {
		return nil, decodeErr(br.Offset(), "aux-pow block hash", err)
	}

	coinbaseBranch, err := readMerkleBranch(br)
	if err != nil {
		return nil, err
	}

	blockchainBranch, err := readMerkleBranch(br)
	if err != nil {
		return nil, err
	}

	var parentHeader wire.BlockHeader
	if err := parentHeader.Deserialize(r); err != nil {
		return nil, decodeErr(br.Offset(), "aux-pow parent header", err)
	}

	return &AuxPowExtension{
		CoinbaseTx:       coinbaseTx,
		BlockHash:        chainhash.Hash(blockHashBytes),
		CoinbaseBranch:   coinbaseBranch,
		BlockchainBranch: blockchainBranch,
		ParentHeader:     parentHeader,
	}, nil
}

func readMerkleBranch(br *Reader) (MerkleBranch, error) {
	count, err := br.ReadCompactSize()
	if err != nil {
		return MerkleBranch{}, decodeErr(br.Offset(), "merkle branch length", err)
	}
	hashes := make([]chainhash.Hash, 0, count)
	for i := uint64(0); i < count; i++ {
		h, err := br.ReadHash32()
		if err != nil {
			return MerkleBranch{}, decodeErr(br.Offset(), "merkle branch hash", err)
		}
		hashes = append(hashes, chainhash.Hash(h))
	}
	sideMask, err := br.ReadU32LE()
	if err != nil {
		return MerkleBranch{}, decodeErr(br.Offset(), "merkle branch side mask", err)
	}
	return MerkleBranch{Hashes: hashes, SideMask: sideMask}, nil
}

// blockPreambleSize is the magic(4)+size(4) prefix written before every
// block record in a blk*.dat file.
const blockPreambleSize = 8

// ReadBlockPreamble reads and validates the 8-byte magic+size preamble at
// the current position of r, returning the declared payload size.
func ReadBlockPreamble(r io.Reader, params coin.Params) (uint32, error) {
	br := NewReader(r)
	magic, err := br.ReadU32LE()
	if err != nil {
		return 0, err
	}
	if magic != params.Magic {
		return 0, decodeErr(br.Offset(), fmt.Sprintf("bad magic %08x, want %08x", magic, params.Magic), nil)
	}
	return br.ReadU32LE()
}
