// Copyright (c) 2024 The ordi developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package blockindex implements C3: a read-only view of a Bitcoin Core
// node's on-disk "blocks/index" LevelDB store. It is grounded on
// original_source bitcoin/index.h's parse_index_for_ordinals, which opens
// that store directly (rather than going through the node's RPC
// interface) to discover, for every chain-valid block, which blk*.dat
// file holds its bytes and at what offset.
package blockindex

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/btcordinals/ordi/chainio"
	"github.com/btcordinals/ordi/coin"
)

// Status bitflags, as defined by Bitcoin Core's chain.h. Only the flags
// the indexer reads are named: BlockValidChain and BlockHaveData decide
// which records are kept, and BlockHaveData/BlockHaveUndo decide which
// optional record fields are present.
const (
	BlockValidChain uint64 = 4
	BlockHaveData   uint64 = 8
	BlockHaveUndo   uint64 = 16
)

// blockIndexEntryPrefix is the single-byte key prefix Bitcoin Core uses
// for CDiskBlockIndex records in blocks/index ('b', per
// original_source bitcoin/index.h is_block_index_entry).
const blockIndexEntryPrefix = 'b'

// IndexEntry is one decoded block-index record: enough to locate and
// parse the block's raw bytes without re-deriving anything from the
// chain itself.
type IndexEntry struct {
	BlockHash    chainhash.Hash
	Version      uint64
	Height       uint64
	Status       uint64
	TxCount      uint64
	BlkFileIndex uint32
	DataOffset   uint32
	UndoOffset   uint32
	Header       wire.BlockHeader
}

// Index is the parsed, filtered view of a node's blocks/index store:
// every block whose status is chain-valid or data-present (either flag is
// enough), keyed by height, plus the
// blk*.dat file cache needed to read their bytes.
type Index struct {
	btcDataDir string

	entries        map[uint64]IndexEntry
	byHash         map[chainhash.Hash]uint64
	maxHeight      uint64
	maxHeightInBlk map[uint32]uint64

	files *chainio.FileCache
}

// Open parses btcDataDir/blocks/index and returns the filtered,
// height-keyed view of it. The caller owns the returned Index and must
// call Close when done.
func Open(btcDataDir string) (*Index, error) {
	indexPath := filepath.Join(btcDataDir, "blocks", "index")
	if _, err := os.Stat(indexPath); err != nil {
		return nil, indexErr(fmt.Sprintf("database index not found: %s", indexPath), err)
	}

	db, err := leveldb.OpenFile(indexPath, &opt.Options{ReadOnly: true})
	if err != nil {
		return nil, indexErr("opening blocks/index", err)
	}
	defer db.Close()

	idx := &Index{
		btcDataDir:     btcDataDir,
		entries:        make(map[uint64]IndexEntry),
		byHash:         make(map[chainhash.Hash]uint64),
		maxHeightInBlk: make(map[uint32]uint64),
		files:          chainio.NewFileCache(filepath.Join(btcDataDir, "blocks"), chainio.DefaultFileCacheSize),
	}

	iter := db.NewIterator(util.BytesPrefix([]byte{blockIndexEntryPrefix}), nil)
	defer iter.Release()

	for iter.Next() {
		key := iter.Key()
		value := iter.Value()
		if len(key) == 0 || key[0] != blockIndexEntryPrefix {
			continue
		}

		var hash chainhash.Hash
		if len(key) >= 1+chainhash.HashSize {
			copy(hash[:], key[1:1+chainhash.HashSize])
		}

		entry, err := decodeIndexRecord(hash, value)
		if err != nil {
			return nil, err
		}

		if entry.Status&(BlockValidChain|BlockHaveData) == 0 {
			continue
		}

		if h := idx.maxHeightInBlk[entry.BlkFileIndex]; entry.Height > h {
			idx.maxHeightInBlk[entry.BlkFileIndex] = entry.Height
		}
		if entry.Height > idx.maxHeight {
			idx.maxHeight = entry.Height
		}
		idx.entries[entry.Height] = entry
		idx.byHash[entry.BlockHash] = entry.Height
	}
	if err := iter.Error(); err != nil {
		return nil, indexErr("iterating blocks/index", err)
	}

	for height, entry := range idx.entries {
		if entry.Height != height {
			return nil, indexErr(fmt.Sprintf("invalid height %d in entry, expected %d", entry.Height, height), nil)
		}
	}

	log.Infof("block index parsed, valid through height %d", idx.maxHeight)
	return idx, nil
}

// decodeIndexRecord decodes a CDiskBlockIndex value: a run of
// varint-B128 fields followed by the 80-byte fixed-width block header,
// per original_source bitcoin/index.h / Bitcoin Core's chain.h
// CDiskBlockIndex::SerializationOp.
func decodeIndexRecord(hash chainhash.Hash, value []byte) (IndexEntry, error) {
	br := bytes.NewReader(value)
	r := chainio.NewReader(br)

	version, err := r.ReadVarIntB128()
	if err != nil {
		return IndexEntry{}, indexErr("decoding record version", err)
	}
	height, err := r.ReadVarIntB128()
	if err != nil {
		return IndexEntry{}, indexErr("decoding record height", err)
	}
	status, err := r.ReadVarIntB128()
	if err != nil {
		return IndexEntry{}, indexErr("decoding record status", err)
	}
	txCount, err := r.ReadVarIntB128()
	if err != nil {
		return IndexEntry{}, indexErr("decoding record tx count", err)
	}

	var blkFileIndex, dataOffset, undoOffset uint64
	if status&BlockHaveData != 0 {
		blkFileIndex, err = r.ReadVarIntB128()
		if err != nil {
			return IndexEntry{}, indexErr("decoding record file index", err)
		}
		dataOffset, err = r.ReadVarIntB128()
		if err != nil {
			return IndexEntry{}, indexErr("decoding record data offset", err)
		}
	}
	if status&BlockHaveUndo != 0 {
		undoOffset, err = r.ReadVarIntB128()
		if err != nil {
			return IndexEntry{}, indexErr("decoding record undo offset", err)
		}
	}

	var header wire.BlockHeader
	if status&BlockHaveData != 0 {
		if err := header.Deserialize(br); err != nil {
			return IndexEntry{}, indexErr("decoding record header", err)
		}
	}

	return IndexEntry{
		BlockHash:    hash,
		Version:      version,
		Height:       height,
		Status:       status,
		TxCount:      txCount,
		BlkFileIndex: uint32(blkFileIndex),
		DataOffset:   uint32(dataOffset),
		UndoOffset:   uint32(undoOffset),
		Header:       header,
	}, nil
}

// MaxHeight returns the highest height present among the kept
// (chain-valid or data-present) entries.
func (idx *Index) MaxHeight() uint64 {
	return idx.maxHeight
}

// Entry returns the index entry for height, if present.
func (idx *Index) Entry(height uint64) (IndexEntry, bool) {
	e, ok := idx.entries[height]
	return e, ok
}

// EntryByHash returns the index entry for a given block hash, if present.
func (idx *Index) EntryByHash(hash chainhash.Hash) (IndexEntry, bool) {
	height, ok := idx.byHash[hash]
	if !ok {
		return IndexEntry{}, false
	}
	return idx.Entry(height)
}

// ReadBlock reads and decodes the full block at height from its
// blk*.dat file, using C2 (chainio.ParseBlockAt) for the actual decode.
// DataOffset already points immediately past the magic+size preamble, so
// ParseBlockAt is handed the reader at exactly the position it expects.
func (idx *Index) ReadBlock(height uint64, coinParams coin.Params) (*chainio.Block, error) {
	entry, ok := idx.Entry(height)
	if !ok {
		return nil, indexErr(fmt.Sprintf("no index entry for height %d", height), nil)
	}
	f, err := idx.files.Get(entry.BlkFileIndex)
	if err != nil {
		return nil, indexErr(fmt.Sprintf("opening blk%05d.dat", entry.BlkFileIndex), err)
	}
	if _, err := f.Seek(int64(entry.DataOffset), io.SeekStart); err != nil {
		return nil, indexErr(fmt.Sprintf("seeking blk%05d.dat", entry.BlkFileIndex), err)
	}
	block, err := chainio.ParseBlockAt(f, 0, coinParams)
	if err != nil {
		return nil, err
	}
	return block, nil
}

// Close releases every open blk*.dat handle.
func (idx *Index) Close() error {
	return idx.files.CloseAll()
}
