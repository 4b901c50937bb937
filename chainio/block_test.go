// Copyright (c) 2024 The ordi developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chainio

import (
	"bytes"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/btcordinals/ordi/coin"
)

func sampleTx(t *testing.T) *wire.MsgTx {
	t.Helper()
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Index: 0xffffffff},
		SignatureScript:  []byte{0x51},
		Sequence:         wire.MaxTxInSequenceNum,
	})
	tx.AddTxOut(&wire.TxOut{
		Value:    5000000000,
		PkScript: []byte{0x76, 0xa9, 0x14},
	})
	return tx
}

func TestParseBlockAtNoAuxPow(t *testing.T) {
	header := wire.BlockHeader{
		Version:   1,
		PrevBlock: chainhash.Hash{},
		Timestamp: time.Unix(1231006505, 0),
		Bits:      0x1d00ffff,
		Nonce:     2083236893,
	}
	tx := sampleTx(t)

	var buf bytes.Buffer
	if err := header.Serialize(&buf); err != nil {
		t.Fatalf("serializing header: %v", err)
	}
	buf.Write(EncodeCompactSize(1))
	if err := tx.Serialize(&buf); err != nil {
		t.Fatalf("serializing tx: %v", err)
	}

	params := coin.Params{Name: "test-no-auxpow"}
	block, err := ParseBlockAt(bytes.NewReader(buf.Bytes()), uint32(buf.Len()), params)
	if err != nil {
		t.Fatalf("ParseBlockAt: %v", err)
	}

	if block.AuxPow != nil {
		t.Fatalf("expected no aux-pow extension")
	}
	if len(block.Txs) != 1 {
		t.Fatalf("expected 1 tx, got %d", len(block.Txs))
	}
	if block.Header.Bits != header.Bits {
		t.Fatalf("header round trip mismatch")
	}
	if block.Txs[0].TxOut[0].Value != 5000000000 {
		t.Fatalf("tx output value mismatch")
	}
}

func TestReadBlockPreambleRejectsWrongMagic(t *testing.T) {
	params := coin.Params{Magic: 0xd9b4bef9}
	var buf bytes.Buffer
	buf.Write([]byte{0x01, 0x02, 0x03, 0x04}) // wrong magic
	buf.Write([]byte{0x10, 0x00, 0x00, 0x00})

	if _, err := ReadBlockPreamble(&buf, params); err == nil {
		t.Fatalf("expected error for wrong magic")
	}
}

func TestReadBlockPreambleRoundTrip(t *testing.T) {
	params := coin.Params{Magic: 0xd9b4bef9}
	var buf bytes.Buffer
	buf.Write([]byte{0xf9, 0xbe, 0xb4, 0xd9})
	buf.Write([]byte{0x2a, 0x00, 0x00, 0x00})

	size, err := ReadBlockPreamble(&buf, params)
	if err != nil {
		t.Fatalf("ReadBlockPreamble: %v", err)
	}
	if size != 0x2a {
		t.Fatalf("size = %d, want 42", size)
	}
}
