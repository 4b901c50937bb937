// Copyright (c) 2024 The ordi developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package indexer

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/btcordinals/ordi/callback"
	"github.com/btcordinals/ordi/chainio"
	"github.com/btcordinals/ordi/inscription"
	"github.com/btcordinals/ordi/store"
)

func openTestUpdater(t *testing.T) (*Updater, *store.Store, *callback.Registry) {
	t.Helper()
	st, err := store.Open(store.Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	reg := callback.NewRegistry()
	return NewUpdater(st, reg), st, reg
}

func envelopeScript(t *testing.T, contentType, body []byte) []byte {
	t.Helper()
	b := txscript.NewScriptBuilder()
	b.AddOp(txscript.OP_FALSE)
	b.AddOp(txscript.OP_IF)
	b.AddData([]byte("ord"))
	// Tags go in as explicit one-byte pushes; AddData would encode them as
	// the OP_0/OP_1 opcodes, which the envelope parser does not read as tags.
	b.AddOps([]byte{txscript.OP_DATA_1, inscription.TagContentType})
	b.AddData(contentType)
	b.AddOps([]byte{txscript.OP_DATA_1, inscription.TagBody})
	b.AddData(body)
	b.AddOp(txscript.OP_ENDIF)
	script, err := b.Script()
	if err != nil {
		t.Fatalf("building envelope script: %v", err)
	}
	return script
}

func nullOutpointTxIn() *wire.TxIn {
	return &wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Index: 0xffffffff},
		Sequence:         wire.MaxTxInSequenceNum,
	}
}

// TestApplyBlockInscribesNewEnvelope covers the S2-style scenario: a
// fresh reveal transaction with no carried inscriptions produces exactly
// one inscribe event at offset 0 of its first output.
func TestApplyBlockInscribesNewEnvelope(t *testing.T) {
	ctx := context.Background()
	u, _, reg := openTestUpdater(t)

	var inscribed []inscription.InscriptionId
	if err := reg.OnInscribe(func(id inscription.InscriptionId, sp inscription.SatPoint, insc inscription.Inscription, curse inscription.Curse) {
		inscribed = append(inscribed, id)
		if curse != 0 {
			t.Fatalf("expected no curse for a first inscription in a first input, got %#b", curse)
		}
	}); err != nil {
		t.Fatalf("OnInscribe: %v", err)
	}
	reg.Freeze()

	coinbase := wire.NewMsgTx(wire.TxVersion)
	coinbase.AddTxIn(nullOutpointTxIn())
	coinbase.AddTxOut(&wire.TxOut{Value: 5000000000, PkScript: []byte{0x51}})

	reveal := wire.NewMsgTx(wire.TxVersion)
	reveal.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Hash: chainhash.Hash{0xaa}, Index: 0},
		Witness:          wire.TxWitness{[]byte("sig"), envelopeScript(t, []byte("text/plain"), []byte("hi"))},
	})
	reveal.AddTxOut(&wire.TxOut{Value: 10000, PkScript: []byte{0x51}})

	block := &chainio.Block{Header: wire.BlockHeader{}, Txs: []*wire.MsgTx{coinbase, reveal}}

	// Seed the spent input as a live UTXO first, as a prior block would.
	prevTxid := reveal.TxIn[0].PreviousOutPoint.Hash.String()
	b := u.store.NewBatch()
	b.SetOutputValue(prevTxid, 0, 10000)
	if err := b.Commit(ctx); err != nil {
		t.Fatalf("seeding prevout: %v", err)
	}

	if err := u.ApplyBlock(ctx, 800000, block, false); err != nil {
		t.Fatalf("ApplyBlock: %v", err)
	}

	if len(inscribed) != 1 {
		t.Fatalf("expected 1 inscribe event, got %d", len(inscribed))
	}

	id := inscription.NewInscriptionId(reveal.TxHash().String(), 0)
	sp, ok, err := u.store.GetInscriptionOutput(ctx, id)
	if err != nil {
		t.Fatalf("GetInscriptionOutput: %v", err)
	}
	if !ok {
		t.Fatalf("inscription location not recorded")
	}
	want := inscription.NewSatPoint(reveal.TxHash().String(), 0, 0)
	if sp != want {
		t.Fatalf("satpoint = %q, want %q", sp, want)
	}
}

// TestApplyBlockTransfersCarriedInscription moves an already-inscribed
// sat through a transfer-only transaction and checks the old reverse row
// is gone and the new one is live.
func TestApplyBlockTransfersCarriedInscription(t *testing.T) {
	ctx := context.Background()
	u, st, reg := openTestUpdater(t)

	var transferred []inscription.SatPoint
	if err := reg.OnTransfer(func(id inscription.InscriptionId, oldSP, newSP inscription.SatPoint) {
		transferred = append(transferred, newSP)
	}); err != nil {
		t.Fatalf("OnTransfer: %v", err)
	}
	reg.Freeze()

	// The updater keys outpoints by the spent hash's String() form.
	prevTxid := mustHash(t, "priorowner").String()
	id := inscription.NewInscriptionId("priorowner", 0)
	oldSP := inscription.NewSatPoint(prevTxid, 0, 0)

	seed := st.NewBatch()
	seed.SetOutputValue(prevTxid, 0, 546)
	seed.SetInscriptionLocation(id, oldSP, nil)
	if err := seed.Commit(ctx); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	spend := wire.NewMsgTx(wire.TxVersion)
	spend.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Hash: mustHash(t, "priorowner"), Index: 0}})
	spend.AddTxOut(&wire.TxOut{Value: 546, PkScript: []byte{0x51}})

	block := &chainio.Block{Txs: []*wire.MsgTx{spend}}

	if err := u.ApplyBlock(ctx, 800001, block, false); err != nil {
		t.Fatalf("ApplyBlock: %v", err)
	}

	if len(transferred) != 1 {
		t.Fatalf("expected 1 transfer event, got %d", len(transferred))
	}

	if carried := st.OutpointCarriedInscriptions(prevTxid, 0); len(carried) != 0 {
		t.Fatalf("old outpoint still carries inscriptions: %+v", carried)
	}

	newOutpointTxid := spend.TxHash().String()
	carried := st.OutpointCarriedInscriptions(newOutpointTxid, 0)
	if len(carried) != 1 || carried[0].ID != id {
		t.Fatalf("expected inscription carried at new output, got %+v", carried)
	}
}

// TestApplyBlockFeeRemapsToCoinbase covers the fee-into-coinbase
// scenario: a carried inscription's offset overruns its own
// transaction's output value, so it is lost as a fee, and must surface
// on the block's coinbase output once the whole block has been
// processed.
func TestApplyBlockFeeRemapsToCoinbase(t *testing.T) {
	ctx := context.Background()
	u, st, reg := openTestUpdater(t)

	var transferredTo []inscription.SatPoint
	if err := reg.OnTransfer(func(id inscription.InscriptionId, oldSP, newSP inscription.SatPoint) {
		transferredTo = append(transferredTo, newSP)
	}); err != nil {
		t.Fatalf("OnTransfer: %v", err)
	}
	reg.Freeze()

	prevTxid := mustHash(t, "feesource").String()
	id := inscription.NewInscriptionId("feesource", 0)
	oldSP := inscription.NewSatPoint(prevTxid, 0, 900)

	seed := st.NewBatch()
	seed.SetOutputValue(prevTxid, 0, 1000)
	seed.SetInscriptionLocation(id, oldSP, nil)
	if err := seed.Commit(ctx); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	coinbase := wire.NewMsgTx(wire.TxVersion)
	coinbase.AddTxIn(nullOutpointTxIn())
	coinbase.AddTxOut(&wire.TxOut{Value: 10000, PkScript: []byte{0x51}})

	// Spend the 1000-sat output carrying the inscription at offset 900
	// into a single 850-sat output: the carried sat's position (900)
	// falls past the output total (850), so it is lost as a fee and must
	// be remapped onto the coinbase.
	spend := wire.NewMsgTx(wire.TxVersion)
	spend.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Hash: mustHash(t, "feesource"), Index: 0}})
	spend.AddTxOut(&wire.TxOut{Value: 850, PkScript: []byte{0x51}})

	block := &chainio.Block{Txs: []*wire.MsgTx{coinbase, spend}}

	if err := u.ApplyBlock(ctx, 800002, block, false); err != nil {
		t.Fatalf("ApplyBlock: %v", err)
	}

	if len(transferredTo) != 1 {
		t.Fatalf("expected 1 transfer event, got %d", len(transferredTo))
	}

	coinbaseTxid := coinbase.TxHash().String()
	got, ok, err := st.GetInscriptionOutput(ctx, id)
	if err != nil {
		t.Fatalf("GetInscriptionOutput: %v", err)
	}
	if !ok {
		t.Fatalf("expected inscription location to be recorded")
	}
	// Fee offset within this tx's fee range is 900-850=50; with no other
	// transaction contributing fees ahead of it in block order, it lands
	// 50 sats into the coinbase's own output stream.
	want := inscription.NewSatPoint(coinbaseTxid, 0, 50)
	if got != want {
		t.Fatalf("fee satpoint = %q, want %q", got, want)
	}
}

// TestApplyBlockReinscriptionIsCursed covers the S5-style scenario: a
// second envelope revealed on a sat that already carries an inscription
// (carried offset 0) is cursed as a reinscription, and the original
// inscription's record is left untouched.
func TestApplyBlockReinscriptionIsCursed(t *testing.T) {
	ctx := context.Background()
	u, st, reg := openTestUpdater(t)

	var inscribedCurses []inscription.Curse
	if err := reg.OnInscribe(func(id inscription.InscriptionId, sp inscription.SatPoint, insc inscription.Inscription, curse inscription.Curse) {
		inscribedCurses = append(inscribedCurses, curse)
	}); err != nil {
		t.Fatalf("OnInscribe: %v", err)
	}
	reg.Freeze()

	prevTxid := mustHash(t, "original").String()
	originalID := inscription.NewInscriptionId("original", 0)
	originalSP := inscription.NewSatPoint(prevTxid, 0, 0)

	seed := st.NewBatch()
	seed.SetOutputValue(prevTxid, 0, 546)
	seed.SetInscription(originalID, inscription.Inscription{})
	seed.SetInscriptionLocation(originalID, originalSP, nil)
	if err := seed.Commit(ctx); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	reveal := wire.NewMsgTx(wire.TxVersion)
	reveal.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Hash: mustHash(t, "original"), Index: 0},
		Witness:          wire.TxWitness{[]byte("sig"), envelopeScript(t, []byte("text/plain"), []byte("reinscribed"))},
	})
	reveal.AddTxOut(&wire.TxOut{Value: 546, PkScript: []byte{0x51}})

	block := &chainio.Block{Txs: []*wire.MsgTx{reveal}}

	if err := u.ApplyBlock(ctx, 800003, block, false); err != nil {
		t.Fatalf("ApplyBlock: %v", err)
	}

	if len(inscribedCurses) != 1 {
		t.Fatalf("expected 1 inscribe event, got %d", len(inscribedCurses))
	}
	if inscribedCurses[0]&inscription.CurseReinscription == 0 {
		t.Fatalf("expected reinscription curse, got %#b", inscribedCurses[0])
	}

	// The original inscription's own immutable record must be untouched.
	origInsc, ok, err := st.GetInscription(ctx, originalID)
	if err != nil {
		t.Fatalf("GetInscription: %v", err)
	}
	if !ok || string(origInsc.Body) != "" {
		t.Fatalf("original inscription record mutated: %+v", origInsc)
	}

	// The sat now carries both inscriptions at the reveal's new outpoint,
	// new one first (offset 0) per Step B's prepend rule.
	carried := st.OutpointCarriedInscriptions(reveal.TxHash().String(), 0)
	if len(carried) != 2 {
		t.Fatalf("expected 2 carried inscriptions at the new outpoint, got %+v", carried)
	}
}

func mustHash(t *testing.T, s string) chainhash.Hash {
	t.Helper()
	var h chainhash.Hash
	copy(h[:], []byte(s))
	return h
}
