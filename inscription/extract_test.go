// Copyright (c) 2024 The ordi developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package inscription

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/wire"
)

func TestCandidateScriptNoAnnex(t *testing.T) {
	witness := wire.TxWitness{[]byte("sig"), []byte("script"), []byte("controlblock")}
	got := candidateScript(witness)
	if !bytes.Equal(got, []byte("controlblock")) {
		t.Fatalf("candidateScript = %q, want witness[-1]", got)
	}
}

func TestCandidateScriptWithAnnex(t *testing.T) {
	annex := append([]byte{taprootAnnexPrefix}, []byte("annex-data")...)
	witness := wire.TxWitness{[]byte("sig"), []byte("script"), []byte("controlblock"), annex}
	got := candidateScript(witness)
	if !bytes.Equal(got, []byte("controlblock")) {
		t.Fatalf("candidateScript with annex = %q, want witness[-2]", got)
	}
}

func TestCandidateScriptTooFewItems(t *testing.T) {
	if got := candidateScript(wire.TxWitness{[]byte("only-one")}); got != nil {
		t.Fatalf("candidateScript with 1 item = %q, want nil", got)
	}
	if got := candidateScript(nil); got != nil {
		t.Fatalf("candidateScript with no witness = %q, want nil", got)
	}
}

func TestExtractFromTxCarriesInputIndexAndOffset(t *testing.T) {
	script0 := buildEnvelopeScript(t, []byte("text/plain"), []byte("first"))
	script1 := buildEnvelopeScript(t, []byte("text/plain"), []byte("second"))

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(&wire.TxIn{Witness: wire.TxWitness{[]byte("sig"), script0}})
	tx.AddTxIn(&wire.TxIn{Witness: wire.TxWitness{[]byte("sig"), script1}})

	out := ExtractFromTx(tx)
	if len(out) != 2 {
		t.Fatalf("expected 2 inscriptions, got %d", len(out))
	}
	if out[0].TxInIndex != 0 || out[1].TxInIndex != 1 {
		t.Fatalf("unexpected input indices: %d, %d", out[0].TxInIndex, out[1].TxInIndex)
	}
	if !bytes.Equal(out[0].Inscription.Body, []byte("first")) {
		t.Fatalf("input 0 body = %q", out[0].Inscription.Body)
	}
	if !bytes.Equal(out[1].Inscription.Body, []byte("second")) {
		t.Fatalf("input 1 body = %q", out[1].Inscription.Body)
	}
	if out[0].TxInOffset != 0 {
		t.Fatalf("input 0 offset = %d, want 0 (envelope at script start)", out[0].TxInOffset)
	}
}

func TestExtractFromTxNoWitnessNoInscription(t *testing.T) {
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(&wire.TxIn{})
	if out := ExtractFromTx(tx); len(out) != 0 {
		t.Fatalf("expected no inscriptions, got %d", len(out))
	}
}
