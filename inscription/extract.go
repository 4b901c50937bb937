// Copyright (c) 2024 The ordi developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package inscription

import "github.com/btcsuite/btcd/wire"

// taprootAnnexPrefix marks the last witness item as an annex rather than
// part of the spend's script-path data (BIP-341).
const taprootAnnexPrefix = 0x50

// candidateScript picks the witness item that may carry an inscription
// envelope, per spec.md §3.1: witness[-2] if an annex is present (last
// item starts with 0x50), else witness[-1]. Returns nil if the witness
// has fewer than 2 items (no script-path spend).
func candidateScript(witness wire.TxWitness) []byte {
	n := len(witness)
	if n < 2 {
		return nil
	}
	last := witness[n-1]
	if len(last) > 0 && last[0] == taprootAnnexPrefix {
		if n < 3 {
			return nil
		}
		return witness[n-2]
	}
	return witness[n-1]
}

// ExtractFromTx walks tx's inputs in order and returns every inscription
// found across all of them, in emission order (spec.md §4.5 "per
// transaction extraction"). A parse error on one input is swallowed —
// extraction continues with the next input.
func ExtractFromTx(tx *wire.MsgTx) []TransactionInscription {
	var out []TransactionInscription
	for inIdx, in := range tx.TxIn {
		script := candidateScript(in.Witness)
		if script == nil {
			continue
		}
		envelopes, err := ParseEnvelopes(script)
		if err != nil {
			log.Debugf("input %d: skipping witness script: %v", inIdx, err)
			continue
		}
		for _, e := range envelopes {
			out = append(out, TransactionInscription{
				Inscription: e.Inscription,
				TxInIndex:   inIdx,
				TxInOffset:  e.Offset,
			})
		}
	}
	return out
}
