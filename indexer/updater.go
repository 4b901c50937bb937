// Copyright (c) 2023 UTXOchat developers
// Copyright (c) 2024 The ordi developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package indexer implements C6 (the block updater state machine) and C7
// (the top-level orchestrator). It is grounded on the teacher's
// blockchain/handler.go for the overall shape of a context-driven,
// single-threaded block-processing loop (Start/Stop, a done channel, a
// ticker-based poll fallback) and on database/interface.go's
// context-checked-first call convention, generalized from "track spent
// outpoints in a chat UTXO set" into the full inscription state machine
// spec.md §4.6 describes.
package indexer

import (
	"context"
	"math"

	"github.com/btcsuite/btcd/wire"

	"github.com/btcordinals/ordi/callback"
	"github.com/btcordinals/ordi/chainio"
	"github.com/btcordinals/ordi/inscription"
	"github.com/btcordinals/ordi/store"
)

// Updater applies one block at a time to the persistent store and fires
// callbacks for every inscription event the block produced (spec.md
// §4.6).
type Updater struct {
	store     *store.Store
	callbacks *callback.Registry
}

// NewUpdater builds an Updater over st, firing events through reg.
func NewUpdater(st *store.Store, reg *callback.Registry) *Updater {
	return &Updater{store: st, callbacks: reg}
}

// carriedEntry is one entry of the working "carried" list spec.md §4.6
// Steps A-C build and consume.
type carriedEntry struct {
	id       inscription.InscriptionId
	offset   uint64
	oldPoint *inscription.SatPoint
	isNew    bool
	curse    inscription.Curse
	insc     inscription.Inscription
}

// ApplyBlock applies one (height, block) pair. When utxoOnly is true,
// only Step D (UTXO accounting) runs — this is the replay fast path
// below FIRST_INSCRIPTION_HEIGHT (spec.md §4.7), since no inscription can
// exist yet.
func (u *Updater) ApplyBlock(ctx context.Context, height uint64, block *chainio.Block, utxoOnly bool) error {
	batch := u.store.NewBatch()

	type inscribeEvent struct {
		id       inscription.InscriptionId
		insc     inscription.Inscription
		curse    inscription.Curse
		satpoint inscription.SatPoint
	}
	type transferEvent struct {
		id       inscription.InscriptionId
		oldPoint inscription.SatPoint
		newPoint inscription.SatPoint
	}
	var inscribeEvents []inscribeEvent
	var transferEvents []transferEvent

	// pendingFee holds carried entries that overran their own transaction's
	// outputs (spec.md §4.6 Step C "lost as fees"). They are resolved in a
	// second pass against the block's coinbase output stream, once every
	// transaction's fee contribution is known.
	type pendingFee struct {
		entry            carriedEntry
		cumulativeOffset uint64
	}
	var pendingFees []pendingFee
	var cumulativeFee uint64

	for _, tx := range block.Txs {
		txidHex := tx.TxHash().String()

		var carried []carriedEntry
		var streamOffset uint64

		for _, in := range tx.TxIn {
			if isNullOutpoint(in.PreviousOutPoint) {
				continue
			}
			prevTxid := in.PreviousOutPoint.Hash.String()
			prevVout := in.PreviousOutPoint.Index

			value, _, err := u.store.GetOutputValue(ctx, prevTxid, prevVout)
			if err != nil {
				return err
			}

			if !utxoOnly {
				for _, c := range u.store.OutpointCarriedInscriptions(prevTxid, prevVout) {
					local := c.SatOffset
					sp := c.SatPoint
					carried = append(carried, carriedEntry{
						id:       c.ID,
						offset:   streamOffset + local,
						oldPoint: &sp,
					})
				}
			}

			streamOffset += value

			// Step D input half: delete the spent output's bookkeeping.
			batch.DeleteOutputValue(prevTxid, prevVout)
			batch.DeleteOutpointReverseRows(prevTxid, prevVout)
		}

		if !utxoOnly {
			reinscription := false
			for _, c := range carried {
				if c.offset == 0 {
					reinscription = true
					break
				}
			}

			for k, ti := range inscription.ExtractFromTx(tx) {
				id := inscription.NewInscriptionId(txidHex, k)
				curse := buildCurse(ti, reinscription)
				batch.SetInscription(id, ti.Inscription)
				carried = append([]carriedEntry{{
					id:     id,
					offset: 0,
					isNew:  true,
					curse:  curse,
					insc:   ti.Inscription,
				}}, carried...)
			}
		}

		// Step C: build the output stream and resolve each carried entry
		// to its new location. totalOutputValue/cumOffsets are computed
		// unconditionally (not just when carried is non-empty) so this
		// transaction's fee contribution to the block-wide aggregated fee
		// stream can always be derived below.
		outputs := tx.TxOut
		var totalOutputValue uint64
		cumOffsets := make([]uint64, len(outputs))
		for i, o := range outputs {
			cumOffsets[i] = totalOutputValue
			totalOutputValue += uint64(o.Value)
		}

		if len(carried) > 0 {
			sortCarriedEntries(carried)

			for _, c := range carried {
				if c.offset >= totalOutputValue {
					// Lost as fees (spec.md §4.6 Step C): park this entry
					// at its position in the block-wide fee stream and
					// resolve it against the coinbase's own outputs once
					// every transaction's fee is known.
					pendingFees = append(pendingFees, pendingFee{
						entry:            c,
						cumulativeOffset: cumulativeFee + (c.offset - totalOutputValue),
					})
					continue
				}

				outIdx := locateOutput(cumOffsets, c.offset)
				newPoint := inscription.NewSatPoint(txidHex, uint32(outIdx), c.offset-cumOffsets[outIdx])

				batch.SetInscriptionLocation(c.id, newPoint, c.oldPoint)

				if c.isNew {
					inscribeEvents = append(inscribeEvents, inscribeEvent{
						id: c.id, insc: c.insc, curse: c.curse, satpoint: newPoint,
					})
				} else if c.oldPoint != nil {
					transferEvents = append(transferEvents, transferEvent{
						id: c.id, oldPoint: *c.oldPoint, newPoint: newPoint,
					})
				}
			}
		}

		if streamOffset > totalOutputValue {
			cumulativeFee += streamOffset - totalOutputValue
		}

		// Step D output half: every output becomes a new live UTXO.
		for outIdx, out := range tx.TxOut {
			batch.SetOutputValue(txidHex, uint32(outIdx), uint64(out.Value))
		}
	}

	// Resolve every fee-bound carried entry against the coinbase
	// transaction's own output stream (spec.md §4.6 Step C, fee pass):
	// the aggregated fee stream from every transaction in the block maps
	// onto the coinbase outputs the same way a normal output stream maps
	// onto a spending transaction's outputs.
	if len(pendingFees) > 0 {
		coinbase := block.Txs[0]
		coinbaseTxid := coinbase.TxHash().String()
		var coinbaseTotal uint64
		coinbaseCum := make([]uint64, len(coinbase.TxOut))
		for i, o := range coinbase.TxOut {
			coinbaseCum[i] = coinbaseTotal
			coinbaseTotal += uint64(o.Value)
		}

		for _, pf := range pendingFees {
			c := pf.entry
			if pf.cumulativeOffset >= coinbaseTotal {
				// The aggregated fee stream overruns the coinbase's own
				// output value; nothing to attach to, so the sat is
				// simply unrecoverable. Log and move on.
				log.Warnf("fee satpoint for %s overruns coinbase output value "+
					"(offset %d >= coinbase total %d)", c.id, pf.cumulativeOffset, coinbaseTotal)
				continue
			}

			outIdx := locateOutput(coinbaseCum, pf.cumulativeOffset)
			newPoint := inscription.NewSatPoint(coinbaseTxid, uint32(outIdx), pf.cumulativeOffset-coinbaseCum[outIdx])

			batch.SetInscriptionLocation(c.id, newPoint, c.oldPoint)

			if c.isNew {
				inscribeEvents = append(inscribeEvents, inscribeEvent{
					id: c.id, insc: c.insc, curse: c.curse, satpoint: newPoint,
				})
			} else if c.oldPoint != nil {
				transferEvents = append(transferEvents, transferEvent{
					id: c.id, oldPoint: *c.oldPoint, newPoint: newPoint,
				})
			}
		}
	}

	batch.SetLastHeight(height)
	if err := batch.Commit(ctx); err != nil {
		return err
	}

	for _, e := range inscribeEvents {
		u.callbacks.FireInscribe(e.id, e.satpoint, e.insc, e.curse)
	}
	for _, e := range transferEvents {
		u.callbacks.FireTransfer(e.id, e.oldPoint, e.newPoint)
	}

	return nil
}

// buildCurse applies spec.md §4.6 Step B's curse rules.
func buildCurse(ti inscription.TransactionInscription, reinscription bool) inscription.Curse {
	var c inscription.Curse
	if ti.TxInIndex != 0 {
		c |= inscription.CurseNotInFirstInput
	}
	if ti.TxInOffset != 0 {
		c |= inscription.CurseNotAtOffsetZero
	}
	if reinscription {
		c |= inscription.CurseReinscription
	}
	return c
}

// isNullOutpoint reports the coinbase-input sentinel outpoint (spec.md
// §3.1): all-zero hash, index 0xFFFFFFFF.
func isNullOutpoint(op wire.OutPoint) bool {
	if op.Index != math.MaxUint32 {
		return false
	}
	for _, b := range op.Hash {
		if b != 0 {
			return false
		}
	}
	return true
}

// sortCarriedEntries sorts by ascending offset; block-sized transaction
// input counts make an insertion sort plenty fast and keep this
// allocation-free.
func sortCarriedEntries(c []carriedEntry) {
	for i := 1; i < len(c); i++ {
		for j := i; j > 0 && c[j].offset < c[j-1].offset; j-- {
			c[j], c[j-1] = c[j-1], c[j]
		}
	}
}

// locateOutput returns the index of the output whose [cum, cum+value)
// range contains offset, given cumOffsets[i] is the cumulative value of
// outputs before i.
func locateOutput(cumOffsets []uint64, offset uint64) int {
	idx := 0
	for i, cum := range cumOffsets {
		if cum <= offset {
			idx = i
		} else {
			break
		}
	}
	return idx
}
