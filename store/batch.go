// Copyright (c) 2024 The ordi developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package store

import (
	"context"
	"strings"

	"github.com/syndtr/goleveldb/leveldb"

	"github.com/btcordinals/ordi/inscription"
)

// Batch accumulates every write C6's block updater makes while applying
// one block, across every column family, and commits them together
// (spec.md §3.4 "written to via atomic batches (one batch per block)").
// Durable column families each get their own *leveldb.Batch; the
// in-memory OUTPUT_INSCRIPTION map is staged as pending ops and only
// applied once every durable batch has committed successfully.
type Batch struct {
	store *Store

	statusBatch            *leveldb.Batch
	outputValueBatch       *leveldb.Batch
	idInscriptionBatch     *leveldb.Batch
	inscriptionOutputBatch *leveldb.Batch

	// memInsert/memRemove stage precise per-id changes to the
	// (satpoint -> []id) reverse map, preserving every id a satpoint
	// ends up carrying instead of collapsing them to one (spec.md §4.6
	// Step B "tolerate multiple ids at one satpoint" on reinscription).
	memInsert []reverseEntry
	memRemove []reverseEntry

	// memDeletePrefix wipes every reverse row under a spent outpoint
	// wholesale, regardless of how many ids it carries.
	memDeletePrefix []string
}

type reverseEntry struct {
	satPoint inscription.SatPoint
	id       inscription.InscriptionId
}

// NewBatch starts a new block-scoped batch.
func (s *Store) NewBatch() *Batch {
	return &Batch{
		store:                  s,
		statusBatch:            new(leveldb.Batch),
		outputValueBatch:       new(leveldb.Batch),
		idInscriptionBatch:     new(leveldb.Batch),
		inscriptionOutputBatch: new(leveldb.Batch),
	}
}

// SetOutputValue stages OUTPUT_VALUE[txid:vout] = value (spec.md §4.6 Step D).
func (b *Batch) SetOutputValue(txidHex string, vout uint32, value uint64) {
	b.outputValueBatch.Put(outputValueKey(txidHex, vout), encodeU64(value))
}

// DeleteOutputValue stages deletion of OUTPUT_VALUE[txid:vout].
func (b *Batch) DeleteOutputValue(txidHex string, vout uint32) {
	b.outputValueBatch.Delete(outputValueKey(txidHex, vout))
}

// SetInscription stages the write-once ID_INSCRIPTION[id] row (spec.md §4.6
// Step B).
func (b *Batch) SetInscription(id inscription.InscriptionId, insc inscription.Inscription) {
	b.idInscriptionBatch.Put([]byte(id), serializeInscription(insc))
}

// SetInscriptionLocation stages INSCRIPTION_OUTPUT[id] = newSatPoint and
// the corresponding OUTPUT_INSCRIPTION update: the reverse entry for id at
// oldSatPoint (if any) is removed and a new one at newSatPoint is added
// (spec.md §4.6 Step C). The removal is precise to this one id, not the
// whole oldSatPoint bucket, since a reinscription lets several ids share a
// satpoint (spec.md §4.6 Step B) and a sibling id's entry there must
// survive.
func (b *Batch) SetInscriptionLocation(id inscription.InscriptionId, newSatPoint inscription.SatPoint, oldSatPoint *inscription.SatPoint) {
	b.inscriptionOutputBatch.Put([]byte(id), []byte(newSatPoint))
	if oldSatPoint != nil {
		b.memRemove = append(b.memRemove, reverseEntry{satPoint: *oldSatPoint, id: id})
	}
	b.memInsert = append(b.memInsert, reverseEntry{satPoint: newSatPoint, id: id})
}

// DeleteOutpointReverseRows stages removal of every OUTPUT_INSCRIPTION
// row whose SatPoint belongs to outpoint txid:vout (spec.md §4.6 Step D
// "delete any OUTPUT_INSCRIPTION rows under that outpoint").
func (b *Batch) DeleteOutpointReverseRows(txidHex string, vout uint32) {
	b.memDeletePrefix = append(b.memDeletePrefix, outpointPrefix(txidHex, vout))
}

// SetLastHeight stages the STATUS.last_height checkpoint write, committed
// in the same batch as every other write for this block (spec.md §3.4 I4).
func (b *Batch) SetLastHeight(height uint64) {
	b.statusBatch.Put(statusLastHeightKey, encodeU64(height))
}

// Commit writes every durable column family's batch, then — only once
// all of them have succeeded — applies the staged OUTPUT_INSCRIPTION
// changes to the in-memory map.
func (b *Batch) Commit(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	writes := []struct {
		db    *leveldb.DB
		batch *leveldb.Batch
	}{
		{b.store.outputValue, b.outputValueBatch},
		{b.store.idInscription, b.idInscriptionBatch},
		{b.store.inscriptionOutput, b.inscriptionOutputBatch},
		{b.store.status, b.statusBatch},
	}
	for _, w := range writes {
		if err := w.db.Write(w.batch, nil); err != nil {
			return err
		}
	}

	b.store.mu.Lock()
	defer b.store.mu.Unlock()

	// Wholesale: wipe every reverse row under a spent outpoint, however
	// many ids it carries.
	for sp := range b.store.outputInscription {
		for _, prefix := range b.memDeletePrefix {
			if strings.HasPrefix(string(sp), prefix) {
				delete(b.store.outputInscription, sp)
				break
			}
		}
	}

	// Precise: drop just the one id a transfer moved away from its old
	// satpoint, leaving any sibling id sharing that satpoint untouched.
	for _, rm := range b.memRemove {
		ids := b.store.outputInscription[rm.satPoint]
		if ids == nil {
			continue
		}
		filtered := ids[:0]
		for _, id := range ids {
			if id != rm.id {
				filtered = append(filtered, id)
			}
		}
		if len(filtered) == 0 {
			delete(b.store.outputInscription, rm.satPoint)
		} else {
			b.store.outputInscription[rm.satPoint] = filtered
		}
	}

	// Insert last, in call order, so two ids landing on the identical new
	// satpoint within this batch (a reinscription) both survive.
	for _, ins := range b.memInsert {
		b.store.outputInscription[ins.satPoint] = append(b.store.outputInscription[ins.satPoint], ins.id)
	}
	return nil
}
