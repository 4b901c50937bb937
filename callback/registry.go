// Copyright (c) 2024 The ordi developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package callback implements the downstream-consumer registration
// surface spec.md §6 describes: on_inscribe/on_transfer callbacks that
// fire after a block's batch has committed (spec.md §4.6 Step E). It is
// grounded on the teacher's handler-registration-free style
// (blockchain/handler.go takes no callbacks at all) generalized into an
// explicit registry, since spec.md requires one and nothing in the
// teacher contradicts it.
package callback

import (
	"errors"
	"fmt"
	"sync"

	"github.com/btcordinals/ordi/inscription"
)

// ErrRegistryFrozen is returned by OnInscribe/OnTransfer once Freeze has
// been called — normally once Orchestrator.Run starts (DESIGN NOTES §9
// "Callback list as global state").
var ErrRegistryFrozen = errors.New("callback: registry is frozen, no further callbacks may be registered")

// InscribeFunc is called once per newly recorded inscription, in Step B
// emission order, after the block's batch has committed.
type InscribeFunc func(id inscription.InscriptionId, satpoint inscription.SatPoint, insc inscription.Inscription, curse inscription.Curse)

// TransferFunc is called once per inscription whose location changed in
// this block (excluding those just inscribed), in Step C order, after
// the block's batch has committed.
type TransferFunc func(id inscription.InscriptionId, oldSatpoint, newSatpoint inscription.SatPoint)

// Registry holds every registered callback. It is safe for concurrent
// registration up until Freeze; firing (from the single-threaded block
// updater) never races with registration once Run has started.
type Registry struct {
	mu     sync.Mutex
	frozen bool

	onInscribe []InscribeFunc
	onTransfer []TransferFunc
}

// NewRegistry returns an empty, unfrozen registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// OnInscribe registers fn to be called for every new inscription. Returns
// ErrRegistryFrozen if called after Freeze.
func (r *Registry) OnInscribe(fn InscribeFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return ErrRegistryFrozen
	}
	r.onInscribe = append(r.onInscribe, fn)
	return nil
}

// OnTransfer registers fn to be called for every inscription transfer.
// Returns ErrRegistryFrozen if called after Freeze.
func (r *Registry) OnTransfer(fn TransferFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return ErrRegistryFrozen
	}
	r.onTransfer = append(r.onTransfer, fn)
	return nil
}

// Freeze stops any further registration. Orchestrator.Run calls this
// before processing the first block.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// FireInscribe invokes every registered InscribeFunc. A panicking callback
// is recovered, logged, and does not stop the remaining callbacks or the
// indexer (spec.md §4.6 Step E "caught and logged, never fatal").
func (r *Registry) FireInscribe(id inscription.InscriptionId, satpoint inscription.SatPoint, insc inscription.Inscription, curse inscription.Curse) {
	r.mu.Lock()
	fns := append([]InscribeFunc(nil), r.onInscribe...)
	r.mu.Unlock()

	for _, fn := range fns {
		callSafely(func() { fn(id, satpoint, insc, curse) })
	}
}

// FireTransfer invokes every registered TransferFunc.
func (r *Registry) FireTransfer(id inscription.InscriptionId, oldSatpoint, newSatpoint inscription.SatPoint) {
	r.mu.Lock()
	fns := append([]TransferFunc(nil), r.onTransfer...)
	r.mu.Unlock()

	for _, fn := range fns {
		callSafely(func() { fn(id, oldSatpoint, newSatpoint) })
	}
}

func callSafely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("callback panicked, ignoring: %v", fmt.Errorf("%v", r))
		}
	}()
	fn()
}
