// Copyright (c) 2024 The ordi developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package store implements C8, the persistent store façade over the
// indexer's column families (STATUS, OUTPUT_VALUE, ID_INSCRIPTION,
// INSCRIPTION_OUTPUT, OUTPUT_INSCRIPTION), per spec.md §3.2/§3.4. It is
// grounded on the teacher's database/factory.go Type/Config/New shape
// (generalized from a stub returning "not implemented" into a working
// goleveldb-backed store) and on database/interface.go's
// context-checked-first method convention.
package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/btcordinals/ordi/inscription"
)

// DefaultMaxFileSize bounds each column family's on-disk SSTable file
// size (spec.md §9 domain-stack note).
const DefaultMaxFileSize = 64 * 1024 * 1024

// Config configures where and how the store's column families are
// opened.
type Config struct {
	// Dir is the ordi data directory; each column family gets its own
	// subdirectory under it.
	Dir string
	// MaxFileSize overrides DefaultMaxFileSize when non-zero.
	MaxFileSize int
}

// Store is the persistent façade over every column family spec.md §3.2
// names. OUTPUT_INSCRIPTION is kept in memory only (the hot reverse-lookup
// path) and rebuilt from INSCRIPTION_OUTPUT at Open time. A SatPoint maps
// to a slice rather than a single id because a reinscription (spec.md §4.6
// Step B) deliberately lets a new inscription share the exact SatPoint of
// the one it curses, rather than replacing it.
type Store struct {
	status            *leveldb.DB
	outputValue       *leveldb.DB
	idInscription     *leveldb.DB
	inscriptionOutput *leveldb.DB

	mu                sync.RWMutex
	outputInscription map[inscription.SatPoint][]inscription.InscriptionId
}

// Open opens (creating if necessary) every durable column family under
// cfg.Dir and rebuilds the in-memory OUTPUT_INSCRIPTION map by scanning
// INSCRIPTION_OUTPUT (spec.md §3.2 "may be kept in-memory only").
func Open(cfg Config) (*Store, error) {
	opts := &opt.Options{}
	if cfg.MaxFileSize > 0 {
		opts.CompactionTableSize = cfg.MaxFileSize
	} else {
		opts.CompactionTableSize = DefaultMaxFileSize
	}

	open := func(name string) (*leveldb.DB, error) {
		db, err := leveldb.OpenFile(filepath.Join(cfg.Dir, name), opts)
		if err != nil {
			return nil, fmt.Errorf("store: opening %s: %w", name, err)
		}
		return db, nil
	}

	status, err := open("status")
	if err != nil {
		return nil, err
	}
	outputValue, err := open("output_value")
	if err != nil {
		status.Close()
		return nil, err
	}
	idInscription, err := open("id_inscription")
	if err != nil {
		status.Close()
		outputValue.Close()
		return nil, err
	}
	inscriptionOutput, err := open("inscription_output")
	if err != nil {
		status.Close()
		outputValue.Close()
		idInscription.Close()
		return nil, err
	}

	s := &Store{
		status:            status,
		outputValue:       outputValue,
		idInscription:     idInscription,
		inscriptionOutput: inscriptionOutput,
		outputInscription: make(map[inscription.SatPoint][]inscription.InscriptionId),
	}

	if err := s.rebuildOutputInscription(); err != nil {
		s.Close()
		return nil, err
	}

	// Record the schema version on first run.
	has, err := s.status.Has(statusSchemaVersionKey, nil)
	if err == nil && !has {
		err = s.status.Put(statusSchemaVersionKey, encodeU64(uint64(CurrentSchemaVersion)), nil)
	}
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("store: recording schema version: %w", err)
	}

	return s, nil
}

// rebuildOutputInscription scans INSCRIPTION_OUTPUT (id -> satpoint) and
// populates the in-memory reverse map. Multiple ids scanned for the same
// satpoint (a reinscription) are all kept, appended in iteration order.
func (s *Store) rebuildOutputInscription() error {
	iter := s.inscriptionOutput.NewIterator(nil, nil)
	defer iter.Release()

	count := 0
	for iter.Next() {
		id := inscription.InscriptionId(append([]byte(nil), iter.Key()...))
		sp := inscription.SatPoint(append([]byte(nil), iter.Value()...))
		s.outputInscription[sp] = append(s.outputInscription[sp], id)
		count++
	}
	if err := iter.Error(); err != nil {
		return fmt.Errorf("store: rebuilding output_inscription map: %w", err)
	}
	log.Infof("rebuilt in-memory output_inscription map: %d entries", count)
	return nil
}

// Close shuts down every durable column family.
func (s *Store) Close() error {
	var firstErr error
	for _, db := range []*leveldb.DB{s.status, s.outputValue, s.idInscription, s.inscriptionOutput} {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// GetOutputValue returns the value of an unspent output, if it is
// tracked in OUTPUT_VALUE.
func (s *Store) GetOutputValue(ctx context.Context, txidHex string, vout uint32) (uint64, bool, error) {
	select {
	case <-ctx.Done():
		return 0, false, ctx.Err()
	default:
	}

	v, err := s.outputValue.Get(outputValueKey(txidHex, vout), nil)
	if err == leveldb.ErrNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return decodeU64(v), true, nil
}

// GetInscription returns the immutable Inscription record for id.
func (s *Store) GetInscription(ctx context.Context, id inscription.InscriptionId) (inscription.Inscription, bool, error) {
	select {
	case <-ctx.Done():
		return inscription.Inscription{}, false, ctx.Err()
	default:
	}

	v, err := s.idInscription.Get([]byte(id), nil)
	if err == leveldb.ErrNotFound {
		return inscription.Inscription{}, false, nil
	}
	if err != nil {
		return inscription.Inscription{}, false, err
	}
	insc, err := deserializeInscription(v)
	if err != nil {
		return inscription.Inscription{}, false, err
	}
	return insc, true, nil
}

// GetInscriptionOutput returns the current SatPoint of an inscription.
func (s *Store) GetInscriptionOutput(ctx context.Context, id inscription.InscriptionId) (inscription.SatPoint, bool, error) {
	select {
	case <-ctx.Done():
		return "", false, ctx.Err()
	default:
	}

	v, err := s.inscriptionOutput.Get([]byte(id), nil)
	if err == leveldb.ErrNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return inscription.SatPoint(v), true, nil
}

// OutpointCarriedInscriptions returns every (InscriptionId, sat_offset)
// pair carried by outpoint txid:vout, ordered by ascending sat_offset
// (spec.md §4.6 Step A's range query). A satpoint carrying more than one
// id (a reinscription, spec.md §4.6 Step B "tolerate multiple ids at one
// satpoint") contributes one entry per id, all at that shared offset.
// This reads the in-memory OUTPUT_INSCRIPTION map, since it is the one
// column family kept entirely in memory.
func (s *Store) OutpointCarriedInscriptions(txidHex string, vout uint32) []CarriedInscription {
	prefix := outpointPrefix(txidHex, vout)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []CarriedInscription
	for sp, ids := range s.outputInscription {
		if !hasPrefix(string(sp), prefix) {
			continue
		}
		off, ok := satPointOffset(sp)
		if !ok {
			continue
		}
		for _, id := range ids {
			out = append(out, CarriedInscription{ID: id, SatOffset: off, SatPoint: sp})
		}
	}
	sortCarried(out)
	return out
}

// CarriedInscription is one entry of the ordered "carried" list spec.md
// §4.6 Step A builds.
type CarriedInscription struct {
	ID        inscription.InscriptionId
	SatOffset uint64
	SatPoint  inscription.SatPoint
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func sortCarried(c []CarriedInscription) {
	for i := 1; i < len(c); i++ {
		for j := i; j > 0 && c[j].SatOffset < c[j-1].SatOffset; j-- {
			c[j], c[j-1] = c[j-1], c[j]
		}
	}
}

