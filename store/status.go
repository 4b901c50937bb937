// Copyright (c) 2024 The ordi developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package store

import (
	"context"

	"github.com/syndtr/goleveldb/leveldb"
)

var statusLastHeightKey = []byte("last_height")
var statusSchemaVersionKey = []byte("schema_version")

// CurrentSchemaVersion is written to STATUS.schema_version on first run.
const CurrentSchemaVersion uint32 = 1

// GetLastHeight returns STATUS.last_height, or (0, false) if the store
// has never committed a block (spec.md §3.4).
func (s *Store) GetLastHeight(ctx context.Context) (uint64, bool, error) {
	select {
	case <-ctx.Done():
		return 0, false, ctx.Err()
	default:
	}

	v, err := s.status.Get(statusLastHeightKey, nil)
	if err == leveldb.ErrNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return decodeU64(v), true, nil
}

// SchemaVersion returns STATUS.schema_version, defaulting to
// CurrentSchemaVersion if unset (first run).
func (s *Store) SchemaVersion(ctx context.Context) (uint32, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}

	v, err := s.status.Get(statusSchemaVersionKey, nil)
	if err == leveldb.ErrNotFound {
		return CurrentSchemaVersion, nil
	}
	if err != nil {
		return 0, err
	}
	return uint32(decodeU64(v)), nil
}
