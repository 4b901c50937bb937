// Copyright (c) 2024 The ordi developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package store

import (
	"fmt"
	"strings"

	"github.com/btcordinals/ordi/inscription"
)

// outputValueKey builds the OUTPUT_VALUE key "<txid>:<vout>" (spec.md §3.2).
func outputValueKey(txidHex string, vout uint32) []byte {
	return []byte(fmt.Sprintf("%s:%d", txidHex, vout))
}

// outpointPrefix is the shared prefix of every SatPoint belonging to one
// outpoint, used for the Step A range query over OUTPUT_INSCRIPTION
// ("<outpoint>:0..value").
func outpointPrefix(txidHex string, vout uint32) string {
	return fmt.Sprintf("%s:%d:", txidHex, vout)
}

// satPointOffset extracts the trailing sat-offset from a SatPoint string,
// used to order a range-query's results.
func satPointOffset(sp inscription.SatPoint) (uint64, bool) {
	s := string(sp)
	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		return 0, false
	}
	var off uint64
	if _, err := fmt.Sscanf(s[idx+1:], "%d", &off); err != nil {
		return 0, false
	}
	return off, true
}
