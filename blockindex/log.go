// Copyright (c) 2024 The ordi developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockindex

import "github.com/btcsuite/btclog"

// log is the package-level logger; set via UseLogger following the
// standard btcsuite subsystem-logger convention (internal/ordilog).
var log = btclog.Disabled

// UseLogger sets the subsystem logger used by this package.
func UseLogger(logger btclog.Logger) {
	log = logger
}
