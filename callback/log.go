// Copyright (c) 2024 The ordi developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package callback

import "github.com/btcsuite/btclog"

var log = btclog.Disabled

// UseLogger sets the subsystem logger used by this package.
func UseLogger(logger btclog.Logger) {
	log = logger
}
