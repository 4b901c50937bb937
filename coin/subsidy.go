// Copyright (c) 2024 The ordi developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package coin

// CoinValue is the number of base units ("satoshis") per whole coin.
const CoinValue = 100_000_000

// SubsidyHalvingInterval is the number of blocks per epoch.
const SubsidyHalvingInterval = 210_000

// FirstPostSubsidyEpoch is the epoch at and beyond which the block
// subsidy is zero. Kept for completeness (original_source block.h
// Epoch::FIRST_POST_SUBSIDY) — spec.md §9 OQ3 notes nothing in the core
// consumes subsidy today.
const FirstPostSubsidyEpoch = 33

// Epoch returns the halving epoch a given height falls in.
func Epoch(height uint64) uint64 {
	return height / SubsidyHalvingInterval
}

// Subsidy returns the block subsidy, in satoshis, for the given epoch.
func Subsidy(epoch uint64) uint64 {
	if epoch >= FirstPostSubsidyEpoch {
		return 0
	}
	return (50 * CoinValue) >> epoch
}
