// Copyright (c) 2024 The ordi developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package inscription implements C5, the ordinal inscription envelope
// parser. It is grounded on BoostyLabs's
// bitcoin/ord/inscriptions/inscription.go for the overall shape (an
// envelope is recognized by disassembling a witness script and walking
// its tokens looking for the "ord" tag sequence), adapted to
// btcd/txscript's ScriptTokenizer instead of a disassembled-string split,
// and to the exact field/curse semantics spec.md §4.5-§4.6 describes.
package inscription

import (
	"errors"
	"fmt"
)

// Tag byte values recognized inside an envelope (spec.md §4.5).
const (
	TagBody        byte = 0x00
	TagContentType byte = 0x01
)

// ErrMalformedInscription is returned when an envelope's fields cannot be
// parsed into a well-formed sequence (duplicate tag, truncated script,
// dangling field without a value).
var ErrMalformedInscription = errors.New("inscription: malformed envelope")

// UnrecognizedEvenFieldError is returned when an envelope carries an even
// tag byte this parser does not recognize — per spec.md §4.5's
// forward-compatibility rule, odd unknown tags are silently ignored but
// even ones make the envelope invalid.
type UnrecognizedEvenFieldError struct {
	Tag byte
}

func (e *UnrecognizedEvenFieldError) Error() string {
	return fmt.Sprintf("inscription: unrecognized even field tag 0x%02x", e.Tag)
}

// Inscription is the data extracted from one envelope (spec.md §3.1).
type Inscription struct {
	Body        []byte
	ContentType []byte
}

// Curse flags (spec.md §4.6 Step B). An inscription can carry any
// combination of these; none of them prevent the inscription from being
// recorded.
type Curse uint8

const (
	CurseNotInFirstInput Curse = 1 << iota
	CurseNotAtOffsetZero
	CurseReinscription
)

func (c Curse) NotInFirstInput() bool { return c&CurseNotInFirstInput != 0 }
func (c Curse) NotAtOffsetZero() bool { return c&CurseNotAtOffsetZero != 0 }
func (c Curse) Reinscription() bool   { return c&CurseReinscription != 0 }

// TransactionInscription is one inscription as emitted during C5
// extraction from a single transaction, before InscriptionId assignment
// (spec.md §4.6 Step B).
type TransactionInscription struct {
	Inscription Inscription
	TxInIndex   int
	TxInOffset  int
}

// InscriptionId is "<hex_txid>i<index>", index being the 0-based emission
// order among all inscriptions in the transaction (spec.md §3.1).
type InscriptionId string

// NewInscriptionId builds an InscriptionId from a hex txid and emission
// index.
func NewInscriptionId(txidHex string, index int) InscriptionId {
	return InscriptionId(fmt.Sprintf("%si%d", txidHex, index))
}

// SatPoint is "<outpoint>:<sat_offset>" (spec.md §3.1).
type SatPoint string

// NewSatPoint builds a SatPoint from a hex txid, output index, and
// sat-offset within that output's value range.
func NewSatPoint(txidHex string, vout uint32, offset uint64) SatPoint {
	return SatPoint(fmt.Sprintf("%s:%d:%d", txidHex, vout, offset))
}
