// Copyright (c) 2024 The ordi developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package inscription

import (
	"bytes"

	"github.com/btcsuite/btcd/txscript"
)

// token is one decoded script instruction: either a data push (data
// non-nil, possibly empty) or a plain opcode. offset is the byte position
// of this instruction's opcode byte within the script, needed to compute
// tx_in_offset (spec.md §4.6 Step B "NotAtOffsetZero").
type token struct {
	opcode byte
	data   []byte
	isPush bool
	offset int
}

// tokenize walks script with txscript's tokenizer and materializes every
// instruction, so the envelope scanner below can look ahead and behind
// without re-driving the tokenizer. Byte offsets are computed locally
// from each instruction's encoding, since ScriptTokenizer does not expose
// them directly.
func tokenize(script []byte) ([]token, error) {
	var toks []token
	pos := 0
	t := txscript.MakeScriptTokenizer(0, script)
	for t.Next() {
		op := t.Opcode()
		data := t.Data()
		isPush := op == txscript.OP_0 || (op >= txscript.OP_DATA_1 && op <= txscript.OP_PUSHDATA4)
		toks = append(toks, token{opcode: op, data: data, isPush: isPush, offset: pos})
		pos += instructionSize(op, data)
	}
	if err := t.Err(); err != nil {
		return nil, err
	}
	return toks, nil
}

// instructionSize returns the number of script bytes a single
// already-decoded instruction occupies.
func instructionSize(op byte, data []byte) int {
	switch {
	case op >= txscript.OP_DATA_1 && op <= txscript.OP_DATA_75:
		return 1 + len(data)
	case op == txscript.OP_PUSHDATA1:
		return 1 + 1 + len(data)
	case op == txscript.OP_PUSHDATA2:
		return 1 + 2 + len(data)
	case op == txscript.OP_PUSHDATA4:
		return 1 + 4 + len(data)
	default:
		return 1
	}
}

// Envelope is one successfully parsed inscription together with the byte
// offset, within the script it was found in, at which its envelope began
// (the PushBytes(empty) that opens "OP_FALSE OP_IF \"ord\""). This is the
// tx_in_offset spec.md §4.6 Step B uses to decide NotAtOffsetZero and to
// order emissions (I5).
type Envelope struct {
	Inscription Inscription
	Offset      int
}

// ParseEnvelopes scans script for every inscription envelope it contains
// and returns the ones that parsed successfully, in script order. A
// script with no envelopes returns (nil, nil) — that is not an error
// (spec.md §4.5 step 1). A malformed individual envelope aborts only that
// envelope; scanning resumes after it.
func ParseEnvelopes(script []byte) ([]Envelope, error) {
	toks, err := tokenize(script)
	if err != nil {
		return nil, err
	}

	var out []Envelope
	i := 0
	for i < len(toks) {
		if !isEnvelopeStart(toks, i) {
			i++
			continue
		}
		startOffset := toks[i].offset
		i += 3 // consume PushBytes(empty), OP_IF, PushBytes("ord")

		insc, next, envErr := parseFields(toks, i)
		i = next
		if envErr != nil {
			log.Debugf("skipping malformed inscription envelope: %v", envErr)
			continue
		}
		out = append(out, Envelope{Inscription: insc, Offset: startOffset})
	}
	return out, nil
}

// isEnvelopeStart reports whether toks[i:i+3] matches
// PushBytes(empty), Op(OP_IF), PushBytes("ord").
func isEnvelopeStart(toks []token, i int) bool {
	if i+2 >= len(toks) {
		return false
	}
	if !(toks[i].isPush && len(toks[i].data) == 0) {
		return false
	}
	if toks[i+1].opcode != txscript.OP_IF {
		return false
	}
	return toks[i+2].isPush && bytes.Equal(toks[i+2].data, []byte("ord"))
}

// parseFields runs step 2-3 of the state machine starting right after
// the "ord" tag, returning the decoded Inscription and the token index to
// resume scanning from.
func parseFields(toks []token, i int) (Inscription, int, error) {
	fields := make(map[byte][]byte)
	var body []byte
	haveBody := false

	for i < len(toks) {
		t := toks[i]

		switch {
		case t.isPush && len(t.data) == 1 && t.data[0] == TagBody:
			i++
			haveBody = true
			var err error
			body, i, err = consumeBody(toks, i)
			if err != nil {
				return Inscription{}, i, err
			}
			insc, err := buildInscription(fields, body, haveBody)
			return insc, i, err

		case t.opcode == txscript.OP_ENDIF:
			i++
			insc, err := buildInscription(fields, body, haveBody)
			return insc, i, err

		case t.isPush && len(t.data) == 1:
			tag := t.data[0]
			i++
			if i >= len(toks) || !toks[i].isPush {
				return Inscription{}, i, ErrMalformedInscription
			}
			if _, dup := fields[tag]; dup {
				return Inscription{}, i, ErrMalformedInscription
			}
			fields[tag] = toks[i].data
			i++

		default:
			return Inscription{}, i, ErrMalformedInscription
		}
	}
	return Inscription{}, i, ErrMalformedInscription
}

// consumeBody reads body-chunk pushes until OP_ENDIF, concatenating them
// in order.
func consumeBody(toks []token, i int) ([]byte, int, error) {
	var body []byte
	for i < len(toks) {
		if toks[i].opcode == txscript.OP_ENDIF {
			return body, i + 1, nil
		}
		if !toks[i].isPush {
			return nil, i, ErrMalformedInscription
		}
		body = append(body, toks[i].data...)
		i++
	}
	return nil, i, ErrMalformedInscription
}

// buildInscription applies the unknown-even-tag rule (spec.md §4.5 step
// 3) and assembles the final Inscription from the collected fields.
func buildInscription(fields map[byte][]byte, body []byte, haveBody bool) (Inscription, error) {
	for tag := range fields {
		if tag == TagBody || tag == TagContentType {
			continue
		}
		if tag%2 == 0 {
			return Inscription{}, &UnrecognizedEvenFieldError{Tag: tag}
		}
	}

	insc := Inscription{ContentType: fields[TagContentType]}
	if haveBody {
		insc.Body = body
	}
	return insc, nil
}
