// Copyright (c) 2024 The ordi developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package store

import (
	"encoding/binary"
	"fmt"

	"github.com/btcordinals/ordi/inscription"
)

// serializeInscription encodes an Inscription as
// u32(len(content_type)) content_type u32(len(body)) body, the value
// written to ID_INSCRIPTION (spec.md §3.2). Rows are write-once, so no
// versioning is needed beyond the schema version carried in STATUS.
func serializeInscription(insc inscription.Inscription) []byte {
	buf := make([]byte, 0, 8+len(insc.ContentType)+len(insc.Body))
	var lenBuf [4]byte

	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(insc.ContentType)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, insc.ContentType...)

	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(insc.Body)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, insc.Body...)

	return buf
}

func deserializeInscription(data []byte) (inscription.Inscription, error) {
	if len(data) < 4 {
		return inscription.Inscription{}, fmt.Errorf("store: truncated inscription record")
	}
	ctLen := binary.LittleEndian.Uint32(data[:4])
	data = data[4:]
	if uint32(len(data)) < ctLen {
		return inscription.Inscription{}, fmt.Errorf("store: truncated inscription content-type")
	}
	contentType := append([]byte(nil), data[:ctLen]...)
	data = data[ctLen:]

	if len(data) < 4 {
		return inscription.Inscription{}, fmt.Errorf("store: truncated inscription record")
	}
	bodyLen := binary.LittleEndian.Uint32(data[:4])
	data = data[4:]
	if uint32(len(data)) < bodyLen {
		return inscription.Inscription{}, fmt.Errorf("store: truncated inscription body")
	}
	body := append([]byte(nil), data[:bodyLen]...)

	return inscription.Inscription{ContentType: contentType, Body: body}, nil
}

func encodeU64(v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return b[:]
}

func decodeU64(b []byte) uint64 {
	return binary.LittleEndian.Uint64(b)
}
