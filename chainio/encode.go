// Copyright (c) 2024 The ordi developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chainio

import "encoding/binary"

// EncodeCompactSize is the write-side counterpart of ReadCompactSize, used
// by tests (P5 varint round-trip) and by the block fixtures in the chainio
// and blockindex tests.
func EncodeCompactSize(v uint64) []byte {
	switch {
	case v < 0xfd:
		return []byte{byte(v)}
	case v <= 0xffff:
		buf := make([]byte, 3)
		buf[0] = 0xfd
		binary.LittleEndian.PutUint16(buf[1:], uint16(v))
		return buf
	case v <= 0xffffffff:
		buf := make([]byte, 5)
		buf[0] = 0xfe
		binary.LittleEndian.PutUint32(buf[1:], uint32(v))
		return buf
	default:
		buf := make([]byte, 9)
		buf[0] = 0xff
		binary.LittleEndian.PutUint64(buf[1:], v)
		return buf
	}
}

// EncodeVarIntB128 is the write-side counterpart of ReadVarIntB128.
func EncodeVarIntB128(v uint64) []byte {
	var tmp [10]byte
	i := len(tmp)
	i--
	tmp[i] = byte(v & 0x7f)
	v >>= 7
	for v != 0 {
		v--
		i--
		tmp[i] = byte(v&0x7f) | 0x80
		v >>= 7
	}
	return append([]byte(nil), tmp[i:]...)
}
