package hyperlane

import (
	"encoding/binary"

	"golang.org/x/crypto/sha3"
)

// MessageID hashes the message with keccak-256 over its big-endian packing in
// field order:
//
//	version:1 nonce:4 origin:4 sender:32 destination:4 recipient:32 count:2
//	then every update in order.
//
// Validators sign the same id, so the packing must not change.
func MessageID(m DispatchMessage) U256 {
	var id U256
	h := sha3.NewLegacyKeccak256()
	h.Write(PackMessage(m))
	h.Sum(id[:0])
	return id
}

// PackMessage returns the preimage of MessageID.
func PackMessage(m DispatchMessage) []byte {
	b := make([]byte, 0, 79+len(m.Body.Updates)*(SpotMedianUpdateSize+3))
	b = append(b, m.Header.Version)
	b = binary.BigEndian.AppendUint32(b, m.Header.Nonce)
	b = binary.BigEndian.AppendUint32(b, m.Header.Origin)
	b = append(b, m.Header.Sender[:]...)
	b = binary.BigEndian.AppendUint32(b, m.Header.Destination)
	b = append(b, m.Header.Recipient[:]...)
	b = binary.BigEndian.AppendUint16(b, m.Body.Count)
	for _, u := range m.Body.Updates {
		b = u.appendMessage(b)
	}
	return b
}

func keccak256(data ...[]byte) [32]byte {
	var out [32]byte
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	h.Sum(out[:0])
	return out
}
