// Package dataencryption provides per-user envelope encryption of opaque
// string values and the MSEH envelope format used for ciphertext.
//
// Wire format:
//
//	[4 bytes: 0x4D 0x53 0x45 0x48]  "MSEH" magic
//	[varint: header byte length]
//	[header fields, protobuf wire encoding]
//	[ciphertext bytes]
//
// Header fields: 1 version (varint), 2 provider id (bytes), 3 nonce (bytes),
// 4 key version (varint).
package dataencryption

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

var magic = [4]byte{0x4D, 0x53, 0x45, 0x48} // "MSEH"

const (
	fieldVersion    protowire.Number = 1
	fieldProviderID protowire.Number = 2
	fieldNonce      protowire.Number = 3
	fieldKeyVersion protowire.Number = 4
)

// A header larger than this is rejected before allocation. Legitimate
// headers are under 64 bytes.
const maxHeaderLen = 4096

// Header is the decoded MSEH envelope header.
type Header struct {
	Version    uint32
	ProviderID string
	Nonce      []byte
	KeyVersion uint32
}

// HasMagic reports whether b starts with the MSEH magic bytes.
func HasMagic(b []byte) bool {
	return len(b) >= 4 &&
		b[0] == magic[0] && b[1] == magic[1] && b[2] == magic[2] && b[3] == magic[3]
}

func encodeHeader(h Header) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(h.Version))
	b = protowire.AppendTag(b, fieldProviderID, protowire.BytesType)
	b = protowire.AppendString(b, h.ProviderID)
	b = protowire.AppendTag(b, fieldNonce, protowire.BytesType)
	b = protowire.AppendBytes(b, h.Nonce)
	if h.KeyVersion != 0 {
		b = protowire.AppendTag(b, fieldKeyVersion, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(h.KeyVersion))
	}
	return b
}

func decodeHeader(b []byte) (*Header, error) {
	h := &Header{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("mseh: decoding header: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == fieldVersion && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return nil, fmt.Errorf("mseh: decoding version: %w", protowire.ParseError(m))
			}
			h.Version = uint32(v)
			n = m
		case num == fieldProviderID && typ == protowire.BytesType:
			v, m := protowire.ConsumeString(b)
			if m < 0 {
				return nil, fmt.Errorf("mseh: decoding provider id: %w", protowire.ParseError(m))
			}
			h.ProviderID = v
			n = m
		case num == fieldNonce && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return nil, fmt.Errorf("mseh: decoding nonce: %w", protowire.ParseError(m))
			}
			h.Nonce = append([]byte(nil), v...)
			n = m
		case num == fieldKeyVersion && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return nil, fmt.Errorf("mseh: decoding key version: %w", protowire.ParseError(m))
			}
			h.KeyVersion = uint32(v)
			n = m
		default:
			// Unknown fields are skipped for forward compatibility.
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("mseh: skipping field %d: %w", num, protowire.ParseError(n))
			}
		}
		b = b[n:]
	}
	return h, nil
}

// Seal prefixes payload with the MSEH magic and the encoded header.
func Seal(h Header, payload []byte) []byte {
	hdr := encodeHeader(h)
	out := make([]byte, 0, 4+protowire.SizeVarint(uint64(len(hdr)))+len(hdr)+len(payload))
	out = append(out, magic[:]...)
	out = protowire.AppendVarint(out, uint64(len(hdr)))
	out = append(out, hdr...)
	return append(out, payload...)
}

// Open splits an MSEH envelope into its header and payload. ok is false when
// the magic is absent; err is set when the magic is present but the header is malformed.
func Open(b []byte) (h *Header, payload []byte, ok bool, err error) {
	if !HasMagic(b) {
		return nil, nil, false, nil
	}
	rest := b[4:]
	hdrLen, n := protowire.ConsumeVarint(rest)
	if n < 0 {
		return nil, nil, true, fmt.Errorf("mseh: reading header length: %w", protowire.ParseError(n))
	}
	if hdrLen > maxHeaderLen {
		return nil, nil, true, fmt.Errorf("mseh: header length %d exceeds maximum %d", hdrLen, maxHeaderLen)
	}
	rest = rest[n:]
	if uint64(len(rest)) < hdrLen {
		return nil, nil, true, fmt.Errorf("mseh: truncated header")
	}
	h, err = decodeHeader(rest[:hdrLen])
	if err != nil {
		return nil, nil, true, err
	}
	return h, rest[hdrLen:], true, nil
}
