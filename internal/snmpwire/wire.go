// Package snmpwire implements the binary wire codec described in
// spec.md §3 ("Framed packet (wire)") and §6 ("Subagent wire
// protocol"): the 20-byte frame header, length-prefixed strings, OID
// wire form, and typed variable bindings. All integers are
// little-endian; every frame and every string pads to a 4-byte
// boundary.
package snmpwire

import (
	"encoding/binary"

	"github.com/stardog-union/rocksnmp/internal/rerr"
)

// Packet type codes (spec.md §6).
const (
	TypeOpen     = 1
	TypeClose    = 2
	TypeRegister = 3
	TypeGet      = 5
	TypeGetNext  = 6
	TypeResponse = 18
)

// Error codes (spec.md §6).
const (
	ErrNone               = 0
	ErrUnsupportedContext = 0x106
)

// Variable types (spec.md §6).
const (
	VarInteger      = 2
	VarOctetString  = 4
	VarCounter32    = 65
	VarGauge32      = 66
	VarCounter64    = 70
	VarNoSuchObject = 128
	VarEndOfMibView = 130
)

// FlagNonDefaultContext is bit 3 of the header flags byte: "non
// default context", answered with ErrUnsupportedContext (spec.md §6).
const FlagNonDefaultContext = 1 << 3

// HeaderLen is the fixed 20-byte frame header size (spec.md §3).
const HeaderLen = 20

// Header is the spec.md §3 20-byte frame header.
type Header struct {
	Version       uint8
	Type          uint8
	Flags         uint8
	Reserved      uint8
	SessionID     uint32
	TransactionID uint32
	PacketID      uint32
	PayloadLength uint32
}

// Encode writes h into the first HeaderLen bytes of dst, which must be
// at least that long.
func (h Header) Encode(dst []byte) {
	dst[0] = h.Version
	dst[1] = h.Type
	dst[2] = h.Flags
	dst[3] = h.Reserved
	binary.LittleEndian.PutUint32(dst[4:8], h.SessionID)
	binary.LittleEndian.PutUint32(dst[8:12], h.TransactionID)
	binary.LittleEndian.PutUint32(dst[12:16], h.PacketID)
	binary.LittleEndian.PutUint32(dst[16:20], h.PayloadLength)
}

// DecodeHeader parses a HeaderLen-byte slice.
func DecodeHeader(src []byte) (Header, error) {
	if len(src) < HeaderLen {
		return Header{}, rerr.New(rerr.Protocol, "DecodeHeader", "short header", nil)
	}
	return Header{
		Version:       src[0],
		Type:          src[1],
		Flags:         src[2],
		Reserved:      src[3],
		SessionID:     binary.LittleEndian.Uint32(src[4:8]),
		TransactionID: binary.LittleEndian.Uint32(src[8:12]),
		PacketID:      binary.LittleEndian.Uint32(src[12:16]),
		PayloadLength: binary.LittleEndian.Uint32(src[16:20]),
	}, nil
}

// RequestTag and WithRequestTag pack/unpack the repurposed top byte of
// packet_id the subagent uses to demultiplex Response packets against
// the request that provoked them (spec.md §4.7 "Response dispatch").
func RequestTag(packetID uint32) uint8 { return uint8(packetID >> 24) }

func WithRequestTag(low uint32, tag uint8) uint32 {
	return (low & 0x00FFFFFF) | (uint32(tag) << 24)
}

// Pad4 returns n rounded up to the next multiple of 4.
func Pad4(n int) int { return (n + 3) &^ 3 }

// AppendPadding appends the 0–3 zero bytes needed to 4-byte-align dst.
func AppendPadding(dst []byte) []byte {
	for len(dst)%4 != 0 {
		dst = append(dst, 0)
	}
	return dst
}

// AppendString appends a length-prefixed, zero-padded string (spec.md
// §3 "Strings are length-prefixed u32 followed by bytes followed by
// 0–3 zero pad bytes").
func AppendString(dst []byte, s string) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
	dst = append(dst, lenBuf[:]...)
	dst = append(dst, s...)
	return AppendPadding(dst)
}

// DecodeString reads a length-prefixed, zero-padded string starting at
// src[0] and returns the string and the number of bytes consumed
// (including padding).
func DecodeString(src []byte) (string, int, error) {
	if len(src) < 4 {
		return "", 0, rerr.New(rerr.Protocol, "DecodeString", "short length prefix", nil)
	}
	n := int(binary.LittleEndian.Uint32(src[0:4]))
	total := 4 + Pad4(n)
	if len(src) < total {
		return "", 0, rerr.New(rerr.Protocol, "DecodeString", "short string body", nil)
	}
	return string(src[4 : 4+n]), total, nil
}

// AppendOID appends the 4-byte OID descriptor (n_subids, prefix_hint,
// include, reserved) followed by n_subids little-endian u32
// sub-identifiers (spec.md §6 "OID wire form").
func AppendOID(dst []byte, subids []uint32, prefixHint uint8, include uint8) []byte {
	dst = append(dst, uint8(len(subids)), prefixHint, include, 0)
	var buf [4]byte
	for _, s := range subids {
		binary.LittleEndian.PutUint32(buf[:], s)
		dst = append(dst, buf[:]...)
	}
	return dst
}

// OIDWireLen is the wire length of an OID with n sub-identifiers.
func OIDWireLen(n int) int { return 4 + 4*n }

// DecodeOID reads an OID descriptor plus its sub-identifiers starting
// at src[0] and returns the sub-identifiers, the include bit, and the
// number of bytes consumed.
func DecodeOID(src []byte) (subids []uint32, include uint8, consumed int, err error) {
	if len(src) < 4 {
		return nil, 0, 0, rerr.New(rerr.Protocol, "DecodeOID", "short OID descriptor", nil)
	}
	n := int(src[0])
	include = src[2]
	total := 4 + 4*n
	if len(src) < total {
		return nil, 0, 0, rerr.New(rerr.Protocol, "DecodeOID", "short OID body", nil)
	}
	subids = make([]uint32, n)
	for i := 0; i < n; i++ {
		subids[i] = binary.LittleEndian.Uint32(src[4+4*i : 8+4*i])
	}
	return subids, include, total, nil
}

// AppendVarBindHeader appends the (type, reserved, OID) prefix shared
// by every variable binding (spec.md §6 "Variable binding").
func AppendVarBindHeader(dst []byte, varType uint16, subids []uint32) []byte {
	var tbuf [4]byte
	binary.LittleEndian.PutUint16(tbuf[0:2], varType)
	binary.LittleEndian.PutUint16(tbuf[2:4], 0)
	dst = append(dst, tbuf[:]...)
	return AppendOID(dst, subids, 0, 0)
}

// AppendUint32Value appends a u32-valued binding body (Integer,
// Counter32, Gauge32).
func AppendUint32Value(dst []byte, v uint32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return append(dst, buf[:]...)
}

// AppendUint64Value appends a u64-valued binding body (Counter64).
func AppendUint64Value(dst []byte, v uint64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return append(dst, buf[:]...)
}

// AppendOctetStringValue appends a length-prefixed, zero-padded string
// binding body.
func AppendOctetStringValue(dst []byte, s []byte) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
	dst = append(dst, lenBuf[:]...)
	dst = append(dst, s...)
	return AppendPadding(dst)
}

// AppendResponseHeader appends the (error, index) pair every Response
// payload leads with (spec.md §4.7 "Any Error != 0 in the response
// body is logged").
func AppendResponseHeader(dst []byte, errCode uint16, index uint16) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint16(buf[0:2], errCode)
	binary.LittleEndian.PutUint16(buf[2:4], index)
	return append(dst, buf[:]...)
}

// DecodeResponseHeader parses the leading (error, index) pair of a
// Response payload and returns the remaining bytes (the variable
// bindings, if any).
func DecodeResponseHeader(payload []byte) (errCode uint16, index uint16, rest []byte, err error) {
	if len(payload) < 4 {
		return 0, 0, nil, rerr.New(rerr.Protocol, "DecodeResponseHeader", "short response payload", nil)
	}
	errCode = binary.LittleEndian.Uint16(payload[0:2])
	index = binary.LittleEndian.Uint16(payload[2:4])
	return errCode, index, payload[4:], nil
}

// AppendSubtreePayload builds the payload shared by Open and Register
// packets: timeout/priority/range-subid (each a byte, padded to a
// 4-byte block) followed by the agent's OID prefix and, for Open
// only, the agent's descriptive name (spec.md §4.7 "Connection").
func AppendSubtreePayload(dst []byte, timeout, priority, rangeSubid uint8, prefix []uint32, name string) []byte {
	dst = append(dst, timeout, priority, rangeSubid, 0)
	dst = AppendOID(dst, prefix, uint8(len(prefix)), 0)
	if name != "" {
		dst = AppendString(dst, name)
	}
	return dst
}
