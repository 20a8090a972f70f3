package snmpwire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		Version:       1,
		Type:          TypeOpen,
		Flags:         FlagNonDefaultContext,
		SessionID:     42,
		TransactionID: 7,
		PacketID:      WithRequestTag(3, TypeOpen),
		PayloadLength: 128,
	}
	buf := make([]byte, HeaderLen)
	h.Encode(buf)

	got, err := DecodeHeader(buf)
	require.NoError(t, err)
	require.Equal(t, h, got)
	require.Equal(t, uint8(TypeOpen), RequestTag(got.PacketID))
}

func TestStringRoundTrip(t *testing.T) {
	dst := AppendString(nil, "Tester")
	require.Equal(t, 4+Pad4(6), len(dst))

	s, n, err := DecodeString(dst)
	require.NoError(t, err)
	require.Equal(t, "Tester", s)
	require.Equal(t, len(dst), n)
}

func TestOIDRoundTrip(t *testing.T) {
	subids := []uint32{1, 38693, 1, 3}
	dst := AppendOID(nil, subids, 4, 0)
	require.Equal(t, OIDWireLen(len(subids)), len(dst))

	got, include, n, err := DecodeOID(dst)
	require.NoError(t, err)
	require.Equal(t, subids, got)
	require.Equal(t, uint8(0), include)
	require.Equal(t, len(dst), n)
}

// TestOpenPayloadBytes is spec.md §8 scenario 4's wire-bytes
// expectation for the first packet of a handshake.
func TestOpenPayloadBytes(t *testing.T) {
	payload := AppendSubtreePayload(nil, 0, 0, 0, []uint32{1, 38693, 1, 3}, "Tester")

	require.Equal(t, []byte{0, 0, 0, 0}, payload[0:4])
	require.Equal(t, uint8(4), payload[4]) // n_subids
	require.Equal(t, uint8(4), payload[5]) // prefix_hint

	oidEnd := 4 + OIDWireLen(4)
	name, n, err := DecodeString(payload[oidEnd:])
	require.NoError(t, err)
	require.Equal(t, "Tester", name)
	require.Equal(t, len(payload), oidEnd+n)
	// 2 bytes of "Tester" padding after the 4-byte length + 6-byte body
	require.Equal(t, 0, len(payload)%4)
}

func TestVarBindRoundTrip(t *testing.T) {
	dst := AppendVarBindHeader(nil, VarCounter64, []uint32{1, 3, 6, 1})
	dst = AppendUint64Value(dst, 123456789)

	gotType := uint16(dst[0]) | uint16(dst[1])<<8
	require.Equal(t, uint16(VarCounter64), gotType)

	subids, _, consumed, err := DecodeOID(dst[4:])
	require.NoError(t, err)
	require.Equal(t, []uint32{1, 3, 6, 1}, subids)
	require.Equal(t, uint64(123456789), leUint64(dst[4+consumed:]))
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
