package snmpval

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestGetNextAtEdge is spec.md §8 scenario 5: GetNext from the first
// registered OID finds the second one, and GetNext from the last
// registered OID finds nothing.
func TestGetNextAtEdge(t *testing.T) {
	reg := NewRegistry()
	oidA := OID{1, 3, 6, 1, 4, 1, 38693, 5, 1, 1}
	oidB := OID{1, 3, 6, 1, 4, 1, 38693, 5, 1, 2}
	require.True(t, reg.Register(NewCounter64(oidA, 7)))
	require.True(t, reg.Register(NewOctetString(oidB, "x")))

	v, ok := reg.Lookup(oidA, OID{}, true)
	require.True(t, ok)
	s, isString := v.(*OctetString)
	require.True(t, isString)
	require.Equal(t, "x", s.Value())
	require.True(t, v.OID().Equal(oidB))

	_, ok = reg.Lookup(oidB, OID{}, true)
	require.False(t, ok)
}

func TestGetExactMiss(t *testing.T) {
	reg := NewRegistry()
	oid := OID{1, 2, 3}
	_, ok := reg.Lookup(oid, OID{}, false)
	require.False(t, ok)
}

func TestRegisterDuplicateRejected(t *testing.T) {
	reg := NewRegistry()
	oid := OID{1, 2, 3}
	require.True(t, reg.Register(NewInteger(oid, 1)))
	require.False(t, reg.Register(NewInteger(oid, 2)))

	v, ok := reg.Get(oid)
	require.True(t, ok)
	require.Equal(t, int32(1), v.(*Integer).Value())
}

func TestTableRegistersOneValuePerColumn(t *testing.T) {
	reg := NewRegistry()
	tbl := NewTable(reg, OID{1, 3, 6, 1, 4, 1, 38693, 9}, []uint32{1, 2})
	tbl.RegisterRow(1, func(col uint32, oid OID) Value {
		return NewCounter32(oid, uint32(col)*10)
	})

	v, ok := reg.Get(OID{1, 3, 6, 1, 4, 1, 38693, 9, 1, 1})
	require.True(t, ok)
	require.Equal(t, uint32(10), v.(*Counter32).Value())

	v, ok = reg.Get(OID{1, 3, 6, 1, 4, 1, 38693, 9, 2, 1})
	require.True(t, ok)
	require.Equal(t, uint32(20), v.(*Counter32).Value())
}
