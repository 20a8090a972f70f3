package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStaticSourceCounters(t *testing.T) {
	s := NewStaticSource()

	_, ok := s.GetNamedCounter("bytes_in")
	require.False(t, ok)

	s.SetCounter("bytes_in", 128)
	v, ok := s.GetNamedCounter("bytes_in")
	require.True(t, ok)
	require.Equal(t, uint64(128), v)

	s.SetCounter("bytes_in", 256)
	v, ok = s.GetNamedCounter("bytes_in")
	require.True(t, ok)
	require.Equal(t, uint64(256), v)
}

func TestStaticSourceTicks(t *testing.T) {
	s := NewStaticSource()

	_, ok := s.GetTick(3)
	require.False(t, ok)

	s.SetTick(3, 42)
	v, ok := s.GetTick(3)
	require.True(t, ok)
	require.Equal(t, uint64(42), v)
}

func TestStaticSourceDistinctNamespaces(t *testing.T) {
	s := NewStaticSource()
	s.SetCounter("1", 10)
	s.SetTick(1, 20)

	c, ok := s.GetNamedCounter("1")
	require.True(t, ok)
	require.Equal(t, uint64(10), c)

	tk, ok := s.GetTick(1)
	require.True(t, ok)
	require.Equal(t, uint64(20), tk)
}
