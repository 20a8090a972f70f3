// Package storage is the narrow, polled interface onto the embedded
// key-value storage engine's operational counters (spec.md §6
// "Storage-engine interface (consumed)"), grounded on the original's
// stats_table.{h,cpp}.
package storage

// Source is the two-lookup-shape interface spec.md §6 calls for:
// string-keyed named counters and enumerated ticker ids. Both are
// polled at serialization time; no callback channel is required.
type Source interface {
	GetNamedCounter(name string) (uint64, bool)
	GetTick(id int) (uint64, bool)
}

// StaticSource is a map-backed Source, the in-module stand-in used by
// tests, mirroring how the original's stats_test.cpp exercises
// stats_table against fixed fixture data (SPEC_FULL.md §10).
type StaticSource struct {
	Counters map[string]uint64
	Ticks    map[int]uint64
}

// NewStaticSource returns a StaticSource with empty maps ready to
// populate.
func NewStaticSource() *StaticSource {
	return &StaticSource{Counters: make(map[string]uint64), Ticks: make(map[int]uint64)}
}

func (s *StaticSource) GetNamedCounter(name string) (uint64, bool) {
	v, ok := s.Counters[name]
	return v, ok
}

func (s *StaticSource) GetTick(id int) (uint64, bool) {
	v, ok := s.Ticks[id]
	return v, ok
}

// SetCounter is a test/fixture convenience.
func (s *StaticSource) SetCounter(name string, v uint64) { s.Counters[name] = v }

// SetTick is a test/fixture convenience.
func (s *StaticSource) SetTick(id int, v uint64) { s.Ticks[id] = v }
