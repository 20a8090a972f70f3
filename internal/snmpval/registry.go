package snmpval

import (
	"sort"
	"sync"

	"github.com/stardog-union/rocksnmp/internal/rlog"
)

// Registry is spec.md §3/§4.7's ordered OID value set: `register`
// inserts, `lookup` performs Get/GetNext. The subagent engine is the
// only mutator during steady state (spec.md §4.7 "Registration API");
// the mutex here guards against a host application registering values
// from outside the reactor goroutine at startup, before the reactor is
// running.
type Registry struct {
	mu     sync.RWMutex
	values []Value // kept sorted by OID
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry { return &Registry{} }

// Register inserts v. Returns false if v's OID is already present (a
// duplicate-OID registry error, spec.md §7.4): the first-registered
// value wins and v is discarded.
func (r *Registry) Register(v Value) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := sort.Search(len(r.values), func(i int) bool { return !r.values[i].OID().Less(v.OID()) })
	if i < len(r.values) && r.values[i].OID().Equal(v.OID()) {
		rlog.Warn("snmpval: duplicate OID registration rejected", "oid", v.OID().String())
		return false
	}
	r.values = append(r.values, nil)
	copy(r.values[i+1:], r.values[i:])
	r.values[i] = v
	return true
}

// Get returns the value at exactly oid, if present.
func (r *Registry) Get(oid OID) (Value, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lookupSorted(r.values, oid, false)
}

// GetNext returns the strictly-least value whose OID is greater than
// oid under lexicographic order (spec.md §8's GetNext invariant: the
// unique b with a < b and no c strictly between, or none).
func (r *Registry) GetNext(oid OID) (Value, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lookupSorted(r.values, oid, true)
}

// lookupSorted implements Get/GetNext's binary search against an
// already-sorted slice of values, shared by Registry's own locked
// methods and by LookupSnapshot's already-extracted copy.
func lookupSorted(values []Value, oid OID, getNext bool) (Value, bool) {
	if getNext {
		i := sort.Search(len(values), func(i int) bool { return oid.Less(values[i].OID()) })
		if i < len(values) {
			return values[i], true
		}
		return nil, false
	}
	i := sort.Search(len(values), func(i int) bool { return !values[i].OID().Less(oid) })
	if i < len(values) && values[i].OID().Equal(oid) {
		return values[i], true
	}
	return nil, false
}

// Lookup implements spec.md §4.7's `lookup(start, end, get_next)`: for
// Get, an exact match at start; for GetNext, the strict upper bound.
// end is accepted for signature symmetry with the wire range
// descriptor but unused, since this module answers one OID at a time
// (the range's "end" only matters for bulk walks, which are out of
// scope per spec.md §1's Non-goals on notifications/bulk operations).
func (r *Registry) Lookup(start OID, end OID, getNext bool) (Value, bool) {
	if getNext {
		return r.GetNext(start)
	}
	return r.Get(start)
}

// Snapshot returns the values currently registered, in OID order. The
// subagent engine calls this once per request so a value registered
// mid-dispatch does not affect an answer already in flight (spec.md
// §4.7 "the answer uses the snapshot at dispatch time").
func (r *Registry) Snapshot() []Value {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Value, len(r.values))
	copy(out, r.values)
	return out
}

// LookupSnapshot implements Lookup's Get/GetNext logic against an
// already-taken Snapshot rather than the live registry, so a whole
// request's worth of bindings is answered against one consistent view
// (spec.md §4.7 "the answer uses the snapshot at dispatch time").
func LookupSnapshot(snap []Value, start OID, end OID, getNext bool) (Value, bool) {
	return lookupSorted(snap, start, getNext)
}
