// Package statemachine implements spec.md §3/§4.3: a stateful object
// with current/previous node identifiers and a set of completion
// watchers fanned out to on designated terminal edges.
//
// This is the "capability stack, not a type hierarchy" from spec.md
// §9: rather than an inheritance chain, each layer embeds a
// *StateMachine and implements Watcher, passing edges up to the layer
// above it (the StateMachine's owner).
package statemachine

// Edge is a tagged transition value. Per spec.md §9, the edge space is
// partitioned per layer in blocks of 100 so an edge int is
// self-describing about which layer defined it.
type Edge int

// Edges common to every layer (base 0).
const (
	EdgeNone Edge = iota
)

// NopWatcher is a Watcher that ignores every edge. Use it as the owner
// of a StateMachine when nothing needs first refusal of the object's
// own edges (e.g. a plain data buffer whose only consumers are
// completion watchers registered on it).
type NopWatcher struct{}

func (NopWatcher) OnEdge(Edge, *StateMachine, bool) bool { return true }

// Watcher receives edge notifications. source identifies the
// StateMachine the edge originated from; pre is true for the object's
// own handler invocation and false for fan-out to completion watchers.
type Watcher interface {
	OnEdge(edge Edge, source *StateMachine, pre bool) bool
}

// StateMachine is the spec.md §3 "State machine": current_node,
// previous_node, and an insertion-ordered multiset of completion
// watchers.
type StateMachine struct {
	owner Watcher

	currentNode  int
	previousNode int

	watchers []Watcher
}

// New binds a StateMachine to its owner. The owner is the concrete
// object whose OnEdge implements the object's "own" handler invoked
// first by SendEdge.
func New(owner Watcher) *StateMachine {
	return &StateMachine{owner: owner}
}

// SetState records previous_node := current_node before assigning node
// (spec.md §3 invariant).
func (s *StateMachine) SetState(node int) {
	s.previousNode = s.currentNode
	s.currentNode = node
}

func (s *StateMachine) CurrentNode() int  { return s.currentNode }
func (s *StateMachine) PreviousNode() int { return s.previousNode }

// AddCompletion registers w to be notified on this object's final
// edges. Insertion order is preserved for fan-out.
func (s *StateMachine) AddCompletion(w Watcher) {
	s.watchers = append(s.watchers, w)
}

// RemoveCompletion removes w by identity. A no-op if w is not
// registered.
func (s *StateMachine) RemoveCompletion(w Watcher) {
	for i, x := range s.watchers {
		if x == w {
			s.watchers = append(s.watchers[:i], s.watchers[i+1:]...)
			return
		}
	}
}

// SendEdge runs the owner's own OnEdge(edge, self, pre=true); if
// isFinal, fans out to every completion watcher in insertion order
// with pre=false. The watcher list is snapshotted before dispatch so
// a watcher removing itself during notification is safe (spec.md
// §4.3 "advance the iterator before dispatch").
func (s *StateMachine) SendEdge(edge Edge, isFinal bool) {
	s.owner.OnEdge(edge, s, true)
	if !isFinal {
		return
	}
	snapshot := make([]Watcher, len(s.watchers))
	copy(snapshot, s.watchers)
	for _, w := range snapshot {
		w.OnEdge(edge, s, false)
	}
}

// SendEdgeTo addresses a single peer directly instead of fanning out
// to this object's watcher set (spec.md §4.3 send_edge_to). isFinal is
// carried through for symmetry with SendEdge but, since the
// destination is a single named peer rather than the watcher set,
// there is nothing further to fan out to.
func (s *StateMachine) SendEdgeTo(other Watcher, edge Edge, isFinal bool) {
	other.OnEdge(edge, s, true)
	_ = isFinal
}
