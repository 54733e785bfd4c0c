package entitystore

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Notifiable is implemented by composite values that report in-place
// mutations to their owner. The owner passes a non-owning callback; the
// container never holds a reference back to the owner itself.
type Notifiable interface {
	SetNotifier(fn func())
}

// ObservableSet is a mutable set that remembers its pre-mutation contents.
// The first mutating call of an edit session captures a snapshot; every
// mutating call notifies the owner. Diff always compares against that first
// snapshot, so any number of in-session mutations diff against the
// originally loaded contents.
type ObservableSet[T Term] struct {
	items    map[T]struct{}
	snapshot map[T]struct{} // nil while unmodified
	notify   func()
}

func NewObservableSet[T Term](items ...T) *ObservableSet[T] {
	s := &ObservableSet[T]{items: make(map[T]struct{}, len(items))}
	for _, item := range items {
		s.items[item] = struct{}{}
	}

	return s
}

// SetNotifier installs the owner callback invoked on every mutating call.
func (s *ObservableSet[T]) SetNotifier(fn func()) {
	s.notify = fn
}

func (s *ObservableSet[T]) Len() int {
	return len(s.items)
}

func (s *ObservableSet[T]) IsEmpty() bool {
	return len(s.items) == 0
}

func (s *ObservableSet[T]) Contains(item T) bool {
	_, ok := s.items[item]
	return ok
}

// Values returns the elements sorted by their RDF term, so iteration and
// rendering are deterministic.
func (s *ObservableSet[T]) Values() []T {
	return sortedTerms(s.items)
}

// Modified reports whether a snapshot has been captured this session.
func (s *ObservableSet[T]) Modified() bool {
	return s.snapshot != nil
}

/***** mutating operations *****/

// Add inserts an item.
func (s *ObservableSet[T]) Add(item T) {
	s.beginMutation()
	s.items[item] = struct{}{}
	s.notifyOwner()
}

// Remove removes an item and fails if it is absent.
func (s *ObservableSet[T]) Remove(item T) error {
	if _, ok := s.items[item]; !ok {
		return errors.Join(ErrNotFound, fmt.Errorf("item %s is not in the set", item.String()))
	}
	s.beginMutation()
	delete(s.items, item)
	s.notifyOwner()

	return nil
}

// Discard removes an item, tolerating its absence.
func (s *ObservableSet[T]) Discard(item T) {
	s.beginMutation()
	delete(s.items, item)
	s.notifyOwner()
}

// Clear removes all items.
func (s *ObservableSet[T]) Clear() {
	s.beginMutation()
	clear(s.items)
	s.notifyOwner()
}

// Replace swaps the whole contents.
func (s *ObservableSet[T]) Replace(items ...T) {
	s.beginMutation()
	clear(s.items)
	for _, item := range items {
		s.items[item] = struct{}{}
	}
	s.notifyOwner()
}

// UnionWith adds all items of other in place.
func (s *ObservableSet[T]) UnionWith(other *ObservableSet[T]) {
	s.beginMutation()
	for item := range other.items {
		s.items[item] = struct{}{}
	}
	s.notifyOwner()
}

// IntersectWith keeps only the items also present in other.
func (s *ObservableSet[T]) IntersectWith(other *ObservableSet[T]) {
	s.beginMutation()
	for item := range s.items {
		if _, ok := other.items[item]; !ok {
			delete(s.items, item)
		}
	}
	s.notifyOwner()
}

// DifferenceWith removes all items present in other.
func (s *ObservableSet[T]) DifferenceWith(other *ObservableSet[T]) {
	s.beginMutation()
	for item := range other.items {
		delete(s.items, item)
	}
	s.notifyOwner()
}

/***** detached set algebra (no snapshot, no notification) *****/

// Union returns a detached set holding the union.
func (s *ObservableSet[T]) Union(other *ObservableSet[T]) *ObservableSet[T] {
	out := NewObservableSet[T]()
	for item := range s.items {
		out.items[item] = struct{}{}
	}
	for item := range other.items {
		out.items[item] = struct{}{}
	}

	return out
}

// Intersect returns a detached set holding the intersection.
func (s *ObservableSet[T]) Intersect(other *ObservableSet[T]) *ObservableSet[T] {
	out := NewObservableSet[T]()
	for item := range s.items {
		if _, ok := other.items[item]; ok {
			out.items[item] = struct{}{}
		}
	}

	return out
}

// Difference returns a detached set holding s minus other.
func (s *ObservableSet[T]) Difference(other *ObservableSet[T]) *ObservableSet[T] {
	out := NewObservableSet[T]()
	for item := range s.items {
		if _, ok := other.items[item]; !ok {
			out.items[item] = struct{}{}
		}
	}

	return out
}

// Clone returns a detached copy without notifier or snapshot.
func (s *ObservableSet[T]) Clone() *ObservableSet[T] {
	out := NewObservableSet[T]()
	for item := range s.items {
		out.items[item] = struct{}{}
	}

	return out
}

/***** snapshot handling *****/

// Undo restores the contents from the snapshot and discards it.
func (s *ObservableSet[T]) Undo() {
	if s.snapshot == nil {
		return
	}
	s.items = s.snapshot
	s.snapshot = nil
}

// Diff returns additions (current minus snapshot) and removals (snapshot
// minus current). Without a snapshot all current items count as additions.
func (s *ObservableSet[T]) Diff() (added []T, removed []T) {
	if s.snapshot == nil {
		return sortedTerms(s.items), nil
	}

	addedSet := make(map[T]struct{})
	removedSet := make(map[T]struct{})
	for item := range s.items {
		if _, ok := s.snapshot[item]; !ok {
			addedSet[item] = struct{}{}
		}
	}
	for item := range s.snapshot {
		if _, ok := s.items[item]; !ok {
			removedSet[item] = struct{}{}
		}
	}

	return sortedTerms(addedSet), sortedTerms(removedSet)
}

// ClearChangeset discards the snapshot after a confirmed commit.
func (s *ObservableSet[T]) ClearChangeset() {
	s.snapshot = nil
}

func (s *ObservableSet[T]) beginMutation() {
	if s.snapshot != nil {
		return
	}
	s.snapshot = make(map[T]struct{}, len(s.items))
	for item := range s.items {
		s.snapshot[item] = struct{}{}
	}
}

func (s *ObservableSet[T]) notifyOwner() {
	if s.notify != nil {
		s.notify()
	}
}

/***** Value implementation *****/

func (s *ObservableSet[T]) Equal(other Value) bool {
	o, ok := other.(*ObservableSet[T])
	if !ok || len(s.items) != len(o.items) {
		return false
	}
	for item := range s.items {
		if _, found := o.items[item]; !found {
			return false
		}
	}

	return true
}

func (s *ObservableSet[T]) RDF() string {
	return strings.Join(s.TermsRDF(), ", ")
}

func (s *ObservableSet[T]) Native() any {
	values := s.Values()
	out := make([]any, 0, len(values))
	for _, v := range values {
		out = append(out, v.Native())
	}

	return out
}

func (s *ObservableSet[T]) String() string {
	values := s.Values()
	parts := make([]string, 0, len(values))
	for _, v := range values {
		parts = append(parts, v.String())
	}

	return "{" + strings.Join(parts, ", ") + "}"
}

/***** rendering support *****/

// TermsRDF returns the current elements as sorted RDF terms.
func (s *ObservableSet[T]) TermsRDF() []string {
	return termsRDF(s.Values())
}

// SnapshotTermsRDF returns the pre-session elements as sorted RDF terms, or
// the current ones while unmodified.
func (s *ObservableSet[T]) SnapshotTermsRDF() []string {
	if s.snapshot == nil {
		return s.TermsRDF()
	}

	return termsRDF(sortedTerms(s.snapshot))
}

// DiffTermsRDF returns the Diff as sorted RDF terms.
func (s *ObservableSet[T]) DiffTermsRDF() (added []string, removed []string) {
	a, r := s.Diff()
	return termsRDF(a), termsRDF(r)
}

// TripleLines renders one triple per element for whole-record inserts.
func (s *ObservableSet[T]) TripleLines(addr Address) []string {
	terms := s.TermsRDF()
	lines := make([]string, 0, len(terms))
	for _, term := range terms {
		lines = append(lines, fmt.Sprintf("%s %s %s .", addr.Subject.RDF(), addr.Predicate, term))
	}

	return lines
}

func sortedTerms[T Term](items map[T]struct{}) []T {
	out := make([]T, 0, len(items))
	for item := range items {
		out = append(out, item)
	}
	slices.SortFunc(out, func(a, b T) int {
		return strings.Compare(a.RDF(), b.RDF())
	})

	return out
}

func termsRDF[T Term](values []T) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, v.RDF())
	}

	return out
}
