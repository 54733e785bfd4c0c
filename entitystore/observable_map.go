package entitystore

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// MapChange is the parent-level diff for one key of an ObservableMap. For
// ActionModify the Previous field is nil on purpose: the per-key container's
// own snapshot holds the real sub-diff.
type MapChange[E Term] struct {
	Previous *ObservableSet[E]
	Action   Action
}

// ObservableMap is a map of key to observable set, used for attributes
// shaped as "a container of grants per group": the key is stored as a plain
// membership triple and each element as an RDF-star annotation on it.
//
// Whole-key insert/replace/delete is recorded at the parent level as
// CREATE/REPLACE/DELETE; an in-place mutation of an existing key's set
// cascades as a single parent-level MODIFY while the per-key set keeps its
// own snapshot, so rendering can distinguish "whole group removed" from
// "two items removed from a still-present group".
type ObservableMap[K Term, E Term] struct {
	elementPredicate QName
	entries          map[K]*ObservableSet[E]
	changeset        map[K]MapChange[E]
	notify           func()
}

// NewObservableMap creates an empty map. elementPredicate is the predicate
// of the per-element RDF-star annotations.
func NewObservableMap[K Term, E Term](elementPredicate QName) *ObservableMap[K, E] {
	return &ObservableMap[K, E]{
		elementPredicate: elementPredicate,
		entries:          make(map[K]*ObservableSet[E]),
		changeset:        make(map[K]MapChange[E]),
	}
}

// SetNotifier installs the owner callback invoked on every mutating call,
// including mutations of the per-key sets.
func (m *ObservableMap[K, E]) SetNotifier(fn func()) {
	m.notify = fn
}

func (m *ObservableMap[K, E]) Len() int {
	return len(m.entries)
}

func (m *ObservableMap[K, E]) IsEmpty() bool {
	return len(m.entries) == 0
}

func (m *ObservableMap[K, E]) Contains(key K) bool {
	_, ok := m.entries[key]
	return ok
}

// Keys returns the keys sorted by their RDF term.
func (m *ObservableMap[K, E]) Keys() []K {
	keys := make([]K, 0, len(m.entries))
	for key := range m.entries {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, func(a, b K) int {
		return strings.Compare(a.RDF(), b.RDF())
	})

	return keys
}

// Get returns the set for a key and fails if the key is absent.
func (m *ObservableMap[K, E]) Get(key K) (*ObservableSet[E], error) {
	set, ok := m.entries[key]
	if !ok {
		return nil, errors.Join(ErrNoSuchKey, fmt.Errorf("key %s is not in the map", key.String()))
	}

	return set, nil
}

// Lookup returns the set for a key, tolerating its absence.
func (m *ObservableMap[K, E]) Lookup(key K) (*ObservableSet[E], bool) {
	set, ok := m.entries[key]
	return set, ok
}

// Set inserts or replaces the whole set for a key.
func (m *ObservableMap[K, E]) Set(key K, elements ...E) {
	previous, exists := m.entries[key]
	if change, open := m.changeset[key]; open {
		switch change.Action {
		case ActionDelete:
			// Deleted earlier this session: the net effect is a replacement
			// of the session-start set.
			m.changeset[key] = MapChange[E]{Previous: change.Previous, Action: ActionReplace}
		case ActionModify:
			// The child holds the sub-diff; roll it back so the record
			// carries the session-start contents as the previous value.
			previous.Undo()
			m.changeset[key] = MapChange[E]{Previous: previous, Action: ActionReplace}
		}
		// A CREATE or REPLACE record stays as recorded.
	} else if exists {
		m.changeset[key] = MapChange[E]{Previous: previous, Action: ActionReplace}
	} else {
		m.changeset[key] = MapChange[E]{Action: ActionCreate}
	}
	m.entries[key] = m.newChild(key, elements...)
	m.notifyOwner()
}

// Seed populates a key at hydration time. Unlike Set it records nothing and
// does not notify the owner; later mutations of the seeded set are tracked
// as usual.
func (m *ObservableMap[K, E]) Seed(key K, elements ...E) {
	m.entries[key] = m.newChild(key, elements...)
}

// Delete removes a key with its whole set and fails if the key is absent.
func (m *ObservableMap[K, E]) Delete(key K) error {
	previous, ok := m.entries[key]
	if !ok {
		return errors.Join(ErrNoSuchKey, fmt.Errorf("can't delete key %s, does not exist", key.String()))
	}
	if change, open := m.changeset[key]; open {
		switch change.Action {
		case ActionCreate:
			// Created and deleted in the same session, nothing to commit.
			delete(m.changeset, key)
		case ActionModify:
			previous.Undo()
			m.changeset[key] = MapChange[E]{Previous: previous, Action: ActionDelete}
		default:
			m.changeset[key] = MapChange[E]{Previous: change.Previous, Action: ActionDelete}
		}
	} else {
		m.changeset[key] = MapChange[E]{Previous: previous, Action: ActionDelete}
	}
	delete(m.entries, key)
	m.notifyOwner()

	return nil
}

// Changeset returns a copy of the parent-level per-key diff records.
func (m *ObservableMap[K, E]) Changeset() map[K]MapChange[E] {
	out := make(map[K]MapChange[E], len(m.changeset))
	for key, change := range m.changeset {
		out[key] = change
	}

	return out
}

// ClearChangeset drains the parent-level records and the per-key snapshots
// after a confirmed commit.
func (m *ObservableMap[K, E]) ClearChangeset() {
	for _, set := range m.entries {
		set.ClearChangeset()
	}
	clear(m.changeset)
}

func (m *ObservableMap[K, E]) newChild(key K, elements ...E) *ObservableSet[E] {
	child := NewObservableSet[E](elements...)
	child.SetNotifier(func() {
		m.onChildChanged(key)
	})

	return child
}

func (m *ObservableMap[K, E]) onChildChanged(key K) {
	m.recordIfAbsent(key, nil, ActionModify)
	m.notifyOwner()
}

func (m *ObservableMap[K, E]) recordIfAbsent(key K, previous *ObservableSet[E], action Action) {
	if _, exists := m.changeset[key]; exists {
		return
	}
	m.changeset[key] = MapChange[E]{Previous: previous, Action: action}
}

func (m *ObservableMap[K, E]) notifyOwner() {
	if m.notify != nil {
		m.notify()
	}
}

/***** Value implementation *****/

// Equal is pairwise key-set equality plus, per shared key,
// order-independent content equality.
func (m *ObservableMap[K, E]) Equal(other Value) bool {
	o, ok := other.(*ObservableMap[K, E])
	if !ok || len(m.entries) != len(o.entries) {
		return false
	}
	for key, set := range m.entries {
		otherSet, found := o.entries[key]
		if !found || !set.Equal(otherSet) {
			return false
		}
	}

	return true
}

func (m *ObservableMap[K, E]) RDF() string {
	parts := make([]string, 0, len(m.entries))
	for _, key := range m.Keys() {
		parts = append(parts, fmt.Sprintf("%s: %s", key.RDF(), m.entries[key].RDF()))
	}

	return strings.Join(parts, "; ")
}

func (m *ObservableMap[K, E]) Native() any {
	out := make(map[string]any, len(m.entries))
	for key, set := range m.entries {
		out[key.String()] = set.Native()
	}

	return out
}

func (m *ObservableMap[K, E]) String() string {
	return m.RDF()
}

/***** rendering support *****/

// TripleLines renders the membership triple of every key plus one RDF-star
// annotation per element, for whole-record inserts.
func (m *ObservableMap[K, E]) TripleLines(addr Address) []string {
	var lines []string
	for _, key := range m.Keys() {
		lines = append(lines, m.keyLines(addr, key, m.entries[key], true)...)
	}

	return lines
}

// MapStatements renders the update statements for this attribute given the
// parent action recorded on the entity changeset. For ActionModify it
// consults its own per-key changeset and the per-key snapshots.
func (m *ObservableMap[K, E]) MapStatements(addr Address, action Action, prev Value) []string {
	switch action {
	case ActionCreate:
		return wrapDataBlocks(addr.Graph, nil, m.TripleLines(addr))

	case ActionDelete:
		old, ok := prev.(*ObservableMap[K, E])
		if !ok {
			return nil
		}
		return wrapDataBlocks(addr.Graph, old.TripleLines(addr), nil)

	case ActionReplace:
		var deleteLines []string
		if old, ok := prev.(*ObservableMap[K, E]); ok {
			deleteLines = old.TripleLines(addr)
		}
		return wrapDataBlocks(addr.Graph, deleteLines, m.TripleLines(addr))

	case ActionModify:
		return m.modifyStatements(addr)

	default:
		return nil
	}
}

func (m *ObservableMap[K, E]) modifyStatements(addr Address) []string {
	var insertLines, deleteLines []string

	keys := make([]K, 0, len(m.changeset))
	for key := range m.changeset {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, func(a, b K) int {
		return strings.Compare(a.RDF(), b.RDF())
	})

	for _, key := range keys {
		change := m.changeset[key]
		switch change.Action {
		case ActionCreate:
			insertLines = append(insertLines, m.keyLines(addr, key, m.entries[key], true)...)

		case ActionDelete:
			deleteLines = append(deleteLines, m.keyLines(addr, key, change.Previous, true)...)

		case ActionReplace:
			deleteLines = append(deleteLines, m.keyLines(addr, key, change.Previous, false)...)
			insertLines = append(insertLines, m.keyLines(addr, key, m.entries[key], false)...)

		case ActionModify:
			child, ok := m.entries[key]
			if !ok {
				continue
			}
			added, removed := child.DiffTermsRDF()
			for _, term := range added {
				insertLines = append(insertLines, m.annotationLine(addr, key, term))
			}
			for _, term := range removed {
				deleteLines = append(deleteLines, m.annotationLine(addr, key, term))
			}
		}
	}

	return wrapDataBlocks(addr.Graph, deleteLines, insertLines)
}

// keyLines renders the RDF-star annotations of one key, optionally together
// with its membership triple.
func (m *ObservableMap[K, E]) keyLines(addr Address, key K, set *ObservableSet[E], withMembership bool) []string {
	var lines []string
	if withMembership {
		lines = append(lines, fmt.Sprintf("%s %s %s .", addr.Subject.RDF(), addr.Predicate, key.RDF()))
	}
	if set != nil {
		for _, term := range set.TermsRDF() {
			lines = append(lines, m.annotationLine(addr, key, term))
		}
	}

	return lines
}

func (m *ObservableMap[K, E]) annotationLine(addr Address, key K, elementTerm string) string {
	return fmt.Sprintf("<<%s %s %s>> %s %s .",
		addr.Subject.RDF(), addr.Predicate, key.RDF(), m.elementPredicate, elementTerm)
}

// wrapDataBlocks turns raw triple lines into DELETE DATA / INSERT DATA
// statements, deletions first.
func wrapDataBlocks(graph QName, deleteLines, insertLines []string) []string {
	var statements []string
	if len(deleteLines) > 0 {
		statements = append(statements, dataBlock("DELETE DATA", graph, deleteLines))
	}
	if len(insertLines) > 0 {
		statements = append(statements, dataBlock("INSERT DATA", graph, insertLines))
	}

	return statements
}

func dataBlock(keyword string, graph QName, lines []string) string {
	var sb strings.Builder
	sb.WriteString(keyword)
	sb.WriteString(" {\n")
	sb.WriteString("    GRAPH ")
	sb.WriteString(string(graph))
	sb.WriteString(" {\n")
	for _, line := range lines {
		sb.WriteString("        ")
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	sb.WriteString("    }\n")
	sb.WriteString("}")

	return sb.String()
}
