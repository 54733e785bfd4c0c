package entitystore

import (
	"slices"
)

// Action describes how an attribute changed since the entity was loaded.
type Action int

const (
	// ActionCreate records an attribute that had no value before.
	ActionCreate Action = iota

	// ActionReplace records a whole-value replacement.
	ActionReplace

	// ActionDelete records the removal of a value.
	ActionDelete

	// ActionModify records an in-place mutation of a composite value; the
	// container's own snapshot holds the sub-diff, the parent-level previous
	// value carries no meaning.
	ActionModify
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionReplace:
		return "replace"
	case ActionDelete:
		return "delete"
	case ActionModify:
		return "modify"
	default:
		return "unknown"
	}
}

// ChangeRecord is the tagged diff for one attribute: the value the attribute
// had when the edit session started plus the action that replaced it.
type ChangeRecord struct {
	Previous Value
	Action   Action
}

// Changeset collects at most one ChangeRecord per attribute for an open edit
// session. It never raises; callers have already validated legality.
type Changeset struct {
	records map[AttributeID]ChangeRecord
}

func NewChangeset() *Changeset {
	return &Changeset{records: make(map[AttributeID]ChangeRecord)}
}

// RecordIfAbsent inserts a record unless one already exists for the
// attribute. This single rule keeps the changeset diffing against the
// originally loaded value no matter how many in-session mutations occur.
func (cs *Changeset) RecordIfAbsent(id AttributeID, previous Value, action Action) {
	if _, exists := cs.records[id]; exists {
		return
	}
	cs.records[id] = ChangeRecord{Previous: previous, Action: action}
}

// Record overwrites the record for an attribute. Used when a follow-up
// mutation changes the net effect of the session, such as a delete after a
// set or a set after a delete.
func (cs *Changeset) Record(id AttributeID, previous Value, action Action) {
	cs.records[id] = ChangeRecord{Previous: previous, Action: action}
}

// Drop removes the record for an attribute, for mutations that cancel out.
func (cs *Changeset) Drop(id AttributeID) {
	delete(cs.records, id)
}

func (cs *Changeset) Get(id AttributeID) (ChangeRecord, bool) {
	rec, ok := cs.records[id]
	return rec, ok
}

func (cs *Changeset) Len() int {
	return len(cs.records)
}

func (cs *Changeset) IsEmpty() bool {
	return len(cs.records) == 0
}

// AttributeIDs returns the changed attributes in a stable order, so that
// rendered update statements are deterministic.
func (cs *Changeset) AttributeIDs() []AttributeID {
	ids := make([]AttributeID, 0, len(cs.records))
	for id := range cs.records {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	return ids
}

// Clear drains all records after a confirmed commit or an explicit discard.
func (cs *Changeset) Clear() {
	clear(cs.records)
}
