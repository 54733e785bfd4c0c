package entitystore

import (
	"errors"
	"fmt"
)

// Provenance holds the audit fields every committed record carries. Modified
// doubles as the compare-and-swap token of the commit protocol.
type Provenance struct {
	Creator     IRI
	Created     Timestamp
	Contributor IRI
	Modified    Timestamp
}

// TransformFunc resolves a raw value into the form the attribute's coercion
// expects, before coercion runs. Record types use it to canonicalize input,
// such as trimming whitespace or resolving a display name to an IRI. It must
// not mutate the entity.
type TransformFunc func(e *Entity, id AttributeID, raw any) (any, error)

// ConsistencyFunc vets a coerced value against the rest of the entity before
// it is stored, for cross-attribute rules such as "end date not before start
// date". It must not mutate the entity.
type ConsistencyFunc func(e *Entity, id AttributeID, next Value) error

// Entity is one record instance: a typed attribute bag plus the changeset
// tracking what diverged from the loaded state. It carries no reference to
// the store that loaded it; the store operates on entities passed to it.
type Entity struct {
	schema    *Schema
	graph     QName
	subject   IRI
	values    map[AttributeID]Value
	changeset *Changeset
	prov      Provenance
	committed bool

	transform   TransformFunc
	consistency ConsistencyFunc
}

// New constructs a fresh, uncommitted entity. An empty subject mints a
// urn:uuid IRI. Attribute values are supplied through Set afterwards, which
// records them as creations.
func New(schema *Schema, graph QName, subject IRI) (*Entity, error) {
	if schema == nil {
		return nil, errors.Join(ErrInvalidValue, errors.New("entity needs a schema"))
	}
	if subject == "" {
		subject = NewURNIRI()
	}

	return &Entity{
		schema:    schema,
		graph:     graph,
		subject:   subject,
		values:    make(map[AttributeID]Value),
		changeset: NewChangeset(),
	}, nil
}

// Hydrate constructs a committed entity from loaded values. Composite values
// get their notifiers attached so later in-place mutations are tracked; the
// changeset starts empty.
func Hydrate(schema *Schema, graph QName, subject IRI, values map[AttributeID]Value, prov Provenance) (*Entity, error) {
	e, err := New(schema, graph, subject)
	if err != nil {
		return nil, err
	}
	for id, v := range values {
		if _, known := schema.ByID(id); !known {
			return nil, errors.Join(ErrUnknownAttribute, fmt.Errorf("attribute %q in type %q", id, schema.TypeName()))
		}
		e.values[id] = v
		e.attachNotifier(id, v)
	}
	e.prov = prov
	e.committed = true

	return e, nil
}

func (e *Entity) Schema() *Schema        { return e.schema }
func (e *Entity) Graph() QName           { return e.graph }
func (e *Entity) Subject() IRI           { return e.subject }
func (e *Entity) Provenance() Provenance { return e.prov }

// Committed reports whether the entity reflects a stored record.
func (e *Entity) Committed() bool { return e.committed }

// SetTransformFunc installs the pre-coercion canonicalization hook.
func (e *Entity) SetTransformFunc(fn TransformFunc) {
	e.transform = fn
}

// SetConsistencyFunc installs the cross-attribute vetting hook.
func (e *Entity) SetConsistencyFunc(fn ConsistencyFunc) {
	e.consistency = fn
}

// Get returns the current value of an attribute.
func (e *Entity) Get(id AttributeID) (Value, bool) {
	v, ok := e.values[id]
	return v, ok
}

// Set assigns an attribute value. The raw value is coerced through the
// descriptor first; assigning a value equal to the current one is a no-op
// that records nothing. The recorded previous value is always the one the
// attribute had when the edit session started, no matter how often the
// attribute is set before the next commit.
func (e *Entity) Set(id AttributeID, raw any) error {
	desc, ok := e.schema.ByID(id)
	if !ok {
		return errors.Join(ErrUnknownAttribute, fmt.Errorf("attribute %q in type %q", id, e.schema.TypeName()))
	}

	if e.transform != nil {
		transformed, err := e.transform(e, id, raw)
		if err != nil {
			return err
		}
		raw = transformed
	}

	next, err := desc.Coerce(raw)
	if err != nil {
		return fmt.Errorf("attribute %q: %w", id, err)
	}

	current, exists := e.values[id]
	if exists && current.Equal(next) {
		return nil
	}
	if exists && desc.Immutable && e.committed {
		return errors.Join(ErrImmutableAttribute, fmt.Errorf("attribute %q in type %q", id, e.schema.TypeName()))
	}
	if e.consistency != nil {
		if err := e.consistency(e, id, next); err != nil {
			return err
		}
	}

	if rec, open := e.changeset.Get(id); open {
		switch rec.Action {
		case ActionDelete:
			// An earlier delete nets with the set: restoring the
			// session-start value cancels the record, anything else is a
			// replacement of that value.
			if rec.Previous != nil && rec.Previous.Equal(next) {
				e.changeset.Drop(id)
			} else {
				e.changeset.Record(id, rec.Previous, ActionReplace)
			}
		case ActionModify:
			// The container holds the sub-diff; roll it back so the record
			// carries the session-start contents as the previous value.
			if u, ok := current.(interface{ Undo() }); ok {
				u.Undo()
			}
			e.changeset.Record(id, current, ActionReplace)
		}
		// A CREATE or REPLACE record stays as recorded.
	} else {
		action := ActionCreate
		if exists {
			action = ActionReplace
		}
		e.changeset.Record(id, current, action)
	}
	e.values[id] = next
	e.attachNotifier(id, next)

	return nil
}

// Delete removes an attribute value. Mandatory attributes cannot be removed,
// immutable ones not once committed.
func (e *Entity) Delete(id AttributeID) error {
	desc, ok := e.schema.ByID(id)
	if !ok {
		return errors.Join(ErrUnknownAttribute, fmt.Errorf("attribute %q in type %q", id, e.schema.TypeName()))
	}
	current, exists := e.values[id]
	if !exists {
		return errors.Join(ErrNotFound, fmt.Errorf("attribute %q has no value", id))
	}
	if desc.Mandatory {
		return errors.Join(ErrMissingMandatoryAttribute, fmt.Errorf("attribute %q in type %q cannot be removed", id, e.schema.TypeName()))
	}
	if desc.Immutable && e.committed {
		return errors.Join(ErrImmutableAttribute, fmt.Errorf("attribute %q in type %q", id, e.schema.TypeName()))
	}

	if rec, open := e.changeset.Get(id); open {
		switch rec.Action {
		case ActionCreate:
			// Created and deleted in the same session, nothing to commit.
			e.changeset.Drop(id)
		case ActionModify:
			// The container holds the sub-diff; roll it back so the record
			// carries the session-start contents as the previous value.
			if u, ok := current.(interface{ Undo() }); ok {
				u.Undo()
			}
			e.changeset.Record(id, current, ActionDelete)
		default:
			e.changeset.Record(id, rec.Previous, ActionDelete)
		}
	} else {
		e.changeset.Record(id, current, ActionDelete)
	}
	delete(e.values, id)

	return nil
}

// Validate checks that every mandatory attribute has a value, reporting the
// first missing one in schema definition order.
func (e *Entity) Validate() error {
	for _, desc := range e.schema.Attributes() {
		if !desc.Mandatory {
			continue
		}
		if _, ok := e.values[desc.ID]; !ok {
			return errors.Join(ErrMissingMandatoryAttribute, fmt.Errorf("attribute %q in type %q", desc.ID, e.schema.TypeName()))
		}
	}

	return nil
}

// Changeset exposes the open edit session's records.
func (e *Entity) Changeset() *Changeset {
	return e.changeset
}

// ClearChangeset drains the entity-level records and cascades into composite
// values so their snapshots are dropped as well.
func (e *Entity) ClearChangeset() {
	e.changeset.Clear()
	for _, v := range e.values {
		if c, ok := v.(interface{ ClearChangeset() }); ok {
			c.ClearChangeset()
		}
	}
}

// Undo rolls the entity back to the state the edit session started from and
// drains the changeset.
func (e *Entity) Undo() {
	for _, id := range e.changeset.AttributeIDs() {
		rec, _ := e.changeset.Get(id)
		switch rec.Action {
		case ActionCreate:
			delete(e.values, id)
		case ActionReplace, ActionDelete:
			e.values[id] = rec.Previous
			e.attachNotifier(id, rec.Previous)
		case ActionModify:
			if u, ok := e.values[id].(interface{ Undo() }); ok {
				u.Undo()
			}
		}
	}
	e.changeset.Clear()
}

// AddressOf returns where an attribute lives in the store.
func (e *Entity) AddressOf(desc Descriptor) Address {
	return Address{Graph: e.graph, Subject: e.subject, Predicate: desc.External}
}

func (e *Entity) attachNotifier(id AttributeID, v Value) {
	n, ok := v.(Notifiable)
	if !ok {
		return
	}
	n.SetNotifier(func() {
		e.changeset.RecordIfAbsent(id, nil, ActionModify)
	})
}

// completeCreate marks a successful first commit.
func (e *Entity) completeCreate(creator IRI, at Timestamp) {
	e.prov = Provenance{Creator: creator, Created: at, Contributor: creator, Modified: at}
	e.committed = true
	e.ClearChangeset()
}

// completeDelete marks the record as no longer stored. The attribute values
// stay readable, so callers can still inspect what was removed.
func (e *Entity) completeDelete() {
	e.committed = false
	e.prov = Provenance{}
	e.ClearChangeset()
}

// completeUpdate marks a successful follow-up commit.
func (e *Entity) completeUpdate(contributor IRI, at Timestamp) {
	e.prov.Contributor = contributor
	e.prov.Modified = at
	e.ClearChangeset()
}

/***** export / import *****/

// EntityExport is the serialization-friendly form of an entity, used by
// caches. Attribute values are stored in their Native form and rebuilt
// through the schema's coercion constructors.
type EntityExport struct {
	TypeName    string              `json:"typeName"`
	Graph       QName               `json:"graph"`
	Subject     IRI                 `json:"subject"`
	Creator     IRI                 `json:"creator,omitempty"`
	Created     string              `json:"created,omitempty"`
	Contributor IRI                 `json:"contributor,omitempty"`
	Modified    string              `json:"modified,omitempty"`
	Attributes  map[AttributeID]any `json:"attributes"`
}

// Export snapshots the committed state of the entity. Open changesets are
// not exported; callers cache only committed entities.
func (e *Entity) Export() EntityExport {
	attrs := make(map[AttributeID]any, len(e.values))
	for id, v := range e.values {
		attrs[id] = v.Native()
	}
	out := EntityExport{
		TypeName:    e.schema.TypeName(),
		Graph:       e.graph,
		Subject:     e.subject,
		Creator:     e.prov.Creator,
		Contributor: e.prov.Contributor,
		Attributes:  attrs,
	}
	if !e.prov.Created.IsZero() {
		out.Created = e.prov.Created.String()
	}
	if !e.prov.Modified.IsZero() {
		out.Modified = e.prov.Modified.String()
	}

	return out
}

// Import rebuilds a committed entity from its exported form.
func Import(schema *Schema, export EntityExport) (*Entity, error) {
	if schema == nil || schema.TypeName() != export.TypeName {
		return nil, errors.Join(ErrInvalidValue, fmt.Errorf("export of type %q does not match schema", export.TypeName))
	}

	values := make(map[AttributeID]Value, len(export.Attributes))
	for id, raw := range export.Attributes {
		desc, ok := schema.ByID(id)
		if !ok {
			return nil, errors.Join(ErrUnknownAttribute, fmt.Errorf("attribute %q in export of type %q", id, export.TypeName))
		}
		v, err := desc.Coerce(raw)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", id, err)
		}
		values[id] = v
	}

	prov := Provenance{Creator: export.Creator, Contributor: export.Contributor}
	if export.Created != "" {
		ts, err := ParseTimestamp(export.Created)
		if err != nil {
			return nil, err
		}
		prov.Created = ts
	}
	if export.Modified != "" {
		ts, err := ParseTimestamp(export.Modified)
		if err != nil {
			return nil, err
		}
		prov.Modified = ts
	}

	return Hydrate(schema, export.Graph, export.Subject, values, prov)
}

// Clone returns an independent committed copy, so cached entities can be
// handed out without sharing mutable containers.
func (e *Entity) Clone() (*Entity, error) {
	return Import(e.schema, e.Export())
}
