package entitystore

import (
	"errors"
	"fmt"
)

// AttributeID is the stable identity of an attribute within one record type.
type AttributeID string

// CoerceFunc turns a raw loaded or caller-supplied value into the typed
// in-memory representation. It must accept the Native form of the values it
// produces, which is how cached entities are rebuilt.
type CoerceFunc func(raw any) (Value, error)

// Address tells a renderer where an attribute lives in the store.
type Address struct {
	Graph     QName
	Subject   IRI
	Predicate QName
}

// RenderFunc is a pure function translating one attribute diff into ordered
// SPARQL update statements. It has no side effects, so the commit protocol
// can sequence many fragments into a single transaction.
type RenderFunc func(prev, next Value, action Action, addr Address) []string

// LoadFunc hydrates attributes that cannot be read from the record's plain
// triples, such as grant maps stored as RDF-star annotations. It runs after
// the main load query and its result replaces whatever that query produced
// for the attribute.
type LoadFunc func(rows []ResultRow) (any, error)

// Descriptor is the static per-attribute contract of a record type. It is
// fixed at type-definition time and never mutated per instance.
type Descriptor struct {
	ID        AttributeID
	External  QName // predicate in the store, also used to parse loaded records
	Mandatory bool
	Immutable bool
	Coerce    CoerceFunc
	Render    RenderFunc // nil selects the default renderer for the value shape
	Load      LoadFunc   // nil loads from the record's own triples
}

// Schema is the immutable attribute table of one record type.
type Schema struct {
	typeName   string
	rdfType    QName
	ordered    []Descriptor
	byID       map[AttributeID]int
	byExternal map[QName]int

	deleteStatements func(graph QName, subject IRI) []string
}

func (s *Schema) TypeName() string {
	return s.typeName
}

func (s *Schema) RDFType() QName {
	return s.rdfType
}

// ByID looks an attribute up by its identity.
func (s *Schema) ByID(id AttributeID) (Descriptor, bool) {
	i, ok := s.byID[id]
	if !ok {
		return Descriptor{}, false
	}

	return s.ordered[i], true
}

// ByExternal looks an attribute up by its store predicate, used when parsing
// loaded records.
func (s *Schema) ByExternal(external QName) (Descriptor, bool) {
	i, ok := s.byExternal[external]
	if !ok {
		return Descriptor{}, false
	}

	return s.ordered[i], true
}

// DeleteStatementsFor returns the statements removing the whole record,
// using the type's override when one is registered and the generic wildcard
// delete otherwise.
func (s *Schema) DeleteStatementsFor(graph QName, subject IRI) []string {
	if s.deleteStatements != nil {
		return s.deleteStatements(graph, subject)
	}

	return renderRecordDelete(graph, subject)
}

// Attributes iterates the descriptors in definition order, which is the
// order mandatory-presence validation reports them in.
func (s *Schema) Attributes() []Descriptor {
	out := make([]Descriptor, len(s.ordered))
	copy(out, s.ordered)

	return out
}

/***** SchemaBuilder *****/

// SchemaBuilder assembles a Schema. Registering a duplicate identity or a
// duplicate external name is a type-definition-time error reported by Build.
type SchemaBuilder struct {
	schema Schema
	err    error
}

func NewSchema(typeName string, rdfType QName) *SchemaBuilder {
	return &SchemaBuilder{
		schema: Schema{
			typeName:   typeName,
			rdfType:    rdfType,
			byID:       make(map[AttributeID]int),
			byExternal: make(map[QName]int),
		},
	}
}

func (b *SchemaBuilder) Attribute(d Descriptor) *SchemaBuilder {
	if b.err != nil {
		return b
	}
	if d.ID == "" || d.External == "" {
		b.err = errors.Join(ErrInvalidValue, fmt.Errorf("descriptor for %q needs an identity and an external name", b.schema.typeName))
		return b
	}
	if _, dup := b.schema.byID[d.ID]; dup {
		b.err = errors.Join(ErrDuplicateAttribute, fmt.Errorf("attribute identity %q in type %q", d.ID, b.schema.typeName))
		return b
	}
	if _, dup := b.schema.byExternal[d.External]; dup {
		b.err = errors.Join(ErrDuplicateAttribute, fmt.Errorf("external name %q in type %q", d.External, b.schema.typeName))
		return b
	}

	b.schema.byID[d.ID] = len(b.schema.ordered)
	b.schema.byExternal[d.External] = len(b.schema.ordered)
	b.schema.ordered = append(b.schema.ordered, d)

	return b
}

// DeleteStatements overrides the statements that remove the whole record
// from the store, for types that keep triples the generic wildcard delete
// cannot reach (RDF-star annotations).
func (b *SchemaBuilder) DeleteStatements(fn func(graph QName, subject IRI) []string) *SchemaBuilder {
	if b.err == nil {
		b.schema.deleteStatements = fn
	}

	return b
}

func (b *SchemaBuilder) Build() (*Schema, error) {
	if b.err != nil {
		return nil, b.err
	}

	return &b.schema, nil
}

// MustBuild panics on a definition error. Schemas are built once per record
// type from static tables, so a failure here is a programming error.
func (b *SchemaBuilder) MustBuild() *Schema {
	schema, err := b.Build()
	if err != nil {
		panic(err)
	}

	return schema
}
