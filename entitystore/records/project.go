package records

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/graphadm/entitystore-go/entitystore"
)

const projectTypeName = "Project"

// Attribute identities of the project record.
const (
	ProjectShortName entitystore.AttributeID = "projectShortName"
	ProjectNamespace entitystore.AttributeID = "projectNamespace"
	ProjectLabel     entitystore.AttributeID = "projectLabel"
	ProjectComment   entitystore.AttributeID = "projectComment"
	ProjectStart     entitystore.AttributeID = "projectStart"
	ProjectEnd       entitystore.AttributeID = "projectEnd"
)

var projectSchema = entitystore.NewSchema(projectTypeName, "adm:Project").
	Attribute(entitystore.Descriptor{
		ID: ProjectShortName, External: "adm:projectShortName",
		Mandatory: true, Immutable: true, Coerce: coerceNCName,
	}).
	Attribute(entitystore.Descriptor{
		ID: ProjectNamespace, External: "adm:projectNamespace",
		Mandatory: true, Immutable: true, Coerce: coerceIRI,
	}).
	Attribute(entitystore.Descriptor{
		ID: ProjectLabel, External: "rdfs:label", Coerce: coerceText,
	}).
	Attribute(entitystore.Descriptor{
		ID: ProjectComment, External: "rdfs:comment", Coerce: coerceText,
	}).
	Attribute(entitystore.Descriptor{
		ID: ProjectStart, External: "adm:projectStart", Coerce: coerceDate,
	}).
	Attribute(entitystore.Descriptor{
		ID: ProjectEnd, External: "adm:projectEnd", Coerce: coerceDate,
	}).
	MustBuild()

// ProjectSchema returns the attribute table of the project record type.
func ProjectSchema() *entitystore.Schema {
	return projectSchema
}

// Project is a typed wrapper around the project entity.
type Project struct {
	*entitystore.Entity
}

// NewProject constructs an uncommitted project. An empty subject mints a
// urn:uuid IRI.
func NewProject(subject entitystore.IRI) (Project, error) {
	e, err := entitystore.New(projectSchema, AdminGraph, subject)
	if err != nil {
		return Project{}, err
	}
	e.SetTransformFunc(projectTransform)
	e.SetConsistencyFunc(projectConsistency)

	return Project{Entity: e}, nil
}

// AsProject wraps a loaded project entity and re-arms its canonicalization
// and consistency rules.
func AsProject(e *entitystore.Entity) (Project, error) {
	if e.Schema().TypeName() != projectTypeName {
		return Project{}, errors.Join(entitystore.ErrInvalidValue,
			fmt.Errorf("entity %s is a %s, not a project", e.Subject(), e.Schema().TypeName()))
	}
	e.SetTransformFunc(projectTransform)
	e.SetConsistencyFunc(projectConsistency)

	return Project{Entity: e}, nil
}

// projectTransform canonicalizes raw string input before coercion: names and
// labels arrive from web forms with stray surrounding whitespace.
func projectTransform(e *entitystore.Entity, id entitystore.AttributeID, raw any) (any, error) {
	switch id {
	case ProjectShortName, ProjectNamespace, ProjectLabel, ProjectComment:
		if s, ok := raw.(string); ok {
			return strings.TrimSpace(s), nil
		}
	}

	return raw, nil
}

// projectConsistency keeps the project lifetime well ordered: the end date
// must not lie before the start date.
func projectConsistency(e *entitystore.Entity, id entitystore.AttributeID, next entitystore.Value) error {
	switch id {
	case ProjectStart:
		if endVal, ok := e.Get(ProjectEnd); ok {
			if endVal.(entitystore.Date).Before(next.(entitystore.Date)) {
				return errors.Join(entitystore.ErrInconsistentValue,
					fmt.Errorf("start date %s lies after end date %s", next, endVal))
			}
		}
	case ProjectEnd:
		if startVal, ok := e.Get(ProjectStart); ok {
			if next.(entitystore.Date).Before(startVal.(entitystore.Date)) {
				return errors.Join(entitystore.ErrInconsistentValue,
					fmt.Errorf("end date %s lies before start date %s", next, startVal))
			}
		}
	}

	return nil
}

// ShortName returns the project's short name, or the zero value before it is
// assigned.
func (p Project) ShortName() entitystore.NCName {
	if v, ok := p.Get(ProjectShortName); ok {
		return v.(entitystore.NCName)
	}

	return ""
}

// Label returns the display label, or the zero value when none is set.
func (p Project) Label() entitystore.Text {
	if v, ok := p.Get(ProjectLabel); ok {
		return v.(entitystore.Text)
	}

	return ""
}

// Lifetime returns the start and end dates; absent dates report false.
func (p Project) Lifetime() (start entitystore.Date, end entitystore.Date, hasStart bool, hasEnd bool) {
	if v, ok := p.Get(ProjectStart); ok {
		start, hasStart = v.(entitystore.Date), true
	}
	if v, ok := p.Get(ProjectEnd); ok {
		end, hasEnd = v.(entitystore.Date), true
	}

	return start, end, hasStart, hasEnd
}

// LoadProject reads one project from the administrative graph.
func LoadProject(ctx context.Context, store *entitystore.Store, subject entitystore.IRI) (Project, error) {
	e, err := store.Load(ctx, projectSchema, AdminGraph, subject)
	if err != nil {
		return Project{}, err
	}

	return AsProject(e)
}

// SearchProjects finds project subjects by exact short name, by label
// substring, or both. Empty arguments match everything.
func SearchProjects(ctx context.Context, store *entitystore.Store, shortName entitystore.NCName, labelContains string) ([]entitystore.IRI, error) {
	var sb strings.Builder
	sb.WriteString("SELECT DISTINCT ?subject WHERE {\n")
	sb.WriteString(fmt.Sprintf("    GRAPH %s {\n", AdminGraph))
	sb.WriteString("        ?subject rdf:type adm:Project .\n")
	if shortName != "" {
		sb.WriteString(fmt.Sprintf("        ?subject adm:projectShortName %s .\n", shortName.RDF()))
	}
	if labelContains != "" {
		sb.WriteString("        ?subject rdfs:label ?label .\n")
		sb.WriteString(fmt.Sprintf("        FILTER(CONTAINS(STR(?label), %s))\n", entitystore.Text(labelContains).RDF()))
	}
	sb.WriteString("    }\n}")

	rs, err := store.Select(ctx, sb.String())
	if err != nil {
		return nil, err
	}

	return subjectsOf(store, rs), nil
}

// subjectsOf collects the ?subject bindings of a search result.
func subjectsOf(store *entitystore.Store, rs entitystore.ResultSet) []entitystore.IRI {
	subjects := make([]entitystore.IRI, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		term, ok := row.Term("subject")
		if !ok || !term.IsIRI() {
			continue
		}
		value := term.Value
		if q, shrunk := store.Prefixes().Shrink(value); shrunk {
			value = string(q)
		}
		subjects = append(subjects, entitystore.IRI(value))
	}

	return subjects
}
