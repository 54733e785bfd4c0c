package entitystore

import (
	"fmt"
	"strings"
)

// setRenderer is implemented by set-shaped values that can render themselves.
type setRenderer interface {
	TermsRDF() []string
	SnapshotTermsRDF() []string
	DiffTermsRDF() (added []string, removed []string)
	TripleLines(addr Address) []string
}

// mapRenderer is implemented by map-shaped values that render their own
// statements, including RDF-star annotation lines.
type mapRenderer interface {
	MapStatements(addr Address, action Action, prev Value) []string
}

// tripleLiner is the common surface of composite values for whole-record
// inserts.
type tripleLiner interface {
	TripleLines(addr Address) []string
}

// DefaultRender translates one attribute diff into update statements,
// dispatching on the shape of the value. Scalars swap the single triple with
// an old-value guard, sets apply their diff as plain data blocks, and maps
// delegate to their own renderer.
func DefaultRender(prev, next Value, action Action, addr Address) []string {
	shape := next
	if shape == nil {
		shape = prev
	}

	switch v := shape.(type) {
	case mapRenderer:
		return v.MapStatements(addr, action, prev)
	case setRenderer:
		return renderSet(prev, next, action, addr)
	default:
		return renderScalar(prev, next, action, addr)
	}
}

func renderScalar(prev, next Value, action Action, addr Address) []string {
	subject := addr.Subject.RDF()

	switch action {
	case ActionCreate:
		line := fmt.Sprintf("%s %s %s .", subject, addr.Predicate, next.RDF())
		return []string{dataBlock("INSERT DATA", addr.Graph, []string{line})}

	case ActionReplace:
		oldTriple := fmt.Sprintf("%s %s %s .", subject, addr.Predicate, prev.RDF())
		newTriple := fmt.Sprintf("%s %s %s .", subject, addr.Predicate, next.RDF())
		return []string{withBlock(addr.Graph, oldTriple, newTriple, oldTriple)}

	case ActionDelete:
		oldTriple := fmt.Sprintf("%s %s %s .", subject, addr.Predicate, prev.RDF())
		return []string{withBlock(addr.Graph, oldTriple, "", oldTriple)}

	default:
		return nil
	}
}

func renderSet(prev, next Value, action Action, addr Address) []string {
	switch action {
	case ActionCreate:
		return wrapDataBlocks(addr.Graph, nil, next.(tripleLiner).TripleLines(addr))

	case ActionReplace:
		var deleteLines []string
		if old, ok := prev.(tripleLiner); ok {
			deleteLines = old.TripleLines(addr)
		}
		return wrapDataBlocks(addr.Graph, deleteLines, next.(tripleLiner).TripleLines(addr))

	case ActionDelete:
		old, ok := prev.(tripleLiner)
		if !ok {
			return nil
		}
		return wrapDataBlocks(addr.Graph, old.TripleLines(addr), nil)

	case ActionModify:
		added, removed := next.(setRenderer).DiffTermsRDF()
		return wrapDataBlocks(addr.Graph, memberLines(addr, removed), memberLines(addr, added))

	default:
		return nil
	}
}

func memberLines(addr Address, terms []string) []string {
	lines := make([]string, 0, len(terms))
	for _, term := range terms {
		lines = append(lines, fmt.Sprintf("%s %s %s .", addr.Subject.RDF(), addr.Predicate, term))
	}

	return lines
}

// withBlock renders a guarded single-graph update. The WHERE part repeats
// the deleted triple so the update silently becomes a no-op when the stored
// value is not the expected one, which the post-commit verification then
// surfaces.
func withBlock(graph QName, deleteTriple, insertTriple, whereTriple string) string {
	var sb strings.Builder
	sb.WriteString("WITH ")
	sb.WriteString(string(graph))
	sb.WriteString("\n")
	if deleteTriple != "" {
		sb.WriteString("DELETE {\n    ")
		sb.WriteString(deleteTriple)
		sb.WriteString("\n}\n")
	}
	if insertTriple != "" {
		sb.WriteString("INSERT {\n    ")
		sb.WriteString(insertTriple)
		sb.WriteString("\n}\n")
	}
	sb.WriteString("WHERE {\n    ")
	sb.WriteString(whereTriple)
	sb.WriteString("\n}")

	return sb.String()
}

/***** provenance statements *****/

// renderProvenanceInsert renders the provenance triples of a fresh record.
func renderProvenanceInsert(graph QName, subject IRI, prov Provenance, rdfType QName) string {
	s := subject.RDF()
	lines := []string{
		fmt.Sprintf("%s rdf:type %s .", s, rdfType),
		fmt.Sprintf("%s dcterms:creator %s .", s, prov.Creator.RDF()),
		fmt.Sprintf("%s dcterms:created %s .", s, prov.Created.RDF()),
		fmt.Sprintf("%s dcterms:contributor %s .", s, prov.Contributor.RDF()),
		fmt.Sprintf("%s dcterms:modified %s .", s, prov.Modified.RDF()),
	}

	return dataBlock("INSERT DATA", graph, lines)
}

// renderModifiedSwap renders the compare-and-swap write of the modification
// timestamp. The WHERE guard repeats the expected old value, so a concurrent
// writer turns this into a no-op that verification catches.
func renderModifiedSwap(graph QName, subject IRI, previous, next Timestamp) string {
	s := subject.RDF()
	oldTriple := fmt.Sprintf("%s dcterms:modified %s .", s, previous.RDF())
	newTriple := fmt.Sprintf("%s dcterms:modified %s .", s, next.RDF())

	return withBlock(graph, oldTriple, newTriple, oldTriple)
}

// renderContributorSwap replaces the last-contributor triple regardless of
// its old value.
func renderContributorSwap(graph QName, subject IRI, contributor IRI) string {
	s := subject.RDF()
	oldTriple := fmt.Sprintf("%s dcterms:contributor ?contributor .", s)
	newTriple := fmt.Sprintf("%s dcterms:contributor %s .", s, contributor.RDF())

	return withBlock(graph, oldTriple, newTriple, oldTriple)
}

// renderModifiedQuery renders the read side of the compare-and-swap.
func renderModifiedQuery(graph QName, subject IRI) string {
	return fmt.Sprintf(
		"SELECT ?modified WHERE {\n    GRAPH %s {\n        %s dcterms:modified ?modified .\n    }\n}",
		graph, subject.RDF())
}

// renderRecordQuery renders the plain-triple load query of one record.
func renderRecordQuery(graph QName, subject IRI) string {
	return fmt.Sprintf(
		"SELECT ?predicate ?object WHERE {\n    GRAPH %s {\n        %s ?predicate ?object .\n    }\n}",
		graph, subject.RDF())
}

// renderRecordDelete renders the wildcard removal of all plain triples of a
// record. Types with RDF-star annotations override this through their
// schema, because the wildcard cannot reach quoted triples.
func renderRecordDelete(graph QName, subject IRI) []string {
	s := subject.RDF()
	stmt := fmt.Sprintf(
		"WITH %s\nDELETE {\n    %s ?predicate ?object .\n}\nWHERE {\n    %s ?predicate ?object .\n}",
		graph, s, s)

	return []string{stmt}
}
