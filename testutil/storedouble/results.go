package storedouble

import (
	"github.com/graphadm/entitystore-go/entitystore"
)

// URITerm builds an IRI binding.
func URITerm(value string) entitystore.BoundTerm {
	return entitystore.BoundTerm{Kind: "uri", Value: value}
}

// LiteralTerm builds a plain or typed literal binding.
func LiteralTerm(value, datatype string) entitystore.BoundTerm {
	return entitystore.BoundTerm{Kind: "literal", Value: value, Datatype: datatype}
}

// EmptyResult is what a query over a missing record returns.
func EmptyResult() entitystore.ResultSet {
	return entitystore.ResultSet{}
}

// ModifiedResult scripts the answer to a modification timestamp read.
func ModifiedResult(ts entitystore.Timestamp) entitystore.ResultSet {
	return entitystore.ResultSet{
		Vars: []string{"modified"},
		Rows: []entitystore.ResultRow{
			{"modified": LiteralTerm(ts.String(), "http://www.w3.org/2001/XMLSchema#dateTime")},
		},
	}
}

// RecordResult scripts the answer to a whole-record load query. Rows come as
// predicate/object pairs with full predicate IRIs.
func RecordResult(rows ...entitystore.ResultRow) entitystore.ResultSet {
	return entitystore.ResultSet{Vars: []string{"predicate", "object"}, Rows: rows}
}

// PredicateRow builds one predicate/object row of a record load result.
func PredicateRow(fullPredicate string, object entitystore.BoundTerm) entitystore.ResultRow {
	return entitystore.ResultRow{
		"predicate": URITerm(fullPredicate),
		"object":    object,
	}
}

// SubjectsResult scripts the answer to a search query.
func SubjectsResult(subjects ...string) entitystore.ResultSet {
	rs := entitystore.ResultSet{Vars: []string{"subject"}}
	for _, s := range subjects {
		rs.Rows = append(rs.Rows, entitystore.ResultRow{"subject": URITerm(s)})
	}

	return rs
}
