package entitystore

import (
	"context"
)

// BoundTerm is one binding of a SPARQL query solution.
type BoundTerm struct {
	Kind     string // "uri", "literal" or "bnode"
	Value    string
	Datatype string
	Lang     string
}

// IsIRI reports whether the binding is an IRI term.
func (t BoundTerm) IsIRI() bool {
	return t.Kind == "uri"
}

// ResultRow maps query variable names to their bound terms.
type ResultRow map[string]BoundTerm

// Term returns the binding for a variable.
func (r ResultRow) Term(variable string) (BoundTerm, bool) {
	t, ok := r[variable]
	return t, ok
}

// ResultSet is a decoded SPARQL SELECT result.
type ResultSet struct {
	Vars []string
	Rows []ResultRow
}

func (rs ResultSet) IsEmpty() bool {
	return len(rs.Rows) == 0
}

// Actor identifies who is performing store operations, together with the
// administrative grants the connection was authenticated with. Grants map a
// scope IRI to the permission terms held within that scope.
type Actor struct {
	IRI    IRI
	Grants map[IRI]map[QName]struct{}
}

// HasGrant reports whether the actor holds a permission within a scope.
func (a Actor) HasGrant(scope IRI, permission QName) bool {
	perms, ok := a.Grants[scope]
	if !ok {
		return false
	}
	_, ok = perms[permission]

	return ok
}

// Connection is the transport to the remote graph store. Statements are
// exchanged as text; the store core builds them and interprets the decoded
// results, so any SPARQL 1.1 endpoint with transaction support can back it.
//
// The transaction methods drive the commit protocol: TransactionStart opens
// a server-side transaction, TransactionQuery and TransactionUpdate run
// inside it, and TransactionCommit or TransactionAbort ends it. A
// connection serves one transaction at a time.
type Connection interface {
	Query(ctx context.Context, query string) (ResultSet, error)
	Update(ctx context.Context, update string) error

	TransactionStart(ctx context.Context) error
	TransactionQuery(ctx context.Context, query string) (ResultSet, error)
	TransactionUpdate(ctx context.Context, update string) error
	TransactionCommit(ctx context.Context) error
	TransactionAbort(ctx context.Context) error
	InTransaction() bool

	Actor() Actor
}
