// Package entitystore implements a client-side data-access layer for records
// whose canonical state lives in a remote graph store that is queried and
// modified through SPARQL.
//
// The package provides the generic machinery every concrete record type is
// built on:
//
//   - Schema / Descriptor: the static per-type attribute table with
//     mandatory/immutable flags, coercion and rendering hooks
//   - Changeset / ChangeRecord: the per-entity diff collection that always
//     diffs against the originally loaded value
//   - ObservableSet / ObservableMap: mutable containers that snapshot
//     themselves on first mutation and notify their owning entity
//   - Entity: the attribute store with provenance metadata and typed
//     Set/Get/Delete accessors
//   - Store: the commit protocol with optimistic concurrency - updates are
//     guarded by a compare-and-swap on the record's modification timestamp,
//     so lost updates between independent processes are detected and
//     reported as ErrUpdateConflict instead of being silently overwritten
//
// The store connection (see Connection) and the read cache (see Cache) are
// pluggable; implementations are provided in the sparqlhttp and sqlitecache
// subpackages. Concrete record types for the administrative model live in
// the records subpackage.
package entitystore
