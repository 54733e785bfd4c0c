package entitystore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Create stores a fresh record. The whole record is written in one
// transaction guarded by an existence check, so two concurrent creators of
// the same subject cannot both succeed. On success the entity is marked
// committed, its provenance is filled in, and the changeset is drained.
func (s *Store) Create(ctx context.Context, e *Entity) error {
	const operation = "create"
	start := time.Now()
	ctx, span := s.startOperationSpan(ctx, operation, e)

	if e.Committed() {
		return s.failOperation(ctx, span, operation, errorTypeStore, start,
			errors.Join(ErrAlreadyExists, fmt.Errorf("record %s is already committed", e.Subject())))
	}
	if err := s.checkAuthorized(OpCreate, e); err != nil {
		return s.failOperation(ctx, span, operation, errorTypePermission, start, err)
	}
	if err := e.Validate(); err != nil {
		return s.failOperation(ctx, span, operation, errorTypeStore, start, err)
	}

	actor := s.conn.Actor()
	now := TimestampNow()
	prov := Provenance{Creator: actor.IRI, Created: now, Contributor: actor.IRI, Modified: now}

	statements := []string{renderProvenanceInsert(e.Graph(), e.Subject(), prov, e.Schema().RDFType())}
	for _, desc := range e.Schema().Attributes() {
		v, ok := e.Get(desc.ID)
		if !ok {
			continue
		}
		statements = append(statements, s.renderAttribute(desc, nil, v, ActionCreate, e.AddressOf(desc))...)
	}

	if err := s.conn.TransactionStart(ctx); err != nil {
		return s.failOperation(ctx, span, operation, errorTypeStore, start, errors.Join(ErrStoreFailed, err))
	}

	existing, err := s.conn.TransactionQuery(ctx, s.withPreamble(renderModifiedQuery(e.Graph(), e.Subject())))
	if err != nil {
		s.abortTransaction(ctx)
		return s.failOperation(ctx, span, operation, errorTypeStore, start, errors.Join(ErrStoreFailed, err))
	}
	if !existing.IsEmpty() {
		s.abortTransaction(ctx)
		return s.failOperation(ctx, span, operation, errorTypeStore, start,
			errors.Join(ErrAlreadyExists, fmt.Errorf("record %s already exists", e.Subject())))
	}

	if err = s.runTransactionUpdate(ctx, operation, statements); err != nil {
		s.abortTransaction(ctx)
		return s.failOperation(ctx, span, operation, errorTypeStore, start, err)
	}
	if err = s.conn.TransactionCommit(ctx); err != nil {
		s.abortTransaction(ctx)
		return s.failOperation(ctx, span, operation, errorTypeStore, start, errors.Join(ErrStoreFailed, err))
	}

	e.completeCreate(actor.IRI, now)
	s.refreshCache(ctx, e)

	return s.succeedOperation(ctx, span, operation, start, e)
}

// Update commits the entity's open changeset. The write is guarded twice:
// inside the transaction the stored modification timestamp is compared to
// the one the entity was loaded with, and after the commit the freshly
// written timestamp is read back.
//
// A pre-commit mismatch aborts with ErrUpdateConflict and leaves the
// changeset intact, so the caller can reload and replay the edits. A
// post-commit verification mismatch reports ErrUpdateFailed; the record
// state is then unknown and the caller must reload.
func (s *Store) Update(ctx context.Context, e *Entity) error {
	const operation = "update"
	start := time.Now()
	ctx, span := s.startOperationSpan(ctx, operation, e)

	if !e.Committed() {
		return s.failOperation(ctx, span, operation, errorTypeStore, start,
			errors.Join(ErrNotFound, fmt.Errorf("record %s was never committed", e.Subject())))
	}
	if err := s.checkAuthorized(OpUpdate, e); err != nil {
		return s.failOperation(ctx, span, operation, errorTypePermission, start, err)
	}
	if e.Changeset().IsEmpty() {
		s.logOperation(ctx, operation, logAttrSubject, string(e.Subject()), "outcome", "no_changes")
		s.finishSpanSuccess(span, time.Since(start))
		return nil
	}
	if err := e.Validate(); err != nil {
		return s.failOperation(ctx, span, operation, errorTypeStore, start, err)
	}

	actor := s.conn.Actor()
	now := TimestampNow()
	loaded := e.Provenance().Modified

	var statements []string
	for _, id := range e.Changeset().AttributeIDs() {
		desc, ok := e.Schema().ByID(id)
		if !ok {
			continue
		}
		rec, _ := e.Changeset().Get(id)
		next, _ := e.Get(id)
		statements = append(statements, s.renderAttribute(desc, rec.Previous, next, rec.Action, e.AddressOf(desc))...)
	}
	statements = append(statements,
		renderContributorSwap(e.Graph(), e.Subject(), actor.IRI),
		renderModifiedSwap(e.Graph(), e.Subject(), loaded, now),
	)

	if err := s.conn.TransactionStart(ctx); err != nil {
		return s.failOperation(ctx, span, operation, errorTypeStore, start, errors.Join(ErrStoreFailed, err))
	}

	stored, found, err := s.readModified(ctx, e.Graph(), e.Subject(), true)
	if err != nil {
		s.abortTransaction(ctx)
		return s.failOperation(ctx, span, operation, errorTypeStore, start, err)
	}
	if !found {
		s.abortTransaction(ctx)
		return s.failOperation(ctx, span, operation, errorTypeNotFound, start,
			errors.Join(ErrNotFound, fmt.Errorf("record %s is gone", e.Subject())))
	}
	if !stored.Equal(loaded) {
		s.abortTransaction(ctx)
		s.recordConflictMetrics(ctx, operation)
		return s.failOperation(ctx, span, operation, errorTypeConflict, start,
			errors.Join(ErrUpdateConflict,
				fmt.Errorf("record %s changed from %s to %s", e.Subject(), loaded, stored)))
	}

	if err = s.runTransactionUpdate(ctx, operation, statements); err != nil {
		s.abortTransaction(ctx)
		return s.failOperation(ctx, span, operation, errorTypeStore, start, err)
	}
	if err = s.conn.TransactionCommit(ctx); err != nil {
		s.abortTransaction(ctx)
		return s.failOperation(ctx, span, operation, errorTypeStore, start, errors.Join(ErrStoreFailed, err))
	}

	written, found, err := s.readModified(ctx, e.Graph(), e.Subject(), false)
	if err != nil {
		return s.failOperation(ctx, span, operation, errorTypeVerify, start, err)
	}
	if !found || !written.Equal(now) {
		return s.failOperation(ctx, span, operation, errorTypeVerify, start,
			errors.Join(ErrUpdateFailed, fmt.Errorf("record %s does not verify after commit", e.Subject())))
	}

	e.completeUpdate(actor.IRI, now)
	s.refreshCache(ctx, e)

	return s.succeedOperation(ctx, span, operation, start, e)
}

// Delete removes the record with the same timestamp guard as Update, so a
// concurrently modified record is not silently destroyed.
func (s *Store) Delete(ctx context.Context, e *Entity) error {
	const operation = "delete"
	start := time.Now()
	ctx, span := s.startOperationSpan(ctx, operation, e)

	if !e.Committed() {
		return s.failOperation(ctx, span, operation, errorTypeNotFound, start,
			errors.Join(ErrNotFound, fmt.Errorf("record %s was never committed", e.Subject())))
	}
	if err := s.checkAuthorized(OpDelete, e); err != nil {
		return s.failOperation(ctx, span, operation, errorTypePermission, start, err)
	}

	if err := s.conn.TransactionStart(ctx); err != nil {
		return s.failOperation(ctx, span, operation, errorTypeStore, start, errors.Join(ErrStoreFailed, err))
	}

	stored, found, err := s.readModified(ctx, e.Graph(), e.Subject(), true)
	if err != nil {
		s.abortTransaction(ctx)
		return s.failOperation(ctx, span, operation, errorTypeStore, start, err)
	}
	if !found {
		s.abortTransaction(ctx)
		return s.failOperation(ctx, span, operation, errorTypeNotFound, start,
			errors.Join(ErrNotFound, fmt.Errorf("record %s is gone", e.Subject())))
	}
	if !stored.Equal(e.Provenance().Modified) {
		s.abortTransaction(ctx)
		s.recordConflictMetrics(ctx, operation)
		return s.failOperation(ctx, span, operation, errorTypeConflict, start,
			errors.Join(ErrUpdateConflict,
				fmt.Errorf("record %s changed from %s to %s", e.Subject(), e.Provenance().Modified, stored)))
	}

	statements := e.Schema().DeleteStatementsFor(e.Graph(), e.Subject())
	if err = s.runTransactionUpdate(ctx, operation, statements); err != nil {
		s.abortTransaction(ctx)
		return s.failOperation(ctx, span, operation, errorTypeStore, start, err)
	}
	if err = s.conn.TransactionCommit(ctx); err != nil {
		s.abortTransaction(ctx)
		return s.failOperation(ctx, span, operation, errorTypeStore, start, errors.Join(ErrStoreFailed, err))
	}

	e.completeDelete()
	s.evictCache(ctx, e.Subject())

	return s.succeedOperation(ctx, span, operation, start, e)
}

// Load reads one record and hydrates it into a committed entity. Reads are
// served from the cache when one is configured and the context does not
// carry the bypass flag.
func (s *Store) Load(ctx context.Context, schema *Schema, graph QName, subject IRI) (*Entity, error) {
	const operation = "load"
	start := time.Now()
	ctx, span := s.startOperationSpan(ctx, operation, nil)

	if s.cache != nil && !CacheBypassed(ctx) {
		cached, hit, err := s.cache.Get(ctx, subject)
		if err != nil {
			s.logWarn(ctx, "entity cache read failed", logAttrError, err.Error(), logAttrSubject, string(subject))
		}
		if hit && cached.Schema().TypeName() == schema.TypeName() {
			s.recordCacheMetrics(ctx, schema.TypeName(), true)
			if err = s.checkAuthorized(OpLoad, cached); err != nil {
				return nil, s.failOperation(ctx, span, operation, errorTypePermission, start, err)
			}
			s.finishSpanSuccess(span, time.Since(start))

			return cached, nil
		}
		s.recordCacheMetrics(ctx, schema.TypeName(), false)
	}

	query := s.withPreamble(renderRecordQuery(graph, subject))
	queryStart := time.Now()
	rs, err := s.conn.Query(ctx, query)
	s.logStatementWithDuration(ctx, query, operation, time.Since(queryStart))
	if err != nil {
		return nil, s.failOperation(ctx, span, operation, errorTypeStore, start, errors.Join(ErrStoreFailed, err))
	}
	if rs.IsEmpty() {
		return nil, s.failOperation(ctx, span, operation, errorTypeNotFound, start,
			errors.Join(ErrNotFound, fmt.Errorf("record %s in graph %s", subject, graph)))
	}

	e, err := s.hydrateFromRows(schema, graph, subject, rs.Rows)
	if err != nil {
		return nil, s.failOperation(ctx, span, operation, errorTypeStore, start, err)
	}
	if err = s.checkAuthorized(OpLoad, e); err != nil {
		return nil, s.failOperation(ctx, span, operation, errorTypePermission, start, err)
	}

	s.refreshCache(ctx, e)

	return e, s.succeedOperation(ctx, span, operation, start, e)
}

// Select runs a caller-built SELECT query with the registered prefix
// preamble. Record packages use it for their search operations.
func (s *Store) Select(ctx context.Context, query string) (ResultSet, error) {
	full := s.withPreamble(query)
	queryStart := time.Now()
	rs, err := s.conn.Query(ctx, full)
	s.logStatementWithDuration(ctx, full, "select", time.Since(queryStart))
	if err != nil {
		return ResultSet{}, errors.Join(ErrStoreFailed, err)
	}

	return rs, nil
}

/***** internals *****/

func (s *Store) renderAttribute(desc Descriptor, prev, next Value, action Action, addr Address) []string {
	render := desc.Render
	if render == nil {
		render = DefaultRender
	}

	return render(prev, next, action, addr)
}

func (s *Store) withPreamble(body string) string {
	return s.prefixes.Preamble() + "\n" + body
}

func (s *Store) runTransactionUpdate(ctx context.Context, action string, statements []string) error {
	if len(statements) == 0 {
		return nil
	}
	update := s.withPreamble(strings.Join(statements, " ;\n"))
	updateStart := time.Now()
	err := s.conn.TransactionUpdate(ctx, update)
	s.logStatementWithDuration(ctx, update, action, time.Since(updateStart))
	if err != nil {
		return errors.Join(ErrStoreFailed, err)
	}

	return nil
}

// readModified reads the record's modification timestamp, inside or outside
// the running transaction.
func (s *Store) readModified(ctx context.Context, graph QName, subject IRI, inTransaction bool) (Timestamp, bool, error) {
	query := s.withPreamble(renderModifiedQuery(graph, subject))

	var rs ResultSet
	var err error
	if inTransaction {
		rs, err = s.conn.TransactionQuery(ctx, query)
	} else {
		rs, err = s.conn.Query(ctx, query)
	}
	if err != nil {
		return Timestamp{}, false, errors.Join(ErrStoreFailed, err)
	}
	if rs.IsEmpty() {
		return Timestamp{}, false, nil
	}

	term, ok := rs.Rows[0].Term("modified")
	if !ok {
		return Timestamp{}, false, errors.Join(ErrStoreFailed, errors.New("modified binding missing in result"))
	}
	ts, err := ParseTimestamp(term.Value)
	if err != nil {
		return Timestamp{}, false, err
	}

	return ts, true, nil
}

// hydrateFromRows folds the predicate/object rows of one record into typed
// attribute values and provenance. Attributes with a Load override are
// hydrated from the raw rows instead of the folded triples.
func (s *Store) hydrateFromRows(schema *Schema, graph QName, subject IRI, rows []ResultRow) (*Entity, error) {
	var prov Provenance
	rawByID := make(map[AttributeID][]any)

	for _, row := range rows {
		predTerm, ok := row.Term("predicate")
		if !ok || !predTerm.IsIRI() {
			continue
		}
		pred, ok := s.prefixes.Shrink(predTerm.Value)
		if !ok {
			continue
		}
		objTerm, ok := row.Term("object")
		if !ok {
			continue
		}

		if done, err := s.foldProvenance(&prov, pred, objTerm); done {
			if err != nil {
				return nil, err
			}
			continue
		}
		if pred == "rdf:type" {
			continue
		}

		desc, known := schema.ByExternal(pred)
		if !known {
			continue
		}
		rawByID[desc.ID] = append(rawByID[desc.ID], s.termToRaw(objTerm))
	}

	values := make(map[AttributeID]Value, len(rawByID))
	for _, desc := range schema.Attributes() {
		var raw any
		switch collected := rawByID[desc.ID]; {
		case desc.Load != nil:
			loaded, err := desc.Load(rows)
			if err != nil {
				return nil, fmt.Errorf("attribute %q: %w", desc.ID, err)
			}
			if loaded == nil {
				continue
			}
			raw = loaded
		case len(collected) == 0:
			continue
		case len(collected) == 1:
			raw = collected[0]
		default:
			raw = collected
		}

		v, err := desc.Coerce(raw)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", desc.ID, err)
		}
		values[desc.ID] = v
	}

	return Hydrate(schema, graph, subject, values, prov)
}

func (s *Store) foldProvenance(prov *Provenance, pred QName, term BoundTerm) (bool, error) {
	switch pred {
	case "dcterms:creator":
		prov.Creator = IRI(s.shrinkIRI(term.Value))
	case "dcterms:contributor":
		prov.Contributor = IRI(s.shrinkIRI(term.Value))
	case "dcterms:created":
		ts, err := ParseTimestamp(term.Value)
		if err != nil {
			return true, err
		}
		prov.Created = ts
	case "dcterms:modified":
		ts, err := ParseTimestamp(term.Value)
		if err != nil {
			return true, err
		}
		prov.Modified = ts
	default:
		return false, nil
	}

	return true, nil
}

// termToRaw converts one bound term into the raw form attribute coercion
// constructors accept.
func (s *Store) termToRaw(term BoundTerm) any {
	if term.IsIRI() {
		return s.shrinkIRI(term.Value)
	}

	return term.Value
}

// shrinkIRI prefers the prefixed name when a registered namespace matches.
func (s *Store) shrinkIRI(full string) string {
	if q, ok := s.prefixes.Shrink(full); ok {
		return string(q)
	}

	return full
}

func (s *Store) abortTransaction(ctx context.Context) {
	if !s.conn.InTransaction() {
		return
	}
	if err := s.conn.TransactionAbort(ctx); err != nil {
		s.logWarn(ctx, "transaction abort failed", logAttrError, err.Error())
	}
}

// RefreshCache stores the entity's committed state in the configured cache.
// Record types that enrich an entity after the generic load use it to keep
// the cached copy complete.
func (s *Store) RefreshCache(ctx context.Context, e *Entity) {
	s.refreshCache(ctx, e)
}

func (s *Store) refreshCache(ctx context.Context, e *Entity) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, e); err != nil {
		s.logWarn(ctx, "entity cache refresh failed", logAttrError, err.Error(), logAttrSubject, string(e.Subject()))
	}
}

func (s *Store) evictCache(ctx context.Context, subject IRI) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, subject); err != nil {
		s.logWarn(ctx, "entity cache eviction failed", logAttrError, err.Error(), logAttrSubject, string(subject))
	}
}

func (s *Store) failOperation(ctx context.Context, span SpanContext, operation, errorType string, start time.Time, err error) error {
	duration := time.Since(start)
	s.logError(ctx, "entitystore operation failed: "+operation, err, logAttrDurationMS, s.toMilliseconds(duration))
	s.recordDurationMetrics(ctx, duration, operation, statusForErrorType(errorType))
	s.recordErrorMetrics(ctx, operation, errorType)
	s.finishSpanError(span, errorType)

	return err
}

func (s *Store) succeedOperation(ctx context.Context, span SpanContext, operation string, start time.Time, e *Entity) error {
	duration := time.Since(start)
	s.logOperation(ctx, operation,
		logAttrSubject, string(e.Subject()),
		logAttrRecordType, e.Schema().TypeName(),
		logAttrDurationMS, s.toMilliseconds(duration))
	s.recordDurationMetrics(ctx, duration, operation, statusSuccess)
	s.finishSpanSuccess(span, duration)

	return nil
}

func statusForErrorType(errorType string) string {
	if errorType == errorTypeConflict {
		return statusConflict
	}

	return statusError
}
