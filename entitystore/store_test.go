package entitystore_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphadm/entitystore-go/entitystore"
	"github.com/graphadm/entitystore-go/testutil/storedouble"
)

const testNamespace = "https://graphadm.org/admin#"

func testPrefixes() *entitystore.PrefixMap {
	p := entitystore.DefaultPrefixes()
	p.Register("adm", testNamespace)

	return p
}

func coerceName(raw any) (entitystore.Value, error) {
	switch v := raw.(type) {
	case entitystore.NCName:
		return v, nil
	case string:
		return entitystore.NewNCName(v)
	default:
		return nil, entitystore.ErrInvalidValue
	}
}

func coerceLabel(raw any) (entitystore.Value, error) {
	switch v := raw.(type) {
	case entitystore.Text:
		return v, nil
	case string:
		return entitystore.Text(v), nil
	default:
		return nil, entitystore.ErrInvalidValue
	}
}

func coerceTags(raw any) (entitystore.Value, error) {
	switch v := raw.(type) {
	case *entitystore.ObservableSet[entitystore.IRI]:
		return v, nil
	case string:
		return entitystore.NewObservableSet(entitystore.IRI(v)), nil
	case []any:
		items := make([]entitystore.IRI, 0, len(v))
		for _, item := range v {
			items = append(items, entitystore.IRI(item.(string)))
		}
		return entitystore.NewObservableSet(items...), nil
	default:
		return nil, entitystore.ErrInvalidValue
	}
}

func widgetSchema() *entitystore.Schema {
	return entitystore.NewSchema("Widget", "adm:Widget").
		Attribute(entitystore.Descriptor{ID: "name", External: "adm:name", Mandatory: true, Immutable: true, Coerce: coerceName}).
		Attribute(entitystore.Descriptor{ID: "label", External: "rdfs:label", Coerce: coerceLabel}).
		Attribute(entitystore.Descriptor{ID: "tags", External: "adm:tag", Coerce: coerceTags}).
		MustBuild()
}

func newTestStore(t *testing.T, conn *storedouble.FakeConnection, options ...entitystore.Option) *entitystore.Store {
	t.Helper()

	options = append(options, entitystore.WithPrefixes(testPrefixes()))
	store, err := entitystore.NewStore(conn, options...)
	require.NoError(t, err)

	return store
}

func committedWidgetEntity(t *testing.T, loaded entitystore.Timestamp) *entitystore.Entity {
	t.Helper()

	e, err := entitystore.Hydrate(widgetSchema(), "adm:admin", entitystore.IRI("urn:uuid:w1"),
		map[entitystore.AttributeID]entitystore.Value{
			"name":  entitystore.NCName("thing"),
			"label": entitystore.Text("v1"),
		},
		entitystore.Provenance{
			Creator:     entitystore.IRI("urn:uuid:creator"),
			Created:     loaded,
			Contributor: entitystore.IRI("urn:uuid:creator"),
			Modified:    loaded,
		})
	require.NoError(t, err)

	return e
}

var modifiedTimestampPattern = regexp.MustCompile(`dcterms:modified "([^"]+)"\^\^xsd:dateTime`)

// echoWrittenModified answers the verification read with the timestamp the
// store wrote in its last update, which the test cannot know up front.
func echoWrittenModified(t *testing.T, conn *storedouble.FakeConnection) {
	t.Helper()

	conn.OnQuery = func(_ string) entitystore.ResultSet {
		require.NotEmpty(t, conn.Updates)
		matches := modifiedTimestampPattern.FindAllStringSubmatch(conn.Updates[len(conn.Updates)-1].Body, -1)
		require.GreaterOrEqual(t, len(matches), 2, "update must delete the old and insert the new timestamp")

		written, err := entitystore.ParseTimestamp(matches[1][1])
		require.NoError(t, err)

		return storedouble.ModifiedResult(written)
	}
}

func Test_Store_Create_WritesWholeRecordInOneTransaction(t *testing.T) {
	// setup
	conn := storedouble.NewFakeConnection(entitystore.Actor{IRI: "urn:uuid:admin"})
	conn.QueueResult(storedouble.EmptyResult())
	store := newTestStore(t, conn)

	e, err := entitystore.New(widgetSchema(), "adm:admin", "")
	require.NoError(t, err)
	require.NoError(t, e.Set("name", "thing"))
	require.NoError(t, e.Set("label", "Thing"))

	// act
	err = store.Create(context.Background(), e)

	// assert
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "commit"}, conn.TxOps)
	assert.True(t, e.Committed())
	assert.True(t, e.Changeset().IsEmpty())
	assert.Equal(t, entitystore.IRI("urn:uuid:admin"), e.Provenance().Creator)

	require.Len(t, conn.Updates, 1)
	body := conn.Updates[0].Body
	assert.Contains(t, body, "INSERT DATA")
	assert.Contains(t, body, "rdf:type adm:Widget")
	assert.Contains(t, body, `adm:name "thing"^^xsd:NCName`)
	assert.Contains(t, body, "dcterms:creator <urn:uuid:admin>")
	assert.Contains(t, body, "PREFIX adm: <"+testNamespace+">")
}

func Test_Store_Create_Fails_When_RecordExists(t *testing.T) {
	// setup
	conn := storedouble.NewFakeConnection(entitystore.Actor{IRI: "urn:uuid:admin"})
	conn.QueueResult(storedouble.ModifiedResult(entitystore.TimestampNow()))
	store := newTestStore(t, conn)

	e, err := entitystore.New(widgetSchema(), "adm:admin", "urn:uuid:w1")
	require.NoError(t, err)
	require.NoError(t, e.Set("name", "thing"))

	// act
	err = store.Create(context.Background(), e)

	// assert
	assert.ErrorIs(t, err, entitystore.ErrAlreadyExists)
	assert.Equal(t, []string{"start", "abort"}, conn.TxOps)
	assert.False(t, e.Committed())
	assert.Empty(t, conn.Updates)
}

func Test_Store_Create_Fails_When_MandatoryAttributeMissing(t *testing.T) {
	// setup
	conn := storedouble.NewFakeConnection(entitystore.Actor{IRI: "urn:uuid:admin"})
	store := newTestStore(t, conn)

	e, err := entitystore.New(widgetSchema(), "adm:admin", "")
	require.NoError(t, err)
	require.NoError(t, e.Set("label", "no name"))

	// act
	err = store.Create(context.Background(), e)

	// assert
	assert.ErrorIs(t, err, entitystore.ErrMissingMandatoryAttribute)
	assert.Empty(t, conn.TxOps, "validation must fail before any statement is sent")
}

func Test_Store_Update_CommitsChangeset_AndClearsIt(t *testing.T) {
	// setup
	loaded := entitystore.TimestampNow()
	conn := storedouble.NewFakeConnection(entitystore.Actor{IRI: "urn:uuid:editor"})
	conn.QueueResult(storedouble.ModifiedResult(loaded))
	echoWrittenModified(t, conn)
	store := newTestStore(t, conn)

	e := committedWidgetEntity(t, loaded)
	require.NoError(t, e.Set("label", "v2"))

	// act
	err := store.Update(context.Background(), e)

	// assert
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "commit"}, conn.TxOps)
	assert.True(t, e.Changeset().IsEmpty())
	assert.Equal(t, entitystore.IRI("urn:uuid:editor"), e.Provenance().Contributor)
	assert.False(t, e.Provenance().Modified.Equal(loaded))

	require.Len(t, conn.Updates, 1)
	body := conn.Updates[0].Body
	assert.Contains(t, body, `DELETE {
    <urn:uuid:w1> rdfs:label "v1" .
}`)
	assert.Contains(t, body, `INSERT {
    <urn:uuid:w1> rdfs:label "v2" .
}`)
	assert.Contains(t, body, "dcterms:contributor <urn:uuid:editor>")
}

func Test_Store_Update_IgnoresAttribute_When_SetAndDeletedInSameSession(t *testing.T) {
	// setup
	loaded := entitystore.TimestampNow()
	conn := storedouble.NewFakeConnection(entitystore.Actor{IRI: "urn:uuid:editor"})
	conn.QueueResult(storedouble.ModifiedResult(loaded))
	echoWrittenModified(t, conn)
	store := newTestStore(t, conn)

	e := committedWidgetEntity(t, loaded)
	require.NoError(t, e.Set("tags", "adm:t1"))
	require.NoError(t, e.Delete("tags"))
	require.NoError(t, e.Set("label", "v2"))

	// act
	err := store.Update(context.Background(), e)

	// assert
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "commit"}, conn.TxOps)

	require.Len(t, conn.Updates, 1)
	body := conn.Updates[0].Body
	assert.NotContains(t, body, "adm:tag", "a value set and deleted in one session must not be committed")
	assert.Contains(t, body, `rdfs:label "v2"`)
}

func Test_Store_Update_ReturnsConflict_AndKeepsChangeset_When_TimestampMismatches(t *testing.T) {
	// setup
	loaded := entitystore.TimestampNow()
	someoneElse := entitystore.NewTimestamp(loaded.Time.Add(time.Second))
	conn := storedouble.NewFakeConnection(entitystore.Actor{IRI: "urn:uuid:editor"})
	conn.QueueResult(storedouble.ModifiedResult(someoneElse))
	store := newTestStore(t, conn)

	e := committedWidgetEntity(t, loaded)
	require.NoError(t, e.Set("label", "v2"))

	// act
	err := store.Update(context.Background(), e)

	// assert
	assert.ErrorIs(t, err, entitystore.ErrUpdateConflict)
	assert.Equal(t, []string{"start", "abort"}, conn.TxOps)
	assert.Empty(t, conn.Updates, "no statement may run once the guard fails")
	assert.Equal(t, 1, e.Changeset().Len(), "the changeset survives a conflict for replay")

	current, _ := e.Get("label")
	assert.Equal(t, entitystore.Text("v2"), current)
}

func Test_Store_Update_ReportsUpdateFailed_When_VerificationMismatches(t *testing.T) {
	// setup
	loaded := entitystore.TimestampNow()
	conn := storedouble.NewFakeConnection(entitystore.Actor{IRI: "urn:uuid:editor"})
	conn.QueueResult(storedouble.ModifiedResult(loaded))
	// the verification read still sees the old timestamp
	conn.OnQuery = func(_ string) entitystore.ResultSet {
		return storedouble.ModifiedResult(loaded)
	}
	store := newTestStore(t, conn)

	e := committedWidgetEntity(t, loaded)
	require.NoError(t, e.Set("label", "v2"))

	// act
	err := store.Update(context.Background(), e)

	// assert
	assert.ErrorIs(t, err, entitystore.ErrUpdateFailed)
	assert.Equal(t, []string{"start", "commit"}, conn.TxOps)
}

func Test_Store_Update_IsNoOp_When_ChangesetEmpty(t *testing.T) {
	// setup
	conn := storedouble.NewFakeConnection(entitystore.Actor{IRI: "urn:uuid:editor"})
	store := newTestStore(t, conn)
	e := committedWidgetEntity(t, entitystore.TimestampNow())

	// act
	err := store.Update(context.Background(), e)

	// assert
	assert.NoError(t, err)
	assert.Empty(t, conn.TxOps)
	assert.Empty(t, conn.Queries)
}

func Test_Store_Delete_RemovesRecord_WithTimestampGuard(t *testing.T) {
	// setup
	loaded := entitystore.TimestampNow()
	conn := storedouble.NewFakeConnection(entitystore.Actor{IRI: "urn:uuid:admin"})
	conn.QueueResult(storedouble.ModifiedResult(loaded))
	store := newTestStore(t, conn)
	e := committedWidgetEntity(t, loaded)

	// act
	err := store.Delete(context.Background(), e)

	// assert
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "commit"}, conn.TxOps)
	assert.False(t, e.Committed())

	require.Len(t, conn.Updates, 1)
	assert.Contains(t, conn.Updates[0].Body, "<urn:uuid:w1> ?predicate ?object .")
}

func Test_Store_Delete_ReturnsConflict_When_RecordChangedMeanwhile(t *testing.T) {
	// setup
	loaded := entitystore.TimestampNow()
	conn := storedouble.NewFakeConnection(entitystore.Actor{IRI: "urn:uuid:admin"})
	conn.QueueResult(storedouble.ModifiedResult(entitystore.NewTimestamp(loaded.Time.Add(time.Second))))
	store := newTestStore(t, conn)
	e := committedWidgetEntity(t, loaded)

	// act
	err := store.Delete(context.Background(), e)

	// assert
	assert.ErrorIs(t, err, entitystore.ErrUpdateConflict)
	assert.Equal(t, []string{"start", "abort"}, conn.TxOps)
	assert.True(t, e.Committed())
}

func Test_Store_Load_FoldsRowsIntoTypedEntity(t *testing.T) {
	// setup
	created := entitystore.TimestampNow()
	conn := storedouble.NewFakeConnection(entitystore.Actor{IRI: "urn:uuid:reader"})
	conn.QueueResult(storedouble.RecordResult(
		storedouble.PredicateRow("http://www.w3.org/1999/02/22-rdf-syntax-ns#type", storedouble.URITerm(testNamespace+"Widget")),
		storedouble.PredicateRow("http://purl.org/dc/terms/creator", storedouble.URITerm("urn:uuid:creator")),
		storedouble.PredicateRow("http://purl.org/dc/terms/created", storedouble.LiteralTerm(created.String(), "")),
		storedouble.PredicateRow("http://purl.org/dc/terms/contributor", storedouble.URITerm("urn:uuid:creator")),
		storedouble.PredicateRow("http://purl.org/dc/terms/modified", storedouble.LiteralTerm(created.String(), "")),
		storedouble.PredicateRow(testNamespace+"name", storedouble.LiteralTerm("thing", "")),
		storedouble.PredicateRow("http://www.w3.org/2000/01/rdf-schema#label", storedouble.LiteralTerm("Thing", "")),
		storedouble.PredicateRow(testNamespace+"tag", storedouble.URITerm(testNamespace+"t1")),
		storedouble.PredicateRow(testNamespace+"tag", storedouble.URITerm(testNamespace+"t2")),
	))
	store := newTestStore(t, conn)

	// act
	e, err := store.Load(context.Background(), widgetSchema(), "adm:admin", "urn:uuid:w1")

	// assert
	require.NoError(t, err)
	assert.True(t, e.Committed())
	assert.True(t, e.Provenance().Modified.Equal(created))

	name, _ := e.Get("name")
	assert.Equal(t, entitystore.NCName("thing"), name)
	label, _ := e.Get("label")
	assert.Equal(t, entitystore.Text("Thing"), label)
	tags, _ := e.Get("tags")
	assert.Equal(t,
		[]entitystore.IRI{"adm:t1", "adm:t2"},
		tags.(*entitystore.ObservableSet[entitystore.IRI]).Values())
}

func Test_Store_Load_ReturnsNotFound_When_RecordMissing(t *testing.T) {
	// setup
	conn := storedouble.NewFakeConnection(entitystore.Actor{IRI: "urn:uuid:reader"})
	conn.QueueResult(storedouble.EmptyResult())
	store := newTestStore(t, conn)

	// act
	_, err := store.Load(context.Background(), widgetSchema(), "adm:admin", "urn:uuid:missing")

	// assert
	assert.ErrorIs(t, err, entitystore.ErrNotFound)
}

func Test_Store_Load_ServesFromCache_UnlessBypassed(t *testing.T) {
	// setup
	loaded := entitystore.TimestampNow()
	cache := entitystore.NewMemoryCache()
	require.NoError(t, cache.Set(context.Background(), committedWidgetEntity(t, loaded)))

	conn := storedouble.NewFakeConnection(entitystore.Actor{IRI: "urn:uuid:reader"})
	store := newTestStore(t, conn, entitystore.WithCache(cache))

	// act: cache hit
	e, err := store.Load(context.Background(), widgetSchema(), "adm:admin", "urn:uuid:w1")

	// assert
	require.NoError(t, err)
	assert.Empty(t, conn.Queries, "a cache hit must not reach the endpoint")
	assert.True(t, e.Provenance().Modified.Equal(loaded))

	// act: bypass forces a fresh read
	conn.QueueResult(storedouble.EmptyResult())
	_, err = store.Load(entitystore.WithCacheBypass(context.Background()), widgetSchema(), "adm:admin", "urn:uuid:w1")

	// assert
	assert.ErrorIs(t, err, entitystore.ErrNotFound)
	assert.Len(t, conn.Queries, 1)
}

func Test_Store_Authorization_BlocksOperation_BeforeAnyStatement(t *testing.T) {
	// setup
	conn := storedouble.NewFakeConnection(entitystore.Actor{IRI: "urn:uuid:nobody"})
	store := newTestStore(t, conn, entitystore.WithAuthorization(
		func(actor entitystore.Actor, op entitystore.Operation, e *entitystore.Entity) error {
			return entitystore.ErrNoPermission
		}))

	e, err := entitystore.New(widgetSchema(), "adm:admin", "")
	require.NoError(t, err)
	require.NoError(t, e.Set("name", "thing"))

	// act
	err = store.Create(context.Background(), e)

	// assert
	assert.ErrorIs(t, err, entitystore.ErrNoPermission)
	assert.Empty(t, conn.TxOps)
	assert.Empty(t, conn.Updates)
}

func Test_NewStore_Fails_OnNilConnection(t *testing.T) {
	_, err := entitystore.NewStore(nil)
	assert.ErrorIs(t, err, entitystore.ErrNilConnection)
}
