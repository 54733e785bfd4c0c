package entitystore

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func coerceTestName(raw any) (Value, error) {
	switch v := raw.(type) {
	case NCName:
		return v, nil
	case string:
		return NewNCName(v)
	default:
		return nil, ErrInvalidValue
	}
}

func coerceTestText(raw any) (Value, error) {
	switch v := raw.(type) {
	case Text:
		return v, nil
	case string:
		return Text(v), nil
	default:
		return nil, ErrInvalidValue
	}
}

func coerceTestTags(raw any) (Value, error) {
	switch v := raw.(type) {
	case *ObservableSet[IRI]:
		return v, nil
	case string:
		return NewObservableSet(IRI(v)), nil
	case []any:
		items := make([]IRI, 0, len(v))
		for _, item := range v {
			items = append(items, IRI(item.(string)))
		}
		return NewObservableSet(items...), nil
	default:
		return nil, ErrInvalidValue
	}
}

func widgetSchema(t *testing.T) *Schema {
	t.Helper()

	return NewSchema("Widget", "adm:Widget").
		Attribute(Descriptor{ID: "name", External: "adm:name", Mandatory: true, Immutable: true, Coerce: coerceTestName}).
		Attribute(Descriptor{ID: "label", External: "rdfs:label", Coerce: coerceTestText}).
		Attribute(Descriptor{ID: "tags", External: "adm:tag", Coerce: coerceTestTags}).
		MustBuild()
}

func committedWidget(t *testing.T, values map[AttributeID]Value) *Entity {
	t.Helper()

	e, err := Hydrate(widgetSchema(t), "adm:admin", IRI("urn:uuid:w1"), values, Provenance{
		Creator:  IRI("urn:uuid:creator"),
		Created:  TimestampNow(),
		Modified: TimestampNow(),
	})
	require.NoError(t, err)

	return e
}

func Test_Entity_Set_IsNoOp_When_ValueIsEqual(t *testing.T) {
	// setup
	e := committedWidget(t, map[AttributeID]Value{"name": NCName("thing"), "label": Text("Thing")})

	// act
	err := e.Set("label", "Thing")

	// assert
	assert.NoError(t, err)
	assert.True(t, e.Changeset().IsEmpty())
}

func Test_Entity_Set_KeepsOriginalPrevious_When_SetRepeatedly(t *testing.T) {
	// setup
	e := committedWidget(t, map[AttributeID]Value{"name": NCName("thing"), "label": Text("v1")})

	// act
	require.NoError(t, e.Set("label", "v2"))
	require.NoError(t, e.Set("label", "v3"))

	// assert
	rec, ok := e.Changeset().Get("label")
	require.True(t, ok)
	assert.Equal(t, ActionReplace, rec.Action)
	assert.Equal(t, Text("v1"), rec.Previous)

	current, _ := e.Get("label")
	assert.Equal(t, Text("v3"), current)
	assert.Equal(t, 1, e.Changeset().Len())
}

func Test_Entity_Set_RecordsCreate_When_AttributeAbsent(t *testing.T) {
	// setup
	e := committedWidget(t, map[AttributeID]Value{"name": NCName("thing")})

	// act
	require.NoError(t, e.Set("label", "fresh"))

	// assert
	rec, ok := e.Changeset().Get("label")
	require.True(t, ok)
	assert.Equal(t, ActionCreate, rec.Action)
	assert.Nil(t, rec.Previous)
}

func Test_Entity_Set_Fails_When_UnknownAttribute(t *testing.T) {
	// setup
	e := committedWidget(t, map[AttributeID]Value{"name": NCName("thing")})

	// act
	err := e.Set("bogus", "x")

	// assert
	assert.ErrorIs(t, err, ErrUnknownAttribute)
}

func Test_Entity_Set_Fails_When_CoercionRejectsValue(t *testing.T) {
	// setup
	e, err := New(widgetSchema(t), "adm:admin", "")
	require.NoError(t, err)

	// act
	err = e.Set("name", "not a name")

	// assert
	assert.ErrorIs(t, err, ErrInvalidValue)
	assert.True(t, e.Changeset().IsEmpty())
}

func Test_Entity_ImmutableAttribute_BlocksChangesOnlyAfterCommit(t *testing.T) {
	// setup
	fresh, err := New(widgetSchema(t), "adm:admin", "")
	require.NoError(t, err)
	require.NoError(t, fresh.Set("name", "first"))

	// act + assert: before commit the value may still change
	assert.NoError(t, fresh.Set("name", "second"))

	// act + assert: after commit it is frozen
	committed := committedWidget(t, map[AttributeID]Value{"name": NCName("frozen")})
	assert.ErrorIs(t, committed.Set("name", "thawed"), ErrImmutableAttribute)
}

func Test_Entity_Delete_Fails_ForMandatoryAttribute(t *testing.T) {
	// setup
	e := committedWidget(t, map[AttributeID]Value{"name": NCName("thing")})

	// act
	err := e.Delete("name")

	// assert
	assert.ErrorIs(t, err, ErrMissingMandatoryAttribute)
	_, still := e.Get("name")
	assert.True(t, still)
}

func Test_Entity_Delete_RecordsPreviousValue(t *testing.T) {
	// setup
	e := committedWidget(t, map[AttributeID]Value{"name": NCName("thing"), "label": Text("Thing")})

	// act
	require.NoError(t, e.Delete("label"))

	// assert
	rec, ok := e.Changeset().Get("label")
	require.True(t, ok)
	assert.Equal(t, ActionDelete, rec.Action)
	assert.Equal(t, Text("Thing"), rec.Previous)
	_, exists := e.Get("label")
	assert.False(t, exists)
}

func Test_Entity_Delete_DropsRecord_When_AttributeWasSetInSameSession(t *testing.T) {
	// setup
	e := committedWidget(t, map[AttributeID]Value{"name": NCName("thing")})
	require.NoError(t, e.Set("label", "short lived"))

	// act
	require.NoError(t, e.Delete("label"))

	// assert
	assert.True(t, e.Changeset().IsEmpty())
	_, exists := e.Get("label")
	assert.False(t, exists)
}

func Test_Entity_Delete_KeepsOriginalPrevious_When_AttributeWasReplacedFirst(t *testing.T) {
	// setup
	e := committedWidget(t, map[AttributeID]Value{"name": NCName("thing"), "label": Text("v1")})
	require.NoError(t, e.Set("label", "v2"))

	// act
	require.NoError(t, e.Delete("label"))

	// assert
	rec, ok := e.Changeset().Get("label")
	require.True(t, ok)
	assert.Equal(t, ActionDelete, rec.Action)
	assert.Equal(t, Text("v1"), rec.Previous)
}

func Test_Entity_Delete_RecordsLoadedContents_When_ChildWasMutatedFirst(t *testing.T) {
	// setup
	tags := NewObservableSet(IRI("adm:t1"))
	e := committedWidget(t, map[AttributeID]Value{"name": NCName("thing"), "tags": tags})
	tags.Add(IRI("adm:t2"))

	// act
	require.NoError(t, e.Delete("tags"))

	// assert
	rec, ok := e.Changeset().Get("tags")
	require.True(t, ok)
	assert.Equal(t, ActionDelete, rec.Action)
	require.NotNil(t, rec.Previous)
	assert.Equal(t, []IRI{IRI("adm:t1")}, rec.Previous.(*ObservableSet[IRI]).Values())
}

func Test_Entity_Set_RecordsReplace_When_AttributeWasDeletedFirst(t *testing.T) {
	// setup
	e := committedWidget(t, map[AttributeID]Value{"name": NCName("thing"), "label": Text("v1")})
	require.NoError(t, e.Delete("label"))

	// act
	require.NoError(t, e.Set("label", "v2"))

	// assert
	rec, ok := e.Changeset().Get("label")
	require.True(t, ok)
	assert.Equal(t, ActionReplace, rec.Action)
	assert.Equal(t, Text("v1"), rec.Previous)
	current, _ := e.Get("label")
	assert.Equal(t, Text("v2"), current)
}

func Test_Entity_Set_NetsOutRecord_When_DeletedValueIsRestored(t *testing.T) {
	// setup
	e := committedWidget(t, map[AttributeID]Value{"name": NCName("thing"), "label": Text("v1")})
	require.NoError(t, e.Delete("label"))

	// act
	require.NoError(t, e.Set("label", "v1"))

	// assert
	assert.True(t, e.Changeset().IsEmpty())
	current, _ := e.Get("label")
	assert.Equal(t, Text("v1"), current)
}

func Test_Entity_Set_AppliesTransform_BeforeCoercion(t *testing.T) {
	// setup
	e, err := New(widgetSchema(t), "adm:admin", "")
	require.NoError(t, err)
	e.SetTransformFunc(func(_ *Entity, _ AttributeID, raw any) (any, error) {
		if s, ok := raw.(string); ok {
			return strings.TrimSpace(s), nil
		}
		return raw, nil
	})

	// act: the raw value only passes NCName coercion once trimmed
	err = e.Set("name", "  padded  ")

	// assert
	require.NoError(t, err)
	name, _ := e.Get("name")
	assert.Equal(t, NCName("padded"), name)
}

func Test_Entity_Set_Fails_When_TransformRejectsValue(t *testing.T) {
	// setup
	e, err := New(widgetSchema(t), "adm:admin", "")
	require.NoError(t, err)
	e.SetTransformFunc(func(_ *Entity, id AttributeID, _ any) (any, error) {
		return nil, errors.Join(ErrInvalidValue, fmt.Errorf("attribute %q cannot be resolved", id))
	})

	// act
	err = e.Set("name", "anything")

	// assert
	assert.ErrorIs(t, err, ErrInvalidValue)
	assert.True(t, e.Changeset().IsEmpty())
}

func Test_Entity_Validate_ReportsMissingMandatoryAttribute(t *testing.T) {
	// setup
	e, err := New(widgetSchema(t), "adm:admin", "")
	require.NoError(t, err)
	require.NoError(t, e.Set("label", "no name yet"))

	// act + assert
	assert.ErrorIs(t, e.Validate(), ErrMissingMandatoryAttribute)

	require.NoError(t, e.Set("name", "thing"))
	assert.NoError(t, e.Validate())
}

func Test_Entity_ChildMutation_RecordsModify_WithoutPreviousValue(t *testing.T) {
	// setup
	tags := NewObservableSet(IRI("adm:t1"))
	e := committedWidget(t, map[AttributeID]Value{"name": NCName("thing"), "tags": tags})

	// act
	tags.Add(IRI("adm:t2"))

	// assert
	rec, ok := e.Changeset().Get("tags")
	require.True(t, ok)
	assert.Equal(t, ActionModify, rec.Action)
	assert.Nil(t, rec.Previous)
}

func Test_Entity_Undo_RestoresLoadedState(t *testing.T) {
	// setup
	tags := NewObservableSet(IRI("adm:t1"))
	e := committedWidget(t, map[AttributeID]Value{
		"name": NCName("thing"), "label": Text("v1"), "tags": tags,
	})

	// act
	require.NoError(t, e.Set("label", "v2"))
	tags.Add(IRI("adm:t2"))
	e.Undo()

	// assert
	label, _ := e.Get("label")
	assert.Equal(t, Text("v1"), label)
	restored, _ := e.Get("tags")
	assert.Equal(t, []IRI{IRI("adm:t1")}, restored.(*ObservableSet[IRI]).Values())
	assert.True(t, e.Changeset().IsEmpty())
}

func Test_Entity_New_MintsURNSubject_When_SubjectEmpty(t *testing.T) {
	// setup
	e, err := New(widgetSchema(t), "adm:admin", "")

	// assert
	require.NoError(t, err)
	assert.Contains(t, string(e.Subject()), "urn:uuid:")
	assert.False(t, e.Committed())
}

func Test_Entity_ExportImport_RoundTripsCommittedState(t *testing.T) {
	// setup
	tags := NewObservableSet(IRI("adm:t1"), IRI("adm:t2"))
	e := committedWidget(t, map[AttributeID]Value{
		"name": NCName("thing"), "label": Text("Thing"), "tags": tags,
	})

	// act
	clone, err := e.Clone()

	// assert
	require.NoError(t, err)
	assert.Equal(t, e.Subject(), clone.Subject())
	assert.True(t, clone.Committed())

	name, _ := clone.Get("name")
	assert.Equal(t, NCName("thing"), name)
	cloneTags, _ := clone.Get("tags")
	assert.Equal(t, 2, cloneTags.(*ObservableSet[IRI]).Len())

	// the clone's containers are independent
	cloneTags.(*ObservableSet[IRI]).Add(IRI("adm:t3"))
	assert.Equal(t, 2, tags.Len())
	assert.True(t, e.Changeset().IsEmpty())
}

func Test_Schema_Build_Fails_OnDuplicateAttribute(t *testing.T) {
	// act
	_, err := NewSchema("Widget", "adm:Widget").
		Attribute(Descriptor{ID: "name", External: "adm:name", Coerce: coerceTestName}).
		Attribute(Descriptor{ID: "name", External: "adm:other", Coerce: coerceTestName}).
		Build()

	// assert
	assert.ErrorIs(t, err, ErrDuplicateAttribute)
}
