package entitystore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func grantMapForTest() *ObservableMap[IRI, QName] {
	return NewObservableMap[IRI, QName]("adm:hasAdminPermission")
}

func Test_ObservableMap_RecordsCreate_When_NewKeyIsSet(t *testing.T) {
	// setup
	m := grantMapForTest()
	project := IRI("adm:HyperHamlet")

	// act
	m.Set(project, QName("adm:ADMIN_USERS"))

	// assert
	changeset := m.Changeset()
	require.Contains(t, changeset, project)
	assert.Equal(t, ActionCreate, changeset[project].Action)
	assert.Nil(t, changeset[project].Previous)
}

func Test_ObservableMap_RecordsReplace_WithPreviousSet_When_ExistingKeyIsSet(t *testing.T) {
	// setup
	m := grantMapForTest()
	project := IRI("adm:HyperHamlet")
	m.Seed(project, QName("adm:ADMIN_USERS"))

	// act
	m.Set(project, QName("adm:ADMIN_MODEL"))

	// assert
	changeset := m.Changeset()
	require.Contains(t, changeset, project)
	assert.Equal(t, ActionReplace, changeset[project].Action)
	require.NotNil(t, changeset[project].Previous)
	assert.True(t, changeset[project].Previous.Contains(QName("adm:ADMIN_USERS")))
}

func Test_ObservableMap_CascadesModify_When_ChildMutatedAfterCommit(t *testing.T) {
	// setup
	m := grantMapForTest()
	project := IRI("adm:HyperHamlet")
	m.Set(project, QName("adm:ADMIN_USERS"))
	m.ClearChangeset()
	notified := false
	m.SetNotifier(func() { notified = true })

	// act
	child, err := m.Get(project)
	require.NoError(t, err)
	child.Add(QName("adm:ADMIN_MODEL"))

	// assert
	changeset := m.Changeset()
	require.Contains(t, changeset, project)
	assert.Equal(t, ActionModify, changeset[project].Action)
	assert.True(t, notified)

	added, removed := child.DiffTermsRDF()
	assert.Equal(t, []string{"adm:ADMIN_MODEL"}, added)
	assert.Empty(t, removed)
}

func Test_ObservableMap_Delete_Fails_When_KeyAbsent(t *testing.T) {
	// setup
	m := grantMapForTest()

	// act
	err := m.Delete(IRI("adm:missing"))

	// assert
	assert.ErrorIs(t, err, ErrNoSuchKey)
	assert.Empty(t, m.Changeset())
}

func Test_ObservableMap_Delete_RecordsPreviousSet(t *testing.T) {
	// setup
	m := grantMapForTest()
	project := IRI("adm:HyperHamlet")
	m.Seed(project, QName("adm:ADMIN_USERS"), QName("adm:ADMIN_MODEL"))

	// act
	require.NoError(t, m.Delete(project))

	// assert
	changeset := m.Changeset()
	require.Contains(t, changeset, project)
	assert.Equal(t, ActionDelete, changeset[project].Action)
	assert.Equal(t, 2, changeset[project].Previous.Len())
	assert.False(t, m.Contains(project))
}

func Test_ObservableMap_ModifyStatements_TouchOnlyChangedAnnotations(t *testing.T) {
	// setup
	m := grantMapForTest()
	project := IRI("adm:HyperHamlet")
	m.Seed(project, QName("adm:ADMIN_USERS"))
	addr := Address{Graph: "adm:admin", Subject: IRI("urn:uuid:u1"), Predicate: "adm:inProject"}

	// act
	child, err := m.Get(project)
	require.NoError(t, err)
	child.Add(QName("adm:ADMIN_MODEL"))
	statements := m.MapStatements(addr, ActionModify, nil)

	// assert
	require.Len(t, statements, 1)
	assert.True(t, strings.HasPrefix(statements[0], "INSERT DATA"))
	assert.Contains(t, statements[0], "<<<urn:uuid:u1> adm:inProject adm:HyperHamlet>> adm:hasAdminPermission adm:ADMIN_MODEL .")
	assert.NotContains(t, statements[0], "adm:ADMIN_USERS")
}

func Test_ObservableMap_ModifyStatements_RemoveWholeKey_When_KeyDeleted(t *testing.T) {
	// setup
	m := grantMapForTest()
	project := IRI("adm:HyperHamlet")
	m.Seed(project, QName("adm:ADMIN_USERS"))
	addr := Address{Graph: "adm:admin", Subject: IRI("urn:uuid:u1"), Predicate: "adm:inProject"}

	// act
	require.NoError(t, m.Delete(project))
	statements := m.MapStatements(addr, ActionModify, nil)

	// assert
	require.Len(t, statements, 1)
	assert.True(t, strings.HasPrefix(statements[0], "DELETE DATA"))
	assert.Contains(t, statements[0], "<urn:uuid:u1> adm:inProject adm:HyperHamlet .")
	assert.Contains(t, statements[0], "<<<urn:uuid:u1> adm:inProject adm:HyperHamlet>> adm:hasAdminPermission adm:ADMIN_USERS .")
}

func Test_ObservableMap_NetsOutRecord_When_KeySetThenDeleted(t *testing.T) {
	// setup
	m := grantMapForTest()
	project := IRI("adm:HyperHamlet")
	addr := Address{Graph: "adm:admin", Subject: IRI("urn:uuid:u1"), Predicate: "adm:inProject"}

	// act
	m.Set(project, QName("adm:ADMIN_USERS"))
	require.NoError(t, m.Delete(project))

	// assert
	assert.Empty(t, m.Changeset())
	assert.Empty(t, m.MapStatements(addr, ActionModify, nil))
	assert.False(t, m.Contains(project))
}

func Test_ObservableMap_RecordsReplace_When_KeySetAfterDelete(t *testing.T) {
	// setup
	m := grantMapForTest()
	project := IRI("adm:HyperHamlet")
	m.Seed(project, QName("adm:ADMIN_USERS"))
	addr := Address{Graph: "adm:admin", Subject: IRI("urn:uuid:u1"), Predicate: "adm:inProject"}

	// act
	require.NoError(t, m.Delete(project))
	m.Set(project, QName("adm:ADMIN_MODEL"))
	statements := m.MapStatements(addr, ActionModify, nil)

	// assert
	changeset := m.Changeset()
	require.Contains(t, changeset, project)
	assert.Equal(t, ActionReplace, changeset[project].Action)
	require.NotNil(t, changeset[project].Previous)
	assert.True(t, changeset[project].Previous.Contains(QName("adm:ADMIN_USERS")))

	require.Len(t, statements, 2)
	assert.True(t, strings.HasPrefix(statements[0], "DELETE DATA"))
	assert.Contains(t, statements[0], "<<<urn:uuid:u1> adm:inProject adm:HyperHamlet>> adm:hasAdminPermission adm:ADMIN_USERS .")
	assert.True(t, strings.HasPrefix(statements[1], "INSERT DATA"))
	assert.Contains(t, statements[1], "<<<urn:uuid:u1> adm:inProject adm:HyperHamlet>> adm:hasAdminPermission adm:ADMIN_MODEL .")
	assert.NotContains(t, statements[0], "<urn:uuid:u1> adm:inProject adm:HyperHamlet .")
}

func Test_ObservableMap_RecordsReplace_WithLoadedContents_When_ModifiedKeyIsSet(t *testing.T) {
	// setup
	m := grantMapForTest()
	project := IRI("adm:HyperHamlet")
	m.Seed(project, QName("adm:ADMIN_USERS"))

	// act
	child, err := m.Get(project)
	require.NoError(t, err)
	child.Add(QName("adm:ADMIN_MODEL"))
	m.Set(project, QName("adm:ADMIN_PROJECTS"))

	// assert
	changeset := m.Changeset()
	require.Contains(t, changeset, project)
	assert.Equal(t, ActionReplace, changeset[project].Action)
	require.NotNil(t, changeset[project].Previous)
	assert.Equal(t, []string{"adm:ADMIN_USERS"}, changeset[project].Previous.TermsRDF())
}

func Test_ObservableMap_Equal_ComparesKeysAndContents(t *testing.T) {
	// setup
	left := grantMapForTest()
	left.Seed(IRI("adm:p1"), QName("adm:ADMIN_USERS"))
	right := grantMapForTest()
	right.Seed(IRI("adm:p1"), QName("adm:ADMIN_USERS"))
	other := grantMapForTest()
	other.Seed(IRI("adm:p1"), QName("adm:ADMIN_MODEL"))

	// assert
	assert.True(t, left.Equal(right))
	assert.False(t, left.Equal(other))
}
