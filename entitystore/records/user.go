package records

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/graphadm/entitystore-go/entitystore"
)

const userTypeName = "User"

// Attribute identities of the user record.
const (
	UserID             entitystore.AttributeID = "userId"
	UserFamilyName     entitystore.AttributeID = "familyName"
	UserGivenName      entitystore.AttributeID = "givenName"
	UserCredentials    entitystore.AttributeID = "credentials"
	UserIsActive       entitystore.AttributeID = "isActive"
	UserHasPermissions entitystore.AttributeID = "hasPermissions"
	UserInProject      entitystore.AttributeID = "inProject"
)

var userSchema = entitystore.NewSchema(userTypeName, "adm:User").
	Attribute(entitystore.Descriptor{
		ID: UserID, External: "adm:userId",
		Mandatory: true, Immutable: true, Coerce: coerceNCName,
	}).
	Attribute(entitystore.Descriptor{
		ID: UserFamilyName, External: "adm:familyName",
		Mandatory: true, Coerce: coerceText,
	}).
	Attribute(entitystore.Descriptor{
		ID: UserGivenName, External: "adm:givenName",
		Mandatory: true, Coerce: coerceText,
	}).
	Attribute(entitystore.Descriptor{
		ID: UserCredentials, External: "adm:credentials", Coerce: coerceCredentials,
	}).
	Attribute(entitystore.Descriptor{
		ID: UserIsActive, External: "adm:isActive", Coerce: coerceBoolean,
	}).
	Attribute(entitystore.Descriptor{
		ID: UserHasPermissions, External: "adm:hasPermissions", Coerce: coerceIRISet,
	}).
	Attribute(entitystore.Descriptor{
		ID: UserInProject, External: predInProject, Coerce: coerceGrantMap,
	}).
	DeleteStatements(userDeleteStatements).
	MustBuild()

// UserSchema returns the attribute table of the user record type.
func UserSchema() *entitystore.Schema {
	return userSchema
}

// User is a typed wrapper around the user entity.
type User struct {
	*entitystore.Entity
}

// NewUser constructs an uncommitted user with an empty grant map.
func NewUser(subject entitystore.IRI) (User, error) {
	e, err := entitystore.New(userSchema, AdminGraph, subject)
	if err != nil {
		return User{}, err
	}
	if err = e.Set(UserInProject, NewGrantMap()); err != nil {
		return User{}, err
	}

	return User{Entity: e}, nil
}

// AsUser wraps a loaded user entity.
func AsUser(e *entitystore.Entity) (User, error) {
	if e.Schema().TypeName() != userTypeName {
		return User{}, errors.Join(entitystore.ErrInvalidValue,
			fmt.Errorf("entity %s is a %s, not a user", e.Subject(), e.Schema().TypeName()))
	}

	return User{Entity: e}, nil
}

// Grants returns the user's per-project grant map, or nil before one is set.
func (u User) Grants() *GrantMap {
	if v, ok := u.Get(UserInProject); ok {
		return v.(*GrantMap)
	}

	return nil
}

// PermissionSets returns the permission set references, or nil when none
// are assigned.
func (u User) PermissionSets() *entitystore.ObservableSet[entitystore.IRI] {
	if v, ok := u.Get(UserHasPermissions); ok {
		return v.(*entitystore.ObservableSet[entitystore.IRI])
	}

	return nil
}

// IsActive reports whether the user may authenticate; unset counts as
// active.
func (u User) IsActive() bool {
	if v, ok := u.Get(UserIsActive); ok {
		return bool(v.(entitystore.Boolean))
	}

	return true
}

// SetPassword hashes and stores the given cleartext.
func (u User) SetPassword(cleartext string) error {
	return u.Set(UserCredentials, HashCredentials(cleartext))
}

// VerifyPassword checks a cleartext against the stored credentials.
func (u User) VerifyPassword(cleartext string) bool {
	v, ok := u.Get(UserCredentials)
	if !ok {
		return false
	}

	return string(v.(entitystore.Text)) == HashCredentials(cleartext)
}

// HashCredentials derives the stored form of a password. Credentials never
// reach the store in cleartext.
func HashCredentials(cleartext string) string {
	sum := sha256.Sum256([]byte(cleartext))
	return "sha256$" + hex.EncodeToString(sum[:])
}

// coerceCredentials accepts only already-hashed credentials.
func coerceCredentials(raw any) (entitystore.Value, error) {
	v, err := coerceText(raw)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(string(v.(entitystore.Text)), "sha256$") {
		return nil, errors.Join(entitystore.ErrInvalidValue,
			errors.New("credentials must be hashed, use SetPassword"))
	}

	return v, nil
}

// LoadUser reads one user including the grant annotations, which live in
// quoted triples the generic record query cannot see.
func LoadUser(ctx context.Context, store *entitystore.Store, subject entitystore.IRI) (User, error) {
	e, err := store.Load(ctx, userSchema, AdminGraph, subject)
	if err != nil {
		return User{}, err
	}
	u, err := AsUser(e)
	if err != nil {
		return User{}, err
	}
	if u.Grants() == nil || u.Grants().IsEmpty() {
		return u, nil
	}

	rs, err := store.Select(ctx, grantAnnotationsQuery(subject))
	if err != nil {
		return User{}, err
	}
	seedGrants(store, u.Grants(), rs)
	store.RefreshCache(ctx, u.Entity)

	return u, nil
}

// grantAnnotationsQuery reads the per-project permissions off the quoted
// membership triples.
func grantAnnotationsQuery(subject entitystore.IRI) string {
	return fmt.Sprintf(
		"SELECT ?project ?permission WHERE {\n    GRAPH %s {\n        <<%s %s ?project>> %s ?permission .\n    }\n}",
		AdminGraph, subject.RDF(), predInProject, predHasAdminPermission)
}

func seedGrants(store *entitystore.Store, gm *GrantMap, rs entitystore.ResultSet) {
	byProject := make(map[entitystore.IRI][]entitystore.QName)
	for _, row := range rs.Rows {
		projTerm, ok := row.Term("project")
		if !ok || !projTerm.IsIRI() {
			continue
		}
		permTerm, ok := row.Term("permission")
		if !ok || !permTerm.IsIRI() {
			continue
		}
		perm, ok := store.Prefixes().Shrink(permTerm.Value)
		if !ok {
			continue
		}
		proj := projTerm.Value
		if q, shrunk := store.Prefixes().Shrink(proj); shrunk {
			proj = string(q)
		}
		iri := entitystore.IRI(proj)
		byProject[iri] = append(byProject[iri], perm)
	}

	for project, perms := range byProject {
		gm.Seed(project, perms...)
	}
}

// SearchUsers finds user subjects by exact user ID.
func SearchUsers(ctx context.Context, store *entitystore.Store, userID entitystore.NCName) ([]entitystore.IRI, error) {
	var sb strings.Builder
	sb.WriteString("SELECT DISTINCT ?subject WHERE {\n")
	sb.WriteString(fmt.Sprintf("    GRAPH %s {\n", AdminGraph))
	sb.WriteString("        ?subject rdf:type adm:User .\n")
	if userID != "" {
		sb.WriteString(fmt.Sprintf("        ?subject adm:userId %s .\n", userID.RDF()))
	}
	sb.WriteString("    }\n}")

	rs, err := store.Select(ctx, sb.String())
	if err != nil {
		return nil, err
	}

	return subjectsOf(store, rs), nil
}

// userDeleteStatements removes the plain triples and the quoted grant
// annotations of a user record.
func userDeleteStatements(graph entitystore.QName, subject entitystore.IRI) []string {
	s := subject.RDF()
	annotations := fmt.Sprintf(
		"WITH %s\nDELETE {\n    <<%s %s ?project>> %s ?permission .\n}\nWHERE {\n    <<%s %s ?project>> %s ?permission .\n}",
		graph, s, predInProject, predHasAdminPermission, s, predInProject, predHasAdminPermission)
	plain := fmt.Sprintf(
		"WITH %s\nDELETE {\n    %s ?predicate ?object .\n}\nWHERE {\n    %s ?predicate ?object .\n}",
		graph, s, s)

	return []string{annotations, plain}
}
