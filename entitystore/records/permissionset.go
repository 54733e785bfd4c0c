package records

import (
	"context"
	"errors"
	"fmt"

	"github.com/graphadm/entitystore-go/entitystore"
)

const permissionSetTypeName = "PermissionSet"

// Attribute identities of the permission set record.
const (
	PermSetLabel   entitystore.AttributeID = "permSetLabel"
	PermSetComment entitystore.AttributeID = "permSetComment"
	PermSetGives   entitystore.AttributeID = "givesPermission"
	PermSetProject entitystore.AttributeID = "definedByProject"
)

var permissionSetSchema = entitystore.NewSchema(permissionSetTypeName, "adm:PermissionSet").
	Attribute(entitystore.Descriptor{
		ID: PermSetLabel, External: "rdfs:label",
		Mandatory: true, Coerce: coerceText,
	}).
	Attribute(entitystore.Descriptor{
		ID: PermSetComment, External: "rdfs:comment", Coerce: coerceText,
	}).
	Attribute(entitystore.Descriptor{
		ID: PermSetGives, External: "adm:givesPermission", Coerce: coerceQNameSet,
	}).
	Attribute(entitystore.Descriptor{
		ID: PermSetProject, External: "adm:definedByProject",
		Mandatory: true, Immutable: true, Coerce: coerceIRI,
	}).
	MustBuild()

// PermissionSetSchema returns the attribute table of the permission set
// record type.
func PermissionSetSchema() *entitystore.Schema {
	return permissionSetSchema
}

// PermissionSet is a typed wrapper around the permission set entity.
type PermissionSet struct {
	*entitystore.Entity
}

// NewPermissionSet constructs an uncommitted permission set scoped to a
// project.
func NewPermissionSet(subject entitystore.IRI, project entitystore.IRI) (PermissionSet, error) {
	e, err := entitystore.New(permissionSetSchema, AdminGraph, subject)
	if err != nil {
		return PermissionSet{}, err
	}
	if err = e.Set(PermSetProject, project); err != nil {
		return PermissionSet{}, err
	}

	return PermissionSet{Entity: e}, nil
}

// AsPermissionSet wraps a loaded permission set entity.
func AsPermissionSet(e *entitystore.Entity) (PermissionSet, error) {
	if e.Schema().TypeName() != permissionSetTypeName {
		return PermissionSet{}, errors.Join(entitystore.ErrInvalidValue,
			fmt.Errorf("entity %s is a %s, not a permission set", e.Subject(), e.Schema().TypeName()))
	}

	return PermissionSet{Entity: e}, nil
}

// Gives returns the granted data permissions, or nil when none are set.
func (ps PermissionSet) Gives() *entitystore.ObservableSet[entitystore.QName] {
	if v, ok := ps.Get(PermSetGives); ok {
		return v.(*entitystore.ObservableSet[entitystore.QName])
	}

	return nil
}

// Project returns the project this set is scoped to.
func (ps PermissionSet) Project() entitystore.IRI {
	if v, ok := ps.Get(PermSetProject); ok {
		return v.(entitystore.IRI)
	}

	return ""
}

// LoadPermissionSet reads one permission set from the administrative graph.
func LoadPermissionSet(ctx context.Context, store *entitystore.Store, subject entitystore.IRI) (PermissionSet, error) {
	e, err := store.Load(ctx, permissionSetSchema, AdminGraph, subject)
	if err != nil {
		return PermissionSet{}, err
	}

	return AsPermissionSet(e)
}
