package records

import (
	"errors"
	"fmt"

	"github.com/graphadm/entitystore-go/entitystore"
)

// Authorize is the authorization rule set for the administrative record
// types, meant to be installed on the store with WithAuthorization.
//
// A grant of AdminSystem in the system project permits everything. Project
// records themselves can only be managed with that grant. Users can be
// managed with AdminUsers in a project the target user belongs to, and
// permission sets with AdminPermissionSets in their defining project. A
// user may always update their own credentials.
func Authorize(actor entitystore.Actor, op entitystore.Operation, e *entitystore.Entity) error {
	if op == entitystore.OpLoad {
		return nil
	}
	if actor.HasGrant(SystemProject, AdminSystem) {
		return nil
	}

	switch e.Schema().TypeName() {
	case projectTypeName:
		return deny(actor, op, e)

	case userTypeName:
		if op == entitystore.OpUpdate && actor.IRI == e.Subject() && onlyCredentialChanges(e) {
			return nil
		}
		if grantInUserProjects(actor, e, AdminUsers) {
			return nil
		}
		return deny(actor, op, e)

	case permissionSetTypeName:
		if scope, ok := e.Get(PermSetProject); ok {
			if actor.HasGrant(scope.(entitystore.IRI), AdminPermissionSets) {
				return nil
			}
		}
		return deny(actor, op, e)

	default:
		return deny(actor, op, e)
	}
}

// onlyCredentialChanges reports whether the open changeset touches nothing
// but the credentials attribute.
func onlyCredentialChanges(e *entitystore.Entity) bool {
	ids := e.Changeset().AttributeIDs()
	if len(ids) == 0 {
		return false
	}
	for _, id := range ids {
		if id != UserCredentials {
			return false
		}
	}

	return true
}

// grantInUserProjects reports whether the actor holds the permission in any
// project the target user belongs to.
func grantInUserProjects(actor entitystore.Actor, e *entitystore.Entity, permission entitystore.QName) bool {
	v, ok := e.Get(UserInProject)
	if !ok {
		return false
	}
	for _, project := range v.(*GrantMap).Keys() {
		if actor.HasGrant(project, permission) {
			return true
		}
	}

	return false
}

func deny(actor entitystore.Actor, op entitystore.Operation, e *entitystore.Entity) error {
	return errors.Join(entitystore.ErrNoPermission,
		fmt.Errorf("actor %s may not %s %s %s", actor.IRI, op, e.Schema().TypeName(), e.Subject()))
}
