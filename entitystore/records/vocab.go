// Package records defines the built-in administrative record types: projects,
// users and permission sets, together with the authorization rules tying
// them to the actor's grants.
package records

import (
	"github.com/graphadm/entitystore-go/entitystore"
)

// AdminNamespace is the vocabulary namespace of the administrative graph.
const AdminNamespace = "https://graphadm.org/admin#"

// AdminGraph is the named graph holding all administrative records.
const AdminGraph entitystore.QName = "adm:admin"

// SystemProject is the project every installation carries; grants scoped to
// it apply across all projects.
const SystemProject entitystore.IRI = "adm:SystemProject"

// Administrative permissions, granted per project through a user's grant map.
const (
	AdminSystem         entitystore.QName = "adm:ADMIN_SYSTEM"
	AdminUsers          entitystore.QName = "adm:ADMIN_USERS"
	AdminPermissionSets entitystore.QName = "adm:ADMIN_PERMISSION_SETS"
	AdminResources      entitystore.QName = "adm:ADMIN_RESOURCES"
	AdminModel          entitystore.QName = "adm:ADMIN_MODEL"
	AdminCreate         entitystore.QName = "adm:ADMIN_CREATE"
)

// Data permissions, granted to resources through permission sets.
const (
	DataView        entitystore.QName = "adm:DATA_VIEW"
	DataExtend      entitystore.QName = "adm:DATA_EXTEND"
	DataUpdate      entitystore.QName = "adm:DATA_UPDATE"
	DataDelete      entitystore.QName = "adm:DATA_DELETE"
	DataPermissions entitystore.QName = "adm:DATA_PERMISSIONS"
)

// Predicates of the user grant map.
const (
	predInProject          entitystore.QName = "adm:inProject"
	predHasAdminPermission entitystore.QName = "adm:hasAdminPermission"
)

// Prefixes returns the prefix map for the administrative vocabulary on top
// of the defaults.
func Prefixes() *entitystore.PrefixMap {
	p := entitystore.DefaultPrefixes()
	p.Register("adm", AdminNamespace)

	return p
}
