package entitystore

import (
	"errors"
)

var ErrNilConnection = errors.New("nil store connection supplied")
var ErrUnknownAttribute = errors.New("attribute is not part of the schema")
var ErrDuplicateAttribute = errors.New("duplicate attribute in schema definition")
var ErrMissingMandatoryAttribute = errors.New("mandatory attribute is missing")
var ErrImmutableAttribute = errors.New("attribute is immutable once committed")
var ErrInvalidValue = errors.New("invalid attribute value")
var ErrInconsistentValue = errors.New("attribute value is inconsistent with the record state")
var ErrNotFound = errors.New("not found")
var ErrNoSuchKey = errors.New("no such key")
var ErrAlreadyExists = errors.New("record already exists")
var ErrNoPermission = errors.New("actor has no permission for this operation")
var ErrUpdateConflict = errors.New("update conflict, record was modified concurrently")
var ErrUpdateFailed = errors.New("update failed, written timestamp does not verify")
var ErrStoreFailed = errors.New("store request failed")
