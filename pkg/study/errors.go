package study

import "errors"

// Stable error kinds. Callers match with errors.Is; the transport layer maps
// them onto status codes. Messages must not reveal whether an entity exists
// when the requester lacks permission on it.
var (
	ErrNotFound          = errors.New("not found")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrMalformedInput    = errors.New("malformed input")
	ErrStorageFailure    = errors.New("storage failure")
	ErrIntegrityConflict = errors.New("integrity conflict")
)

// errFieldNotAccessible is used both when a field does not exist and when it
// exists but the requester has no permission on it, so the two cases cannot
// be told apart.
const errFieldNotAccessible = "field does not exist or is not accessible"
