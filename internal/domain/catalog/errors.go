package catalog

import "errors"

// Domain errors
var (
	ErrInvalidIdentifier   = errors.New("identifier is not assigned")
	ErrOwnershipViolation  = errors.New("record belongs to a different collection")
	ErrUnsupportedMutation = errors.New("structural mutation not allowed on a read-only catalog")
	ErrIndexOutOfRange     = errors.New("index out of range")
	ErrNilRecord           = errors.New("record cannot be nil")
	ErrDuplicateRecord     = errors.New("record already in collection")
	ErrDestroyed           = errors.New("object has been destroyed")
	ErrDuplicateKind       = errors.New("type tag already registered")
	ErrUnknownKind         = errors.New("type tag is not registered")
)
