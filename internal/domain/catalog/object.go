package catalog

import (
	"github.com/zjrosen/catalog/internal/identity"
	"github.com/zjrosen/catalog/internal/storage"
)

// Object is what Records and Collections have in common as stored assets.
// The identifier enforcer works on Objects without caring which one it has.
type Object interface {
	ID() identity.ID
	Location() storage.Location
	AssignIdentifier(id identity.ID) error
	RegenerateIdentifier() identity.ID
	Asset() *storage.Asset
	Reimport(asset *storage.Asset)
	Relocate(loc storage.Location)
	Destroy()
	IsDestroyed() bool
}

var (
	_ Object = (*Record)(nil)
	_ Object = (*Collection)(nil)
)
