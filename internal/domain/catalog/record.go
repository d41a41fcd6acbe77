package catalog

import (
	"github.com/zjrosen/catalog/internal/identity"
	"github.com/zjrosen/catalog/internal/storage"
)

// Record is an item belonging to exactly one Collection.
type Record struct {
	id         identity.ID
	collection identity.ID // owning Collection; Nil only before first assignment
	tag        storage.TypeTag
	location   storage.Location
	payload    map[string]any
	destroyed  bool
}

// NewRecord creates a Record from its stored form.
func NewRecord(loc storage.Location, asset *storage.Asset) *Record {
	r := &Record{location: loc}
	r.apply(asset)
	return r
}

func (r *Record) apply(asset *storage.Asset) {
	if asset == nil {
		return
	}
	r.id = asset.ID
	r.collection = asset.Collection
	r.tag = asset.Tag
	r.payload = asset.Payload
}

// ID returns the Record's Identifier.
func (r *Record) ID() identity.ID {
	return r.id
}

// Collection returns the Identifier of the owning Collection.
func (r *Record) Collection() identity.ID {
	return r.collection
}

// Tag returns the Record's type tag.
func (r *Record) Tag() storage.TypeTag {
	return r.tag
}

// Location returns where the Record is stored.
func (r *Record) Location() storage.Location {
	return r.location
}

// Payload returns the opaque domain fields.
func (r *Record) Payload() map[string]any {
	return r.payload
}

// Name returns payload["name"] when set, otherwise the location's base name.
func (r *Record) Name() string {
	return displayName(r.payload, r.location)
}

// IsDestroyed reports whether the backing asset was deleted.
func (r *Record) IsDestroyed() bool {
	return r == nil || r.destroyed
}

// AssignIdentifier gives an unassigned Record its first Identifier.
// Records that already have one must use RegenerateIdentifier.
func (r *Record) AssignIdentifier(id identity.ID) error {
	if !id.IsValid() {
		return ErrInvalidIdentifier
	}
	if r.id.IsValid() {
		return ErrUnsupportedMutation
	}
	r.id = id
	return nil
}

// RegenerateIdentifier replaces the Identifier wholesale and returns it.
func (r *Record) RegenerateIdentifier() identity.ID {
	r.id = identity.Regenerate(r.id)
	return r.id
}

// AttachTo sets the owner of a Record that has none yet.
func (r *Record) AttachTo(collection identity.ID) error {
	if !collection.IsValid() {
		return ErrInvalidIdentifier
	}
	if r.collection.IsValid() && r.collection != collection {
		return ErrOwnershipViolation
	}
	r.collection = collection
	return nil
}

// Asset returns the stored form of the Record.
func (r *Record) Asset() *storage.Asset {
	return &storage.Asset{
		Tag:        r.tag,
		ID:         r.id,
		Collection: r.collection,
		Payload:    r.payload,
	}
}

// Reimport refreshes the Record in place from a newly loaded asset so that
// existing handles observe the new content.
func (r *Record) Reimport(asset *storage.Asset) {
	r.apply(asset)
	r.destroyed = false
}

// Relocate records that the backing asset moved.
func (r *Record) Relocate(loc storage.Location) {
	r.location = loc
}

// Destroy marks the Record as deleted from storage.
func (r *Record) Destroy() {
	r.destroyed = true
}

func displayName(payload map[string]any, loc storage.Location) string {
	if name, ok := payload["name"].(string); ok && name != "" {
		return name
	}
	return loc.Base()
}
