// Package identity defines the 128-bit Identifier used as the stable,
// storage-independent key of every Record and Collection.
//
// An Identifier is two 64-bit halves. The all-zero value is the sentinel
// for "unassigned". Equality and ordering are structural; the canonical
// string form (8-4-4-4-12 lowercase hex) exists only for display and
// serialization and is never used for comparison.
package identity

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Identifier errors
var (
	ErrInvalidIdentifierFormat = errors.New("invalid identifier format")
)

// canonicalLen is the length of the 8-4-4-4-12 hex/hyphen form.
const canonicalLen = 36

// ID is an immutable 128-bit identifier.
type ID struct {
	hi uint64
	lo uint64
}

// Nil is the unassigned sentinel.
var Nil = ID{}

// New generates a fresh random Identifier.
func New() ID {
	for {
		id := FromBytes(uuid.New())
		// A random v4 UUID always carries version bits, but keep the
		// sentinel out of reach regardless of the source.
		if id.IsValid() {
			return id
		}
	}
}

// Regenerate returns a new Identifier to replace old. The old value is
// discarded and never handed out again by this process.
func Regenerate(old ID) ID {
	for {
		id := New()
		if id != old {
			return id
		}
	}
}

// FromParts builds an Identifier from its halves.
func FromParts(hi, lo uint64) ID {
	return ID{hi: hi, lo: lo}
}

// FromBytes builds an Identifier from 16 big-endian bytes.
func FromBytes(b [16]byte) ID {
	return ID{
		hi: binary.BigEndian.Uint64(b[:8]),
		lo: binary.BigEndian.Uint64(b[8:]),
	}
}

// Parts returns the high and low halves.
func (id ID) Parts() (hi, lo uint64) {
	return id.hi, id.lo
}

// Bytes returns the 16 big-endian bytes of the Identifier.
func (id ID) Bytes() [16]byte {
	var b [16]byte
	binary.BigEndian.PutUint64(b[:8], id.hi)
	binary.BigEndian.PutUint64(b[8:], id.lo)
	return b
}

// IsValid reports whether id is assigned (non-zero).
func (id ID) IsValid() bool {
	return id.hi != 0 || id.lo != 0
}

// IsZero reports whether id is the sentinel. It lets encoders honour
// omitempty on a struct with only unexported fields.
func (id ID) IsZero() bool {
	return !id.IsValid()
}

// Compare returns -1, 0 or +1 ordering a against b by (hi, lo).
func Compare(a, b ID) int {
	switch {
	case a.hi < b.hi:
		return -1
	case a.hi > b.hi:
		return 1
	case a.lo < b.lo:
		return -1
	case a.lo > b.lo:
		return 1
	default:
		return 0
	}
}

// Less reports whether id sorts before other.
func (id ID) Less(other ID) bool {
	return Compare(id, other) < 0
}

// String returns the canonical 8-4-4-4-12 form.
func (id ID) String() string {
	return uuid.UUID(id.Bytes()).String()
}

// Short returns the first eight hex digits, for log lines and tables.
func (id ID) Short() string {
	return id.String()[:8]
}

// Parse decodes the canonical string form. Only the exact 36-character
// hyphenated form is accepted.
func Parse(s string) (ID, error) {
	if len(s) != canonicalLen {
		return Nil, fmt.Errorf("%w: %q", ErrInvalidIdentifierFormat, s)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("%w: %q", ErrInvalidIdentifierFormat, s)
	}
	return FromBytes(u), nil
}

// MustParse is Parse that panics on error. Use only for constants and tests.
func MustParse(s string) ID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// MarshalText encodes the canonical form. The sentinel encodes as an empty
// string so unassigned assets serialize without a placeholder value.
func (id ID) MarshalText() ([]byte, error) {
	if !id.IsValid() {
		return []byte{}, nil
	}
	return []byte(id.String()), nil
}

// UnmarshalText decodes the canonical form; empty input yields Nil.
func (id *ID) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*id = Nil
		return nil
	}
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
