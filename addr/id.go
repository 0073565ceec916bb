// Copyright 2014 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

// Package addr provides canonical, comparable identifiers for the groups and
// connections a session synchronizes over.
//
// Unlike a network address, an ID carries no routing information; it is an
// opaque label (a group name, a display name for a peer) that two ends of a
// synchronization need to agree refers to the same thing. IDs are compared
// after Unicode normalization so that visually identical group or connection
// names can't be used to impersonate one another.
package addr // import "github.com/ogre-sync/infsync/addr"

import (
	"encoding/xml"
	"errors"
	"unicode/utf8"

	"golang.org/x/text/secure/precis"
)

// ErrInvalidUTF8 is returned when an ID is constructed from a string that is
// not valid UTF-8.
var ErrInvalidUTF8 = errors.New("addr: string is not valid UTF-8")

// ID is an opaque, canonicalized identifier for a group or a connection.
// The zero value is not a valid ID; use Parse or MustParse to construct one.
type ID struct {
	s string
}

// Parse canonicalizes s as an opaque identifier using the PRECIS
// OpaqueString profile (RFC 8265), which maps non-ASCII spaces to ASCII
// space and applies NFC normalization, and rejects strings containing
// unassigned code points or bidirectional control characters. The profile
// does no case or width mapping, so the resulting form is compared case- and
// width-sensitively.
func Parse(s string) (ID, error) {
	if !utf8.ValidString(s) {
		return ID{}, ErrInvalidUTF8
	}
	if s == "" {
		return ID{}, errors.New("addr: identifier must not be empty")
	}
	norm, err := precis.OpaqueString.String(s)
	if err != nil {
		return ID{}, err
	}
	return ID{s: norm}, nil
}

// MustParse is like Parse except that it panics on error. It is intended for
// use in tests and in package-level variable initialization where the input
// is a compile-time constant known to be valid.
func MustParse(s string) ID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// String returns the canonical string form of the identifier.
func (id ID) String() string {
	return id.s
}

// IsZero reports whether id is the zero value.
func (id ID) IsZero() bool {
	return id.s == ""
}

// Equal reports whether id and other identify the same group or connection.
// Because both are canonicalized on construction, this is a simple value
// comparison.
func (id ID) Equal(other ID) bool {
	return id.s == other.s
}

// MarshalXMLAttr satisfies xml.MarshalerAttr.
func (id ID) MarshalXMLAttr(name xml.Name) (xml.Attr, error) {
	return xml.Attr{Name: name, Value: id.s}, nil
}

// UnmarshalXMLAttr satisfies xml.UnmarshalerAttr.
func (id *ID) UnmarshalXMLAttr(attr xml.Attr) error {
	parsed, err := Parse(attr.Value)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
