// Copyright 2014 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

// Package usertable holds the per-session roster of participants and the
// codec that reads and writes a participant's properties on the wire.
//
// A User's id and name are unique within a Table; Add enforces this the
// same way a roster entry's JID uniquely identifies it in the
// teacher's roster package, except here the Table — not the directory
// service — is the source of truth.
package usertable // import "github.com/ogre-sync/infsync/usertable"

import (
	"encoding/xml"
	"strconv"
	"sync"

	"github.com/ogre-sync/infsync/syncerr"
)

// Status is a User's availability.
type Status int

// Recognized values of Status.
const (
	Unavailable Status = iota
	Available
)

// String implements fmt.Stringer.
func (s Status) String() string {
	if s == Available {
		return "available"
	}
	return "unavailable"
}

// ParseStatus parses the wire representation of a status attribute.
func ParseStatus(s string) (Status, bool) {
	switch s {
	case "available":
		return Available, true
	case "unavailable":
		return Unavailable, true
	default:
		return 0, false
	}
}

// User is one participant in a session. Attrs carries any subclass-defined
// properties (for example the textuser package's caret/selection/hue) that
// the base codec does not itself interpret.
type User struct {
	ID     uint64
	Name   string
	Status Status
	Attrs  []xml.Attr
}

// Table is a session's roster of users, keyed by id and by name. The zero
// value is an empty table ready to use.
type Table struct {
	mu      sync.Mutex
	byID    map[uint64]*User
	byName  map[string]*User
}

// NewTable returns an empty Table.
func NewTable() *Table {
	return &Table{
		byID:   make(map[uint64]*User),
		byName: make(map[string]*User),
	}
}

func (t *Table) init() {
	if t.byID == nil {
		t.byID = make(map[uint64]*User)
		t.byName = make(map[string]*User)
	}
}

// Lookup returns the user with the given id, or nil if none exists.
func (t *Table) Lookup(id uint64) *User {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.init()
	return t.byID[id]
}

// LookupName returns the user with the given name, or nil if none exists.
func (t *Table) LookupName(name string) *User {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.init()
	return t.byName[name]
}

// Validate checks u's id and name for uniqueness against the table,
// ignoring any entry identical to exclude (used by update paths so a user
// can keep its own id/name). It returns IdInUse or NameInUse on collision.
func (t *Table) Validate(u *User, exclude *User) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.init()
	if existing, ok := t.byID[u.ID]; ok && existing != exclude {
		return syncerr.New(syncerr.IdInUse)
	}
	if existing, ok := t.byName[u.Name]; ok && existing != exclude {
		return syncerr.New(syncerr.NameInUse)
	}
	return nil
}

// Add validates and inserts u into the table.
func (t *Table) Add(u *User) error {
	if err := t.Validate(u, nil); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.init()
	t.byID[u.ID] = u
	t.byName[u.Name] = u
	return nil
}

// Each calls f once for every user in the table. Order is unspecified.
func (t *Table) Each(f func(*User)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.init()
	for _, u := range t.byID {
		f(u)
	}
}

// Len returns the number of users in the table.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byID)
}

// DecodeProps parses the recognized id/name/status attributes of a
// sync-user element into a User. Any other attribute is preserved
// verbatim in Attrs for a subclass codec to interpret. Missing id or name
// is not reported here — Decode never fails; Validate reports IdNotPresent
// / NameNotPresent at validation time, per the wire format's deferred
// validation policy.
func DecodeProps(attrs []xml.Attr) (u User, hasID, hasName bool) {
	for _, a := range attrs {
		switch a.Name.Local {
		case "id":
			n, err := strconv.ParseUint(a.Value, 10, 64)
			if err != nil {
				continue
			}
			u.ID = n
			hasID = true
		case "name":
			u.Name = a.Value
			hasName = true
		case "status":
			if st, ok := ParseStatus(a.Value); ok {
				u.Status = st
			}
		default:
			u.Attrs = append(u.Attrs, a)
		}
	}
	return u, hasID, hasName
}

// Validate reports IdNotPresent / NameNotPresent if a required attribute
// was missing from the decoded property list, then falls through to a
// uniqueness check against table.
func Validate(table *Table, u User, hasID, hasName bool, exclude *User) error {
	if !hasID {
		return syncerr.New(syncerr.IdNotPresent)
	}
	if !hasName {
		return syncerr.New(syncerr.NameNotPresent)
	}
	return table.Validate(&User{ID: u.ID, Name: u.Name}, exclude)
}

// EncodeProps returns the XML attributes for u: id, name, status, followed
// by any subclass-defined attributes carried in u.Attrs.
func EncodeProps(u *User) []xml.Attr {
	attrs := make([]xml.Attr, 0, 3+len(u.Attrs))
	attrs = append(attrs,
		xml.Attr{Name: xml.Name{Local: "id"}, Value: strconv.FormatUint(u.ID, 10)},
		xml.Attr{Name: xml.Name{Local: "name"}, Value: u.Name},
		xml.Attr{Name: xml.Name{Local: "status"}, Value: u.Status.String()},
	)
	attrs = append(attrs, u.Attrs...)
	return attrs
}
