// Copyright 2014 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

// Package textuser is a demonstration extension of the base synchronization
// protocol for a plain-text collaborative document: it adds a caret
// position, a selection length, and a cursor hue to every user, the way
// libinfinity's inf-text-user.c extends the base user type for its text
// buffer implementation.
//
// This package is additive. The session package has no dependency on it;
// a caller that doesn't need cursor presence can use session.BaseKind and
// never import textuser at all.
package textuser // import "github.com/ogre-sync/infsync/textuser"

import (
	"bytes"
	"encoding/xml"
	"strconv"

	"github.com/ogre-sync/infsync/internal/attr"
	"github.com/ogre-sync/infsync/internal/marshal"
	"github.com/ogre-sync/infsync/session"
	"github.com/ogre-sync/infsync/usertable"
)

// Props is the subclass-defined attribute set inf-text-user.c registers as
// GObject properties: a user's caret position, the length and direction
// of its current selection (negative means the selection extends toward
// the beginning of the document), and the hue of the color used to render
// its cursor to other participants.
type Props struct {
	Caret     uint64  `xml:"caret,attr"`
	Selection int64   `xml:"selection,attr"`
	Hue       float64 `xml:"hue,attr"`
}

// Attrs encodes p as the three sync-user attributes a textuser.Kind adds
// on top of the base id/name/status triple. Encoding is driven by the
// struct tags above through internal/marshal, the same reflection-based
// path the teacher's packages use for anything richer than a hand-rolled
// string join.
func (p Props) Attrs() []xml.Attr {
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	start := xml.StartElement{Name: xml.Name{Local: "props"}}
	if err := marshal.EncodeXMLElement(enc, p, start); err != nil {
		return nil
	}
	dec := xml.NewDecoder(&buf)
	tok, err := dec.Token()
	if err != nil {
		return nil
	}
	se, ok := tok.(xml.StartElement)
	if !ok {
		return nil
	}
	return se.Attr
}

// ParseProps decodes the caret/selection/hue attributes out of attrs. Any
// attribute absent or unparseable is left at its zero value; textuser
// never rejects a sync-user for a malformed extension attribute, only for
// the base id/name properties the core codec already validates.
func ParseProps(attrs []xml.Attr) Props {
	var p Props
	if _, v := attr.Get(attrs, "caret"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			p.Caret = n
		}
	}
	if _, v := attr.Get(attrs, "selection"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			p.Selection = n
		}
	}
	if _, v := attr.Get(attrs, "hue"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			p.Hue = f
		}
	}
	return p
}

// Kind implements session.Kind for a plain-text collaborative document.
// It adds no content items beyond the base sync-user vocabulary and no
// run-time frames of its own: the caret/selection/hue extension rides
// entirely on the attributes the base codec already preserves verbatim in
// usertable.User.Attrs.
type Kind struct {
	session.BaseKind
}

// NewUser normalizes a decoded user's extension attributes by
// round-tripping them through Props, so that a malformed caret/selection/
// hue value a peer sent is replaced with its zero value rather than
// propagated verbatim.
func (Kind) NewUser(u usertable.User) usertable.User {
	u.Attrs = ParseProps(u.Attrs).Attrs()
	return u
}

// NewTable returns an empty usertable.Table, exposed here only so callers
// that only ever touch textuser users don't need to import usertable
// directly for the common case.
func NewTable() *usertable.Table { return usertable.NewTable() }

var _ session.Kind = Kind{}

// Set updates peer's caret, selection and hue, replacing whatever extension
// attributes it previously carried in the session's user table. It is the
// run-time counterpart of the attributes synchronized at join time: it
// does not touch the wire by itself, leaving the caller (a higher-level,
// out-of-scope session-proxy) to decide whether and how to broadcast the
// change to subscribers, e.g. via Session.SendToSubscriptions.
func Set(table *usertable.Table, id uint64, p Props) bool {
	u := table.Lookup(id)
	if u == nil {
		return false
	}
	u.Attrs = p.Attrs()
	return true
}

// Get returns peer's current caret/selection/hue, or the zero Props if
// peer is not in table or carries no recognized extension attributes.
func Get(table *usertable.Table, id uint64) Props {
	u := table.Lookup(id)
	if u == nil {
		return Props{}
	}
	return ParseProps(u.Attrs)
}
