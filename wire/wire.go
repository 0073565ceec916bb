// Copyright 2014 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

// Package wire defines the XML elements exchanged during synchronization:
// sync-begin, sync-user, sync-end, sync-ack, sync-cancel, and sync-error.
//
// Every element is an xmlstream.TokenReader so it can be written directly
// to a transport.Group, the same shape as the teacher's roster.Item.
package wire // import "github.com/ogre-sync/infsync/wire"

import (
	"encoding/xml"
	"strconv"

	"mellium.im/xmlstream"

	"github.com/ogre-sync/infsync/internal/attr"
	"github.com/ogre-sync/infsync/internal/ns"
	"github.com/ogre-sync/infsync/usertable"
)

// Begin is the sync-begin frame that opens an inbound sync, carrying the
// number of content items (not counting sync-begin or sync-end itself)
// that will follow.
type Begin struct {
	NumMessages uint64
}

// TokenReader returns the XML encoding of b.
func (b Begin) TokenReader() xml.TokenReader {
	return xmlstream.Wrap(nil, xml.StartElement{
		Name: xml.Name{Space: ns.Sync, Local: "sync-begin"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "num-messages"}, Value: strconv.FormatUint(b.NumMessages, 10)},
		},
	})
}

// WriteXML implements xmlstream.WriterTo.
func (b Begin) WriteXML(w xmlstream.TokenWriter) (int, error) {
	return xmlstream.Copy(w, b.TokenReader())
}

// ParseBegin extracts NumMessages from a sync-begin start element. ok is
// false if num-messages is absent or unparseable.
func ParseBegin(start xml.StartElement) (n uint64, ok bool) {
	idx, v := attr.Get(start.Attr, "num-messages")
	if idx < 0 {
		return 0, false
	}
	parsed, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

// End is the sync-end frame that closes the content stream.
type End struct{}

// TokenReader returns the XML encoding of End.
func (End) TokenReader() xml.TokenReader {
	return xmlstream.Wrap(nil, xml.StartElement{Name: xml.Name{Space: ns.Sync, Local: "sync-end"}})
}

// WriteXML implements xmlstream.WriterTo.
func (e End) WriteXML(w xmlstream.TokenWriter) (int, error) {
	return xmlstream.Copy(w, e.TokenReader())
}

// Ack is the sync-ack frame that acknowledges a completed sync.
type Ack struct{}

// TokenReader returns the XML encoding of Ack.
func (Ack) TokenReader() xml.TokenReader {
	return xmlstream.Wrap(nil, xml.StartElement{Name: xml.Name{Space: ns.Sync, Local: "sync-ack"}})
}

// WriteXML implements xmlstream.WriterTo.
func (a Ack) WriteXML(w xmlstream.TokenWriter) (int, error) {
	return xmlstream.Copy(w, a.TokenReader())
}

// Cancel is the sync-cancel frame by which the sender aborts a sync.
type Cancel struct{}

// TokenReader returns the XML encoding of Cancel.
func (Cancel) TokenReader() xml.TokenReader {
	return xmlstream.Wrap(nil, xml.StartElement{Name: xml.Name{Space: ns.Sync, Local: "sync-cancel"}})
}

// WriteXML implements xmlstream.WriterTo.
func (c Cancel) WriteXML(w xmlstream.TokenWriter) (int, error) {
	return xmlstream.Copy(w, c.TokenReader())
}

// User is one content item of an inbound sync: a sync-user frame carrying
// a user's properties.
type User struct {
	Props usertable.User
}

// TokenReader returns the XML encoding of u, with its attributes built by
// usertable.EncodeProps, which writes id, name and status explicitly and
// appends u.Props.Attrs as they are; the User type's fields are not
// inspected by reflection.
func (u User) TokenReader() xml.TokenReader {
	return xmlstream.Wrap(nil, xml.StartElement{
		Name: xml.Name{Space: ns.Sync, Local: "sync-user"},
		Attr: usertable.EncodeProps(&u.Props),
	})
}

// WriteXML implements xmlstream.WriterTo.
func (u User) WriteXML(w xmlstream.TokenWriter) (int, error) {
	return xmlstream.Copy(w, u.TokenReader())
}

// IsSyncElement reports whether local names a frame of the synchronization
// vocabulary this package defines.
func IsSyncElement(local string) bool {
	switch local {
	case "sync-begin", "sync-user", "sync-end", "sync-ack", "sync-cancel", "sync-error":
		return true
	}
	return false
}
