// Copyright 2014 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package session

import (
	"encoding/xml"

	"github.com/ogre-sync/infsync/syncerr"
	"github.com/ogre-sync/infsync/transport"
	"github.com/ogre-sync/infsync/usertable"
)

// Kind is the capability set a Session delegates to for everything the
// base protocol leaves open to extension: constructing a User record,
// emitting or accepting content items beyond sync-user, and handling
// ordinary (non-synchronization) frames once the session is Running.
//
// This is the Go shape of what the source material expressed as virtual
// method overrides on a session subclass (to_xml_sync, process_xml_sync,
// process_xml_run, user_new): a single interface passed in at
// construction, rather than a registered subclass.
type Kind interface {
	// NewUser is called once a sync-user frame's properties have been
	// decoded and validated, to produce the User record inserted into
	// the table. Implementations that only need the base properties can
	// return props unmodified.
	NewUser(props usertable.User) usertable.User

	// ExtraSyncItems returns any content items, beyond one sync-user per
	// table entry, that an outbound sync to peer should append before
	// sync-end. The base protocol returns none.
	ExtraSyncItems(s *Session, peer transport.Connection) []xml.TokenReader

	// ProcessSyncItem handles a content frame received during an inbound
	// sync that is not a sync-user element. The base protocol has no
	// other content items, so the default Kind rejects every frame here
	// with UnexpectedNode.
	ProcessSyncItem(s *Session, start xml.StartElement, r xml.TokenReader) error

	// ProcessRunFrame handles a frame from peer once the session is
	// Running: every frame except a sync-ack or sync-error from a peer
	// with a live outbound sync, which the Session consumes itself. The base
	// protocol has no run-time content of its own and ignores such
	// frames; a real document-editing session would dispatch operational
	// transform messages here.
	ProcessRunFrame(s *Session, peer transport.Connection, start xml.StartElement, r xml.TokenReader) error
}

// BaseKind implements Kind with the base protocol's behavior: no subclass
// attributes, no extra sync items, and no run-time content frames.
type BaseKind struct{}

// NewUser returns props unmodified.
func (BaseKind) NewUser(props usertable.User) usertable.User { return props }

// ExtraSyncItems returns nil; the base protocol synchronizes only users.
func (BaseKind) ExtraSyncItems(*Session, transport.Connection) []xml.TokenReader { return nil }

// ProcessSyncItem always fails; the base protocol has no content item
// besides sync-user.
func (BaseKind) ProcessSyncItem(_ *Session, start xml.StartElement, _ xml.TokenReader) error {
	e := syncerr.New(syncerr.UnexpectedNode)
	e.Text = "unexpected sync item: " + wireFrameName(start)
	return e
}

// ProcessRunFrame is a no-op; the base protocol defines no run-time
// content frames.
func (BaseKind) ProcessRunFrame(*Session, transport.Connection, xml.StartElement, xml.TokenReader) error {
	return nil
}
