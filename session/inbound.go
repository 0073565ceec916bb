// Copyright 2014 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package session

import (
	"encoding/xml"

	"github.com/ogre-sync/infsync/syncerr"
	"github.com/ogre-sync/infsync/transport"
	"github.com/ogre-sync/infsync/usertable"
	"github.com/ogre-sync/infsync/wire"
)

// InboundSync is the receiver-side synchronization record that exists for
// the lifetime of a Session's Synchronizing state. It accepts a framed
// stream begin(num-messages=N), item_1 .. item_N, end from conn and
// rejects any frame from a different connection — see Session.HandleFrame
// for the "dropped on the floor" handling of frames from elsewhere while
// still Synchronizing.
type InboundSync struct {
	conn  transport.Connection
	group transport.Group
	watch func()

	m uint64 // expected message count, valid once r > 0
	r uint64 // received count, 0 means begin not yet received

	closing  bool
	released bool
}

func newInboundSync(s *Session, g transport.Group, conn transport.Connection) *InboundSync {
	in := &InboundSync{conn: conn, group: g}
	if g != nil {
		g.Ref()
		in.watch = s.watchConnection(g, conn, func() {
			s.failInbound(syncerr.New(syncerr.ConnectionClosed))
		})
	}
	return in
}

// handleFrame implements the per-frame table from the receiver role:
// sync-cancel at any time, sync-begin only when r == 0, sync-end only when
// r == m-1, and any other recognized content frame delegated to the
// user-property codec or to the Kind's ProcessSyncItem.
func (in *InboundSync) handleFrame(s *Session, start xml.StartElement, r xml.TokenReader) error {
	switch start.Name.Local {
	case "sync-cancel":
		// SenderCancelled is surfaced but no sync-error is returned: the
		// peer that cancelled already knows.
		s.failInbound(syncerr.New(syncerr.SenderCancelled))
		return nil

	case "sync-begin":
		if in.r != 0 {
			return in.fail(s, syncerr.New(syncerr.UnexpectedBeginOfSync))
		}
		n, ok := wire.ParseBegin(start)
		if !ok {
			return in.fail(s, syncerr.New(syncerr.NumMessagesMissing))
		}
		in.m = n + 2
		in.r = 1
		s.h.OnSyncProgress(in.conn, float64(in.r)/float64(in.m))
		return nil

	case "sync-end":
		if in.r != in.m-1 {
			return in.fail(s, syncerr.New(syncerr.UnexpectedEndOfSync))
		}
		in.r++
		if in.group != nil {
			if err := in.group.SendToConnection(in.conn, wire.Ack{}.TokenReader()); err != nil {
				return in.fail(s, syncerr.New(syncerr.ConnectionClosed))
			}
		}
		s.completeInbound()
		return nil

	default:
		return in.handleContentFrame(s, start, r)
	}
}

func (in *InboundSync) handleContentFrame(s *Session, start xml.StartElement, r xml.TokenReader) error {
	if in.r == 0 {
		return in.fail(s, syncerr.New(syncerr.ExpectedBeginOfSync))
	}
	if in.r == in.m-1 {
		return in.fail(s, syncerr.New(syncerr.ExpectedEndOfSync))
	}

	var err error
	switch start.Name.Local {
	case "sync-user":
		err = in.processSyncUser(s, start)
	default:
		err = s.kind.ProcessSyncItem(s, start, r)
	}
	if err != nil {
		return in.fail(s, err)
	}

	in.r++
	s.h.OnSyncProgress(in.conn, float64(in.r)/float64(in.m))
	return nil
}

func (in *InboundSync) processSyncUser(s *Session, start xml.StartElement) error {
	props, hasID, hasName := usertable.DecodeProps(start.Attr)
	if err := usertable.Validate(s.users, props, hasID, hasName, nil); err != nil {
		return err
	}
	rec := s.kind.NewUser(props)
	return s.users.Add(&rec)
}

// fail constructs the taxonomy error, sends a sync-error frame to the
// synchronizer, then surfaces synchronization-failed. Used for every
// violation except sync-cancel.
func (in *InboundSync) fail(s *Session, err error) error {
	se, ok := err.(*syncerr.Error)
	if !ok {
		se = syncerr.New(syncerr.Failed)
	}
	if in.group != nil {
		_ = in.group.SendToConnection(in.conn, se.TokenReader())
	}
	s.failInbound(se)
	return err
}

// failInbound is the default synchronization-failed handler for the
// inbound record: if not already failing or closing (guards against
// recursion with Close), mark closing, surface the event, and drive the
// session the rest of the way to Closed.
func (s *Session) failInbound(err error) {
	in := s.in
	if in == nil || in.closing {
		return
	}
	in.closing = true
	s.h.OnSyncFailed(in.conn, err)
	s.Close()
}

// completeInbound is the default synchronization-complete handler for the
// inbound record: release the connection, transition to Running with an
// empty outbound roster.
func (s *Session) completeInbound() {
	in := s.in
	if in == nil {
		return
	}
	in.release()
	peer := in.conn
	s.in = nil
	s.status = Running
	s.h.OnSyncComplete(peer)
}

// release drops the record's held references exactly once, regardless of
// how many paths (failure, completion, session close) lead to it.
func (in *InboundSync) release() {
	if in.released {
		return
	}
	in.released = true
	if in.watch != nil {
		in.watch()
	}
	if in.group != nil {
		in.group.Unref()
	}
}

// sessionClosing is InboundSync's contribution to Session.Close. If a
// failure already marked the record as closing (the Close call arrived by
// way of failInbound), the notification has already happened and this
// only needs to release. Otherwise this is an explicit, externally
// requested close: reject the in-progress sync with ReceiverCancelled
// before releasing, as the receiver is the one giving up.
func (in *InboundSync) sessionClosing(s *Session) {
	if !in.closing {
		in.closing = true
		se := syncerr.New(syncerr.ReceiverCancelled)
		if in.group != nil {
			_ = in.group.SendToConnection(in.conn, se.TokenReader())
		}
		s.h.OnSyncFailed(in.conn, se)
	}
	in.release()
}
