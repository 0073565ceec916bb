// Copyright 2014 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package session

import (
	"encoding/xml"
	"errors"

	"github.com/ogre-sync/infsync/syncerr"
	"github.com/ogre-sync/infsync/transport"
	"github.com/ogre-sync/infsync/usertable"
	"github.com/ogre-sync/infsync/wire"
)

// Errors returned by Session.SynchronizeTo's precondition checks.
var (
	ErrNotRunning     = errors.New("session: synchronize-to requires a Running session")
	ErrSyncInProgress = errors.New("session: an outbound synchronization to this peer is already in progress")
	ErrNotGroupMember = errors.New("session: peer is not a member of the group")
)

// outboundStatus is the inner two-state machine of an OutboundSync.
type outboundStatus int

const (
	// InProgress is the cancellable phase: frames are still being sent
	// and sync-end has not yet been handed to the transport.
	InProgress outboundStatus = iota
	// AwaitingAck is the committed phase, entered once sync-end is
	// enqueued. Cancellation is no longer possible; the record waits for
	// sync-ack or a transport failure.
	AwaitingAck
)

// String implements fmt.Stringer.
func (s outboundStatus) String() string {
	if s == AwaitingAck {
		return "AwaitingAck"
	}
	return "InProgress"
}

// OutboundSync is the sender-side roster entry for one peer a Running
// session is synchronizing to.
type OutboundSync struct {
	conn  transport.Connection
	group transport.Group
	watch func()

	total uint64 // T = K + 2
	sent  uint64 // s

	status   outboundStatus
	released bool
}

// SynchronizeTo begins synchronizing the Session's current user table (plus
// any Kind-defined extra items) to peer over g. Preconditions: the Session
// is Running, peer has no synchronization already in progress, and peer is
// a member of g.
func (s *Session) SynchronizeTo(g transport.Group, peer transport.Connection) error {
	if s.status != Running {
		return ErrNotRunning
	}
	if _, exists := s.out[peer]; exists {
		return ErrSyncInProgress
	}
	if !g.HasConnection(peer) {
		return ErrNotGroupMember
	}

	var items []xml.TokenReader
	s.users.Each(func(u *usertable.User) {
		items = append(items, wire.User{Props: *u}.TokenReader())
	})
	items = append(items, s.kind.ExtraSyncItems(s, peer)...)
	k := uint64(len(items))

	o := &OutboundSync{
		conn:   peer,
		group:  g,
		total:  k + 2,
		status: InProgress,
	}
	g.Ref()
	o.watch = g.Watch(transport.Callbacks{
		FrameEnqueued: func(c transport.Connection, start xml.StartElement) {
			if c != peer {
				return
			}
			if start.Name.Local == "sync-end" {
				o.status = AwaitingAck
			}
		},
		FrameSent: func(c transport.Connection, start xml.StartElement) {
			if c != peer {
				return
			}
			o.sent++
			s.h.OnSyncProgress(peer, float64(o.sent)/float64(o.total))
		},
		ConnectionStatusChanged: func(c transport.Connection, status transport.Status) {
			if c != peer {
				return
			}
			if status == transport.StatusClosed || status == transport.StatusClosing {
				s.outboundConnectionLost(peer)
			}
		},
	})
	s.out[peer] = o

	if err := g.SendToConnection(peer, wire.Begin{NumMessages: k}.TokenReader()); err != nil {
		s.retireOutbound(peer, syncerr.New(syncerr.ConnectionClosed))
		return err
	}
	for _, item := range items {
		if err := g.SendToConnection(peer, item); err != nil {
			s.retireOutbound(peer, syncerr.New(syncerr.ConnectionClosed))
			return err
		}
	}
	if err := g.SendToConnection(peer, wire.End{}.TokenReader()); err != nil {
		s.retireOutbound(peer, syncerr.New(syncerr.ConnectionClosed))
		return err
	}
	return nil
}

// handleAck is invoked when a sync-ack frame arrives from src during
// Running state. Completion is declared only once the record has reached
// AwaitingAck; an ack arriving any earlier is a protocol anomaly and is
// ignored rather than crashing the session.
func (o *OutboundSync) handleAck(s *Session, src transport.Connection) error {
	if o.status != AwaitingAck {
		return nil
	}
	peer := o.conn
	o.release()
	delete(s.out, peer)
	s.h.OnSyncComplete(peer)
	return nil
}

// handleError is invoked when a sync-error frame arrives from src during
// Running state: drop any frames still queued for the peer, decode the
// taxonomy error, and retire the record.
func (o *OutboundSync) handleError(s *Session, src transport.Connection, start xml.StartElement, r xml.TokenReader) error {
	se := syncerr.Decode(start, r)
	if o.group != nil {
		_ = o.group.ClearQueue(o.conn)
	}
	peer := o.conn
	o.release()
	delete(s.out, peer)
	s.h.OnSyncFailed(peer, se)
	return nil
}

// outboundConnectionLost is the connection-lifetime watcher's callback for
// an outbound record. An InProgress record is still cancellable, so it is
// withdrawn the same way an explicit close withdraws it (clear queue, send
// sync-cancel, fail with ReceiverCancelled). An AwaitingAck record is past
// that point; the transport loss itself is the failure, reported as
// ConnectionClosed with no cancel frame sent.
func (s *Session) outboundConnectionLost(peer transport.Connection) {
	o, ok := s.out[peer]
	if !ok {
		return
	}
	if o.status == InProgress {
		if o.group != nil {
			_ = o.group.ClearQueue(peer)
			_ = o.group.SendToConnection(peer, wire.Cancel{}.TokenReader())
		}
		s.retireOutbound(peer, syncerr.New(syncerr.ReceiverCancelled))
		return
	}
	s.retireOutbound(peer, syncerr.New(syncerr.ConnectionClosed))
}

// retireOutbound is the shared synchronization-failed path for an outbound
// record: release its references, drop it from the roster, then notify.
func (s *Session) retireOutbound(peer transport.Connection, err error) {
	o, ok := s.out[peer]
	if !ok {
		return
	}
	o.release()
	delete(s.out, peer)
	s.h.OnSyncFailed(peer, err)
}

// release drops the record's held references exactly once.
func (o *OutboundSync) release() {
	if o.released {
		return
	}
	o.released = true
	if o.watch != nil {
		o.watch()
	}
	if o.group != nil {
		o.group.Unref()
	}
}

// closeForSessionClose is OutboundSync's contribution to Session.Close.
// Every remaining record is resolved as ReceiverCancelled, whether or not
// it was still cancellable: an InProgress record has its queue cleared and
// a sync-cancel sent first, since the remote end does not yet know the
// transfer is being abandoned. An AwaitingAck record has already committed
// its sync-end, so the remote will still receive the full sync regardless
// — there is nothing left to cancel on the wire — but the local record is
// still resolved and released here, since Close must leave no references
// held (spec invariant: no group/connection reference outlives Close).
func (o *OutboundSync) closeForSessionClose(s *Session) {
	if o.status == InProgress && o.group != nil {
		_ = o.group.ClearQueue(o.conn)
		_ = o.group.SendToConnection(o.conn, wire.Cancel{}.TokenReader())
	}
	s.h.OnSyncFailed(o.conn, syncerr.New(syncerr.ReceiverCancelled))
	o.release()
}
