// Copyright 2014 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

// Package session implements the collaborative session synchronization
// protocol: a Session is a small state machine (Synchronizing, Running,
// Closed) that either receives an initial snapshot from a synchronizer
// connection or, once Running, streams that snapshot out to newly joined
// peers.
//
// A Session never dials a connection, authenticates a peer, or persists
// its buffer; those are the caller's concerns, reached only through the
// transport.Group/transport.Connection interfaces and the Buffer this
// package is configured with.
package session // import "github.com/ogre-sync/infsync/session"

import (
	"encoding/xml"

	"github.com/ogre-sync/infsync/addr"
	"github.com/ogre-sync/infsync/internal/attr"
	"github.com/ogre-sync/infsync/transport"
	"github.com/ogre-sync/infsync/usertable"
	"github.com/ogre-sync/infsync/wire"
)

// Status is a Session's top-level state.
type Status int

// Recognized values of Status.
const (
	// Synchronizing is the initial state of a Session constructed with a
	// sync source: it is receiving an inbound snapshot.
	Synchronizing Status = iota
	// Running is a Session's steady state: it may synchronize outbound
	// to any number of peers and accepts ordinary session traffic.
	Running
	// Closed is terminal. A Closed session performs no further I/O.
	Closed
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case Synchronizing:
		return "Synchronizing"
	case Running:
		return "Running"
	case Closed:
		return "Closed"
	default:
		return "Status(?)"
	}
}

// Buffer is the opaque document content container supplied by the caller.
// This package only calls Clear on it, once, when a Session is constructed
// in Synchronizing state; it does not otherwise read from or write to the
// buffer during an inbound or outbound sync.
type Buffer interface {
	// Clear discards any content already held, in preparation for a
	// fresh inbound sync.
	Clear()
}

// Handler receives the Session's observable events: close,
// synchronization-progress, synchronization-complete, and
// synchronization-failed. OnClose, OnSyncProgress and OnSyncComplete are
// invoked after the Session's own state has been updated, as is
// OnSyncFailed for an outbound record retired by a remote sync-error or a
// transport failure. OnSyncFailed for the inbound sync, and for outbound
// records resolved by Close, is invoked first, before the record is
// released and before the Session reaches Closed.
type Handler interface {
	// OnClose is called exactly once, when the Session transitions to
	// Closed.
	OnClose()
	// OnSyncProgress is called as frames of a sync to or from peer are
	// accounted for. fraction is monotonically non-decreasing per peer
	// and lies in [0, 1].
	OnSyncProgress(peer transport.Connection, fraction float64)
	// OnSyncComplete is called once a sync to or from peer has finished
	// successfully.
	OnSyncComplete(peer transport.Connection)
	// OnSyncFailed is called once a sync to or from peer has failed, for
	// any reason including cancellation and transport loss.
	OnSyncFailed(peer transport.Connection, err error)
}

// NopHandler implements Handler by ignoring every event.
type NopHandler struct{}

func (NopHandler) OnClose()                                            {}
func (NopHandler) OnSyncProgress(transport.Connection, float64)        {}
func (NopHandler) OnSyncComplete(transport.Connection)                 {}
func (NopHandler) OnSyncFailed(transport.Connection, error)            {}

// Config carries a Session's construction-time options.
type Config struct {
	// Buffer is the content container; see the Buffer type for what the
	// Session does with it. May be nil if the Kind in use has no document
	// content of its own.
	Buffer Buffer

	// UserTable is a preexisting roster to start from. If nil, a new
	// empty table is created.
	UserTable *usertable.Table

	// SyncConnection, if set, causes the Session to start in
	// Synchronizing state, receiving its initial snapshot from this
	// connection.
	SyncConnection transport.Connection

	// SyncGroup is the group in which an inbound sync runs. Required
	// when SyncConnection is set.
	SyncGroup transport.Group

	// SubscriptionGroup is the optional multicast handle through which a
	// Running session broadcasts live traffic to its subscribers.
	SubscriptionGroup transport.Group

	// Kind supplies the capability set for content framing beyond the
	// base sync-user vocabulary. If nil, BaseKind{} is used.
	Kind Kind

	// Handler receives the Session's events. If nil, events are
	// dropped.
	Handler Handler
}

// Session is the protocol state machine described in the package doc.
type Session struct {
	status Status
	kind   Kind
	h      Handler

	buffer Buffer
	users  *usertable.Table

	subGroup transport.Group

	in  *InboundSync
	out map[transport.Connection]*OutboundSync
}

// New constructs a Session per cfg. If cfg.SyncConnection is set, the
// Session starts Synchronizing and begins watching that connection's
// status; otherwise it starts Running with an empty (or supplied) user
// table.
func New(cfg Config) *Session {
	kind := cfg.Kind
	if kind == nil {
		kind = BaseKind{}
	}
	h := cfg.Handler
	if h == nil {
		h = NopHandler{}
	}
	users := cfg.UserTable
	if users == nil {
		users = usertable.NewTable()
	}

	s := &Session{
		kind:     kind,
		h:        h,
		buffer:   cfg.Buffer,
		users:    users,
		subGroup: cfg.SubscriptionGroup,
		out:      make(map[transport.Connection]*OutboundSync),
	}

	if cfg.SyncConnection != nil {
		if s.buffer != nil {
			s.buffer.Clear()
		}
		s.status = Synchronizing
		s.in = newInboundSync(s, cfg.SyncGroup, cfg.SyncConnection)
	} else {
		s.status = Running
	}
	return s
}

// NewSyncGroupID returns a fresh, random group identifier, the same way
// the teacher mints a random stanza id (attr.RandomID) for each outgoing
// IQ rather than asking the caller to supply one. A session-proxy minting
// a synchronization group to hand to Config.SyncGroup or SynchronizeTo,
// rather than reusing an existing named group, can use this to avoid
// collisions with any other group in flight.
func NewSyncGroupID() addr.ID {
	return addr.MustParse(attr.RandomID())
}

// Status returns the Session's current top-level state.
func (s *Session) Status() Status { return s.status }

// Users returns the Session's user table.
func (s *Session) Users() *usertable.Table { return s.users }

// SubscriptionGroup returns the Session's current subscription group, or
// nil if none is set.
func (s *Session) SubscriptionGroup() transport.Group { return s.subGroup }

// SetSubscriptionGroup replaces the Session's subscription group, releasing
// the reference held for whatever group was previously set. Ownership of
// the new group's reference, if any, is transferred from the caller, the
// same convention Config.SubscriptionGroup uses at construction.
func (s *Session) SetSubscriptionGroup(g transport.Group) {
	if s.subGroup != nil {
		s.subGroup.Unref()
	}
	s.subGroup = g
}

// AddUser validates and inserts u into the Session's user table. It is
// exposed for run-time user additions outside of an inbound sync; sync-time
// additions go through the inbound sync's own frame handling.
func (s *Session) AddUser(u usertable.User) error {
	rec := s.kind.NewUser(u)
	return s.users.Add(&rec)
}

// SendToSubscriptions writes el to every connection in the subscription
// group except except, which may be nil. It is a no-op if no subscription
// group is set.
func (s *Session) SendToSubscriptions(except transport.Connection, el xml.TokenReader) error {
	if s.subGroup == nil {
		return nil
	}
	return s.subGroup.SendToGroup(except, el)
}

// SyncStatus reports the synchronization sub-state for peer: for the
// inbound synchronizer during Synchronizing, or for an outbound roster
// entry during Running. It returns ok=false if peer has no sync in
// progress.
func (s *Session) SyncStatus(peer transport.Connection) (status string, ok bool) {
	switch s.status {
	case Synchronizing:
		if s.in != nil && s.in.conn == peer {
			return "in-progress", true
		}
	case Running:
		if o, found := s.out[peer]; found {
			return o.status.String(), true
		}
	}
	return "", false
}

// SyncProgress reports the fraction, in [0, 1], of frames accounted for in
// peer's synchronization. ok is false if peer has no sync in progress.
func (s *Session) SyncProgress(peer transport.Connection) (fraction float64, ok bool) {
	switch s.status {
	case Synchronizing:
		if s.in != nil && s.in.conn == peer {
			if s.in.m == 0 {
				// sync-begin not yet received: nothing to divide by.
				return 0, true
			}
			return float64(s.in.r) / float64(s.in.m), true
		}
	case Running:
		if o, found := s.out[peer]; found {
			return float64(o.sent) / float64(o.total), true
		}
	}
	return 0, false
}

// Close performs the Session's single close transition. It is idempotent:
// calling Close on an already-Closed session does nothing. After Close
// returns, no further events are emitted and every group or connection
// reference the Session held has been released.
func (s *Session) Close() {
	if s.status == Closed {
		return
	}

	switch s.status {
	case Synchronizing:
		s.in.sessionClosing(s)
	case Running:
		for _, o := range s.out {
			o.closeForSessionClose(s)
		}
	}

	if s.subGroup != nil {
		s.subGroup.Unref()
		s.subGroup = nil
	}

	s.status = Closed
	s.h.OnClose()
}

// HandleFrame dispatches one frame received from src. In Synchronizing
// state only frames from the inbound sync's own synchronizer connection
// are meaningful; per the open design question this mirrors, any other
// arrival on the subscription group while still Synchronizing is dropped
// on the floor, not queued and not an error.
func (s *Session) HandleFrame(src transport.Connection, start xml.StartElement, r xml.TokenReader) error {
	if s.status == Closed {
		return nil
	}

	if s.status == Synchronizing {
		if s.in == nil || src != s.in.conn {
			// QueueWhileSyncing: intentionally dropped, see the doc
			// comment on HandleFrame.
			return nil
		}
		return s.in.handleFrame(s, start, r)
	}

	// Running: a frame from a connection with a live outbound sync is
	// either sync-ack, sync-error, or ordinary traffic delegated to the
	// Kind; everything else is ordinary traffic too.
	if o, ok := s.out[src]; ok {
		switch start.Name.Local {
		case "sync-ack":
			return o.handleAck(s, src)
		case "sync-error":
			return o.handleError(s, src, start, r)
		}
	}
	return s.kind.ProcessRunFrame(s, src, start, r)
}

// watchConnection subscribes to status notifications for conn on g,
// mapping a closed/closing transition to onFailed. It returns the cancel
// function to unsubscribe, which the caller must invoke when the
// synchronization record is released.
func (s *Session) watchConnection(g transport.Group, conn transport.Connection, onFailed func()) func() {
	return g.Watch(transport.Callbacks{
		ConnectionStatusChanged: func(c transport.Connection, status transport.Status) {
			if c != conn {
				return
			}
			if status == transport.StatusClosed || status == transport.StatusClosing {
				onFailed()
			}
		},
	})
}

// wireFrameName reports the local name a frame decoding will have seen, to
// disambiguate UnexpectedNode vs a recognized-but-misplaced element. It
// exists only to give error messages a consistent vocabulary.
func wireFrameName(start xml.StartElement) string {
	if wire.IsSyncElement(start.Name.Local) {
		return start.Name.Local
	}
	return "unknown:" + start.Name.Local
}
