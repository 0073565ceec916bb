// Copyright 2014 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

// Package transport declares the interfaces a Session consumes to move
// framed XML messages between peers. The session never dials, accepts, or
// authenticates a connection; it only sends to and receives from handles
// that satisfy these interfaces.
package transport // import "github.com/ogre-sync/infsync/transport"

import (
	"encoding/xml"

	"github.com/ogre-sync/infsync/addr"
)

// Connection identifies one peer endpoint within a Group. It carries no
// behavior of its own; all I/O goes through the Group it belongs to.
type Connection interface {
	// ID returns the canonical identifier of this connection.
	ID() addr.ID
}

// Status is the lifecycle state of a Connection as reported through
// Callbacks.ConnectionStatusChanged.
type Status int

const (
	// StatusOpen is a connection that is still usable.
	StatusOpen Status = iota
	// StatusClosing is a connection that has begun tearing down but may
	// still deliver frames already in flight.
	StatusClosing
	// StatusClosed is a connection that can no longer send or receive.
	StatusClosed
)

// Group is a named multicast bag of peer connections. A Session holds a ref
// on a Group for as long as a synchronization (inbound or outbound) is
// bound to it, and releases the ref when the synchronization is retired.
//
// Send calls enqueue a frame for later delivery; they do not block and do
// not report completion directly — completion is reported asynchronously
// through the Callbacks registered with Watch. A ClearQueue call followed
// immediately by a Send to the same connection is well-defined: the queue
// clear is processed before the new frame is considered for delivery, so a
// caller never needs to serialize the two itself.
type Group interface {
	// ID returns the canonical identifier of this group.
	ID() addr.ID

	// SendToConnection enqueues one frame addressed to conn.
	SendToConnection(conn Connection, el xml.TokenReader) error

	// SendToGroup enqueues one frame to every connection in the group
	// except except, which may be nil to mean "broadcast to all".
	SendToGroup(except Connection, el xml.TokenReader) error

	// ClearQueue drops all frames not yet delivered to conn.
	ClearQueue(conn Connection) error

	// HasConnection reports whether conn is currently a member of the
	// group.
	HasConnection(conn Connection) bool

	// Ref increments the group's reference count.
	Ref()

	// Unref decrements the group's reference count, releasing any
	// resources held by the transport once it reaches zero.
	Unref()

	// Watch registers cb to receive the group's asynchronous callbacks.
	// The returned function unregisters cb; it must be called exactly
	// once, when the watcher is no longer needed.
	Watch(cb Callbacks) (cancel func())
}

// Callbacks is the bundle of asynchronous notifications a Group delivers
// to a watching Session. Every method is invoked on the session's single
// logical execution context; none may block.
type Callbacks struct {
	// FrameEnqueued is called when a frame destined for conn has been
	// accepted by the transport for later delivery.
	FrameEnqueued func(conn Connection, start xml.StartElement)

	// FrameSent is called once a previously enqueued frame has actually
	// been written to conn.
	FrameSent func(conn Connection, start xml.StartElement)

	// FrameReceived is called when a frame arrives from conn. r is valid
	// only for the duration of the call.
	FrameReceived func(conn Connection, start xml.StartElement, r xml.TokenReader)

	// ConnectionStatusChanged is called whenever the transport's view of
	// conn's lifecycle status changes.
	ConnectionStatusChanged func(conn Connection, status Status)
}
