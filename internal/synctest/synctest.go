// Copyright 2017 Sam Whited.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package synctest provides an in-memory transport.Group/transport.Connection
// pair for testing the session package, the same role the teacher's
// xmpptest.NewSession plays for an *xmpp.Session.
package synctest // import "github.com/ogre-sync/infsync/internal/synctest"

import (
	"encoding/xml"
	"io"
	"strings"

	"mellium.im/xmlstream"

	"github.com/ogre-sync/infsync/addr"
	"github.com/ogre-sync/infsync/transport"
)

// Conn is a fake transport.Connection identified by a fixed addr.ID.
type Conn struct {
	id addr.ID
}

// NewConn returns a Conn identified by name.
func NewConn(name string) *Conn {
	return &Conn{id: addr.MustParse(name)}
}

// ID implements transport.Connection.
func (c *Conn) ID() addr.ID { return c.id }

// Frame is one recorded call to SendToConnection or SendToGroup, captured
// as its decoded start element and serialized body for assertions in
// tests.
type Frame struct {
	Conn  transport.Connection
	Start xml.StartElement
	Raw   string
}

// Group is an in-memory transport.Group that records every frame sent
// through it and lets a test drive the registered Callbacks directly,
// standing in for a real asynchronous transport.
type Group struct {
	id addr.ID

	members map[transport.Connection]bool
	watcher transport.Callbacks
	refs    int

	// Sent records every frame handed to SendToConnection or
	// SendToGroup, in call order; ClearQueue removes the frames recorded
	// for the connection it clears.
	Sent []Frame

	// Cleared records every connection ClearQueue was called for.
	Cleared []transport.Connection

	// FailSend, when non-nil, is returned by SendToConnection instead of
	// succeeding — used to simulate transport failure.
	FailSend error

	// DeferEnqueue, when true, makes SendToConnection record the frame
	// but not invoke FrameEnqueued immediately; a test calls
	// FlushEnqueued to deliver the notification once it wants the
	// transport to have "caught up", simulating the gap between a
	// frame being accepted and it actually being queued for delivery.
	DeferEnqueue bool

	pending []Frame
}

// NewGroup returns an empty Group named name with members as its initial
// membership.
func NewGroup(name string, members ...transport.Connection) *Group {
	g := &Group{id: addr.MustParse(name), members: make(map[transport.Connection]bool)}
	for _, m := range members {
		g.members[m] = true
	}
	return g
}

// ID implements transport.Group.
func (g *Group) ID() addr.ID { return g.id }

// HasConnection implements transport.Group.
func (g *Group) HasConnection(conn transport.Connection) bool {
	return g.members[conn]
}

// Ref implements transport.Group.
func (g *Group) Ref() { g.refs++ }

// Unref implements transport.Group.
func (g *Group) Unref() { g.refs-- }

// Refs reports the group's current reference count, for test assertions.
func (g *Group) Refs() int { return g.refs }

// Watch implements transport.Group. Only one watcher is supported at a
// time, which is all the session package ever registers per record.
func (g *Group) Watch(cb transport.Callbacks) func() {
	g.watcher = cb
	return func() { g.watcher = transport.Callbacks{} }
}

// SendToConnection implements transport.Group.
func (g *Group) SendToConnection(conn transport.Connection, el xml.TokenReader) error {
	if g.FailSend != nil {
		return g.FailSend
	}
	start, raw := decode(el)
	f := Frame{Conn: conn, Start: start, Raw: raw}
	g.Sent = append(g.Sent, f)
	if g.DeferEnqueue {
		g.pending = append(g.pending, f)
		return nil
	}
	if g.watcher.FrameEnqueued != nil {
		g.watcher.FrameEnqueued(conn, start)
	}
	return nil
}

// FlushEnqueued fires the FrameEnqueued callback for every frame held back
// by DeferEnqueue, in submission order, then clears the pending list.
func (g *Group) FlushEnqueued() {
	pending := g.pending
	g.pending = nil
	for _, f := range pending {
		if g.watcher.FrameEnqueued != nil {
			g.watcher.FrameEnqueued(f.Conn, f.Start)
		}
	}
}

// SendToGroup implements transport.Group.
func (g *Group) SendToGroup(except transport.Connection, el xml.TokenReader) error {
	toks := drain(el)
	for m := range g.members {
		if m == except {
			continue
		}
		if err := g.SendToConnection(m, &tokenSliceReader{toks: toks}); err != nil {
			return err
		}
	}
	return nil
}

// ClearQueue implements transport.Group.
func (g *Group) ClearQueue(conn transport.Connection) error {
	g.Cleared = append(g.Cleared, conn)
	kept := g.Sent[:0]
	for _, f := range g.Sent {
		if f.Conn != conn {
			kept = append(kept, f)
		}
	}
	g.Sent = kept
	return nil
}

// DeliverSent fires the FrameSent callback for every frame recorded as
// sent to conn, simulating the transport having flushed them all.
func (g *Group) DeliverSent(conn transport.Connection) {
	if g.watcher.FrameSent == nil {
		return
	}
	for _, f := range g.Sent {
		if f.Conn == conn {
			g.watcher.FrameSent(conn, f.Start)
		}
	}
}

// Deliver synthesizes a frame arriving from conn and invokes the
// registered FrameReceived callback, the way a real transport would
// dispatch an inbound message.
func (g *Group) Deliver(conn transport.Connection, el xml.TokenReader) {
	if g.watcher.FrameReceived == nil {
		return
	}
	toks := drain(el)
	start, _ := toks[0].(xml.StartElement)
	g.watcher.FrameReceived(conn, start, &tokenSliceReader{toks: toks[1:]})
}

// tokenSliceReader replays a fixed slice of tokens, letting Deliver hand
// FrameReceived a reader positioned just inside the start element it
// already peeled off, the same inner-reader shape HandleFrame sees from a
// real transport.
type tokenSliceReader struct {
	toks []xml.Token
}

func (r *tokenSliceReader) Token() (xml.Token, error) {
	if len(r.toks) == 0 {
		return nil, io.EOF
	}
	tok := r.toks[0]
	r.toks = r.toks[1:]
	return tok, nil
}

// drain reads every token out of r into a slice for replay.
func drain(r xml.TokenReader) []xml.Token {
	var toks []xml.Token
	for {
		tok, err := r.Token()
		if err != nil {
			break
		}
		toks = append(toks, xml.CopyToken(tok))
	}
	return toks
}

// CloseConn fires ConnectionStatusChanged for conn with status.
func (g *Group) CloseConn(conn transport.Connection, status transport.Status) {
	if g.watcher.ConnectionStatusChanged != nil {
		g.watcher.ConnectionStatusChanged(conn, status)
	}
}

func decode(r xml.TokenReader) (xml.StartElement, string) {
	var buf strings.Builder
	enc := xml.NewEncoder(&buf)
	var start xml.StartElement
	first := true
	for {
		tok, err := r.Token()
		if err != nil {
			break
		}
		if se, ok := tok.(xml.StartElement); ok && first {
			start = se.Copy()
			first = false
		}
		_ = enc.EncodeToken(tok)
	}
	_ = enc.Flush()
	return start, buf.String()
}

var _ xmlstream.TokenWriter = (*xml.Encoder)(nil)
