// Copyright 2014 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

// Package syncerr defines the synchronization error taxonomy and its wire
// encoding as a sync-error element.
//
// An Error is both a normal Go error and, via TokenReader, an XML element
// that can be written straight onto a transport.Group — the same duality
// the teacher's stream.Error gives a stream-level error.
package syncerr // import "github.com/ogre-sync/infsync/syncerr"

import (
	"encoding/xml"
	"strconv"

	"golang.org/x/text/language"
	"mellium.im/xmlstream"

	"github.com/ogre-sync/infsync/internal/ns"
)

// Domain is the value of the domain attribute on every sync-error frame
// this package emits. A remote peer may send a different domain string;
// when it does, Decode preserves it and reports Code Failed.
const Domain = "INF_SESSION_SYNC_ERROR"

// Code enumerates the synchronization error taxonomy, carried on the wire
// as the numeric code attribute of a sync-error element.
type Code uint32

// Recognized codes. The numbering is internal to this module: a remote
// peer is only required to round-trip domain/code pairs it did not
// originate, not to agree on these exact values.
const (
	UnexpectedNode Code = iota
	UnexpectedBeginOfSync
	UnexpectedEndOfSync
	ExpectedBeginOfSync
	ExpectedEndOfSync
	NumMessagesMissing
	IdNotPresent
	IdInUse
	NameNotPresent
	NameInUse
	SenderCancelled
	ReceiverCancelled
	ConnectionClosed
	// Failed is used when decoding a received sync-error whose
	// (domain, code) pair is not one this package recognizes.
	Failed
)

var codeNames = [...]string{
	UnexpectedNode:        "UnexpectedNode",
	UnexpectedBeginOfSync: "UnexpectedBeginOfSync",
	UnexpectedEndOfSync:   "UnexpectedEndOfSync",
	ExpectedBeginOfSync:   "ExpectedBeginOfSync",
	ExpectedEndOfSync:     "ExpectedEndOfSync",
	NumMessagesMissing:    "NumMessagesMissing",
	IdNotPresent:          "IdNotPresent",
	IdInUse:               "IdInUse",
	NameNotPresent:        "NameNotPresent",
	NameInUse:             "NameInUse",
	SenderCancelled:       "SenderCancelled",
	ReceiverCancelled:     "ReceiverCancelled",
	ConnectionClosed:      "ConnectionClosed",
	Failed:                "Failed",
}

// String returns the symbolic name of the code, or "Failed" if c is not
// one of the recognized values.
func (c Code) String() string {
	if int(c) < len(codeNames) && codeNames[c] != "" {
		return codeNames[c]
	}
	return "Failed"
}

// Error is a synchronization failure carried as a (domain, code) pair,
// exactly as the wire's sync-error element specifies. It implements the
// error interface and knows how to read and write itself as XML.
type Error struct {
	// ErrDomain is the domain attribute. It is Domain for every error
	// this package constructs, and may be any string for an error
	// decoded from a remote peer.
	ErrDomain string
	// ErrCode is the code attribute.
	ErrCode Code

	// Lang and Text carry an optional human-readable description of the
	// error, the same way StanzaError attaches a language-tagged <text/>
	// child to an <error/> element. Both are zero for an error this
	// package constructs internally; a decoded remote error may set them
	// if the peer chose to include one.
	Lang language.Tag
	Text string
}

// New constructs an Error in this package's own Domain.
func New(code Code) *Error {
	return &Error{ErrDomain: Domain, ErrCode: code}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Text != "" {
		return "sync: " + e.ErrDomain + ": " + e.ErrCode.String() + ": " + e.Text
	}
	return "sync: " + e.ErrDomain + ": " + e.ErrCode.String()
}

// Is reports whether target names the same code, regardless of domain.
// This lets callers write errors.Is(err, syncerr.New(syncerr.IdInUse)).
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.ErrCode == other.ErrCode
}

// TokenReader returns a stream that writes e as a sync-error element. If
// e.Text is set, a child <text xml:lang="…"> is included, mirroring the
// optional text child of StanzaError's <error/> element.
func (e *Error) TokenReader() xml.TokenReader {
	start := xml.StartElement{
		Name: xml.Name{Space: ns.Sync, Local: "sync-error"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "domain"}, Value: e.ErrDomain},
			{Name: xml.Name{Local: "code"}, Value: strconv.FormatUint(uint64(e.ErrCode), 10)},
		},
	}
	if e.Text == "" {
		return xmlstream.Wrap(nil, start)
	}
	text := xmlstream.Wrap(
		xmlstream.Token(xml.CharData(e.Text)),
		xml.StartElement{
			Name: xml.Name{Space: ns.Sync, Local: "text"},
			Attr: []xml.Attr{
				{Name: xml.Name{Space: ns.XML, Local: "lang"}, Value: e.Lang.String()},
			},
		},
	)
	return xmlstream.Wrap(text, start)
}

// WriteXML implements xmlstream.WriterTo.
func (e *Error) WriteXML(w xmlstream.TokenWriter) (int, error) {
	return xmlstream.Copy(w, e.TokenReader())
}

// Decode builds an Error from the domain/code attributes of a received
// sync-error start element, plus its optional <text/> child read from r.
// r may be nil if the caller has no inner content to offer (for example
// when re-decoding a locally constructed Error in a test). An unparseable
// or out-of-range code is reported as Failed, per the taxonomy's "unknown
// remote error" rule.
func Decode(start xml.StartElement, r xml.TokenReader) *Error {
	var domain, codeAttr string
	for _, a := range start.Attr {
		switch a.Name.Local {
		case "domain":
			domain = a.Value
		case "code":
			codeAttr = a.Value
		}
	}

	var e *Error
	n, err := strconv.ParseUint(codeAttr, 10, 32)
	switch {
	case domain != Domain:
		e = &Error{ErrDomain: domain, ErrCode: Failed}
	case err != nil || n >= uint64(len(codeNames)):
		e = &Error{ErrDomain: domain, ErrCode: Failed}
	default:
		e = &Error{ErrDomain: domain, ErrCode: Code(n)}
	}

	if r != nil {
		e.Lang, e.Text = decodeText(r)
	}
	return e
}

// decodeText scans r, positioned just inside a sync-error element, for an
// optional <text xml:lang="…">…</text> child and returns its language tag
// and character data. A malformed or absent child yields the zero values.
func decodeText(r xml.TokenReader) (language.Tag, string) {
	var lang language.Tag
	var text string
	depth := 0
	inText := false
	for {
		tok, err := r.Token()
		if err != nil {
			return lang, text
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 && t.Name.Local == "text" {
				inText = true
				for _, a := range t.Attr {
					if a.Name.Local == "lang" && a.Name.Space == ns.XML {
						if tag, err := language.Parse(a.Value); err == nil {
							lang = tag
						}
					}
				}
			}
			depth++
		case xml.EndElement:
			depth--
			if depth <= 0 {
				inText = false
			}
		case xml.CharData:
			if inText {
				text += string(t)
			}
		}
	}
}
