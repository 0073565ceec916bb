// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package ns provides namespace constants used by the session package and
// other internal packages.
package ns // import "github.com/ogre-sync/infsync/internal/ns"

// List of namespaces used on the wire.
const (
	// Sync is the namespace of the sync-begin/sync-user/sync-end/sync-ack/
	// sync-cancel/sync-error elements.
	Sync = "urn:ogre-sync:sync"
	XML  = "http://www.w3.org/XML/1998/namespace"
)
