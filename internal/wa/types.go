// Package wa defines the boundary to the messaging-platform session.
//
// The real client (connect/auth/send primitives) lives outside this repo and
// is injected as a Session. Everything in internal/bulk is written against
// this contract only.
package wa

import (
	"context"
	"time"
)

// DefaultUserServer is the domain suffix of user identifiers.
const DefaultUserServer = "s.whatsapp.net"

// GroupServer is the domain suffix of group identifiers.
const GroupServer = "g.us"

// JID is a canonical platform identifier: numeric user part + server suffix.
type JID struct {
	User   string // digits only
	Server string // e.g. "s.whatsapp.net"
}

func (j JID) String() string { return j.User + "@" + j.Server }

func (j JID) IsZero() bool { return j.User == "" && j.Server == "" }

// GroupHandle identifies a group created on the platform.
type GroupHandle struct {
	JID  JID
	Name string
}

// MessageRef identifies a message accepted by the platform.
type MessageRef struct {
	ID        string
	To        JID
	Timestamp time.Time
}

// CreateOptions carries the platform-side group settings a creation call may
// request. Zero value means platform defaults.
type CreateOptions struct {
	AnnounceOnly   bool // only admins may send
	LockedSettings bool // only admins may edit group info
}

// Session is the stateful, single-writer client session.
//
// Implementations are NOT safe for concurrent calls; the bulk runner
// serializes all access.
type Session interface {
	// Ready reports whether the session is connected and authenticated.
	Ready() bool

	CreateGroup(ctx context.Context, name string, participants []JID, opt *CreateOptions) (GroupHandle, error)

	SendText(ctx context.Context, to JID, text string) (MessageRef, error)
}
