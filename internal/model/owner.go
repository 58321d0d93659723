package model

import (
	"errors"
	"strings"
)

// ErrMissingOwner is returned by Owner.Validate when neither identity is present.
var ErrMissingOwner = errors.New("either a user id or a session id is required")

// Owner identifies who a conversation belongs to. A user identity always
// takes precedence over a session identity.
type Owner struct {
	UserID    string
	SessionID string
}

// UserOwner returns an Owner for an authenticated user.
func UserOwner(userID string) Owner { return Owner{UserID: userID} }

// SessionOwner returns an Owner for an anonymous session.
func SessionOwner(sessionID string) Owner { return Owner{SessionID: sessionID} }

// Resolve applies the precedence rule: when a user id is present the session id is dropped.
func (o Owner) Resolve() Owner {
	o.UserID = strings.TrimSpace(o.UserID)
	o.SessionID = strings.TrimSpace(o.SessionID)
	if o.UserID != "" {
		o.SessionID = ""
	}
	return o
}

// Validate resolves the owner and fails when no identity remains.
func (o Owner) Validate() (Owner, error) {
	r := o.Resolve()
	if r.UserID == "" && r.SessionID == "" {
		return r, ErrMissingOwner
	}
	return r, nil
}

// IsUser reports whether the resolved owner is an authenticated user.
func (o Owner) IsUser() bool {
	return o.Resolve().UserID != ""
}

// Column returns the ownership column and value used to scope queries.
func (o Owner) Column() (string, string) {
	r := o.Resolve()
	if r.UserID != "" {
		return "user_id", r.UserID
	}
	return "session_id", r.SessionID
}
