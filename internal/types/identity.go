package types

import (
	"net/http"
	"strings"
)

// Headers set by the upstream auth proxy.
const (
	HeaderUserID     = "X-User-ID"
	HeaderUserName   = "X-User-Name"
	HeaderUserEmail  = "X-User-Email"
	HeaderUserAvatar = "X-User-Avatar"
)

// Identity is the signed-in user as reported by the auth proxy. The zero
// value is an anonymous device session.
type Identity struct {
	UID         string `json:"uid"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

func (i Identity) Anonymous() bool { return i.UID == "" }

func IdentityFromHeader(h http.Header) Identity {
	id := Identity{UID: strings.TrimSpace(h.Get(HeaderUserID))}
	if id.UID == "" {
		return Identity{}
	}
	id.DisplayName = strings.TrimSpace(h.Get(HeaderUserName))
	id.Email = strings.TrimSpace(h.Get(HeaderUserEmail))
	id.AvatarURL = strings.TrimSpace(h.Get(HeaderUserAvatar))
	return id
}
