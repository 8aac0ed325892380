package ircd

import (
	"fmt"
	"strings"
)

// UserIdentifier identifies a connected user. The registry and channels
// key users by the case-folded Nickname alone (Canonical); the other
// fields are carried for prefix rendering and WHOIS, not for identity.
// Comparing two values with == compares every field.
type UserIdentifier struct {
	Nickname string
	Username string
	Realname string
	Hostname string
}

// Canonical returns the case-folded nickname used as the registry's map
// key. Rename through Registry.ReplaceNick, never by re-keying a map in
// place (§4.C).
func (u UserIdentifier) Canonical() string {
	return canonicalizeNick(u.Nickname)
}

// AsPrefix renders the nick!user@host form used as a Message.Prefix for
// user-originated traffic.
func (u UserIdentifier) AsPrefix() string {
	return fmt.Sprintf("%s!%s@%s", u.Nickname, u.Username, u.Hostname)
}

// ChannelIdentifier is a channel name. Comparison is case-insensitive
// per RFC 2812 §2.2.
type ChannelIdentifier string

// Canonical returns the case-folded channel name used as the registry's
// map key.
func (c ChannelIdentifier) Canonical() string {
	return canonicalizeChannel(string(c))
}

const (
	maxNickLength    = 30
	maxUserLength    = 30
	maxChannelLength = 50
	maxTopicLength   = 300
)

func canonicalizeNick(n string) string {
	return strings.ToLower(n)
}

func canonicalizeChannel(c string) string {
	return strings.ToLower(c)
}

// IsValidNick reports whether n is an acceptable nickname: non-empty,
// bounded, no spaces, no leading colon, and not starting with a digit.
func IsValidNick(n string) bool {
	if len(n) == 0 || len(n) > maxNickLength {
		return false
	}
	if n[0] == ':' {
		return false
	}
	for i := 0; i < len(n); i++ {
		c := n[i]
		if c == ' ' {
			return false
		}
		if i == 0 && c >= '0' && c <= '9' {
			return false
		}
	}
	return true
}

// IsValidUser reports whether u is an acceptable username (USER
// command's first parameter).
func IsValidUser(u string) bool {
	if len(u) == 0 || len(u) > maxUserLength {
		return false
	}
	for i := 0; i < len(u); i++ {
		if u[i] == ' ' || u[i] == '\x00' || u[i] == '\r' || u[i] == '\n' {
			return false
		}
	}
	return true
}

// IsValidChannel reports whether c is a well-formed channel name: one of
// the sigils #, &, +, ! followed by bounded non-space characters.
func IsValidChannel(c string) bool {
	if len(c) == 0 || len(c) > maxChannelLength {
		return false
	}
	switch c[0] {
	case '#', '&', '+', '!':
	default:
		return false
	}
	for i := 1; i < len(c); i++ {
		if c[i] == ' ' || c[i] == ',' || c[i] == '\x07' {
			return false
		}
	}
	return true
}
