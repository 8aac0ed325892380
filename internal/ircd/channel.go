package ircd

import (
	"sort"
	"sync"

	"github.com/boxcat/ircd/internal/wire"
)

// ErrWrongKey means a JOIN's supplied key did not match the channel's
// set key.
var ErrWrongKey = chanError("wrong channel key")

// ErrAlreadyIn means the user is already a member of the channel.
var ErrAlreadyIn = chanError("already a member")

// ErrNotOnChannel means the user is not a member of the channel.
var ErrNotOnChannel = chanError("not on channel")

type chanError string

func (e chanError) Error() string { return string(e) }

type member struct {
	id   UserIdentifier
	sink *Sink
}

// Channel is a named multicast room: membership set, topic, optional
// key, and mode flags (§3.3). The registry is its sole owner; nothing
// outside the registry holds a long-lived pointer to one (§9 "Circular
// references user↔channel").
type Channel struct {
	mu         sync.Mutex
	name       ChannelIdentifier
	topic      string
	topicSetBy string
	key        string
	modes      map[byte]struct{}
	members    map[string]member // canonical nick -> member
}

// NewChannel creates an empty channel, default mode +ns per the
// teacher's own default (no external messages, secret). 'n' is not
// among the channel mode letters advertised in RPL_MYINFO.
func NewChannel(name ChannelIdentifier) *Channel {
	return &Channel{
		name:    name,
		modes:   map[byte]struct{}{'n': {}, 's': {}},
		members: make(map[string]member),
	}
}

// Name returns the channel's identifier.
func (c *Channel) Name() ChannelIdentifier {
	return c.name
}

// Join verifies the channel key if set, inserts the member, and returns
// the set of sinks (including the joiner's) that should receive a Join
// broadcast. It does not send anything itself: the caller gathers sinks
// under the channel lock and sends outside it, per the locking
// discipline in §5.
func (c *Channel) Join(id UserIdentifier, sink *Sink, key string) ([]*Sink, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	canon := canonicalizeNick(id.Nickname)
	if _, ok := c.members[canon]; ok {
		return nil, ErrAlreadyIn
	}
	if c.key != "" && key != c.key {
		return nil, ErrWrongKey
	}

	c.members[canon] = member{id: id, sink: sink}

	return c.sinksLocked(), nil
}

// Part removes the member and returns the remaining members' sinks (not
// the leaver's; Registry.Part delivers the leaver's copy of the Part
// broadcast separately), plus whether the channel is now empty and
// should be dropped by the registry.
func (c *Channel) Part(id UserIdentifier) (sinks []*Sink, empty bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	canon := canonicalizeNick(id.Nickname)
	if _, ok := c.members[canon]; !ok {
		return nil, false, ErrNotOnChannel
	}
	delete(c.members, canon)

	return c.sinksLocked(), len(c.members) == 0, nil
}

// HasUser reports whether nickname (any case) is a current member.
func (c *Channel) HasUser(nickname string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.members[canonicalizeNick(nickname)]
	return ok
}

// Sinks returns every current member's sink, for broadcast fan-out
// (privmsg, topic, mode, kick, quit-per-channel).
func (c *Channel) Sinks() []*Sink {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sinksLocked()
}

// SinksExcept returns every current member's sink other than the one
// belonging to nickname, used for PRIVMSG fan-out (sender excluded).
func (c *Channel) SinksExcept(nickname string) []*Sink {
	c.mu.Lock()
	defer c.mu.Unlock()
	canon := canonicalizeNick(nickname)
	out := make([]*Sink, 0, len(c.members))
	for nick, m := range c.members {
		if nick == canon {
			continue
		}
		out = append(out, m.sink)
	}
	return out
}

func (c *Channel) sinksLocked() []*Sink {
	out := make([]*Sink, 0, len(c.members))
	for _, m := range c.members {
		out = append(out, m.sink)
	}
	return out
}

// Names returns the current member nicknames, sorted, for RPL_NAMREPLY.
func (c *Channel) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.members))
	for _, m := range c.members {
		out = append(out, m.id.Nickname)
	}
	sort.Strings(out)
	return out
}

// Topic returns the current topic text and whether one is set.
func (c *Channel) Topic() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.topic, c.topic != ""
}

// SetTopic updates the topic, truncating to maxTopicLength.
func (c *Channel) SetTopic(setBy, text string) {
	if len(text) > maxTopicLength {
		text = text[:maxTopicLength]
	}
	c.mu.Lock()
	c.topic = text
	c.topicSetBy = setBy
	c.mu.Unlock()
}

// VerifyKey reports whether key matches the channel's set key (or the
// channel has no key at all).
func (c *Channel) VerifyKey(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.key == "" || c.key == key
}

// SetKey sets or clears (empty string) the channel's join key.
func (c *Channel) SetKey(key string) {
	c.mu.Lock()
	c.key = key
	c.mu.Unlock()
}

// HasMode reports whether channel mode letter m is set.
func (c *Channel) HasMode(m byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.modes[m]
	return ok
}

// ApplyModeChanges applies a parsed set of mode changes and returns the
// modes string actually applied (for the Mode broadcast echo). A 'k'
// change also sets (to its argument) or clears the join key; every other
// letter only changes the recorded mode set.
func (c *Channel) ApplyModeChanges(changes []wire.ModeChange) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	applied := ""
	lastAdd := true
	first := true
	for _, ch := range changes {
		if ch.Add {
			c.modes[ch.Letter] = struct{}{}
			if ch.Letter == 'k' {
				c.key = ch.Arg
			}
		} else {
			delete(c.modes, ch.Letter)
			if ch.Letter == 'k' {
				c.key = ""
			}
		}
		if first || ch.Add != lastAdd {
			if ch.Add {
				applied += "+"
			} else {
				applied += "-"
			}
			lastAdd = ch.Add
			first = false
		}
		applied += string(ch.Letter)
	}
	return applied
}

// ModesString renders the current channel mode set as "+xyz".
func (c *Channel) ModesString() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := "+"
	for m := range c.modes {
		s += string(m)
	}
	return s
}

// MemberCount returns the number of current members.
func (c *Channel) MemberCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.members)
}
