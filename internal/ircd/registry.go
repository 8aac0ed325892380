package ircd

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/boxcat/ircd/internal/wire"
)

// ErrNickInUse means the nickname is already held by a live connection.
var ErrNickInUse = registryError("nickname in use")

// ErrNoSuchNick means no live connection holds the given nickname.
var ErrNoSuchNick = registryError("no such nick")

// ErrNoSuchChannel means the named channel does not currently exist.
var ErrNoSuchChannel = registryError("no such channel")

type registryError string

func (e registryError) Error() string { return string(e) }

// registeredUser is the registry's private record for one live,
// registered connection. It is never exposed directly; callers only
// ever see a UserIdentifier snapshot.
type registeredUser struct {
	id       UserIdentifier
	sink     *Sink
	channels map[string]struct{} // canonical channel name -> present
	modes    map[byte]struct{}
}

// Registry is the authoritative, concurrently accessed mapping from
// nicknames to live connections and from channel names to channels
// (§3.5). It is the sole place names are globally resolved; the
// connection-local state -> registry -> channel locking order in §5 is
// enforced by never holding the registry's own mutex while calling into
// a Channel's blocking operations or a Sink's send.
type Registry struct {
	mu       sync.Mutex
	users    map[string]*registeredUser // canonical nick -> user
	channels map[string]*Channel        // canonical name -> channel
	log      *logrus.Logger
}

// NewRegistry constructs an empty registry. Tests construct one
// directly and drive it with fake sinks, without any socket or process
// involved (§9 "Global state").
func NewRegistry(log *logrus.Logger) *Registry {
	if log == nil {
		log = logrus.New()
	}
	return &Registry{
		users:    make(map[string]*registeredUser),
		channels: make(map[string]*Channel),
		log:      log,
	}
}

// AddUser inserts a newly registered connection. Fails with ErrNickInUse
// if the nickname is already held.
func (r *Registry) AddUser(id UserIdentifier, sink *Sink) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	canon := id.Canonical()
	if _, exists := r.users[canon]; exists {
		return ErrNickInUse
	}
	r.users[canon] = &registeredUser{
		id:       id,
		sink:     sink,
		channels: make(map[string]struct{}),
		modes:    make(map[byte]struct{}),
	}
	return nil
}

// ReplaceNick renames a registered connection's nickname atomically,
// updating every channel it belongs to so the membership map's key
// stays in sync with the identifier (§4.C: renames must go through the
// registry, never by mutating a map key in place).
func (r *Registry) ReplaceNick(oldNick string, newID UserIdentifier) ([]ChannelIdentifier, error) {
	r.mu.Lock()

	oldCanon := canonicalizeNick(oldNick)
	u, ok := r.users[oldCanon]
	if !ok {
		r.mu.Unlock()
		return nil, ErrNoSuchNick
	}

	newCanon := newID.Canonical()
	if newCanon != oldCanon {
		if _, exists := r.users[newCanon]; exists {
			r.mu.Unlock()
			return nil, ErrNickInUse
		}
	}

	previousID := u.id
	u.id.Nickname = newID.Nickname
	delete(r.users, oldCanon)
	r.users[newCanon] = u

	var channelNames []ChannelIdentifier
	var channels []*Channel
	for name := range u.channels {
		if ch, exists := r.channels[name]; exists {
			channelNames = append(channelNames, ch.Name())
			channels = append(channels, ch)
		}
	}
	r.mu.Unlock()

	for _, ch := range channels {
		ch.rename(previousID.Nickname, u.id)
	}

	return channelNames, nil
}

// rename updates a channel's membership key in place when its owner is
// renamed elsewhere in the registry. Unexported: only ReplaceNick calls
// it, always after the registry lock has already been released, so this
// never happens while the registry mutex is held (§5 locking order).
func (c *Channel) rename(oldNick string, newID UserIdentifier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	oldCanon := canonicalizeNick(oldNick)
	m, ok := c.members[oldCanon]
	if !ok {
		return
	}
	delete(c.members, oldCanon)
	m.id = newID
	c.members[canonicalizeNick(newID.Nickname)] = m
}

// JoinResult is the per-channel outcome of a Join call.
type JoinResult struct {
	Channel ChannelIdentifier
	Err     error
}

// Join creates each named channel if absent, then joins the user to it,
// returning a per-channel result list (§4.E).
func (r *Registry) Join(id UserIdentifier, sink *Sink, targets []wire.JoinTarget) []JoinResult {
	results := make([]JoinResult, len(targets))
	for i, t := range targets {
		results[i] = JoinResult{Channel: ChannelIdentifier(t.Channel)}

		ch := r.getOrCreateChannel(ChannelIdentifier(t.Channel))

		sinks, err := ch.Join(id, sink, t.Key)
		if err != nil {
			results[i].Err = err
			continue
		}

		r.mu.Lock()
		if u, ok := r.users[id.Canonical()]; ok {
			u.channels[ch.Name().Canonical()] = struct{}{}
		}
		r.mu.Unlock()

		broadcast := Broadcast{Kind: BroadcastJoin, Source: id, Channel: ch.Name()}
		deliverJoin(sinks, broadcast)
	}
	return results
}

func (r *Registry) getOrCreateChannel(name ChannelIdentifier) *Channel {
	canon := name.Canonical()

	r.mu.Lock()
	if ch, ok := r.channels[canon]; ok {
		r.mu.Unlock()
		return ch
	}
	ch := NewChannel(name)
	r.channels[canon] = ch
	r.mu.Unlock()
	return ch
}

// PartResult is the per-channel outcome of a Part call.
type PartResult struct {
	Channel ChannelIdentifier
	Err     error
}

// Part removes the user from each named channel, dropping any channel
// that becomes empty (§4.E).
func (r *Registry) Part(id UserIdentifier, channelNames []string, message string) []PartResult {
	results := make([]PartResult, len(channelNames))
	for i, name := range channelNames {
		results[i] = PartResult{Channel: ChannelIdentifier(name)}

		ch, ok := r.LookupChannel(name)
		if !ok {
			results[i].Err = ErrNoSuchChannel
			continue
		}

		sinks, empty, err := ch.Part(id)
		if err != nil {
			results[i].Err = err
			continue
		}

		r.mu.Lock()
		if u, ok := r.users[id.Canonical()]; ok {
			delete(u.channels, ch.Name().Canonical())
		}
		if empty {
			delete(r.channels, ch.Name().Canonical())
		}
		r.mu.Unlock()

		_, leaverSink, _ := r.LookupUser(id.Nickname)

		broadcast := Broadcast{Kind: BroadcastPart, Source: id, Channel: ch.Name(), Text: message}
		deliverPart(sinks, leaverSink, broadcast)
	}
	return results
}

// Quit removes the user entirely: an implicit part from every channel
// it belongs to, with the Quit broadcast sent at most once per
// co-member regardless of how many channels they share (§8 scenario F),
// dropping any channel left empty.
func (r *Registry) Quit(nickname string, reason string) {
	canon := canonicalizeNick(nickname)

	r.mu.Lock()
	u, ok := r.users[canon]
	if !ok {
		r.mu.Unlock()
		return
	}
	id := u.id
	var channelNames []string
	for name := range u.channels {
		channelNames = append(channelNames, name)
	}
	delete(r.users, canon)
	r.mu.Unlock()

	recipients := make(map[*Sink]struct{})
	for _, name := range channelNames {
		r.mu.Lock()
		ch, exists := r.channels[name]
		r.mu.Unlock()
		if !exists {
			continue
		}

		sinks, empty, err := ch.Part(id)
		if err != nil {
			continue
		}
		for _, s := range sinks {
			recipients[s] = struct{}{}
		}

		if empty {
			r.mu.Lock()
			delete(r.channels, name)
			r.mu.Unlock()
		}
	}

	quitMsg := wire.Message{
		Prefix:  id.AsPrefix(),
		Command: "QUIT",
		Params:  []string{reason},
	}
	for s := range recipients {
		s.Send(quitMsg)
	}
}

// SendResult is the per-target outcome of a Send call.
type SendResult struct {
	Target string
	Err    error
}

// Send dispatches a PRIVMSG/NOTICE body to each target: a channel
// target fans out to every other member; a nick target is delivered
// directly to that user's sink (§4.E).
func (r *Registry) Send(id UserIdentifier, targets []string, text string, notice bool) []SendResult {
	results := make([]SendResult, len(targets))
	for i, target := range targets {
		results[i] = SendResult{Target: target}

		if IsValidChannel(target) {
			ch, ok := r.LookupChannel(target)
			if !ok {
				results[i].Err = ErrNoSuchChannel
				continue
			}
			sinks := ch.SinksExcept(id.Nickname)
			msg := wire.Message{Prefix: id.AsPrefix(), Command: privmsgOrNotice(notice), Params: []string{target, text}}
			for _, s := range sinks {
				s.Send(msg)
			}
			continue
		}

		destUser, destSink, ok := r.LookupUser(target)
		if !ok {
			results[i].Err = ErrNoSuchNick
			continue
		}
		msg := wire.Message{Prefix: id.AsPrefix(), Command: privmsgOrNotice(notice), Params: []string{destUser.Nickname, text}}
		destSink.Send(msg)
	}
	return results
}

func privmsgOrNotice(notice bool) string {
	if notice {
		return "NOTICE"
	}
	return "PRIVMSG"
}

// LookupChannel returns a read-only channel reference.
func (r *Registry) LookupChannel(name string) (*Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[canonicalizeChannel(name)]
	return ch, ok
}

// LookupUser returns the identifier and sink currently registered under
// nickname.
func (r *Registry) LookupUser(nickname string) (UserIdentifier, *Sink, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[canonicalizeNick(nickname)]
	if !ok {
		return UserIdentifier{}, nil, false
	}
	return u.id, u.sink, true
}

// SetUserMode adds or removes a user mode letter on a registered
// connection. Returns ErrNoSuchNick if nickname is not registered.
func (r *Registry) SetUserMode(nickname string, add bool, letter byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[canonicalizeNick(nickname)]
	if !ok {
		return ErrNoSuchNick
	}
	if add {
		u.modes[letter] = struct{}{}
	} else {
		delete(u.modes, letter)
	}
	return nil
}

// UserModes returns the current user mode set for nickname.
func (r *Registry) UserModes(nickname string) (map[byte]struct{}, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[canonicalizeNick(nickname)]
	if !ok {
		return nil, false
	}
	out := make(map[byte]struct{}, len(u.modes))
	for m := range u.modes {
		out[m] = struct{}{}
	}
	return out, true
}

// Users returns a snapshot of every currently registered identifier, for
// diagnostics and WHO/WHOIS.
func (r *Registry) Users() []UserIdentifier {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]UserIdentifier, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u.id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Nickname < out[j].Nickname })
	return out
}

// Channels returns a snapshot of every currently live channel.
func (r *Registry) Channels() []*Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		out = append(out, ch)
	}
	return out
}

// Stats is the LUSERS snapshot (§10.6, supplemented from original_source).
type Stats struct {
	Users     int
	Operators int
	Channels  int
}

// Stats computes the current LUSERS snapshot. It is a read-only pass
// over the registry's maps, taken under the registry lock.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	var opers int
	for _, u := range r.users {
		if _, ok := u.modes['o']; ok {
			opers++
		}
	}
	return Stats{
		Users:     len(r.users),
		Operators: opers,
		Channels:  len(r.channels),
	}
}

// assertInvariant returns an error if the registry's membership
// symmetry invariant (§8 property 4) is observed broken: a user lists a
// channel that is missing from the registry or that does not list the
// user as a member. It is used only by tests; production code paths are
// constructed so the invariant cannot break.
func (r *Registry) assertInvariant() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for canon, u := range r.users {
		for chanName := range u.channels {
			ch, ok := r.channels[chanName]
			if !ok {
				return errors.Errorf("user %s references missing channel %s", canon, chanName)
			}
			if !ch.HasUser(u.id.Nickname) {
				return errors.Errorf("user %s not reflected in channel %s membership", canon, chanName)
			}
		}
	}
	return nil
}

func deliverJoin(sinks []*Sink, b Broadcast) {
	msg := wire.Message{
		Prefix:  b.Source.AsPrefix(),
		Command: "JOIN",
		Params:  []string{string(b.Channel)},
	}
	for _, s := range sinks {
		s.Send(msg)
	}
}

func deliverPart(sinks []*Sink, leaverSink *Sink, b Broadcast) {
	msg := wire.Message{
		Prefix:  b.Source.AsPrefix(),
		Command: "PART",
		Params:  []string{string(b.Channel), b.Text},
	}
	for _, s := range sinks {
		s.Send(msg)
	}
	if leaverSink != nil {
		leaverSink.Send(msg)
	}
}
