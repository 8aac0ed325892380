package ircd

// BroadcastKind tags the variant carried by a Broadcast.
type BroadcastKind int

const (
	// BroadcastJoin announces a user joining a channel.
	BroadcastJoin BroadcastKind = iota
	// BroadcastPart announces a user leaving a channel.
	BroadcastPart
	// BroadcastPrivmsg carries a channel message (PRIVMSG or NOTICE).
	BroadcastPrivmsg
	// BroadcastTopic announces a topic change.
	BroadcastTopic
	// BroadcastMode announces a mode change.
	BroadcastMode
	// BroadcastQuit announces a user disconnecting, fanned out once per
	// co-member across every channel they were in (§8 scenario F).
	BroadcastQuit
	// BroadcastNick announces a nickname change, fanned out to every
	// channel the renaming user is in.
	BroadcastNick
	// BroadcastKick announces a forcible removal from a channel.
	BroadcastKick
)

// Broadcast is a server-originated event distributed to every current
// member of a channel (or, for BroadcastQuit/BroadcastNick, to every
// channel a user belongs to).
type Broadcast struct {
	Kind     BroadcastKind
	Source   UserIdentifier
	Channel  ChannelIdentifier
	Text     string         // PRIVMSG/NOTICE body, PART/QUIT/KICK reason, new topic
	IsNotice bool           // true if BroadcastPrivmsg originated as NOTICE
	NewNick  string         // BroadcastNick only
	Target   UserIdentifier // BroadcastKick only: the user being removed
	ModeStr  string         // BroadcastMode only: encoded "+x-y" mode string
	ModeArgs []string
}
