package ircd

import (
	"fmt"
	"time"

	"github.com/boxcat/ircd/internal/wire"
)

// userModeAlphabet and channelModeAlphabet are advertised in RPL_MYINFO.
// They match the closed mode alphabets §4.B's grammar recognizes.
const (
	userModeAlphabet    = "aiwroOs"
	channelModeAlphabet = "iswo"
)

// WelcomeMessages synthesizes the exact four message registration
// sequence (§4.G): RPL_WELCOME, RPL_YOURHOST, RPL_CREATED, RPL_MYINFO,
// in that order. It is pure given its inputs, so it needs no registry or
// connection access.
func WelcomeMessages(serverName, version, networkName, nick string, created time.Time) []wire.Message {
	return []wire.Message{
		wire.New(wire.ReplyWelcome, serverName, nick,
			fmt.Sprintf("Welcome to the %s Network, %s", networkName, nick)),
		wire.New(wire.ReplyYourHost, serverName, nick,
			fmt.Sprintf("Your host is %s, running version %s", serverName, version)),
		wire.New(wire.ReplyCreated, serverName, nick,
			fmt.Sprintf("This server was created %s", created.UTC().Format(time.RFC3339))),
		wire.New(wire.ReplyMyInfo, serverName, nick,
			serverName, version, userModeAlphabet, channelModeAlphabet),
	}
}

// LusersMessages synthesizes the 251-255 LUSERS block from a Stats
// snapshot (§10.6).
func LusersMessages(serverName, nick string, s Stats) []wire.Message {
	return []wire.Message{
		wire.New(wire.ReplyLUserClient, serverName, nick,
			fmt.Sprintf("There are %d users on 1 server", s.Users)),
		wire.New(wire.ReplyLUserOp, serverName, nick,
			fmt.Sprintf("%d", s.Operators), "operator(s) online"),
		wire.New(wire.ReplyLUserChannels, serverName, nick,
			fmt.Sprintf("%d", s.Channels), "channels formed"),
		wire.New(wire.ReplyLUserMe, serverName, nick,
			fmt.Sprintf("I have %d clients and 1 server", s.Users)),
	}
}
