package ircd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boxcat/ircd/internal/wire"
)

func TestWelcomeMessagesOrderAndNumerics(t *testing.T) {
	msgs := WelcomeMessages("irc.example.org", "1.0", "ExampleNet", "alice", time.Unix(0, 0))
	require.Len(t, msgs, 4)

	wantCodes := []string{wire.ReplyWelcome, wire.ReplyYourHost, wire.ReplyCreated, wire.ReplyMyInfo}
	for i, m := range msgs {
		assert.Equal(t, wantCodes[i], m.Command)
		assert.Equal(t, "alice", m.Params[0])
	}
}

func TestLusersMessagesReflectStats(t *testing.T) {
	msgs := LusersMessages("irc.example.org", "alice", Stats{Users: 3, Operators: 1, Channels: 2})
	require.Len(t, msgs, 4)
	assert.Equal(t, wire.ReplyLUserClient, msgs[0].Command)
	assert.Equal(t, wire.ReplyLUserMe, msgs[3].Command)
}
