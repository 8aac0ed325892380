package ircd

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boxcat/ircd/internal/wire"
)

func newTestRegistry() *Registry {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return NewRegistry(log)
}

func mustAddUser(t *testing.T, r *Registry, nick string) *Sink {
	t.Helper()
	sink := NewSink(8)
	require.NoError(t, r.AddUser(UserIdentifier{Nickname: nick, Username: "u", Hostname: "h", Realname: "r"}, sink))
	return sink
}

func drain(s *Sink) []wire.Message {
	var out []wire.Message
	for {
		select {
		case m := <-s.C():
			out = append(out, m)
		default:
			return out
		}
	}
}

func TestRegistryAddUserRejectsDuplicateNick(t *testing.T) {
	r := newTestRegistry()
	mustAddUser(t, r, "alice")

	err := r.AddUser(UserIdentifier{Nickname: "ALICE"}, NewSink(1))
	assert.ErrorIs(t, err, ErrNickInUse)
}

func TestRegistryJoinBroadcastsToAllMembersIncludingJoiner(t *testing.T) {
	r := newTestRegistry()
	aliceSink := mustAddUser(t, r, "alice")
	bobSink := mustAddUser(t, r, "bob")

	results := r.Join(UserIdentifier{Nickname: "alice"}, aliceSink, []wire.JoinTarget{{Channel: "#chat"}})
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)

	joinMsgs := drain(aliceSink)
	require.Len(t, joinMsgs, 1)
	assert.Equal(t, "JOIN", joinMsgs[0].Command)

	r.Join(UserIdentifier{Nickname: "bob"}, bobSink, []wire.JoinTarget{{Channel: "#chat"}})

	aliceMsgs := drain(aliceSink)
	require.Len(t, aliceMsgs, 1)
	assert.Equal(t, "JOIN", aliceMsgs[0].Command)

	require.NoError(t, r.assertInvariant())
}

func TestRegistryPartDeliversToRemainingMembersAndLeaver(t *testing.T) {
	r := newTestRegistry()
	aliceSink := mustAddUser(t, r, "alice")
	bobSink := mustAddUser(t, r, "bob")
	r.Join(UserIdentifier{Nickname: "alice"}, aliceSink, []wire.JoinTarget{{Channel: "#chat"}})
	r.Join(UserIdentifier{Nickname: "bob"}, bobSink, []wire.JoinTarget{{Channel: "#chat"}})
	drain(aliceSink)
	drain(bobSink)

	results := r.Part(UserIdentifier{Nickname: "alice"}, []string{"#chat"}, "bye")
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)

	bobMsgs := drain(bobSink)
	require.Len(t, bobMsgs, 1)
	assert.Equal(t, "PART", bobMsgs[0].Command)

	aliceMsgs := drain(aliceSink)
	require.Len(t, aliceMsgs, 1)
	assert.Equal(t, "PART", aliceMsgs[0].Command)
}

func TestRegistryPartOnLastMemberDropsChannel(t *testing.T) {
	r := newTestRegistry()
	aliceSink := mustAddUser(t, r, "alice")
	r.Join(UserIdentifier{Nickname: "alice"}, aliceSink, []wire.JoinTarget{{Channel: "#chat"}})

	r.Part(UserIdentifier{Nickname: "alice"}, []string{"#chat"}, "")

	_, ok := r.LookupChannel("#chat")
	assert.False(t, ok)
}

func TestRegistryQuitDeliversOnceAcrossSharedChannels(t *testing.T) {
	r := newTestRegistry()
	aliceSink := mustAddUser(t, r, "alice")
	bobSink := mustAddUser(t, r, "bob")

	r.Join(UserIdentifier{Nickname: "alice"}, aliceSink, []wire.JoinTarget{{Channel: "#a"}, {Channel: "#b"}})
	r.Join(UserIdentifier{Nickname: "bob"}, bobSink, []wire.JoinTarget{{Channel: "#a"}, {Channel: "#b"}})
	drain(aliceSink)
	drain(bobSink)

	r.Quit("alice", "leaving")

	bobMsgs := drain(bobSink)
	require.Len(t, bobMsgs, 1)
	assert.Equal(t, "QUIT", bobMsgs[0].Command)

	_, _, ok := r.LookupUser("alice")
	assert.False(t, ok)
}

func TestRegistryReplaceNickUpdatesChannelMembership(t *testing.T) {
	r := newTestRegistry()
	sink := mustAddUser(t, r, "alice")
	r.Join(UserIdentifier{Nickname: "alice"}, sink, []wire.JoinTarget{{Channel: "#chat"}})

	channels, err := r.ReplaceNick("alice", UserIdentifier{Nickname: "alicia", Username: "u", Hostname: "h"})
	require.NoError(t, err)
	require.Len(t, channels, 1)

	ch, ok := r.LookupChannel("#chat")
	require.True(t, ok)
	assert.True(t, ch.HasUser("alicia"))
	assert.False(t, ch.HasUser("alice"))

	require.NoError(t, r.assertInvariant())
}

func TestRegistryReplaceNickRejectsCollision(t *testing.T) {
	r := newTestRegistry()
	mustAddUser(t, r, "alice")
	mustAddUser(t, r, "bob")

	_, err := r.ReplaceNick("bob", UserIdentifier{Nickname: "alice"})
	assert.ErrorIs(t, err, ErrNickInUse)
}

func TestRegistrySendToChannelExcludesSender(t *testing.T) {
	r := newTestRegistry()
	aliceSink := mustAddUser(t, r, "alice")
	bobSink := mustAddUser(t, r, "bob")
	r.Join(UserIdentifier{Nickname: "alice"}, aliceSink, []wire.JoinTarget{{Channel: "#chat"}})
	r.Join(UserIdentifier{Nickname: "bob"}, bobSink, []wire.JoinTarget{{Channel: "#chat"}})
	drain(aliceSink)
	drain(bobSink)

	results := r.Send(UserIdentifier{Nickname: "alice"}, []string{"#chat"}, "hi", false)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)

	assert.Empty(t, drain(aliceSink))
	bobMsgs := drain(bobSink)
	require.Len(t, bobMsgs, 1)
	assert.Equal(t, "PRIVMSG", bobMsgs[0].Command)
}

func TestRegistrySendToUnknownNickErrors(t *testing.T) {
	r := newTestRegistry()
	aliceSink := mustAddUser(t, r, "alice")

	results := r.Send(UserIdentifier{Nickname: "alice"}, []string{"ghost"}, "hi", false)
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, ErrNoSuchNick)
	assert.Empty(t, drain(aliceSink))
}

func TestRegistryStatsCountsOperators(t *testing.T) {
	r := newTestRegistry()
	mustAddUser(t, r, "alice")
	mustAddUser(t, r, "bob")
	require.NoError(t, r.SetUserMode("bob", true, 'o'))

	stats := r.Stats()
	assert.Equal(t, 2, stats.Users)
	assert.Equal(t, 1, stats.Operators)
}
