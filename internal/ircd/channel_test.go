package ircd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boxcat/ircd/internal/wire"
)

func TestChannelJoinReturnsAllMemberSinksIncludingJoiner(t *testing.T) {
	ch := NewChannel("#test")
	a, b := NewSink(4), NewSink(4)

	sinks, err := ch.Join(UserIdentifier{Nickname: "alice"}, a, "")
	require.NoError(t, err)
	assert.Len(t, sinks, 1)

	sinks, err = ch.Join(UserIdentifier{Nickname: "bob"}, b, "")
	require.NoError(t, err)
	assert.Len(t, sinks, 2)
}

func TestChannelJoinRejectsDuplicateMembership(t *testing.T) {
	ch := NewChannel("#test")
	a := NewSink(4)
	_, err := ch.Join(UserIdentifier{Nickname: "alice"}, a, "")
	require.NoError(t, err)

	_, err = ch.Join(UserIdentifier{Nickname: "ALICE"}, a, "")
	assert.ErrorIs(t, err, ErrAlreadyIn)
}

func TestChannelJoinEnforcesKey(t *testing.T) {
	ch := NewChannel("#test")
	ch.SetKey("letmein")

	_, err := ch.Join(UserIdentifier{Nickname: "alice"}, NewSink(1), "wrong")
	assert.ErrorIs(t, err, ErrWrongKey)

	_, err = ch.Join(UserIdentifier{Nickname: "alice"}, NewSink(1), "letmein")
	assert.NoError(t, err)
}

func TestChannelPartExcludesLeaverAndReportsEmpty(t *testing.T) {
	ch := NewChannel("#test")
	a := NewSink(4)
	_, err := ch.Join(UserIdentifier{Nickname: "alice"}, a, "")
	require.NoError(t, err)

	sinks, empty, err := ch.Part(UserIdentifier{Nickname: "alice"})
	require.NoError(t, err)
	assert.Empty(t, sinks)
	assert.True(t, empty)
}

func TestChannelPartUnknownMemberErrors(t *testing.T) {
	ch := NewChannel("#test")
	_, _, err := ch.Part(UserIdentifier{Nickname: "ghost"})
	assert.ErrorIs(t, err, ErrNotOnChannel)
}

func TestChannelNamesAreSortedAndKeepOriginalCase(t *testing.T) {
	ch := NewChannel("#test")
	_, _ = ch.Join(UserIdentifier{Nickname: "Zed"}, NewSink(1), "")
	_, _ = ch.Join(UserIdentifier{Nickname: "amy"}, NewSink(1), "")

	assert.Equal(t, []string{"Zed", "amy"}, ch.Names())
}

func TestChannelApplyModeChangesRendersAppliedString(t *testing.T) {
	ch := NewChannel("#test")
	changes, err := wire.ParseModeChanges("+k-s", []string{"secret"}, map[byte]bool{'k': true})
	require.NoError(t, err)

	applied := ch.ApplyModeChanges(changes)
	assert.Equal(t, "+k-s", applied)
	assert.True(t, ch.HasMode('k'))
	assert.False(t, ch.HasMode('s'))
}

func TestChannelTopicTruncates(t *testing.T) {
	ch := NewChannel("#test")
	long := make([]byte, maxTopicLength+50)
	for i := range long {
		long[i] = 'x'
	}
	ch.SetTopic("alice", string(long))

	topic, ok := ch.Topic()
	require.True(t, ok)
	assert.Len(t, topic, maxTopicLength)
}

func TestChannelSinksExceptExcludesNamedMember(t *testing.T) {
	ch := NewChannel("#test")
	a, b := NewSink(1), NewSink(1)
	_, _ = ch.Join(UserIdentifier{Nickname: "alice"}, a, "")
	_, _ = ch.Join(UserIdentifier{Nickname: "bob"}, b, "")

	sinks := ch.SinksExcept("alice")
	require.Len(t, sinks, 1)
	assert.Same(t, b, sinks[0])
}
