package ircd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidNick(t *testing.T) {
	cases := map[string]bool{
		"alice":  true,
		"":       false,
		"9alice": false,
		"a b":    false,
		":alice": false,
	}
	for in, want := range cases {
		assert.Equalf(t, want, IsValidNick(in), "IsValidNick(%q)", in)
	}
}

func TestIsValidChannel(t *testing.T) {
	cases := map[string]bool{
		"#chat":  true,
		"&local": true,
		"chat":   false,
		"":       false,
		"#ch at": false,
	}
	for in, want := range cases {
		assert.Equalf(t, want, IsValidChannel(in), "IsValidChannel(%q)", in)
	}
}

func TestUserIdentifierAsPrefix(t *testing.T) {
	id := UserIdentifier{Nickname: "alice", Username: "aliceu", Hostname: "example.org"}
	assert.Equal(t, "alice!aliceu@example.org", id.AsPrefix())
}

func TestChannelIdentifierCanonical(t *testing.T) {
	assert.Equal(t, "#chat", ChannelIdentifier("#Chat").Canonical())
}
