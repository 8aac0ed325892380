package wire

import "github.com/horgh/irc"

// ErrTruncated is returned by Encode when the message had to be
// shortened to fit the 512 byte frame budget. The returned string is
// still a complete, well-formed line.
var ErrTruncated = irc.ErrTruncated

// Encode serializes m to a CRLF-terminated line, truncating the trailing
// parameter if necessary to stay within MaxLineLength. This is a direct
// pass-through to horgh/irc's encoder, which already implements the
// truncation and trailing-colon rules the grammar requires.
func Encode(m Message) (string, error) {
	return m.Encode()
}
