// Package wire implements the line protocol: framing, the prefix/command/
// params grammar, and the numeric reply table. It wraps
// github.com/horgh/irc for low level tokenizing and adds the
// request-command validation and numeric-formatting layer the core needs.
package wire

import (
	"fmt"
	"unicode/utf8"

	"github.com/horgh/irc"
	"github.com/pkg/errors"
)

// MaxLineLength is the maximum protocol line length including the
// trailing CRLF.
const MaxLineLength = irc.MaxLineLength

// Message is a decoded protocol line: an optional prefix, a command
// (a keyword or a zero padded 3 digit numeric), and its parameters.
type Message = irc.Message

// ErrNoCommand means the line had no command token at all (empty line,
// or a prefix with nothing following it).
var ErrNoCommand = errors.New("no command given")

// ErrBadFrame means the line violated the frame budget or was not valid
// UTF-8.
var ErrBadFrame = errors.New("malformed frame")

// UnrecognizedCommandError means the command token is not one this
// server's grammar knows, and is not a 3 digit numeric.
type UnrecognizedCommandError struct {
	Command string
}

func (e UnrecognizedCommandError) Error() string {
	return fmt.Sprintf("unrecognized command: %s", e.Command)
}

// NeedMoreParamsError means the command was recognized but did not carry
// enough parameters for its grammar.
type NeedMoreParamsError struct {
	Command string
}

func (e NeedMoreParamsError) Error() string {
	return fmt.Sprintf("not enough parameters for %s", e.Command)
}

// requiredParams is the minimum parameter count each request command
// needs before a handler may act on it. Commands absent from this table
// have no minimum (zero params is fine, e.g. PING with no target is
// unusual but not a grammar error).
//
// This is the table-driven replacement Design Note 9 asks for in place
// of one validation function per command.
var requiredParams = map[string]int{
	"NICK":    1,
	"USER":    4,
	"JOIN":    1,
	"PART":    1,
	"MODE":    1,
	"TOPIC":   1,
	"PRIVMSG": 1,
	"NOTICE":  1,
	"KICK":    2,
	"INVITE":  2,
	"OPER":    2,
	"PASS":    1,
	"WHOIS":   1,
	"WHO":     0,
}

// knownCommands is the closed set of textual (non-numeric) commands this
// grammar recognizes. A command outside this set, and not a 3 digit
// numeric, is UnrecognizedCommandError.
var knownCommands = map[string]struct{}{
	"NICK": {}, "PASS": {}, "USER": {}, "OPER": {}, "QUIT": {}, "SQUIT": {},
	"JOIN": {}, "PART": {}, "MODE": {}, "TOPIC": {}, "NAMES": {}, "LIST": {},
	"INVITE": {}, "KICK": {}, "MOTD": {}, "LUSERS": {}, "VERSION": {},
	"STATS": {}, "LINKS": {}, "TIME": {}, "CONNECT": {}, "TRACE": {},
	"ADMIN": {}, "INFO": {}, "PRIVMSG": {}, "NOTICE": {}, "WHO": {},
	"WHOIS": {}, "WHOWAS": {}, "KILL": {}, "PING": {}, "PONG": {},
	"ERROR": {}, "AWAY": {}, "REHASH": {}, "RESTART": {}, "SUMMON": {},
	"USERS": {}, "WALLOPS": {}, "USERHOST": {}, "ISON": {}, "CAP": {},
}

// IsNumeric reports whether command is a 3 ASCII digit numeric reply
// code.
func IsNumeric(command string) bool {
	if len(command) != 3 {
		return false
	}
	for _, c := range command {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// ValidateFrame enforces the 512 byte (including CRLF) frame budget and
// UTF-8 validity on a decoded line, before it is handed to the grammar
// parser. Decode calls it first, so an oversized line never reaches the
// tokenizer. The whole line has already been read into memory by then;
// this check bounds parsing work, not read buffering.
func ValidateFrame(line string) error {
	// -2 for the CRLF Decode has already stripped by the time it sees
	// line; Encode re-adds it.
	if len(line) > MaxLineLength-2 {
		return ErrBadFrame
	}
	if !utf8.ValidString(line) {
		return ErrBadFrame
	}
	return nil
}

// Validate checks that m's command is known (or numeric) and carries at
// least the minimum parameters its grammar requires.
func Validate(m Message) error {
	if m.Command == "" {
		return ErrNoCommand
	}
	if IsNumeric(m.Command) {
		return nil
	}
	if _, ok := knownCommands[m.Command]; !ok {
		return UnrecognizedCommandError{Command: m.Command}
	}
	if min, ok := requiredParams[m.Command]; ok && len(m.Params) < min {
		return NeedMoreParamsError{Command: m.Command}
	}
	return nil
}
