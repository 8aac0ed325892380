package wire

import (
	"github.com/horgh/irc"
	"github.com/pkg/errors"
)

// Decode parses a single already-framed line (CRLF already stripped) into
// a Message and validates it against the grammar's required-parameter
// table. It is the composition of the frame check, horgh/irc's
// tokenizer, and this package's Validate.
//
// A line that fails ValidateFrame never reaches the tokenizer: bounding
// the line length before allocation-heavy parsing is the point of
// splitting the two checks.
func Decode(line string) (Message, error) {
	if err := ValidateFrame(line); err != nil {
		return Message{}, err
	}

	// horgh/irc's ParseMessage requires the trailing CRLF (fixLineEnding
	// rejects anything else); readLine has already stripped it for us, so
	// put it back just for this call.
	m, err := irc.ParseMessage(line + "\r\n")
	if err != nil {
		return Message{}, errors.Wrap(err, "parsing message")
	}

	if err := Validate(m); err != nil {
		return m, err
	}

	return m, nil
}

// SplitCommaList splits a comma-delimited parameter (JOIN channels, PART
// channels, PRIVMSG targets, KICK channels/users) and rejects empty
// elements, per the grammar's comma-list rule.
func SplitCommaList(param string) ([]string, error) {
	if param == "" {
		return nil, errors.New("empty list parameter")
	}

	var out []string
	start := 0
	for i := 0; i <= len(param); i++ {
		if i == len(param) || param[i] == ',' {
			elem := param[start:i]
			if elem == "" {
				return nil, errors.New("empty element in comma list")
			}
			out = append(out, elem)
			start = i + 1
		}
	}
	return out, nil
}
