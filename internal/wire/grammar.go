package wire

import "strings"

// JoinTarget is one channel a JOIN command names, paired with its
// optional key.
type JoinTarget struct {
	Channel string
	Key     string
}

// ParseJoin interprets a JOIN command's parameters. A first parameter of
// exactly "0" with no other channels means part-all, per §4.B.
func ParseJoin(params []string) (partAll bool, targets []JoinTarget, err error) {
	if len(params) == 0 {
		return false, nil, NeedMoreParamsError{Command: "JOIN"}
	}

	if params[0] == "0" && len(strings.Split(params[0], ",")) == 1 {
		return true, nil, nil
	}

	channels, err := SplitCommaList(params[0])
	if err != nil {
		return false, nil, err
	}

	var keys []string
	if len(params) > 1 {
		keys, err = SplitCommaList(params[1])
		if err != nil {
			return false, nil, err
		}
	}

	targets = make([]JoinTarget, len(channels))
	for i, c := range channels {
		t := JoinTarget{Channel: c}
		if i < len(keys) {
			t.Key = keys[i]
		}
		targets[i] = t
	}
	return false, targets, nil
}

// ModeChange is one parsed "+x" or "-x" mode letter with its argument,
// if the mode takes one.
type ModeChange struct {
	Add    bool
	Letter byte
	Arg    string
}

// ParseModeChanges interprets the mode-string parameter of a MODE
// command (params[1] if present) plus any trailing arguments
// (params[2:]) against the set of letters that take an argument.
func ParseModeChanges(modeString string, args []string, takesArg map[byte]bool) ([]ModeChange, error) {
	if modeString == "" {
		return nil, nil
	}
	if modeString[0] != '+' && modeString[0] != '-' {
		return nil, ErrBadModeString
	}

	var changes []ModeChange
	add := true
	argIdx := 0
	for i := 0; i < len(modeString); i++ {
		c := modeString[i]
		switch c {
		case '+':
			add = true
		case '-':
			add = false
		default:
			ch := ModeChange{Add: add, Letter: c}
			if takesArg[c] && argIdx < len(args) {
				ch.Arg = args[argIdx]
				argIdx++
			}
			changes = append(changes, ch)
		}
	}
	return changes, nil
}

// ErrBadModeString means a MODE command's mode-string parameter did not
// begin with '+' or '-'.
var ErrBadModeString = modeStringError{}

type modeStringError struct{}

func (modeStringError) Error() string { return "mode string must begin with + or -" }
