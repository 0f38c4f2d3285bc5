package irc

import (
	"strings"
)

// Encode encodes the Message into a raw protocol message string.
//
// The resulting string has a trailing CRLF.
//
// Parameters containing a space, beginning with ':', or empty are moved into
// the trailing slot; there is only one such slot, so a second one is an
// ErrInvalidCharacter error. If encoding would exceed MaxLineLength bytes we
// truncate, return as much as we can, and return ErrTruncated. This truncated
// message may still be usable.
func (m Message) Encode() (string, error) {
	s := ""

	if len(m.Prefix) > 0 {
		s += ":" + m.Prefix + " "
	}

	s += m.Command

	if len(s)+2 > MaxLineLength {
		return "", ErrTruncated
	}

	if len(m.Params) > MaxParams {
		return "", ErrTooManyParameters
	}

	trailing := m.Trailing
	hasTrailing := m.HasTrailing

	params := m.Params
	for i, param := range params {
		if !needsTrailing(param) {
			continue
		}

		// A parameter that can't appear as a middle must be the last one, and
		// the trailing slot must be free.
		if i+1 != len(params) || hasTrailing {
			return "", ErrInvalidCharacter
		}

		trailing = param
		hasTrailing = true
		params = params[:i]
	}

	truncated := false

	for _, param := range params {
		if strings.ContainsAny(param, "\x00\r\n") {
			return "", ErrInvalidCharacter
		}

		if len(s)+1+len(param)+2 > MaxLineLength {
			truncated = true
			break
		}

		s += " " + param
	}

	if hasTrailing && !truncated {
		if strings.ContainsAny(trailing, "\x00\r\n") {
			return "", ErrInvalidCharacter
		}

		// Claim the " :" separator (2) and CRLF (2), then fit what we can of
		// the trailing itself.
		available := MaxLineLength - len(s) - 4
		if available < 0 {
			truncated = true
		} else if len(trailing) > available {
			trailing = trailing[:available]
			truncated = true
			s += " :" + trailing
		} else {
			s += " :" + trailing
		}
	}

	s += "\r\n"

	if truncated {
		return s, ErrTruncated
	}

	return s, nil
}

// needsTrailing reports whether a parameter can't be encoded as a middle
// parameter.
func needsTrailing(param string) bool {
	return param == "" || param[0] == ':' || strings.IndexByte(param, ' ') != -1
}
