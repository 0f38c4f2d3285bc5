package irc

import (
	"strings"
)

// ParseMessage parses a protocol message from a client/server. The message
// may include the trailing CRLF (or a bare LF).
//
// See RFC 1459/2812 section 2.3.1 for the grammar.
func ParseMessage(line string) (Message, error) {
	if len(line) > MaxLineLength {
		return Message{}, ErrTooManyParameters
	}

	line = trimLineEnding(line)

	if err := checkCharacters(line); err != nil {
		return Message{}, err
	}

	if len(strings.TrimLeft(line, " ")) == 0 {
		return Message{}, ErrEmptyMessage
	}

	message := Message{}
	index := 0

	// It is optional to have a prefix.
	if line[0] == ':' {
		prefix, prefixIndex, err := parsePrefix(line)
		if err != nil {
			return Message{}, err
		}
		index = prefixIndex

		message.Prefix = prefix
	}

	command, index := parseCommand(line, index)
	if len(command) == 0 {
		return Message{}, ErrNoCommand
	}
	message.Command = command

	params, trailing, hasTrailing := parseParams(line, index)
	if len(params) > MaxParams {
		return Message{}, ErrTooManyParameters
	}

	message.Params = params
	message.Trailing = trailing
	message.HasTrailing = hasTrailing

	return message, nil
}

// trimLineEnding strips a trailing CRLF or LF, if present. Lines arriving
// from bufio readers keep their terminator; lines from tests often don't.
func trimLineEnding(line string) string {
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r")
}

// checkCharacters rejects lines containing NUL, or a CR/LF anywhere but the
// line terminator (already stripped by the time we look).
func checkCharacters(line string) error {
	if strings.ContainsAny(line, "\x00\r\n") {
		return ErrInvalidCharacter
	}
	return nil
}

// parsePrefix parses out the prefix portion of the line.
//
// line begins with ':'. We return the prefix (without the ':') and the
// position after the space ending it, pointing at the first character of the
// command in a well formed message.
func parsePrefix(line string) (string, int, error) {
	pos := strings.IndexByte(line, ' ')
	if pos == -1 {
		pos = len(line)
	}

	// A bare ":" token has nothing in it.
	if pos == 1 {
		return "", -1, ErrEmptyPrefix
	}

	if pos == len(line) {
		return line[1:], pos, nil
	}

	return line[1:pos], pos + 1, nil
}

// parseCommand parses the command portion, beginning at index. Leading spaces
// are skipped. Commands are canonically upper case.
//
// We return the command and the index just after it.
func parseCommand(line string, index int) (string, int) {
	for index < len(line) && line[index] == ' ' {
		index++
	}

	start := index
	for index < len(line) && line[index] != ' ' {
		index++
	}

	return strings.ToUpper(line[start:index]), index
}

// parseParams parses the parameter part of a message.
//
// Parameters are space separated tokens up to the first token beginning with
// ':'. Everything after that token's ':' is the trailing parameter, spaces
// included. It is valid for there to be no params and no trailing.
func parseParams(line string, index int) ([]string, string, bool) {
	var params []string

	for index < len(line) {
		if line[index] == ' ' {
			index++
			continue
		}

		if line[index] == ':' {
			return params, line[index+1:], true
		}

		start := index
		for index < len(line) && line[index] != ' ' {
			index++
		}
		params = append(params, line[start:index])
	}

	return params, "", false
}
