// Package irc provides encoding and decoding of IRC protocol messages. It is
// used by both the server and its clients.
package irc

import (
	"errors"
	"fmt"
)

const (
	// MaxLineLength is the maximum protocol message line length. It includes
	// CRLF.
	MaxLineLength = 512

	// MaxParams is the maximum number of middle parameters a message may
	// carry. The trailing parameter does not count against it.
	MaxParams = 15
)

// Parse errors. ParseMessage returns one of these for every malformed line.
var (
	// ErrEmptyMessage means there was no content on the line.
	ErrEmptyMessage = errors.New("empty message")

	// ErrTooManyParameters means the message exceeded MaxLineLength bytes or
	// carried more than MaxParams parameters.
	ErrTooManyParameters = errors.New("too many parameters")

	// ErrInvalidCharacter means a NUL, CR, or LF appeared inside the message.
	ErrInvalidCharacter = errors.New("invalid character")

	// ErrEmptyPrefix means the message began with a bare ":".
	ErrEmptyPrefix = errors.New("empty prefix")

	// ErrNoCommand means there was no command after the prefix.
	ErrNoCommand = errors.New("no command")
)

// ErrTruncated is the error returned by Encode if the message gets truncated
// due to encoding to more than MaxLineLength bytes.
var ErrTruncated = errors.New("message truncated")

// Message holds a protocol message:
//
//	[":" prefix SP] command {SP param} [SP ":" trailing] CRLF
//
// The trailing parameter is kept apart from Params so that an empty trailing
// (a bare ":") remains representable. TOPIC uses it to clear a topic.
type Message struct {
	// Prefix may be blank. It's optional.
	Prefix string

	// Command is the IRC command. For example, PRIVMSG. It may be a numeric.
	Command string

	// Params holds the middle parameters. None of them contain a space.
	Params []string

	// Trailing is the trailing parameter. It may contain spaces. Check
	// HasTrailing to distinguish an absent trailing from an empty one.
	Trailing    string
	HasTrailing bool
}

func (m Message) String() string {
	return fmt.Sprintf("Prefix [%s] Command [%s] Params%q Trailing [%s]",
		m.Prefix, m.Command, m.Params, m.Trailing)
}

// WithTrailing makes a copy of the message with the trailing parameter set.
func (m Message) WithTrailing(s string) Message {
	m.Trailing = s
	m.HasTrailing = true
	return m
}

// AllParams returns the middle parameters followed by the trailing parameter,
// if there is one. Convenient for commands that treat them uniformly.
func (m Message) AllParams() []string {
	if !m.HasTrailing {
		return m.Params
	}

	params := make([]string, 0, len(m.Params)+1)
	params = append(params, m.Params...)
	return append(params, m.Trailing)
}
