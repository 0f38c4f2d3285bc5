package main

import "fmt"

// ClientInfo holds the identity record of a registered user, local or remote.
type ClientInfo struct {
	// Unique within the directory. Case sensitive.
	Nickname string

	Username string

	Hostname string

	// Name of the server the client is connected to.
	Servername string

	Realname string

	// 0 for a client connected to us, >= 1 for a client reached through a
	// peer.
	Hopcount int

	// Global IRC operator flag. Granted via OPER.
	Operator bool

	// Away is true when the client has marked themselves away.
	Away bool

	AwayMessage string
}

func (c *ClientInfo) String() string {
	return fmt.Sprintf("%s!%s@%s", c.Nickname, c.Username, c.Hostname)
}

// isLocal reports whether the client is connected directly to this server.
func (c *ClientInfo) isLocal() bool {
	return c.Hopcount == 0
}
