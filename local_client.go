package main

import (
	"log"
	"strconv"

	"github.com/JulianGCalderon-FIUBA/servidor-irc-sub001/irc"
)

// Registration state of a connection.
type regState int

const (
	// Nothing useful received yet.
	stateNotInitialized regState = iota

	// NICK accepted, waiting for USER.
	stateNicknameSent

	stateRegistered
)

// LocalClient holds state about a connection that has not registered yet.
// Every connection is in this state until it registers as either a user or
// as a server, at which point the handler is upgraded in place.
type LocalClient struct {
	conn LineConn

	ircd *Ircd

	state regState

	// Info the client sends us before registration completes.
	preRegPass string
	preRegNick string
}

// NewLocalClient creates a LocalClient.
func NewLocalClient(ircd *Ircd, conn LineConn) *LocalClient {
	return &LocalClient{
		conn: conn,
		ircd: ircd,
	}
}

func (c *LocalClient) String() string {
	return c.conn.PeerAddress()
}

// reply sends a numeric reply to the connection.
func (c *LocalClient) reply(code string, params []string, trailing string) {
	m := irc.Message{Command: code, Params: params}
	if len(trailing) > 0 {
		m = m.WithTrailing(trailing)
	}
	line, err := m.Encode()
	if err != nil {
		log.Printf("Client %s: Cannot encode reply: %s", c, err)
		return
	}
	if err := c.conn.WriteLine(line); err != nil {
		log.Printf("Client %s: %s", c, err)
	}
}

// run drives the connection through registration and then hands off to the
// registered handler. It returns when the connection is done.
func (c *LocalClient) run() {
	defer c.ircd.wg.Done()

	for c.state != stateRegistered {
		line, err := c.conn.ReadLine()
		if err != nil {
			log.Printf("Client %s: %s", c, err)
			_ = c.conn.Shutdown()
			return
		}

		m, err := irc.ParseMessage(line)
		if err != nil {
			c.reply("200", nil, "Parsing error")
			continue
		}

		switch m.Command {
		case "PASS":
			c.passCommand(m)
		case "NICK":
			c.nickCommand(m)
		case "USER":
			c.userCommand(m)
		case "SERVER":
			// Upgrades the connection to a server link. serverCommand runs
			// the peer loop itself.
			c.serverCommand(m)
			return
		case "QUIT":
			_ = c.conn.Shutdown()
			return
		default:
			// 451 ERR_NOTREGISTERED
			c.reply("451", nil, "You have not registered")
		}
	}

	NewLocalUser(c.ircd, c.conn, c.preRegNick).run()
}

func (c *LocalClient) passCommand(m irc.Message) {
	if len(m.AllParams()) != 1 {
		// 461 ERR_NEEDMOREPARAMS
		c.reply("461", []string{"PASS"}, "Not enough parameters")
		return
	}

	if c.state != stateNotInitialized {
		// 462 ERR_ALREADYREGISTRED
		c.reply("462", nil, "You may not reregister")
		return
	}

	c.preRegPass = m.AllParams()[0]
}

func (c *LocalClient) nickCommand(m irc.Message) {
	params := m.AllParams()
	if len(params) == 0 {
		// 431 ERR_NONICKNAMEGIVEN
		c.reply("431", nil, "No nickname given")
		return
	}
	nick := params[0]

	if !isValidNick(nick) {
		// 432 ERR_ERRONEUSNICKNAME
		c.reply("432", []string{nick}, "Erroneous nickname")
		return
	}

	if c.ircd.directory.ContainsClient(nick) {
		// 433 ERR_NICKNAMEINUSE
		c.reply("433", []string{nick}, "Nickname is already in use")
		return
	}

	c.preRegNick = nick
	if c.state == stateNotInitialized {
		c.state = stateNicknameSent
	}
}

func (c *LocalClient) userCommand(m irc.Message) {
	// USER <username> <hostname> <servername> :<realname>
	if len(m.Params) != 3 || !m.HasTrailing {
		// 461 ERR_NEEDMOREPARAMS
		c.reply("461", []string{"USER"}, "Not enough parameters")
		return
	}

	if c.state != stateNicknameSent {
		c.reply("200", nil, "No nickname registered")
		return
	}

	info := ClientInfo{
		Nickname:   c.preRegNick,
		Username:   m.Params[0],
		Hostname:   m.Params[1],
		Servername: c.ircd.config.ServerName,
		Realname:   m.Trailing,
		Hopcount:   0,
	}

	if err := c.ircd.directory.AddLocalClient(info, c.conn); err != nil {
		// Raced with another connection for the nickname.
		c.reply("433", []string{c.preRegNick}, "Nickname is already in use")
		c.state = stateNotInitialized
		c.preRegNick = ""
		return
	}

	c.state = stateRegistered

	c.ircd.welcome(c.conn, info)

	// Tell linked servers about the new client. Hop count increases for
	// them.
	c.ircd.broadcastToPeers("", irc.Message{
		Command: "NICK",
		Params:  []string{info.Nickname, strconv.Itoa(info.Hopcount + 1)},
	})
	c.ircd.broadcastToPeers("", irc.Message{
		Prefix:  info.Nickname,
		Command: "USER",
		Params:  []string{info.Username, info.Hostname, info.Servername},
	}.WithTrailing(info.Realname))

	log.Printf("Client %s: Registered as %s", c, info.Nickname)
}

func (c *LocalClient) serverCommand(m irc.Message) {
	// SERVER <servername> <hopcount> :<serverinfo>
	if len(m.Params) != 2 || !m.HasTrailing {
		// 461 ERR_NEEDMOREPARAMS
		c.reply("461", []string{"SERVER"}, "Not enough parameters")
		_ = c.conn.Shutdown()
		return
	}

	name := m.Params[0]
	hopcount, err := strconv.Atoi(m.Params[1])
	if err != nil || hopcount < 1 {
		c.reply("200", nil, "Parsing error")
		_ = c.conn.Shutdown()
		return
	}

	server := Server{
		Name:     name,
		Info:     m.Trailing,
		Hopcount: hopcount,
	}

	if err := c.ircd.directory.AddServer(server, c.conn); err != nil {
		log.Printf("Client %s: %s", c, err)
		_ = c.conn.Shutdown()
		return
	}

	log.Printf("Established link to %s", name)

	ls := NewLocalServer(c.ircd, c.conn, name)
	ls.sendBurst()

	// Tell the other peers about the new link.
	c.ircd.broadcastToPeers(name, irc.Message{
		Prefix:  c.ircd.config.ServerName,
		Command: "SERVER",
		Params:  []string{server.Name, strconv.Itoa(server.Hopcount + 1)},
	}.WithTrailing(server.Info))

	ls.run()
}
