package main

import (
	"log"
	"strconv"

	"github.com/JulianGCalderon-FIUBA/servidor-irc-sub001/irc"
)

// LocalServer is the handler for a linked peer server. It applies relayed
// state changes to the Directory the same way the client handler would and
// rebroadcasts them to the other peers, never back to the sender.
type LocalServer struct {
	conn LineConn

	ircd *Ircd

	// The peer's server name.
	name string

	// Remote nicks announced with NICK but whose USER has not arrived yet,
	// with the hopcount they were announced with.
	pendingNicks map[string]int

	pingSent bool
}

// NewLocalServer creates a LocalServer.
func NewLocalServer(ircd *Ircd, conn LineConn, name string) *LocalServer {
	return &LocalServer{
		conn:         conn,
		ircd:         ircd,
		name:         name,
		pendingNicks: make(map[string]int),
	}
}

func (s *LocalServer) String() string {
	return s.name
}

func (s *LocalServer) send(m irc.Message) {
	line, err := m.Encode()
	if err != nil {
		log.Printf("Server %s: Cannot encode message: %s", s, err)
		return
	}
	if err := s.conn.WriteLine(line); err != nil {
		log.Printf("Server %s: %s", s, err)
	}
}

// sendBurst sends the peer our view of the network: every linked server,
// every client, and every channel membership and topic.
func (s *LocalServer) sendBurst() {
	for _, server := range s.ircd.directory.GetAllServers() {
		if server.Name == s.name {
			continue
		}
		s.send(irc.Message{
			Prefix:  s.ircd.config.ServerName,
			Command: "SERVER",
			Params:  []string{server.Name, strconv.Itoa(server.Hopcount + 1)},
		}.WithTrailing(server.Info))
	}

	for _, client := range s.ircd.directory.GetAllClients() {
		s.send(irc.Message{
			Command: "NICK",
			Params:  []string{client.Nickname, strconv.Itoa(client.Hopcount + 1)},
		})
		s.send(irc.Message{
			Prefix:  client.Nickname,
			Command: "USER",
			Params:  []string{client.Username, client.Hostname, client.Servername},
		}.WithTrailing(client.Realname))
		if client.Away {
			s.send(irc.Message{
				Prefix:  client.Nickname,
				Command: "AWAY",
			}.WithTrailing(client.AwayMessage))
		}
	}

	for _, ch := range s.ircd.directory.GetAllChannels() {
		for _, member := range ch.Members {
			s.send(irc.Message{
				Prefix:  member,
				Command: "JOIN",
				Params:  []string{ch.Name},
			})
		}
		if ch.HasTopic {
			s.send(irc.Message{
				Prefix:  s.ircd.config.ServerName,
				Command: "TOPIC",
				Params:  []string{ch.Name},
			}.WithTrailing(ch.Topic))
		}
	}
}

// run reads and applies relayed messages until the link dies or we receive
// SQUIT for ourselves.
func (s *LocalServer) run() {
	for {
		line, err := s.conn.ReadLine()
		if err != nil {
			if isTimeout(err) {
				if !s.pingSent {
					s.send(irc.Message{
						Command: "PING",
						Params:  []string{s.ircd.config.ServerName},
					})
					s.pingSent = true
					continue
				}
			}
			log.Printf("Server %s: %s", s, err)
			s.ircd.delinkServer(s.name)
			return
		}
		s.pingSent = false

		m, err := irc.ParseMessage(line)
		if err != nil {
			log.Printf("Server %s: Invalid message: %s", s, err)
			continue
		}

		s.handleMessage(m)
	}
}

func (s *LocalServer) handleMessage(m irc.Message) {
	switch m.Command {
	case "NICK":
		s.nickCommand(m)
	case "USER":
		s.userCommand(m)
	case "PRIVMSG", "NOTICE":
		s.privmsgCommand(m)
	case "JOIN":
		s.joinCommand(m)
	case "PART":
		s.partCommand(m)
	case "TOPIC":
		s.topicCommand(m)
	case "KICK":
		s.kickCommand(m)
	case "INVITE":
		s.inviteCommand(m)
	case "MODE":
		s.modeCommand(m)
	case "AWAY":
		s.awayCommand(m)
	case "QUIT":
		s.quitCommand(m)
	case "SERVER":
		s.serverCommand(m)
	case "SQUIT":
		s.squitCommand(m)
	case "PING":
		pong := irc.Message{Command: "PONG", Params: m.Params}
		s.send(pong)
	case "PONG":
		// Activity alone is enough.
	default:
		if isNumericCommand(m.Command) {
			// Responses like 436 carry no state we track.
			return
		}
		log.Printf("Server %s: Unknown command: %s", s, m.Command)
	}
}

// NICK announces a remote client. The identity record completes when its
// USER arrives.
func (s *LocalServer) nickCommand(m irc.Message) {
	if m.Prefix != "" {
		// A nickname change by a remote client.
		s.nickChange(m)
		return
	}

	if len(m.Params) < 2 {
		return
	}
	nick := m.Params[0]
	hopcount, err := strconv.Atoi(m.Params[1])
	if err != nil || hopcount < 1 {
		return
	}

	if s.ircd.directory.ContainsClient(nick) {
		// Best effort collision response.
		// 436 ERR_NICKCOLLISION
		s.send(irc.Message{
			Command: "436",
			Params:  []string{nick},
		}.WithTrailing("Nickname collision KILL"))
		return
	}

	s.pendingNicks[nick] = hopcount
}

func (s *LocalServer) nickChange(m irc.Message) {
	if len(m.Params) == 0 {
		return
	}
	old := m.Prefix
	new := m.Params[0]

	if err := s.ircd.directory.UpdateNickname(old, new); err != nil {
		log.Printf("Server %s: NICK %s -> %s: %s", s, old, new, err)
		return
	}

	notice := irc.Message{Prefix: old, Command: "NICK", Params: []string{new}}
	for _, channel := range s.ircd.directory.GetChannelsForClient(new) {
		s.ircd.sendToChannelMembers(channel, "", notice)
	}
	s.ircd.broadcastToPeers(s.name, notice)
}

func (s *LocalServer) userCommand(m irc.Message) {
	if m.Prefix == "" || len(m.Params) < 3 {
		return
	}
	nick := m.Prefix

	hopcount, ok := s.pendingNicks[nick]
	if !ok {
		log.Printf("Server %s: USER for unannounced nick %s", s, nick)
		return
	}
	delete(s.pendingNicks, nick)

	info := ClientInfo{
		Nickname:   nick,
		Username:   m.Params[0],
		Hostname:   m.Params[1],
		Servername: m.Params[2],
		Realname:   m.Trailing,
		Hopcount:   hopcount,
	}
	if err := s.ircd.directory.AddExternalClient(info, s.name); err != nil {
		log.Printf("Server %s: %s", s, err)
		return
	}

	// Hop count increases for the next hop.
	s.ircd.broadcastToPeers(s.name, irc.Message{
		Command: "NICK",
		Params:  []string{nick, strconv.Itoa(hopcount + 1)},
	})
	s.ircd.broadcastToPeers(s.name, m)
}

// privmsgCommand routes a relayed PRIVMSG or NOTICE toward its target.
// Errors have no one to report to, so misrouted messages are dropped.
func (s *LocalServer) privmsgCommand(m irc.Message) {
	if m.Prefix == "" || len(m.Params) == 0 {
		return
	}
	target := m.Params[0]

	if s.ircd.directory.ContainsClient(target) {
		s.ircd.deliverToClient(target, m)
		return
	}

	if s.ircd.directory.ContainsChannel(target) {
		s.ircd.sendToChannelMembers(target, m.Prefix, m)
		s.ircd.sendToChannelPeers(target, s.name, m)
		return
	}

	log.Printf("Server %s: %s for unknown target %s", s, m.Command, target)
}

func (s *LocalServer) joinCommand(m irc.Message) {
	if m.Prefix == "" || len(m.Params) == 0 {
		return
	}
	channel := m.Params[0]

	if _, err := s.ircd.directory.AddClientToChannel(m.Prefix, channel); err != nil {
		log.Printf("Server %s: JOIN: %s", s, err)
		return
	}

	s.ircd.sendToChannelMembers(channel, m.Prefix, m)
	s.ircd.broadcastToPeers(s.name, m)
}

func (s *LocalServer) partCommand(m irc.Message) {
	if m.Prefix == "" || len(m.Params) == 0 {
		return
	}
	channel := m.Params[0]

	s.ircd.sendToChannelMembers(channel, m.Prefix, m)
	s.ircd.broadcastToPeers(s.name, m)

	s.ircd.directory.RemoveClientFromChannel(m.Prefix, channel)
}

func (s *LocalServer) topicCommand(m irc.Message) {
	if len(m.Params) == 0 || !m.HasTrailing {
		return
	}
	channel := m.Params[0]

	s.ircd.directory.SetChannelTopic(channel, m.Trailing)

	s.ircd.sendToChannelMembers(channel, m.Prefix, m)
	s.ircd.broadcastToPeers(s.name, m)
}

func (s *LocalServer) kickCommand(m irc.Message) {
	if len(m.Params) < 2 {
		return
	}
	channel := m.Params[0]
	target := m.Params[1]

	s.ircd.sendToChannelMembers(channel, "", m)
	s.ircd.broadcastToPeers(s.name, m)

	s.ircd.directory.RemoveClientFromChannel(target, channel)
}

func (s *LocalServer) inviteCommand(m irc.Message) {
	if len(m.Params) < 2 {
		return
	}
	target := m.Params[0]
	channel := m.Params[1]

	s.ircd.directory.AddInvite(channel, target)
	s.ircd.deliverToClient(target, m)
}

// modeCommand applies a relayed channel mode change. The sender already
// validated privileges; we only mirror the effect.
func (s *LocalServer) modeCommand(m irc.Message) {
	if len(m.Params) < 2 {
		return
	}
	channel := m.Params[0]
	request := m.Params[1]
	arg := ""
	if len(m.Params) > 2 {
		arg = m.Params[2]
	}

	if len(request) != 2 || (request[0] != '+' && request[0] != '-') {
		return
	}
	adding := request[0] == '+'
	letter := request[1]

	d := s.ircd.directory
	switch letter {
	case 'o':
		if adding {
			d.AddChannelOperator(channel, arg)
		} else {
			d.RemoveChannelOperator(channel, arg)
		}
	case 'v':
		if adding {
			d.AddChannelSpeaker(channel, arg)
		} else {
			d.RemoveChannelSpeaker(channel, arg)
		}
	case 'b':
		if adding {
			d.AddBanmask(channel, arg)
		} else {
			d.RemoveBanmask(channel, arg)
		}
	case 'k':
		if adding {
			if err := d.SetChannelKey(channel, arg); err != nil {
				log.Printf("Server %s: MODE: %s", s, err)
				return
			}
		} else {
			d.UnsetChannelKey(channel)
		}
	case 'l':
		if adding {
			limit, err := strconv.Atoi(arg)
			if err != nil || limit <= 0 {
				return
			}
			d.SetChannelLimit(channel, limit)
		} else {
			d.UnsetChannelLimit(channel)
		}
	case ChannelFlagInviteOnly, ChannelFlagModerated, ChannelFlagNoOutsideMsgs,
		ChannelFlagPrivate, ChannelFlagSecret, ChannelFlagTopicByOper:
		if adding {
			d.SetChannelFlag(channel, letter)
		} else {
			d.UnsetChannelFlag(channel, letter)
		}
	default:
		return
	}

	s.ircd.sendToChannelMembers(channel, m.Prefix, m)
	s.ircd.broadcastToPeers(s.name, m)
}

func (s *LocalServer) awayCommand(m irc.Message) {
	if m.Prefix == "" {
		return
	}

	if m.HasTrailing && m.Trailing != "" {
		s.ircd.directory.SetAwayMessage(m.Prefix, m.Trailing, true)
	} else {
		s.ircd.directory.SetAwayMessage(m.Prefix, "", false)
	}

	s.ircd.broadcastToPeers(s.name, m)
}

func (s *LocalServer) quitCommand(m irc.Message) {
	if m.Prefix == "" {
		return
	}
	nick := m.Prefix

	notice := irc.Message{Prefix: nick, Command: "QUIT"}
	if m.HasTrailing {
		notice = notice.WithTrailing(m.Trailing)
	}
	for _, channel := range s.ircd.directory.GetChannelsForClient(nick) {
		s.ircd.sendToChannelMembers(channel, nick, notice)
	}

	s.ircd.directory.RemoveClient(nick)
	s.ircd.broadcastToPeers(s.name, notice)
}

// serverCommand learns about a server linked somewhere behind this peer.
func (s *LocalServer) serverCommand(m irc.Message) {
	if len(m.Params) < 2 {
		return
	}
	name := m.Params[0]
	hopcount, err := strconv.Atoi(m.Params[1])
	if err != nil || hopcount < 1 {
		return
	}

	server := Server{
		Name:     name,
		Info:     m.Trailing,
		Hopcount: hopcount,
		Via:      s.name,
	}
	if err := s.ircd.directory.AddServer(server, nil); err != nil {
		log.Printf("Server %s: %s", s, err)
		return
	}

	s.ircd.broadcastToPeers(s.name, irc.Message{
		Prefix:  m.Prefix,
		Command: "SERVER",
		Params:  []string{name, strconv.Itoa(hopcount + 1)},
	}.WithTrailing(m.Trailing))
}

func (s *LocalServer) squitCommand(m irc.Message) {
	if len(m.Params) == 0 {
		return
	}
	name := m.Params[0]

	s.ircd.removeServer(name)
	s.ircd.broadcastToPeers(s.name, m)
}
