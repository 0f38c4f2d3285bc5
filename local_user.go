package main

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/JulianGCalderon-FIUBA/servidor-irc-sub001/irc"
)

// LocalUser is the handler for a registered client connection. It reads
// commands from the socket, validates them, mutates the Directory, and fans
// out replies and notifications.
type LocalUser struct {
	conn LineConn

	ircd *Ircd

	// Current nickname. Changes on NICK.
	nick string

	// Set once we sent a PING after a quiet period. A second quiet period
	// without a PONG means the connection is dead.
	pingSent bool
}

// NewLocalUser creates a LocalUser.
func NewLocalUser(ircd *Ircd, conn LineConn, nick string) *LocalUser {
	return &LocalUser{
		conn: conn,
		ircd: ircd,
		nick: nick,
	}
}

func (u *LocalUser) String() string {
	return fmt.Sprintf("%s %s", u.nick, u.conn.PeerAddress())
}

func (u *LocalUser) send(m irc.Message) {
	line, err := m.Encode()
	if err != nil {
		log.Printf("User %s: Cannot encode message: %s", u, err)
		return
	}
	if err := u.conn.WriteLine(line); err != nil {
		log.Printf("User %s: %s", u, err)
	}
}

// reply sends a numeric reply to the user. Replies with no text, like 341,
// pass an empty trailing and get none on the wire.
func (u *LocalUser) reply(code string, params []string, trailing string) {
	m := irc.Message{Command: code, Params: params}
	if len(trailing) > 0 {
		m = m.WithTrailing(trailing)
	}
	u.send(m)
}

// run reads and dispatches commands until the connection dies or the user
// quits.
func (u *LocalUser) run() {
	for {
		line, err := u.conn.ReadLine()
		if err != nil {
			if isTimeout(err) {
				if !u.pingSent {
					u.send(irc.Message{
						Command: "PING",
						Params:  []string{u.ircd.config.ServerName},
					})
					u.pingSent = true
					continue
				}
				u.ircd.quitUser(u.nick, "Ping timeout")
				return
			}
			log.Printf("User %s: %s", u, err)
			u.ircd.quitUser(u.nick, "Connection closed")
			return
		}
		u.pingSent = false

		m, err := irc.ParseMessage(line)
		if err != nil {
			u.reply("200", nil, "Parsing error")
			continue
		}

		if u.handleMessage(m) {
			return
		}
	}
}

// handleMessage dispatches one command. Returns true when the connection is
// finished.
func (u *LocalUser) handleMessage(m irc.Message) bool {
	switch m.Command {
	case "NICK":
		u.nickCommand(m)
	case "OPER":
		u.operCommand(m)
	case "PRIVMSG":
		u.privmsgCommand(m, false)
	case "NOTICE":
		u.privmsgCommand(m, true)
	case "JOIN":
		u.joinCommand(m)
	case "PART":
		u.partCommand(m)
	case "TOPIC":
		u.topicCommand(m)
	case "KICK":
		u.kickCommand(m)
	case "INVITE":
		u.inviteCommand(m)
	case "MODE":
		u.modeCommand(m)
	case "LIST":
		u.listCommand(m)
	case "NAMES":
		u.namesCommand(m)
	case "WHO":
		u.whoCommand(m)
	case "WHOIS":
		u.whoisCommand(m)
	case "AWAY":
		u.awayCommand(m)
	case "PING":
		u.pingCommand(m)
	case "PONG":
		// Activity alone is enough. Nothing more to do.
	case "QUIT":
		u.quitCommand(m)
		return true
	default:
		// 421 ERR_UNKNOWNCOMMAND
		u.reply("421", []string{m.Command}, "Unknown command")
	}
	return false
}

// NICK after registration changes the nickname.
func (u *LocalUser) nickCommand(m irc.Message) {
	params := m.AllParams()
	if len(params) == 0 {
		// 431 ERR_NONICKNAMEGIVEN
		u.reply("431", nil, "No nickname given")
		return
	}
	nick := params[0]

	if !isValidNick(nick) {
		// 432 ERR_ERRONEUSNICKNAME
		u.reply("432", []string{nick}, "Erroneous nickname")
		return
	}

	old := u.nick
	if err := u.ircd.directory.UpdateNickname(old, nick); err != nil {
		// 433 ERR_NICKNAMEINUSE
		u.reply("433", []string{nick}, "Nickname is already in use")
		return
	}
	u.nick = nick

	notice := irc.Message{Prefix: old, Command: "NICK", Params: []string{nick}}
	for _, channel := range u.ircd.directory.GetChannelsForClient(nick) {
		u.ircd.sendToChannelMembers(channel, nick, notice)
	}
	u.ircd.broadcastToPeers("", notice)
}

func (u *LocalUser) operCommand(m irc.Message) {
	params := m.AllParams()
	if len(params) < 2 {
		// 461 ERR_NEEDMOREPARAMS
		u.reply("461", []string{"OPER"}, "Not enough parameters")
		return
	}

	if !u.ircd.directory.CheckOperatorCredentials(params[0], params[1]) {
		// 464 ERR_PASSWDMISMATCH
		u.reply("464", nil, "Password incorrect")
		return
	}

	u.ircd.directory.SetServerOperator(u.nick)
	// 381 RPL_YOUREOPER
	u.reply("381", nil, "You are now an IRC operator")
}

// privmsgCommand handles both PRIVMSG and NOTICE. The only differences are
// the command word, that missing text is an error only for PRIVMSG, and
// that only PRIVMSG triggers an away reply.
func (u *LocalUser) privmsgCommand(m irc.Message, notice bool) {
	command := "PRIVMSG"
	if notice {
		command = "NOTICE"
	}

	if len(m.Params) == 0 {
		// 411 ERR_NORECIPIENT
		u.reply("411", nil, fmt.Sprintf("No recipient given (%s)", command))
		return
	}
	if !m.HasTrailing || len(m.Trailing) == 0 {
		if notice {
			return
		}
		// 412 ERR_NOTEXTTOSEND
		u.reply("412", nil, "No text to send")
		return
	}

	for _, target := range commaList(m.Params[0]) {
		u.messageTarget(command, target, m.Trailing, notice)
	}
}

// messageTarget delivers one PRIVMSG/NOTICE to a nickname or a channel.
// Nicknames take precedence over channels when a name matches both.
func (u *LocalUser) messageTarget(command, target, text string, notice bool) {
	msg := irc.Message{
		Prefix:  u.nick,
		Command: command,
		Params:  []string{target},
	}.WithTrailing(text)

	if client, ok := u.ircd.directory.GetClient(target); ok {
		u.ircd.deliverToClient(target, msg)
		if !notice && client.Away {
			// 301 RPL_AWAY
			u.reply("301", []string{target}, client.AwayMessage)
		}
		return
	}

	ch, ok := u.ircd.directory.GetChannel(target)
	if !ok {
		// 401 ERR_NOSUCHNICK
		u.reply("401", []string{target}, "No such nick/channel")
		return
	}

	if ch.HasFlag(ChannelFlagNoOutsideMsgs) && !ch.hasMemberName(u.nick) {
		// 404 ERR_CANNOTSENDTOCHAN
		u.reply("404", []string{target}, "Cannot send to channel")
		return
	}
	if ch.HasFlag(ChannelFlagModerated) &&
		!u.ircd.directory.IsChannelOperator(target, u.nick) &&
		!u.ircd.directory.IsChannelSpeaker(target, u.nick) {
		u.reply("404", []string{target}, "Cannot send to channel")
		return
	}

	u.ircd.sendToChannelMembers(target, u.nick, msg)
	u.ircd.sendToChannelPeers(target, "", msg)
}

func (u *LocalUser) joinCommand(m irc.Message) {
	params := m.AllParams()
	if len(params) == 0 {
		// 461 ERR_NEEDMOREPARAMS
		u.reply("461", []string{"JOIN"}, "Not enough parameters")
		return
	}

	channels := commaList(params[0])
	var keys []string
	if len(params) > 1 {
		keys = commaList(params[1])
	}

	for i, channel := range channels {
		key := ""
		if i < len(keys) {
			key = keys[i]
		}
		u.joinChannel(channel, key)
	}
}

func (u *LocalUser) joinChannel(channel, key string) {
	if !isValidChannel(channel) {
		// 403 ERR_NOSUCHCHANNEL
		u.reply("403", []string{channel}, "No such channel")
		return
	}

	if len(u.ircd.directory.GetChannelsForClient(u.nick)) >= maxChannelsPerClient {
		// 405 ERR_TOOMANYCHANNELS
		u.reply("405", []string{channel}, "You have joined too many channels")
		return
	}

	if ch, ok := u.ircd.directory.GetChannel(channel); ok {
		if ch.hasMemberName(u.nick) {
			return
		}
		if ch.HasFlag(ChannelFlagInviteOnly) &&
			!u.ircd.directory.IsInvited(channel, u.nick) &&
			!u.ircd.directory.IsServerOperator(u.nick) {
			// 473 ERR_INVITEONLYCHAN
			u.reply("473", []string{channel}, "Cannot join channel (+i)")
			return
		}
		if ch.HasKey && ch.Key != key {
			// 475 ERR_BADCHANNELKEY
			u.reply("475", []string{channel}, "Cannot join channel (+k)")
			return
		}
		if ch.UserLimit > 0 && len(ch.Members) >= ch.UserLimit {
			// 471 ERR_CHANNELISFULL
			u.reply("471", []string{channel}, "Cannot join channel (+l)")
			return
		}
		if u.ircd.directory.MatchesBanmask(channel, u.nick) {
			// 474 ERR_BANNEDFROMCHAN
			u.reply("474", []string{channel}, "Cannot join channel (+b)")
			return
		}
	}

	if _, err := u.ircd.directory.AddClientToChannel(u.nick, channel); err != nil {
		u.reply("403", []string{channel}, "No such channel")
		return
	}

	notice := irc.Message{Prefix: u.nick, Command: "JOIN", Params: []string{channel}}
	u.ircd.sendToChannelMembers(channel, "", notice)
	u.ircd.broadcastToPeers("", notice)

	ch, ok := u.ircd.directory.GetChannel(channel)
	if !ok {
		return
	}
	u.sendTopicReply(ch)
	// 353 RPL_NAMREPLY, 366 RPL_ENDOFNAMES
	u.reply("353", []string{channel}, ch.Names)
	u.reply("366", []string{channel}, "End of /NAMES list")
}

func (u *LocalUser) sendTopicReply(ch ChannelInfo) {
	if ch.HasTopic {
		// 332 RPL_TOPIC
		u.reply("332", []string{ch.Name}, ch.Topic)
	} else {
		// 331 RPL_NOTOPIC
		u.reply("331", []string{ch.Name}, "No topic is set")
	}
}

func (u *LocalUser) partCommand(m irc.Message) {
	if len(m.Params) == 0 {
		// 461 ERR_NEEDMOREPARAMS
		u.reply("461", []string{"PART"}, "Not enough parameters")
		return
	}

	for _, channel := range commaList(m.Params[0]) {
		u.partChannel(channel, m)
	}
}

func (u *LocalUser) partChannel(channel string, m irc.Message) {
	ch, ok := u.ircd.directory.GetChannel(channel)
	if !ok {
		// 403 ERR_NOSUCHCHANNEL
		u.reply("403", []string{channel}, "No such channel")
		return
	}
	if !ch.hasMemberName(u.nick) {
		// 442 ERR_NOTONCHANNEL
		u.reply("442", []string{channel}, "You're not on that channel")
		return
	}

	notice := irc.Message{Prefix: u.nick, Command: "PART", Params: []string{channel}}
	if m.HasTrailing {
		notice = notice.WithTrailing(m.Trailing)
	}
	u.ircd.sendToChannelMembers(channel, "", notice)
	u.ircd.broadcastToPeers("", notice)

	u.ircd.directory.RemoveClientFromChannel(u.nick, channel)
}

func (u *LocalUser) topicCommand(m irc.Message) {
	if len(m.Params) == 0 {
		// 461 ERR_NEEDMOREPARAMS
		u.reply("461", []string{"TOPIC"}, "Not enough parameters")
		return
	}
	channel := m.Params[0]

	ch, ok := u.ircd.directory.GetChannel(channel)
	if !ok {
		// 403 ERR_NOSUCHCHANNEL
		u.reply("403", []string{channel}, "No such channel")
		return
	}
	if !ch.hasMemberName(u.nick) {
		// 442 ERR_NOTONCHANNEL
		u.reply("442", []string{channel}, "You're not on that channel")
		return
	}

	if !m.HasTrailing {
		u.sendTopicReply(ch)
		return
	}

	if ch.HasFlag(ChannelFlagTopicByOper) &&
		!u.ircd.directory.IsChannelOperator(channel, u.nick) {
		// 482 ERR_CHANOPRIVSNEEDED
		u.reply("482", []string{channel}, "You're not channel operator")
		return
	}

	topic := m.Trailing
	if len(topic) > maxTopicLength {
		topic = topic[:maxTopicLength]
	}

	// An empty trailing clears the topic.
	u.ircd.directory.SetChannelTopic(channel, topic)

	notice := irc.Message{
		Prefix:  u.nick,
		Command: "TOPIC",
		Params:  []string{channel},
	}.WithTrailing(topic)
	u.ircd.sendToChannelMembers(channel, "", notice)
	u.ircd.broadcastToPeers("", notice)
}

func (u *LocalUser) kickCommand(m irc.Message) {
	if len(m.Params) < 2 {
		// 461 ERR_NEEDMOREPARAMS
		u.reply("461", []string{"KICK"}, "Not enough parameters")
		return
	}

	channels := commaList(m.Params[0])
	targets := commaList(m.Params[1])

	for i, channel := range channels {
		if i >= len(targets) {
			break
		}
		u.kickTarget(channel, targets[i], m)
	}
}

func (u *LocalUser) kickTarget(channel, target string, m irc.Message) {
	ch, ok := u.ircd.directory.GetChannel(channel)
	if !ok {
		// 403 ERR_NOSUCHCHANNEL
		u.reply("403", []string{channel}, "No such channel")
		return
	}
	if !u.ircd.directory.IsChannelOperator(channel, u.nick) {
		// 482 ERR_CHANOPRIVSNEEDED
		u.reply("482", []string{channel}, "You're not channel operator")
		return
	}
	if !ch.hasMemberName(target) {
		// 441 ERR_USERNOTINCHANNEL
		u.reply("441", []string{target, channel}, "They aren't on that channel")
		return
	}

	notice := irc.Message{
		Prefix:  u.nick,
		Command: "KICK",
		Params:  []string{channel, target},
	}
	if m.HasTrailing {
		notice = notice.WithTrailing(m.Trailing)
	}
	u.ircd.sendToChannelMembers(channel, "", notice)
	u.ircd.broadcastToPeers("", notice)

	u.ircd.directory.RemoveClientFromChannel(target, channel)
}

func (u *LocalUser) inviteCommand(m irc.Message) {
	params := m.AllParams()
	if len(params) < 2 {
		// 461 ERR_NEEDMOREPARAMS
		u.reply("461", []string{"INVITE"}, "Not enough parameters")
		return
	}
	target := params[0]
	channel := params[1]

	if !u.ircd.directory.ContainsClient(target) {
		// 401 ERR_NOSUCHNICK
		u.reply("401", []string{target}, "No such nick/channel")
		return
	}

	if ch, ok := u.ircd.directory.GetChannel(channel); ok {
		if !ch.hasMemberName(u.nick) {
			// 442 ERR_NOTONCHANNEL
			u.reply("442", []string{channel}, "You're not on that channel")
			return
		}
		if ch.hasMemberName(target) {
			// 443 ERR_USERONCHANNEL
			u.reply("443", []string{target, channel}, "Is already on channel")
			return
		}
		if ch.HasFlag(ChannelFlagInviteOnly) &&
			!u.ircd.directory.IsChannelOperator(channel, u.nick) {
			// 482 ERR_CHANOPRIVSNEEDED
			u.reply("482", []string{channel}, "You're not channel operator")
			return
		}
		u.ircd.directory.AddInvite(channel, target)
	}

	u.ircd.deliverToClient(target, irc.Message{
		Prefix:  u.nick,
		Command: "INVITE",
		Params:  []string{target, channel},
	})

	// 341 RPL_INVITING
	u.reply("341", []string{channel, target}, "")
}

func (u *LocalUser) modeCommand(m irc.Message) {
	params := m.AllParams()
	if len(params) == 0 {
		// 461 ERR_NEEDMOREPARAMS
		u.reply("461", []string{"MODE"}, "Not enough parameters")
		return
	}
	target := params[0]

	if !isValidChannel(target) {
		// Only channel modes are supported.
		return
	}

	ch, ok := u.ircd.directory.GetChannel(target)
	if !ok {
		// 403 ERR_NOSUCHCHANNEL
		u.reply("403", []string{target}, "No such channel")
		return
	}
	if !ch.hasMemberName(u.nick) {
		// 442 ERR_NOTONCHANNEL
		u.reply("442", []string{target}, "You're not on that channel")
		return
	}

	if len(params) == 1 {
		return
	}

	u.applyModeRequests(target, params[1:])
}

// applyModeRequests walks the request tokens. Each token is a '+' or '-'
// followed by flag letters; letters that take an argument consume the next
// token. The only query form, +b with no argument, lists the banmasks.
func (u *LocalUser) applyModeRequests(channel string, requests []string) {
	i := 0
	for i < len(requests) {
		token := requests[i]
		i++

		if len(token) < 2 || (token[0] != '+' && token[0] != '-') {
			// 472 ERR_UNKNOWNMODE
			u.reply("472", []string{token}, "Is unknown mode char to me")
			continue
		}
		adding := token[0] == '+'

		for _, letter := range []byte(token[1:]) {
			arg := ""
			if modeLetterTakesArg(letter, adding) && i < len(requests) {
				arg = requests[i]
				i++
			}
			u.applyModeRequest(channel, adding, letter, arg)
		}
	}
}

func modeLetterTakesArg(letter byte, adding bool) bool {
	switch letter {
	case 'o', 'v':
		return true
	case 'b', 'k', 'l':
		return adding
	}
	return false
}

func (u *LocalUser) applyModeRequest(channel string, adding bool, letter byte, arg string) {
	// +b with no argument is a query and needs no privileges.
	if letter == 'b' && adding && len(arg) == 0 {
		ch, ok := u.ircd.directory.GetChannel(channel)
		if !ok {
			return
		}
		for _, mask := range ch.Banmasks {
			// 367 RPL_BANLIST
			u.reply("367", []string{channel, mask}, "")
		}
		// 368 RPL_ENDOFBANLIST
		u.reply("368", []string{channel}, "End of channel ban list")
		return
	}

	if !u.ircd.directory.IsChannelOperator(channel, u.nick) {
		// 482 ERR_CHANOPRIVSNEEDED
		u.reply("482", []string{channel}, "You're not channel operator")
		return
	}

	sign := "+"
	if !adding {
		sign = "-"
	}
	request := sign + string(letter)

	switch letter {
	case 'o':
		if len(arg) == 0 {
			return
		}
		if adding {
			u.ircd.directory.AddChannelOperator(channel, arg)
		} else {
			u.ircd.directory.RemoveChannelOperator(channel, arg)
		}
		u.broadcastMode(channel, request, arg)
	case 'v':
		if len(arg) == 0 {
			return
		}
		if adding {
			u.ircd.directory.AddChannelSpeaker(channel, arg)
		} else {
			u.ircd.directory.RemoveChannelSpeaker(channel, arg)
		}
		u.broadcastMode(channel, request, arg)
	case 'b':
		if adding {
			u.ircd.directory.AddBanmask(channel, arg)
			u.broadcastMode(channel, request, arg)
		} else {
			if len(arg) == 0 {
				return
			}
			u.ircd.directory.RemoveBanmask(channel, arg)
			u.broadcastMode(channel, request, arg)
		}
	case 'k':
		if adding {
			if len(arg) == 0 {
				return
			}
			if err := u.ircd.directory.SetChannelKey(channel, arg); err != nil {
				// 467 ERR_KEYSET
				u.reply("467", []string{channel}, "Channel key already set")
				return
			}
			u.broadcastMode(channel, request, arg)
		} else {
			u.ircd.directory.UnsetChannelKey(channel)
			u.broadcastMode(channel, request, "")
		}
	case 'l':
		if adding {
			limit, err := strconv.Atoi(arg)
			if err != nil || limit <= 0 {
				return
			}
			u.ircd.directory.SetChannelLimit(channel, limit)
			u.broadcastMode(channel, request, arg)
		} else {
			u.ircd.directory.UnsetChannelLimit(channel)
			u.broadcastMode(channel, request, "")
		}
	case ChannelFlagInviteOnly, ChannelFlagModerated, ChannelFlagNoOutsideMsgs,
		ChannelFlagPrivate, ChannelFlagSecret, ChannelFlagTopicByOper:
		if adding {
			u.ircd.directory.SetChannelFlag(channel, letter)
		} else {
			u.ircd.directory.UnsetChannelFlag(channel, letter)
		}
		u.broadcastMode(channel, request, "")
	default:
		// 472 ERR_UNKNOWNMODE
		u.reply("472", []string{string(letter)}, "Is unknown mode char to me")
	}
}

func (u *LocalUser) broadcastMode(channel, request, arg string) {
	params := []string{channel, request}
	if len(arg) > 0 {
		params = append(params, arg)
	}
	notice := irc.Message{Prefix: u.nick, Command: "MODE", Params: params}
	u.ircd.sendToChannelMembers(channel, "", notice)
	u.ircd.broadcastToPeers("", notice)
}

func (u *LocalUser) listCommand(m irc.Message) {
	var channels []ChannelInfo
	if len(m.Params) > 0 {
		for _, name := range commaList(m.Params[0]) {
			if ch, ok := u.ircd.directory.GetChannel(name); ok {
				channels = append(channels, ch)
			}
		}
	} else {
		channels = u.ircd.directory.GetAllChannels()
	}

	// 321 RPL_LISTSTART
	u.reply("321", nil, "Channel :Users Name")
	for _, ch := range channels {
		member := ch.hasMemberName(u.nick)
		if ch.HasFlag(ChannelFlagSecret) && !member {
			continue
		}

		text := "No topic set"
		switch {
		case ch.HasFlag(ChannelFlagPrivate) && !member:
			text = "Prv"
		case ch.HasTopic:
			text = ch.Topic
		}
		// 322 RPL_LIST
		u.reply("322", []string{ch.Name}, text)
	}
	// 323 RPL_LISTEND
	u.reply("323", nil, "End of /LIST")
}

func (u *LocalUser) namesCommand(m irc.Message) {
	var channels []ChannelInfo
	endParam := "*"
	if len(m.Params) > 0 {
		endParam = m.Params[0]
		for _, name := range commaList(m.Params[0]) {
			if ch, ok := u.ircd.directory.GetChannel(name); ok {
				channels = append(channels, ch)
			}
		}
	} else {
		channels = u.ircd.directory.GetAllChannels()
	}

	for _, ch := range channels {
		if ch.HasFlag(ChannelFlagSecret) && !ch.hasMemberName(u.nick) {
			continue
		}
		// 353 RPL_NAMREPLY
		u.reply("353", []string{ch.Name}, ch.Names)
	}
	// 366 RPL_ENDOFNAMES
	u.reply("366", []string{endParam}, "End of /NAMES list")
}

func (u *LocalUser) whoCommand(m irc.Message) {
	mask := ""
	if len(m.Params) > 0 {
		mask = m.Params[0]
	}

	for _, client := range u.ircd.directory.GetAllClients() {
		if len(mask) > 0 && !clientMatchesMask(client, mask) {
			continue
		}

		channel := "*"
		if chans := u.ircd.directory.GetChannelsForClient(client.Nickname); len(chans) > 0 {
			channel = chans[len(chans)-1]
		}

		modes := "H"
		if client.Away {
			modes = "G"
		}
		if client.Operator {
			modes += "*"
		}

		// 352 RPL_WHOREPLY
		u.reply("352",
			[]string{channel, client.Username, client.Hostname,
				client.Servername, client.Nickname, modes},
			fmt.Sprintf("%d %s", client.Hopcount, client.Realname))
	}

	// 315 RPL_ENDOFWHO
	endParams := []string{}
	if len(mask) > 0 {
		endParams = append(endParams, mask)
	}
	u.reply("315", endParams, "End of /WHO list")
}

// clientMatchesMask reports whether any public attribute of the client
// matches the glob.
func clientMatchesMask(client ClientInfo, mask string) bool {
	return matchesMask(mask, client.Nickname) ||
		matchesMask(mask, client.Username) ||
		matchesMask(mask, client.Hostname) ||
		matchesMask(mask, client.Servername) ||
		matchesMask(mask, client.Realname)
}

func (u *LocalUser) whoisCommand(m irc.Message) {
	params := m.AllParams()
	if len(params) == 0 {
		// 461 ERR_NEEDMOREPARAMS
		u.reply("461", []string{"WHOIS"}, "Not enough parameters")
		return
	}
	// With two parameters the first names a server to query. We answer
	// everything locally.
	mask := params[len(params)-1]

	matched := false
	for _, client := range u.ircd.directory.GetAllClients() {
		if !matchesMask(mask, client.Nickname) {
			continue
		}
		matched = true
		u.sendWhoisReplies(client)
	}

	if !matched {
		// 401 ERR_NOSUCHNICK
		u.reply("401", []string{mask}, "No such nick/channel")
		return
	}

	// 318 RPL_ENDOFWHOIS
	u.reply("318", []string{mask}, "End of /WHOIS list")
}

func (u *LocalUser) sendWhoisReplies(client ClientInfo) {
	// 311 RPL_WHOISUSER
	u.reply("311",
		[]string{client.Nickname, client.Username, client.Hostname, "*"},
		client.Realname)

	// 312 RPL_WHOISSERVER
	u.reply("312", []string{client.Nickname, client.Servername},
		u.ircd.serverInfo(client.Servername))

	if client.Operator {
		// 313 RPL_WHOISOPERATOR
		u.reply("313", []string{client.Nickname}, "Is an IRC operator")
	}

	var channels []string
	for _, name := range u.ircd.directory.GetChannelsForClient(client.Nickname) {
		ch, ok := u.ircd.directory.GetChannel(name)
		if !ok {
			continue
		}
		if ch.HasFlag(ChannelFlagSecret) && !ch.hasMemberName(u.nick) {
			continue
		}
		switch {
		case u.ircd.directory.IsChannelOperator(name, client.Nickname):
			channels = append(channels, "@"+name)
		case u.ircd.directory.IsChannelSpeaker(name, client.Nickname):
			channels = append(channels, "+"+name)
		default:
			channels = append(channels, name)
		}
	}
	if len(channels) > 0 {
		// 319 RPL_WHOISCHANNELS
		u.reply("319", []string{client.Nickname}, strings.Join(channels, " "))
	}
}

func (u *LocalUser) awayCommand(m irc.Message) {
	notice := irc.Message{Prefix: u.nick, Command: "AWAY"}

	// An empty away message clears the state, same as no message at all.
	if m.HasTrailing && m.Trailing != "" {
		u.ircd.directory.SetAwayMessage(u.nick, m.Trailing, true)
		notice = notice.WithTrailing(m.Trailing)
		// 306 RPL_NOWAWAY
		u.reply("306", nil, "You have been marked as being away")
	} else {
		u.ircd.directory.SetAwayMessage(u.nick, "", false)
		// 305 RPL_UNAWAY
		u.reply("305", nil, "You are no longer marked as being away")
	}

	u.ircd.broadcastToPeers("", notice)
}

func (u *LocalUser) pingCommand(m irc.Message) {
	pong := irc.Message{Command: "PONG", Params: m.Params}
	if m.HasTrailing {
		pong = pong.WithTrailing(m.Trailing)
	}
	u.send(pong)
}

func (u *LocalUser) quitCommand(m irc.Message) {
	message := ""
	if m.HasTrailing {
		message = m.Trailing
	}
	u.ircd.quitUser(u.nick, message)
}
