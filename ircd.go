package main

import (
	"fmt"
	"log"
	"net"
	"sync"

	"github.com/JulianGCalderon-FIUBA/servidor-irc-sub001/irc"
)

// Ircd holds everything global to the server. I put it in a struct rather
// than have global variables.
type Ircd struct {
	config Config

	directory *Directory

	// TCP listener.
	listener net.Listener

	// Closing this channel indicates that we're shutting down. Other
	// goroutines can check if it is closed.
	shutdownChan chan struct{}

	// WaitGroup to ensure all goroutines clean up before we end.
	wg sync.WaitGroup
}

func main() {
	log.SetFlags(0)

	args, err := getArgs()
	if err != nil {
		log.Fatal(err)
	}

	ircd, err := newIrcd(args)
	if err != nil {
		log.Fatal(err)
	}

	if err := ircd.start(); err != nil {
		log.Fatal(err)
	}

	log.Printf("Server shutdown cleanly.")
}

func newIrcd(args Args) (*Ircd, error) {
	config, err := loadConfig(args)
	if err != nil {
		return nil, fmt.Errorf("configuration problem: %s", err)
	}

	return &Ircd{
		config:       config,
		directory:    NewDirectory(config.Opers),
		shutdownChan: make(chan struct{}),
	}, nil
}

// listen binds the TCP port.
func (i *Ircd) listen() error {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%s", i.config.ListenHost,
		i.config.ListenPort))
	if err != nil {
		return fmt.Errorf("unable to listen: %s", err)
	}
	i.listener = ln
	return nil
}

// start opens the TCP port and accepts connections until shutdown. Each
// connection runs in its own goroutine.
func (i *Ircd) start() error {
	if err := i.listen(); err != nil {
		return err
	}

	log.Printf("%s listening on %s", i.config.ServerName,
		i.listener.Addr())

	i.acceptConnections()

	i.wg.Wait()
	return nil
}

func (i *Ircd) isShuttingDown() bool {
	select {
	case <-i.shutdownChan:
		return true
	default:
		return false
	}
}

// shutdown starts server shutdown. It closes the listener; the accept loop
// ends on its next iteration and connection handlers end as their sockets
// close.
func (i *Ircd) shutdown() {
	log.Printf("Server shutdown initiated.")

	close(i.shutdownChan)

	if err := i.listener.Close(); err != nil {
		log.Printf("Problem closing TCP listener: %s", err)
	}
}

// acceptConnections accepts TCP connections and starts a handler goroutine
// for each.
func (i *Ircd) acceptConnections() {
	for {
		conn, err := i.listener.Accept()
		if err != nil {
			if i.isShuttingDown() {
				return
			}
			log.Printf("Failed to accept connection: %s", err)
			return
		}

		log.Printf("New connection: %s", conn.RemoteAddr())

		client := NewLocalClient(i, NewConn(conn, i.config.PingTime))
		i.wg.Add(1)
		go client.run()
	}
}

// welcome sends the registration welcome to a fresh user.
func (i *Ircd) welcome(sink Sink, info ClientInfo) {
	// 001 RPL_WELCOME
	i.sendToSink(sink, irc.Message{Command: "001"}.WithTrailing(
		fmt.Sprintf("Welcome to the Internet Relay Network %s", info.String())))

	// 002 RPL_YOURHOST
	i.sendToSink(sink, irc.Message{Command: "002"}.WithTrailing(
		fmt.Sprintf("Your host is %s, running version %s",
			i.config.ServerName, serverVersion)))

	// 003 RPL_CREATED
	i.sendToSink(sink, irc.Message{Command: "003"}.WithTrailing(
		fmt.Sprintf("This server was created %s", i.config.CreatedDate)))

	// 004 RPL_MYINFO
	i.sendToSink(sink, irc.Message{
		Command: "004",
		Params:  []string{i.config.ServerName, serverVersion, "o", "biklmnopstv"},
	})

	if len(i.config.MOTD) > 0 {
		// 375 RPL_MOTDSTART, 372 RPL_MOTD, 376 RPL_ENDOFMOTD
		i.sendToSink(sink, irc.Message{Command: "375"}.WithTrailing(
			fmt.Sprintf("- %s Message of the day - ", i.config.ServerName)))
		i.sendToSink(sink, irc.Message{Command: "372"}.WithTrailing(
			"- "+i.config.MOTD))
		i.sendToSink(sink, irc.Message{Command: "376"}.WithTrailing(
			"End of MOTD command"))
	}
}

// sendToSink encodes and writes one message. A write error means the
// connection is dead.
func (i *Ircd) sendToSink(sink Sink, m irc.Message) error {
	line, err := m.Encode()
	if err != nil {
		log.Printf("Cannot encode message: %s", err)
		return nil
	}
	if err := sink.WriteLine(line); err != nil {
		log.Printf("Write to %s failed: %s", sink.PeerAddress(), err)
		return err
	}
	return nil
}

// deliverToClient sends a message to a client, directly if it is local or
// through its immediate server otherwise. A local client whose socket fails
// is cleaned up as if it had quit.
func (i *Ircd) deliverToClient(nick string, m irc.Message) {
	if sink, ok := i.directory.GetLocalSink(nick); ok {
		if err := i.sendToSink(sink, m); err != nil {
			i.quitUser(nick, "Connection closed")
		}
		return
	}
	if server, ok := i.directory.GetImmediateServer(nick); ok {
		if sink, ok := i.directory.GetPeerSink(server); ok {
			_ = i.sendToSink(sink, m)
		}
	}
}

// sendToChannelMembers writes a message to every local member of a channel
// except the named one. Pass "" to reach all of them. Members whose sockets
// fail are cleaned up as if they had quit.
func (i *Ircd) sendToChannelMembers(channel, exclude string, m irc.Message) {
	for nick, sink := range i.directory.GetChannelSinks(channel, exclude) {
		if err := i.sendToSink(sink, m); err != nil {
			i.quitUser(nick, "Connection closed")
		}
	}
}

// sendToChannelPeers forwards a message to every distinct peer carrying a
// remote member of the channel, except the named peer.
func (i *Ircd) sendToChannelPeers(channel, excludePeer string, m irc.Message) {
	for _, sink := range i.directory.GetChannelPeerSinks(channel, excludePeer) {
		i.sendToSink(sink, m)
	}
}

// broadcastToPeers writes a message to every immediate server except the
// named one.
func (i *Ircd) broadcastToPeers(exclude string, m irc.Message) {
	for _, sink := range i.directory.GetPeerSinks(exclude) {
		i.sendToSink(sink, m)
	}
}

// quitUser performs the full QUIT cleanup for a local user: notify every
// channel it is in and every peer, remove the record, and close the socket.
// Safe to reach from several goroutines; only the first call for a nick does
// anything.
func (i *Ircd) quitUser(nick, message string) {
	sink, ok := i.directory.DisconnectClient(nick)
	if !ok {
		return
	}

	notice := irc.Message{Prefix: nick, Command: "QUIT"}
	if len(message) > 0 {
		notice = notice.WithTrailing(message)
	}

	for _, channel := range i.directory.GetChannelsForClient(nick) {
		i.sendToChannelMembers(channel, nick, notice)
	}
	i.broadcastToPeers("", notice)

	i.directory.RemoveClient(nick)

	text := "Closing link"
	if len(message) > 0 {
		text += ": " + message
	}
	_ = i.sendToSink(sink, irc.Message{Command: "ERROR"}.WithTrailing(text))
	_ = sink.Shutdown()

	log.Printf("User %s quit: %s", nick, message)
}

// removeServer drops a server and cascades: every client it carried quits
// and every server behind it is removed too.
func (i *Ircd) removeServer(name string) {
	// Servers linked behind the one going away go with it.
	for _, behind := range i.directory.GetServersVia(name) {
		i.removeServer(behind)
	}

	for _, client := range i.directory.GetAllClients() {
		if client.Servername != name {
			continue
		}
		notice := irc.Message{
			Prefix:  client.Nickname,
			Command: "QUIT",
		}.WithTrailing(fmt.Sprintf("%s split", name))

		for _, channel := range i.directory.GetChannelsForClient(client.Nickname) {
			i.sendToChannelMembers(channel, client.Nickname, notice)
		}
		i.directory.RemoveClient(client.Nickname)
	}

	i.directory.RemoveServer(name)
	log.Printf("Server %s delinked", name)
}

// delinkServer handles losing the link to an immediate peer: everything
// reached through it goes away and the other peers are told.
func (i *Ircd) delinkServer(peer string) {
	// Clients routed through the peer may sit on servers behind it, so
	// collect them before the cascade.
	for _, nick := range i.directory.GetClientsVia(peer) {
		client, ok := i.directory.GetClient(nick)
		if !ok || client.Servername == peer {
			continue
		}
		notice := irc.Message{
			Prefix:  nick,
			Command: "QUIT",
		}.WithTrailing(fmt.Sprintf("%s split", peer))
		for _, channel := range i.directory.GetChannelsForClient(nick) {
			i.sendToChannelMembers(channel, nick, notice)
		}
		i.directory.RemoveClient(nick)
	}

	i.removeServer(peer)

	i.broadcastToPeers(peer, irc.Message{
		Prefix:  i.config.ServerName,
		Command: "SQUIT",
		Params:  []string{peer},
	}.WithTrailing("Connection lost"))
}

// serverInfo returns the info line for a linked server, or our own.
func (i *Ircd) serverInfo(name string) string {
	if name == i.config.ServerName {
		return i.config.ServerInfo
	}
	for _, s := range i.directory.GetAllServers() {
		if s.Name == name {
			return s.Info
		}
	}
	return ""
}
