package main

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JulianGCalderon-FIUBA/servidor-irc-sub001/irc"
)

// memoryConn is an in-memory LineConn for handler tests. Reads serve the
// scripted input lines; writes land in the embedded memorySink.
type memoryConn struct {
	memorySink
	input []string
	pos   int
}

func (c *memoryConn) ReadLine() (string, error) {
	if c.pos >= len(c.input) {
		return "", io.EOF
	}
	line := c.input[c.pos]
	c.pos++
	return line + "\r\n", nil
}

func newTestIrcd() *Ircd {
	return &Ircd{
		config: Config{
			ListenHost:  "127.0.0.1",
			ListenPort:  "0",
			ServerName:  "irc.example.org",
			ServerInfo:  "Example server",
			CreatedDate: "Mon Jan 2 2006",
			PingTime:    time.Minute,
			Opers:       map[string]string{"admin": "secreto"},
		},
		directory:    NewDirectory(map[string]string{"admin": "secreto"}),
		shutdownChan: make(chan struct{}),
	}
}

// addUser registers a user backed by a memoryConn, as if it had completed
// the handshake.
func addUser(t *testing.T, ircd *Ircd, nick string) (*LocalUser, *memoryConn) {
	t.Helper()
	conn := &memoryConn{}
	info := newTestClient(nick)
	require.NoError(t, ircd.directory.AddLocalClient(info, conn))
	return NewLocalUser(ircd, conn, nick), conn
}

func handleLine(t *testing.T, u *LocalUser, line string) {
	t.Helper()
	m, err := irc.ParseMessage(line + "\r\n")
	require.NoError(t, err)
	u.handleMessage(m)
}

func TestJoinCreatesChannel(t *testing.T) {
	ircd := newTestIrcd()
	carla, conn := addUser(t, ircd, "carla")

	handleLine(t, carla, "JOIN #x")

	assert.Equal(t, []string{
		":carla JOIN #x",
		"331 #x :No topic is set",
		"353 #x :@carla",
		"366 #x :End of /NAMES list",
	}, conn.takeLines())

	assert.True(t, ircd.directory.IsChannelOperator("#x", "carla"))
}

func TestPrivmsgChannelFanout(t *testing.T) {
	ircd := newTestIrcd()
	carla, carlaConn := addUser(t, ircd, "carla")
	diego, diegoConn := addUser(t, ircd, "diego")

	handleLine(t, carla, "JOIN #canal")
	handleLine(t, diego, "JOIN #canal")
	carlaConn.takeLines()
	diegoConn.takeLines()

	handleLine(t, carla, "PRIVMSG #canal :hola a todos")

	assert.Equal(t, []string{":carla PRIVMSG #canal :hola a todos"},
		diegoConn.takeLines())
	// The sender receives nothing.
	assert.Empty(t, carlaConn.takeLines())
}

func TestPrivmsgNoSuchNick(t *testing.T) {
	ircd := newTestIrcd()
	carla, conn := addUser(t, ircd, "carla")

	handleLine(t, carla, "PRIVMSG fantasma :hola")

	assert.Equal(t, []string{"401 fantasma :No such nick/channel"},
		conn.takeLines())
}

func TestPrivmsgNicknameDirect(t *testing.T) {
	ircd := newTestIrcd()
	carla, carlaConn := addUser(t, ircd, "carla")
	_, diegoConn := addUser(t, ircd, "diego")

	handleLine(t, carla, "PRIVMSG diego :hola")

	assert.Equal(t, []string{":carla PRIVMSG diego :hola"},
		diegoConn.takeLines())
	assert.Empty(t, carlaConn.takeLines())
}

func TestPrivmsgAwayReply(t *testing.T) {
	ircd := newTestIrcd()
	carla, carlaConn := addUser(t, ircd, "carla")
	diego, diegoConn := addUser(t, ircd, "diego")

	handleLine(t, diego, "AWAY :vuelvo enseguida")
	assert.Equal(t, []string{"306 :You have been marked as being away"},
		diegoConn.takeLines())

	handleLine(t, carla, "PRIVMSG diego :hola")

	// The away user still receives the message.
	assert.Equal(t, []string{":carla PRIVMSG diego :hola"},
		diegoConn.takeLines())
	assert.Equal(t, []string{"301 diego :vuelvo enseguida"},
		carlaConn.takeLines())

	// NOTICE does not trigger the away reply.
	handleLine(t, carla, "NOTICE diego :hola")
	assert.Equal(t, []string{":carla NOTICE diego :hola"},
		diegoConn.takeLines())
	assert.Empty(t, carlaConn.takeLines())

	handleLine(t, diego, "AWAY")
	assert.Equal(t, []string{"305 :You are no longer marked as being away"},
		diegoConn.takeLines())
}

func TestAwayEmptyMessageClears(t *testing.T) {
	ircd := newTestIrcd()
	carla, carlaConn := addUser(t, ircd, "carla")
	diego, diegoConn := addUser(t, ircd, "diego")

	handleLine(t, diego, "AWAY :vuelvo")
	assert.Equal(t, []string{"306 :You have been marked as being away"},
		diegoConn.takeLines())

	// An empty message is the same as no message: back from away.
	handleLine(t, diego, "AWAY :")
	assert.Equal(t, []string{"305 :You are no longer marked as being away"},
		diegoConn.takeLines())

	handleLine(t, carla, "PRIVMSG diego :hola")
	assert.Equal(t, []string{":carla PRIVMSG diego :hola"},
		diegoConn.takeLines())
	assert.Empty(t, carlaConn.takeLines())
}

func TestPrivmsgModerated(t *testing.T) {
	ircd := newTestIrcd()
	carla, carlaConn := addUser(t, ircd, "carla")
	diego, diegoConn := addUser(t, ircd, "diego")

	handleLine(t, carla, "JOIN #canal")
	handleLine(t, diego, "JOIN #canal")
	handleLine(t, carla, "MODE #canal +m")
	carlaConn.takeLines()
	diegoConn.takeLines()

	handleLine(t, diego, "PRIVMSG #canal :hola")
	assert.Equal(t, []string{"404 #canal :Cannot send to channel"},
		diegoConn.takeLines())
	assert.Empty(t, carlaConn.takeLines())

	handleLine(t, carla, "MODE #canal +v diego")
	carlaConn.takeLines()
	diegoConn.takeLines()

	handleLine(t, diego, "PRIVMSG #canal :ahora si")
	assert.Equal(t, []string{":diego PRIVMSG #canal :ahora si"},
		carlaConn.takeLines())
}

func TestPrivmsgNoOutsideMessages(t *testing.T) {
	ircd := newTestIrcd()
	carla, carlaConn := addUser(t, ircd, "carla")
	diego, diegoConn := addUser(t, ircd, "diego")

	handleLine(t, carla, "JOIN #canal")
	handleLine(t, carla, "MODE #canal +n")
	carlaConn.takeLines()

	handleLine(t, diego, "PRIVMSG #canal :desde afuera")
	assert.Equal(t, []string{"404 #canal :Cannot send to channel"},
		diegoConn.takeLines())
	assert.Empty(t, carlaConn.takeLines())
}

func TestJoinWithKey(t *testing.T) {
	ircd := newTestIrcd()
	carla, carlaConn := addUser(t, ircd, "carla")
	diego, diegoConn := addUser(t, ircd, "diego")

	handleLine(t, carla, "JOIN #x")
	handleLine(t, carla, "MODE #x +k secreto")
	carlaConn.takeLines()

	handleLine(t, diego, "JOIN #x")
	assert.Equal(t, []string{"475 #x :Cannot join channel (+k)"},
		diegoConn.takeLines())

	handleLine(t, diego, "JOIN #x secreto")
	lines := diegoConn.takeLines()
	require.NotEmpty(t, lines)
	assert.Equal(t, ":diego JOIN #x", lines[0])
}

func TestJoinLimitAndBan(t *testing.T) {
	ircd := newTestIrcd()
	carla, carlaConn := addUser(t, ircd, "carla")
	diego, diegoConn := addUser(t, ircd, "diego")
	eva, evaConn := addUser(t, ircd, "eva")

	handleLine(t, carla, "JOIN #x")
	handleLine(t, carla, "MODE #x +l 1")
	carlaConn.takeLines()

	handleLine(t, diego, "JOIN #x")
	assert.Equal(t, []string{"471 #x :Cannot join channel (+l)"},
		diegoConn.takeLines())

	handleLine(t, carla, "MODE #x -l")
	handleLine(t, carla, "MODE #x +b ev?")
	carlaConn.takeLines()

	handleLine(t, eva, "JOIN #x")
	assert.Equal(t, []string{"474 #x :Cannot join channel (+b)"},
		evaConn.takeLines())

	handleLine(t, diego, "JOIN #x")
	lines := diegoConn.takeLines()
	require.NotEmpty(t, lines)
	assert.Equal(t, ":diego JOIN #x", lines[0])
}

func TestJoinInviteOnly(t *testing.T) {
	ircd := newTestIrcd()
	carla, carlaConn := addUser(t, ircd, "carla")
	diego, diegoConn := addUser(t, ircd, "diego")

	handleLine(t, carla, "JOIN #x")
	handleLine(t, carla, "MODE #x +i")
	carlaConn.takeLines()

	handleLine(t, diego, "JOIN #x")
	assert.Equal(t, []string{"473 #x :Cannot join channel (+i)"},
		diegoConn.takeLines())

	handleLine(t, carla, "INVITE diego #x")
	assert.Equal(t, []string{"341 #x diego"}, carlaConn.takeLines())
	assert.Equal(t, []string{":carla INVITE diego #x"}, diegoConn.takeLines())

	handleLine(t, diego, "JOIN #x")
	lines := diegoConn.takeLines()
	require.NotEmpty(t, lines)
	assert.Equal(t, ":diego JOIN #x", lines[0])

	// The invitation was consumed with the join.
	handleLine(t, diego, "PART #x")
	diegoConn.takeLines()
	handleLine(t, diego, "JOIN #x")
	assert.Equal(t, []string{"473 #x :Cannot join channel (+i)"},
		diegoConn.takeLines())
}

func TestInviteErrors(t *testing.T) {
	ircd := newTestIrcd()
	carla, conn := addUser(t, ircd, "carla")
	diego, diegoConn := addUser(t, ircd, "diego")

	handleLine(t, carla, "INVITE fantasma #x")
	assert.Equal(t, []string{"401 fantasma :No such nick/channel"},
		conn.takeLines())

	handleLine(t, carla, "JOIN #x")
	handleLine(t, diego, "JOIN #x")
	conn.takeLines()
	diegoConn.takeLines()

	handleLine(t, carla, "INVITE diego #x")
	assert.Equal(t, []string{"443 diego #x :Is already on channel"},
		conn.takeLines())
}

func TestPart(t *testing.T) {
	ircd := newTestIrcd()
	carla, carlaConn := addUser(t, ircd, "carla")
	diego, diegoConn := addUser(t, ircd, "diego")

	handleLine(t, carla, "JOIN #canal")
	handleLine(t, diego, "JOIN #canal")
	carlaConn.takeLines()
	diegoConn.takeLines()

	handleLine(t, diego, "PART #otro")
	assert.Equal(t, []string{"403 #otro :No such channel"},
		diegoConn.takeLines())

	handleLine(t, diego, "PART #canal :me voy")
	assert.Equal(t, []string{":diego PART #canal :me voy"},
		carlaConn.takeLines())
	assert.Equal(t, []string{":diego PART #canal :me voy"},
		diegoConn.takeLines())

	handleLine(t, diego, "PART #canal")
	assert.Equal(t, []string{"442 #canal :You're not on that channel"},
		diegoConn.takeLines())
}

func TestPartPromotesOperator(t *testing.T) {
	ircd := newTestIrcd()
	carla, carlaConn := addUser(t, ircd, "carla")
	diego, diegoConn := addUser(t, ircd, "diego")

	handleLine(t, carla, "JOIN #canal")
	handleLine(t, diego, "JOIN #canal")
	carlaConn.takeLines()
	diegoConn.takeLines()

	handleLine(t, carla, "PART #canal")
	diegoConn.takeLines()

	// The channel keeps an operator: the senior remaining member.
	assert.True(t, ircd.directory.IsChannelOperator("#canal", "diego"))
	handleLine(t, diego, "NAMES #canal")
	assert.Equal(t, []string{
		"353 #canal :@diego",
		"366 #canal :End of /NAMES list",
	}, diegoConn.takeLines())
}

func TestTopic(t *testing.T) {
	ircd := newTestIrcd()
	carla, carlaConn := addUser(t, ircd, "carla")
	diego, diegoConn := addUser(t, ircd, "diego")

	handleLine(t, carla, "JOIN #canal")
	handleLine(t, diego, "JOIN #canal")
	carlaConn.takeLines()
	diegoConn.takeLines()

	handleLine(t, carla, "TOPIC #canal :tema nuevo")
	assert.Equal(t, []string{":carla TOPIC #canal :tema nuevo"},
		diegoConn.takeLines())
	carlaConn.takeLines()

	handleLine(t, diego, "TOPIC #canal")
	assert.Equal(t, []string{"332 #canal :tema nuevo"}, diegoConn.takeLines())

	// Setting an empty topic clears it.
	handleLine(t, carla, "TOPIC #canal :")
	carlaConn.takeLines()
	diegoConn.takeLines()

	handleLine(t, diego, "TOPIC #canal")
	assert.Equal(t, []string{"331 #canal :No topic is set"},
		diegoConn.takeLines())
}

func TestTopicByOperatorOnly(t *testing.T) {
	ircd := newTestIrcd()
	carla, carlaConn := addUser(t, ircd, "carla")
	diego, diegoConn := addUser(t, ircd, "diego")

	handleLine(t, carla, "JOIN #canal")
	handleLine(t, diego, "JOIN #canal")
	handleLine(t, carla, "MODE #canal +t")
	carlaConn.takeLines()
	diegoConn.takeLines()

	handleLine(t, diego, "TOPIC #canal :quiero cambiarlo")
	assert.Equal(t, []string{"482 #canal :You're not channel operator"},
		diegoConn.takeLines())
}

func TestKick(t *testing.T) {
	ircd := newTestIrcd()
	carla, carlaConn := addUser(t, ircd, "carla")
	diego, diegoConn := addUser(t, ircd, "diego")

	handleLine(t, carla, "JOIN #c")
	handleLine(t, diego, "JOIN #c")
	carlaConn.takeLines()
	diegoConn.takeLines()

	handleLine(t, diego, "KICK #c carla")
	assert.Equal(t, []string{"482 #c :You're not channel operator"},
		diegoConn.takeLines())

	handleLine(t, carla, "KICK #c fantasma")
	assert.Equal(t, []string{"441 fantasma #c :They aren't on that channel"},
		carlaConn.takeLines())

	handleLine(t, carla, "KICK #c diego :chau")
	assert.Equal(t, []string{":carla KICK #c diego :chau"},
		diegoConn.takeLines())
	assert.Equal(t, []string{":carla KICK #c diego :chau"},
		carlaConn.takeLines())

	members, ok := ircd.directory.GetChannelClients("#c")
	require.True(t, ok)
	assert.Equal(t, []string{"carla"}, members)
}

func TestQuit(t *testing.T) {
	ircd := newTestIrcd()
	carla, carlaConn := addUser(t, ircd, "carla")
	diego, diegoConn := addUser(t, ircd, "diego")

	handleLine(t, carla, "JOIN #canal")
	handleLine(t, diego, "JOIN #canal")
	carlaConn.takeLines()
	diegoConn.takeLines()

	m, err := irc.ParseMessage("QUIT :ciao\r\n")
	require.NoError(t, err)
	assert.True(t, carla.handleMessage(m))

	assert.Equal(t, []string{":carla QUIT :ciao"}, diegoConn.takeLines())
	assert.False(t, ircd.directory.ContainsClient("carla"))
	assert.True(t, carlaConn.closed)
}

func TestNickChange(t *testing.T) {
	ircd := newTestIrcd()
	carla, carlaConn := addUser(t, ircd, "carla")
	diego, diegoConn := addUser(t, ircd, "diego")

	handleLine(t, carla, "JOIN #canal")
	handleLine(t, diego, "JOIN #canal")
	carlaConn.takeLines()
	diegoConn.takeLines()

	handleLine(t, carla, "NICK diego")
	assert.Equal(t, []string{"433 diego :Nickname is already in use"},
		carlaConn.takeLines())

	handleLine(t, carla, "NICK carlita")
	assert.Equal(t, []string{":carla NICK carlita"}, diegoConn.takeLines())
	assert.Equal(t, "carlita", carla.nick)
	assert.False(t, ircd.directory.ContainsClient("carla"))
	assert.True(t, ircd.directory.ContainsClient("carlita"))
}

func TestOper(t *testing.T) {
	ircd := newTestIrcd()
	carla, conn := addUser(t, ircd, "carla")

	handleLine(t, carla, "OPER admin")
	assert.Equal(t, []string{"461 OPER :Not enough parameters"},
		conn.takeLines())

	handleLine(t, carla, "OPER admin malo")
	assert.Equal(t, []string{"464 :Password incorrect"}, conn.takeLines())
	assert.False(t, ircd.directory.IsServerOperator("carla"))

	handleLine(t, carla, "OPER admin secreto")
	assert.Equal(t, []string{"381 :You are now an IRC operator"},
		conn.takeLines())
	assert.True(t, ircd.directory.IsServerOperator("carla"))
}

func TestModeBanList(t *testing.T) {
	ircd := newTestIrcd()
	carla, conn := addUser(t, ircd, "carla")

	handleLine(t, carla, "JOIN #canal")
	handleLine(t, carla, "MODE #canal +b mal*")
	handleLine(t, carla, "MODE #canal +b peor?")
	conn.takeLines()

	handleLine(t, carla, "MODE #canal +b")
	assert.Equal(t, []string{
		"367 #canal mal*",
		"367 #canal peor?",
		"368 #canal :End of channel ban list",
	}, conn.takeLines())
}

func TestModeErrors(t *testing.T) {
	ircd := newTestIrcd()
	carla, conn := addUser(t, ircd, "carla")

	handleLine(t, carla, "JOIN #canal")
	conn.takeLines()

	handleLine(t, carla, "MODE #canal +z")
	assert.Equal(t, []string{"472 z :Is unknown mode char to me"},
		conn.takeLines())

	handleLine(t, carla, "MODE #canal +k clave")
	conn.takeLines()
	handleLine(t, carla, "MODE #canal +k otra")
	assert.Equal(t, []string{"467 #canal :Channel key already set"},
		conn.takeLines())
}

func TestList(t *testing.T) {
	ircd := newTestIrcd()
	carla, carlaConn := addUser(t, ircd, "carla")
	diego, diegoConn := addUser(t, ircd, "diego")

	handleLine(t, carla, "JOIN #publico")
	handleLine(t, carla, "TOPIC #publico :tema")
	handleLine(t, carla, "JOIN #privado")
	handleLine(t, carla, "MODE #privado +p")
	handleLine(t, carla, "JOIN #secreto")
	handleLine(t, carla, "MODE #secreto +s")
	carlaConn.takeLines()

	handleLine(t, diego, "LIST")
	assert.Equal(t, []string{
		"321 :Channel :Users Name",
		"322 #privado :Prv",
		"322 #publico :tema",
		"323 :End of /LIST",
	}, diegoConn.takeLines())

	// Members see everything.
	handleLine(t, carla, "LIST")
	assert.Equal(t, []string{
		"321 :Channel :Users Name",
		"322 #privado :No topic set",
		"322 #publico :tema",
		"322 #secreto :No topic set",
		"323 :End of /LIST",
	}, carlaConn.takeLines())
}

func TestNames(t *testing.T) {
	ircd := newTestIrcd()
	carla, carlaConn := addUser(t, ircd, "carla")
	diego, diegoConn := addUser(t, ircd, "diego")

	handleLine(t, carla, "JOIN #canal")
	handleLine(t, diego, "JOIN #canal")
	handleLine(t, carla, "MODE #canal +v diego")
	carlaConn.takeLines()
	diegoConn.takeLines()

	handleLine(t, diego, "NAMES #canal")
	assert.Equal(t, []string{
		"353 #canal :@carla +diego",
		"366 #canal :End of /NAMES list",
	}, diegoConn.takeLines())
}

func TestWho(t *testing.T) {
	ircd := newTestIrcd()
	carla, conn := addUser(t, ircd, "carla")
	_, _ = addUser(t, ircd, "diego")

	handleLine(t, carla, "WHO die*")
	assert.Equal(t, []string{
		"352 * diego localhost irc.example.org diego H :0 diego real",
		"315 die* :End of /WHO list",
	}, conn.takeLines())
}

func TestWhois(t *testing.T) {
	ircd := newTestIrcd()
	carla, conn := addUser(t, ircd, "carla")
	diego, diegoConn := addUser(t, ircd, "diego")

	handleLine(t, diego, "JOIN #canal")
	diegoConn.takeLines()

	handleLine(t, carla, "WHOIS diego")
	assert.Equal(t, []string{
		"311 diego diego localhost * :diego real",
		"312 diego irc.example.org :Example server",
		"319 diego :@#canal",
		"318 diego :End of /WHOIS list",
	}, conn.takeLines())

	handleLine(t, carla, "WHOIS fantasma")
	assert.Equal(t, []string{"401 fantasma :No such nick/channel"},
		conn.takeLines())
}

func TestUnknownCommand(t *testing.T) {
	ircd := newTestIrcd()
	carla, conn := addUser(t, ircd, "carla")

	handleLine(t, carla, "FOO bar")
	assert.Equal(t, []string{"421 FOO :Unknown command"}, conn.takeLines())
}

func TestPing(t *testing.T) {
	ircd := newTestIrcd()
	carla, conn := addUser(t, ircd, "carla")

	handleLine(t, carla, "PING irc.example.org")
	assert.Equal(t, []string{"PONG irc.example.org"}, conn.takeLines())
}
