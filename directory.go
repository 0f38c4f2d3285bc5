package main

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// Directory is the in-memory registry of clients, channels, and linked
// servers. It is shared by every connection handler and guards all state
// with a single read-write lock. Methods never perform I/O while holding
// the lock; they hand back sink handles for the caller to write to.
type Directory struct {
	mu sync.RWMutex

	// All registered clients, keyed by nickname.
	clients map[string]*ClientInfo

	// Sinks for clients connected to us. A nickname is here or in via,
	// never both.
	sinks map[string]Sink

	// For clients learned through peers, the name of the immediate server
	// we forward through.
	via map[string]string

	channels map[string]*Channel

	// nick -> channel names, in join order. Kept consistent with each
	// channel's member list.
	memberships map[string][]string

	servers map[string]*Server

	// Sinks for immediate servers.
	peerSinks map[string]Sink

	// Operator credentials, user -> password.
	opers map[string]string
}

// NewDirectory creates an empty Directory with the given operator
// credentials.
func NewDirectory(opers map[string]string) *Directory {
	if opers == nil {
		opers = make(map[string]string)
	}
	return &Directory{
		clients:     make(map[string]*ClientInfo),
		sinks:       make(map[string]Sink),
		via:         make(map[string]string),
		channels:    make(map[string]*Channel),
		memberships: make(map[string][]string),
		servers:     make(map[string]*Server),
		peerSinks:   make(map[string]Sink),
		opers:       opers,
	}
}

// AddLocalClient registers a client connected to us, together with its
// writable sink.
func (d *Directory) AddLocalClient(info ClientInfo, sink Sink) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.clients[info.Nickname]; ok {
		return errors.Errorf("nickname %s is already in use", info.Nickname)
	}

	c := info
	d.clients[c.Nickname] = &c
	d.sinks[c.Nickname] = sink
	return nil
}

// AddExternalClient registers a client learned through a peer, reached via
// the named immediate server.
func (d *Directory) AddExternalClient(info ClientInfo, viaServer string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if info.isLocal() {
		return errors.Errorf("client %s has no hop count", info.Nickname)
	}
	if _, ok := d.clients[info.Nickname]; ok {
		return errors.Errorf("nickname %s is already in use", info.Nickname)
	}

	c := info
	d.clients[c.Nickname] = &c
	d.via[c.Nickname] = viaServer
	return nil
}

func (d *Directory) ContainsClient(nick string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.clients[nick]
	return ok
}

// GetClient returns a copy of the client's identity record.
func (d *Directory) GetClient(nick string) (ClientInfo, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	c, ok := d.clients[nick]
	if !ok {
		return ClientInfo{}, false
	}
	return *c, true
}

// GetAllClients returns copies of every client record, sorted by nickname.
func (d *Directory) GetAllClients() []ClientInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]ClientInfo, 0, len(d.clients))
	for _, c := range d.clients {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Nickname < out[j].Nickname
	})
	return out
}

// DisconnectClient drops the sink of a local client and returns it. The
// record stays until RemoveClient. Reports false when the client had no
// sink, which means cleanup already ran or is running elsewhere.
func (d *Directory) DisconnectClient(nick string) (Sink, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	sink, ok := d.sinks[nick]
	if ok {
		delete(d.sinks, nick)
	}
	return sink, ok
}

// RemoveClient removes a client from every channel it is in and deletes its
// record. Channels left empty are destroyed.
func (d *Directory) RemoveClient(nick string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, name := range d.memberships[nick] {
		ch, ok := d.channels[name]
		if !ok {
			continue
		}
		ch.removeMember(nick)
		if len(ch.members) == 0 {
			delete(d.channels, name)
		} else {
			ch.promoteOperator()
		}
	}

	delete(d.memberships, nick)
	delete(d.clients, nick)
	delete(d.sinks, nick)
	delete(d.via, nick)
}

// UpdateNickname re-keys a client record and all of its channel
// memberships.
func (d *Directory) UpdateNickname(old, new string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.clients[old]
	if !ok {
		return errors.Errorf("no such client: %s", old)
	}
	if _, ok := d.clients[new]; ok {
		return errors.Errorf("nickname %s is already in use", new)
	}

	c.Nickname = new
	d.clients[new] = c
	delete(d.clients, old)

	if sink, ok := d.sinks[old]; ok {
		d.sinks[new] = sink
		delete(d.sinks, old)
	}
	if server, ok := d.via[old]; ok {
		d.via[new] = server
		delete(d.via, old)
	}

	for _, name := range d.memberships[old] {
		if ch, ok := d.channels[name]; ok {
			ch.renameMember(old, new)
		}
	}
	if chans, ok := d.memberships[old]; ok {
		d.memberships[new] = chans
		delete(d.memberships, old)
	}

	// An invitation may be pending on a channel the client is not in yet.
	for _, ch := range d.channels {
		if _, ok := ch.invited[old]; ok {
			delete(ch.invited, old)
			ch.invited[new] = struct{}{}
		}
	}

	return nil
}

// AddClientToChannel adds a member, creating the channel if needed. The
// first joiner of a new channel becomes its operator. Returns true when the
// channel was created. A pending invitation for the client is consumed.
func (d *Directory) AddClientToChannel(nick, channel string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.clients[nick]; !ok {
		return false, errors.Errorf("no such client: %s", nick)
	}

	ch, ok := d.channels[channel]
	created := false
	if !ok {
		ch = newChannel(channel)
		d.channels[channel] = ch
		created = true
	}

	if ch.hasMember(nick) {
		return created, nil
	}

	ch.addMember(nick)
	delete(ch.invited, nick)
	if created {
		ch.operators[nick] = struct{}{}
	}
	d.memberships[nick] = append(d.memberships[nick], channel)
	return created, nil
}

// RemoveClientFromChannel removes a member. The channel is destroyed when
// its last member leaves.
func (d *Directory) RemoveClientFromChannel(nick, channel string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ch, ok := d.channels[channel]
	if !ok {
		return
	}

	ch.removeMember(nick)
	if len(ch.members) == 0 {
		delete(d.channels, channel)
	} else {
		ch.promoteOperator()
	}

	chans := d.memberships[nick]
	for i, name := range chans {
		if name == channel {
			d.memberships[nick] = append(chans[:i], chans[i+1:]...)
			break
		}
	}
	if len(d.memberships[nick]) == 0 {
		delete(d.memberships, nick)
	}
}

func (d *Directory) ContainsChannel(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.channels[name]
	return ok
}

// GetChannelClients returns the channel's members in join order.
func (d *Directory) GetChannelClients(channel string) ([]string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ch, ok := d.channels[channel]
	if !ok {
		return nil, false
	}
	members := make([]string, len(ch.members))
	copy(members, ch.members)
	return members, true
}

func (d *Directory) GetChannelsForClient(nick string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	chans := make([]string, len(d.memberships[nick]))
	copy(chans, d.memberships[nick])
	return chans
}

// ChannelInfo is a point-in-time copy of a channel's state for precondition
// checks and replies.
type ChannelInfo struct {
	Name      string
	Members   []string
	Topic     string
	HasTopic  bool
	HasKey    bool
	Key       string
	UserLimit int
	Banmasks  []string
	Names     string

	flags map[byte]struct{}
}

// HasFlag reports whether the channel had the flag set when the snapshot
// was taken.
func (ci ChannelInfo) HasFlag(flag byte) bool {
	_, ok := ci.flags[flag]
	return ok
}

// hasMemberName reports whether the nickname was a member when the snapshot
// was taken.
func (ci ChannelInfo) hasMemberName(nick string) bool {
	for _, member := range ci.Members {
		if member == nick {
			return true
		}
	}
	return false
}

func snapshotChannel(ch *Channel) ChannelInfo {
	info := ChannelInfo{
		Name:      ch.Name,
		Members:   make([]string, len(ch.members)),
		Topic:     ch.Topic,
		HasTopic:  ch.HasTopic,
		HasKey:    ch.HasKey,
		Key:       ch.Key,
		UserLimit: ch.UserLimit,
		Banmasks:  make([]string, len(ch.banmasks)),
		Names:     ch.namesList(),
		flags:     make(map[byte]struct{}, len(ch.flags)),
	}
	copy(info.Members, ch.members)
	copy(info.Banmasks, ch.banmasks)
	for f := range ch.flags {
		info.flags[f] = struct{}{}
	}
	return info
}

// GetChannel returns a snapshot of the channel's state.
func (d *Directory) GetChannel(name string) (ChannelInfo, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ch, ok := d.channels[name]
	if !ok {
		return ChannelInfo{}, false
	}
	return snapshotChannel(ch), true
}

// GetAllChannels returns snapshots of every channel, sorted by name.
func (d *Directory) GetAllChannels() []ChannelInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]ChannelInfo, 0, len(d.channels))
	for _, ch := range d.channels {
		out = append(out, snapshotChannel(ch))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

// SetChannelTopic sets or clears the topic. An empty topic clears it.
func (d *Directory) SetChannelTopic(channel, topic string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ch, ok := d.channels[channel]
	if !ok {
		return
	}
	ch.Topic = topic
	ch.HasTopic = len(topic) > 0
}

func (d *Directory) SetChannelFlag(channel string, flag byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.channels[channel]; ok {
		ch.setFlag(flag)
	}
}

func (d *Directory) UnsetChannelFlag(channel string, flag byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.channels[channel]; ok {
		ch.unsetFlag(flag)
	}
}

// SetChannelKey sets the join key. Fails if one is already set.
func (d *Directory) SetChannelKey(channel, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ch, ok := d.channels[channel]
	if !ok {
		return errors.Errorf("no such channel: %s", channel)
	}
	if ch.HasKey {
		return errors.Errorf("channel %s already has a key", channel)
	}
	ch.Key = key
	ch.HasKey = true
	return nil
}

func (d *Directory) UnsetChannelKey(channel string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.channels[channel]; ok {
		ch.Key = ""
		ch.HasKey = false
	}
}

func (d *Directory) SetChannelLimit(channel string, limit int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.channels[channel]; ok {
		ch.UserLimit = limit
	}
}

func (d *Directory) UnsetChannelLimit(channel string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.channels[channel]; ok {
		ch.UserLimit = 0
	}
}

func (d *Directory) AddBanmask(channel, mask string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.channels[channel]; ok {
		ch.addBanmask(mask)
	}
}

func (d *Directory) RemoveBanmask(channel, mask string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.channels[channel]; ok {
		ch.removeBanmask(mask)
	}
}

// MatchesBanmask reports whether the nickname matches any banmask on the
// channel.
func (d *Directory) MatchesBanmask(channel, nick string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if ch, ok := d.channels[channel]; ok {
		return ch.matchesBanmask(nick)
	}
	return false
}

// AddChannelOperator grants channel operator status. The nickname must be a
// member.
func (d *Directory) AddChannelOperator(channel, nick string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.channels[channel]; ok && ch.hasMember(nick) {
		ch.operators[nick] = struct{}{}
	}
}

// RemoveChannelOperator revokes channel operator status. Revoking the
// last operator promotes the senior member, so the caller may end up
// re-granting the status it just revoked.
func (d *Directory) RemoveChannelOperator(channel, nick string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.channels[channel]; ok {
		delete(ch.operators, nick)
		ch.promoteOperator()
	}
}

func (d *Directory) AddChannelSpeaker(channel, nick string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.channels[channel]; ok && ch.hasMember(nick) {
		ch.speakers[nick] = struct{}{}
	}
}

func (d *Directory) RemoveChannelSpeaker(channel, nick string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.channels[channel]; ok {
		delete(ch.speakers, nick)
	}
}

func (d *Directory) IsChannelOperator(channel, nick string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if ch, ok := d.channels[channel]; ok {
		return ch.isOperator(nick)
	}
	return false
}

func (d *Directory) IsChannelSpeaker(channel, nick string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if ch, ok := d.channels[channel]; ok {
		return ch.isSpeaker(nick)
	}
	return false
}

// AddInvite records an invitation so the nickname may pass an invite-only
// check on its next JOIN.
func (d *Directory) AddInvite(channel, nick string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.channels[channel]; ok {
		ch.invited[nick] = struct{}{}
	}
}

func (d *Directory) IsInvited(channel, nick string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if ch, ok := d.channels[channel]; ok {
		_, invited := ch.invited[nick]
		return invited
	}
	return false
}

// SetAwayMessage stores or clears the away message for a client.
func (d *Directory) SetAwayMessage(nick, message string, away bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.clients[nick]; ok {
		c.Away = away
		c.AwayMessage = message
		if !away {
			c.AwayMessage = ""
		}
	}
}

// SetServerOperator marks a client as a global IRC operator.
func (d *Directory) SetServerOperator(nick string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.clients[nick]; ok {
		c.Operator = true
	}
}

func (d *Directory) IsServerOperator(nick string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if c, ok := d.clients[nick]; ok {
		return c.Operator
	}
	return false
}

// CheckOperatorCredentials reports whether the user/password pair matches a
// configured operator.
func (d *Directory) CheckOperatorCredentials(user, password string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	pass, ok := d.opers[user]
	return ok && pass == password
}

// AddServer registers a linked server. Immediate servers carry a sink,
// servers learned through a peer carry the peer's name instead.
func (d *Directory) AddServer(server Server, sink Sink) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.servers[server.Name]; ok {
		return errors.Errorf("server %s is already linked", server.Name)
	}
	if server.isImmediate() != (sink != nil) {
		return errors.Errorf("server %s: hop count %d does not match its link",
			server.Name, server.Hopcount)
	}

	s := server
	d.servers[s.Name] = &s
	if sink != nil {
		d.peerSinks[s.Name] = sink
	}
	return nil
}

func (d *Directory) ContainsServer(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.servers[name]
	return ok
}

// GetAllServers returns copies of every linked server record, sorted by
// name.
func (d *Directory) GetAllServers() []Server {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Server, 0, len(d.servers))
	for _, s := range d.servers {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

// RemoveServer drops a server record and its sink, if any.
func (d *Directory) RemoveServer(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.servers, name)
	delete(d.peerSinks, name)
}

// GetClientsVia returns the nicknames of every external client reached
// through the named immediate server, sorted.
func (d *Directory) GetClientsVia(server string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []string
	for nick, via := range d.via {
		if via == server {
			out = append(out, nick)
		}
	}
	sort.Strings(out)
	return out
}

// GetServersVia returns the names of every server linked behind the named
// immediate server, sorted.
func (d *Directory) GetServersVia(peer string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []string
	for name, s := range d.servers {
		if s.Via == peer {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func (d *Directory) IsLocalClient(nick string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.sinks[nick]
	return ok
}

// GetLocalSink returns the sink of a client connected to us.
func (d *Directory) GetLocalSink(nick string) (Sink, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	sink, ok := d.sinks[nick]
	return sink, ok
}

// GetImmediateServer returns the name of the peer an external client is
// reached through.
func (d *Directory) GetImmediateServer(nick string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	server, ok := d.via[nick]
	return server, ok
}

// GetPeerSink returns the sink of an immediate server.
func (d *Directory) GetPeerSink(server string) (Sink, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	sink, ok := d.peerSinks[server]
	return sink, ok
}

// GetPeerSinks returns the sinks of every immediate server except the named
// one. Pass "" to get all of them.
func (d *Directory) GetPeerSinks(exclude string) map[string]Sink {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[string]Sink, len(d.peerSinks))
	for name, sink := range d.peerSinks {
		if name == exclude {
			continue
		}
		out[name] = sink
	}
	return out
}

// GetChannelSinks returns the sinks of every local member of a channel
// except the named one, keyed by nickname.
func (d *Directory) GetChannelSinks(channel, exclude string) map[string]Sink {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[string]Sink)
	ch, ok := d.channels[channel]
	if !ok {
		return out
	}
	for _, member := range ch.members {
		if member == exclude {
			continue
		}
		if sink, ok := d.sinks[member]; ok {
			out[member] = sink
		}
	}
	return out
}

// GetChannelPeerSinks returns the sinks of every distinct immediate server
// carrying a remote member of the channel, except the named peer.
func (d *Directory) GetChannelPeerSinks(channel, excludePeer string) map[string]Sink {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[string]Sink)
	ch, ok := d.channels[channel]
	if !ok {
		return out
	}
	for _, member := range ch.members {
		via, ok := d.via[member]
		if !ok || via == excludePeer {
			continue
		}
		if sink, ok := d.peerSinks[via]; ok {
			out[via] = sink
		}
	}
	return out
}
