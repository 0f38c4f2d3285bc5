package main

import "strings"

// Channel flags settable through MODE.
const (
	ChannelFlagPrivate       = 'p'
	ChannelFlagSecret        = 's'
	ChannelFlagInviteOnly    = 'i'
	ChannelFlagNoOutsideMsgs = 'n'
	ChannelFlagTopicByOper   = 't'
	ChannelFlagModerated     = 'm'
)

// Channel holds everything to do with a channel.
//
// Channels are owned by the Directory and must only be touched under its
// lock.
type Channel struct {
	// Starts with '#' or '&'.
	Name string

	// Members in join order. If we have zero members we should not exist.
	members []string

	Topic string

	HasTopic bool

	// Flags set on the channel (subset of the ChannelFlag constants).
	flags map[byte]struct{}

	// Nicknames with channel operator status. Always a subset of members.
	operators map[string]struct{}

	// Nicknames allowed to speak when the channel is moderated. Subset of
	// members.
	speakers map[string]struct{}

	// Glob patterns matched against joining nicknames.
	banmasks []string

	Key string

	HasKey bool

	// 0 means no limit.
	UserLimit int

	// Nicknames holding an unconsumed invitation.
	invited map[string]struct{}
}

func newChannel(name string) *Channel {
	return &Channel{
		Name:      name,
		flags:     make(map[byte]struct{}),
		operators: make(map[string]struct{}),
		speakers:  make(map[string]struct{}),
		invited:   make(map[string]struct{}),
	}
}

func (c *Channel) hasFlag(flag byte) bool {
	_, ok := c.flags[flag]
	return ok
}

func (c *Channel) setFlag(flag byte) {
	c.flags[flag] = struct{}{}
}

func (c *Channel) unsetFlag(flag byte) {
	delete(c.flags, flag)
}

func (c *Channel) hasMember(nick string) bool {
	for _, member := range c.members {
		if member == nick {
			return true
		}
	}
	return false
}

func (c *Channel) addMember(nick string) {
	if c.hasMember(nick) {
		return
	}
	c.members = append(c.members, nick)
}

// removeMember drops the nickname from the member list and from the
// operator, speaker, and invite sets.
func (c *Channel) removeMember(nick string) {
	for i, member := range c.members {
		if member == nick {
			c.members = append(c.members[:i], c.members[i+1:]...)
			break
		}
	}
	delete(c.operators, nick)
	delete(c.speakers, nick)
	delete(c.invited, nick)
}

// promoteOperator grants operator status to the senior member by join
// order. Only called when the operator set is empty; channels with
// members never stay without an operator.
func (c *Channel) promoteOperator() {
	if len(c.operators) > 0 || len(c.members) == 0 {
		return
	}
	c.operators[c.members[0]] = struct{}{}
}

// renameMember re-keys a nickname in place, preserving join order and any
// operator or speaker status.
func (c *Channel) renameMember(old, new string) {
	for i, member := range c.members {
		if member == old {
			c.members[i] = new
			break
		}
	}
	if _, ok := c.operators[old]; ok {
		delete(c.operators, old)
		c.operators[new] = struct{}{}
	}
	if _, ok := c.speakers[old]; ok {
		delete(c.speakers, old)
		c.speakers[new] = struct{}{}
	}
	if _, ok := c.invited[old]; ok {
		delete(c.invited, old)
		c.invited[new] = struct{}{}
	}
}

func (c *Channel) isOperator(nick string) bool {
	_, ok := c.operators[nick]
	return ok
}

func (c *Channel) isSpeaker(nick string) bool {
	_, ok := c.speakers[nick]
	return ok
}

func (c *Channel) addBanmask(mask string) {
	for _, m := range c.banmasks {
		if m == mask {
			return
		}
	}
	c.banmasks = append(c.banmasks, mask)
}

func (c *Channel) removeBanmask(mask string) {
	for i, m := range c.banmasks {
		if m == mask {
			c.banmasks = append(c.banmasks[:i], c.banmasks[i+1:]...)
			return
		}
	}
}

// matchesBanmask reports whether the nickname matches any banmask on the
// channel.
func (c *Channel) matchesBanmask(nick string) bool {
	for _, mask := range c.banmasks {
		if matchesMask(mask, nick) {
			return true
		}
	}
	return false
}

// namesList renders the member list for a 353 reply. Channel operators are
// prefixed with '@' and speakers with '+'.
func (c *Channel) namesList() string {
	names := make([]string, 0, len(c.members))
	for _, member := range c.members {
		switch {
		case c.isOperator(member):
			names = append(names, "@"+member)
		case c.isSpeaker(member):
			names = append(names, "+"+member)
		default:
			names = append(names, member)
		}
	}
	return strings.Join(names, " ")
}
