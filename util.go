package main

import (
	"strings"
)

// 50 from RFC
const maxChannelLength = 50

// Arbitrary. Something low enough we won't hit message limit.
const maxTopicLength = 300

// A client may be in at most this many channels at once.
const maxChannelsPerClient = 10

// isValidNick checks if a nickname is valid.
//
// Nicknames are case sensitive and must not collide with the wire grammar or
// with channel naming.
func isValidNick(n string) bool {
	if len(n) == 0 || len(n) > 9 {
		return false
	}

	if n[0] == '#' || n[0] == '&' || n[0] == ':' {
		return false
	}

	return !strings.ContainsAny(n, " ,*?!@\x00\r\n")
}

// isValidChannel checks a channel name for validity.
//
// Channels start with '#' (distributed) or '&' (local) and may not contain
// space, comma, or apostrophe.
func isValidChannel(c string) bool {
	if len(c) < 2 || len(c) > maxChannelLength {
		return false
	}

	if c[0] != '#' && c[0] != '&' {
		return false
	}

	return !strings.ContainsAny(c, " ,'\x00\r\n")
}

func isNumericCommand(command string) bool {
	for _, c := range command {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(command) > 0
}

// matchesMask reports whether s matches the glob pattern mask. '?' matches
// exactly one character and '*' matches any run of characters, with standard
// backtracking semantics.
func matchesMask(mask, s string) bool {
	mi, si := 0, 0
	star, starSi := -1, 0

	for si < len(s) {
		if mi < len(mask) && (mask[mi] == '?' || mask[mi] == s[si]) {
			mi++
			si++
			continue
		}

		if mi < len(mask) && mask[mi] == '*' {
			// Tentatively match zero characters; remember where to come back.
			star = mi
			starSi = si
			mi++
			continue
		}

		if star != -1 {
			// Backtrack: let the last '*' swallow one more character.
			starSi++
			mi = star + 1
			si = starSi
			continue
		}

		return false
	}

	for mi < len(mask) && mask[mi] == '*' {
		mi++
	}

	return mi == len(mask)
}

// commaList splits a comma separated parameter, dropping empty entries.
func commaList(s string) []string {
	var out []string
	for _, piece := range strings.Split(s, ",") {
		piece = strings.TrimSpace(piece)
		if len(piece) == 0 {
			continue
		}
		out = append(out, piece)
	}
	return out
}
