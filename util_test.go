package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchesMask(t *testing.T) {
	tests := []struct {
		mask   string
		s      string
		output bool
	}{
		{"carla", "carla", true},
		{"carla", "carlab", false},
		{"carl?", "carla", true},
		{"carl?", "carl", false},
		{"*", "", true},
		{"*", "anything", true},
		{"c*a", "carla", true},
		{"c*a", "cb", false},
		{"*la", "carla", true},
		{"*la", "carlas", false},
		{"c?r*", "carla", true},
		{"c?r*", "cra", false},
		{"*a*a", "banana", true},
		{"*a*a*", "banana", true},
		{"**", "x", true},
		{"", "", true},
		{"", "x", false},
		{"?", "", false},
	}

	for _, test := range tests {
		assert.Equal(t, test.output, matchesMask(test.mask, test.s),
			"matchesMask(%q, %q)", test.mask, test.s)
	}
}

func TestIsValidNick(t *testing.T) {
	tests := []struct {
		nick   string
		output bool
	}{
		{"carla", true},
		{"carla99", true},
		{"[carla]", true},
		{"", false},
		{"demasiadolargo", false},
		{"#carla", false},
		{"&carla", false},
		{":carla", false},
		{"car la", false},
		{"car,la", false},
		{"car*la", false},
		{"car?la", false},
	}

	for _, test := range tests {
		assert.Equal(t, test.output, isValidNick(test.nick), "isValidNick(%q)",
			test.nick)
	}
}

func TestIsValidChannel(t *testing.T) {
	tests := []struct {
		channel string
		output  bool
	}{
		{"#canal", true},
		{"&local", true},
		{"#a", true},
		{"#", false},
		{"canal", false},
		{"#ca nal", false},
		{"#ca,nal", false},
		{"#ca'nal", false},
	}

	for _, test := range tests {
		assert.Equal(t, test.output, isValidChannel(test.channel),
			"isValidChannel(%q)", test.channel)
	}
}

func TestCommaList(t *testing.T) {
	tests := []struct {
		input  string
		output []string
	}{
		{"#a,#b", []string{"#a", "#b"}},
		{"#a", []string{"#a"}},
		{"#a,,#b", []string{"#a", "#b"}},
		{",", nil},
		{"", nil},
	}

	for _, test := range tests {
		assert.Equal(t, test.output, commaList(test.input), "commaList(%q)",
			test.input)
	}
}
