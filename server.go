package main

import "fmt"

// Server holds information about a linked server, immediate or learned
// through a peer.
type Server struct {
	Name string

	Info string

	// 1 for a server connected to us, higher for servers behind it.
	Hopcount int

	// For a server reached through a peer, the name of the peer we forward
	// through. Empty for immediate servers.
	Via string
}

func (s *Server) String() string {
	return fmt.Sprintf("%s (%d hops)", s.Name, s.Hopcount)
}

// isImmediate reports whether we hold a direct link to the server.
func (s *Server) isImmediate() bool {
	return s.Hopcount == 1
}
