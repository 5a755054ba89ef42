package server

import (
	"fmt"
	"net"
	"sync/atomic"

	"github.com/permuter-search/permuter/internal/wire"
)

// Listen accepts connections on ln, performs the server handshake on
// each, and spawns a NetThread to relay it into srv. It runs until ln
// is closed, matching spec.md §4.6's "one instance per host" model: one
// Server, arbitrarily many concurrent sessions.
func Listen(ln net.Listener, srv *Server, id *wire.Identity, authorizedClients wire.AuthorizedKeys) error {
	var nextID atomic.Int64

	for {
		nc, err := ln.Accept()
		if err != nil {
			return fmt.Errorf("server: accepting connection: %w", err)
		}

		go func(nc net.Conn) {
			conn, err := wire.NewServerConn(nc, id, authorizedClients)
			if err != nil {
				nc.Close()
				return
			}

			threadID := int(nextID.Add(1))
			nt := NewNetThread(threadID, conn, srv)
			nt.Run()
			srv.Enqueue(NetThreadDisconnected(threadID))
		}(nc)
	}
}
